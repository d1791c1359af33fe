package service

import (
	"fmt"
	"sync"
	"time"
)

// KeyedLocker serializes work per key. The presence resolver locks per
// employee, the reconciler per vehicle and the operation workflow per
// request, so writers for different entities proceed in parallel while
// writers for the same entity queue up.
type KeyedLocker struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	ch   chan struct{}
	refs int
}

// NewKeyedLocker creates an empty locker
func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{entries: make(map[string]*lockEntry)}
}

func (l *KeyedLocker) entry(key string) *lockEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[key]
	if !ok {
		e = &lockEntry{ch: make(chan struct{}, 1)}
		l.entries[key] = e
	}
	e.refs++
	return e
}

func (l *KeyedLocker) release(key string, e *lockEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
}

// Lock blocks until the key's lock is acquired
func (l *KeyedLocker) Lock(key string) {
	e := l.entry(key)
	e.ch <- struct{}{}
}

// TryLock acquires the key's lock within the deadline, returning false on
// timeout. The caller must not Unlock after a false return.
func (l *KeyedLocker) TryLock(key string, timeout time.Duration) bool {
	e := l.entry(key)
	select {
	case e.ch <- struct{}{}:
		return true
	case <-time.After(timeout):
		l.release(key, e)
		return false
	}
}

// Unlock releases the key's lock
func (l *KeyedLocker) Unlock(key string) {
	l.mu.Lock()
	e, ok := l.entries[key]
	l.mu.Unlock()
	if !ok {
		return
	}
	<-e.ch
	l.release(key, e)
}

// EmployeeLockKey builds the lock key for an employee
func EmployeeLockKey(employeeID uint) string {
	return fmt.Sprintf("employee:%d", employeeID)
}

// VehicleLockKey builds the lock key for a vehicle
func VehicleLockKey(vehicleID uint) string {
	return fmt.Sprintf("vehicle:%d", vehicleID)
}

// OperationLockKey builds the lock key for an operation request
func OperationLockKey(operationID uint) string {
	return fmt.Sprintf("operation:%d", operationID)
}
