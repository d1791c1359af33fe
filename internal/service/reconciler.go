package service

import (
	"context"
	"errors"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/Eissaali11/nuzum-edut-sub003/internal/model"
)

// reconcileLockWait bounds how long a reconcile waits for the vehicle lock
// before queueing a retry
const reconcileLockWait = 5 * time.Second

// Reconciler recomputes a vehicle's derived status and driver_name from
// persisted history. It is the only writer of those two fields. Idempotent:
// running it twice in a row yields the same state.
type Reconciler struct {
	db      *gorm.DB
	audit   *AuditService
	locks   *KeyedLocker
	retryCh chan uint
	stopCh  chan struct{}
}

// NewReconciler creates a new vehicle-state reconciler
func NewReconciler(db *gorm.DB, audit *AuditService, locks *KeyedLocker) *Reconciler {
	return &Reconciler{
		db:      db,
		audit:   audit,
		locks:   locks,
		retryCh: make(chan uint, 256),
		stopCh:  make(chan struct{}),
	}
}

// Start runs the background retry worker for reconciliations that failed or
// could not take the vehicle lock in time
func (r *Reconciler) Start() {
	go func() {
		for {
			select {
			case vehicleID := <-r.retryCh:
				if err := r.Reconcile(context.Background(), vehicleID); err != nil {
					log.Printf("[Reconciler] Retry for vehicle %d failed: %v", vehicleID, err)
					// transient failures go back on the queue
					if errors.Is(err, model.ErrTransient) {
						time.Sleep(time.Second)
						r.EnqueueRetry(vehicleID)
					}
				}
			case <-r.stopCh:
				return
			}
		}
	}()
	log.Println("[Reconciler] Retry worker started")
}

// Stop terminates the retry worker
func (r *Reconciler) Stop() {
	close(r.stopCh)
}

// EnqueueRetry schedules a later reconciliation for the vehicle
func (r *Reconciler) EnqueueRetry(vehicleID uint) {
	select {
	case r.retryCh <- vehicleID:
	default:
		log.Printf("[Reconciler] Retry queue full, dropping vehicle %d", vehicleID)
	}
}

// Reconcile recomputes status and driver_name for one vehicle under the
// per-vehicle lock. Returns ErrTransient when the lock cannot be acquired
// within the deadline; the retry is queued automatically.
func (r *Reconciler) Reconcile(ctx context.Context, vehicleID uint) error {
	key := VehicleLockKey(vehicleID)
	if !r.locks.TryLock(key, reconcileLockWait) {
		r.EnqueueRetry(vehicleID)
		return model.TransientError(errors.New("vehicle lock wait exceeded"))
	}
	defer r.locks.Unlock(key)

	var vehicle model.Vehicle
	if err := r.db.First(&vehicle, vehicleID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.NotFoundError("vehicle", vehicleID)
		}
		return model.TransientError(err)
	}

	// manual override wins
	if vehicle.Status == model.VehicleOutOfService {
		return nil
	}

	status, driverName, err := r.derive(&vehicle)
	if err != nil {
		return err
	}

	if vehicle.Status == status && ptrEqual(vehicle.DriverName, driverName) {
		return nil
	}

	before := vehicle
	err = r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.Vehicle{}).Where("id = ?", vehicle.ID).
			Updates(map[string]interface{}{
				"status":      status,
				"driver_name": driverName,
			}).Error; err != nil {
			return err
		}
		after := vehicle
		after.Status = status
		after.DriverName = driverName
		return r.audit.RecordChange(tx, nil, model.AuditVehicleReconcile, "vehicle", vehicle.ID, vehicle.PlateNumber, &before, &after)
	})
	if err != nil {
		return model.TransientError(err)
	}

	log.Printf("[Reconciler] Vehicle %d (%s): status=%s driver=%v", vehicle.ID, vehicle.PlateNumber, status, strOrNil(driverName))
	return nil
}

// derive computes the target status and driver from persisted history:
// accidents and open workshop tickets override the handover-derived state,
// and only official handovers count.
func (r *Reconciler) derive(vehicle *model.Vehicle) (string, *string, error) {
	var accidentCount int64
	if err := r.db.Model(&model.AccidentRecord{}).
		Where("vehicle_id = ? AND status <> ?", vehicle.ID, model.AccidentClosed).
		Count(&accidentCount).Error; err != nil {
		return "", nil, model.TransientError(err)
	}
	if accidentCount > 0 {
		return model.VehicleAccident, vehicle.DriverName, nil
	}

	var workshopCount int64
	if err := r.db.Model(&model.WorkshopRecord{}).
		Where("vehicle_id = ? AND exit_date IS NULL", vehicle.ID).
		Count(&workshopCount).Error; err != nil {
		return "", nil, model.TransientError(err)
	}
	if workshopCount > 0 {
		// driver_name is retained while the vehicle sits in the workshop
		return model.VehicleInWorkshop, vehicle.DriverName, nil
	}

	official, err := r.officialHandovers(vehicle.ID)
	if err != nil {
		return "", nil, err
	}

	var latestDelivery, latestReturn *model.HandoverRecord
	for i := range official {
		h := &official[i]
		switch h.HandoverType {
		case model.HandoverDelivery:
			if latestDelivery == nil || h.CreatedAt.After(latestDelivery.CreatedAt) {
				latestDelivery = h
			}
		case model.HandoverReturn:
			if latestReturn == nil || h.CreatedAt.After(latestReturn.CreatedAt) {
				latestReturn = h
			}
		}
	}

	currentlyOut := latestDelivery != nil &&
		(latestReturn == nil || latestReturn.CreatedAt.Before(latestDelivery.CreatedAt))

	rented, err := r.hasActiveRental(vehicle.ID)
	if err != nil {
		return "", nil, err
	}

	if currentlyOut {
		driver := latestDelivery.PersonName
		if rented {
			return model.VehicleRented, &driver, nil
		}
		return model.VehicleInProject, &driver, nil
	}

	if rented {
		return model.VehicleRented, nil, nil
	}
	return model.VehicleAvailable, nil, nil
}

// officialHandovers returns handover rows whose gating operation request is
// approved, plus legacy rows that never had a gating request. Pending and
// rejected proposals are invisible to derived state.
func (r *Reconciler) officialHandovers(vehicleID uint) ([]model.HandoverRecord, error) {
	var requests []model.OperationRequest
	if err := r.db.Where("vehicle_id = ? AND operation_type = ?", vehicleID, model.OperationHandover).
		Find(&requests).Error; err != nil {
		return nil, model.TransientError(err)
	}

	gated := make(map[uint]bool)
	approved := make(map[uint]bool)
	for i := range requests {
		gated[requests[i].RelatedRecordID] = true
		if requests[i].Status == model.OperationApproved {
			approved[requests[i].RelatedRecordID] = true
		}
	}

	var handovers []model.HandoverRecord
	if err := r.db.Where("vehicle_id = ?", vehicleID).Find(&handovers).Error; err != nil {
		return nil, model.TransientError(err)
	}

	official := handovers[:0]
	for i := range handovers {
		h := handovers[i]
		if approved[h.ID] || !gated[h.ID] {
			official = append(official, h)
		}
	}
	return official, nil
}

func (r *Reconciler) hasActiveRental(vehicleID uint) (bool, error) {
	var rentals []model.RentalRecord
	if err := r.db.Where("vehicle_id = ?", vehicleID).Find(&rentals).Error; err != nil {
		return false, model.TransientError(err)
	}
	now := time.Now()
	for i := range rentals {
		if rentals[i].IsActiveAt(now) {
			return true, nil
		}
	}
	return false, nil
}

func ptrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func strOrNil(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}
