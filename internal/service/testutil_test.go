package service

import (
	"fmt"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Eissaali11/nuzum-edut-sub003/internal/model"
)

// Test zone center near Riyadh. A point 0.01 degrees of latitude away is
// roughly 1.1 km out, far beyond any test radius.
const (
	testLat = 24.7136
	testLon = 46.6753

	outsideLat = testLat + 0.01
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("raw db: %v", err)
	}
	// a single connection keeps every session on the same in-memory database
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(
		&model.User{},
		&model.Employee{},
		&model.Department{},
		&model.EmployeeDepartment{},
		&model.Zone{},
		&model.EmployeeZone{},
		&model.LocationSample{},
		&model.GeofenceEvent{},
		&model.GeofenceSession{},
		&model.GeofenceAttendance{},
		&model.Vehicle{},
		&model.HandoverRecord{},
		&model.WorkshopRecord{},
		&model.AccidentRecord{},
		&model.RentalRecord{},
		&model.OperationRequest{},
		&model.Notification{},
		&model.AuditRecord{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}

	return db
}

func createDepartment(t *testing.T, db *gorm.DB, name string) *model.Department {
	t.Helper()
	dept := &model.Department{Name: name}
	if err := db.Create(dept).Error; err != nil {
		t.Fatalf("create department: %v", err)
	}
	return dept
}

func createEmployee(t *testing.T, db *gorm.DB, name string, dept *model.Department) *model.Employee {
	t.Helper()
	emp := &model.Employee{
		Name:       name,
		EmployeeNo: fmt.Sprintf("EMP-%s-%d", name, time.Now().UnixNano()),
		Status:     model.EmployeeActive,
	}
	if err := db.Create(emp).Error; err != nil {
		t.Fatalf("create employee: %v", err)
	}
	if dept != nil {
		link := model.EmployeeDepartment{EmployeeID: emp.ID, DepartmentID: dept.ID}
		if err := db.Create(&link).Error; err != nil {
			t.Fatalf("link employee to department: %v", err)
		}
	}
	return emp
}

func createZone(t *testing.T, db *gorm.DB, name string, dept *model.Department, radiusM int) *model.Zone {
	t.Helper()
	zone := &model.Zone{
		Name:                      name,
		CenterLat:                 testLat,
		CenterLon:                 testLon,
		RadiusMeters:              radiusM,
		IsActive:                  true,
		DepartmentID:              dept.ID,
		AttendanceStartTime:       "08:00",
		AttendanceRequiredMinutes: 30,
	}
	if err := db.Create(zone).Error; err != nil {
		t.Fatalf("create zone: %v", err)
	}
	return zone
}

func createVehicle(t *testing.T, db *gorm.DB, plate string) *model.Vehicle {
	t.Helper()
	vehicle := &model.Vehicle{
		PlateNumber: plate,
		Status:      model.VehicleAvailable,
	}
	if err := db.Create(vehicle).Error; err != nil {
		t.Fatalf("create vehicle: %v", err)
	}
	return vehicle
}

func createUser(t *testing.T, db *gorm.DB, username, role string) *model.User {
	t.Helper()
	user := &model.User{
		Username: username,
		Password: "x",
		Email:    username + "@test.local",
		Role:     role,
		Status:   1,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

// newPresenceStack wires the ingest pipeline with no Redis and no NATS
func newPresenceStack(db *gorm.DB) (*IngestService, *PresenceService, *PresenceQueryService) {
	audit := NewAuditService()
	locks := NewKeyedLocker()
	presence := NewPresenceService(db, nil, audit, time.UTC)
	ingest := NewIngestService(db, nil, nil, presence, locks)
	queries := NewPresenceQueryService(db, nil, time.UTC)
	return ingest, presence, queries
}

// newOperationStack wires the workflow with no NATS and no push gateway
func newOperationStack(db *gorm.DB) (*OperationService, *Reconciler, *NotificationService) {
	audit := NewAuditService()
	locks := NewKeyedLocker()
	reconciler := NewReconciler(db, audit, locks)
	notifier := NewNotificationService(db, nil, "")
	operations := NewOperationService(db, nil, audit, notifier, reconciler, locks)
	return operations, reconciler, notifier
}

// ts builds a UTC timestamp on the fixed test day
func ts(hour, minute int) time.Time {
	return time.Date(2025, 3, 10, hour, minute, 0, 0, time.UTC)
}

const testDate = "2025-03-10"
