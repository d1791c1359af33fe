package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/Eissaali11/nuzum-edut-sub003/internal/model"
)

// addHandover inserts a handover row directly, optionally gated by an
// operation request in the given status. CreatedAt is set explicitly so the
// latest-delivery-vs-latest-return comparison is deterministic.
func addHandover(t *testing.T, db *gorm.DB, vehicleID uint, handoverType, person string, createdAt time.Time, gateStatus string) *model.HandoverRecord {
	t.Helper()
	h := &model.HandoverRecord{
		VehicleID:    vehicleID,
		HandoverType: handoverType,
		HandoverDate: createdAt,
		PersonName:   person,
		CreatedAt:    createdAt,
	}
	require.NoError(t, db.Create(h).Error)

	if gateStatus != "" {
		req := &model.OperationRequest{
			OperationType:   model.OperationHandover,
			RelatedRecordID: h.ID,
			VehicleID:       vehicleID,
			Title:           "gate",
			RequestedBy:     1,
			RequestedAt:     createdAt,
			Status:          gateStatus,
		}
		require.NoError(t, db.Create(req).Error)
	}
	return h
}

func vehicleState(t *testing.T, db *gorm.DB, id uint) (string, *string) {
	t.Helper()
	var v model.Vehicle
	require.NoError(t, db.First(&v, id).Error)
	return v.Status, v.DriverName
}

func TestReconcileHandoverDerivation(t *testing.T) {
	db := newTestDB(t)
	vehicle := createVehicle(t, db, "RC-1000")
	_, reconciler, _ := newOperationStack(db)
	ctx := context.Background()

	base := ts(8, 0)

	// approved delivery puts the vehicle in project with the driver named
	addHandover(t, db, vehicle.ID, model.HandoverDelivery, "Ahmed", base, model.OperationApproved)
	require.NoError(t, reconciler.Reconcile(ctx, vehicle.ID))
	status, driver := vehicleState(t, db, vehicle.ID)
	assert.Equal(t, model.VehicleInProject, status)
	require.NotNil(t, driver)
	assert.Equal(t, "Ahmed", *driver)

	// a later approved return frees it again
	addHandover(t, db, vehicle.ID, model.HandoverReturn, "Ahmed", base.Add(time.Hour), model.OperationApproved)
	require.NoError(t, reconciler.Reconcile(ctx, vehicle.ID))
	status, driver = vehicleState(t, db, vehicle.ID)
	assert.Equal(t, model.VehicleAvailable, status)
	assert.Nil(t, driver)

	// an even later delivery takes it out again
	addHandover(t, db, vehicle.ID, model.HandoverDelivery, "Saleh", base.Add(2*time.Hour), model.OperationApproved)
	require.NoError(t, reconciler.Reconcile(ctx, vehicle.ID))
	status, driver = vehicleState(t, db, vehicle.ID)
	assert.Equal(t, model.VehicleInProject, status)
	require.NotNil(t, driver)
	assert.Equal(t, "Saleh", *driver)
}

func TestReconcileIgnoresPendingAndRejected(t *testing.T) {
	db := newTestDB(t)
	vehicle := createVehicle(t, db, "RC-2000")
	_, reconciler, _ := newOperationStack(db)
	ctx := context.Background()

	addHandover(t, db, vehicle.ID, model.HandoverDelivery, "Pending Guy", ts(8, 0), model.OperationPending)
	addHandover(t, db, vehicle.ID, model.HandoverDelivery, "Rejected Guy", ts(9, 0), model.OperationRejected)

	require.NoError(t, reconciler.Reconcile(ctx, vehicle.ID))
	status, driver := vehicleState(t, db, vehicle.ID)
	assert.Equal(t, model.VehicleAvailable, status)
	assert.Nil(t, driver)
}

func TestReconcileLegacyUngatedHandoverCounts(t *testing.T) {
	db := newTestDB(t)
	vehicle := createVehicle(t, db, "RC-3000")
	_, reconciler, _ := newOperationStack(db)
	ctx := context.Background()

	// imported historical row with no gating request at all
	addHandover(t, db, vehicle.ID, model.HandoverDelivery, "Legacy Driver", ts(8, 0), "")

	require.NoError(t, reconciler.Reconcile(ctx, vehicle.ID))
	status, driver := vehicleState(t, db, vehicle.ID)
	assert.Equal(t, model.VehicleInProject, status)
	require.NotNil(t, driver)
	assert.Equal(t, "Legacy Driver", *driver)
}

func TestReconcilePrecedence(t *testing.T) {
	db := newTestDB(t)
	vehicle := createVehicle(t, db, "RC-4000")
	_, reconciler, _ := newOperationStack(db)
	ctx := context.Background()

	addHandover(t, db, vehicle.ID, model.HandoverDelivery, "Majed", ts(8, 0), model.OperationApproved)

	// open workshop ticket overrides the handover state, driver retained
	workshop := &model.WorkshopRecord{VehicleID: vehicle.ID, EntryDate: ts(9, 0), WorkshopName: "Main"}
	require.NoError(t, db.Create(workshop).Error)
	require.NoError(t, reconciler.Reconcile(ctx, vehicle.ID))
	status, driver := vehicleState(t, db, vehicle.ID)
	assert.Equal(t, model.VehicleInWorkshop, status)
	require.NotNil(t, driver)
	assert.Equal(t, "Majed", *driver)

	// open accident outranks the workshop
	accident := &model.AccidentRecord{VehicleID: vehicle.ID, AccidentDate: ts(10, 0), Status: model.AccidentOpen}
	require.NoError(t, db.Create(accident).Error)
	require.NoError(t, reconciler.Reconcile(ctx, vehicle.ID))
	status, driver = vehicleState(t, db, vehicle.ID)
	assert.Equal(t, model.VehicleAccident, status)
	require.NotNil(t, driver)

	// closing both drops back to the handover-derived state
	require.NoError(t, db.Model(accident).Update("status", model.AccidentClosed).Error)
	exit := ts(11, 0)
	require.NoError(t, db.Model(workshop).Update("exit_date", exit).Error)
	require.NoError(t, reconciler.Reconcile(ctx, vehicle.ID))
	status, driver = vehicleState(t, db, vehicle.ID)
	assert.Equal(t, model.VehicleInProject, status)
	require.NotNil(t, driver)
	assert.Equal(t, "Majed", *driver)
}

func TestReconcileRental(t *testing.T) {
	db := newTestDB(t)
	vehicle := createVehicle(t, db, "RC-5000")
	_, reconciler, _ := newOperationStack(db)
	ctx := context.Background()

	rental := &model.RentalRecord{VehicleID: vehicle.ID, StartDate: time.Now().Add(-time.Hour), RenterName: "Acme"}
	require.NoError(t, db.Create(rental).Error)

	require.NoError(t, reconciler.Reconcile(ctx, vehicle.ID))
	status, driver := vehicleState(t, db, vehicle.ID)
	assert.Equal(t, model.VehicleRented, status)
	assert.Nil(t, driver)

	// rental with a delivered driver keeps the driver name
	addHandover(t, db, vehicle.ID, model.HandoverDelivery, "Contract Driver", time.Now(), model.OperationApproved)
	require.NoError(t, reconciler.Reconcile(ctx, vehicle.ID))
	status, driver = vehicleState(t, db, vehicle.ID)
	assert.Equal(t, model.VehicleRented, status)
	require.NotNil(t, driver)
	assert.Equal(t, "Contract Driver", *driver)

	// ended rental releases the vehicle back to project state
	ended := time.Now().Add(-time.Minute)
	require.NoError(t, db.Model(rental).Update("end_date", ended).Error)
	require.NoError(t, reconciler.Reconcile(ctx, vehicle.ID))
	status, _ = vehicleState(t, db, vehicle.ID)
	assert.Equal(t, model.VehicleInProject, status)
}

func TestReconcileOutOfServiceUntouched(t *testing.T) {
	db := newTestDB(t)
	vehicle := createVehicle(t, db, "RC-6000")
	_, reconciler, _ := newOperationStack(db)
	ctx := context.Background()

	require.NoError(t, db.Model(&model.Vehicle{}).Where("id = ?", vehicle.ID).
		Update("status", model.VehicleOutOfService).Error)
	addHandover(t, db, vehicle.ID, model.HandoverDelivery, "Ignored", ts(8, 0), model.OperationApproved)

	require.NoError(t, reconciler.Reconcile(ctx, vehicle.ID))
	status, driver := vehicleState(t, db, vehicle.ID)
	assert.Equal(t, model.VehicleOutOfService, status)
	assert.Nil(t, driver)
}

func TestReconcileIdempotent(t *testing.T) {
	db := newTestDB(t)
	vehicle := createVehicle(t, db, "RC-7000")
	_, reconciler, _ := newOperationStack(db)
	ctx := context.Background()

	addHandover(t, db, vehicle.ID, model.HandoverDelivery, "Yousef", ts(8, 0), model.OperationApproved)
	require.NoError(t, reconciler.Reconcile(ctx, vehicle.ID))

	var auditAfterFirst int64
	db.Model(&model.AuditRecord{}).Where("action = ?", model.AuditVehicleReconcile).Count(&auditAfterFirst)
	assert.EqualValues(t, 1, auditAfterFirst)

	// a second run changes nothing and writes no audit row
	require.NoError(t, reconciler.Reconcile(ctx, vehicle.ID))
	var auditAfterSecond int64
	db.Model(&model.AuditRecord{}).Where("action = ?", model.AuditVehicleReconcile).Count(&auditAfterSecond)
	assert.Equal(t, auditAfterFirst, auditAfterSecond)

	status, driver := vehicleState(t, db, vehicle.ID)
	assert.Equal(t, model.VehicleInProject, status)
	require.NotNil(t, driver)
	assert.Equal(t, "Yousef", *driver)
}

func TestReconcileUnknownVehicle(t *testing.T) {
	db := newTestDB(t)
	_, reconciler, _ := newOperationStack(db)

	err := reconciler.Reconcile(context.Background(), 9999)
	assert.ErrorIs(t, err, model.ErrNotFound)
}
