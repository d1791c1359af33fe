package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Eissaali11/nuzum-edut-sub003/internal/model"
)

func TestVehicleCreate(t *testing.T) {
	db := newTestDB(t)
	_, reconciler, _ := newOperationStack(db)
	vehicles := NewVehicleService(db, NewAuditService(), reconciler)
	ctx := context.Background()

	driver := "should be dropped"
	v := &model.Vehicle{PlateNumber: "VH-100", Status: model.VehicleRented, DriverName: &driver}
	require.NoError(t, vehicles.Create(ctx, v, 1))

	// derived fields are not writable through create
	fresh, err := vehicles.GetByID(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, model.VehicleAvailable, fresh.Status)
	assert.Nil(t, fresh.DriverName)

	var audits int64
	db.Model(&model.AuditRecord{}).
		Where("action = ? AND entity_id = ?", model.AuditVehicleCreate, v.ID).Count(&audits)
	assert.EqualValues(t, 1, audits)

	assert.ErrorIs(t, vehicles.Create(ctx, &model.Vehicle{}, 1), model.ErrValidation)

	err = vehicles.Create(ctx, &model.Vehicle{PlateNumber: "VH-100"}, 1)
	assert.ErrorIs(t, err, model.ErrConflict)
}

func TestVehicleOutOfServiceOverride(t *testing.T) {
	db := newTestDB(t)
	vehicle := createVehicle(t, db, "VH-200")
	_, reconciler, _ := newOperationStack(db)
	vehicles := NewVehicleService(db, NewAuditService(), reconciler)
	ctx := context.Background()

	// a driver is on the vehicle via an approved delivery
	addHandover(t, db, vehicle.ID, model.HandoverDelivery, "Hassan", ts(8, 0), model.OperationApproved)
	require.NoError(t, reconciler.Reconcile(ctx, vehicle.ID))

	require.NoError(t, vehicles.SetOutOfService(ctx, vehicle.ID, 1))
	status, _ := vehicleState(t, db, vehicle.ID)
	assert.Equal(t, model.VehicleOutOfService, status)

	// pinned: the reconciler must not move it
	require.NoError(t, reconciler.Reconcile(ctx, vehicle.ID))
	status, _ = vehicleState(t, db, vehicle.ID)
	assert.Equal(t, model.VehicleOutOfService, status)

	// pinning twice is a no-op
	require.NoError(t, vehicles.SetOutOfService(ctx, vehicle.ID, 1))

	// clearing re-derives from history
	require.NoError(t, vehicles.ClearOutOfService(ctx, vehicle.ID, 1))
	status, drv := vehicleState(t, db, vehicle.ID)
	assert.Equal(t, model.VehicleInProject, status)
	require.NotNil(t, drv)
	assert.Equal(t, "Hassan", *drv)

	// clearing a vehicle that is not pinned is a validation error
	err := vehicles.ClearOutOfService(ctx, vehicle.ID, 1)
	assert.ErrorIs(t, err, model.ErrValidation)

	// manual overrides leave their own trail, distinct from reconciliation
	var pins int64
	db.Model(&model.AuditRecord{}).
		Where("action = ? AND entity_id = ?", model.AuditVehicleOutOfService, vehicle.ID).Count(&pins)
	assert.EqualValues(t, 2, pins)
}

func TestVehicleList(t *testing.T) {
	db := newTestDB(t)
	createVehicle(t, db, "VH-302")
	createVehicle(t, db, "VH-301")
	pinned := createVehicle(t, db, "VH-303")
	_, reconciler, _ := newOperationStack(db)
	vehicles := NewVehicleService(db, NewAuditService(), reconciler)
	ctx := context.Background()

	require.NoError(t, vehicles.SetOutOfService(ctx, pinned.ID, 1))

	all, total, err := vehicles.List(ctx, "", 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	require.Len(t, all, 3)
	// ordered by plate
	assert.Equal(t, "VH-301", all[0].PlateNumber)

	available, total, err := vehicles.List(ctx, model.VehicleAvailable, 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, available, 2)
}
