package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Eissaali11/nuzum-edut-sub003/internal/model"
)

func submitHandover(t *testing.T, ops *OperationService, vehicleID uint, handoverType, person string, requestedBy uint) *model.OperationRequest {
	t.Helper()
	operation, err := ops.Submit(context.Background(), &model.SubmitOperationRequest{
		OperationType: model.OperationHandover,
		VehicleID:     vehicleID,
		Title:         "Handover " + person,
		Handover: &model.HandoverRecord{
			HandoverType: handoverType,
			PersonName:   person,
		},
	}, requestedBy)
	require.NoError(t, err)
	return operation
}

func TestSubmitHandoverCreatesPendingRequest(t *testing.T) {
	db := newTestDB(t)
	vehicle := createVehicle(t, db, "ABC-1234")
	admin := createUser(t, db, "admin1", model.RoleAdmin)
	requester := createUser(t, db, "driver1", model.RoleUser)
	ops, _, _ := newOperationStack(db)

	operation := submitHandover(t, ops, vehicle.ID, model.HandoverDelivery, "Ahmed Ali", requester.ID)

	assert.Equal(t, model.OperationPending, operation.Status)
	assert.Equal(t, model.PriorityNormal, operation.Priority)
	assert.NotZero(t, operation.RelatedRecordID)

	// related record exists but the vehicle is untouched until approval
	var handover model.HandoverRecord
	require.NoError(t, db.First(&handover, operation.RelatedRecordID).Error)
	assert.Equal(t, "Ahmed Ali", handover.PersonName)

	var fresh model.Vehicle
	require.NoError(t, db.First(&fresh, vehicle.ID).Error)
	assert.Equal(t, model.VehicleAvailable, fresh.Status)
	assert.Nil(t, fresh.DriverName)

	// admins were notified inside the submit transaction
	var n model.Notification
	require.NoError(t, db.Where("user_id = ?", admin.ID).First(&n).Error)
	assert.Equal(t, model.NotificationOperationSubmitted, n.Kind)
}

func TestSubmitValidation(t *testing.T) {
	db := newTestDB(t)
	vehicle := createVehicle(t, db, "ABC-2345")
	ops, _, _ := newOperationStack(db)
	ctx := context.Background()

	cases := []*model.SubmitOperationRequest{
		{OperationType: model.OperationHandover, VehicleID: vehicle.ID, Title: "x"}, // missing payload
		{OperationType: model.OperationHandover, VehicleID: vehicle.ID, Title: "x",
			Handover: &model.HandoverRecord{HandoverType: "loan", PersonName: "A"}}, // bad type
		{OperationType: model.OperationHandover, VehicleID: vehicle.ID, Title: "x",
			Handover: &model.HandoverRecord{HandoverType: model.HandoverDelivery}}, // missing person
		{OperationType: model.OperationWorkshop, VehicleID: vehicle.ID, Title: "x"}, // missing payload
		{OperationType: "repaint", VehicleID: vehicle.ID, Title: "x"},               // unknown type
		{OperationType: model.OperationHandover, VehicleID: vehicle.ID, Title: "x", Priority: "asap",
			Handover: &model.HandoverRecord{HandoverType: model.HandoverDelivery, PersonName: "A"}},
	}
	for _, req := range cases {
		_, err := ops.Submit(ctx, req, 1)
		assert.ErrorIs(t, err, model.ErrValidation, "request %+v", req)
	}

	// unknown vehicle
	_, err := ops.Submit(ctx, &model.SubmitOperationRequest{
		OperationType: model.OperationSafetyInspection, VehicleID: 9999, Title: "x",
	}, 1)
	assert.ErrorIs(t, err, model.ErrNotFound)

	// nothing leaked from the failed submits
	var requests, handovers int64
	db.Model(&model.OperationRequest{}).Count(&requests)
	db.Model(&model.HandoverRecord{}).Count(&handovers)
	assert.EqualValues(t, 0, requests)
	assert.EqualValues(t, 0, handovers)
}

func TestApproveReconcilesVehicle(t *testing.T) {
	db := newTestDB(t)
	vehicle := createVehicle(t, db, "ABC-3456")
	requester := createUser(t, db, "driver2", model.RoleUser)
	reviewer := createUser(t, db, "admin2", model.RoleAdmin)
	ops, _, _ := newOperationStack(db)
	ctx := context.Background()

	operation := submitHandover(t, ops, vehicle.ID, model.HandoverDelivery, "Saleh Omar", requester.ID)

	decided, err := ops.Approve(ctx, operation.ID, reviewer.ID, "ok")
	require.NoError(t, err)
	assert.Equal(t, model.OperationApproved, decided.Status)
	require.NotNil(t, decided.ReviewedBy)
	assert.Equal(t, reviewer.ID, *decided.ReviewedBy)
	assert.NotNil(t, decided.ReviewedAt)

	var fresh model.Vehicle
	require.NoError(t, db.First(&fresh, vehicle.ID).Error)
	assert.Equal(t, model.VehicleInProject, fresh.Status)
	require.NotNil(t, fresh.DriverName)
	assert.Equal(t, "Saleh Omar", *fresh.DriverName)

	// requester was told
	var n model.Notification
	require.NoError(t, db.Where("user_id = ? AND kind = ?", requester.ID, model.NotificationOperationApproved).First(&n).Error)
}

func TestRejectDeletesRelatedRecord(t *testing.T) {
	db := newTestDB(t)
	vehicle := createVehicle(t, db, "ABC-4567")
	requester := createUser(t, db, "driver3", model.RoleUser)
	ops, _, _ := newOperationStack(db)
	ctx := context.Background()

	operation := submitHandover(t, ops, vehicle.ID, model.HandoverDelivery, "Faisal", requester.ID)

	// notes are mandatory for rejection
	_, err := ops.Reject(ctx, operation.ID, 1, "")
	assert.ErrorIs(t, err, model.ErrValidation)

	decided, err := ops.Reject(ctx, operation.ID, 1, "wrong vehicle")
	require.NoError(t, err)
	assert.Equal(t, model.OperationRejected, decided.Status)
	assert.Equal(t, "wrong vehicle", decided.ReviewNotes)

	// the proposed record is gone, the request row stays as a tombstone
	var handovers int64
	db.Model(&model.HandoverRecord{}).Where("id = ?", operation.RelatedRecordID).Count(&handovers)
	assert.EqualValues(t, 0, handovers)
	var tombstone model.OperationRequest
	require.NoError(t, db.First(&tombstone, operation.ID).Error)

	// the rejected proposal never touched the vehicle
	var fresh model.Vehicle
	require.NoError(t, db.First(&fresh, vehicle.ID).Error)
	assert.Equal(t, model.VehicleAvailable, fresh.Status)
}

func TestTransitionRules(t *testing.T) {
	db := newTestDB(t)
	vehicle := createVehicle(t, db, "ABC-5678")
	ops, _, _ := newOperationStack(db)
	ctx := context.Background()

	operation := submitHandover(t, ops, vehicle.ID, model.HandoverDelivery, "Omar", 1)

	// pending -> under_review -> approved
	reviewed, err := ops.SetUnderReview(ctx, operation.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, model.OperationUnderReview, reviewed.Status)

	// under_review -> under_review is not a legal move
	_, err = ops.SetUnderReview(ctx, operation.ID, 2)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)

	_, err = ops.Approve(ctx, operation.ID, 2, "")
	require.NoError(t, err)

	// terminal states refuse every further decision
	_, err = ops.Approve(ctx, operation.ID, 2, "")
	assert.ErrorIs(t, err, model.ErrAlreadyDecided)
	_, err = ops.Reject(ctx, operation.ID, 2, "no")
	assert.ErrorIs(t, err, model.ErrAlreadyDecided)
	_, err = ops.SetUnderReview(ctx, operation.ID, 2)
	assert.ErrorIs(t, err, model.ErrAlreadyDecided)

	// unknown request
	_, err = ops.Approve(ctx, 9999, 2, "")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestWorkshopApprovalFlow(t *testing.T) {
	db := newTestDB(t)
	vehicle := createVehicle(t, db, "ABC-6789")
	ops, _, _ := newOperationStack(db)
	ctx := context.Background()

	// put a driver on the vehicle first
	delivery := submitHandover(t, ops, vehicle.ID, model.HandoverDelivery, "Khalid", 1)
	_, err := ops.Approve(ctx, delivery.ID, 2, "")
	require.NoError(t, err)

	operation, err := ops.Submit(ctx, &model.SubmitOperationRequest{
		OperationType: model.OperationWorkshop,
		VehicleID:     vehicle.ID,
		Title:         "Brake service",
		Workshop:      &model.WorkshopRecord{WorkshopName: "Al-Futtaim", Reason: "brakes"},
	}, 1)
	require.NoError(t, err)

	_, err = ops.Approve(ctx, operation.ID, 2, "")
	require.NoError(t, err)

	// workshop overrides the handover status but keeps the driver
	var fresh model.Vehicle
	require.NoError(t, db.First(&fresh, vehicle.ID).Error)
	assert.Equal(t, model.VehicleInWorkshop, fresh.Status)
	require.NotNil(t, fresh.DriverName)
	assert.Equal(t, "Khalid", *fresh.DriverName)
}

func TestExternalAuthorizationCarriesNoRecord(t *testing.T) {
	db := newTestDB(t)
	vehicle := createVehicle(t, db, "ABC-7890")
	ops, _, _ := newOperationStack(db)
	ctx := context.Background()

	operation, err := ops.Submit(ctx, &model.SubmitOperationRequest{
		OperationType: model.OperationExternalAuthorization,
		VehicleID:     vehicle.ID,
		Title:         "Border crossing permit",
	}, 1)
	require.NoError(t, err)
	assert.Equal(t, vehicle.ID, operation.RelatedRecordID)

	_, err = ops.Approve(ctx, operation.ID, 2, "")
	require.NoError(t, err)

	// approval reconciles but there is nothing to derive from
	var fresh model.Vehicle
	require.NoError(t, db.First(&fresh, vehicle.ID).Error)
	assert.Equal(t, model.VehicleAvailable, fresh.Status)
}

func TestListOperations(t *testing.T) {
	db := newTestDB(t)
	vehicle := createVehicle(t, db, "ABC-8901")
	ops, _, _ := newOperationStack(db)
	ctx := context.Background()

	first := submitHandover(t, ops, vehicle.ID, model.HandoverDelivery, "A", 1)
	time.Sleep(5 * time.Millisecond)
	submitHandover(t, ops, vehicle.ID, model.HandoverReturn, "A", 1)

	_, err := ops.Approve(ctx, first.ID, 2, "")
	require.NoError(t, err)

	pending, total, err := ops.List(ctx, model.OperationPending, "", 1, 20)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, pending, 1)
	assert.Equal(t, model.OperationPending, pending[0].Status)

	all, total, err := ops.List(ctx, "", "", 1, 20)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, all, 2)
	// newest first
	assert.True(t, !all[0].RequestedAt.Before(all[1].RequestedAt))
}
