package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
	"gorm.io/gorm"

	"github.com/Eissaali11/nuzum-edut-sub003/internal/model"
)

// SubjectOperationDecided is the NATS subject operation decisions are
// published on
const SubjectOperationDecided = "nuzum.operation.decided"

// OperationService runs the approval workflow that gates mutating fleet
// operations. A proposed record takes effect only after its request is
// approved; rejection deletes the proposal so it leaves no trace in derived
// state.
type OperationService struct {
	db         *gorm.DB
	nats       *nats.Conn
	audit      *AuditService
	notifier   *NotificationService
	reconciler *Reconciler
	locks      *KeyedLocker
}

// NewOperationService creates a new operation workflow service
func NewOperationService(db *gorm.DB, natsConn *nats.Conn, audit *AuditService, notifier *NotificationService, reconciler *Reconciler, locks *KeyedLocker) *OperationService {
	return &OperationService{
		db:         db,
		nats:       natsConn,
		audit:      audit,
		notifier:   notifier,
		reconciler: reconciler,
		locks:      locks,
	}
}

// Submit atomically inserts the proposed record and its pending operation
// request, then fans out notifications to all admins.
func (s *OperationService) Submit(ctx context.Context, req *model.SubmitOperationRequest, requestedBy uint) (*model.OperationRequest, error) {
	if req.Priority == "" {
		req.Priority = model.PriorityNormal
	}
	switch req.Priority {
	case model.PriorityLow, model.PriorityNormal, model.PriorityHigh, model.PriorityUrgent:
	default:
		return nil, model.ValidationError("unknown priority %q", req.Priority)
	}

	var vehicle model.Vehicle
	if err := s.db.First(&vehicle, req.VehicleID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.NotFoundError("vehicle", req.VehicleID)
		}
		return nil, model.TransientError(err)
	}

	operation := model.OperationRequest{
		OperationType: req.OperationType,
		VehicleID:     req.VehicleID,
		Title:         req.Title,
		Description:   req.Description,
		RequestedBy:   requestedBy,
		RequestedAt:   time.Now().UTC(),
		Status:        model.OperationPending,
		Priority:      req.Priority,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		relatedID, err := s.createRelatedRecord(tx, req)
		if err != nil {
			return err
		}
		operation.RelatedRecordID = relatedID

		if err := tx.Create(&operation).Error; err != nil {
			return classifyDBError(err)
		}

		if err := s.audit.RecordChange(tx, &requestedBy, model.AuditOperationSubmit, "operation_request", operation.ID, operation.Title, nil, &operation); err != nil {
			return model.TransientError(err)
		}

		return s.notifier.EnqueueForAdminsTx(tx, &operation.ID, model.NotificationOperationSubmitted,
			operation.Title, fmt.Sprintf("New %s request for vehicle %s awaits review", operation.OperationType, vehicle.PlateNumber))
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[Operation] Submitted %s request %d for vehicle %d", operation.OperationType, operation.ID, operation.VehicleID)
	return &operation, nil
}

// createRelatedRecord persists the proposed record for the request type
func (s *OperationService) createRelatedRecord(tx *gorm.DB, req *model.SubmitOperationRequest) (uint, error) {
	switch req.OperationType {
	case model.OperationHandover:
		if req.Handover == nil {
			return 0, model.ValidationError("handover payload is required")
		}
		h := req.Handover
		h.VehicleID = req.VehicleID
		if h.HandoverType != model.HandoverDelivery && h.HandoverType != model.HandoverReturn {
			return 0, model.ValidationError("handover_type must be delivery or return")
		}
		if h.PersonName == "" {
			return 0, model.ValidationError("person_name is required")
		}
		if h.HandoverDate.IsZero() {
			h.HandoverDate = time.Now().UTC()
		}
		if err := tx.Create(h).Error; err != nil {
			return 0, model.TransientError(err)
		}
		return h.ID, nil

	case model.OperationWorkshop:
		if req.Workshop == nil {
			return 0, model.ValidationError("workshop payload is required")
		}
		w := req.Workshop
		w.VehicleID = req.VehicleID
		if w.EntryDate.IsZero() {
			w.EntryDate = time.Now().UTC()
		}
		if err := tx.Create(w).Error; err != nil {
			return 0, model.TransientError(err)
		}
		return w.ID, nil

	case model.OperationExternalAuthorization, model.OperationSafetyInspection:
		// these operations carry no core-side record; the request itself is
		// the proposal and downstream systems act on the decision message
		return req.VehicleID, nil

	default:
		return 0, model.ValidationError("unknown operation_type %q", req.OperationType)
	}
}

// SetUnderReview moves a pending request to under_review and notifies the
// requester
func (s *OperationService) SetUnderReview(ctx context.Context, id, reviewer uint) (*model.OperationRequest, error) {
	return s.transition(ctx, id, reviewer, "", model.OperationUnderReview)
}

// Approve finalizes the request and reconciles the vehicle's derived state.
// Approval commits even when reconciliation fails: the approval is a human
// act and the reconciler is idempotent, so the failure only queues a retry.
func (s *OperationService) Approve(ctx context.Context, id, reviewer uint, notes string) (*model.OperationRequest, error) {
	operation, err := s.transition(ctx, id, reviewer, notes, model.OperationApproved)
	if err != nil {
		return nil, err
	}

	if err := s.reconciler.Reconcile(ctx, operation.VehicleID); err != nil {
		log.Printf("[Operation] Reconcile after approval of %d failed, queued for retry: %v", id, err)
		s.reconciler.EnqueueRetry(operation.VehicleID)
	}

	s.publishDecision(operation)
	return operation, nil
}

// Reject finalizes the request and deletes the proposed record in the same
// transaction. If the delete fails the whole rejection is aborted.
func (s *OperationService) Reject(ctx context.Context, id, reviewer uint, notes string) (*model.OperationRequest, error) {
	if notes == "" {
		return nil, model.ValidationError("review_notes are required to reject")
	}

	operation, err := s.transition(ctx, id, reviewer, notes, model.OperationRejected)
	if err != nil {
		return nil, err
	}

	s.publishDecision(operation)
	return operation, nil
}

// transition applies one state change under the per-request lock, with an
// optimistic status guard inside the transaction
func (s *OperationService) transition(ctx context.Context, id, reviewer uint, notes, target string) (*model.OperationRequest, error) {
	key := OperationLockKey(id)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	var operation model.OperationRequest
	if err := s.db.First(&operation, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.NotFoundError("operation request", id)
		}
		return nil, model.TransientError(err)
	}

	if operation.IsTerminal() {
		return nil, fmt.Errorf("%w: operation %d is %s", model.ErrAlreadyDecided, id, operation.Status)
	}
	if !validTransition(operation.Status, target) {
		return nil, fmt.Errorf("%w: %s -> %s", model.ErrInvalidTransition, operation.Status, target)
	}

	before := operation
	now := time.Now().UTC()

	err := s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.OperationRequest{}).
			Where("id = ? AND status = ?", id, operation.Status).
			Updates(map[string]interface{}{
				"status":       target,
				"reviewed_by":  reviewer,
				"reviewed_at":  now,
				"review_notes": notes,
			})
		if res.Error != nil {
			return model.TransientError(res.Error)
		}
		if res.RowsAffected == 0 {
			// concurrent transition slipped in between load and update
			return model.ErrConflict
		}

		operation.Status = target
		operation.ReviewedBy = &reviewer
		operation.ReviewedAt = &now
		operation.ReviewNotes = notes

		if target == model.OperationRejected {
			if err := s.deleteRelatedRecord(tx, &operation); err != nil {
				return err
			}
		}

		action := model.AuditOperationReview
		switch target {
		case model.OperationApproved:
			action = model.AuditOperationApprove
		case model.OperationRejected:
			action = model.AuditOperationReject
		}
		if err := s.audit.RecordChange(tx, &reviewer, action, "operation_request", operation.ID, operation.Title, &before, &operation); err != nil {
			return model.TransientError(err)
		}

		kind := model.NotificationOperationReviewing
		message := fmt.Sprintf("Your %s request is under review", operation.OperationType)
		switch target {
		case model.OperationApproved:
			kind = model.NotificationOperationApproved
			message = fmt.Sprintf("Your %s request was approved", operation.OperationType)
		case model.OperationRejected:
			kind = model.NotificationOperationRejected
			message = fmt.Sprintf("Your %s request was rejected: %s", operation.OperationType, notes)
		}
		return s.notifier.EnqueueTx(tx, &operation.ID, []uint{operation.RequestedBy}, kind, operation.Title, message)
	})
	if err != nil {
		return nil, err
	}

	return &operation, nil
}

// deleteRelatedRecord removes the proposed record of a rejected request. The
// request row is kept as a tombstone.
func (s *OperationService) deleteRelatedRecord(tx *gorm.DB, operation *model.OperationRequest) error {
	switch operation.OperationType {
	case model.OperationHandover:
		res := tx.Delete(&model.HandoverRecord{}, operation.RelatedRecordID)
		if res.Error != nil {
			return model.TransientError(res.Error)
		}
	case model.OperationWorkshop:
		res := tx.Delete(&model.WorkshopRecord{}, operation.RelatedRecordID)
		if res.Error != nil {
			return model.TransientError(res.Error)
		}
	}
	return nil
}

// GetByID returns one operation request
func (s *OperationService) GetByID(ctx context.Context, id uint) (*model.OperationRequest, error) {
	var operation model.OperationRequest
	if err := s.db.Preload("Vehicle").First(&operation, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.NotFoundError("operation request", id)
		}
		return nil, model.TransientError(err)
	}
	return &operation, nil
}

// List returns operation requests filtered by status and priority
func (s *OperationService) List(ctx context.Context, status, priority string, page, pageSize int) ([]model.OperationRequest, int64, error) {
	query := s.db.Model(&model.OperationRequest{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if priority != "" {
		query = query.Where("priority = ?", priority)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, model.TransientError(err)
	}

	var operations []model.OperationRequest
	offset := (page - 1) * pageSize
	if err := query.Order("requested_at DESC").Offset(offset).Limit(pageSize).Find(&operations).Error; err != nil {
		return nil, 0, model.TransientError(err)
	}

	return operations, total, nil
}

// publishDecision announces a terminal decision on NATS
func (s *OperationService) publishDecision(operation *model.OperationRequest) {
	if s.nats == nil {
		return
	}
	msg := model.OperationDecisionMessage{
		OperationID:   operation.ID,
		OperationType: operation.OperationType,
		VehicleID:     operation.VehicleID,
		Status:        operation.Status,
		Title:         operation.Title,
		Notes:         operation.ReviewNotes,
	}
	if operation.ReviewedBy != nil {
		msg.ReviewedBy = *operation.ReviewedBy
	}
	data, err := json.Marshal(&msg)
	if err != nil {
		return
	}
	if err := s.nats.Publish(SubjectOperationDecided, data); err != nil {
		log.Printf("[Operation] Failed to publish decision for %d: %v", operation.ID, err)
	}
}

// validTransition encodes the state machine: pending may move to any other
// state, under_review only to a terminal one
func validTransition(from, to string) bool {
	switch from {
	case model.OperationPending:
		return to == model.OperationUnderReview || to == model.OperationApproved || to == model.OperationRejected
	case model.OperationUnderReview:
		return to == model.OperationApproved || to == model.OperationRejected
	default:
		return false
	}
}
