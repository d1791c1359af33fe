package service

import (
	"encoding/json"

	"gorm.io/gorm"

	"github.com/Eissaali11/nuzum-edut-sub003/internal/model"
)

// AuditService writes the append-only audit trail. Records go through the
// caller's transaction so a failed audit write fails the state change with it.
type AuditService struct{}

// NewAuditService creates a new audit service
func NewAuditService() *AuditService {
	return &AuditService{}
}

// Record writes one audit record inside the given transaction
func (s *AuditService) Record(tx *gorm.DB, rec *model.AuditRecord) error {
	return tx.Create(rec).Error
}

// RecordChange writes an audit record with JSON-encoded before/after state
func (s *AuditService) RecordChange(tx *gorm.DB, actor *uint, action, entityType string, entityID uint, entityName string, previous, next interface{}) error {
	rec := &model.AuditRecord{
		ActorUserID: actor,
		Action:      action,
		EntityType:  entityType,
		EntityID:    entityID,
		EntityName:  entityName,
	}
	if previous != nil {
		if data, err := json.Marshal(previous); err == nil {
			rec.PreviousData = string(data)
		}
	}
	if next != nil {
		if data, err := json.Marshal(next); err == nil {
			rec.NewData = string(data)
		}
	}
	return tx.Create(rec).Error
}
