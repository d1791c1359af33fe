package model

import (
	"time"
)

// Audit actions
const (
	AuditSessionOpen         = "session.open"
	AuditSessionClose        = "session.close"
	AuditOperationSubmit     = "operation.submit"
	AuditOperationReview     = "operation.review"
	AuditOperationApprove    = "operation.approve"
	AuditOperationReject     = "operation.reject"
	AuditVehicleCreate       = "vehicle.create"
	AuditVehicleOutOfService = "vehicle.out_of_service"
	AuditVehicleReconcile    = "vehicle.reconcile"
	AuditZoneCreate          = "zone.create"
	AuditZoneUpdate          = "zone.update"
	AuditZoneDeactivate      = "zone.deactivate"
)

// AuditRecord is one append-only entry of the audit trail. It is written in
// the same transaction as the state change it describes.
type AuditRecord struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	ActorUserID  *uint     `json:"actor_user_id,omitempty" gorm:"index"`
	Action       string    `json:"action" gorm:"size:50;not null;index"`
	EntityType   string    `json:"entity_type" gorm:"size:50;not null;index"`
	EntityID     uint      `json:"entity_id" gorm:"index"`
	EntityName   string    `json:"entity_name,omitempty" gorm:"size:200"`
	PreviousData string    `json:"previous_data,omitempty" gorm:"type:text"`
	NewData      string    `json:"new_data,omitempty" gorm:"type:text"`
	Details      string    `json:"details,omitempty" gorm:"type:text"`
	IP           string    `json:"ip,omitempty" gorm:"size:45"`
	CreatedAt    time.Time `json:"timestamp" gorm:"index"`
}

func (AuditRecord) TableName() string {
	return "audit_records"
}
