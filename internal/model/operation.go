package model

import (
	"time"
)

// Operation request states. approved and rejected are terminal.
const (
	OperationPending     = "pending"
	OperationUnderReview = "under_review"
	OperationApproved    = "approved"
	OperationRejected    = "rejected"
)

// Operation types
const (
	OperationHandover              = "handover"
	OperationWorkshop              = "workshop"
	OperationExternalAuthorization = "external_authorization"
	OperationSafetyInspection      = "safety_inspection"
)

// Operation priorities
const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// OperationRequest gates a proposed fleet mutation behind explicit approval.
// Exactly one request exists per (operation_type, related_record_id). The row
// is never deleted; after rejection the related record id dangles as a
// tombstone.
type OperationRequest struct {
	ID              uint       `json:"id" gorm:"primaryKey"`
	OperationType   string     `json:"operation_type" gorm:"size:50;not null;uniqueIndex:idx_operation_type_record"`
	RelatedRecordID uint       `json:"related_record_id" gorm:"not null;uniqueIndex:idx_operation_type_record"`
	VehicleID       uint       `json:"vehicle_id" gorm:"not null;index"`
	Vehicle         *Vehicle   `json:"vehicle,omitempty"`
	Title           string     `json:"title" gorm:"size:200;not null"`
	Description     string     `json:"description,omitempty"`
	RequestedBy     uint       `json:"requested_by" gorm:"not null"`
	RequestedAt     time.Time  `json:"requested_at"`
	Status          string     `json:"status" gorm:"size:20;default:'pending';index"` // pending, under_review, approved, rejected
	ReviewedBy      *uint      `json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time `json:"reviewed_at,omitempty"`
	ReviewNotes     string     `json:"review_notes,omitempty"`
	Priority        string     `json:"priority" gorm:"size:20;default:'normal'"` // low, normal, high, urgent
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// IsTerminal reports whether the request has been decided
func (o *OperationRequest) IsTerminal() bool {
	return o.Status == OperationApproved || o.Status == OperationRejected
}

// Notification kinds
const (
	NotificationOperationSubmitted = "operation_submitted"
	NotificationOperationReviewing = "operation_reviewing"
	NotificationOperationApproved  = "operation_approved"
	NotificationOperationRejected  = "operation_rejected"
	NotificationZoneEntry          = "zone_entry"
	NotificationZoneExit           = "zone_exit"
)

// Notification is one in-app message for one user
type Notification struct {
	ID                 uint       `json:"id" gorm:"primaryKey"`
	OperationRequestID *uint      `json:"operation_request_id,omitempty" gorm:"index"`
	UserID             uint       `json:"user_id" gorm:"not null;index"`
	Kind               string     `json:"kind" gorm:"size:50;not null"`
	Title              string     `json:"title" gorm:"size:200"`
	Message            string     `json:"message"`
	IsRead             bool       `json:"is_read" gorm:"default:false;index"`
	DeliveryAttempts   int        `json:"delivery_attempts" gorm:"default:0"`
	DeliveredAt        *time.Time `json:"delivered_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	ReadAt             *time.Time `json:"read_at,omitempty"`
}

// SubmitOperationRequest is the POST /operations payload. The related-record
// payload travels with the meta so the insert is atomic.
type SubmitOperationRequest struct {
	OperationType string          `json:"operation_type" binding:"required"`
	VehicleID     uint            `json:"vehicle_id" binding:"required"`
	Title         string          `json:"title" binding:"required"`
	Description   string          `json:"description"`
	Priority      string          `json:"priority"`
	Handover      *HandoverRecord `json:"handover,omitempty"`
	Workshop      *WorkshopRecord `json:"workshop,omitempty"`
}

// ReviewRequest carries the reviewer's decision payload
type ReviewRequest struct {
	Notes string `json:"review_notes"`
}

// OperationDecisionMessage is published to NATS when a request is decided
type OperationDecisionMessage struct {
	OperationID   uint   `json:"operation_id"`
	OperationType string `json:"operation_type"`
	VehicleID     uint   `json:"vehicle_id"`
	Status        string `json:"status"`
	ReviewedBy    uint   `json:"reviewed_by"`
	Title         string `json:"title"`
	Notes         string `json:"notes,omitempty"`
}

// GeofenceEventMessage is published to NATS for every enter/exit event
type GeofenceEventMessage struct {
	ZoneID     uint    `json:"zone_id"`
	ZoneName   string  `json:"zone_name"`
	EmployeeID uint    `json:"employee_id"`
	EventType  string  `json:"event_type"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	DistanceM  int     `json:"distance_m"`
	RecordedAt int64   `json:"recorded_at"`
}
