package model

import (
	"time"

	"gorm.io/gorm"
)

// Vehicle status values. Status and DriverName are derived fields: only the
// reconciler may write them, except the out_of_service manual override.
const (
	VehicleAvailable    = "available"
	VehicleInProject    = "in_project"
	VehicleInWorkshop   = "in_workshop"
	VehicleAccident     = "accident"
	VehicleRented       = "rented"
	VehicleOutOfService = "out_of_service"
)

// Vehicle represents a fleet vehicle
type Vehicle struct {
	ID          uint           `json:"id" gorm:"primaryKey"`
	PlateNumber string         `json:"plate_number" gorm:"uniqueIndex;size:20;not null"`
	Brand       string         `json:"brand,omitempty" gorm:"size:50"`
	Model       string         `json:"model,omitempty" gorm:"size:50"`
	Color       string         `json:"color,omitempty" gorm:"size:20"`
	Year        int            `json:"year,omitempty"`
	Status      string         `json:"status" gorm:"size:20;default:'available'"`
	DriverName  *string        `json:"driver_name,omitempty" gorm:"size:200"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-" gorm:"index"`
}

// Handover types
const (
	HandoverDelivery = "delivery"
	HandoverReturn   = "return"
)

// HandoverRecord documents a vehicle passing to or from a driver.
// Append-only once its gating OperationRequest is approved; deleted only when
// that request is rejected.
type HandoverRecord struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	VehicleID    uint      `json:"vehicle_id" gorm:"not null;index"`
	Vehicle      *Vehicle  `json:"vehicle,omitempty"`
	HandoverType string    `json:"handover_type" gorm:"size:20;not null"` // delivery, return
	HandoverDate time.Time `json:"handover_date" gorm:"not null"`
	PersonName   string    `json:"person_name" gorm:"size:200;not null"`
	EmployeeID   *uint     `json:"employee_id,omitempty"`
	Mileage      int       `json:"mileage"`
	FuelLevel    string    `json:"fuel_level,omitempty" gorm:"size:20"`
	Notes        string    `json:"notes,omitempty"`
	CreatedAt    time.Time `json:"created_at" gorm:"index"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// WorkshopRecord is a workshop ticket; open while exit_date is null
type WorkshopRecord struct {
	ID           uint       `json:"id" gorm:"primaryKey"`
	VehicleID    uint       `json:"vehicle_id" gorm:"not null;index"`
	Vehicle      *Vehicle   `json:"vehicle,omitempty"`
	EntryDate    time.Time  `json:"entry_date" gorm:"not null"`
	ExitDate     *time.Time `json:"exit_date,omitempty"`
	Reason       string     `json:"reason,omitempty"`
	WorkshopName string     `json:"workshop_name,omitempty" gorm:"size:200"`
	Cost         float64    `json:"cost,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Accident record status values
const (
	AccidentOpen   = "open"
	AccidentClosed = "closed"
)

// AccidentRecord tracks a vehicle accident until it is closed
type AccidentRecord struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	VehicleID    uint      `json:"vehicle_id" gorm:"not null;index"`
	AccidentDate time.Time `json:"accident_date" gorm:"not null"`
	Status       string    `json:"status" gorm:"size:20;default:'open'"` // open, closed
	Description  string    `json:"description,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// RentalRecord marks a vehicle as rented out for a period; active while
// end_date is null or in the future
type RentalRecord struct {
	ID         uint       `json:"id" gorm:"primaryKey"`
	VehicleID  uint       `json:"vehicle_id" gorm:"not null;index"`
	StartDate  time.Time  `json:"start_date" gorm:"not null"`
	EndDate    *time.Time `json:"end_date,omitempty"`
	RenterName string     `json:"renter_name,omitempty" gorm:"size:200"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// IsActiveAt reports whether the rental covers the given instant
func (r *RentalRecord) IsActiveAt(t time.Time) bool {
	if t.Before(r.StartDate) {
		return false
	}
	return r.EndDate == nil || r.EndDate.After(t)
}
