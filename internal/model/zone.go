package model

import (
	"time"

	"gorm.io/gorm"
)

// Geofence event types
const (
	EventEnter   = "enter"
	EventExit    = "exit"
	EventCheckIn = "check_in"
)

// Geofence event sources
const (
	SourceAuto   = "auto"
	SourceManual = "manual"
)

// Zone represents a circular geofence owned by a department
type Zone struct {
	ID                        uint           `json:"id" gorm:"primaryKey"`
	Name                      string         `json:"name" gorm:"size:200;not null"`
	Type                      string         `json:"type" gorm:"size:50;default:'project'"`
	Description               string         `json:"description,omitempty"`
	CenterLat                 float64        `json:"center_lat" gorm:"not null"`
	CenterLon                 float64        `json:"center_lon" gorm:"not null"`
	RadiusMeters              int            `json:"radius_m" gorm:"not null"`
	Color                     string         `json:"color" gorm:"size:20;default:'#667eea'"`
	IsActive                  bool           `json:"is_active" gorm:"default:true"`
	DepartmentID              uint           `json:"department_id" gorm:"not null;index"`
	Department                *Department    `json:"department,omitempty"`
	NotifyOnEntry             bool           `json:"notify_on_entry" gorm:"default:false"`
	NotifyOnExit              bool           `json:"notify_on_exit" gorm:"default:false"`
	AttendanceStartTime       string         `json:"attendance_start_time" gorm:"size:5;default:'08:00'"` // HH:MM wall clock
	AttendanceRequiredMinutes int            `json:"attendance_required_minutes" gorm:"default:30"`
	AssignedEmployees         []Employee     `json:"assigned_employees,omitempty" gorm:"many2many:employee_zones;"`
	CreatedBy                 *uint          `json:"created_by,omitempty"`
	CreatedAt                 time.Time      `json:"created_at"`
	UpdatedAt                 time.Time      `json:"updated_at"`
	DeletedAt                 gorm.DeletedAt `json:"-" gorm:"index"`
}

// EmployeeZone is the explicit join row assigning employees to a zone
type EmployeeZone struct {
	EmployeeID uint `json:"employee_id" gorm:"primaryKey"`
	ZoneID     uint `json:"zone_id" gorm:"primaryKey"`
}

func (EmployeeZone) TableName() string {
	return "employee_zones"
}

// LocationSample is one GPS fix reported by an employee's device. Append-only.
type LocationSample struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	EmployeeID uint      `json:"employee_id" gorm:"not null;index:idx_samples_employee_recorded"`
	Lat        float64   `json:"lat" gorm:"not null"`
	Lon        float64   `json:"lon" gorm:"not null"`
	AccuracyM  *float64  `json:"accuracy_m,omitempty"`
	SpeedKmh   *float64  `json:"speed_kmh,omitempty"`
	RecordedAt time.Time `json:"recorded_at" gorm:"not null;index:idx_samples_employee_recorded"` // device clock, ordering key
	ReceivedAt time.Time `json:"received_at" gorm:"not null"`                                     // server clock
	VehicleID  *uint     `json:"vehicle_id,omitempty"`
}

// GeofenceEvent is an instantaneous enter/exit/check_in record. Append-only.
type GeofenceEvent struct {
	ID                 uint      `json:"id" gorm:"primaryKey"`
	ZoneID             uint      `json:"zone_id" gorm:"not null;index"`
	EmployeeID         uint      `json:"employee_id" gorm:"not null;index"`
	Zone               *Zone     `json:"zone,omitempty"`
	Employee           *Employee `json:"employee,omitempty"`
	EventType          string    `json:"event_type" gorm:"size:30;not null"` // enter, exit, check_in
	Lat                float64   `json:"lat"`
	Lon                float64   `json:"lon"`
	DistanceFromCenter int       `json:"distance_from_center_m"`
	RecordedAt         time.Time `json:"recorded_at" gorm:"index"`
	Source             string    `json:"source" gorm:"size:20;default:'auto'"` // auto, manual
	Notes              string    `json:"notes,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

// GeofenceSession is a continuous interval an employee was inside a zone.
// At most one active session per (zone, employee); active iff exit_time is null.
type GeofenceSession struct {
	ID              uint       `json:"id" gorm:"primaryKey"`
	ZoneID          uint       `json:"zone_id" gorm:"not null;index:idx_sessions_zone_employee"`
	EmployeeID      uint       `json:"employee_id" gorm:"not null;index:idx_sessions_zone_employee"`
	EntryEventID    uint       `json:"entry_event_id"`
	ExitEventID     *uint      `json:"exit_event_id,omitempty"`
	EntryTime       time.Time  `json:"entry_time" gorm:"not null;index"`
	ExitTime        *time.Time `json:"exit_time,omitempty"`
	DurationMinutes *int       `json:"duration_minutes,omitempty"`
	IsActive        bool       `json:"is_active" gorm:"default:true;index"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Close finalizes the session at the given exit time
func (s *GeofenceSession) Close(exitEventID uint, exitTime time.Time) {
	s.ExitEventID = &exitEventID
	s.ExitTime = &exitTime
	minutes := int(exitTime.Sub(s.EntryTime).Minutes())
	s.DurationMinutes = &minutes
	s.IsActive = false
}

// GeofenceAttendance is the per-(zone, employee, date) daily summary.
// Morning slot is the first entry before noon local time, evening the first after.
type GeofenceAttendance struct {
	ID             uint       `json:"id" gorm:"primaryKey"`
	ZoneID         uint       `json:"zone_id" gorm:"not null;uniqueIndex:idx_attendance_zone_employee_date"`
	EmployeeID     uint       `json:"employee_id" gorm:"not null;uniqueIndex:idx_attendance_zone_employee_date"`
	AttendanceDate string     `json:"attendance_date" gorm:"size:10;not null;uniqueIndex:idx_attendance_zone_employee_date"` // YYYY-MM-DD local
	MorningEntry   *time.Time `json:"morning_entry,omitempty"`
	EveningEntry   *time.Time `json:"evening_entry,omitempty"`
	Notes          string     `json:"notes,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// IngestRequest is the POST /locations payload
type IngestRequest struct {
	EmployeeID uint       `json:"employee_id" binding:"required"`
	Lat        float64    `json:"lat"`
	Lon        float64    `json:"lon"`
	AccuracyM  *float64   `json:"accuracy_m,omitempty"`
	SpeedKmh   *float64   `json:"speed_kmh,omitempty"`
	RecordedAt *time.Time `json:"recorded_at,omitempty"`
	VehicleID  *uint      `json:"vehicle_id,omitempty"`
}

// Connection status buckets derived from sample staleness
const (
	ConnectionConnected      = "connected"       // < 5 min
	ConnectionRecentlyActive = "recently_active" // < 30 min
	ConnectionDisconnected   = "disconnected"    // < 6 h
	ConnectionInactive       = "inactive"        // older
)

// PresenceEntry is one row of an employees-in-zone query result
type PresenceEntry struct {
	EmployeeID       uint      `json:"employee_id"`
	Name             string    `json:"name"`
	LastSampleAt     time.Time `json:"last_sample_at"`
	Lat              float64   `json:"lat"`
	Lon              float64   `json:"lon"`
	DistanceM        int       `json:"distance_m"`
	ConnectionStatus string    `json:"connection_status"`
	IsEligible       bool      `json:"is_eligible"` // member of the zone's owning department
}

// AttendanceEntry is one row of a zone-attendance roll-up
type AttendanceEntry struct {
	EmployeeID   uint       `json:"employee_id"`
	Name         string     `json:"name"`
	MorningEntry *time.Time `json:"morning_entry,omitempty"`
	EveningEntry *time.Time `json:"evening_entry,omitempty"`
	Status       string     `json:"status"` // present, on_time, late_N, insufficient_time, absent
}

// HistorySample is one decorated row of an employee's location history
type HistorySample struct {
	LocationSample
	ZoneName    string `json:"zone_name,omitempty"`
	VehiclePlate string `json:"vehicle_plate,omitempty"`
}

// EmployeeShadow is the latest known position of an employee (stored in Redis)
type EmployeeShadow struct {
	EmployeeID uint    `json:"employee_id"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	SpeedKmh   float64 `json:"speed_kmh,omitempty"`
	RecordedAt int64   `json:"recorded_at"` // unix seconds
}
