package service

import (
	"context"
	"errors"
	"log"

	"gorm.io/gorm"

	"github.com/Eissaali11/nuzum-edut-sub003/internal/model"
)

// ZoneService handles zone administration. Every mutation invalidates the
// active-zones cache because it may change presence for many employees.
type ZoneService struct {
	db       *gorm.DB
	presence *PresenceService
	audit    *AuditService
}

// NewZoneService creates a new zone service
func NewZoneService(db *gorm.DB, presence *PresenceService, audit *AuditService) *ZoneService {
	return &ZoneService{db: db, presence: presence, audit: audit}
}

// Create validates and persists a new zone
func (s *ZoneService) Create(ctx context.Context, zone *model.Zone, actor *uint) error {
	if err := s.validate(zone); err != nil {
		return err
	}
	zone.CreatedBy = actor

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(zone).Error; err != nil {
			return err
		}
		return s.audit.RecordChange(tx, actor, model.AuditZoneCreate, "zone", zone.ID, zone.Name, nil, zone)
	})
	if err != nil {
		return model.TransientError(err)
	}

	s.presence.InvalidateZoneCache(ctx)
	return nil
}

// GetByID returns a zone with its department and assigned employees
func (s *ZoneService) GetByID(ctx context.Context, id uint) (*model.Zone, error) {
	var zone model.Zone
	if err := s.db.Preload("Department").Preload("AssignedEmployees").First(&zone, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.NotFoundError("zone", id)
		}
		return nil, model.TransientError(err)
	}
	return &zone, nil
}

// List returns zones with pagination
func (s *ZoneService) List(ctx context.Context, page, pageSize int) ([]model.Zone, int64, error) {
	var zones []model.Zone
	var total int64

	offset := (page - 1) * pageSize

	if err := s.db.Model(&model.Zone{}).Count(&total).Error; err != nil {
		return nil, 0, model.TransientError(err)
	}
	if err := s.db.Offset(offset).Limit(pageSize).Find(&zones).Error; err != nil {
		return nil, 0, model.TransientError(err)
	}

	return zones, total, nil
}

// Update validates and persists changes to a zone
func (s *ZoneService) Update(ctx context.Context, zone *model.Zone, actor *uint) error {
	if err := s.validate(zone); err != nil {
		return err
	}

	var before model.Zone
	if err := s.db.First(&before, zone.ID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.NotFoundError("zone", zone.ID)
		}
		return model.TransientError(err)
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(zone).Error; err != nil {
			return err
		}
		return s.audit.RecordChange(tx, actor, model.AuditZoneUpdate, "zone", zone.ID, zone.Name, &before, zone)
	})
	if err != nil {
		return model.TransientError(err)
	}

	s.presence.InvalidateZoneCache(ctx)
	return nil
}

// Deactivate soft-disables a zone. Employees currently inside get an implicit
// exit the next time one of their samples is resolved; the zone row itself is
// never deleted once it is referenced by events.
func (s *ZoneService) Deactivate(ctx context.Context, id uint, actor *uint) error {
	var zone model.Zone
	if err := s.db.First(&zone, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.NotFoundError("zone", id)
		}
		return model.TransientError(err)
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.Zone{}).Where("id = ?", id).Update("is_active", false).Error; err != nil {
			return err
		}
		return s.audit.RecordChange(tx, actor, model.AuditZoneDeactivate, "zone", id, zone.Name, &zone, nil)
	})
	if err != nil {
		return model.TransientError(err)
	}

	s.presence.InvalidateZoneCache(ctx)
	log.Printf("[Zone] Zone %d (%s) deactivated", id, zone.Name)
	return nil
}

// AssignEmployees replaces the set of employees explicitly assigned to a zone
func (s *ZoneService) AssignEmployees(ctx context.Context, zoneID uint, employeeIDs []uint) error {
	var zone model.Zone
	if err := s.db.First(&zone, zoneID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.NotFoundError("zone", zoneID)
		}
		return model.TransientError(err)
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("zone_id = ?", zoneID).Delete(&model.EmployeeZone{}).Error; err != nil {
			return err
		}
		for _, empID := range employeeIDs {
			if err := tx.Create(&model.EmployeeZone{EmployeeID: empID, ZoneID: zoneID}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return model.TransientError(err)
	}
	return nil
}

// GetEvents returns a zone's events with pagination, newest first
func (s *ZoneService) GetEvents(ctx context.Context, zoneID uint, page, pageSize int) ([]model.GeofenceEvent, int64, error) {
	var events []model.GeofenceEvent
	var total int64

	offset := (page - 1) * pageSize

	if err := s.db.Model(&model.GeofenceEvent{}).Where("zone_id = ?", zoneID).Count(&total).Error; err != nil {
		return nil, 0, model.TransientError(err)
	}
	if err := s.db.Where("zone_id = ?", zoneID).
		Order("recorded_at DESC").
		Offset(offset).Limit(pageSize).
		Preload("Employee").
		Find(&events).Error; err != nil {
		return nil, 0, model.TransientError(err)
	}

	return events, total, nil
}

// validate enforces zone invariants: a valid WGS-84 center, a positive
// radius and a well-formed HH:MM start time
func (s *ZoneService) validate(zone *model.Zone) error {
	if zone.Name == "" {
		return model.ValidationError("name is required")
	}
	if !ValidCoordinates(zone.CenterLat, zone.CenterLon) {
		return model.ValidationError("invalid center coordinates")
	}
	if zone.RadiusMeters <= 0 {
		return model.ValidationError("radius must be positive")
	}
	if zone.DepartmentID == 0 {
		return model.ValidationError("department_id is required")
	}
	if zone.AttendanceRequiredMinutes < 0 {
		return model.ValidationError("attendance_required_minutes must be non-negative")
	}
	if zone.AttendanceStartTime != "" {
		var h, m int
		if _, err := parseClock(zone.AttendanceStartTime, &h, &m); err != nil {
			return model.ValidationError("attendance_start_time must be HH:MM")
		}
	}
	return nil
}
