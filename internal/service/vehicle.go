package service

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/Eissaali11/nuzum-edut-sub003/internal/model"
)

// VehicleService manages the vehicle register. Derived fields (status,
// driver_name) belong to the reconciler; this service touches only manual
// fields, with out_of_service as the single manual status override.
type VehicleService struct {
	db         *gorm.DB
	audit      *AuditService
	reconciler *Reconciler
}

// NewVehicleService creates a new vehicle service
func NewVehicleService(db *gorm.DB, audit *AuditService, reconciler *Reconciler) *VehicleService {
	return &VehicleService{db: db, audit: audit, reconciler: reconciler}
}

// Create registers a new vehicle; it starts as available with no driver
func (s *VehicleService) Create(ctx context.Context, vehicle *model.Vehicle, actor uint) error {
	if vehicle.PlateNumber == "" {
		return model.ValidationError("plate_number is required")
	}
	vehicle.Status = model.VehicleAvailable
	vehicle.DriverName = nil

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(vehicle).Error; err != nil {
			return classifyDBError(err)
		}
		return s.audit.RecordChange(tx, &actor, model.AuditVehicleCreate, "vehicle", vehicle.ID, vehicle.PlateNumber, nil, vehicle)
	})
	return err
}

// GetByID loads a vehicle with its open records
func (s *VehicleService) GetByID(ctx context.Context, id uint) (*model.Vehicle, error) {
	var vehicle model.Vehicle
	if err := s.db.First(&vehicle, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.NotFoundError("vehicle", id)
		}
		return nil, model.TransientError(err)
	}
	return &vehicle, nil
}

// List returns vehicles filtered by status
func (s *VehicleService) List(ctx context.Context, status string, page, pageSize int) ([]model.Vehicle, int64, error) {
	query := s.db.Model(&model.Vehicle{})
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, model.TransientError(err)
	}

	var vehicles []model.Vehicle
	offset := (page - 1) * pageSize
	if err := query.Order("plate_number").Offset(offset).Limit(pageSize).Find(&vehicles).Error; err != nil {
		return nil, 0, model.TransientError(err)
	}
	return vehicles, total, nil
}

// SetOutOfService pins the vehicle's status manually. While pinned, the
// reconciler leaves the vehicle alone.
func (s *VehicleService) SetOutOfService(ctx context.Context, id, actor uint) error {
	vehicle, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if vehicle.Status == model.VehicleOutOfService {
		return nil
	}

	before := *vehicle
	return s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Vehicle{}).
			Where("id = ? AND status = ?", id, vehicle.Status).
			Update("status", model.VehicleOutOfService)
		if res.Error != nil {
			return model.TransientError(res.Error)
		}
		if res.RowsAffected == 0 {
			return model.ErrConflict
		}
		vehicle.Status = model.VehicleOutOfService
		return s.audit.RecordChange(tx, &actor, model.AuditVehicleOutOfService, "vehicle", id, vehicle.PlateNumber, &before, vehicle)
	})
}

// ClearOutOfService lifts the manual override and re-derives the status
func (s *VehicleService) ClearOutOfService(ctx context.Context, id, actor uint) error {
	vehicle, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if vehicle.Status != model.VehicleOutOfService {
		return model.ValidationError("vehicle %d is not out_of_service", id)
	}

	before := *vehicle
	err = s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Vehicle{}).
			Where("id = ? AND status = ?", id, model.VehicleOutOfService).
			Update("status", model.VehicleAvailable)
		if res.Error != nil {
			return model.TransientError(res.Error)
		}
		if res.RowsAffected == 0 {
			return model.ErrConflict
		}
		vehicle.Status = model.VehicleAvailable
		return s.audit.RecordChange(tx, &actor, model.AuditVehicleOutOfService, "vehicle", id, vehicle.PlateNumber, &before, vehicle)
	})
	if err != nil {
		return err
	}

	return s.reconciler.Reconcile(ctx, id)
}

// Reconcile re-derives one vehicle's state on demand
func (s *VehicleService) Reconcile(ctx context.Context, id uint) error {
	if _, err := s.GetByID(ctx, id); err != nil {
		return err
	}
	return s.reconciler.Reconcile(ctx, id)
}
