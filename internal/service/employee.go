package service

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/Eissaali11/nuzum-edut-sub003/internal/model"
)

// EmployeeService manages employees and their department memberships
type EmployeeService struct {
	db *gorm.DB
}

// NewEmployeeService creates a new employee service
func NewEmployeeService(db *gorm.DB) *EmployeeService {
	return &EmployeeService{db: db}
}

// Create registers a new employee
func (s *EmployeeService) Create(ctx context.Context, employee *model.Employee) error {
	if employee.Name == "" {
		return model.ValidationError("name is required")
	}
	if employee.Status == "" {
		employee.Status = model.EmployeeActive
	}
	if err := s.db.Create(employee).Error; err != nil {
		return classifyDBError(err)
	}
	return nil
}

// GetByID loads an employee with departments and assigned zones
func (s *EmployeeService) GetByID(ctx context.Context, id uint) (*model.Employee, error) {
	var employee model.Employee
	err := s.db.Preload("Departments").First(&employee, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.NotFoundError("employee", id)
		}
		return nil, model.TransientError(err)
	}
	return &employee, nil
}

// List returns employees, optionally filtered by department and status
func (s *EmployeeService) List(ctx context.Context, departmentID uint, status string, page, pageSize int) ([]model.Employee, int64, error) {
	query := s.db.Model(&model.Employee{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if departmentID != 0 {
		query = query.
			Joins("JOIN employee_departments ON employee_departments.employee_id = employees.id").
			Where("employee_departments.department_id = ?", departmentID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, model.TransientError(err)
	}

	var employees []model.Employee
	offset := (page - 1) * pageSize
	if err := query.Order("employees.name").Offset(offset).Limit(pageSize).Find(&employees).Error; err != nil {
		return nil, 0, model.TransientError(err)
	}
	return employees, total, nil
}

// Update changes an employee's profile fields
func (s *EmployeeService) Update(ctx context.Context, id uint, updates map[string]interface{}) (*model.Employee, error) {
	employee, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	allowed := map[string]bool{
		"name": true, "employee_no": true, "profile_image": true, "status": true,
	}
	filtered := make(map[string]interface{})
	for k, v := range updates {
		if allowed[k] {
			filtered[k] = v
		}
	}
	if len(filtered) == 0 {
		return employee, nil
	}
	if status, ok := filtered["status"].(string); ok {
		switch status {
		case model.EmployeeActive, model.EmployeeInactive, model.EmployeeOnLeave:
		default:
			return nil, model.ValidationError("unknown status %q", status)
		}
	}

	if err := s.db.Model(employee).Updates(filtered).Error; err != nil {
		return nil, model.TransientError(err)
	}
	return employee, nil
}

// SetDepartments replaces an employee's department memberships
func (s *EmployeeService) SetDepartments(ctx context.Context, id uint, departmentIDs []uint) error {
	if _, err := s.GetByID(ctx, id); err != nil {
		return err
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("employee_id = ?", id).Delete(&model.EmployeeDepartment{}).Error; err != nil {
			return model.TransientError(err)
		}
		for _, deptID := range departmentIDs {
			var dept model.Department
			if err := tx.First(&dept, deptID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return model.NotFoundError("department", deptID)
				}
				return model.TransientError(err)
			}
			link := model.EmployeeDepartment{EmployeeID: id, DepartmentID: deptID}
			if err := tx.Create(&link).Error; err != nil {
				return classifyDBError(err)
			}
		}
		return nil
	})
}
