package model

import (
	"time"

	"gorm.io/gorm"
)

// Employee status values
const (
	EmployeeActive   = "active"
	EmployeeInactive = "inactive"
	EmployeeOnLeave  = "on_leave"
)

// Employee represents a field worker tracked by the mobile app
type Employee struct {
	ID           uint           `json:"id" gorm:"primaryKey"`
	Name         string         `json:"name" gorm:"size:200;not null"`
	EmployeeNo   string         `json:"employee_no" gorm:"uniqueIndex;size:50"`
	Status       string         `json:"status" gorm:"size:20;default:'active'"` // active, inactive, on_leave
	ProfileImage string         `json:"profile_image,omitempty" gorm:"size:255"`
	Departments  []Department   `json:"departments,omitempty" gorm:"many2many:employee_departments;"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `json:"-" gorm:"index"`
}

// IsActive reports whether the employee can submit location samples
func (e *Employee) IsActive() bool {
	return e.Status == EmployeeActive
}

// Department groups employees; each zone belongs to exactly one department
type Department struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	Name      string         `json:"name" gorm:"size:200;not null"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// EmployeeDepartment is the explicit join row between employees and departments
type EmployeeDepartment struct {
	EmployeeID   uint `json:"employee_id" gorm:"primaryKey"`
	DepartmentID uint `json:"department_id" gorm:"primaryKey"`
}

func (EmployeeDepartment) TableName() string {
	return "employee_departments"
}
