package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"

	"github.com/Eissaali11/nuzum-edut-sub003/internal/model"
)

// ReportService builds attendance exports
type ReportService struct {
	db      *gorm.DB
	queries *PresenceQueryService
}

// NewReportService creates a new report service
func NewReportService(db *gorm.DB, queries *PresenceQueryService) *ReportService {
	return &ReportService{db: db, queries: queries}
}

// AttendanceWorkbook renders one sheet per day for a zone's attendance over
// an inclusive date range. Dates are local YYYY-MM-DD strings.
func (s *ReportService) AttendanceWorkbook(ctx context.Context, zoneID uint, startDate, endDate string) (*excelize.File, error) {
	start, err := time.Parse("2006-01-02", startDate)
	if err != nil {
		return nil, model.ValidationError("start_date must be YYYY-MM-DD")
	}
	end, err := time.Parse("2006-01-02", endDate)
	if err != nil {
		return nil, model.ValidationError("end_date must be YYYY-MM-DD")
	}
	if end.Before(start) {
		return nil, model.ValidationError("end_date is before start_date")
	}
	if end.Sub(start) > 31*24*time.Hour {
		return nil, model.ValidationError("date range exceeds 31 days")
	}

	var zone model.Zone
	if err := s.db.First(&zone, zoneID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.NotFoundError("zone", zoneID)
		}
		return nil, model.TransientError(err)
	}

	f := excelize.NewFile()
	first := true
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		date := day.Format("2006-01-02")
		sheet := date
		if first {
			f.SetSheetName("Sheet1", sheet)
			first = false
		} else {
			f.NewSheet(sheet)
		}

		f.SetCellValue(sheet, "A1", fmt.Sprintf("Attendance - %s - %s", zone.Name, date))
		headers := []string{"Employee ID", "Name", "Morning Entry", "Evening Entry", "Status"}
		for i, header := range headers {
			cell, _ := excelize.CoordinatesToCellName(i+1, 2)
			f.SetCellValue(sheet, cell, header)
		}

		entries, err := s.queries.ZoneAttendance(ctx, zoneID, date)
		if err != nil {
			return nil, err
		}

		for i, entry := range entries {
			row := i + 3
			f.SetCellValue(sheet, fmt.Sprintf("A%d", row), entry.EmployeeID)
			f.SetCellValue(sheet, fmt.Sprintf("B%d", row), entry.Name)
			f.SetCellValue(sheet, fmt.Sprintf("C%d", row), formatEntry(entry.MorningEntry))
			f.SetCellValue(sheet, fmt.Sprintf("D%d", row), formatEntry(entry.EveningEntry))
			f.SetCellValue(sheet, fmt.Sprintf("E%d", row), entry.Status)
		}
	}

	return f, nil
}

func formatEntry(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format("15:04:05")
}
