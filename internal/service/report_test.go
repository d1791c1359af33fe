package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Eissaali11/nuzum-edut-sub003/internal/model"
)

func TestAttendanceWorkbook(t *testing.T) {
	db := newTestDB(t)
	dept := createDepartment(t, db, "Ops")
	zone := createZone(t, db, "Export Site", dept, 100)
	emp := createEmployee(t, db, "Exported", dept)
	ingest, _, queries := newPresenceStack(db)
	reports := NewReportService(db, queries)
	ctx := context.Background()

	ingestAt(t, ingest, emp.ID, testLat, testLon, ts(7, 55))
	ingestAt(t, ingest, emp.ID, outsideLat, testLon, ts(9, 0))

	f, err := reports.AttendanceWorkbook(ctx, zone.ID, testDate, "2025-03-11")
	require.NoError(t, err)
	defer f.Close()

	sheets := f.GetSheetList()
	assert.Equal(t, []string{testDate, "2025-03-11"}, sheets)

	name, err := f.GetCellValue(testDate, "B3")
	require.NoError(t, err)
	assert.Equal(t, "Exported", name)
	status, err := f.GetCellValue(testDate, "E3")
	require.NoError(t, err)
	assert.Equal(t, "on_time", status)
	morning, err := f.GetCellValue(testDate, "C3")
	require.NoError(t, err)
	assert.Equal(t, ts(7, 55).Format("15:04:05"), morning)

	// the second day has the header but an absent row
	status, err = f.GetCellValue("2025-03-11", "E3")
	require.NoError(t, err)
	assert.Equal(t, "absent", status)
}

func TestAttendanceWorkbookValidation(t *testing.T) {
	db := newTestDB(t)
	dept := createDepartment(t, db, "Ops")
	zone := createZone(t, db, "V Site", dept, 100)
	_, _, queries := newPresenceStack(db)
	reports := NewReportService(db, queries)
	ctx := context.Background()

	_, err := reports.AttendanceWorkbook(ctx, zone.ID, "03/10/2025", testDate)
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = reports.AttendanceWorkbook(ctx, zone.ID, testDate, "bad")
	assert.ErrorIs(t, err, model.ErrValidation)

	// end before start
	_, err = reports.AttendanceWorkbook(ctx, zone.ID, testDate, "2025-03-09")
	assert.ErrorIs(t, err, model.ErrValidation)

	// over 31 days
	start, _ := time.Parse("2006-01-02", testDate)
	_, err = reports.AttendanceWorkbook(ctx, zone.ID, testDate, start.AddDate(0, 0, 40).Format("2006-01-02"))
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = reports.AttendanceWorkbook(ctx, 9999, testDate, testDate)
	assert.ErrorIs(t, err, model.ErrNotFound)
}
