package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Eissaali11/nuzum-edut-sub003/internal/model"
	"github.com/Eissaali11/nuzum-edut-sub003/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newHandlerDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("raw db: %v", err)
	}
	// a single connection keeps every session on the same in-memory database
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(
		&model.Employee{},
		&model.Department{},
		&model.EmployeeDepartment{},
		&model.Zone{},
		&model.LocationSample{},
		&model.GeofenceEvent{},
		&model.GeofenceSession{},
		&model.GeofenceAttendance{},
		&model.AuditRecord{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func createMember(t *testing.T, db *gorm.DB, name string, deptID uint) *model.Employee {
	t.Helper()
	emp := &model.Employee{
		Name:       name,
		EmployeeNo: fmt.Sprintf("EMP-%s-%d", name, time.Now().UnixNano()),
		Status:     model.EmployeeActive,
	}
	require.NoError(t, db.Create(emp).Error)
	require.NoError(t, db.Create(&model.EmployeeDepartment{EmployeeID: emp.ID, DepartmentID: deptID}).Error)
	return emp
}

func addSample(t *testing.T, db *gorm.DB, employeeID uint, lat, lon float64, at time.Time) {
	t.Helper()
	require.NoError(t, db.Create(&model.LocationSample{
		EmployeeID: employeeID,
		Lat:        lat,
		Lon:        lon,
		RecordedAt: at,
		ReceivedAt: at,
	}).Error)
}

func TestRespondErrorStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{model.ValidationError("bad input"), http.StatusBadRequest},
		{model.NotFoundError("zone", 7), http.StatusNotFound},
		{model.ErrInvalidTransition, http.StatusConflict},
		{model.ErrAlreadyDecided, http.StatusConflict},
		{model.ErrConflict, http.StatusConflict},
		{model.TransientError(errors.New("db down")), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		respondError(c, tc.err)
		assert.Equal(t, tc.code, w.Code, "error %v", tc.err)
	}
}

func TestPresentScopeAndStalenessDefaults(t *testing.T) {
	db := newHandlerDB(t)

	owning := model.Department{Name: "Operations"}
	require.NoError(t, db.Create(&owning).Error)
	other := model.Department{Name: "Logistics"}
	require.NoError(t, db.Create(&other).Error)

	zone := model.Zone{
		Name:         "Site Q",
		CenterLat:    24.7136,
		CenterLon:    46.6753,
		RadiusMeters: 100,
		IsActive:     true,
		DepartmentID: owning.ID,
	}
	require.NoError(t, db.Create(&zone).Error)

	member := createMember(t, db, "Ahmed", owning.ID)
	outsider := createMember(t, db, "Badr", other.ID)

	now := time.Now().UTC()
	addSample(t, db, member.ID, zone.CenterLat, zone.CenterLon, now.Add(-2*time.Minute))
	// the outsider's newest fix is 30 minutes old, inside the default window
	addSample(t, db, outsider.ID, zone.CenterLat, zone.CenterLon, now.Add(-30*time.Minute))

	queries := service.NewPresenceQueryService(db, nil, time.UTC)
	h := NewZoneHandler(nil, nil, queries, nil, time.Hour)

	r := gin.New()
	r.GET("/zones/:id/present", h.Present)

	get := func(query string) (int, int) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/zones/%d/present%s", zone.ID, query), nil)
		r.ServeHTTP(w, req)
		var body struct {
			Count int `json:"count"`
		}
		if w.Code == http.StatusOK {
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		}
		return w.Code, body.Count
	}

	// no parameters: scope all, one-hour staleness window
	code, count := get("")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 2, count)

	code, count = get("?scope=department")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, count)

	// a tight window drops the outsider's 30-minute-old fix
	code, count = get("?staleness_seconds=300")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, count)

	code, _ = get("?scope=team")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestIngestRespondsOK(t *testing.T) {
	db := newHandlerDB(t)

	dept := model.Department{Name: "Operations"}
	require.NoError(t, db.Create(&dept).Error)
	emp := createMember(t, db, "Saleh", dept.ID)

	audit := service.NewAuditService()
	presence := service.NewPresenceService(db, nil, audit, time.UTC)
	ingest := service.NewIngestService(db, nil, nil, presence, service.NewKeyedLocker())
	h := NewLocationHandler(ingest, nil)

	r := gin.New()
	r.POST("/locations", h.Ingest)

	payload, _ := json.Marshal(gin.H{"employee_id": emp.ID, "lat": 24.7136, "lon": 46.6753})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/locations", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		SampleID uint `json:"sample_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.NotZero(t, body.SampleID)
}
