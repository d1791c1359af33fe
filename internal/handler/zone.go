package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Eissaali11/nuzum-edut-sub003/internal/model"
	"github.com/Eissaali11/nuzum-edut-sub003/internal/service"
)

// ZoneHandler handles zone management and presence queries
type ZoneHandler struct {
	zoneService     *service.ZoneService
	presenceService *service.PresenceService
	queryService    *service.PresenceQueryService
	reportService   *service.ReportService
	// defaultStaleness is used when the caller omits staleness_seconds
	defaultStaleness time.Duration
}

// NewZoneHandler creates a new zone handler
func NewZoneHandler(zoneService *service.ZoneService, presenceService *service.PresenceService, queryService *service.PresenceQueryService, reportService *service.ReportService, defaultStaleness time.Duration) *ZoneHandler {
	return &ZoneHandler{
		zoneService:      zoneService,
		presenceService:  presenceService,
		queryService:     queryService,
		reportService:    reportService,
		defaultStaleness: defaultStaleness,
	}
}

// Create creates a new zone
// @Summary Create zone
// @Tags Zones
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param zone body model.Zone true "Zone data"
// @Success 201 {object} model.Zone
// @Failure 400 {object} map[string]string
// @Router /zones [post]
func (h *ZoneHandler) Create(c *gin.Context) {
	var zone model.Zone
	if err := c.ShouldBindJSON(&zone); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	actor := currentUserID(c)
	if err := h.zoneService.Create(c.Request.Context(), &zone, &actor); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, zone)
}

// List returns a paginated list of zones
// @Summary List zones
// @Tags Zones
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page number" default(1)
// @Param page_size query int false "Page size" default(20)
// @Success 200 {object} map[string]interface{}
// @Router /zones [get]
func (h *ZoneHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	zones, total, err := h.zoneService.List(c.Request.Context(), page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  zones,
		"total": total,
		"page":  page,
	})
}

// Get returns one zone
// @Summary Get zone
// @Tags Zones
// @Produce json
// @Security BearerAuth
// @Param id path int true "Zone ID"
// @Success 200 {object} model.Zone
// @Failure 404 {object} map[string]string
// @Router /zones/{id} [get]
func (h *ZoneHandler) Get(c *gin.Context) {
	id := h.pathID(c)
	if id == 0 {
		return
	}

	zone, err := h.zoneService.GetByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, zone)
}

// Update updates a zone's attributes
// @Summary Update zone
// @Tags Zones
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Zone ID"
// @Param zone body model.Zone true "Zone data"
// @Success 200 {object} model.Zone
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /zones/{id} [put]
func (h *ZoneHandler) Update(c *gin.Context) {
	id := h.pathID(c)
	if id == 0 {
		return
	}

	var zone model.Zone
	if err := c.ShouldBindJSON(&zone); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	zone.ID = id

	actor := currentUserID(c)
	if err := h.zoneService.Update(c.Request.Context(), &zone, &actor); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, zone)
}

// Deactivate soft-disables a zone. Employees still inside get an implicit
// exit on their next sample.
// @Summary Deactivate zone
// @Tags Zones
// @Produce json
// @Security BearerAuth
// @Param id path int true "Zone ID"
// @Success 200 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /zones/{id} [delete]
func (h *ZoneHandler) Deactivate(c *gin.Context) {
	id := h.pathID(c)
	if id == 0 {
		return
	}

	actor := currentUserID(c)
	if err := h.zoneService.Deactivate(c.Request.Context(), id, &actor); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "zone deactivated"})
}

// Present returns who is currently inside the zone
// @Summary Employees currently in zone
// @Tags Zones
// @Produce json
// @Security BearerAuth
// @Param id path int true "Zone ID"
// @Param scope query string false "department or all" default(all)
// @Param staleness_seconds query int false "Max sample age in seconds" default(3600)
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]string
// @Router /zones/{id}/present [get]
func (h *ZoneHandler) Present(c *gin.Context) {
	id := h.pathID(c)
	if id == 0 {
		return
	}

	scope := c.DefaultQuery("scope", service.ScopeAll)
	if scope != service.ScopeDepartment && scope != service.ScopeAll {
		c.JSON(http.StatusBadRequest, gin.H{"error": "scope must be department or all"})
		return
	}
	staleness := h.defaultStaleness
	if raw := c.Query("staleness_seconds"); raw != "" {
		if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
			staleness = time.Duration(secs) * time.Second
		}
	}

	entries, err := h.queryService.EmployeesInZone(c.Request.Context(), id, scope, staleness)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  entries,
		"count": len(entries),
	})
}

// Attendance returns the daily attendance roll-up for a zone
// @Summary Zone attendance for one day
// @Tags Zones
// @Produce json
// @Security BearerAuth
// @Param id path int true "Zone ID"
// @Param date query string true "Date (YYYY-MM-DD, local)"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /zones/{id}/attendance [get]
func (h *ZoneHandler) Attendance(c *gin.Context) {
	id := h.pathID(c)
	if id == 0 {
		return
	}

	date := c.Query("date")
	entries, err := h.queryService.ZoneAttendance(c.Request.Context(), id, date)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"date":  date,
		"data":  entries,
		"count": len(entries),
	})
}

// ExportAttendance streams an Excel attendance workbook for a date range
// @Summary Export zone attendance as Excel
// @Tags Zones
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Security BearerAuth
// @Param id path int true "Zone ID"
// @Param start_date query string true "Start date (YYYY-MM-DD)"
// @Param end_date query string true "End date (YYYY-MM-DD)"
// @Success 200 {file} binary
// @Failure 400 {object} map[string]string
// @Router /zones/{id}/attendance/export [get]
func (h *ZoneHandler) ExportAttendance(c *gin.Context) {
	id := h.pathID(c)
	if id == 0 {
		return
	}

	f, err := h.reportService.AttendanceWorkbook(c.Request.Context(),
		id, c.Query("start_date"), c.Query("end_date"))
	if err != nil {
		respondError(c, err)
		return
	}

	filename := fmt.Sprintf("attendance_zone_%d_%s.xlsx", id, c.Query("start_date"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	if err := f.Write(c.Writer); err != nil {
		respondError(c, err)
	}
}

// CheckIn records a manual check-in event for an employee in a zone
// @Summary Manual check-in
// @Tags Zones
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Zone ID"
// @Success 201 {object} model.GeofenceEvent
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /zones/{id}/check-in [post]
func (h *ZoneHandler) CheckIn(c *gin.Context) {
	id := h.pathID(c)
	if id == 0 {
		return
	}

	var req struct {
		EmployeeID uint   `json:"employee_id" binding:"required"`
		Notes      string `json:"notes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	actor := currentUserID(c)
	event, err := h.presenceService.CheckIn(c.Request.Context(), id, req.EmployeeID, &actor, req.Notes)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, event)
}

// AssignEmployees replaces the zone's assigned employee set
// @Summary Assign employees to zone
// @Tags Zones
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Zone ID"
// @Success 200 {object} map[string]string
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /zones/{id}/assign [post]
func (h *ZoneHandler) AssignEmployees(c *gin.Context) {
	id := h.pathID(c)
	if id == 0 {
		return
	}

	var req struct {
		EmployeeIDs []uint `json:"employee_ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.zoneService.AssignEmployees(c.Request.Context(), id, req.EmployeeIDs); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "employees assigned"})
}

// Events returns the zone's enter/exit event log, newest first
// @Summary Zone event log
// @Tags Zones
// @Produce json
// @Security BearerAuth
// @Param id path int true "Zone ID"
// @Param page query int false "Page number" default(1)
// @Param page_size query int false "Page size" default(50)
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]string
// @Router /zones/{id}/events [get]
func (h *ZoneHandler) Events(c *gin.Context) {
	id := h.pathID(c)
	if id == 0 {
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "50"))

	events, total, err := h.zoneService.GetEvents(c.Request.Context(), id, page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  events,
		"total": total,
		"page":  page,
	})
}

func (h *ZoneHandler) pathID(c *gin.Context) uint {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid zone id"})
		return 0
	}
	return uint(id)
}
