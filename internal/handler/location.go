package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Eissaali11/nuzum-edut-sub003/internal/model"
	"github.com/Eissaali11/nuzum-edut-sub003/internal/service"
)

// LocationHandler handles location ingest and history queries
type LocationHandler struct {
	ingestService *service.IngestService
	queryService  *service.PresenceQueryService
}

// NewLocationHandler creates a new location handler
func NewLocationHandler(ingestService *service.IngestService, queryService *service.PresenceQueryService) *LocationHandler {
	return &LocationHandler{ingestService: ingestService, queryService: queryService}
}

// Ingest accepts one GPS sample from the mobile app
// @Summary Ingest location sample
// @Description Store a GPS sample and resolve geofence presence
// @Tags Locations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param sample body model.IngestRequest true "Location sample"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /locations [post]
func (h *LocationHandler) Ingest(c *gin.Context) {
	var req model.IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sampleID, err := h.ingestService.Ingest(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"sample_id": sampleID})
}

// History returns an employee's recent samples, decorated with zone names
// and vehicle plates
// @Summary Employee location history
// @Tags Locations
// @Produce json
// @Security BearerAuth
// @Param id path int true "Employee ID"
// @Param hours query int false "Lookback window in hours" default(24)
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]string
// @Router /employees/{id}/history [get]
func (h *LocationHandler) History(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid employee id"})
		return
	}
	hours, _ := strconv.Atoi(c.DefaultQuery("hours", "24"))

	samples, err := h.queryService.EmployeeHistory(c.Request.Context(), uint(id), hours)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  samples,
		"count": len(samples),
	})
}

// Live returns the latest known position of every employee
// @Summary Live employee locations
// @Tags Locations
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]interface{}
// @Router /locations/live [get]
func (h *LocationHandler) Live(c *gin.Context) {
	shadows, err := h.queryService.LiveLocations(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  shadows,
		"count": len(shadows),
	})
}
