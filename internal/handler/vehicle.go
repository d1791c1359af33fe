package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Eissaali11/nuzum-edut-sub003/internal/model"
	"github.com/Eissaali11/nuzum-edut-sub003/internal/service"
)

// VehicleHandler handles the vehicle register endpoints
type VehicleHandler struct {
	vehicleService *service.VehicleService
}

// NewVehicleHandler creates a new vehicle handler
func NewVehicleHandler(vehicleService *service.VehicleService) *VehicleHandler {
	return &VehicleHandler{vehicleService: vehicleService}
}

// Create registers a vehicle
// @Summary Create vehicle
// @Tags Vehicles
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param vehicle body model.Vehicle true "Vehicle data"
// @Success 201 {object} model.Vehicle
// @Failure 400 {object} map[string]string
// @Router /vehicles [post]
func (h *VehicleHandler) Create(c *gin.Context) {
	var vehicle model.Vehicle
	if err := c.ShouldBindJSON(&vehicle); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.vehicleService.Create(c.Request.Context(), &vehicle, currentUserID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, vehicle)
}

// List returns vehicles filtered by status
// @Summary List vehicles
// @Tags Vehicles
// @Produce json
// @Security BearerAuth
// @Param status query string false "Filter by status"
// @Param page query int false "Page number" default(1)
// @Param page_size query int false "Page size" default(20)
// @Success 200 {object} map[string]interface{}
// @Router /vehicles [get]
func (h *VehicleHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	vehicles, total, err := h.vehicleService.List(c.Request.Context(), c.Query("status"), page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  vehicles,
		"total": total,
		"page":  page,
	})
}

// Get returns one vehicle
// @Summary Get vehicle
// @Tags Vehicles
// @Produce json
// @Security BearerAuth
// @Param id path int true "Vehicle ID"
// @Success 200 {object} model.Vehicle
// @Failure 404 {object} map[string]string
// @Router /vehicles/{id} [get]
func (h *VehicleHandler) Get(c *gin.Context) {
	id := h.pathID(c)
	if id == 0 {
		return
	}

	vehicle, err := h.vehicleService.GetByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, vehicle)
}

// SetOutOfService pins the vehicle out of service
// @Summary Take vehicle out of service
// @Tags Vehicles
// @Produce json
// @Security BearerAuth
// @Param id path int true "Vehicle ID"
// @Success 200 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /vehicles/{id}/out-of-service [post]
func (h *VehicleHandler) SetOutOfService(c *gin.Context) {
	id := h.pathID(c)
	if id == 0 {
		return
	}

	if err := h.vehicleService.SetOutOfService(c.Request.Context(), id, currentUserID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "vehicle out of service"})
}

// ClearOutOfService lifts the manual override and re-derives status
// @Summary Return vehicle to service
// @Tags Vehicles
// @Produce json
// @Security BearerAuth
// @Param id path int true "Vehicle ID"
// @Success 200 {object} map[string]string
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /vehicles/{id}/out-of-service [delete]
func (h *VehicleHandler) ClearOutOfService(c *gin.Context) {
	id := h.pathID(c)
	if id == 0 {
		return
	}

	if err := h.vehicleService.ClearOutOfService(c.Request.Context(), id, currentUserID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "vehicle back in service"})
}

// Reconcile re-derives the vehicle's status and driver on demand
// @Summary Reconcile vehicle state
// @Tags Vehicles
// @Produce json
// @Security BearerAuth
// @Param id path int true "Vehicle ID"
// @Success 200 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /vehicles/{id}/reconcile [post]
func (h *VehicleHandler) Reconcile(c *gin.Context) {
	id := h.pathID(c)
	if id == 0 {
		return
	}

	if err := h.vehicleService.Reconcile(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "vehicle reconciled"})
}

func (h *VehicleHandler) pathID(c *gin.Context) uint {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid vehicle id"})
		return 0
	}
	return uint(id)
}
