package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Eissaali11/nuzum-edut-sub003/internal/model"
	"github.com/Eissaali11/nuzum-edut-sub003/internal/service"
)

// OperationHandler handles the approval workflow endpoints
type OperationHandler struct {
	operationService *service.OperationService
}

// NewOperationHandler creates a new operation handler
func NewOperationHandler(operationService *service.OperationService) *OperationHandler {
	return &OperationHandler{operationService: operationService}
}

// Submit creates an operation request together with its proposed record
// @Summary Submit operation request
// @Tags Operations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body model.SubmitOperationRequest true "Operation request"
// @Success 201 {object} model.OperationRequest
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /operations [post]
func (h *OperationHandler) Submit(c *gin.Context) {
	var req model.SubmitOperationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	operation, err := h.operationService.Submit(c.Request.Context(), &req, currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, operation)
}

// List returns operation requests filtered by status and priority
// @Summary List operation requests
// @Tags Operations
// @Produce json
// @Security BearerAuth
// @Param status query string false "Filter by status"
// @Param priority query string false "Filter by priority"
// @Param page query int false "Page number" default(1)
// @Param page_size query int false "Page size" default(20)
// @Success 200 {object} map[string]interface{}
// @Router /operations [get]
func (h *OperationHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	operations, total, err := h.operationService.List(c.Request.Context(),
		c.Query("status"), c.Query("priority"), page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  operations,
		"total": total,
		"page":  page,
	})
}

// Get returns one operation request
// @Summary Get operation request
// @Tags Operations
// @Produce json
// @Security BearerAuth
// @Param id path int true "Operation ID"
// @Success 200 {object} model.OperationRequest
// @Failure 404 {object} map[string]string
// @Router /operations/{id} [get]
func (h *OperationHandler) Get(c *gin.Context) {
	id := h.pathID(c)
	if id == 0 {
		return
	}

	operation, err := h.operationService.GetByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, operation)
}

// Review moves a pending request to under_review
// @Summary Mark operation under review
// @Tags Operations
// @Produce json
// @Security BearerAuth
// @Param id path int true "Operation ID"
// @Success 200 {object} model.OperationRequest
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /operations/{id}/review [post]
func (h *OperationHandler) Review(c *gin.Context) {
	id := h.pathID(c)
	if id == 0 {
		return
	}

	operation, err := h.operationService.SetUnderReview(c.Request.Context(), id, currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, operation)
}

// Approve approves a request and reconciles the vehicle
// @Summary Approve operation request
// @Tags Operations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Operation ID"
// @Param decision body model.ReviewRequest false "Review notes"
// @Success 200 {object} model.OperationRequest
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /operations/{id}/approve [post]
func (h *OperationHandler) Approve(c *gin.Context) {
	id := h.pathID(c)
	if id == 0 {
		return
	}

	var req model.ReviewRequest
	_ = c.ShouldBindJSON(&req) // notes are optional on approval

	operation, err := h.operationService.Approve(c.Request.Context(), id, currentUserID(c), req.Notes)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, operation)
}

// Reject rejects a request; notes are mandatory and the proposed record is
// deleted
// @Summary Reject operation request
// @Tags Operations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Operation ID"
// @Param decision body model.ReviewRequest true "Review notes"
// @Success 200 {object} model.OperationRequest
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /operations/{id}/reject [post]
func (h *OperationHandler) Reject(c *gin.Context) {
	id := h.pathID(c)
	if id == 0 {
		return
	}

	var req model.ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	operation, err := h.operationService.Reject(c.Request.Context(), id, currentUserID(c), req.Notes)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, operation)
}

func (h *OperationHandler) pathID(c *gin.Context) uint {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid operation id"})
		return 0
	}
	return uint(id)
}
