package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-timetable-api/internal/dto"
	"github.com/noah-isme/campus-timetable-api/internal/models"
	"github.com/noah-isme/campus-timetable-api/internal/service"
	appErrors "github.com/noah-isme/campus-timetable-api/pkg/errors"
	"github.com/noah-isme/campus-timetable-api/pkg/response"
)

type rescheduleService interface {
	Submit(ctx context.Context, payload dto.SubmitRescheduleRequest) (*models.RescheduleRequest, error)
	List(ctx context.Context, query dto.RescheduleListQuery) ([]models.RescheduleRequest, *models.Pagination, error)
	Review(ctx context.Context, id string, payload dto.ReviewRescheduleRequest) (*models.RescheduleRequest, error)
	Apply(ctx context.Context, id string) (*dto.ApplyRescheduleResponse, error)
}

// RescheduleHandler exposes the reschedule request workflow.
type RescheduleHandler struct {
	service rescheduleService
}

// NewRescheduleHandler constructs the handler.
func NewRescheduleHandler(svc *service.RescheduleService) *RescheduleHandler {
	return &RescheduleHandler{service: svc}
}

// Submit godoc
// @Summary Request to move a schedule entry
// @Tags Reschedule
// @Accept json
// @Produce json
// @Param payload body dto.SubmitRescheduleRequest true "Reschedule request"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /reschedule-requests [post]
func (h *RescheduleHandler) Submit(c *gin.Context) {
	var payload dto.SubmitRescheduleRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid reschedule payload"))
		return
	}
	req, err := h.service.Submit(c.Request.Context(), payload)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, req)
}

// List godoc
// @Summary List reschedule requests
// @Tags Reschedule
// @Produce json
// @Param status query []string false "Statuses" collectionFormat(multi)
// @Param teacherId query string false "Teacher ID"
// @Param entryId query string false "Schedule entry ID"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /reschedule-requests [get]
func (h *RescheduleHandler) List(c *gin.Context) {
	var query dto.RescheduleListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid reschedule query"))
		return
	}
	items, pagination, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Review godoc
// @Summary Approve or reject a pending request
// @Tags Reschedule
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.ReviewRescheduleRequest true "Review decision"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /reschedule-requests/{id}/review [post]
func (h *RescheduleHandler) Review(c *gin.Context) {
	var payload dto.ReviewRescheduleRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid review payload"))
		return
	}
	req, err := h.service.Review(c.Request.Context(), c.Param("id"), payload)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, req, nil)
}

// Apply godoc
// @Summary Apply an approved request to the committed timetable
// @Description A placement that breaks a hard constraint is rejected with 409 and the violations in data.
// @Tags Reschedule
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /reschedule-requests/{id}/apply [post]
func (h *RescheduleHandler) Apply(c *gin.Context) {
	result, err := h.service.Apply(c.Request.Context(), c.Param("id"))
	if err != nil {
		if result != nil {
			response.Conflict(c, err, result)
			return
		}
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
