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

type timetableService interface {
	Generate(ctx context.Context, req dto.GenerateTimetableRequest) (*dto.TimetableProposal, error)
	Proposal(ctx context.Context, id string) (*dto.TimetableProposal, error)
	ProposalConflicts(ctx context.Context, id string) (*dto.TimetableConflicts, error)
	Commit(ctx context.Context, id string) (*dto.CommitProposalResponse, error)
	Current(ctx context.Context, query dto.TimetableQuery) (models.Schedule, error)
	CurrentConflicts(ctx context.Context, departmentID string) (*dto.TimetableConflicts, error)
	Export(ctx context.Context, query dto.ExportTimetableQuery) (*service.ExportFile, error)
}

type generationJobService interface {
	Enqueue(ctx context.Context, req dto.GenerateTimetableRequest) (*dto.GenerationJobResponse, error)
	Status(ctx context.Context, id string) (*dto.GenerationJobResponse, error)
}

// TimetableHandler exposes timetable generation and the committed timetable.
type TimetableHandler struct {
	service timetableService
	jobs    generationJobService
}

// NewTimetableHandler constructs the handler. jobs may be nil when async generation is disabled.
func NewTimetableHandler(svc *service.TimetableService, jobs *service.GenerationJobService) *TimetableHandler {
	h := &TimetableHandler{service: svc}
	if jobs != nil {
		h.jobs = jobs
	}
	return h
}

// Generate godoc
// @Summary Generate a timetable proposal
// @Description Runs the scheduling engine synchronously. The proposal is kept for a limited time and must be committed to take effect.
// @Tags Timetables
// @Accept json
// @Produce json
// @Param payload body dto.GenerateTimetableRequest true "Generation options"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /timetables/generate [post]
func (h *TimetableHandler) Generate(c *gin.Context) {
	req, ok := bindGenerateRequest(c)
	if !ok {
		return
	}
	proposal, err := h.service.Generate(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, proposal, nil, map[string]interface{}{
		"conflicts":   len(proposal.Conflicts),
		"unplaceable": len(proposal.Unplaceable),
	})
}

// Proposal godoc
// @Summary Get a generated proposal
// @Tags Timetables
// @Produce json
// @Param id path string true "Proposal ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /timetables/proposals/{id} [get]
func (h *TimetableHandler) Proposal(c *gin.Context) {
	proposal, err := h.service.Proposal(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, proposal, nil)
}

// ProposalConflicts godoc
// @Summary List hard-constraint conflicts of a proposal
// @Tags Timetables
// @Produce json
// @Param id path string true "Proposal ID"
// @Success 200 {object} response.Envelope
// @Router /timetables/proposals/{id}/conflicts [get]
func (h *TimetableHandler) ProposalConflicts(c *gin.Context) {
	report, err := h.service.ProposalConflicts(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// Commit godoc
// @Summary Commit a proposal
// @Description Replaces the committed entries of the proposal's departments. Proposals with conflicts are rejected.
// @Tags Timetables
// @Produce json
// @Param id path string true "Proposal ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /timetables/proposals/{id}/commit [post]
func (h *TimetableHandler) Commit(c *gin.Context) {
	result, err := h.service.Commit(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Current godoc
// @Summary Get the committed timetable
// @Tags Timetables
// @Produce json
// @Param departmentId query string false "Department ID"
// @Param teacherId query string false "Teacher ID"
// @Param classroomId query string false "Classroom ID"
// @Param day query string false "Day name"
// @Success 200 {object} response.Envelope
// @Router /timetables [get]
func (h *TimetableHandler) Current(c *gin.Context) {
	var query dto.TimetableQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid timetable query"))
		return
	}
	schedule, err := h.service.Current(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, schedule, nil, map[string]interface{}{"total": len(schedule)})
}

// CurrentConflicts godoc
// @Summary Report conflicts in the committed timetable
// @Tags Timetables
// @Produce json
// @Param departmentId query string false "Department ID"
// @Success 200 {object} response.Envelope
// @Router /timetables/conflicts [get]
func (h *TimetableHandler) CurrentConflicts(c *gin.Context) {
	report, err := h.service.CurrentConflicts(c.Request.Context(), c.Query("departmentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// Export godoc
// @Summary Export the committed timetable
// @Tags Timetables
// @Produce octet-stream
// @Param format query string true "csv, pdf, xlsx or ics"
// @Param departmentId query string false "Department ID"
// @Param teacherId query string false "Teacher ID"
// @Param classroomId query string false "Classroom ID"
// @Param weekStart query string false "Monday anchoring calendar events (YYYY-MM-DD)"
// @Success 200 {file} file
// @Router /timetables/export [get]
func (h *TimetableHandler) Export(c *gin.Context) {
	var query dto.ExportTimetableQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid export query"))
		return
	}
	file, err := h.service.Export(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Body)
}

// EnqueueJob godoc
// @Summary Generate a timetable proposal in the background
// @Tags Timetables
// @Accept json
// @Produce json
// @Param payload body dto.GenerateTimetableRequest true "Generation options"
// @Success 202 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /timetables/jobs [post]
func (h *TimetableHandler) EnqueueJob(c *gin.Context) {
	if h.jobs == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrUnavailable, "background generation disabled"))
		return
	}
	req, ok := bindGenerateRequest(c)
	if !ok {
		return
	}
	job, err := h.jobs.Enqueue(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, job, c.FullPath()+"/"+job.ID)
}

// JobStatus godoc
// @Summary Get the status of a background generation
// @Tags Timetables
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Router /timetables/jobs/{id} [get]
func (h *TimetableHandler) JobStatus(c *gin.Context) {
	if h.jobs == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrUnavailable, "background generation disabled"))
		return
	}
	job, err := h.jobs.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, job, nil)
}

func bindGenerateRequest(c *gin.Context) (dto.GenerateTimetableRequest, bool) {
	var req dto.GenerateTimetableRequest
	if c.Request.ContentLength == 0 {
		return req, true
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid generate payload"))
		return req, false
	}
	return req, true
}
