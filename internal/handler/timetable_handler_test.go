package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-timetable-api/internal/dto"
	"github.com/noah-isme/campus-timetable-api/internal/models"
	"github.com/noah-isme/campus-timetable-api/internal/service"
	appErrors "github.com/noah-isme/campus-timetable-api/pkg/errors"
)

type timetableServiceStub struct {
	generated   dto.GenerateTimetableRequest
	query       dto.TimetableQuery
	exportQuery dto.ExportTimetableQuery
	commitErr   error
}

func (s *timetableServiceStub) Generate(_ context.Context, req dto.GenerateTimetableRequest) (*dto.TimetableProposal, error) {
	s.generated = req
	return &dto.TimetableProposal{
		ProposalID: "proposal-1",
		Schedule:   models.Schedule{{ID: "c1#0", CourseID: "c1", Day: models.Monday, TimeSlotID: "s1", Origin: models.Fresh{}}},
		Conflicts:  []models.ConflictRecord{},
	}, nil
}

func (s *timetableServiceStub) Proposal(_ context.Context, id string) (*dto.TimetableProposal, error) {
	if id != "proposal-1" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "proposal not found or expired")
	}
	return &dto.TimetableProposal{ProposalID: id}, nil
}

func (s *timetableServiceStub) ProposalConflicts(_ context.Context, id string) (*dto.TimetableConflicts, error) {
	return &dto.TimetableConflicts{Conflicts: []models.ConflictRecord{}}, nil
}

func (s *timetableServiceStub) Commit(_ context.Context, id string) (*dto.CommitProposalResponse, error) {
	if s.commitErr != nil {
		return nil, s.commitErr
	}
	return &dto.CommitProposalResponse{ProposalID: id, Entries: 1}, nil
}

func (s *timetableServiceStub) Current(_ context.Context, query dto.TimetableQuery) (models.Schedule, error) {
	s.query = query
	return models.Schedule{}, nil
}

func (s *timetableServiceStub) CurrentConflicts(_ context.Context, departmentID string) (*dto.TimetableConflicts, error) {
	return &dto.TimetableConflicts{Conflicts: []models.ConflictRecord{}}, nil
}

func (s *timetableServiceStub) Export(_ context.Context, query dto.ExportTimetableQuery) (*service.ExportFile, error) {
	s.exportQuery = query
	return &service.ExportFile{Filename: "timetable-teacher-t1.csv", ContentType: "text/csv", Body: []byte("Day\n")}, nil
}

type jobServiceStub struct{}

func (jobServiceStub) Enqueue(context.Context, dto.GenerateTimetableRequest) (*dto.GenerationJobResponse, error) {
	return &dto.GenerationJobResponse{ID: "job-1", Status: "QUEUED"}, nil
}

func (jobServiceStub) Status(_ context.Context, id string) (*dto.GenerationJobResponse, error) {
	return &dto.GenerationJobResponse{ID: id, Status: "SUCCEEDED", ProposalID: "proposal-1"}, nil
}

func timetableRouter(h *TimetableHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	group := router.Group("/api/v1/timetables")
	group.POST("/generate", h.Generate)
	group.GET("/proposals/:id", h.Proposal)
	group.GET("/proposals/:id/conflicts", h.ProposalConflicts)
	group.POST("/proposals/:id/commit", h.Commit)
	group.GET("", h.Current)
	group.GET("/conflicts", h.CurrentConflicts)
	group.GET("/export", h.Export)
	group.POST("/jobs", h.EnqueueJob)
	group.GET("/jobs/:id", h.JobStatus)
	return router
}

func serve(router *gin.Engine, method, path string, body []byte) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestTimetableHandlerGenerate(t *testing.T) {
	stub := &timetableServiceStub{}
	router := timetableRouter(&TimetableHandler{service: stub})

	w := serve(router, http.MethodPost, "/api/v1/timetables/generate", []byte(`{"departmentIds":["cs"],"avoidConflicts":false}`))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"cs"}, stub.generated.DepartmentIDs)
	require.NotNil(t, stub.generated.AvoidConflicts)
	assert.False(t, *stub.generated.AvoidConflicts)

	var body struct {
		Data struct {
			ProposalID string `json:"proposalId"`
			Schedule   []struct {
				ID            string `json:"id"`
				IsRescheduled bool   `json:"isRescheduled"`
			} `json:"schedule"`
		} `json:"data"`
		Meta map[string]int `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "proposal-1", body.Data.ProposalID)
	require.Len(t, body.Data.Schedule, 1)
	assert.Equal(t, "c1#0", body.Data.Schedule[0].ID)
	assert.Equal(t, 0, body.Meta["conflicts"])
}

func TestTimetableHandlerGenerateEmptyBody(t *testing.T) {
	stub := &timetableServiceStub{}
	router := timetableRouter(&TimetableHandler{service: stub})

	w := serve(router, http.MethodPost, "/api/v1/timetables/generate", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, stub.generated.DepartmentIDs)
}

func TestTimetableHandlerGenerateMalformed(t *testing.T) {
	router := timetableRouter(&TimetableHandler{service: &timetableServiceStub{}})
	w := serve(router, http.MethodPost, "/api/v1/timetables/generate", []byte(`{"departmentIds":`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTimetableHandlerProposalNotFound(t *testing.T) {
	router := timetableRouter(&TimetableHandler{service: &timetableServiceStub{}})
	w := serve(router, http.MethodGet, "/api/v1/timetables/proposals/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "NOT_FOUND")
}

func TestTimetableHandlerCommitConflict(t *testing.T) {
	stub := &timetableServiceStub{commitErr: appErrors.Clone(appErrors.ErrConflict, "proposal contains unresolved conflicts")}
	router := timetableRouter(&TimetableHandler{service: stub})
	w := serve(router, http.MethodPost, "/api/v1/timetables/proposals/proposal-1/commit", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestTimetableHandlerCurrentBindsFilters(t *testing.T) {
	stub := &timetableServiceStub{}
	router := timetableRouter(&TimetableHandler{service: stub})
	w := serve(router, http.MethodGet, "/api/v1/timetables?departmentId=cs&teacherId=t1&day=monday", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, dto.TimetableQuery{DepartmentID: "cs", TeacherID: "t1", Day: "monday"}, stub.query)
}

func TestTimetableHandlerExportStreamsAttachment(t *testing.T) {
	stub := &timetableServiceStub{}
	router := timetableRouter(&TimetableHandler{service: stub})
	w := serve(router, http.MethodGet, "/api/v1/timetables/export?format=csv&teacherId=t1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "csv", stub.exportQuery.Format)
	assert.Equal(t, "t1", stub.exportQuery.TeacherID)
	assert.Equal(t, `attachment; filename="timetable-teacher-t1.csv"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "Day\n", w.Body.String())
}

func TestTimetableHandlerJobs(t *testing.T) {
	router := timetableRouter(&TimetableHandler{service: &timetableServiceStub{}, jobs: jobServiceStub{}})

	w := serve(router, http.MethodPost, "/api/v1/timetables/jobs", []byte(`{}`))
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "/api/v1/timetables/jobs/job-1", w.Header().Get("Location"))

	w = serve(router, http.MethodGet, "/api/v1/timetables/jobs/job-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"proposalId":"proposal-1"`)
}

func TestTimetableHandlerJobsDisabled(t *testing.T) {
	router := timetableRouter(NewTimetableHandler(nil, nil))
	w := serve(router, http.MethodPost, "/api/v1/timetables/jobs", []byte(`{}`))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
