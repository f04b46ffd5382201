package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-timetable-api/internal/dto"
	"github.com/noah-isme/campus-timetable-api/internal/models"
	"github.com/noah-isme/campus-timetable-api/internal/scheduler"
	"github.com/noah-isme/campus-timetable-api/pkg/cache"
	appErrors "github.com/noah-isme/campus-timetable-api/pkg/errors"
)

type rescheduleRepository interface {
	Create(ctx context.Context, req *models.RescheduleRequest) error
	FindByID(ctx context.Context, id string) (*models.RescheduleRequest, error)
	List(ctx context.Context, filter models.RescheduleFilter) ([]models.RescheduleRequest, int, error)
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, req *models.RescheduleRequest, from models.RescheduleStatus) error
}

type scheduleEntryStore interface {
	FindByID(ctx context.Context, id string) (*models.ScheduleEntry, error)
	List(ctx context.Context, filter models.ScheduleFilter) (models.Schedule, error)
	UpdatePlacement(ctx context.Context, exec sqlx.ExtContext, entry models.ScheduleEntry) error
}

// RescheduleService handles teacher reschedule requests from submission to application.
type RescheduleService struct {
	requests    rescheduleRepository
	entries     scheduleEntryStore
	catalogs    catalogReader
	enrollments enrollmentReader
	tx          txProvider
	cache       *CacheService
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time

	applyMu sync.Mutex
}

// NewRescheduleService wires reschedule dependencies.
func NewRescheduleService(
	requests rescheduleRepository,
	entries scheduleEntryStore,
	catalogs catalogReader,
	enrollments enrollmentReader,
	tx txProvider,
	cacheSvc *CacheService,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
) *RescheduleService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RescheduleService{
		requests:    requests,
		entries:     entries,
		catalogs:    catalogs,
		enrollments: enrollments,
		tx:          tx,
		cache:       cacheSvc,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
		now:         time.Now,
	}
}

// Submit records a pending request for the teacher's own entry.
func (s *RescheduleService) Submit(ctx context.Context, payload dto.SubmitRescheduleRequest) (*models.RescheduleRequest, error) {
	if err := s.validator.Struct(payload); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid reschedule request payload")
	}
	day, ok := models.ParseWeekday(payload.RequestedDay)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown day %q", payload.RequestedDay))
	}

	entry, err := s.entries.FindByID(ctx, payload.EntryID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule entry not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule entry")
	}
	if entry.TeacherID != payload.TeacherID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "teacher does not own the schedule entry")
	}
	if entry.Day == day && entry.TimeSlotID == payload.RequestedTimeSlotID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "entry already occupies the requested placement")
	}

	catalog, err := s.catalogs.LoadCatalog(ctx, models.CatalogFilter{})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load catalog")
	}
	checker := scheduler.NewChecker(catalog, nil, nil)
	if _, ok := checker.Slot(payload.RequestedTimeSlotID); !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("time slot %s does not exist", payload.RequestedTimeSlotID))
	}
	if !checker.IsWorkingDay(day) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s is not a working day", day))
	}

	_, pending, err := s.requests.List(ctx, models.RescheduleFilter{
		EntryID: entry.ID,
		Status:  []models.RescheduleStatus{models.RescheduleStatusPending, models.RescheduleStatusApproved},
		Limit:   1,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check open requests")
	}
	if pending > 0 {
		return nil, appErrors.Clone(appErrors.ErrConflict, "an open reschedule request already exists for this entry")
	}

	req := &models.RescheduleRequest{
		ID:                  uuid.NewString(),
		TeacherID:           payload.TeacherID,
		EntryID:             entry.ID,
		OriginalDay:         entry.Day,
		OriginalTimeSlotID:  entry.TimeSlotID,
		RequestedDay:        day,
		RequestedTimeSlotID: payload.RequestedTimeSlotID,
		Reason:              strings.TrimSpace(payload.Reason),
		Status:              models.RescheduleStatusPending,
		RequestedAt:         s.now().UTC(),
	}
	if err := s.requests.Create(ctx, req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store reschedule request")
	}
	s.metrics.RecordRescheduleOutcome("submitted")
	s.logger.Info("reschedule request submitted",
		zap.String("request_id", req.ID), zap.String("entry_id", req.EntryID), zap.String("teacher_id", req.TeacherID))
	return req, nil
}

// List returns requests matching the query with pagination metadata.
func (s *RescheduleService) List(ctx context.Context, query dto.RescheduleListQuery) ([]models.RescheduleRequest, *models.Pagination, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid reschedule query")
	}
	page, size := query.Page, query.PageSize
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	filter := models.RescheduleFilter{
		TeacherID: query.TeacherID,
		EntryID:   query.EntryID,
		Limit:     size,
		Offset:    (page - 1) * size,
	}
	for _, status := range query.Status {
		filter.Status = append(filter.Status, models.RescheduleStatus(status))
	}

	requests, total, err := s.requests.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list reschedule requests")
	}
	if requests == nil {
		requests = []models.RescheduleRequest{}
	}
	return requests, models.NewPagination(filter.Limit, filter.Offset, total), nil
}

// Review approves or rejects a pending request. A request is reviewed at most once.
func (s *RescheduleService) Review(ctx context.Context, id string, payload dto.ReviewRescheduleRequest) (*models.RescheduleRequest, error) {
	if err := s.validator.Struct(payload); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid review payload")
	}
	req, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	next := models.RescheduleStatus(payload.Decision)
	if !req.Status.CanTransition(next) {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("request is %s and can no longer be reviewed", req.Status))
	}

	reviewedAt := s.now().UTC()
	reviewer := payload.ReviewerID
	req.Status = next
	req.ReviewedBy = &reviewer
	req.ReviewedAt = &reviewedAt
	if note := strings.TrimSpace(payload.Note); note != "" {
		req.Note = &note
	}

	if err := s.requests.UpdateStatus(ctx, nil, req, models.RescheduleStatusPending); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "request was reviewed concurrently")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store review")
	}
	s.metrics.RecordRescheduleOutcome(strings.ToLower(string(next)))
	return req, nil
}

// Apply moves the entry of an approved request. When the move violates a hard constraint the
// committed timetable is untouched, the request stays approved and the response carries the
// violations alongside an ErrRescheduleConflict error.
func (s *RescheduleService) Apply(ctx context.Context, id string) (*dto.ApplyRescheduleResponse, error) {
	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	req, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status.Terminal() {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("request is already %s", req.Status))
	}
	if req.Status != models.RescheduleStatusApproved {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, fmt.Sprintf("request is %s; only approved requests can be applied", req.Status))
	}

	catalog, err := s.catalogs.LoadCatalog(ctx, models.CatalogFilter{})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load catalog")
	}
	validated, _, err := scheduler.Validate(catalog)
	if err != nil {
		return nil, translateGenerationError(err)
	}
	var enrollments models.EnrollmentSets
	if s.enrollments != nil {
		ids := make([]string, 0, len(validated.Courses))
		for _, course := range validated.Courses {
			ids = append(ids, course.ID)
		}
		if enrollments, err = s.enrollments.StudentsByCourse(ctx, ids); err != nil {
			s.logger.Warn("enrollment lookup failed; using department cohorts", zap.Error(err))
			enrollments = nil
		}
	}
	schedule, err := s.entries.List(ctx, models.ScheduleFilter{})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable")
	}
	if current, _, ok := schedule.Find(req.EntryID); ok && !req.PlacedAsSubmitted(current) {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, fmt.Sprintf(
			"entry %s moved from %s %s to %s %s after the request was submitted",
			req.EntryID, req.OriginalDay, req.OriginalTimeSlotID, current.Day, current.TimeSlotID))
	}

	result, err := scheduler.NewReconciler(scheduler.NewChecker(validated, enrollments, nil)).Apply(*req, schedule)
	if err != nil {
		return nil, translateApplyError(err)
	}
	if !result.Applied {
		s.metrics.RecordRescheduleOutcome("apply_rejected")
		kinds := make([]string, 0, len(result.Violations))
		for _, kind := range result.ViolatedKinds() {
			kinds = append(kinds, string(kind))
		}
		resp := &dto.ApplyRescheduleResponse{Request: *req, Entry: result.Entry, Violations: result.Violations}
		return resp, appErrors.Clone(appErrors.ErrRescheduleConflict, "requested placement violates "+strings.Join(kinds, ", "))
	}

	if err = s.persistApplied(ctx, req, result.Entry); err != nil {
		return nil, err
	}
	_ = s.cache.Invalidate(ctx, cache.TimetableKey("*"))
	s.metrics.RecordRescheduleOutcome("applied")
	s.logger.Info("reschedule request applied", zap.String("request_id", req.ID), zap.String("entry_id", req.EntryID))
	return &dto.ApplyRescheduleResponse{Request: *req, Entry: result.Entry, Applied: true}, nil
}

func (s *RescheduleService) persistApplied(ctx context.Context, req *models.RescheduleRequest, entry models.ScheduleEntry) (err error) {
	if s.tx == nil {
		return appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.entries.UpdatePlacement(ctx, tx, entry); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to move schedule entry")
	}
	appliedAt := s.now().UTC()
	req.Status = models.RescheduleStatusApplied
	req.AppliedAt = &appliedAt
	if err = s.requests.UpdateStatus(ctx, tx, req, models.RescheduleStatusApproved); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrConflict, "request was modified concurrently")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark request applied")
	}
	if err = tx.Commit(); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit reschedule")
	}
	return nil
}

func (s *RescheduleService) find(ctx context.Context, id string) (*models.RescheduleRequest, error) {
	req, err := s.requests.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "reschedule request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load reschedule request")
	}
	return req, nil
}

func translateApplyError(err error) error {
	switch {
	case errors.Is(err, scheduler.ErrEntryNotFound):
		return appErrors.Clone(appErrors.ErrNotFound, "schedule entry not found in the committed timetable")
	case errors.Is(err, scheduler.ErrUnknownPlacement):
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	case errors.Is(err, scheduler.ErrRequestNotApproved):
		return appErrors.Wrap(err, appErrors.ErrPreconditionFailed.Code, appErrors.ErrPreconditionFailed.Status, err.Error())
	default:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply reschedule request")
	}
}
