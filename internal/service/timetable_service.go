package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-timetable-api/internal/dto"
	"github.com/noah-isme/campus-timetable-api/internal/models"
	"github.com/noah-isme/campus-timetable-api/internal/scheduler"
	"github.com/noah-isme/campus-timetable-api/pkg/cache"
	appErrors "github.com/noah-isme/campus-timetable-api/pkg/errors"
	"github.com/noah-isme/campus-timetable-api/pkg/middleware/requestid"
)

type catalogReader interface {
	LoadCatalog(ctx context.Context, filter models.CatalogFilter) (models.Catalog, error)
}

type enrollmentReader interface {
	StudentsByCourse(ctx context.Context, courseIDs []string) (models.EnrollmentSets, error)
}

type scheduleStore interface {
	List(ctx context.Context, filter models.ScheduleFilter) (models.Schedule, error)
	ReplaceDepartments(ctx context.Context, exec sqlx.ExtContext, departmentIDs []string, entries models.Schedule) error
}

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type timetableGenerator interface {
	Generate(ctx context.Context, in scheduler.Input, opts scheduler.Options) (*scheduler.Result, error)
}

const cohortFallbackWarning = "enrollment data unavailable; cohorts derived from department and semester"

// TimetableConfig governs generation defaults.
type TimetableConfig struct {
	ProposalTTL    time.Duration
	DefaultTimeout time.Duration
	MaxBacktracks  int
	Parallel       bool
	CacheTTL       time.Duration
}

// TimetableService generates timetable proposals, commits them and serves the committed timetable.
type TimetableService struct {
	catalogs    catalogReader
	enrollments enrollmentReader
	schedules   scheduleStore
	tx          txProvider
	engine      timetableGenerator
	exports     *ExportService
	cache       *CacheService
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	cfg         TimetableConfig
	store       *proposalStore
	commitMu    sync.Mutex
}

// NewTimetableService wires timetable dependencies.
func NewTimetableService(
	catalogs catalogReader,
	enrollments enrollmentReader,
	schedules scheduleStore,
	tx txProvider,
	engine timetableGenerator,
	exports *ExportService,
	cacheSvc *CacheService,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg TimetableConfig,
) *TimetableService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if engine == nil {
		engine = scheduler.NewEngine(logger)
	}
	if exports == nil {
		exports = NewExportService(ExportConfig{}, logger)
	}
	if cfg.ProposalTTL <= 0 {
		cfg.ProposalTTL = 30 * time.Minute
	}
	if cfg.MaxBacktracks <= 0 {
		cfg.MaxBacktracks = scheduler.DefaultMaxBacktracks
	}
	return &TimetableService{
		catalogs:    catalogs,
		enrollments: enrollments,
		schedules:   schedules,
		tx:          tx,
		engine:      engine,
		exports:     exports,
		cache:       cacheSvc,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
		cfg:         cfg,
		store:       newProposalStore(cfg.ProposalTTL),
	}
}

// StartSweeper evicts expired proposals on the given cron schedule. The returned function stops it.
func (s *TimetableService) StartSweeper(spec string) (func(), error) {
	c := cron.New()
	if _, err := c.AddFunc(spec, func() {
		if removed := s.store.Sweep(); removed > 0 {
			s.logger.Debug("expired timetable proposals evicted", zap.Int("count", removed))
		}
	}); err != nil {
		return nil, fmt.Errorf("schedule proposal sweeper %q: %w", spec, err)
	}
	c.Start()
	return func() { <-c.Stop().Done() }, nil
}

// Generate runs the scheduling engine and keeps the result as a proposal.
func (s *TimetableService) Generate(ctx context.Context, req dto.GenerateTimetableRequest) (*dto.TimetableProposal, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid timetable generation payload")
	}
	opts, err := s.options(req)
	if err != nil {
		return nil, err
	}

	catalog, err := s.loadCatalog(ctx)
	if err != nil {
		return nil, err
	}
	enrollments, warnings := s.loadEnrollments(ctx, catalog)

	reserved, err := s.reservedEntries(ctx, opts.DepartmentIDs)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	result, err := s.engine.Generate(ctx, scheduler.Input{Catalog: catalog, Enrollments: enrollments, Reserved: reserved}, opts)
	if err != nil {
		s.metrics.ObserveGeneration("error", time.Since(started), 0, 0, 0)
		return nil, translateGenerationError(err)
	}
	s.metrics.ObserveGeneration(generationOutcome(result), time.Since(started), result.Stats.Placed, result.Stats.Unplaceable, result.Stats.Backtracks)

	validated, _, err := scheduler.Validate(catalog)
	if err != nil {
		return nil, translateGenerationError(err)
	}
	checker := scheduler.NewChecker(validated, enrollments, opts.WeekStart)
	conflicts := proposalConflicts(scheduler.NewReporter(checker), result.Schedule, reserved)

	departments := opts.DepartmentIDs
	if len(departments) == 0 {
		departments = make([]string, 0, len(catalog.Departments))
		for _, dept := range catalog.Departments {
			departments = append(departments, dept.ID)
		}
	}
	sort.Strings(departments)

	now := time.Now().UTC()
	proposal := dto.TimetableProposal{
		ProposalID:    uuid.NewString(),
		DepartmentIDs: departments,
		Schedule:      result.Schedule,
		Unplaceable:   toUnplaceableDTO(result.Unplaceable),
		Conflicts:     conflicts,
		Warnings:      append(warnings, result.Warnings...),
		Stats:         toStatsDTO(result.Stats),
		GeneratedAt:   now,
		ExpiresAt:     now.Add(s.cfg.ProposalTTL),
	}
	if proposal.Schedule == nil {
		proposal.Schedule = models.Schedule{}
	}
	s.store.Save(proposal)

	s.logger.Info("timetable proposal generated",
		zap.String("request_id", requestid.FromContext(ctx)),
		zap.String("proposal_id", proposal.ProposalID),
		zap.Strings("departments", departments),
		zap.Int("placed", result.Stats.Placed),
		zap.Int("unplaceable", result.Stats.Unplaceable),
		zap.Int("conflicts", len(conflicts)),
	)
	return &proposal, nil
}

// Proposal returns a generated proposal that has not expired.
func (s *TimetableService) Proposal(_ context.Context, id string) (*dto.TimetableProposal, error) {
	proposal, ok := s.store.Get(id)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "proposal not found or expired")
	}
	return &proposal, nil
}

// ProposalConflicts returns the conflict report of a proposal.
func (s *TimetableService) ProposalConflicts(ctx context.Context, id string) (*dto.TimetableConflicts, error) {
	proposal, err := s.Proposal(ctx, id)
	if err != nil {
		return nil, err
	}
	return &dto.TimetableConflicts{Conflicts: proposal.Conflicts, Total: len(proposal.Conflicts)}, nil
}

// Commit replaces the committed entries of the proposal's departments with the proposal.
func (s *TimetableService) Commit(ctx context.Context, id string) (*dto.CommitProposalResponse, error) {
	proposal, ok := s.store.Get(id)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "proposal not found or expired")
	}
	if len(proposal.Conflicts) > 0 {
		return nil, appErrors.Clone(appErrors.ErrConflict, "proposal contains unresolved conflicts")
	}
	if s.tx == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}

	s.commitMu.Lock()
	defer s.commitMu.Unlock()
	stale, err := s.commitConflicts(ctx, proposal)
	if err != nil {
		return nil, err
	}
	if len(stale) > 0 {
		details := make([]string, 0, len(stale))
		for _, record := range stale {
			details = append(details, record.Description)
		}
		return nil, appErrors.Clone(appErrors.ErrConflict, "proposal clashes with the committed timetable; regenerate it").WithDetails(details)
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.schedules.ReplaceDepartments(ctx, tx, proposal.DepartmentIDs, proposal.Schedule); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist timetable")
	}
	if err = tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit timetable")
	}

	s.store.Delete(id)
	_ = s.cache.Invalidate(ctx, cache.TimetableKey("*"))
	if len(proposal.Unplaceable) > 0 {
		s.logger.Warn("committed timetable with unplaceable sessions",
			zap.String("proposal_id", id), zap.Int("unplaceable", len(proposal.Unplaceable)))
	}

	return &dto.CommitProposalResponse{
		ProposalID:    id,
		DepartmentIDs: proposal.DepartmentIDs,
		Entries:       len(proposal.Schedule),
		CommittedAt:   time.Now().UTC(),
	}, nil
}

// Current returns the committed timetable narrowed by the query.
func (s *TimetableService) Current(ctx context.Context, query dto.TimetableQuery) (models.Schedule, error) {
	filter, err := scheduleFilter(query)
	if err != nil {
		return nil, err
	}
	key := cache.TimetableKey("view", filter.DepartmentID, filter.TeacherID, filter.ClassroomID, string(filter.Day))
	var schedule models.Schedule
	err = s.cache.Fetch(ctx, key, &schedule, func() error {
		loaded, loadErr := s.schedules.List(ctx, filter)
		if loadErr != nil {
			return appErrors.Wrap(loadErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable")
		}
		schedule = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	if schedule == nil {
		schedule = models.Schedule{}
	}
	return schedule, nil
}

// CurrentConflicts reports conflicts in the committed timetable, optionally narrowed to entries of one department.
func (s *TimetableService) CurrentConflicts(ctx context.Context, departmentID string) (*dto.TimetableConflicts, error) {
	var report dto.TimetableConflicts
	err := s.cache.Fetch(ctx, cache.TimetableKey("conflicts", departmentID), &report, func() error {
		schedule, err := s.schedules.List(ctx, models.ScheduleFilter{})
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable")
		}
		catalog, err := s.loadCatalog(ctx)
		if err != nil {
			return err
		}
		validated, _, err := scheduler.Validate(catalog)
		if err != nil {
			return translateGenerationError(err)
		}
		enrollments, _ := s.loadEnrollments(ctx, validated)
		records := scheduler.NewReporter(scheduler.NewChecker(validated, enrollments, nil)).ReportConflicts(schedule)
		if departmentID == "" {
			s.metrics.SetConflicts(records)
		}
		report.Conflicts = filterConflictsByDepartment(records, schedule, departmentID)
		report.Total = len(report.Conflicts)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if report.Conflicts == nil {
		report.Conflicts = []models.ConflictRecord{}
	}
	return &report, nil
}

// Export renders the committed timetable in the requested format.
func (s *TimetableService) Export(ctx context.Context, query dto.ExportTimetableQuery) (*ExportFile, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid export query")
	}
	weekStart, err := parseWeekStart(query.WeekStart)
	if err != nil {
		return nil, err
	}
	schedule, err := s.Current(ctx, query.TimetableQuery)
	if err != nil {
		return nil, err
	}
	catalog, err := s.loadCatalog(ctx)
	if err != nil {
		return nil, err
	}
	return s.exports.Render(query.Format, catalog, schedule, weekStart, exportLabel(query.TimetableQuery))
}

func (s *TimetableService) options(req dto.GenerateTimetableRequest) (scheduler.Options, error) {
	opts := scheduler.DefaultOptions()
	opts.DepartmentIDs = req.DepartmentIDs
	opts.Parallel = req.Parallel || s.cfg.Parallel
	opts.MaxBacktracks = s.cfg.MaxBacktracks
	opts.Timeout = s.cfg.DefaultTimeout
	if req.AvoidConflicts != nil {
		opts.AvoidConflicts = *req.AvoidConflicts
	}
	if req.OptimizeRooms != nil {
		opts.OptimizeRooms = *req.OptimizeRooms
	}
	if req.RespectPreferences != nil {
		opts.RespectPreferences = *req.RespectPreferences
	}
	if req.TimeoutSeconds > 0 {
		opts.Timeout = time.Duration(req.TimeoutSeconds) * time.Second
	}
	if req.MaxBacktracks > 0 {
		opts.MaxBacktracks = req.MaxBacktracks
	}
	weekStart, err := parseWeekStart(req.WeekStart)
	if err != nil {
		return scheduler.Options{}, err
	}
	opts.WeekStart = weekStart
	return opts, nil
}

func (s *TimetableService) loadCatalog(ctx context.Context) (models.Catalog, error) {
	catalog, err := s.catalogs.LoadCatalog(ctx, models.CatalogFilter{})
	if err != nil {
		return models.Catalog{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load catalog")
	}
	return catalog, nil
}

func (s *TimetableService) loadEnrollments(ctx context.Context, catalog models.Catalog) (models.EnrollmentSets, []string) {
	if s.enrollments == nil {
		return nil, nil
	}
	ids := make([]string, 0, len(catalog.Courses))
	for _, course := range catalog.Courses {
		ids = append(ids, course.ID)
	}
	sets, err := s.enrollments.StudentsByCourse(ctx, ids)
	if err != nil {
		s.logger.Warn("enrollment lookup failed", zap.Error(err))
		return nil, []string{cohortFallbackWarning}
	}
	return sets, nil
}

// reservedEntries returns the committed entries outside the regenerated departments.
func (s *TimetableService) reservedEntries(ctx context.Context, departmentIDs []string) (models.Schedule, error) {
	if len(departmentIDs) == 0 || s.schedules == nil {
		return nil, nil
	}
	committed, err := s.schedules.List(ctx, models.ScheduleFilter{})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load committed timetable")
	}
	target := models.CatalogFilter{DepartmentIDs: departmentIDs}
	return committed.Filter(func(entry models.ScheduleEntry) bool {
		return !target.Includes(entry.DepartmentID)
	}), nil
}

// commitConflicts checks a proposal against the entries committed since it was generated.
func (s *TimetableService) commitConflicts(ctx context.Context, proposal dto.TimetableProposal) ([]models.ConflictRecord, error) {
	reserved, err := s.reservedEntries(ctx, proposal.DepartmentIDs)
	if err != nil || len(reserved) == 0 {
		return nil, err
	}
	catalog, err := s.loadCatalog(ctx)
	if err != nil {
		return nil, err
	}
	validated, _, err := scheduler.Validate(catalog)
	if err != nil {
		return nil, translateGenerationError(err)
	}
	enrollments, _ := s.loadEnrollments(ctx, validated)
	return proposalConflicts(scheduler.NewReporter(scheduler.NewChecker(validated, enrollments, nil)), proposal.Schedule, reserved), nil
}

func proposalConflicts(reporter *scheduler.Reporter, schedule, reserved models.Schedule) []models.ConflictRecord {
	own := make(map[string]bool, len(schedule))
	combined := make(models.Schedule, 0, len(schedule)+len(reserved))
	for _, entry := range schedule {
		own[entry.ID] = true
		combined = append(combined, entry)
	}
	combined = append(combined, reserved...)

	records := []models.ConflictRecord{}
	for _, record := range reporter.ReportConflicts(combined) {
		for _, id := range record.EntryIDs {
			if own[id] {
				records = append(records, record)
				break
			}
		}
	}
	return records
}

func filterConflictsByDepartment(records []models.ConflictRecord, schedule models.Schedule, departmentID string) []models.ConflictRecord {
	if departmentID == "" {
		return records
	}
	departments := make(map[string]string, len(schedule))
	for _, entry := range schedule {
		departments[entry.ID] = entry.DepartmentID
	}
	out := []models.ConflictRecord{}
	for _, record := range records {
		for _, id := range record.EntryIDs {
			if departments[id] == departmentID {
				out = append(out, record)
				break
			}
		}
	}
	return out
}

func translateGenerationError(err error) error {
	var validation *scheduler.ValidationError
	switch {
	case errors.As(err, &validation):
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid timetable input").
			WithDetails(validation.Issues)
	case errors.Is(err, context.Canceled):
		return appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "timetable generation cancelled")
	default:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate timetable")
	}
}

func generationOutcome(result *scheduler.Result) string {
	switch {
	case result.Stats.TimedOut:
		return "timeout"
	case result.Stats.Unplaceable > 0:
		return "partial"
	default:
		return "complete"
	}
}

func parseWeekStart(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	parsed, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "weekStart must be a date formatted as YYYY-MM-DD")
	}
	if parsed.Weekday() != time.Monday {
		return nil, appErrors.Clone(appErrors.ErrValidation, "weekStart must be a Monday")
	}
	return &parsed, nil
}

func scheduleFilter(query dto.TimetableQuery) (models.ScheduleFilter, error) {
	filter := models.ScheduleFilter{
		DepartmentID: query.DepartmentID,
		TeacherID:    query.TeacherID,
		ClassroomID:  query.ClassroomID,
	}
	if query.Day != "" {
		day, ok := models.ParseWeekday(query.Day)
		if !ok {
			return models.ScheduleFilter{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown day %q", query.Day))
		}
		filter.Day = day
	}
	return filter, nil
}

func exportLabel(query dto.TimetableQuery) string {
	switch {
	case query.TeacherID != "":
		return "teacher " + query.TeacherID
	case query.ClassroomID != "":
		return "room " + query.ClassroomID
	case query.DepartmentID != "":
		return "department " + query.DepartmentID
	default:
		return ""
	}
}

func toUnplaceableDTO(requests []scheduler.SlotRequest) []dto.UnplaceableRequest {
	out := make([]dto.UnplaceableRequest, 0, len(requests))
	for _, req := range requests {
		out = append(out, dto.UnplaceableRequest{
			ID:           req.ID,
			CourseID:     req.CourseID,
			DepartmentID: req.DepartmentID,
			TeacherID:    req.TeacherID,
			SessionKind:  req.SessionKind,
			SessionIndex: req.SessionIndex,
			Reason:       req.Reason,
			Blocking:     req.Blocking,
		})
	}
	return out
}

func toStatsDTO(stats scheduler.Stats) dto.GenerationStats {
	return dto.GenerationStats{
		Requests:    stats.Requests,
		Placed:      stats.Placed,
		Unplaceable: stats.Unplaceable,
		Backtracks:  stats.Backtracks,
		Partitions:  stats.Partitions,
		TimedOut:    stats.TimedOut,
		DurationMs:  stats.Duration.Milliseconds(),
	}
}

type proposalStore struct {
	ttl   time.Duration
	mu    sync.RWMutex
	items map[string]dto.TimetableProposal
	now   func() time.Time
}

func newProposalStore(ttl time.Duration) *proposalStore {
	return &proposalStore{
		ttl:   ttl,
		items: make(map[string]dto.TimetableProposal),
		now:   time.Now,
	}
}

func (s *proposalStore) Save(proposal dto.TimetableProposal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[proposal.ProposalID] = proposal
}

func (s *proposalStore) Get(id string) (dto.TimetableProposal, bool) {
	s.mu.RLock()
	proposal, ok := s.items[id]
	s.mu.RUnlock()
	if !ok {
		return dto.TimetableProposal{}, false
	}
	if s.now().Sub(proposal.GeneratedAt) > s.ttl {
		s.Delete(id)
		return dto.TimetableProposal{}, false
	}
	return proposal, true
}

func (s *proposalStore) Delete(id string) {
	s.mu.Lock()
	delete(s.items, id)
	s.mu.Unlock()
}

// Sweep drops expired proposals and reports how many were removed.
func (s *proposalStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, proposal := range s.items {
		if s.now().Sub(proposal.GeneratedAt) > s.ttl {
			delete(s.items, id)
			removed++
		}
	}
	return removed
}
