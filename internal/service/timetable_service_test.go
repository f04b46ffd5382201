package service

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-timetable-api/internal/dto"
	"github.com/noah-isme/campus-timetable-api/internal/models"
	appErrors "github.com/noah-isme/campus-timetable-api/pkg/errors"
)

type stubCatalogReader struct {
	catalog models.Catalog
	err     error
}

func (s *stubCatalogReader) LoadCatalog(context.Context, models.CatalogFilter) (models.Catalog, error) {
	return s.catalog, s.err
}

type stubEnrollmentReader struct {
	sets models.EnrollmentSets
	err  error
}

func (s *stubEnrollmentReader) StudentsByCourse(context.Context, []string) (models.EnrollmentSets, error) {
	return s.sets, s.err
}

type stubScheduleStore struct {
	mu           sync.Mutex
	committed    models.Schedule
	listErr      error
	replacedDept []string
	replaced     models.Schedule
	updated      []models.ScheduleEntry
	listCalls    int
}

func (s *stubScheduleStore) List(_ context.Context, filter models.ScheduleFilter) (models.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.committed.Filter(filter.Matches), nil
}

func (s *stubScheduleStore) ReplaceDepartments(_ context.Context, _ sqlx.ExtContext, departmentIDs []string, entries models.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replacedDept = departmentIDs
	s.replaced = entries
	target := models.CatalogFilter{DepartmentIDs: departmentIDs}
	kept := s.committed.Filter(func(entry models.ScheduleEntry) bool {
		return !target.Includes(entry.DepartmentID)
	})
	s.committed = append(kept, entries...)
	return nil
}

func (s *stubScheduleStore) FindByID(_ context.Context, id string) (*models.ScheduleEntry, error) {
	entry, _, ok := s.committed.Find(id)
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &entry, nil
}

func (s *stubScheduleStore) UpdatePlacement(_ context.Context, _ sqlx.ExtContext, entry models.ScheduleEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updated = append(s.updated, entry)
	return nil
}

func clockAt(raw string) models.ClockTime {
	return models.MustClock(raw)
}

// smallCatalog has two departments, two teachers, two rooms and four weekly periods.
func smallCatalog() models.Catalog {
	return models.Catalog{
		Departments: []models.Department{{ID: "cs", Name: "Computer Science"}, {ID: "math", Name: "Mathematics"}},
		Teachers: []models.Teacher{
			{ID: "t1", Name: "Grace", DepartmentIDs: pq.StringArray{"cs"}},
			{ID: "t2", Name: "Emmy", DepartmentIDs: pq.StringArray{"math"}},
		},
		Classrooms: []models.Classroom{
			{ID: "r1", Name: "Room 1", Capacity: 50, Type: models.RoomTypeLecture},
			{ID: "r2", Name: "Room 2", Capacity: 50, Type: models.RoomTypeLecture},
		},
		TimeSlots: []models.TimeSlot{
			{ID: "s1", Start: clockAt("08:00"), End: clockAt("09:30")},
			{ID: "s2", Start: clockAt("10:00"), End: clockAt("11:30")},
		},
		Days: []models.Weekday{models.Monday, models.Tuesday},
		Courses: []models.Course{
			{ID: "c1", Code: "CS101", Name: "Programming", DepartmentID: "cs", Semester: 1, TeacherID: "t1", ExpectedEnrollment: 30},
			{ID: "c2", Code: "CS102", Name: "Logic", DepartmentID: "cs", Semester: 1, TeacherID: "t1", ExpectedEnrollment: 30},
			{ID: "m1", Code: "MA101", Name: "Calculus", DepartmentID: "math", Semester: 1, TeacherID: "t2", ExpectedEnrollment: 40},
		},
	}
}

func newTimetableServiceForTest(t *testing.T, catalog models.Catalog, store *stubScheduleStore) (*TimetableService, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	svc := NewTimetableService(
		&stubCatalogReader{catalog: catalog},
		&stubEnrollmentReader{sets: models.EnrollmentSets{}},
		store,
		sqlx.NewDb(db, "sqlmock"),
		nil, nil, nil, NewMetricsService(), nil, nil,
		TimetableConfig{ProposalTTL: time.Minute},
	)
	return svc, mock
}

func appErrorCode(t *testing.T, err error) string {
	t.Helper()
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr), "expected app error, got %v", err)
	return appErr.Code
}

func TestTimetableServiceGenerateStoresProposal(t *testing.T) {
	svc, _ := newTimetableServiceForTest(t, smallCatalog(), &stubScheduleStore{})

	proposal, err := svc.Generate(context.Background(), dto.GenerateTimetableRequest{})
	require.NoError(t, err)

	assert.Len(t, proposal.Schedule, 3)
	assert.Empty(t, proposal.Unplaceable)
	assert.Empty(t, proposal.Conflicts)
	assert.Equal(t, []string{"cs", "math"}, proposal.DepartmentIDs)
	assert.Equal(t, 3, proposal.Stats.Placed)

	fetched, err := svc.Proposal(context.Background(), proposal.ProposalID)
	require.NoError(t, err)
	assert.Equal(t, proposal.Schedule, fetched.Schedule)

	report, err := svc.ProposalConflicts(context.Background(), proposal.ProposalID)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Total)
}

func TestTimetableServiceGenerateReservesOtherDepartments(t *testing.T) {
	catalog := smallCatalog()
	// the math teacher also teaches a cs course
	catalog.Courses[1].TeacherID = "t2"
	store := &stubScheduleStore{committed: models.Schedule{
		{ID: "m1#0", CourseID: "m1", TeacherID: "t2", ClassroomID: "r1", DepartmentID: "math", Day: models.Monday,
			TimeSlotID: "s1", Start: clockAt("08:00"), End: clockAt("09:30"), SessionKind: models.SessionLecture, Origin: models.Fresh{}},
	}}
	svc, _ := newTimetableServiceForTest(t, catalog, store)

	proposal, err := svc.Generate(context.Background(), dto.GenerateTimetableRequest{DepartmentIDs: []string{"cs"}})
	require.NoError(t, err)

	assert.Equal(t, []string{"cs"}, proposal.DepartmentIDs)
	require.Len(t, proposal.Schedule, 2)
	for _, entry := range proposal.Schedule {
		assert.Equal(t, "cs", entry.DepartmentID)
		if entry.TeacherID == "t2" {
			assert.False(t, entry.Day == models.Monday && entry.TimeSlotID == "s1", "reserved slot reused")
		}
		if entry.ClassroomID == "r1" {
			assert.False(t, entry.Day == models.Monday && entry.TimeSlotID == "s1", "reserved room reused")
		}
	}
	assert.Empty(t, proposal.Conflicts)
}

func TestTimetableServiceGenerateValidationError(t *testing.T) {
	catalog := smallCatalog()
	catalog.Courses[0].Prerequisites = pq.StringArray{"c2"}
	catalog.Courses[1].Prerequisites = pq.StringArray{"c1"}
	svc, _ := newTimetableServiceForTest(t, catalog, &stubScheduleStore{})

	_, err := svc.Generate(context.Background(), dto.GenerateTimetableRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrorCode(t, err))
	assert.Contains(t, err.Error(), "prerequisite cycle")
}

func TestTimetableServiceGenerateRejectsBadWeekStart(t *testing.T) {
	svc, _ := newTimetableServiceForTest(t, smallCatalog(), &stubScheduleStore{})

	_, err := svc.Generate(context.Background(), dto.GenerateTimetableRequest{WeekStart: "2026-03-18"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Monday")
}

func TestTimetableServiceGenerateFallsBackWithoutEnrollments(t *testing.T) {
	svc, _ := newTimetableServiceForTest(t, smallCatalog(), &stubScheduleStore{})
	svc.enrollments = &stubEnrollmentReader{err: errors.New("db down")}

	proposal, err := svc.Generate(context.Background(), dto.GenerateTimetableRequest{})
	require.NoError(t, err)
	assert.Contains(t, proposal.Warnings, cohortFallbackWarning)
}

func TestTimetableServiceCommit(t *testing.T) {
	store := &stubScheduleStore{}
	svc, mock := newTimetableServiceForTest(t, smallCatalog(), store)

	proposal, err := svc.Generate(context.Background(), dto.GenerateTimetableRequest{DepartmentIDs: []string{"math"}})
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectCommit()

	resp, err := svc.Commit(context.Background(), proposal.ProposalID)
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Entries)
	assert.Equal(t, []string{"math"}, store.replacedDept)
	assert.Len(t, store.replaced, 1)
	assert.NoError(t, mock.ExpectationsWereMet())

	_, err = svc.Proposal(context.Background(), proposal.ProposalID)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrorCode(t, err))
}

func TestTimetableServiceCommitRejectsConflicts(t *testing.T) {
	catalog := smallCatalog()
	catalog.Courses[0].Sessions = models.SessionRequirements{{Kind: models.SessionLecture, Count: 5}}
	svc, _ := newTimetableServiceForTest(t, catalog, &stubScheduleStore{})

	avoid := false
	proposal, err := svc.Generate(context.Background(), dto.GenerateTimetableRequest{DepartmentIDs: []string{"cs"}, AvoidConflicts: &avoid})
	require.NoError(t, err)
	require.NotEmpty(t, proposal.Conflicts)

	_, err = svc.Commit(context.Background(), proposal.ProposalID)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrorCode(t, err))
}

func TestTimetableServiceCommitRejectsProposalOvertakenByAnotherCommit(t *testing.T) {
	catalog := smallCatalog()
	catalog.Classrooms = catalog.Classrooms[:1]
	catalog.Days = []models.Weekday{models.Monday}
	catalog.Courses = []models.Course{catalog.Courses[0], catalog.Courses[2]}
	store := &stubScheduleStore{}
	svc, mock := newTimetableServiceForTest(t, catalog, store)
	ctx := context.Background()

	csProposal, err := svc.Generate(ctx, dto.GenerateTimetableRequest{DepartmentIDs: []string{"cs"}})
	require.NoError(t, err)
	mathProposal, err := svc.Generate(ctx, dto.GenerateTimetableRequest{DepartmentIDs: []string{"math"}})
	require.NoError(t, err)
	// both were generated against an empty timetable and want the same room and period
	require.Equal(t, "s1", csProposal.Schedule[0].TimeSlotID)
	require.Equal(t, "s1", mathProposal.Schedule[0].TimeSlotID)

	mock.ExpectBegin()
	mock.ExpectCommit()
	_, err = svc.Commit(ctx, csProposal.ProposalID)
	require.NoError(t, err)

	_, err = svc.Commit(ctx, mathProposal.ProposalID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrorCode(t, err))
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.NotEmpty(t, appErr.Details)
	assert.NoError(t, mock.ExpectationsWereMet())

	conflicts, err := svc.CurrentConflicts(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, conflicts.Conflicts)

	regenerated, err := svc.Generate(ctx, dto.GenerateTimetableRequest{DepartmentIDs: []string{"math"}})
	require.NoError(t, err)
	require.Len(t, regenerated.Schedule, 1)
	assert.Equal(t, "s2", regenerated.Schedule[0].TimeSlotID)

	mock.ExpectBegin()
	mock.ExpectCommit()
	_, err = svc.Commit(ctx, regenerated.ProposalID)
	require.NoError(t, err)
	assert.Len(t, store.committed, 2)
}

func TestTimetableServiceCurrent(t *testing.T) {
	store := &stubScheduleStore{committed: models.Schedule{
		{ID: "c1#0", CourseID: "c1", TeacherID: "t1", ClassroomID: "r1", DepartmentID: "cs", Day: models.Monday, TimeSlotID: "s1", Origin: models.Fresh{}},
		{ID: "m1#0", CourseID: "m1", TeacherID: "t2", ClassroomID: "r2", DepartmentID: "math", Day: models.Tuesday, TimeSlotID: "s1", Origin: models.Fresh{}},
	}}
	svc, _ := newTimetableServiceForTest(t, smallCatalog(), store)

	schedule, err := svc.Current(context.Background(), dto.TimetableQuery{Day: "tue"})
	require.NoError(t, err)
	require.Len(t, schedule, 1)
	assert.Equal(t, "m1#0", schedule[0].ID)

	_, err = svc.Current(context.Background(), dto.TimetableQuery{Day: "someday"})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrorCode(t, err))
}

func TestTimetableServiceCurrentConflicts(t *testing.T) {
	store := &stubScheduleStore{committed: models.Schedule{
		{ID: "c1#0", CourseID: "c1", TeacherID: "t1", ClassroomID: "r1", DepartmentID: "cs", Day: models.Monday, TimeSlotID: "s1",
			Start: clockAt("08:00"), End: clockAt("09:30"), SessionKind: models.SessionLecture, Origin: models.Fresh{}},
		{ID: "m1#0", CourseID: "m1", TeacherID: "t2", ClassroomID: "r1", DepartmentID: "math", Day: models.Monday, TimeSlotID: "s1",
			Start: clockAt("08:00"), End: clockAt("09:30"), SessionKind: models.SessionLecture, Origin: models.Fresh{}},
		{ID: "c2#0", CourseID: "c2", TeacherID: "t1", ClassroomID: "r2", DepartmentID: "cs", Day: models.Tuesday, TimeSlotID: "s1",
			Start: clockAt("08:00"), End: clockAt("09:30"), SessionKind: models.SessionLecture, Origin: models.Fresh{}},
	}}
	svc, _ := newTimetableServiceForTest(t, smallCatalog(), store)

	report, err := svc.CurrentConflicts(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, 1, report.Total)
	assert.Equal(t, models.ConstraintClassroomClash, report.Conflicts[0].Kind)
	assert.Equal(t, []string{"c1#0", "m1#0"}, report.Conflicts[0].EntryIDs)

	scoped, err := svc.CurrentConflicts(context.Background(), "math")
	require.NoError(t, err)
	assert.Equal(t, 1, scoped.Total)
}

func TestTimetableServiceExportCSV(t *testing.T) {
	store := &stubScheduleStore{committed: models.Schedule{
		{ID: "c1#0", CourseID: "c1", TeacherID: "t1", ClassroomID: "r1", DepartmentID: "cs", Day: models.Monday, TimeSlotID: "s1",
			Start: clockAt("08:00"), End: clockAt("09:30"), SessionKind: models.SessionLecture, Origin: models.Fresh{}},
	}}
	svc, _ := newTimetableServiceForTest(t, smallCatalog(), store)

	file, err := svc.Export(context.Background(), dto.ExportTimetableQuery{TimetableQuery: dto.TimetableQuery{TeacherID: "t1"}, Format: "csv"})
	require.NoError(t, err)
	assert.Equal(t, "timetable-teacher-t1.csv", file.Filename)
	assert.True(t, strings.HasPrefix(string(file.Body), "Day,Start,End,Slot,Course"))
	assert.Contains(t, string(file.Body), "Monday,08:00,09:30,s1,CS101,Programming,LECTURE 1,Grace,Room 1,cs,")

	_, err = svc.Export(context.Background(), dto.ExportTimetableQuery{Format: "docx"})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, http.StatusBadRequest, appErr.Status)
}

func TestProposalStoreSweep(t *testing.T) {
	store := newProposalStore(time.Minute)
	now := time.Date(2026, 3, 16, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	store.Save(dto.TimetableProposal{ProposalID: "old", GeneratedAt: now.Add(-2 * time.Minute)})
	store.Save(dto.TimetableProposal{ProposalID: "fresh", GeneratedAt: now})

	assert.Equal(t, 1, store.Sweep())
	_, ok := store.Get("old")
	assert.False(t, ok)
	_, ok = store.Get("fresh")
	assert.True(t, ok)
}

func TestTimetableServiceStartSweeperRejectsBadSpec(t *testing.T) {
	svc, _ := newTimetableServiceForTest(t, smallCatalog(), &stubScheduleStore{})
	_, err := svc.StartSweeper("not a schedule")
	require.Error(t, err)

	stop, err := svc.StartSweeper("@every 1m")
	require.NoError(t, err)
	stop()
}
