package scheduler

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-timetable-api/internal/models"
)

func generate(t *testing.T, catalog models.Catalog, opts Options) *Result {
	t.Helper()
	result, err := NewEngine(nil).Generate(context.Background(), Input{Catalog: catalog}, opts)
	require.NoError(t, err)
	return result
}

func TestGenerateProducesConflictFreeSchedule(t *testing.T) {
	catalog := campusCatalog()
	result := generate(t, catalog, DefaultOptions())

	assert.Empty(t, result.Unplaceable)
	assert.Len(t, result.Schedule, 10)
	assert.Equal(t, 10, result.Stats.Requests)
	assert.Equal(t, 10, result.Stats.Placed)

	reporter := NewReporter(NewChecker(catalog, nil, nil))
	assert.Empty(t, reporter.ReportConflicts(result.Schedule))
}

func TestGenerateNeverDoubleBooksTeachers(t *testing.T) {
	result := generate(t, campusCatalog(), DefaultOptions())

	type key struct {
		teacher string
		day     models.Weekday
		slot    string
	}
	seen := make(map[key]string)
	for _, e := range result.Schedule {
		k := key{e.TeacherID, e.Day, e.TimeSlotID}
		if previous, dup := seen[k]; dup {
			t.Fatalf("teacher %s double booked by %s and %s", e.TeacherID, previous, e.ID)
		}
		seen[k] = e.ID
	}
}

func TestGenerateIsDeterministic(t *testing.T) {
	first := generate(t, campusCatalog(), DefaultOptions())
	second := generate(t, campusCatalog(), DefaultOptions())

	a, err := json.Marshal(first.Schedule)
	require.NoError(t, err)
	b, err := json.Marshal(second.Schedule)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestGenerateRespectsRoomTypesAndBreaks(t *testing.T) {
	result := generate(t, campusCatalog(), DefaultOptions())
	for _, e := range result.Schedule {
		switch e.SessionKind {
		case models.SessionLab:
			assert.Equal(t, "r-lab", e.ClassroomID, e.ID)
		case models.SessionTutorial:
			assert.Equal(t, "r-sem", e.ClassroomID, e.ID)
		}
		if e.CourseID == "math101" {
			assert.Equal(t, "r-201", e.ClassroomID, "only hall 201 seats 75")
		}
		if e.Day == models.Friday {
			assert.NotEqual(t, "p3", e.TimeSlotID, "friday break")
		}
		assert.Equal(t, models.Fresh{}, e.Origin)
	}
	entry, _, ok := result.Schedule.Find("cs101#2")
	require.True(t, ok)
	assert.Equal(t, models.SessionLab, entry.SessionKind)
}

func TestGenerateSpreadsSessionsAcrossDays(t *testing.T) {
	result := generate(t, campusCatalog(), DefaultOptions())
	days := make(map[models.Weekday]int)
	for _, e := range result.Schedule {
		if e.CourseID == "math101" {
			days[e.Day]++
		}
	}
	assert.Len(t, days, 3, "three calculus lectures on three different days")
}

func TestGenerateSingleRoomReportsThirdCourseUnplaceable(t *testing.T) {
	result := generate(t, singleRoomCatalog(3), DefaultOptions())

	require.Len(t, result.Schedule, 2)
	assert.Equal(t, "c1#0", result.Schedule[0].ID)
	assert.Equal(t, "s1", result.Schedule[0].TimeSlotID)
	assert.Equal(t, "c2#0", result.Schedule[1].ID)
	assert.Equal(t, "s2", result.Schedule[1].TimeSlotID)

	require.Len(t, result.Unplaceable, 1)
	missing := result.Unplaceable[0]
	assert.Equal(t, "c3#0", missing.ID)
	assert.Contains(t, missing.Blocking, models.ConstraintTeacherClash)
	assert.Contains(t, missing.Blocking, models.ConstraintClassroomClash)
	assert.NotEmpty(t, missing.Reason)
	assert.Greater(t, result.Stats.Backtracks, 0)
	assert.Contains(t, result.Warnings, "c3#0 unplaceable: "+missing.Reason)
}

func TestGeneratePrefersTeacherPriorityWindow(t *testing.T) {
	catalog := models.Catalog{
		Departments: []models.Department{{ID: "cs"}},
		Teachers: []models.Teacher{{
			ID:            "t1",
			DepartmentIDs: pq.StringArray{"cs"},
			PriorityDays:  pq.StringArray{"Monday"},
			PriorityStart: clock("09:00"),
			PriorityEnd:   clock("12:00"),
		}},
		Classrooms: []models.Classroom{{ID: "r1", Capacity: 30, Type: models.RoomTypeLecture}},
		TimeSlots: []models.TimeSlot{
			{ID: "a-afternoon", Start: clock("14:00"), End: clock("15:00")},
			{ID: "b-morning", Start: clock("10:00"), End: clock("11:00")},
		},
		Breaks: []models.Break{
			{ID: "mon-pm", Day: "Monday", Start: clock("14:00"), End: clock("15:00")},
			{ID: "tue-am", Day: "Tuesday", Start: clock("10:00"), End: clock("11:00")},
		},
		Days:    []models.Weekday{models.Monday, models.Tuesday},
		Courses: []models.Course{{ID: "c1", DepartmentID: "cs", TeacherID: "t1", ExpectedEnrollment: 10}},
	}

	result := generate(t, catalog, DefaultOptions())
	require.Len(t, result.Schedule, 1)
	assert.Equal(t, models.Monday, result.Schedule[0].Day)
	assert.Equal(t, "b-morning", result.Schedule[0].TimeSlotID)

	noPrefs := DefaultOptions()
	noPrefs.RespectPreferences = false
	result = generate(t, catalog, noPrefs)
	require.Len(t, result.Schedule, 1)
	assert.Equal(t, models.Tuesday, result.Schedule[0].Day, "tie-break picks the lowest slot id")
	assert.Equal(t, "a-afternoon", result.Schedule[0].TimeSlotID)
}

func TestGenerateBacktracksOutOfGreedyDeadEnd(t *testing.T) {
	catalog := models.Catalog{
		Departments: []models.Department{{ID: "cs"}, {ID: "math"}},
		Teachers: []models.Teacher{{
			ID:            "t1",
			DepartmentIDs: pq.StringArray{"cs", "math"},
			PriorityStart: clock("08:00"),
			PriorityEnd:   clock("09:00"),
		}},
		Classrooms: []models.Classroom{
			{ID: "r1", Capacity: 60, Type: models.RoomTypeLecture},
			{ID: "r2", Capacity: 40, Type: models.RoomTypeLecture},
		},
		TimeSlots: []models.TimeSlot{
			{ID: "s1", Start: clock("08:00"), End: clock("09:00")},
			{ID: "s2", Start: clock("09:00"), End: clock("10:00")},
		},
		Breaks: []models.Break{{ID: "math-late", Start: clock("09:00"), End: clock("10:00"), DepartmentID: "math"}},
		Days:   []models.Weekday{models.Monday},
		Courses: []models.Course{
			{ID: "a", DepartmentID: "cs", Semester: 1, TeacherID: "t1", ExpectedEnrollment: 50},
			{ID: "b", DepartmentID: "math", Semester: 2, TeacherID: "t1", ExpectedEnrollment: 30},
		},
	}

	result := generate(t, catalog, DefaultOptions())
	require.Empty(t, result.Unplaceable)
	require.Len(t, result.Schedule, 2)
	a, _, _ := result.Schedule.Find("a#0")
	b, _, _ := result.Schedule.Find("b#0")
	assert.Equal(t, "s2", a.TimeSlotID)
	assert.Equal(t, "s1", b.TimeSlotID)
	assert.Equal(t, 1, result.Stats.Backtracks)
}

func TestGenerateAllowConflictsKeepsEverySession(t *testing.T) {
	catalog := singleRoomCatalog(3)
	catalog.TimeSlots = catalog.TimeSlots[:1]
	for i := range catalog.Courses {
		catalog.Courses[i].Semester = 1
	}
	opts := DefaultOptions()
	opts.AvoidConflicts = false

	result := generate(t, catalog, opts)
	assert.Empty(t, result.Unplaceable)
	assert.Len(t, result.Schedule, 3)

	conflicts := NewReporter(NewChecker(catalog, nil, nil)).ReportConflicts(result.Schedule)
	require.Len(t, conflicts, 9)
	assert.Equal(t, models.ConstraintTeacherClash, conflicts[0].Kind)
	assert.Equal(t, []string{"c1#0", "c2#0"}, conflicts[0].EntryIDs)
}

func TestGenerateDepartmentFilter(t *testing.T) {
	opts := DefaultOptions()
	opts.DepartmentIDs = []string{"math", "physics"}
	result := generate(t, campusCatalog(), opts)

	require.Len(t, result.Schedule, 3)
	for _, e := range result.Schedule {
		assert.Equal(t, "math", e.DepartmentID)
	}
	assert.Contains(t, result.Warnings, "department filter physics matches no department")
}

func TestGenerateAvoidsReservedEntries(t *testing.T) {
	catalog := singleRoomCatalog(1)
	reserved := models.Schedule{{
		ID: "other#0", CourseID: "c1", TeacherID: "t1", ClassroomID: "r1", DepartmentID: "cs",
		Day: models.Monday, TimeSlotID: "s1", Start: clock("08:00"), End: clock("09:00"), Origin: models.Fresh{},
	}}
	result, err := NewEngine(nil).Generate(context.Background(), Input{Catalog: catalog, Reserved: reserved}, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, result.Schedule, 1)
	assert.Equal(t, "s2", result.Schedule[0].TimeSlotID)
}

func TestGenerateHonoursHolidaysForAnchoredWeek(t *testing.T) {
	catalog := campusCatalog()
	catalog.Holidays = []models.Holiday{{ID: "h", Name: "Spring break", Date: time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC)}}
	weekStart := time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC)
	opts := DefaultOptions()
	opts.WeekStart = &weekStart

	result := generate(t, catalog, opts)
	assert.Empty(t, result.Unplaceable)
	for _, e := range result.Schedule {
		assert.NotEqual(t, models.Monday, e.Day, e.ID)
	}
}

func TestGenerateCancelledContextDiscardsState(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := NewEngine(nil).Generate(ctx, Input{Catalog: campusCatalog()}, DefaultOptions())
	assert.Nil(t, result)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGenerateExpiredDeadlineReturnsPartialResult(t *testing.T) {
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	result, err := NewEngine(nil).Generate(ctx, Input{Catalog: campusCatalog()}, DefaultOptions())
	require.NoError(t, err)
	assert.True(t, result.Stats.TimedOut)
	assert.Empty(t, result.Schedule)
	require.Len(t, result.Unplaceable, 10)
	assert.Equal(t, reasonTimedOut, result.Unplaceable[0].Reason)
}

func TestGenerateParallelDisjointDepartmentsMatchesSequential(t *testing.T) {
	catalog := campusCatalog()
	// Calculus moves to the seminar room so the departments stop sharing classrooms.
	catalog.Classrooms = append(catalog.Classrooms, models.Classroom{ID: "r-math", Capacity: 80, Type: models.RoomTypeSeminar})
	catalog.Courses[3].RoomType = models.RoomTypeSeminar
	catalog.Courses[2].Sessions = sessions(models.SessionLecture, models.SessionLecture)

	sequential := generate(t, catalog, DefaultOptions())
	opts := DefaultOptions()
	opts.Parallel = true
	parallel := generate(t, catalog, opts)

	assert.Equal(t, 2, parallel.Stats.Partitions)
	assert.Equal(t, sequential.Schedule, parallel.Schedule)
	for _, w := range parallel.Warnings {
		assert.NotContains(t, w, "share resources")
	}
}

func TestGenerateParallelSharedDepartmentsStayConflictFree(t *testing.T) {
	catalog := campusCatalog()
	opts := DefaultOptions()
	opts.Parallel = true

	result := generate(t, catalog, opts)
	assert.Equal(t, 1, result.Stats.Partitions)
	assert.Contains(t, result.Warnings[len(result.Warnings)-1], "share resources")
	assert.Empty(t, NewReporter(NewChecker(catalog, nil, nil)).ReportConflicts(result.Schedule))
	assert.Empty(t, result.Unplaceable)
}
