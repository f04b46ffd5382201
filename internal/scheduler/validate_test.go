package scheduler

import (
	"context"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-timetable-api/internal/models"
)

func TestValidateAcceptsCampusCatalog(t *testing.T) {
	normalized, warnings, err := Validate(campusCatalog())
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Len(t, normalized.Courses, 4)
}

func TestValidateDetectsPrerequisiteCycle(t *testing.T) {
	catalog := campusCatalog()
	catalog.Courses[0].Prerequisites = pq.StringArray{"cs102"}
	catalog.Courses[1].Prerequisites = pq.StringArray{"cs101"}

	_, _, err := Validate(catalog)
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.Error(), "prerequisite cycle: cs101 -> cs102 -> cs101")
}

func TestGenerateRejectsCycleBeforeSearch(t *testing.T) {
	catalog := campusCatalog()
	catalog.Courses[0].Prerequisites = pq.StringArray{"cs201"}

	result, err := NewEngine(nil).Generate(context.Background(), Input{Catalog: catalog}, DefaultOptions())
	require.Nil(t, result)
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
}

func TestValidateReportsMalformedReferences(t *testing.T) {
	catalog := campusCatalog()
	catalog.Courses[1].TeacherID = "t-ghost"
	catalog.Courses[2].Prerequisites = pq.StringArray{"cs999"}
	catalog.Teachers[0].PriorityStart = clock("13:00")
	catalog.Teachers[0].PriorityEnd = clock("12:00")
	catalog.Classrooms[0].Capacity = 0
	catalog.TimeSlots = append(catalog.TimeSlots, models.TimeSlot{ID: "p2b", Start: clock("10:00"), End: clock("10:30")})

	_, _, err := Validate(catalog)
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	joined := vErr.Error()
	assert.Contains(t, joined, "course cs102 references unknown teacher t-ghost")
	assert.Contains(t, joined, "course cs201 requires unknown course cs999")
	assert.Contains(t, joined, "teacher t-ada priority window 13:00-12:00 must start before it ends")
	assert.Contains(t, joined, "classroom r-101 capacity must be positive")
	assert.Contains(t, joined, "time slots p2 and p2b overlap")
}

func TestValidateAssignsDepartmentTeacher(t *testing.T) {
	catalog := campusCatalog()
	catalog.Courses[1].TeacherID = ""

	normalized, warnings, err := Validate(catalog)
	require.NoError(t, err)
	assert.Equal(t, "t-ada", normalized.Courses[1].TeacherID)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "assigned t-ada")
	assert.Equal(t, "", catalog.Courses[1].TeacherID)
}

func TestValidateFailsWhenDepartmentHasNoTeacher(t *testing.T) {
	catalog := campusCatalog()
	catalog.Departments = append(catalog.Departments, models.Department{ID: "art"})
	catalog.Courses = append(catalog.Courses, models.Course{ID: "art100", DepartmentID: "art"})

	_, _, err := Validate(catalog)
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.Error(), "course art100 has no teacher")
}

func TestValidateRejectsUnknownWorkingDays(t *testing.T) {
	catalog := campusCatalog()
	catalog.Days = []models.Weekday{"Monday", "Blursday"}

	_, _, err := Validate(catalog)
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.Issues, `unknown working day "Blursday"`)
}

func TestGenerateRejectsWeekWithoutKnownDays(t *testing.T) {
	catalog := campusCatalog()
	catalog.Days = []models.Weekday{"Funday", "Blursday"}

	result, err := NewEngine(nil).Generate(context.Background(), Input{Catalog: catalog}, DefaultOptions())
	require.Nil(t, result)
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Len(t, vErr.Issues, 2)
}
