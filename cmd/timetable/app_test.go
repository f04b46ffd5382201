package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/noah-isme/campus-timetable-api/internal/models"
)

const cliDataset = `
departments:
  - {id: cs, name: Computer Science, code: CS}
  - {id: math, name: Mathematics, code: MA}
teachers:
  - {id: t-ada, name: Ada, departmentIds: [cs]}
  - {id: t-emmy, name: Emmy, departmentIds: [math]}
classrooms:
  - {id: r-101, name: Room 101, capacity: 40, type: lecture}
  - {id: r-102, name: Room 102, capacity: 40, type: lecture}
timeSlots:
  - {id: p1, startTime: "08:00", endTime: "09:30"}
  - {id: p2, startTime: "10:00", endTime: "11:30"}
courses:
  - id: cs101
    code: CS101
    name: Programming
    departmentId: cs
    semester: 1
    teacherId: t-ada
    expectedEnrollment: 30
    sessions:
      - {kind: LECTURE, count: 2}
  - {id: ma101, code: MA101, name: Calculus, departmentId: math, semester: 1, teacherId: t-emmy}
days: [Monday, Tuesday]
enrollments:
  - {studentId: s1, courseId: cs101}
  - {studentId: s1, courseId: ma101}
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := newApp(&stdout, &stderr).RunContext(context.Background(), append([]string{"timetable"}, args...))
	return stdout.String(), err
}

func exitCode(err error) int {
	var exitErr cli.ExitCoder
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

func TestValidateCommand(t *testing.T) {
	data := writeFile(t, "dataset.yaml", cliDataset)

	out, err := runApp(t, "validate", "--data", data)
	require.NoError(t, err)
	assert.Contains(t, out, "ok: 2 courses, 2 teachers, 2 classrooms, 2 time slots, 2 working days")
}

func TestValidateCommandReportsIssues(t *testing.T) {
	broken := cliDataset + `
breaks:
  - {id: b1, name: Lunch, startTime: "13:00", endTime: "12:00"}
`
	data := writeFile(t, "dataset.yaml", broken)

	out, err := runApp(t, "validate", "--data", data)
	require.Error(t, err)
	assert.Equal(t, 2, exitCode(err))
	assert.Contains(t, out, "error:")
}

func TestGenerateCommandJSON(t *testing.T) {
	data := writeFile(t, "dataset.yaml", cliDataset)

	out, err := runApp(t, "generate", "--data", data, "--format", "json")
	require.NoError(t, err)

	var doc generation
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	require.Len(t, doc.Schedule, 3)
	assert.Empty(t, doc.Unplaceable)
	assert.Empty(t, doc.Conflicts)
	assert.Equal(t, 3, doc.Stats.Placed)

	ids := make(map[string]bool)
	for _, entry := range doc.Schedule {
		ids[entry.ID] = true
	}
	assert.True(t, ids["cs101#0"])
	assert.True(t, ids["cs101#1"])
	assert.True(t, ids["ma101#0"])
}

func TestGenerateCommandDepartmentFilterAndTable(t *testing.T) {
	data := writeFile(t, "dataset.yaml", cliDataset)

	out, err := runApp(t, "generate", "--data", data, "--department", "math")
	require.NoError(t, err)
	assert.Contains(t, out, "ma101")
	assert.NotContains(t, out, "cs101")
	assert.Contains(t, out, "placed 1 of 1 sessions")
}

func TestGenerateCommandWritesExport(t *testing.T) {
	data := writeFile(t, "dataset.yaml", cliDataset)
	target := filepath.Join(t.TempDir(), "timetable.csv")

	_, err := runApp(t, "generate", "--data", data, "--format", "csv", "--out", target)
	require.NoError(t, err)

	body, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, string(body), "CS101")
	assert.Contains(t, string(body), "MA101")
}

func TestGenerateCommandRejectsWeekStart(t *testing.T) {
	data := writeFile(t, "dataset.yaml", cliDataset)

	_, err := runApp(t, "generate", "--data", data, "--week-start", "2026-03-18")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a Monday")
}

func TestConflictsCommand(t *testing.T) {
	data := writeFile(t, "dataset.yaml", cliDataset)
	schedule := models.Schedule{
		{ID: "cs101#0", CourseID: "cs101", TeacherID: "t-ada", ClassroomID: "r-101", DepartmentID: "cs",
			Day: models.Monday, TimeSlotID: "p1", Start: models.MustClock("08:00"), End: models.MustClock("09:30"),
			SessionKind: models.SessionLecture, Origin: models.Fresh{}},
		{ID: "cs101#1", CourseID: "cs101", TeacherID: "t-ada", ClassroomID: "r-102", DepartmentID: "cs",
			Day: models.Monday, TimeSlotID: "p1", Start: models.MustClock("08:00"), End: models.MustClock("09:30"),
			SessionKind: models.SessionLecture, SessionIndex: 1, Origin: models.Fresh{}},
	}
	raw, err := json.Marshal(generation{Schedule: schedule})
	require.NoError(t, err)
	path := writeFile(t, "schedule.json", string(raw))

	out, err := runApp(t, "conflicts", "--data", data, "--schedule", path, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, 3, exitCode(err))

	var records []models.ConflictRecord
	require.NoError(t, json.Unmarshal([]byte(out), &records))
	require.NotEmpty(t, records)
	assert.Equal(t, models.ConstraintTeacherClash, records[0].Kind)
	assert.ElementsMatch(t, []string{"cs101#0", "cs101#1"}, records[0].EntryIDs)
}

func TestConflictsCommandClean(t *testing.T) {
	data := writeFile(t, "dataset.yaml", cliDataset)
	generated, err := runApp(t, "generate", "--data", data, "--format", "json")
	require.NoError(t, err)
	path := writeFile(t, "schedule.json", generated)

	out, err := runApp(t, "conflicts", "--data", data, "--schedule", path)
	require.NoError(t, err)
	assert.Contains(t, out, "no conflicts")
}
