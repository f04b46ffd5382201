package scheduler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/noah-isme/campus-timetable-api/internal/models"
)

// ValidationError lists every malformed input found before search.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Issues) == 0 {
		return "invalid timetable input"
	}
	return "invalid timetable input: " + strings.Join(e.Issues, "; ")
}

type issueList struct {
	issues []string
}

func (l *issueList) add(format string, args ...interface{}) {
	l.issues = append(l.issues, fmt.Sprintf(format, args...))
}

func (l *issueList) err() error {
	if len(l.issues) == 0 {
		return nil
	}
	return &ValidationError{Issues: l.issues}
}

// Validate checks references, windows and prerequisite chains. It returns a copy of the
// catalog in which courses without a teacher are assigned one, plus warnings for those picks.
func Validate(catalog models.Catalog) (models.Catalog, []string, error) {
	var issues issueList
	var warnings []string

	departments := make(map[string]bool, len(catalog.Departments))
	for _, dept := range catalog.Departments {
		if dept.ID == "" {
			issues.add("department with empty id")
			continue
		}
		if departments[dept.ID] {
			issues.add("duplicate department %s", dept.ID)
		}
		departments[dept.ID] = true
	}

	teachers := make(map[string]models.Teacher, len(catalog.Teachers))
	for _, teacher := range catalog.Teachers {
		if teacher.ID == "" {
			issues.add("teacher with empty id")
			continue
		}
		if _, dup := teachers[teacher.ID]; dup {
			issues.add("duplicate teacher %s", teacher.ID)
		}
		teachers[teacher.ID] = teacher
		if teacher.HasPriorityWindow() && !teacher.PriorityWindow().Valid() {
			issues.add("teacher %s priority window %s-%s must start before it ends", teacher.ID, teacher.PriorityStart, teacher.PriorityEnd)
		}
		for _, day := range teacher.PriorityDays {
			if _, ok := models.ParseWeekday(day); !ok {
				issues.add("teacher %s has unknown priority day %q", teacher.ID, day)
			}
		}
		for _, deptID := range teacher.DepartmentIDs {
			if !departments[deptID] {
				issues.add("teacher %s references unknown department %s", teacher.ID, deptID)
			}
		}
	}

	rooms := make(map[string]bool, len(catalog.Classrooms))
	for _, room := range catalog.Classrooms {
		if rooms[room.ID] {
			issues.add("duplicate classroom %s", room.ID)
		}
		rooms[room.ID] = true
		if room.Capacity <= 0 {
			issues.add("classroom %s capacity must be positive", room.ID)
		}
		if !room.Type.Valid() {
			issues.add("classroom %s has unknown type %q", room.ID, room.Type)
		}
	}

	validateSlots(catalog.TimeSlots, &issues)
	for _, raw := range catalog.Days {
		if _, ok := models.ParseWeekday(string(raw)); !ok {
			issues.add("unknown working day %q", raw)
		}
	}

	for _, brk := range catalog.Breaks {
		if !brk.Window().Valid() {
			issues.add("break %s window %s-%s must start before it ends", brk.ID, brk.Start, brk.End)
		}
		if !isWildcardDay(brk.Day) {
			if _, ok := models.ParseWeekday(brk.Day); !ok {
				issues.add("break %s has unknown day %q", brk.ID, brk.Day)
			}
		}
		if brk.DepartmentID != "" && brk.DepartmentID != "all" && !departments[brk.DepartmentID] {
			issues.add("break %s references unknown department %s", brk.ID, brk.DepartmentID)
		}
	}

	courses := make(map[string]models.Course, len(catalog.Courses))
	for _, course := range catalog.Courses {
		if course.ID == "" {
			issues.add("course with empty id")
			continue
		}
		if _, dup := courses[course.ID]; dup {
			issues.add("duplicate course %s", course.ID)
		}
		courses[course.ID] = course
	}

	normalized := catalog
	normalized.Courses = make([]models.Course, 0, len(catalog.Courses))
	for _, course := range catalog.Courses {
		if !departments[course.DepartmentID] {
			issues.add("course %s references unknown department %s", course.ID, course.DepartmentID)
		}
		if course.RoomType != "" && !course.RoomType.Valid() {
			issues.add("course %s requires unknown classroom type %q", course.ID, course.RoomType)
		}
		if course.ExpectedEnrollment < 0 {
			issues.add("course %s expected enrollment must not be negative", course.ID)
		}
		for _, req := range course.Sessions {
			if !req.Kind.Valid() {
				issues.add("course %s has unknown session kind %q", course.ID, req.Kind)
			}
			if req.Count <= 0 {
				issues.add("course %s session %s count must be positive", course.ID, req.Kind)
			}
		}
		for _, prereq := range course.Prerequisites {
			if _, ok := courses[prereq]; !ok {
				issues.add("course %s requires unknown course %s", course.ID, prereq)
			}
		}
		switch {
		case course.TeacherID == "":
			picked, ok := pickDepartmentTeacher(catalog.Teachers, course.DepartmentID)
			if !ok {
				issues.add("course %s has no teacher and department %s has none to assign", course.ID, course.DepartmentID)
				break
			}
			course.TeacherID = picked
			warnings = append(warnings, fmt.Sprintf("course %s had no teacher; assigned %s from department %s", course.ID, picked, course.DepartmentID))
		default:
			if _, ok := teachers[course.TeacherID]; !ok {
				issues.add("course %s references unknown teacher %s", course.ID, course.TeacherID)
			}
		}
		normalized.Courses = append(normalized.Courses, course)
	}

	if cycle := findPrerequisiteCycle(courses); len(cycle) > 0 {
		issues.add("prerequisite cycle: %s", strings.Join(cycle, " -> "))
	}

	if err := issues.err(); err != nil {
		return models.Catalog{}, nil, err
	}
	return normalized, warnings, nil
}

func validateSlots(slots []models.TimeSlot, issues *issueList) {
	seen := make(map[string]bool, len(slots))
	ordered := make([]models.TimeSlot, 0, len(slots))
	for _, slot := range slots {
		if seen[slot.ID] {
			issues.add("duplicate time slot %s", slot.ID)
		}
		seen[slot.ID] = true
		if !slot.Window().Valid() {
			issues.add("time slot %s window %s-%s must start before it ends", slot.ID, slot.Start, slot.End)
			continue
		}
		ordered = append(ordered, slot)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Start < ordered[j].Start })
	for i := 1; i < len(ordered); i++ {
		if ordered[i-1].Window().Overlaps(ordered[i].Window()) {
			issues.add("time slots %s and %s overlap", ordered[i-1].ID, ordered[i].ID)
		}
	}
}

func pickDepartmentTeacher(teachers []models.Teacher, departmentID string) (string, bool) {
	var picked string
	for _, teacher := range teachers {
		if teacher.ID == "" || !teacher.InDepartment(departmentID) {
			continue
		}
		if picked == "" || teacher.ID < picked {
			picked = teacher.ID
		}
	}
	return picked, picked != ""
}

// findPrerequisiteCycle returns the first cycle found walking courses in id order.
func findPrerequisiteCycle(courses map[string]models.Course) []string {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(courses))
	ids := make([]string, 0, len(courses))
	for id := range courses {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var path []string
	var visit func(id string) []string
	visit = func(id string) []string {
		state[id] = visiting
		path = append(path, id)
		for _, next := range courses[id].Prerequisites {
			if _, known := courses[next]; !known {
				continue
			}
			switch state[next] {
			case visiting:
				start := 0
				for i, p := range path {
					if p == next {
						start = i
						break
					}
				}
				cycle := append([]string{}, path[start:]...)
				return append(cycle, next)
			case unvisited:
				if cycle := visit(next); cycle != nil {
					return cycle
				}
			}
		}
		path = path[:len(path)-1]
		state[id] = done
		return nil
	}

	for _, id := range ids {
		if state[id] != unvisited {
			continue
		}
		if cycle := visit(id); cycle != nil {
			return cycle
		}
	}
	return nil
}

func isWildcardDay(day string) bool {
	return day == "" || strings.EqualFold(day, "all")
}
