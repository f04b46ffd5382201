package models

import (
	"sort"
	"time"
)

// Enrollment registers a student to a course.
type Enrollment struct {
	StudentID  string    `db:"student_id" json:"studentId" yaml:"studentId"`
	CourseID   string    `db:"course_id" json:"courseId" yaml:"courseId"`
	EnrolledAt time.Time `db:"enrolled_at" json:"enrolledAt" yaml:"enrolledAt"`
}

// EnrollmentSets maps a course id to its enrolled student ids.
type EnrollmentSets map[string][]string

// GroupEnrollments builds per-course student sets with sorted, de-duplicated ids.
func GroupEnrollments(rows []Enrollment) EnrollmentSets {
	sets := make(EnrollmentSets)
	seen := make(map[string]map[string]bool)
	for _, row := range rows {
		if seen[row.CourseID] == nil {
			seen[row.CourseID] = make(map[string]bool)
		}
		if seen[row.CourseID][row.StudentID] {
			continue
		}
		seen[row.CourseID][row.StudentID] = true
		sets[row.CourseID] = append(sets[row.CourseID], row.StudentID)
	}
	for courseID := range sets {
		sort.Strings(sets[courseID])
	}
	return sets
}

// Has reports whether enrollment data exists for the course.
func (s EnrollmentSets) Has(courseID string) bool {
	_, ok := s[courseID]
	return ok
}

// Intersect reports whether two courses share at least one student. Both sets must be sorted.
func (s EnrollmentSets) Intersect(a, b string) bool {
	left, right := s[a], s[b]
	i, j := 0, 0
	for i < len(left) && j < len(right) {
		switch {
		case left[i] == right[j]:
			return true
		case left[i] < right[j]:
			i++
		default:
			j++
		}
	}
	return false
}
