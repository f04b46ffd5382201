package scheduler

import (
	"time"

	"github.com/noah-isme/campus-timetable-api/internal/models"
)

// DefaultMaxBacktracks bounds the undo steps a single search may take.
const DefaultMaxBacktracks = 5000

// Options tunes a generation run.
type Options struct {
	DepartmentIDs      []string
	AvoidConflicts     bool
	OptimizeRooms      bool
	RespectPreferences bool
	Timeout            time.Duration
	WeekStart          *time.Time
	Parallel           bool
	MaxBacktracks      int
}

// DefaultOptions enables every hard constraint and every preference.
func DefaultOptions() Options {
	return Options{
		AvoidConflicts:     true,
		OptimizeRooms:      true,
		RespectPreferences: true,
		MaxBacktracks:      DefaultMaxBacktracks,
	}
}

func (o Options) backtrackBudget() int {
	if o.MaxBacktracks <= 0 {
		return DefaultMaxBacktracks
	}
	return o.MaxBacktracks
}

// Input is the reference data of a generation run. Reserved entries belong to departments
// outside the run; they keep their teachers, classrooms and cohorts occupied.
type Input struct {
	Catalog     models.Catalog
	Enrollments models.EnrollmentSets
	Reserved    models.Schedule
}

// SlotRequest is one required (course, session index) placement.
type SlotRequest struct {
	ID           string                  `json:"id"`
	CourseID     string                  `json:"courseId"`
	DepartmentID string                  `json:"departmentId"`
	TeacherID    string                  `json:"teacherId"`
	SessionKind  models.SessionKind      `json:"sessionKind"`
	SessionIndex int                     `json:"sessionIndex"`
	Reason       string                  `json:"reason,omitempty"`
	Blocking     []models.ConstraintKind `json:"blocking,omitempty"`
}

// Stats summarises search effort.
type Stats struct {
	Requests    int           `json:"requests"`
	Placed      int           `json:"placed"`
	Unplaceable int           `json:"unplaceable"`
	Backtracks  int           `json:"backtracks"`
	Partitions  int           `json:"partitions"`
	TimedOut    bool          `json:"timedOut"`
	Duration    time.Duration `json:"duration"`
}

// Result is the outcome of a generation run.
type Result struct {
	Schedule    models.Schedule `json:"schedule"`
	Unplaceable []SlotRequest   `json:"unplaceable"`
	Warnings    []string        `json:"warnings"`
	Stats       Stats           `json:"stats"`
}
