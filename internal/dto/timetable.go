package dto

import (
	"time"

	"github.com/noah-isme/campus-timetable-api/internal/models"
)

// GenerateTimetableRequest starts a timetable generation run. Nil switches default to true.
type GenerateTimetableRequest struct {
	DepartmentIDs      []string `json:"departmentIds" validate:"omitempty,dive,required"`
	AvoidConflicts     *bool    `json:"avoidConflicts"`
	OptimizeRooms      *bool    `json:"optimizeRooms"`
	RespectPreferences *bool    `json:"respectPreferences"`
	TimeoutSeconds     int      `json:"timeoutSeconds" validate:"omitempty,min=1,max=600"`
	WeekStart          string   `json:"weekStart" validate:"omitempty,datetime=2006-01-02"`
	Parallel           bool     `json:"parallel"`
	MaxBacktracks      int      `json:"maxBacktracks" validate:"omitempty,min=1,max=1000000"`
}

// UnplaceableRequest describes a session the engine could not place.
type UnplaceableRequest struct {
	ID           string                  `json:"id"`
	CourseID     string                  `json:"courseId"`
	DepartmentID string                  `json:"departmentId"`
	TeacherID    string                  `json:"teacherId"`
	SessionKind  models.SessionKind      `json:"sessionKind"`
	SessionIndex int                     `json:"sessionIndex"`
	Reason       string                  `json:"reason"`
	Blocking     []models.ConstraintKind `json:"blocking,omitempty"`
}

// GenerationStats summarises search effort.
type GenerationStats struct {
	Requests    int   `json:"requests"`
	Placed      int   `json:"placed"`
	Unplaceable int   `json:"unplaceable"`
	Backtracks  int   `json:"backtracks"`
	Partitions  int   `json:"partitions"`
	TimedOut    bool  `json:"timedOut"`
	DurationMs  int64 `json:"durationMs"`
}

// TimetableProposal is a generated, not yet committed timetable.
type TimetableProposal struct {
	ProposalID    string                  `json:"proposalId"`
	DepartmentIDs []string                `json:"departmentIds"`
	Schedule      models.Schedule         `json:"schedule"`
	Unplaceable   []UnplaceableRequest    `json:"unplaceable"`
	Conflicts     []models.ConflictRecord `json:"conflicts"`
	Warnings      []string                `json:"warnings"`
	Stats         GenerationStats         `json:"stats"`
	GeneratedAt   time.Time               `json:"generatedAt"`
	ExpiresAt     time.Time               `json:"expiresAt"`
}

// CommitProposalResponse reports a committed proposal.
type CommitProposalResponse struct {
	ProposalID    string    `json:"proposalId"`
	DepartmentIDs []string  `json:"departmentIds"`
	Entries       int       `json:"entries"`
	CommittedAt   time.Time `json:"committedAt"`
}

// TimetableQuery filters committed timetable views.
type TimetableQuery struct {
	DepartmentID string `form:"departmentId" json:"departmentId"`
	TeacherID    string `form:"teacherId" json:"teacherId"`
	ClassroomID  string `form:"classroomId" json:"classroomId"`
	Day          string `form:"day" json:"day"`
}

// ExportTimetableQuery selects an export format and optional filters.
type ExportTimetableQuery struct {
	TimetableQuery
	Format    string `form:"format" json:"format" validate:"required,oneof=csv pdf xlsx ics"`
	WeekStart string `form:"weekStart" json:"weekStart" validate:"omitempty,datetime=2006-01-02"`
}

// TimetableConflicts wraps a conflict report.
type TimetableConflicts struct {
	Conflicts []models.ConflictRecord `json:"conflicts"`
	Total     int                     `json:"total"`
}

// GenerationJobResponse exposes the state of an asynchronous generation.
type GenerationJobResponse struct {
	ID         string    `json:"id"`
	Status     string    `json:"status"`
	ProposalID string    `json:"proposalId,omitempty"`
	Error      string    `json:"error,omitempty"`
	Attempts   int       `json:"attempts"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}
