package dto

import "github.com/noah-isme/campus-timetable-api/internal/models"

// SubmitRescheduleRequest is a teacher's request to move one of their entries.
type SubmitRescheduleRequest struct {
	TeacherID           string `json:"teacherId" validate:"required"`
	EntryID             string `json:"entryId" validate:"required"`
	RequestedDay        string `json:"requestedDay" validate:"required"`
	RequestedTimeSlotID string `json:"requestedTimeSlotId" validate:"required"`
	Reason              string `json:"reason" validate:"max=500"`
}

// ReviewRescheduleRequest approves or rejects a pending request.
type ReviewRescheduleRequest struct {
	Decision   string `json:"decision" validate:"required,oneof=APPROVED REJECTED"`
	ReviewerID string `json:"reviewerId" validate:"required"`
	Note       string `json:"note" validate:"max=500"`
}

// RescheduleListQuery filters reschedule requests.
type RescheduleListQuery struct {
	Status    []string `form:"status" json:"status" validate:"omitempty,dive,oneof=PENDING APPROVED REJECTED APPLIED"`
	TeacherID string   `form:"teacherId" json:"teacherId"`
	EntryID   string   `form:"entryId" json:"entryId"`
	Page      int      `form:"page" json:"page" validate:"omitempty,min=1"`
	PageSize  int      `form:"pageSize" json:"pageSize" validate:"omitempty,min=1,max=200"`
}

// ApplyRescheduleResponse reports the outcome of applying an approved request.
type ApplyRescheduleResponse struct {
	Request    models.RescheduleRequest `json:"request"`
	Entry      models.ScheduleEntry     `json:"entry"`
	Applied    bool                     `json:"applied"`
	Violations []models.Violation       `json:"violations,omitempty"`
}
