package models

import "time"

// RescheduleStatus captures the review workflow of a reschedule request.
type RescheduleStatus string

const (
	RescheduleStatusPending  RescheduleStatus = "PENDING"
	RescheduleStatusApproved RescheduleStatus = "APPROVED"
	RescheduleStatusRejected RescheduleStatus = "REJECTED"
	RescheduleStatusApplied  RescheduleStatus = "APPLIED"
)

var rescheduleTransitions = map[RescheduleStatus][]RescheduleStatus{
	RescheduleStatusPending:  {RescheduleStatusApproved, RescheduleStatusRejected},
	RescheduleStatusApproved: {RescheduleStatusApplied},
}

// CanTransition reports whether the workflow allows moving to next.
func (s RescheduleStatus) CanTransition(next RescheduleStatus) bool {
	for _, allowed := range rescheduleTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions exist.
func (s RescheduleStatus) Terminal() bool {
	return len(rescheduleTransitions[s]) == 0
}

// RescheduleRequest asks to move one schedule entry to another day and slot.
type RescheduleRequest struct {
	ID                  string           `db:"id" json:"id"`
	TeacherID           string           `db:"teacher_id" json:"teacherId"`
	EntryID             string           `db:"entry_id" json:"entryId"`
	OriginalDay         Weekday          `db:"original_day" json:"originalDay,omitempty"`
	OriginalTimeSlotID  string           `db:"original_time_slot_id" json:"originalTimeSlotId,omitempty"`
	RequestedDay        Weekday          `db:"requested_day" json:"requestedDay"`
	RequestedTimeSlotID string           `db:"requested_time_slot_id" json:"requestedTimeSlotId"`
	Reason              string           `db:"reason" json:"reason"`
	Status              RescheduleStatus `db:"status" json:"status"`
	ReviewedBy          *string          `db:"reviewed_by" json:"reviewedBy,omitempty"`
	Note                *string          `db:"note" json:"note,omitempty"`
	RequestedAt         time.Time        `db:"requested_at" json:"requestedAt"`
	ReviewedAt          *time.Time       `db:"reviewed_at" json:"reviewedAt,omitempty"`
	AppliedAt           *time.Time       `db:"applied_at" json:"appliedAt,omitempty"`
}

// PlacedAsSubmitted reports whether entry still sits where it was when the request was
// submitted. Requests stored without that placement always match.
func (r RescheduleRequest) PlacedAsSubmitted(entry ScheduleEntry) bool {
	if r.OriginalDay == "" && r.OriginalTimeSlotID == "" {
		return true
	}
	return entry.Day == r.OriginalDay && entry.TimeSlotID == r.OriginalTimeSlotID
}

// RescheduleFilter constrains listing queries.
type RescheduleFilter struct {
	Status    []RescheduleStatus
	TeacherID string
	EntryID   string
	Limit     int
	Offset    int
}
