package models

// ConstraintKind names a hard constraint.
type ConstraintKind string

const (
	ConstraintTeacherClash     ConstraintKind = "TEACHER_CLASH"
	ConstraintClassroomClash   ConstraintKind = "CLASSROOM_CLASH"
	ConstraintCohortClash      ConstraintKind = "COHORT_CLASH"
	ConstraintBreak            ConstraintKind = "BREAK_VIOLATION"
	ConstraintHoliday          ConstraintKind = "HOLIDAY_VIOLATION"
	ConstraintRoomType         ConstraintKind = "ROOM_TYPE_MISMATCH"
	ConstraintRoomCapacity     ConstraintKind = "ROOM_CAPACITY_MISMATCH"
	ConstraintUnknownReference ConstraintKind = "UNKNOWN_REFERENCE"
)

var constraintRank = map[ConstraintKind]int{
	ConstraintTeacherClash:     0,
	ConstraintClassroomClash:   1,
	ConstraintCohortClash:      2,
	ConstraintBreak:            3,
	ConstraintHoliday:          4,
	ConstraintRoomType:         5,
	ConstraintRoomCapacity:     6,
	ConstraintUnknownReference: 7,
}

// Rank orders kinds for stable reporting.
func (k ConstraintKind) Rank() int {
	if rank, ok := constraintRank[k]; ok {
		return rank
	}
	return len(constraintRank)
}

// IsClash reports whether the kind involves two entries.
func (k ConstraintKind) IsClash() bool {
	switch k {
	case ConstraintTeacherClash, ConstraintClassroomClash, ConstraintCohortClash:
		return true
	}
	return false
}

// Violation is one broken hard constraint for a candidate placement.
type Violation struct {
	Kind          ConstraintKind `json:"kind"`
	ConflictingID string         `json:"conflictingEntryId,omitempty"`
	Description   string         `json:"description"`
}

// ConflictRecord describes a hard constraint violated inside a schedule.
type ConflictRecord struct {
	Kind        ConstraintKind `json:"kind"`
	EntryIDs    []string       `json:"entryIds"`
	Day         Weekday        `json:"day"`
	TimeSlotID  string         `json:"timeSlotId"`
	Description string         `json:"description"`
}

// ViolationKinds returns the distinct kinds in first-seen order.
func ViolationKinds(violations []Violation) []ConstraintKind {
	seen := make(map[ConstraintKind]bool)
	var kinds []ConstraintKind
	for _, v := range violations {
		if !seen[v.Kind] {
			seen[v.Kind] = true
			kinds = append(kinds, v.Kind)
		}
	}
	return kinds
}
