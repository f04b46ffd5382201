package models

import (
	"encoding/json"
	"sort"
)

// Origin records whether an entry sits where the engine put it or was moved afterwards.
// The only implementations are Fresh and Rescheduled.
type Origin interface {
	isOrigin()
}

// Fresh marks an entry that has never been moved.
type Fresh struct{}

// Rescheduled keeps the placement an entry had before its first move.
type Rescheduled struct {
	OriginalDay        Weekday `json:"originalDay"`
	OriginalTimeSlotID string  `json:"originalTimeSlotId"`
}

func (Fresh) isOrigin()       {}
func (Rescheduled) isOrigin() {}

// ScheduleEntry is one placed session of a course.
type ScheduleEntry struct {
	ID           string
	CourseID     string
	TeacherID    string
	ClassroomID  string
	DepartmentID string
	Day          Weekday
	TimeSlotID   string
	Start        ClockTime
	End          ClockTime
	SessionKind  SessionKind
	SessionIndex int
	Origin       Origin
}

// Window returns the entry's time interval.
func (e ScheduleEntry) Window() Window {
	return Window{Start: e.Start, End: e.End}
}

// IsRescheduled reports whether the entry has been moved at least once.
func (e ScheduleEntry) IsRescheduled() bool {
	_, ok := e.Origin.(Rescheduled)
	return ok
}

// Original returns the first placement of the entry.
func (e ScheduleEntry) Original() (Weekday, string) {
	if moved, ok := e.Origin.(Rescheduled); ok {
		return moved.OriginalDay, moved.OriginalTimeSlotID
	}
	return e.Day, e.TimeSlotID
}

// MovedTo returns a copy placed at slot on day. The original placement is captured on the
// first move only.
func (e ScheduleEntry) MovedTo(day Weekday, slot TimeSlot) ScheduleEntry {
	moved := e
	if !e.IsRescheduled() {
		moved.Origin = Rescheduled{OriginalDay: e.Day, OriginalTimeSlotID: e.TimeSlotID}
	}
	moved.Day = day
	moved.TimeSlotID = slot.ID
	moved.Start = slot.Start
	moved.End = slot.End
	return moved
}

type scheduleEntryJSON struct {
	ID                 string      `json:"id"`
	CourseID           string      `json:"courseId"`
	TeacherID          string      `json:"teacherId"`
	ClassroomID        string      `json:"classroomId"`
	DepartmentID       string      `json:"departmentId"`
	Day                Weekday     `json:"day"`
	TimeSlotID         string      `json:"timeSlotId"`
	StartTime          ClockTime   `json:"startTime"`
	EndTime            ClockTime   `json:"endTime"`
	SessionKind        SessionKind `json:"sessionKind"`
	SessionIndex       int         `json:"sessionIndex"`
	IsRescheduled      bool        `json:"isRescheduled"`
	OriginalDay        Weekday     `json:"originalDay,omitempty"`
	OriginalTimeSlotID string      `json:"originalTimeSlotId,omitempty"`
}

// MarshalJSON flattens the origin into isRescheduled/original* fields.
func (e ScheduleEntry) MarshalJSON() ([]byte, error) {
	payload := scheduleEntryJSON{
		ID:           e.ID,
		CourseID:     e.CourseID,
		TeacherID:    e.TeacherID,
		ClassroomID:  e.ClassroomID,
		DepartmentID: e.DepartmentID,
		Day:          e.Day,
		TimeSlotID:   e.TimeSlotID,
		StartTime:    e.Start,
		EndTime:      e.End,
		SessionKind:  e.SessionKind,
		SessionIndex: e.SessionIndex,
	}
	if moved, ok := e.Origin.(Rescheduled); ok {
		payload.IsRescheduled = true
		payload.OriginalDay = moved.OriginalDay
		payload.OriginalTimeSlotID = moved.OriginalTimeSlotID
	}
	return json.Marshal(payload)
}

// UnmarshalJSON restores the origin from the flattened fields.
func (e *ScheduleEntry) UnmarshalJSON(data []byte) error {
	var payload scheduleEntryJSON
	if err := json.Unmarshal(data, &payload); err != nil {
		return err
	}
	*e = ScheduleEntry{
		ID:           payload.ID,
		CourseID:     payload.CourseID,
		TeacherID:    payload.TeacherID,
		ClassroomID:  payload.ClassroomID,
		DepartmentID: payload.DepartmentID,
		Day:          payload.Day,
		TimeSlotID:   payload.TimeSlotID,
		Start:        payload.StartTime,
		End:          payload.EndTime,
		SessionKind:  payload.SessionKind,
		SessionIndex: payload.SessionIndex,
		Origin:       Fresh{},
	}
	if payload.IsRescheduled {
		e.Origin = Rescheduled{OriginalDay: payload.OriginalDay, OriginalTimeSlotID: payload.OriginalTimeSlotID}
	}
	return nil
}

// Schedule is an ordered set of entries.
type Schedule []ScheduleEntry

// Sort orders entries by day, slot start, classroom and id.
func (s Schedule) Sort() {
	sort.SliceStable(s, func(i, j int) bool {
		return entryLess(s[i], s[j])
	})
}

func entryLess(a, b ScheduleEntry) bool {
	if a.Day.Index() != b.Day.Index() {
		return a.Day.Index() < b.Day.Index()
	}
	if a.Start != b.Start {
		return a.Start < b.Start
	}
	if a.ClassroomID != b.ClassroomID {
		return a.ClassroomID < b.ClassroomID
	}
	return a.ID < b.ID
}

// Clone returns an independent copy.
func (s Schedule) Clone() Schedule {
	if s == nil {
		return nil
	}
	out := make(Schedule, len(s))
	copy(out, s)
	return out
}

// Find locates an entry by id.
func (s Schedule) Find(id string) (ScheduleEntry, int, bool) {
	for i, entry := range s {
		if entry.ID == id {
			return entry, i, true
		}
	}
	return ScheduleEntry{}, -1, false
}

// Without returns a copy lacking the entry with the given id.
func (s Schedule) Without(id string) Schedule {
	out := make(Schedule, 0, len(s))
	for _, entry := range s {
		if entry.ID != id {
			out = append(out, entry)
		}
	}
	return out
}

// Filter keeps entries matching the predicate.
func (s Schedule) Filter(keep func(ScheduleEntry) bool) Schedule {
	out := make(Schedule, 0, len(s))
	for _, entry := range s {
		if keep(entry) {
			out = append(out, entry)
		}
	}
	return out
}

// DepartmentIDs lists the distinct departments present, sorted.
func (s Schedule) DepartmentIDs() []string {
	seen := make(map[string]bool)
	var ids []string
	for _, entry := range s {
		if !seen[entry.DepartmentID] {
			seen[entry.DepartmentID] = true
			ids = append(ids, entry.DepartmentID)
		}
	}
	sort.Strings(ids)
	return ids
}

// ScheduleFilter narrows committed schedule queries.
type ScheduleFilter struct {
	DepartmentID string
	TeacherID    string
	ClassroomID  string
	Day          Weekday
}

// Matches reports whether the entry passes the filter.
func (f ScheduleFilter) Matches(entry ScheduleEntry) bool {
	if f.DepartmentID != "" && entry.DepartmentID != f.DepartmentID {
		return false
	}
	if f.TeacherID != "" && entry.TeacherID != f.TeacherID {
		return false
	}
	if f.ClassroomID != "" && entry.ClassroomID != f.ClassroomID {
		return false
	}
	if f.Day != "" && entry.Day != f.Day {
		return false
	}
	return true
}
