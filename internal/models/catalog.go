package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lib/pq"
)

// RoomType classifies classrooms.
type RoomType string

const (
	RoomTypeLecture RoomType = "lecture"
	RoomTypeLab     RoomType = "lab"
	RoomTypeSeminar RoomType = "seminar"
)

// Valid reports whether the room type is known.
func (t RoomType) Valid() bool {
	switch t {
	case RoomTypeLecture, RoomTypeLab, RoomTypeSeminar:
		return true
	}
	return false
}

// SessionKind is the teaching format of a weekly session.
type SessionKind string

const (
	SessionLecture  SessionKind = "LECTURE"
	SessionLab      SessionKind = "LAB"
	SessionTutorial SessionKind = "TUTORIAL"
)

// Valid reports whether the session kind is known.
func (k SessionKind) Valid() bool {
	switch k {
	case SessionLecture, SessionLab, SessionTutorial:
		return true
	}
	return false
}

// SessionRequirement asks for Count weekly placements of a session kind.
type SessionRequirement struct {
	Kind  SessionKind `json:"kind" yaml:"kind"`
	Count int         `json:"count" yaml:"count"`
}

// SessionRequirements is stored as a JSON column.
type SessionRequirements []SessionRequirement

// Value implements driver.Valuer.
func (s SessionRequirements) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	payload, err := json.Marshal([]SessionRequirement(s))
	if err != nil {
		return nil, err
	}
	return string(payload), nil
}

// Scan implements sql.Scanner.
func (s *SessionRequirements) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*s = nil
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("unsupported sessions source %T", src)
	}
	var items []SessionRequirement
	if err := json.Unmarshal(raw, &items); err != nil {
		return fmt.Errorf("decode sessions: %w", err)
	}
	*s = items
	return nil
}

// Department groups courses and teachers.
type Department struct {
	ID   string `db:"id" json:"id" yaml:"id"`
	Name string `db:"name" json:"name" yaml:"name"`
	Code string `db:"code" json:"code" yaml:"code"`
}

// Course is a unit of teaching that needs weekly placements.
type Course struct {
	ID                 string              `db:"id" json:"id" yaml:"id"`
	Code               string              `db:"code" json:"code" yaml:"code"`
	Name               string              `db:"name" json:"name" yaml:"name"`
	DepartmentID       string              `db:"department_id" json:"departmentId" yaml:"departmentId"`
	Semester           int                 `db:"semester" json:"semester" yaml:"semester"`
	Credits            int                 `db:"credits" json:"credits" yaml:"credits"`
	TeacherID          string              `db:"teacher_id" json:"teacherId" yaml:"teacherId"`
	Prerequisites      pq.StringArray      `db:"prerequisites" json:"prerequisites" yaml:"prerequisites"`
	Sessions           SessionRequirements `db:"sessions" json:"sessions" yaml:"sessions"`
	RoomType           RoomType            `db:"room_type" json:"roomType" yaml:"roomType"`
	ExpectedEnrollment int                 `db:"expected_enrollment" json:"expectedEnrollment" yaml:"expectedEnrollment"`
}

// LectureRoomType returns the classroom type required for lecture sessions.
func (c Course) LectureRoomType() RoomType {
	if c.RoomType == "" {
		return RoomTypeLecture
	}
	return c.RoomType
}

// RoomTypeFor maps a session kind to the classroom type it needs.
func (c Course) RoomTypeFor(kind SessionKind) RoomType {
	switch kind {
	case SessionLab:
		return RoomTypeLab
	case SessionTutorial:
		return RoomTypeSeminar
	default:
		return c.LectureRoomType()
	}
}

// WeeklySessions expands the session requirements in declaration order. A course without
// explicit requirements needs a single lecture.
func (c Course) WeeklySessions() []SessionKind {
	if len(c.Sessions) == 0 {
		return []SessionKind{SessionLecture}
	}
	var kinds []SessionKind
	for _, req := range c.Sessions {
		for i := 0; i < req.Count; i++ {
			kinds = append(kinds, req.Kind)
		}
	}
	return kinds
}

// Teacher is an instructor with optional priority teaching windows.
type Teacher struct {
	ID            string         `db:"id" json:"id" yaml:"id"`
	Name          string         `db:"name" json:"name" yaml:"name"`
	Email         string         `db:"email" json:"email,omitempty" yaml:"email"`
	DepartmentIDs pq.StringArray `db:"department_ids" json:"departmentIds" yaml:"departmentIds"`
	PriorityDays  pq.StringArray `db:"priority_days" json:"priorityDays" yaml:"priorityDays"`
	PriorityStart ClockTime      `db:"priority_time_start" json:"priorityTimeStart" yaml:"priorityTimeStart"`
	PriorityEnd   ClockTime      `db:"priority_time_end" json:"priorityTimeEnd" yaml:"priorityTimeEnd"`
}

// HasPriorityWindow reports whether a priority window is configured.
func (t Teacher) HasPriorityWindow() bool {
	return t.PriorityStart != 0 || t.PriorityEnd != 0
}

// PriorityWindow returns the [start, end) priority window.
func (t Teacher) PriorityWindow() Window {
	return Window{Start: t.PriorityStart, End: t.PriorityEnd}
}

// PrefersDay reports whether day is one of the teacher's priority days.
func (t Teacher) PrefersDay(day Weekday) bool {
	for _, raw := range t.PriorityDays {
		if parsed, ok := ParseWeekday(raw); ok && parsed == day {
			return true
		}
	}
	return false
}

// InDepartment reports whether the teacher belongs to the department.
func (t Teacher) InDepartment(departmentID string) bool {
	for _, id := range t.DepartmentIDs {
		if id == departmentID {
			return true
		}
	}
	return false
}

// Classroom is a bookable room.
type Classroom struct {
	ID        string         `db:"id" json:"id" yaml:"id"`
	Name      string         `db:"name" json:"name" yaml:"name"`
	Building  string         `db:"building" json:"building" yaml:"building"`
	Capacity  int            `db:"capacity" json:"capacity" yaml:"capacity"`
	Type      RoomType       `db:"type" json:"type" yaml:"type"`
	Equipment pq.StringArray `db:"equipment" json:"equipment" yaml:"equipment"`
}

// TimeSlot is one teaching period within a working day.
type TimeSlot struct {
	ID    string    `db:"id" json:"id" yaml:"id"`
	Start ClockTime `db:"start_time" json:"startTime" yaml:"startTime"`
	End   ClockTime `db:"end_time" json:"endTime" yaml:"endTime"`
	Label string    `db:"label" json:"label" yaml:"label"`
}

// Window returns the slot interval.
func (s TimeSlot) Window() Window {
	return Window{Start: s.Start, End: s.End}
}

// Break blocks a time window on one day (or every day when Day is empty) for one
// department (or all when DepartmentID is empty).
type Break struct {
	ID           string    `db:"id" json:"id" yaml:"id"`
	Name         string    `db:"name" json:"name" yaml:"name"`
	Day          string    `db:"day" json:"day" yaml:"day"`
	Start        ClockTime `db:"start_time" json:"startTime" yaml:"startTime"`
	End          ClockTime `db:"end_time" json:"endTime" yaml:"endTime"`
	DepartmentID string    `db:"department_id" json:"departmentId,omitempty" yaml:"departmentId"`
}

// Window returns the break interval.
func (b Break) Window() Window {
	return Window{Start: b.Start, End: b.End}
}

// AppliesTo reports whether the break covers the department on the given day.
func (b Break) AppliesTo(day Weekday, departmentID string) bool {
	if !isWildcard(b.DepartmentID) && b.DepartmentID != departmentID {
		return false
	}
	if isWildcard(b.Day) {
		return true
	}
	parsed, ok := ParseWeekday(b.Day)
	return ok && parsed == day
}

// Holiday closes a calendar date for some or all departments.
type Holiday struct {
	ID            string         `db:"id" json:"id" yaml:"id"`
	Name          string         `db:"name" json:"name" yaml:"name"`
	Date          time.Time      `db:"date" json:"date" yaml:"date"`
	DepartmentIDs pq.StringArray `db:"department_ids" json:"departmentIds" yaml:"departmentIds"`
}

// AppliesTo reports whether the holiday closes the department.
func (h Holiday) AppliesTo(departmentID string) bool {
	if len(h.DepartmentIDs) == 0 {
		return true
	}
	for _, id := range h.DepartmentIDs {
		if isWildcard(id) || id == departmentID {
			return true
		}
	}
	return false
}

// SameDate compares calendar dates ignoring clock and zone offsets.
func (h Holiday) SameDate(date time.Time) bool {
	y1, m1, d1 := h.Date.Date()
	y2, m2, d2 := date.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

func isWildcard(value string) bool {
	return value == "" || strings.EqualFold(value, "all")
}

// Catalog bundles the read-only reference data a generation run works from.
type Catalog struct {
	Departments []Department `json:"departments" yaml:"departments"`
	Courses     []Course     `json:"courses" yaml:"courses"`
	Teachers    []Teacher    `json:"teachers" yaml:"teachers"`
	Classrooms  []Classroom  `json:"classrooms" yaml:"classrooms"`
	TimeSlots   []TimeSlot   `json:"timeSlots" yaml:"timeSlots"`
	Breaks      []Break      `json:"breaks" yaml:"breaks"`
	Holidays    []Holiday    `json:"holidays" yaml:"holidays"`
	Days        []Weekday    `json:"days" yaml:"days"`
}

// CatalogFilter narrows catalog loading to some departments. Empty means all.
type CatalogFilter struct {
	DepartmentIDs []string
}

// Includes reports whether the department passes the filter.
func (f CatalogFilter) Includes(departmentID string) bool {
	if len(f.DepartmentIDs) == 0 {
		return true
	}
	for _, id := range f.DepartmentIDs {
		if id == departmentID {
			return true
		}
	}
	return false
}

// WorkingDays returns the configured days ordered Monday first, defaulting to Monday–Friday.
func (c Catalog) WorkingDays() []Weekday {
	if len(c.Days) == 0 {
		return DefaultWorkingDays()
	}
	days := make([]Weekday, 0, len(c.Days))
	seen := make(map[Weekday]bool, len(c.Days))
	for _, raw := range c.Days {
		day, ok := ParseWeekday(string(raw))
		if !ok || seen[day] {
			continue
		}
		seen[day] = true
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Index() < days[j].Index() })
	return days
}
