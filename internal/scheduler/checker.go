package scheduler

import (
	"fmt"
	"sort"
	"time"

	"github.com/noah-isme/campus-timetable-api/internal/models"
)

// Soft preference weights.
const (
	scorePriorityDayAndWindow = 10.0
	scorePriorityDayOnly      = 3.0
	scorePriorityWindowOnly   = 2.0
	scoreRoomTightness        = 5.0
	penaltySameCourseSameDay  = 4.0
	penaltyRelaxedClash       = 100.0
)

// FeasibilityResult tells whether a placement keeps every hard constraint.
type FeasibilityResult struct {
	Feasible   bool               `json:"feasible"`
	Violations []models.Violation `json:"violations,omitempty"`
}

// Preferences toggles soft scoring terms.
type Preferences struct {
	RespectPreferences bool
	OptimizeRooms      bool
}

// Checker evaluates hard constraints and soft preferences against read-only reference data.
type Checker struct {
	courses     map[string]models.Course
	teachers    map[string]models.Teacher
	rooms       map[string]models.Classroom
	roomList    []models.Classroom
	slots       map[string]models.TimeSlot
	slotList    []models.TimeSlot
	days        []models.Weekday
	breaks      []models.Break
	holidays    []models.Holiday
	enrollments models.EnrollmentSets
	weekStart   *time.Time
}

// NewChecker indexes the catalog. Holidays only apply when weekStart anchors the week.
func NewChecker(catalog models.Catalog, enrollments models.EnrollmentSets, weekStart *time.Time) *Checker {
	c := &Checker{
		courses:     make(map[string]models.Course, len(catalog.Courses)),
		teachers:    make(map[string]models.Teacher, len(catalog.Teachers)),
		rooms:       make(map[string]models.Classroom, len(catalog.Classrooms)),
		slots:       make(map[string]models.TimeSlot, len(catalog.TimeSlots)),
		days:        catalog.WorkingDays(),
		breaks:      catalog.Breaks,
		holidays:    catalog.Holidays,
		enrollments: enrollments,
		weekStart:   weekStart,
	}
	for _, course := range catalog.Courses {
		c.courses[course.ID] = course
	}
	for _, teacher := range catalog.Teachers {
		c.teachers[teacher.ID] = teacher
	}
	for _, room := range catalog.Classrooms {
		c.rooms[room.ID] = room
		c.roomList = append(c.roomList, room)
	}
	sort.Slice(c.roomList, func(i, j int) bool { return c.roomList[i].ID < c.roomList[j].ID })
	for _, slot := range catalog.TimeSlots {
		c.slots[slot.ID] = slot
		c.slotList = append(c.slotList, slot)
	}
	sort.Slice(c.slotList, func(i, j int) bool {
		if c.slotList[i].Start == c.slotList[j].Start {
			return c.slotList[i].ID < c.slotList[j].ID
		}
		return c.slotList[i].Start < c.slotList[j].Start
	})
	return c
}

// Slot looks up a time slot.
func (c *Checker) Slot(id string) (models.TimeSlot, bool) {
	slot, ok := c.slots[id]
	return slot, ok
}

// Course looks up a course.
func (c *Checker) Course(id string) (models.Course, bool) {
	course, ok := c.courses[id]
	return course, ok
}

// IsWorkingDay reports whether day belongs to the configured week.
func (c *Checker) IsWorkingDay(day models.Weekday) bool {
	for _, d := range c.days {
		if d == day {
			return true
		}
	}
	return false
}

// IsFeasible checks candidate against every entry of existing except one sharing its id.
func (c *Checker) IsFeasible(candidate models.ScheduleEntry, existing models.Schedule) FeasibilityResult {
	violations := c.StaticViolations(candidate)
	for _, other := range existing {
		if other.ID == candidate.ID {
			continue
		}
		violations = append(violations, c.Clashes(candidate, other)...)
	}
	return FeasibilityResult{Feasible: len(violations) == 0, Violations: violations}
}

// Clashes lists the pairwise constraints a breaks against b.
func (c *Checker) Clashes(a, b models.ScheduleEntry) []models.Violation {
	if a.Day != b.Day || !a.Window().Overlaps(b.Window()) {
		return nil
	}
	var violations []models.Violation
	if a.TeacherID != "" && a.TeacherID == b.TeacherID {
		violations = append(violations, models.Violation{
			Kind:          models.ConstraintTeacherClash,
			ConflictingID: b.ID,
			Description:   fmt.Sprintf("teacher %s already teaches %s on %s %s-%s", a.TeacherID, b.CourseID, b.Day, b.Start, b.End),
		})
	}
	if a.ClassroomID != "" && a.ClassroomID == b.ClassroomID {
		violations = append(violations, models.Violation{
			Kind:          models.ConstraintClassroomClash,
			ConflictingID: b.ID,
			Description:   fmt.Sprintf("classroom %s is booked for %s on %s %s-%s", a.ClassroomID, b.CourseID, b.Day, b.Start, b.End),
		})
	}
	if c.SharesCohort(a.CourseID, b.CourseID) {
		violations = append(violations, models.Violation{
			Kind:          models.ConstraintCohortClash,
			ConflictingID: b.ID,
			Description:   fmt.Sprintf("students of %s also attend %s on %s %s-%s", a.CourseID, b.CourseID, b.Day, b.Start, b.End),
		})
	}
	return violations
}

// SharesCohort reports whether two courses have students in common. Explicit enrollment
// sets win when both courses have them; otherwise department and semester decide.
func (c *Checker) SharesCohort(a, b string) bool {
	if a == b {
		return true
	}
	if c.enrollments.Has(a) && c.enrollments.Has(b) {
		return c.enrollments.Intersect(a, b)
	}
	left, okLeft := c.courses[a]
	right, okRight := c.courses[b]
	if !okLeft || !okRight {
		return false
	}
	return left.DepartmentID == right.DepartmentID && left.Semester == right.Semester
}

// StaticViolations lists constraints that depend on the entry alone.
func (c *Checker) StaticViolations(entry models.ScheduleEntry) []models.Violation {
	var violations []models.Violation
	course, okCourse := c.courses[entry.CourseID]
	room, okRoom := c.rooms[entry.ClassroomID]
	if !okCourse {
		violations = append(violations, unknownReference("course", entry.CourseID))
	}
	if !okRoom {
		violations = append(violations, unknownReference("classroom", entry.ClassroomID))
	}
	if okCourse && okRoom {
		violations = append(violations, c.roomViolations(course, entry.SessionKind, room)...)
	}
	violations = append(violations, c.calendarViolations(entry.Day, entry.Window(), entry.DepartmentID)...)
	return violations
}

func (c *Checker) roomViolations(course models.Course, kind models.SessionKind, room models.Classroom) []models.Violation {
	var violations []models.Violation
	if required := course.RoomTypeFor(kind); room.Type != required {
		violations = append(violations, models.Violation{
			Kind:        models.ConstraintRoomType,
			Description: fmt.Sprintf("%s session of %s needs a %s room, %s is %s", kind, course.ID, required, room.ID, room.Type),
		})
	}
	if room.Capacity < course.ExpectedEnrollment {
		violations = append(violations, models.Violation{
			Kind:        models.ConstraintRoomCapacity,
			Description: fmt.Sprintf("%s expects %d students, %s seats %d", course.ID, course.ExpectedEnrollment, room.ID, room.Capacity),
		})
	}
	return violations
}

func (c *Checker) calendarViolations(day models.Weekday, window models.Window, departmentID string) []models.Violation {
	var violations []models.Violation
	for _, brk := range c.breaks {
		if brk.AppliesTo(day, departmentID) && brk.Window().Overlaps(window) {
			violations = append(violations, models.Violation{
				Kind:        models.ConstraintBreak,
				Description: fmt.Sprintf("%s %s-%s intersects break %s", day, window.Start, window.End, brk.Name),
			})
		}
	}
	if c.weekStart == nil {
		return violations
	}
	date := day.Date(*c.weekStart)
	for _, holiday := range c.holidays {
		if holiday.AppliesTo(departmentID) && holiday.SameDate(date) {
			violations = append(violations, models.Violation{
				Kind:        models.ConstraintHoliday,
				Description: fmt.Sprintf("%s %s is holiday %s", day, date.Format("2006-01-02"), holiday.Name),
			})
		}
	}
	return violations
}

func unknownReference(kind, id string) models.Violation {
	return models.Violation{
		Kind:        models.ConstraintUnknownReference,
		Description: fmt.Sprintf("unknown %s %s", kind, id),
	}
}

// Score rates a feasible candidate; higher is better.
func (c *Checker) Score(candidate models.ScheduleEntry, existing models.Schedule, prefs Preferences) float64 {
	sameDay := 0
	for _, other := range existing {
		if other.ID != candidate.ID && other.CourseID == candidate.CourseID && other.Day == candidate.Day {
			sameDay++
		}
	}
	return c.preferenceScore(candidate, prefs) - penaltySameCourseSameDay*float64(sameDay)
}

func (c *Checker) preferenceScore(candidate models.ScheduleEntry, prefs Preferences) float64 {
	score := 0.0
	if prefs.RespectPreferences {
		if teacher, ok := c.teachers[candidate.TeacherID]; ok {
			dayMatch := teacher.PrefersDay(candidate.Day)
			windowMatch := teacher.HasPriorityWindow() && teacher.PriorityWindow().Contains(candidate.Window())
			switch {
			case dayMatch && windowMatch:
				score += scorePriorityDayAndWindow
			case dayMatch:
				score += scorePriorityDayOnly
			case windowMatch:
				score += scorePriorityWindowOnly
			}
		}
	}
	if prefs.OptimizeRooms {
		course, okCourse := c.courses[candidate.CourseID]
		room, okRoom := c.rooms[candidate.ClassroomID]
		if okCourse && okRoom && room.Capacity > 0 && course.ExpectedEnrollment > 0 {
			score += scoreRoomTightness * float64(course.ExpectedEnrollment) / float64(room.Capacity)
		}
	}
	return score
}
