package scheduler

import (
	"sync"

	"github.com/noah-isme/campus-timetable-api/internal/models"
)

// board is the occupancy ledger a search places entries on.
type board interface {
	clashes(candidate models.ScheduleEntry) []models.Violation
	sameCourseOnDay(courseID string, day models.Weekday) int
	// place re-checks clashes unless relaxed and reports whether the entry was placed.
	place(entry models.ScheduleEntry, relaxed bool) bool
	remove(id string)
}

type localBoard struct {
	checker *Checker
	byDay   map[models.Weekday][]models.ScheduleEntry
}

func newLocalBoard(checker *Checker) *localBoard {
	return &localBoard{checker: checker, byDay: make(map[models.Weekday][]models.ScheduleEntry)}
}

func (b *localBoard) clashes(candidate models.ScheduleEntry) []models.Violation {
	var violations []models.Violation
	for _, other := range b.byDay[candidate.Day] {
		if other.ID == candidate.ID {
			continue
		}
		violations = append(violations, b.checker.Clashes(candidate, other)...)
	}
	return violations
}

func (b *localBoard) sameCourseOnDay(courseID string, day models.Weekday) int {
	count := 0
	for _, other := range b.byDay[day] {
		if other.CourseID == courseID {
			count++
		}
	}
	return count
}

func (b *localBoard) place(entry models.ScheduleEntry, relaxed bool) bool {
	if blocks(b.clashes(entry), relaxed) {
		return false
	}
	b.byDay[entry.Day] = append(b.byDay[entry.Day], entry)
	return true
}

func (b *localBoard) remove(id string) {
	for day, entries := range b.byDay {
		for i, entry := range entries {
			if entry.ID == id {
				b.byDay[day] = append(entries[:i:i], entries[i+1:]...)
				return
			}
		}
	}
}

// sharedBoard serialises access for departments searched concurrently on overlapping
// resources.
type sharedBoard struct {
	mu    sync.RWMutex
	inner *localBoard
}

func newSharedBoard(checker *Checker) *sharedBoard {
	return &sharedBoard{inner: newLocalBoard(checker)}
}

func (b *sharedBoard) clashes(candidate models.ScheduleEntry) []models.Violation {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.inner.clashes(candidate)
}

func (b *sharedBoard) sameCourseOnDay(courseID string, day models.Weekday) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.inner.sameCourseOnDay(courseID, day)
}

func (b *sharedBoard) place(entry models.ScheduleEntry, relaxed bool) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inner.place(entry, relaxed)
}

func (b *sharedBoard) remove(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inner.remove(id)
}

// blocks reports whether violations rule a placement out. Relaxed runs tolerate clash kinds only.
func blocks(violations []models.Violation, relaxed bool) bool {
	for _, v := range violations {
		if !relaxed || !v.Kind.IsClash() {
			return true
		}
	}
	return false
}
