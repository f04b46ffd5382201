package scheduler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/noah-isme/campus-timetable-api/internal/models"
)

// Reporter lists the hard constraints a schedule breaks.
type Reporter struct {
	checker *Checker
}

// NewReporter constructs a Reporter.
func NewReporter(checker *Checker) *Reporter {
	return &Reporter{checker: checker}
}

type sortableConflict struct {
	record models.ConflictRecord
	dayIdx int
	start  models.ClockTime
}

// ReportConflicts scans entry pairs for clashes and each entry for static violations. The
// output is sorted by day, slot start, kind and entry ids, so repeated runs agree.
func (r *Reporter) ReportConflicts(schedule models.Schedule) []models.ConflictRecord {
	var found []sortableConflict
	for i := 0; i < len(schedule); i++ {
		a := schedule[i]
		for _, v := range r.checker.StaticViolations(a) {
			found = append(found, sortableConflict{
				record: models.ConflictRecord{
					Kind:        v.Kind,
					EntryIDs:    []string{a.ID},
					Day:         a.Day,
					TimeSlotID:  a.TimeSlotID,
					Description: fmt.Sprintf("%s: %s", a.ID, v.Description),
				},
				dayIdx: a.Day.Index(),
				start:  a.Start,
			})
		}
		for j := i + 1; j < len(schedule); j++ {
			b := schedule[j]
			first, second := a, b
			if entryBefore(b, a) {
				first, second = b, a
			}
			for _, v := range r.checker.Clashes(first, second) {
				found = append(found, sortableConflict{
					record: models.ConflictRecord{
						Kind:        v.Kind,
						EntryIDs:    sortedPair(a.ID, b.ID),
						Day:         first.Day,
						TimeSlotID:  first.TimeSlotID,
						Description: fmt.Sprintf("%s and %s: %s", first.ID, second.ID, v.Description),
					},
					dayIdx: first.Day.Index(),
					start:  first.Start,
				})
			}
		}
	}

	sort.SliceStable(found, func(i, j int) bool {
		a, b := found[i], found[j]
		if a.dayIdx != b.dayIdx {
			return a.dayIdx < b.dayIdx
		}
		if a.start != b.start {
			return a.start < b.start
		}
		if a.record.Kind != b.record.Kind {
			return a.record.Kind.Rank() < b.record.Kind.Rank()
		}
		return strings.Join(a.record.EntryIDs, ",") < strings.Join(b.record.EntryIDs, ",")
	})

	records := make([]models.ConflictRecord, 0, len(found))
	for _, item := range found {
		records = append(records, item.record)
	}
	return records
}

func entryBefore(a, b models.ScheduleEntry) bool {
	if a.Start != b.Start {
		return a.Start < b.Start
	}
	return a.ID < b.ID
}

func sortedPair(a, b string) []string {
	if b < a {
		a, b = b, a
	}
	return []string{a, b}
}
