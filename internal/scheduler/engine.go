package scheduler

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/campus-timetable-api/internal/models"
)

// Engine generates timetables. It holds no schedule state between calls.
type Engine struct {
	logger *zap.Logger
}

// NewEngine constructs an Engine.
func NewEngine(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{logger: logger}
}

// Generate validates the input and searches for a placement of every weekly session.
// Only malformed input fails; unplaceable sessions and timeouts are reported in the Result.
// Cancelling ctx abandons the search and returns ctx.Err().
func (e *Engine) Generate(ctx context.Context, in Input, opts Options) (*Result, error) {
	started := time.Now()
	catalog, warnings, err := Validate(in.Catalog)
	if err != nil {
		return nil, err
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	filter := models.CatalogFilter{DepartmentIDs: opts.DepartmentIDs}
	warnings = append(warnings, unknownDepartmentWarnings(catalog, filter)...)

	checker := NewChecker(catalog, in.Enrollments, opts.WeekStart)
	plans := buildPlans(checker, catalog, filter, Preferences{
		RespectPreferences: opts.RespectPreferences,
		OptimizeRooms:      opts.OptimizeRooms,
	})

	var outcomes []*searchOutcome
	partitions := 1
	if opts.Parallel {
		var parallelWarnings []string
		outcomes, partitions, parallelWarnings, err = runPartitioned(ctx, checker, plans, in, opts)
		warnings = append(warnings, parallelWarnings...)
	} else {
		var outcome *searchOutcome
		outcome, err = newSearch(seededBoard(newLocalBoard(checker), in.Reserved), plans, opts).run(ctx)
		outcomes = []*searchOutcome{outcome}
	}
	if err != nil {
		e.logger.Debug("timetable generation abandoned", zap.Error(err))
		return nil, err
	}

	result := mergeOutcomes(outcomes)
	result.Warnings = append(warnings, result.Warnings...)
	result.Stats.Requests = len(plans)
	result.Stats.Partitions = partitions
	result.Stats.Duration = time.Since(started)

	e.logger.Debug("timetable generated",
		zap.Int("requests", result.Stats.Requests),
		zap.Int("placed", result.Stats.Placed),
		zap.Int("unplaceable", result.Stats.Unplaceable),
		zap.Int("backtracks", result.Stats.Backtracks),
		zap.Bool("timed_out", result.Stats.TimedOut),
		zap.Duration("duration", result.Stats.Duration),
	)
	return result, nil
}

// buildPlans expands courses into slot requests with their static domains, ordered most
// constrained first.
func buildPlans(checker *Checker, catalog models.Catalog, filter models.CatalogFilter, prefs Preferences) []*requestPlan {
	var plans []*requestPlan
	teacherLoad := make(map[string]int)
	for _, course := range catalog.Courses {
		if !filter.Includes(course.DepartmentID) {
			continue
		}
		for index, kind := range course.WeeklySessions() {
			req := SlotRequest{
				ID:           fmt.Sprintf("%s#%d", course.ID, index),
				CourseID:     course.ID,
				DepartmentID: course.DepartmentID,
				TeacherID:    course.TeacherID,
				SessionKind:  kind,
				SessionIndex: index,
			}
			plans = append(plans, &requestPlan{SlotRequest: req, domain: staticDomain(checker, course, req, prefs)})
			teacherLoad[course.TeacherID]++
		}
	}
	for _, plan := range plans {
		plan.teacherLoad = teacherLoad[plan.TeacherID]
	}
	sort.SliceStable(plans, func(i, j int) bool {
		a, b := plans[i], plans[j]
		if len(a.domain) != len(b.domain) {
			return len(a.domain) < len(b.domain)
		}
		if a.teacherLoad != b.teacherLoad {
			return a.teacherLoad > b.teacherLoad
		}
		return a.ID < b.ID
	})
	return plans
}

func staticDomain(checker *Checker, course models.Course, req SlotRequest, prefs Preferences) []candidate {
	var domain []candidate
	for _, room := range checker.roomList {
		if len(checker.roomViolations(course, req.SessionKind, room)) > 0 {
			continue
		}
		for _, day := range checker.days {
			for _, slot := range checker.slotList {
				if len(checker.calendarViolations(day, slot.Window(), course.DepartmentID)) > 0 {
					continue
				}
				entry := models.ScheduleEntry{
					ID:           req.ID,
					CourseID:     course.ID,
					TeacherID:    req.TeacherID,
					ClassroomID:  room.ID,
					DepartmentID: course.DepartmentID,
					Day:          day,
					TimeSlotID:   slot.ID,
					Start:        slot.Start,
					End:          slot.End,
					SessionKind:  req.SessionKind,
					SessionIndex: req.SessionIndex,
					Origin:       models.Fresh{},
				}
				domain = append(domain, candidate{entry: entry, base: checker.preferenceScore(entry, prefs)})
			}
		}
	}
	return domain
}

func seededBoard(b board, reserved models.Schedule) board {
	for _, entry := range reserved {
		b.place(entry, true)
	}
	return b
}

func mergeOutcomes(outcomes []*searchOutcome) *Result {
	result := &Result{Schedule: models.Schedule{}, Unplaceable: []SlotRequest{}, Warnings: []string{}}
	for _, outcome := range outcomes {
		result.Schedule = append(result.Schedule, outcome.entries...)
		result.Unplaceable = append(result.Unplaceable, outcome.unplaceable...)
		result.Stats.Backtracks += outcome.backtracks
		result.Stats.TimedOut = result.Stats.TimedOut || outcome.timedOut
	}
	result.Schedule.Sort()
	sort.SliceStable(result.Unplaceable, func(i, j int) bool {
		return result.Unplaceable[i].ID < result.Unplaceable[j].ID
	})
	result.Stats.Placed = len(result.Schedule)
	result.Stats.Unplaceable = len(result.Unplaceable)
	for _, req := range result.Unplaceable {
		result.Warnings = append(result.Warnings, fmt.Sprintf("%s unplaceable: %s", req.ID, req.Reason))
	}
	return result
}

func unknownDepartmentWarnings(catalog models.Catalog, filter models.CatalogFilter) []string {
	known := make(map[string]bool, len(catalog.Departments))
	for _, dept := range catalog.Departments {
		known[dept.ID] = true
	}
	var warnings []string
	for _, id := range filter.DepartmentIDs {
		if !known[id] {
			warnings = append(warnings, fmt.Sprintf("department filter %s matches no department", id))
		}
	}
	return warnings
}
