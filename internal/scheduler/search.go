package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/noah-isme/campus-timetable-api/internal/models"
)

const reasonTimedOut = "search timed out before this session was placed"

// candidate is a statically valid (classroom, day, slot) option for a request.
type candidate struct {
	entry models.ScheduleEntry
	base  float64
}

type requestPlan struct {
	SlotRequest
	domain      []candidate
	teacherLoad int
}

type rankedCandidate struct {
	entry models.ScheduleEntry
	score float64
}

type frame struct {
	ranked []rankedCandidate
	next   int
	placed *models.ScheduleEntry
}

type checkpoint struct {
	index  int
	frames []*frame
}

type searchOutcome struct {
	entries     models.Schedule
	unplaceable []SlotRequest
	backtracks  int
	timedOut    bool
}

// search assigns one ordered list of requests on a board using chronological backtracking.
type search struct {
	board      board
	requests   []*requestPlan
	relaxed    bool
	budget     int
	backtracks int
}

func newSearch(b board, requests []*requestPlan, opts Options) *search {
	return &search{
		board:    b,
		requests: requests,
		relaxed:  !opts.AvoidConflicts,
		budget:   opts.backtrackBudget(),
	}
}

func (s *search) run(ctx context.Context) (*searchOutcome, error) {
	n := len(s.requests)
	frames := make([]*frame, n)
	skipped := make(map[int]bool)
	unplaceable := make(map[int]SlotRequest)
	floor := 0
	timedOut := false
	var cp *checkpoint

	i := 0
	for i < n {
		if err := ctx.Err(); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				timedOut = true
				break
			}
			s.clear(frames, 0)
			return nil, err
		}
		if skipped[i] {
			i++
			continue
		}

		f := frames[i]
		if f == nil {
			f = &frame{ranked: s.rank(s.requests[i])}
			frames[i] = f
		}
		if s.advance(f) {
			i++
			if cp != nil && i > cp.index {
				cp = nil
			}
			continue
		}

		if cp == nil {
			cp = capture(frames, floor, i)
		}
		prev := previousPlaced(frames, skipped, floor, i)
		if prev >= 0 && s.backtracks < s.budget {
			s.backtracks++
			for k := prev + 1; k <= i; k++ {
				frames[k] = nil
			}
			s.board.remove(frames[prev].placed.ID)
			frames[prev].placed = nil
			i = prev
			continue
		}

		failed := cp.index
		i = s.restore(frames, cp, floor)
		floor = i
		cp = nil
		skipped[failed] = true
		unplaceable[failed] = s.explain(failed)
	}

	if timedOut && cp != nil && placedCount(cp.frames) > placedCount(frames[floor:]) {
		s.restore(frames, cp, floor)
	}

	outcome := &searchOutcome{backtracks: s.backtracks, timedOut: timedOut}
	for k, f := range frames {
		switch {
		case f != nil && f.placed != nil:
			outcome.entries = append(outcome.entries, *f.placed)
		case skipped[k]:
			outcome.unplaceable = append(outcome.unplaceable, unplaceable[k])
		default:
			req := s.requests[k].SlotRequest
			req.Reason = reasonTimedOut
			outcome.unplaceable = append(outcome.unplaceable, req)
		}
	}
	return outcome, nil
}

func (s *search) advance(f *frame) bool {
	for f.next < len(f.ranked) {
		option := f.ranked[f.next]
		f.next++
		if s.board.place(option.entry, s.relaxed) {
			placed := option.entry
			f.placed = &placed
			return true
		}
	}
	return false
}

// rank orders the currently acceptable candidates: score descending, then lowest
// classroom id, time slot id and day index.
func (s *search) rank(plan *requestPlan) []rankedCandidate {
	ranked := make([]rankedCandidate, 0, len(plan.domain))
	for _, option := range plan.domain {
		clashes := s.board.clashes(option.entry)
		if blocks(clashes, s.relaxed) {
			continue
		}
		score := option.base -
			penaltySameCourseSameDay*float64(s.board.sameCourseOnDay(option.entry.CourseID, option.entry.Day)) -
			penaltyRelaxedClash*float64(len(clashes))
		ranked = append(ranked, rankedCandidate{entry: option.entry, score: score})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.entry.ClassroomID != b.entry.ClassroomID {
			return a.entry.ClassroomID < b.entry.ClassroomID
		}
		if a.entry.TimeSlotID != b.entry.TimeSlotID {
			return a.entry.TimeSlotID < b.entry.TimeSlotID
		}
		return a.entry.Day.Index() < b.entry.Day.Index()
	})
	return ranked
}

// restore rolls the board back to the checkpoint and returns the position to resume from.
// A saved entry that no longer fits, because a concurrent search took its place, ends the
// restore early; the search resumes there.
func (s *search) restore(frames []*frame, cp *checkpoint, floor int) int {
	s.clear(frames, floor)
	for offset, saved := range cp.frames {
		k := floor + offset
		if saved == nil {
			continue
		}
		if saved.placed != nil && !s.board.place(*saved.placed, s.relaxed) {
			return k
		}
		restored := *saved
		frames[k] = &restored
	}
	return cp.index + 1
}

func (s *search) clear(frames []*frame, from int) {
	for k := from; k < len(frames); k++ {
		if frames[k] != nil && frames[k].placed != nil {
			s.board.remove(frames[k].placed.ID)
		}
		frames[k] = nil
	}
}

func (s *search) explain(index int) SlotRequest {
	plan := s.requests[index]
	req := plan.SlotRequest
	if len(plan.domain) == 0 {
		req.Reason = "no classroom and time slot pass the room and calendar constraints"
		return req
	}
	seen := make(map[models.ConstraintKind]bool)
	for _, option := range plan.domain {
		for _, v := range s.board.clashes(option.entry) {
			if !seen[v.Kind] {
				seen[v.Kind] = true
				req.Blocking = append(req.Blocking, v.Kind)
			}
		}
	}
	sort.Slice(req.Blocking, func(i, j int) bool { return req.Blocking[i].Rank() < req.Blocking[j].Rank() })
	names := make([]string, len(req.Blocking))
	for i, kind := range req.Blocking {
		names[i] = string(kind)
	}
	req.Reason = fmt.Sprintf("every candidate placement is blocked (%s)", strings.Join(names, ", "))
	return req
}

func capture(frames []*frame, floor, index int) *checkpoint {
	cp := &checkpoint{index: index, frames: make([]*frame, index-floor)}
	for k := floor; k < index; k++ {
		if frames[k] == nil {
			continue
		}
		saved := *frames[k]
		if saved.placed != nil {
			entry := *saved.placed
			saved.placed = &entry
		}
		cp.frames[k-floor] = &saved
	}
	return cp
}

func previousPlaced(frames []*frame, skipped map[int]bool, floor, index int) int {
	for k := index - 1; k >= floor; k-- {
		if skipped[k] {
			continue
		}
		if frames[k] != nil && frames[k].placed != nil {
			return k
		}
	}
	return -1
}

func placedCount(frames []*frame) int {
	count := 0
	for _, f := range frames {
		if f != nil && f.placed != nil {
			count++
		}
	}
	return count
}
