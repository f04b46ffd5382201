package scheduler

import (
	"errors"
	"fmt"

	"github.com/noah-isme/campus-timetable-api/internal/models"
)

var (
	// ErrRequestNotApproved is returned when applying a request that is not approved.
	ErrRequestNotApproved = errors.New("reschedule request is not approved")
	// ErrEntryNotFound is returned when the target entry is absent from the schedule.
	ErrEntryNotFound = errors.New("schedule entry not found")
	// ErrUnknownPlacement is returned when the requested day or slot does not exist.
	ErrUnknownPlacement = errors.New("requested day or time slot does not exist")
)

// ApplyResult is the outcome of applying one reschedule request.
type ApplyResult struct {
	Schedule   models.Schedule      `json:"schedule"`
	Entry      models.ScheduleEntry `json:"entry"`
	Applied    bool                 `json:"applied"`
	Violations []models.Violation   `json:"violations,omitempty"`
}

// ViolatedKinds lists the distinct constraint kinds that blocked the move.
func (r ApplyResult) ViolatedKinds() []models.ConstraintKind {
	return models.ViolationKinds(r.Violations)
}

// Reconciler moves single entries of an existing schedule.
type Reconciler struct {
	checker *Checker
}

// NewReconciler constructs a Reconciler.
func NewReconciler(checker *Checker) *Reconciler {
	return &Reconciler{checker: checker}
}

// Apply checks the requested placement against the schedule without the moved entry. On
// success the returned schedule holds the moved entry; otherwise the input schedule is
// returned unchanged together with the violations. The input slice is never mutated.
func (r *Reconciler) Apply(req models.RescheduleRequest, schedule models.Schedule) (*ApplyResult, error) {
	if req.Status != models.RescheduleStatusApproved {
		return nil, fmt.Errorf("%w: status %s", ErrRequestNotApproved, req.Status)
	}
	current, index, ok := schedule.Find(req.EntryID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, req.EntryID)
	}
	slot, ok := r.checker.Slot(req.RequestedTimeSlotID)
	if !ok || !r.checker.IsWorkingDay(req.RequestedDay) {
		return nil, fmt.Errorf("%w: %s %s", ErrUnknownPlacement, req.RequestedDay, req.RequestedTimeSlotID)
	}

	trial := current.MovedTo(req.RequestedDay, slot)
	feasibility := r.checker.IsFeasible(trial, schedule.Without(current.ID))
	if !feasibility.Feasible {
		return &ApplyResult{Schedule: schedule, Entry: current, Violations: feasibility.Violations}, nil
	}

	updated := schedule.Clone()
	updated[index] = trial
	updated.Sort()
	return &ApplyResult{Schedule: updated, Entry: trial, Applied: true}, nil
}
