package repository

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-timetable-api/internal/models"
)

var rescheduleColumns = []string{
	"id", "teacher_id", "entry_id", "original_day", "original_time_slot_id", "requested_day", "requested_time_slot_id",
	"reason", "status",
	"reviewed_by", "note", "requested_at", "reviewed_at", "applied_at",
}

// RescheduleRequestRepository stores teacher reschedule requests.
type RescheduleRequestRepository struct {
	db *sqlx.DB
}

// NewRescheduleRequestRepository constructs the repository.
func NewRescheduleRequestRepository(db *sqlx.DB) *RescheduleRequestRepository {
	return &RescheduleRequestRepository{db: db}
}

func (r *RescheduleRequestRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts a new request.
func (r *RescheduleRequestRepository) Create(ctx context.Context, req *models.RescheduleRequest) error {
	const query = `
INSERT INTO reschedule_requests (id, teacher_id, entry_id, original_day, original_time_slot_id, requested_day,
    requested_time_slot_id, reason, status, requested_at)
VALUES (:id, :teacher_id, :entry_id, :original_day, :original_time_slot_id, :requested_day,
    :requested_time_slot_id, :reason, :status, :requested_at)`
	if _, err := r.db.NamedExecContext(ctx, query, req); err != nil {
		return fmt.Errorf("insert reschedule request: %w", err)
	}
	return nil
}

// FindByID fetches a request.
func (r *RescheduleRequestRepository) FindByID(ctx context.Context, id string) (*models.RescheduleRequest, error) {
	query, args, err := psql.Select(rescheduleColumns...).From("reschedule_requests").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build reschedule query: %w", err)
	}
	var req models.RescheduleRequest
	if err := r.db.GetContext(ctx, &req, query, args...); err != nil {
		return nil, err
	}
	return &req, nil
}

// List returns requests matching the filter, newest first, with the total count.
func (r *RescheduleRequestRepository) List(ctx context.Context, filter models.RescheduleFilter) ([]models.RescheduleRequest, int, error) {
	where := sq.And{}
	if len(filter.Status) > 0 {
		statuses := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			statuses[i] = string(status)
		}
		where = append(where, sq.Eq{"status": statuses})
	}
	if filter.TeacherID != "" {
		where = append(where, sq.Eq{"teacher_id": filter.TeacherID})
	}
	if filter.EntryID != "" {
		where = append(where, sq.Eq{"entry_id": filter.EntryID})
	}

	countQuery, countArgs, err := psql.Select("COUNT(*)").From("reschedule_requests").Where(where).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build reschedule count: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		return nil, 0, fmt.Errorf("count reschedule requests: %w", err)
	}

	builder := psql.Select(rescheduleColumns...).From("reschedule_requests").Where(where).OrderBy("requested_at DESC", "id")
	if filter.Limit > 0 {
		builder = builder.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		builder = builder.Offset(uint64(filter.Offset))
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build reschedule list: %w", err)
	}
	var requests []models.RescheduleRequest
	if err := r.db.SelectContext(ctx, &requests, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list reschedule requests: %w", err)
	}
	return requests, total, nil
}

// UpdateStatus persists the review or apply outcome of a request. The update only succeeds while
// the stored status still equals from.
func (r *RescheduleRequestRepository) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, req *models.RescheduleRequest, from models.RescheduleStatus) error {
	query, args, err := psql.Update("reschedule_requests").
		Set("status", string(req.Status)).
		Set("reviewed_by", req.ReviewedBy).
		Set("note", req.Note).
		Set("reviewed_at", req.ReviewedAt).
		Set("applied_at", req.AppliedAt).
		Where(sq.Eq{"id": req.ID, "status": string(from)}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build reschedule update: %w", err)
	}
	res, err := r.exec(exec).ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update reschedule request: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
