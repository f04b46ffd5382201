package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-timetable-api/internal/models"
)

var scheduleEntryColumns = []string{
	"id", "course_id", "teacher_id", "classroom_id", "department_id", "day", "time_slot_id",
	"start_time", "end_time", "session_kind", "session_index", "is_rescheduled",
	"original_day", "original_time_slot_id",
}

type scheduleEntryRow struct {
	ID                 string             `db:"id"`
	CourseID           string             `db:"course_id"`
	TeacherID          string             `db:"teacher_id"`
	ClassroomID        string             `db:"classroom_id"`
	DepartmentID       string             `db:"department_id"`
	Day                models.Weekday     `db:"day"`
	TimeSlotID         string             `db:"time_slot_id"`
	Start              models.ClockTime   `db:"start_time"`
	End                models.ClockTime   `db:"end_time"`
	SessionKind        models.SessionKind `db:"session_kind"`
	SessionIndex       int                `db:"session_index"`
	IsRescheduled      bool               `db:"is_rescheduled"`
	OriginalDay        sql.NullString     `db:"original_day"`
	OriginalTimeSlotID sql.NullString     `db:"original_time_slot_id"`
}

func newScheduleEntryRow(entry models.ScheduleEntry) scheduleEntryRow {
	row := scheduleEntryRow{
		ID:           entry.ID,
		CourseID:     entry.CourseID,
		TeacherID:    entry.TeacherID,
		ClassroomID:  entry.ClassroomID,
		DepartmentID: entry.DepartmentID,
		Day:          entry.Day,
		TimeSlotID:   entry.TimeSlotID,
		Start:        entry.Start,
		End:          entry.End,
		SessionKind:  entry.SessionKind,
		SessionIndex: entry.SessionIndex,
	}
	if moved, ok := entry.Origin.(models.Rescheduled); ok {
		row.IsRescheduled = true
		row.OriginalDay = sql.NullString{String: string(moved.OriginalDay), Valid: true}
		row.OriginalTimeSlotID = sql.NullString{String: moved.OriginalTimeSlotID, Valid: true}
	}
	return row
}

func (row scheduleEntryRow) model() models.ScheduleEntry {
	entry := models.ScheduleEntry{
		ID:           row.ID,
		CourseID:     row.CourseID,
		TeacherID:    row.TeacherID,
		ClassroomID:  row.ClassroomID,
		DepartmentID: row.DepartmentID,
		Day:          row.Day,
		TimeSlotID:   row.TimeSlotID,
		Start:        row.Start,
		End:          row.End,
		SessionKind:  row.SessionKind,
		SessionIndex: row.SessionIndex,
		Origin:       models.Fresh{},
	}
	if row.IsRescheduled {
		entry.Origin = models.Rescheduled{
			OriginalDay:        models.Weekday(row.OriginalDay.String),
			OriginalTimeSlotID: row.OriginalTimeSlotID.String,
		}
	}
	return entry
}

// ScheduleEntryRepository persists committed timetable entries.
type ScheduleEntryRepository struct {
	db *sqlx.DB
}

// NewScheduleEntryRepository constructs the repository.
func NewScheduleEntryRepository(db *sqlx.DB) *ScheduleEntryRepository {
	return &ScheduleEntryRepository{db: db}
}

func (r *ScheduleEntryRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// List returns committed entries matching the filter.
func (r *ScheduleEntryRepository) List(ctx context.Context, filter models.ScheduleFilter) (models.Schedule, error) {
	builder := psql.Select(scheduleEntryColumns...).From("schedule_entries")
	if filter.DepartmentID != "" {
		builder = builder.Where(sq.Eq{"department_id": filter.DepartmentID})
	}
	if filter.TeacherID != "" {
		builder = builder.Where(sq.Eq{"teacher_id": filter.TeacherID})
	}
	if filter.ClassroomID != "" {
		builder = builder.Where(sq.Eq{"classroom_id": filter.ClassroomID})
	}
	if filter.Day != "" {
		builder = builder.Where(sq.Eq{"day": string(filter.Day)})
	}
	query, args, err := builder.OrderBy("id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build schedule query: %w", err)
	}

	var rows []scheduleEntryRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list schedule entries: %w", err)
	}
	schedule := make(models.Schedule, 0, len(rows))
	for _, row := range rows {
		schedule = append(schedule, row.model())
	}
	schedule.Sort()
	return schedule, nil
}

// FindByID fetches a single committed entry.
func (r *ScheduleEntryRepository) FindByID(ctx context.Context, id string) (*models.ScheduleEntry, error) {
	query, args, err := psql.Select(scheduleEntryColumns...).From("schedule_entries").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build schedule entry query: %w", err)
	}
	var row scheduleEntryRow
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		return nil, err
	}
	entry := row.model()
	return &entry, nil
}

// ReplaceDepartments deletes the committed entries of the given departments and inserts the replacement set.
func (r *ScheduleEntryRepository) ReplaceDepartments(ctx context.Context, exec sqlx.ExtContext, departmentIDs []string, entries models.Schedule) error {
	target := r.exec(exec)
	if len(departmentIDs) > 0 {
		query, args, err := psql.Delete("schedule_entries").Where(sq.Eq{"department_id": departmentIDs}).ToSql()
		if err != nil {
			return fmt.Errorf("build delete query: %w", err)
		}
		if _, err := target.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("delete schedule entries: %w", err)
		}
	}
	if len(entries) == 0 {
		return nil
	}

	now := time.Now().UTC()
	insert := psql.Insert("schedule_entries").Columns(append(scheduleEntryColumns, "created_at", "updated_at")...)
	for _, entry := range entries {
		row := newScheduleEntryRow(entry)
		insert = insert.Values(row.ID, row.CourseID, row.TeacherID, row.ClassroomID, row.DepartmentID, string(row.Day),
			row.TimeSlotID, row.Start, row.End, string(row.SessionKind), row.SessionIndex, row.IsRescheduled,
			row.OriginalDay, row.OriginalTimeSlotID, now, now)
	}
	query, args, err := insert.ToSql()
	if err != nil {
		return fmt.Errorf("build insert query: %w", err)
	}
	if _, err := target.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert schedule entries: %w", err)
	}
	return nil
}

// UpdatePlacement persists a moved entry.
func (r *ScheduleEntryRepository) UpdatePlacement(ctx context.Context, exec sqlx.ExtContext, entry models.ScheduleEntry) error {
	row := newScheduleEntryRow(entry)
	query, args, err := psql.Update("schedule_entries").
		Set("day", string(row.Day)).
		Set("time_slot_id", row.TimeSlotID).
		Set("start_time", row.Start).
		Set("end_time", row.End).
		Set("is_rescheduled", row.IsRescheduled).
		Set("original_day", row.OriginalDay).
		Set("original_time_slot_id", row.OriginalTimeSlotID).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": row.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update query: %w", err)
	}
	res, err := r.exec(exec).ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update schedule entry: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
