package repository

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-timetable-api/internal/models"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// CatalogRepository reads the reference data used for timetable generation.
type CatalogRepository struct {
	db *sqlx.DB
}

// NewCatalogRepository constructs the repository.
func NewCatalogRepository(db *sqlx.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// LoadCatalog reads every reference table. The filter narrows courses only; departments,
// teachers, rooms and calendar data are shared across departments.
func (r *CatalogRepository) LoadCatalog(ctx context.Context, filter models.CatalogFilter) (models.Catalog, error) {
	var catalog models.Catalog

	if err := r.selectAll(ctx, &catalog.Departments, psql.Select("id", "name", "code").From("departments").OrderBy("id")); err != nil {
		return models.Catalog{}, fmt.Errorf("load departments: %w", err)
	}

	courses := psql.Select("id", "code", "name", "department_id", "semester", "credits", "teacher_id",
		"prerequisites", "sessions", "room_type", "expected_enrollment").From("courses").OrderBy("id")
	if len(filter.DepartmentIDs) > 0 {
		courses = courses.Where(sq.Eq{"department_id": filter.DepartmentIDs})
	}
	if err := r.selectAll(ctx, &catalog.Courses, courses); err != nil {
		return models.Catalog{}, fmt.Errorf("load courses: %w", err)
	}

	teachers := psql.Select("id", "name", "email", "department_ids", "priority_days", "priority_time_start", "priority_time_end").
		From("teachers").OrderBy("id")
	if err := r.selectAll(ctx, &catalog.Teachers, teachers); err != nil {
		return models.Catalog{}, fmt.Errorf("load teachers: %w", err)
	}

	rooms := psql.Select("id", "name", "building", "capacity", "type", "equipment").From("classrooms").OrderBy("id")
	if err := r.selectAll(ctx, &catalog.Classrooms, rooms); err != nil {
		return models.Catalog{}, fmt.Errorf("load classrooms: %w", err)
	}

	slots := psql.Select("id", "start_time", "end_time", "label").From("time_slots").OrderBy("start_time", "id")
	if err := r.selectAll(ctx, &catalog.TimeSlots, slots); err != nil {
		return models.Catalog{}, fmt.Errorf("load time slots: %w", err)
	}

	breaks := psql.Select("id", "name", "day", "start_time", "end_time", "department_id").From("breaks").OrderBy("id")
	if err := r.selectAll(ctx, &catalog.Breaks, breaks); err != nil {
		return models.Catalog{}, fmt.Errorf("load breaks: %w", err)
	}

	holidays := psql.Select("id", "name", "date", "department_ids").From("holidays").OrderBy("date", "id")
	if err := r.selectAll(ctx, &catalog.Holidays, holidays); err != nil {
		return models.Catalog{}, fmt.Errorf("load holidays: %w", err)
	}

	return catalog, nil
}

func (r *CatalogRepository) selectAll(ctx context.Context, dest interface{}, builder sq.SelectBuilder) error {
	query, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	return r.db.SelectContext(ctx, dest, query, args...)
}
