package repository

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-timetable-api/internal/models"
)

// EnrollmentRepository reads course enrollment data.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// StudentsByCourse returns the enrolled student ids grouped per course.
func (r *EnrollmentRepository) StudentsByCourse(ctx context.Context, courseIDs []string) (models.EnrollmentSets, error) {
	if len(courseIDs) == 0 {
		return models.EnrollmentSets{}, nil
	}
	query, args, err := psql.Select("student_id", "course_id", "enrolled_at").
		From("enrollments").
		Where(sq.Eq{"course_id": courseIDs}).
		OrderBy("course_id", "student_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build enrollment query: %w", err)
	}
	var rows []models.Enrollment
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	return models.GroupEnrollments(rows), nil
}
