package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/academy-pricing/internal/domain/course"
)

const (
	getCourseByIDSQL = `SELECT id, slug, title, price, commission_rate FROM courses WHERE id = $1`

	upsertCourseSQL = `INSERT INTO courses (id, slug, title, price, commission_rate)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET slug = EXCLUDED.slug, title = EXCLUDED.title,
			price = EXCLUDED.price, commission_rate = EXCLUDED.commission_rate`
)

var _ course.Repository = (*CourseRepository)(nil)

// CourseRepository implements course.Repository backed by PostgreSQL.
type CourseRepository struct {
	pool *pgxpool.Pool
}

// NewCourseRepository returns a CourseRepository that uses the given pool.
func NewCourseRepository(pool *pgxpool.Pool) *CourseRepository {
	return &CourseRepository{pool: pool}
}

// GetByID returns a course by its identifier or course.ErrNotFound.
func (r *CourseRepository) GetByID(ctx context.Context, id string) (*course.Course, error) {
	rows, err := r.pool.Query(ctx, getCourseByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting course %q: %w", id, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCourse)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, course.ErrNotFound
		}
		return nil, fmt.Errorf("getting course %q: %w", id, err)
	}
	return &c, nil
}

// Upsert inserts or replaces a course. Used by seeding.
func (r *CourseRepository) Upsert(ctx context.Context, c course.Course) error {
	_, err := r.pool.Exec(ctx, upsertCourseSQL, c.ID, c.Slug, c.Title, c.Price, c.CommissionRate)
	if err != nil {
		return fmt.Errorf("upserting course %q: %w", c.ID, err)
	}
	return nil
}

func scanCourse(row pgx.CollectableRow) (course.Course, error) {
	var c course.Course
	err := row.Scan(&c.ID, &c.Slug, &c.Title, &c.Price, &c.CommissionRate)
	return c, err
}
