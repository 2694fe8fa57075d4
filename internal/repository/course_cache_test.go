package repository

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/academy-pricing/internal/domain/course"
)

type countingCourses struct {
	calls int
}

func (c *countingCourses) GetByID(_ context.Context, id string) (*course.Course, error) {
	c.calls++
	if id == "missing" {
		return nil, course.ErrNotFound
	}
	return &course.Course{ID: id, Price: decimal.NewFromInt(100)}, nil
}

func TestCachedCourses(t *testing.T) {
	next := &countingCourses{}
	cached := NewCachedCourses(next, time.Minute)
	ctx := context.Background()

	first, err := cached.GetByID(ctx, "course-x")
	require.NoError(t, err)
	first.Price = decimal.Zero

	second, err := cached.GetByID(ctx, "course-x")
	require.NoError(t, err)
	assert.Equal(t, 1, next.calls)
	assert.True(t, decimal.NewFromInt(100).Equal(second.Price), "callers must not mutate the cached copy")

	_, err = cached.GetByID(ctx, "missing")
	require.ErrorIs(t, err, course.ErrNotFound)
	_, err = cached.GetByID(ctx, "missing")
	require.ErrorIs(t, err, course.ErrNotFound)
	assert.Equal(t, 3, next.calls, "misses are not cached")
}
