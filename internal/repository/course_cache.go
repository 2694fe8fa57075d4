package repository

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/xenking/academy-pricing/internal/domain/course"
)

var _ course.Repository = (*CachedCourses)(nil)

// CachedCourses keeps course lookups in memory for a short TTL. Misses are
// not cached so newly created courses become visible immediately.
type CachedCourses struct {
	next  course.Repository
	cache *cache.Cache
}

// NewCachedCourses wraps next with a TTL cache. A non-positive ttl disables
// caching.
func NewCachedCourses(next course.Repository, ttl time.Duration) *CachedCourses {
	c := &CachedCourses{next: next}
	if ttl > 0 {
		c.cache = cache.New(ttl, 2*ttl)
	}
	return c
}

// GetByID returns the cached course or loads it from next.
func (c *CachedCourses) GetByID(ctx context.Context, id string) (*course.Course, error) {
	if c.cache == nil {
		return c.next.GetByID(ctx, id)
	}
	if v, ok := c.cache.Get(id); ok {
		crs := v.(course.Course)
		return &crs, nil
	}
	crs, err := c.next.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.cache.SetDefault(id, *crs)
	return crs, nil
}
