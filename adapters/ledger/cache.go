package ledger

import (
	"context"
	"strconv"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/layer-3/certify/core"
	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"
)

const (
	// Default ristretto configuration for course metadata
	DefaultCourseCounters = 1e5
	DefaultCourseEntries  = 1e4
	DefaultBufferItems    = 64
)

// CourseCache keeps course metadata read from the ledger. Only existing
// courses are cached: existence never reverts, while name, image and
// duration may be edited by an admin, so entries expire after ttl.
type CourseCache struct {
	cache *ristretto.Cache[uint64, core.Course]
	sfg   singleflight.Group
	ttl   time.Duration
}

// NewCourseCache creates a cache holding up to maxEntries courses.
func NewCourseCache(maxEntries int64, ttl time.Duration) (*CourseCache, error) {
	if maxEntries <= 0 {
		maxEntries = DefaultCourseEntries
	}
	c, err := ristretto.NewCache(&ristretto.Config[uint64, core.Course]{
		NumCounters: DefaultCourseCounters,
		MaxCost:     maxEntries,
		BufferItems: DefaultBufferItems,
		Cost: func(core.Course) int64 {
			return 1
		},
	})
	if err != nil {
		return nil, err
	}
	return &CourseCache{cache: c, ttl: ttl}, nil
}

// Get returns a cached course.
func (c *CourseCache) Get(tokenID uint64) (core.Course, bool) {
	return c.cache.Get(tokenID)
}

// Add caches an existing course. Missing courses are ignored.
func (c *CourseCache) Add(course core.Course) {
	if !course.Exists {
		return
	}
	c.cache.SetWithTTL(course.TokenID, course, 0, c.ttl)
	c.cache.Wait()
}

// GetOrLoad returns the cached course or loads it once for concurrent
// callers. The shared load runs detached from any one caller's
// cancellation; each caller still stops waiting when its own ctx is done.
func (c *CourseCache) GetOrLoad(ctx context.Context, tokenID uint64, loader func(context.Context) (core.Course, error)) (core.Course, error) {
	if course, ok := c.Get(tokenID); ok {
		return course, nil
	}

	loadCtx := context.WithoutCancel(ctx)
	ch := c.sfg.DoChan(strconv.FormatUint(tokenID, 10), func() (interface{}, error) {
		course, err := loader(loadCtx)
		if err != nil {
			return nil, err
		}
		c.Add(course)
		return course, nil
	})

	select {
	case <-ctx.Done():
		return core.Course{}, errors.Wrapf(core.ErrLedgerUnavailable, "getCourse: %v", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return core.Course{}, res.Err
		}
		return res.Val.(core.Course), nil
	}
}

// Close stops the cache's background goroutines.
func (c *CourseCache) Close() {
	c.cache.Close()
}
