package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"aems-api/domain"
)

type backend interface {
	FetchCourse(ctx context.Context, courseID int64) (domain.Course, error)
	TryReserveSeat(ctx context.Context, courseID int64) (int32, bool, error)
	IsEnrolled(ctx context.Context, studentID, courseID int64) (bool, error)
	InsertEnrollment(ctx context.Context, e domain.Enrollment) error
	EnrollmentsByStudent(ctx context.Context, studentID int64) ([]domain.Enrollment, error)
	EnqueueAdmission(ctx context.Context, ev domain.EnrollmentEvent) error
}

// Cache wraps a Storage instance with Redis-backed caching for course reads.
// Course status is the hot read during an enrollment rush; admissions evict
// the cached entry so a decremented count is never shadowed for longer than
// the TTL.
type Cache struct {
	*Storage
	base  backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching Storage wrapper using the provided Redis client
// and TTL.
func NewCache(base backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}

	c := &Cache{
		base:  base,
		redis: client,
		ttl:   ttl,
	}
	if s, ok := base.(*Storage); ok {
		c.Storage = s
	}
	return c
}

func (c *Cache) FetchCourse(ctx context.Context, courseID int64) (domain.Course, error) {
	if course, ok := c.loadCourseFromCache(ctx, courseID); ok {
		return course, nil
	}

	course, err := c.base.FetchCourse(ctx, courseID)
	if err != nil {
		return domain.Course{}, err
	}

	c.storeCourse(ctx, course)
	return course, nil
}

// TryReserveSeat delegates to the backing storage and evicts the cached
// course so subsequent status reads see the new count.
func (c *Cache) TryReserveSeat(ctx context.Context, courseID int64) (int32, bool, error) {
	remaining, ok, err := c.base.TryReserveSeat(ctx, courseID)
	if err == nil && ok {
		c.evict(ctx, courseID)
	}
	return remaining, ok, err
}

func (c *Cache) IsEnrolled(ctx context.Context, studentID, courseID int64) (bool, error) {
	return c.base.IsEnrolled(ctx, studentID, courseID)
}

func (c *Cache) InsertEnrollment(ctx context.Context, e domain.Enrollment) error {
	return c.base.InsertEnrollment(ctx, e)
}

func (c *Cache) EnrollmentsByStudent(ctx context.Context, studentID int64) ([]domain.Enrollment, error) {
	return c.base.EnrollmentsByStudent(ctx, studentID)
}

func (c *Cache) EnqueueAdmission(ctx context.Context, ev domain.EnrollmentEvent) error {
	return c.base.EnqueueAdmission(ctx, ev)
}

func (c *Cache) loadCourseFromCache(ctx context.Context, courseID int64) (domain.Course, bool) {
	if c.redis == nil {
		return domain.Course{}, false
	}
	data, err := c.redis.Get(ctx, courseCacheKey(courseID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, courseCacheKey(courseID)).Err()
		}
		return domain.Course{}, false
	}
	var course domain.Course
	if err := json.Unmarshal(data, &course); err != nil {
		_ = c.redis.Del(ctx, courseCacheKey(courseID)).Err()
		return domain.Course{}, false
	}
	return course, true
}

func (c *Cache) storeCourse(ctx context.Context, course domain.Course) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(course)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, courseCacheKey(course.ID), data, c.ttl).Err()
}

func (c *Cache) evict(ctx context.Context, courseID int64) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.Del(ctx, courseCacheKey(courseID)).Result()
}

func courseCacheKey(courseID int64) string {
	return "course:" + courseKey(courseID)
}
