package storage

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"aems-api/domain"
)

type stubBackend struct {
	fetchCourseFn    func(ctx context.Context, courseID int64) (domain.Course, error)
	tryReserveSeatFn func(ctx context.Context, courseID int64) (int32, bool, error)
}

func (s *stubBackend) FetchCourse(ctx context.Context, courseID int64) (domain.Course, error) {
	if s.fetchCourseFn == nil {
		return domain.Course{}, errors.New("unexpected FetchCourse call")
	}
	return s.fetchCourseFn(ctx, courseID)
}

func (s *stubBackend) TryReserveSeat(ctx context.Context, courseID int64) (int32, bool, error) {
	if s.tryReserveSeatFn == nil {
		return 0, false, errors.New("unexpected TryReserveSeat call")
	}
	return s.tryReserveSeatFn(ctx, courseID)
}

func (s *stubBackend) IsEnrolled(ctx context.Context, studentID, courseID int64) (bool, error) {
	return false, errors.New("unexpected IsEnrolled call")
}

func (s *stubBackend) InsertEnrollment(ctx context.Context, e domain.Enrollment) error {
	return errors.New("unexpected InsertEnrollment call")
}

func (s *stubBackend) EnrollmentsByStudent(ctx context.Context, studentID int64) ([]domain.Enrollment, error) {
	return nil, errors.New("unexpected EnrollmentsByStudent call")
}

func (s *stubBackend) EnqueueAdmission(ctx context.Context, ev domain.EnrollmentEvent) error {
	return errors.New("unexpected EnqueueAdmission call")
}

func testRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func sampleCourse() domain.Course {
	return domain.Course{
		ID:             5,
		Title:          "Distributed Systems",
		CourseCode:     "CS-405",
		Semester:       "2026-FALL",
		TotalCapacity:  30,
		AvailableSlots: 3,
	}
}

func TestCacheFetchCourseMissThenHit(t *testing.T) {
	client := testRedis(t)
	ctx := context.Background()
	expected := sampleCourse()

	var calls int
	cache := NewCache(&stubBackend{
		fetchCourseFn: func(ctx context.Context, courseID int64) (domain.Course, error) {
			calls++
			if courseID != expected.ID {
				t.Fatalf("unexpected course id: %d", courseID)
			}
			return expected, nil
		},
	}, client, time.Minute)

	course, err := cache.FetchCourse(ctx, expected.ID)
	if err != nil {
		t.Fatalf("fetch course: %v", err)
	}
	if !reflect.DeepEqual(course, expected) {
		t.Fatalf("unexpected course: %#v", course)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call to backend, got %d", calls)
	}

	// Second read must come from the cache.
	course, err = cache.FetchCourse(ctx, expected.ID)
	if err != nil {
		t.Fatalf("fetch course: %v", err)
	}
	if !reflect.DeepEqual(course, expected) {
		t.Fatalf("unexpected cached course: %#v", course)
	}
	if calls != 1 {
		t.Fatalf("expected cached read, backend calls=%d", calls)
	}
}

func TestCacheFetchCourseBackendError(t *testing.T) {
	client := testRedis(t)
	wantErr := errors.New("storage down")
	cache := NewCache(&stubBackend{
		fetchCourseFn: func(ctx context.Context, courseID int64) (domain.Course, error) {
			return domain.Course{}, wantErr
		},
	}, client, time.Minute)

	if _, err := cache.FetchCourse(context.Background(), 5); !errors.Is(err, wantErr) {
		t.Fatalf("expected backend error, got %v", err)
	}
}

func TestCacheTryReserveSeatEvicts(t *testing.T) {
	client := testRedis(t)
	ctx := context.Background()
	course := sampleCourse()

	var fetches int
	cache := NewCache(&stubBackend{
		fetchCourseFn: func(ctx context.Context, courseID int64) (domain.Course, error) {
			fetches++
			return course, nil
		},
		tryReserveSeatFn: func(ctx context.Context, courseID int64) (int32, bool, error) {
			course.AvailableSlots--
			return course.AvailableSlots, true, nil
		},
	}, client, time.Minute)

	if _, err := cache.FetchCourse(ctx, course.ID); err != nil {
		t.Fatalf("prime cache: %v", err)
	}
	if fetches != 1 {
		t.Fatalf("expected 1 fetch, got %d", fetches)
	}

	remaining, ok, err := cache.TryReserveSeat(ctx, course.ID)
	if err != nil || !ok {
		t.Fatalf("reserve seat: ok=%v err=%v", ok, err)
	}
	if remaining != 2 {
		t.Fatalf("expected 2 remaining, got %d", remaining)
	}

	// The admission must have evicted the cached entry.
	got, err := cache.FetchCourse(ctx, course.ID)
	if err != nil {
		t.Fatalf("fetch course: %v", err)
	}
	if fetches != 2 {
		t.Fatalf("expected eviction then refetch, fetches=%d", fetches)
	}
	if got.AvailableSlots != 2 {
		t.Fatalf("expected refreshed slot count, got %d", got.AvailableSlots)
	}
}

func TestCacheFailedReservationKeepsCache(t *testing.T) {
	client := testRedis(t)
	ctx := context.Background()
	course := sampleCourse()

	var fetches int
	cache := NewCache(&stubBackend{
		fetchCourseFn: func(ctx context.Context, courseID int64) (domain.Course, error) {
			fetches++
			return course, nil
		},
		tryReserveSeatFn: func(ctx context.Context, courseID int64) (int32, bool, error) {
			return 0, false, nil
		},
	}, client, time.Minute)

	if _, err := cache.FetchCourse(ctx, course.ID); err != nil {
		t.Fatalf("prime cache: %v", err)
	}
	if _, ok, err := cache.TryReserveSeat(ctx, course.ID); ok || err != nil {
		t.Fatalf("expected failed reservation, ok=%v err=%v", ok, err)
	}
	if _, err := cache.FetchCourse(ctx, course.ID); err != nil {
		t.Fatalf("fetch course: %v", err)
	}
	if fetches != 1 {
		t.Fatalf("failed reservation must not evict, fetches=%d", fetches)
	}
}

func TestCacheNilRedisPassesThrough(t *testing.T) {
	ctx := context.Background()
	expected := sampleCourse()

	var calls int
	cache := NewCache(&stubBackend{
		fetchCourseFn: func(ctx context.Context, courseID int64) (domain.Course, error) {
			calls++
			return expected, nil
		},
	}, nil, time.Minute)

	for i := 0; i < 2; i++ {
		if _, err := cache.FetchCourse(ctx, expected.ID); err != nil {
			t.Fatalf("fetch course: %v", err)
		}
	}
	if calls != 2 {
		t.Fatalf("expected passthrough on nil redis, calls=%d", calls)
	}
}
