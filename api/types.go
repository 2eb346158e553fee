package api

import (
	"context"

	"aems-api/domain"
)

// Storage abstracts persistence for handlers.
type Storage interface {
	FetchCourse(ctx context.Context, courseID int64) (domain.Course, error)
	TryReserveSeat(ctx context.Context, courseID int64) (int32, bool, error)
	IsEnrolled(ctx context.Context, studentID, courseID int64) (bool, error)
	InsertEnrollment(ctx context.Context, e domain.Enrollment) error
	EnrollmentsByStudent(ctx context.Context, studentID int64) ([]domain.Enrollment, error)
	EnqueueAdmission(ctx context.Context, ev domain.EnrollmentEvent) error
}

// Broadcaster fans enrollment events out to connected observers.
type Broadcaster interface {
	Broadcast(ev domain.EnrollmentEvent)
	Subscribe() chan []byte
	Unsubscribe(ch chan []byte)
	ClientCount() int
}

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}
