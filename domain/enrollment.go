package domain

import "time"

// StatusEnrolled is the only status the admission path ever writes.
// Dropped/cancelled transitions belong to external collaborators.
const StatusEnrolled = "ENROLLED"

// Enrollment records one admitted (student, course) pair. Created exactly
// once per successful admission and never mutated afterwards.
type Enrollment struct {
	ID         string    `json:"enrollmentId"`
	StudentID  int64     `json:"studentId"`
	CourseID   int64     `json:"courseId"`
	Status     string    `json:"status"`
	Semester   string    `json:"semester"`
	EnrolledAt time.Time `json:"enrollmentDate"`
}
