package domain

import "errors"

var (
	// ErrCourseNotFound reports that a course id resolves to no record.
	ErrCourseNotFound = errors.New("course not found")
	// ErrDuplicateEnrollment reports that the (student, course) pair already
	// holds an enrollment. Raised by the storage layer's keyed insert, which
	// is the authoritative duplicate guard; the pre-admission check is only
	// advisory.
	ErrDuplicateEnrollment = errors.New("student already enrolled in course")
)
