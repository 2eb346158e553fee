package domain

import "time"

// EventTimeLayout is the wire format for enrollment event timestamps.
const EventTimeLayout = "2006-01-02 15:04:05"

// EnrollmentEvent is pushed to connected dashboard observers after a
// committed admission. It is ephemeral: serialized once, fanned out,
// discarded. Observers that connect later never see it.
type EnrollmentEvent struct {
	EnrollmentID   string `json:"enrollmentId"`
	StudentID      int64  `json:"studentId"`
	CourseID       int64  `json:"courseId"`
	CourseName     string `json:"courseName"`
	CourseCode     string `json:"courseCode"`
	SlotsRemaining int32  `json:"slotsRemainingAfterEnrollment"`
	Timestamp      string `json:"timestamp"`
}

// NewEnrollmentEvent builds the event for one admission, stamping the
// current time.
func NewEnrollmentEvent(e Enrollment, c Course, slotsRemaining int32) EnrollmentEvent {
	return EnrollmentEvent{
		EnrollmentID:   e.ID,
		StudentID:      e.StudentID,
		CourseID:       e.CourseID,
		CourseName:     c.Title,
		CourseCode:     c.CourseCode,
		SlotsRemaining: slotsRemaining,
		Timestamp:      time.Now().Format(EventTimeLayout),
	}
}
