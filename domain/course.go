package domain

// Course is a capacity-limited offering. It is owned by the external
// course-management collaborator; the admission path only reads it and
// consumes seats through the storage layer's conditional decrement.
type Course struct {
	ID             int64  `json:"courseId"`
	Title          string `json:"title"`
	CourseCode     string `json:"courseCode"`
	Semester       string `json:"semester"`
	TotalCapacity  int32  `json:"totalCapacity"`
	AvailableSlots int32  `json:"availableSlots"`
}

// Full reports whether the course has no seats left. This is the cheap
// fast-path check only; the authoritative guard is the conditional
// decrement in storage.
func (c Course) Full() bool {
	return c.AvailableSlots <= 0
}
