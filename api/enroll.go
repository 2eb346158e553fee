package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"aems-api/domain"
)

const enrollRequestMaxSize = 4 * 1024 // 4 KiB

// Rejection and confirmation messages are part of the response contract and
// must stay byte-stable; dashboards and clients match on them.
const (
	msgConfirmed       = "Enrollment confirmed successfully"
	msgMissingIDs      = "Student ID and Course ID are required"
	msgCourseNotFound  = "Course not found"
	msgAlreadyEnrolled = "Student is already enrolled in this course"
	msgCourseFull      = "Course is full. No available slots"
	msgInvalidBody     = "invalid request body"
	msgFailedPrefix    = "Enrollment failed: "
)

type enrollRequest struct {
	StudentID *int64 `json:"studentId"`
	CourseID  *int64 `json:"courseId"`
}

type enrollResponse struct {
	Success                       bool   `json:"success"`
	Message                       string `json:"message"`
	EnrollmentID                  string `json:"enrollmentId,omitempty"`
	StudentID                     *int64 `json:"studentId,omitempty"`
	CourseID                      *int64 `json:"courseId,omitempty"`
	AvailableSlotsAfterEnrollment *int32 `json:"availableSlotsAfterEnrollment,omitempty"`
}

// enrollStudent handles the admission use case. The sequence is fixed:
// validate, course lookup, advisory duplicate check, optimistic zero-slots
// fast path, conditional seat reservation, enrollment record, then
// best-effort fan-out. Only the reservation and the keyed insert carry
// correctness weight; everything before them is a cheap early exit.
func enrollStudent(store Storage, hub Broadcaster, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		metrics, spanCtx := newEnrollRequestMetrics(ctx, logger)
		if spanCtx != nil {
			c.SetRequest(c.Request().WithContext(spanCtx))
			ctx = spanCtx
		}

		authStart := time.Now()
		_, authErr := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			metrics.Log(http.StatusUnauthorized, false)
			return c.String(http.StatusUnauthorized, authErr.Error())
		}

		lr := io.LimitReader(c.Request().Body, enrollRequestMaxSize)
		dec := sonic.ConfigStd.NewDecoder(lr)
		dec.DisallowUnknownFields()

		var req enrollRequest
		if err := dec.Decode(&req); err != nil {
			return reject(c, metrics, http.StatusBadRequest, msgInvalidBody, "decode")
		}
		if req.StudentID == nil || req.CourseID == nil {
			return reject(c, metrics, http.StatusBadRequest, msgMissingIDs, "validate")
		}
		studentID, courseID := *req.StudentID, *req.CourseID
		metrics.SetPair(studentID, courseID)

		lookupStart := time.Now()
		course, err := store.FetchCourse(ctx, courseID)
		metrics.ObserveLookup(time.Since(lookupStart))
		if errors.Is(err, domain.ErrCourseNotFound) {
			return reject(c, metrics, http.StatusNotFound, msgCourseNotFound, "course_lookup")
		}
		if err != nil {
			c.Logger().Error(err)
			return reject(c, metrics, http.StatusInternalServerError, msgFailedPrefix+err.Error(), "course_lookup")
		}

		enrolled, err := store.IsEnrolled(ctx, studentID, courseID)
		if err != nil {
			c.Logger().Error(err)
			return reject(c, metrics, http.StatusInternalServerError, msgFailedPrefix+err.Error(), "duplicate_check")
		}
		if enrolled {
			return reject(c, metrics, http.StatusConflict, msgAlreadyEnrolled, "duplicate")
		}

		// Optimization only: the reservation below is the real guard.
		if course.Full() {
			return reject(c, metrics, http.StatusConflict, msgCourseFull, "precheck")
		}

		reserveStart := time.Now()
		remaining, reserved, err := store.TryReserveSeat(ctx, courseID)
		metrics.ObserveReserve(time.Since(reserveStart))
		if err != nil {
			c.Logger().Error(err)
			return reject(c, metrics, http.StatusInternalServerError, msgFailedPrefix+err.Error(), "reserve")
		}
		if !reserved {
			// Lost the race after the optimistic read.
			return reject(c, metrics, http.StatusConflict, msgCourseFull, "reserve_race")
		}

		enrollment := domain.Enrollment{
			ID:         uuid.NewString(),
			StudentID:  studentID,
			CourseID:   courseID,
			Status:     domain.StatusEnrolled,
			Semester:   course.Semester,
			EnrolledAt: time.Now(),
		}
		recordStart := time.Now()
		err = store.InsertEnrollment(ctx, enrollment)
		metrics.ObserveRecord(time.Since(recordStart))
		if errors.Is(err, domain.ErrDuplicateEnrollment) {
			// Two first-time requests for the same pair raced past the
			// advisory check; the keyed insert caught it but the seat was
			// already consumed. Reconciliation is external.
			logger.WithFields(log.Fields{
				"student_id": studentID,
				"course_id":  courseID,
			}).Error("duplicate enrollment detected after seat reservation")
			return reject(c, metrics, http.StatusConflict, msgAlreadyEnrolled, "record_duplicate")
		}
		if err != nil {
			c.Logger().Error(err)
			return reject(c, metrics, http.StatusInternalServerError, msgFailedPrefix+err.Error(), "record")
		}

		// The admission is committed; nothing past this point may fail it.
		event := domain.NewEnrollmentEvent(enrollment, course, remaining)
		broadcastStart := time.Now()
		if err := store.EnqueueAdmission(ctx, event); err != nil {
			logger.Errorf("admission feed enqueue failed: %v", err)
		}
		hub.Broadcast(event)
		metrics.ObserveBroadcast(time.Since(broadcastStart))

		metrics.Log(http.StatusOK, true)
		return c.JSON(http.StatusOK, enrollResponse{
			Success:                       true,
			Message:                       msgConfirmed,
			EnrollmentID:                  enrollment.ID,
			StudentID:                     &studentID,
			CourseID:                      &courseID,
			AvailableSlotsAfterEnrollment: &remaining,
		})
	}
}

func reject(c echo.Context, metrics *enrollRequestMetrics, status int, message, stage string) error {
	metrics.SetErrorStage(stage)
	metrics.Log(status, false)
	return c.JSON(status, enrollResponse{Success: false, Message: message})
}
