package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"aems-api/domain"
)

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, store Storage, hub Broadcaster, auth Authenticator, logger *log.Logger) {
	e.POST("/api/enrollments", enrollStudent(store, hub, auth, logger))
	e.GET("/api/enrollments/stream", streamEnrollments(hub, auth))
	e.GET("/api/enrollments/stream/clients", streamClients(hub))
	e.GET("/api/courses/:id/status", courseStatus(store))
	e.GET("/api/students/:id/enrollments", studentEnrollments(store, auth))
	e.GET("/healthz", healthz())
}

type courseStatusResponse struct {
	CourseID         int64  `json:"courseId"`
	CourseCode       string `json:"courseCode"`
	Title            string `json:"title"`
	Semester         string `json:"semester"`
	TotalCapacity    int32  `json:"totalCapacity"`
	EnrolledStudents int32  `json:"enrolledStudents"`
	SlotsRemaining   int32  `json:"slotsRemaining"`
}

type enrollmentsResponse struct {
	Enrollments []domain.Enrollment `json:"enrollments"`
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

// courseStatus serves the dashboard's seat counter view. Reads go through
// the course cache, so a just-admitted seat may lag by at most one eviction.
func courseStatus(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		courseID, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			return c.String(http.StatusBadRequest, "invalid course id")
		}
		course, err := store.FetchCourse(ctx, courseID)
		if errors.Is(err, domain.ErrCourseNotFound) {
			return c.String(http.StatusNotFound, msgCourseNotFound)
		}
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, courseStatusResponse{
			CourseID:         course.ID,
			CourseCode:       course.CourseCode,
			Title:            course.Title,
			Semester:         course.Semester,
			TotalCapacity:    course.TotalCapacity,
			EnrolledStudents: course.TotalCapacity - course.AvailableSlots,
			SlotsRemaining:   course.AvailableSlots,
		})
	}
}

func studentEnrollments(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		if _, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization)); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		studentID, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			return c.String(http.StatusBadRequest, "invalid student id")
		}
		enrollments, err := store.EnrollmentsByStudent(ctx, studentID)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, enrollmentsResponse{Enrollments: enrollments})
	}
}
