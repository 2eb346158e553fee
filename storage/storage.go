package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"

	"aems-api/domain"
)

// coursePartition holds every course entity; courses are row-keyed by id.
const coursePartition = "course"

// Storage provides access to underlying persistence mechanisms.
type Storage struct {
	courseTable     *aztables.Client
	enrollmentTable *aztables.Client
	admissionQueue  *azqueue.QueueClient
}

// New creates a Storage instance from the given connection string.
func New(connStr, coursesTable, enrollmentsTable, admissionsQueue string) (*Storage, error) {
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	ct := svc.NewClient(coursesTable)
	et := svc.NewClient(enrollmentsTable)
	queueClientOptions := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	aq, err := azqueue.NewQueueClientFromConnectionString(connStr, admissionsQueue, &queueClientOptions)
	if err != nil {
		return nil, err
	}
	return &Storage{courseTable: ct, enrollmentTable: et, admissionQueue: aq}, nil
}

type courseEntity struct {
	aztables.Entity
	Title          string `json:"Title"`
	CourseCode     string `json:"CourseCode"`
	Semester       string `json:"Semester"`
	TotalCapacity  int32  `json:"TotalCapacity"`
	AvailableSlots int32  `json:"AvailableSlots"`
}

const edmInt64 = "Edm.Int64"

// Student and course ids are annotated Edm.Int64; unannotated JSON numbers
// would be typed Int32 or Double by the table service and lose fidelity for
// large ids.
type enrollmentEntity struct {
	aztables.Entity
	EnrollmentID  string `json:"EnrollmentId"`
	StudentID     int64  `json:"StudentId,string"`
	StudentIDType string `json:"StudentId@odata.type"`
	CourseID      int64  `json:"CourseId,string"`
	CourseIDType  string `json:"CourseId@odata.type"`
	Status        string `json:"Status"`
	Semester      string `json:"Semester"`
	EnrolledAt    string `json:"EnrolledAt"`
}

func courseKey(courseID int64) string {
	return strconv.FormatInt(courseID, 10)
}

func studentKey(studentID int64) string {
	return strconv.FormatInt(studentID, 10)
}

func decodeCourseEntity(data []byte) (domain.Course, error) {
	var ent courseEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.Course{}, err
	}
	id, err := strconv.ParseInt(ent.RowKey, 10, 64)
	if err != nil {
		return domain.Course{}, fmt.Errorf("bad course row key %q: %w", ent.RowKey, err)
	}
	return domain.Course{
		ID:             id,
		Title:          ent.Title,
		CourseCode:     ent.CourseCode,
		Semester:       ent.Semester,
		TotalCapacity:  ent.TotalCapacity,
		AvailableSlots: ent.AvailableSlots,
	}, nil
}

func decodeEnrollmentEntity(data []byte) (domain.Enrollment, error) {
	var ent enrollmentEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.Enrollment{}, err
	}
	enrolledAt, err := time.Parse(time.RFC3339, ent.EnrolledAt)
	if err != nil {
		return domain.Enrollment{}, fmt.Errorf("bad enrollment date %q: %w", ent.EnrolledAt, err)
	}
	return domain.Enrollment{
		ID:         ent.EnrollmentID,
		StudentID:  ent.StudentID,
		CourseID:   ent.CourseID,
		Status:     ent.Status,
		Semester:   ent.Semester,
		EnrolledAt: enrolledAt,
	}, nil
}

func isStatus(err error, code int) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == code
}

// FetchCourse retrieves a single course by id.
func (s *Storage) FetchCourse(ctx context.Context, courseID int64) (domain.Course, error) {
	resp, err := s.courseTable.GetEntity(ctx, coursePartition, courseKey(courseID), nil)
	if err != nil {
		if isStatus(err, 404) {
			return domain.Course{}, domain.ErrCourseNotFound
		}
		return domain.Course{}, err
	}
	return decodeCourseEntity(resp.Value)
}

// TryReserveSeat consumes one seat of the course if any remain. It reports
// the post-decrement count and whether a seat was taken. A missing course
// and a full course both report false without error.
//
// The decrement is an ETag-conditioned single-row replace: the replace only
// succeeds against the exact entity version that was read, so two racers can
// never both consume the same seat. A lost race surfaces as 412 and the loop
// re-reads; it terminates as soon as the seat count is observed at zero. No
// application-level lock is involved.
func (s *Storage) TryReserveSeat(ctx context.Context, courseID int64) (int32, bool, error) {
	for {
		resp, err := s.courseTable.GetEntity(ctx, coursePartition, courseKey(courseID), nil)
		if err != nil {
			if isStatus(err, 404) {
				return 0, false, nil
			}
			return 0, false, err
		}
		var ent courseEntity
		if err := json.Unmarshal(resp.Value, &ent); err != nil {
			return 0, false, err
		}
		if ent.AvailableSlots <= 0 {
			return 0, false, nil
		}
		ent.AvailableSlots--
		payload, err := json.Marshal(ent)
		if err != nil {
			return 0, false, err
		}
		etag := resp.ETag
		_, err = s.courseTable.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{
			IfMatch:    &etag,
			UpdateMode: aztables.UpdateModeReplace,
		})
		if err == nil {
			return ent.AvailableSlots, true, nil
		}
		if isStatus(err, 412) {
			// Another admission moved the counter first; re-read and retry.
			continue
		}
		if isStatus(err, 404) {
			return 0, false, nil
		}
		return 0, false, err
	}
}

// IsEnrolled reports whether the student already holds an enrollment for the
// course. Advisory only: the authoritative guard is the keyed insert in
// InsertEnrollment.
func (s *Storage) IsEnrolled(ctx context.Context, studentID, courseID int64) (bool, error) {
	_, err := s.enrollmentTable.GetEntity(ctx, courseKey(courseID), studentKey(studentID), nil)
	if err != nil {
		if isStatus(err, 404) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// InsertEnrollment persists a new enrollment row. The row is keyed on the
// (course, student) pair, so inserting an existing pair fails with
// ErrDuplicateEnrollment no matter how the callers raced.
func (s *Storage) InsertEnrollment(ctx context.Context, e domain.Enrollment) error {
	ent := enrollmentEntity{
		Entity: aztables.Entity{
			PartitionKey: courseKey(e.CourseID),
			RowKey:       studentKey(e.StudentID),
		},
		EnrollmentID:  e.ID,
		StudentID:     e.StudentID,
		StudentIDType: edmInt64,
		CourseID:      e.CourseID,
		CourseIDType:  edmInt64,
		Status:        e.Status,
		Semester:      e.Semester,
		EnrolledAt:    e.EnrolledAt.UTC().Format(time.RFC3339),
	}
	payload, err := json.Marshal(ent)
	if err != nil {
		return err
	}
	if _, err := s.enrollmentTable.AddEntity(ctx, payload, nil); err != nil {
		if isStatus(err, 409) {
			return domain.ErrDuplicateEnrollment
		}
		return err
	}
	return nil
}

// EnrollmentsByStudent lists every enrollment held by one student.
func (s *Storage) EnrollmentsByStudent(ctx context.Context, studentID int64) ([]domain.Enrollment, error) {
	// Int64 literals take the L suffix in table query syntax.
	filter := "StudentId eq " + studentKey(studentID) + "L"
	pager := s.enrollmentTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	enrollments := []domain.Enrollment{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.Entities {
			e, err := decodeEnrollmentEntity(raw)
			if err != nil {
				return nil, err
			}
			enrollments = append(enrollments, e)
		}
	}
	return enrollments, nil
}

// EnqueueAdmission posts a committed admission to the feed queue consumed by
// the external payment and reporting collaborators.
func (s *Storage) EnqueueAdmission(ctx context.Context, ev domain.EnrollmentEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = s.admissionQueue.EnqueueMessage(ctx, string(data), nil)
	return err
}
