package storage

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"aems-api/domain"
)

func TestDecodeCourseEntity(t *testing.T) {
	data := []byte(`{
		"PartitionKey": "course",
		"RowKey": "5",
		"Title": "Distributed Systems",
		"CourseCode": "CS-405",
		"Semester": "2026-FALL",
		"TotalCapacity": 30,
		"AvailableSlots": 3
	}`)
	course, err := decodeCourseEntity(data)
	if err != nil {
		t.Fatalf("decode course: %v", err)
	}
	if course.ID != 5 || course.CourseCode != "CS-405" {
		t.Fatalf("unexpected course: %+v", course)
	}
	if course.TotalCapacity != 30 || course.AvailableSlots != 3 {
		t.Fatalf("unexpected capacity fields: %+v", course)
	}
}

func TestDecodeCourseEntityBadRowKey(t *testing.T) {
	data := []byte(`{"PartitionKey": "course", "RowKey": "not-a-number"}`)
	if _, err := decodeCourseEntity(data); err == nil {
		t.Fatal("expected an error for a non-numeric row key")
	}
}

func TestDecodeEnrollmentEntity(t *testing.T) {
	data := []byte(`{
		"PartitionKey": "5",
		"RowKey": "10",
		"EnrollmentId": "e-1",
		"StudentId": "10",
		"StudentId@odata.type": "Edm.Int64",
		"CourseId": "5",
		"CourseId@odata.type": "Edm.Int64",
		"Status": "ENROLLED",
		"Semester": "2026-FALL",
		"EnrolledAt": "2026-08-31T10:00:00Z"
	}`)
	e, err := decodeEnrollmentEntity(data)
	if err != nil {
		t.Fatalf("decode enrollment: %v", err)
	}
	if e.ID != "e-1" || e.StudentID != 10 || e.CourseID != 5 {
		t.Fatalf("unexpected enrollment: %+v", e)
	}
	if e.Status != domain.StatusEnrolled {
		t.Fatalf("unexpected status: %q", e.Status)
	}
	want := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)
	if !e.EnrolledAt.Equal(want) {
		t.Fatalf("unexpected enrollment date: %v", e.EnrolledAt)
	}
}

func TestEnrollmentEntityInt64Annotations(t *testing.T) {
	const bigID = int64(9_000_000_000) // past the Int32 range
	ent := enrollmentEntity{
		Entity: aztables.Entity{
			PartitionKey: courseKey(5),
			RowKey:       studentKey(bigID),
		},
		EnrollmentID:  "e-1",
		StudentID:     bigID,
		StudentIDType: edmInt64,
		CourseID:      5,
		CourseIDType:  edmInt64,
		EnrolledAt:    "2026-08-31T10:00:00Z",
	}
	payload, err := json.Marshal(ent)
	if err != nil {
		t.Fatalf("marshal enrollment entity: %v", err)
	}
	body := string(payload)
	for _, want := range []string{
		`"StudentId":"9000000000"`,
		`"StudentId@odata.type":"Edm.Int64"`,
		`"CourseId":"5"`,
		`"CourseId@odata.type":"Edm.Int64"`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("payload missing %s: %s", want, body)
		}
	}

	decoded, err := decodeEnrollmentEntity(payload)
	if err != nil {
		t.Fatalf("decode round trip: %v", err)
	}
	if decoded.StudentID != bigID || decoded.CourseID != 5 {
		t.Fatalf("ids lost fidelity: %+v", decoded)
	}
}

func TestDecodeEnrollmentEntityBadDate(t *testing.T) {
	data := []byte(`{"PartitionKey": "5", "RowKey": "10", "EnrolledAt": "yesterday"}`)
	if _, err := decodeEnrollmentEntity(data); err == nil {
		t.Fatal("expected an error for a malformed date")
	}
}

func TestNewRejectsMalformedConnectionString(t *testing.T) {
	if _, err := New("not-a-connection-string", "courses", "enrollments", "admissions"); err == nil {
		t.Fatal("expected an error for a malformed connection string")
	}
}
