package api

import (
	"context"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	enrollSpanName    = "enrollments.admit"
	enrollEventName   = "enrollment.request.metrics"
	enrollEventDomain = "aems"
	enrollRoute       = "/api/enrollments"
)

type enrollRequestMetrics struct {
	logger            *log.Logger
	span              trace.Span
	start             time.Time
	authDuration      time.Duration
	lookupDuration    time.Duration
	reserveDuration   time.Duration
	recordDuration    time.Duration
	broadcastDuration time.Duration
	courseID          int64
	studentID         int64
	errorStage        string
}

// newEnrollRequestMetrics opens a span for one admission request and returns
// the span-carrying context the rest of the request should run under.
func newEnrollRequestMetrics(ctx context.Context, logger *log.Logger) (*enrollRequestMetrics, context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	m := &enrollRequestMetrics{
		logger: logger,
		start:  time.Now(),
	}
	spanCtx, span := otel.Tracer("aems-api/api").Start(ctx, enrollSpanName,
		trace.WithSpanKind(trace.SpanKindServer))
	m.span = span
	return m, spanCtx
}

func (m *enrollRequestMetrics) ObserveAuth(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.authDuration = duration
}

func (m *enrollRequestMetrics) ObserveLookup(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.lookupDuration = duration
}

func (m *enrollRequestMetrics) ObserveReserve(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.reserveDuration = duration
}

func (m *enrollRequestMetrics) ObserveRecord(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.recordDuration = duration
}

func (m *enrollRequestMetrics) ObserveBroadcast(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.broadcastDuration = duration
}

func (m *enrollRequestMetrics) SetPair(studentID, courseID int64) {
	m.studentID = studentID
	m.courseID = courseID
}

func (m *enrollRequestMetrics) SetErrorStage(stage string) {
	if stage == "" {
		return
	}
	m.errorStage = stage
}

// Log closes the request span and emits the matching observability event. The
// span carries the stage timings as attributes and the error stage as its
// status description.
func (m *enrollRequestMetrics) Log(status int, admitted bool) {
	if m == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("http.route", enrollRoute),
		attribute.Int("http.status_code", status),
		attribute.Bool("aems.enrollments.admitted", admitted),
		attribute.Float64("aems.enrollments.total_ms", durationToMillis(time.Since(m.start))),
	}
	if m.studentID != 0 {
		attrs = append(attrs, attribute.Int64("aems.enrollments.student_id", m.studentID))
	}
	if m.courseID != 0 {
		attrs = append(attrs, attribute.Int64("aems.enrollments.course_id", m.courseID))
	}
	if m.authDuration > 0 {
		attrs = append(attrs, attribute.Float64("aems.enrollments.auth_ms", durationToMillis(m.authDuration)))
	}
	if m.lookupDuration > 0 {
		attrs = append(attrs, attribute.Float64("aems.enrollments.lookup_ms", durationToMillis(m.lookupDuration)))
	}
	if m.reserveDuration > 0 {
		attrs = append(attrs, attribute.Float64("aems.enrollments.reserve_ms", durationToMillis(m.reserveDuration)))
	}
	if m.recordDuration > 0 {
		attrs = append(attrs, attribute.Float64("aems.enrollments.record_ms", durationToMillis(m.recordDuration)))
	}
	if m.broadcastDuration > 0 {
		attrs = append(attrs, attribute.Float64("aems.enrollments.broadcast_ms", durationToMillis(m.broadcastDuration)))
	}
	if m.errorStage != "" {
		attrs = append(attrs, attribute.String("aems.enrollments.error_stage", m.errorStage))
	}

	severityText, severityNumber := severityForStatus(status)

	if m.span != nil {
		m.span.SetAttributes(attrs...)
		eventAttrs := make([]attribute.KeyValue, 0, len(attrs)+3)
		eventAttrs = append(eventAttrs,
			attribute.String("event.name", enrollEventName),
			attribute.String("event.domain", enrollEventDomain),
			attribute.String("severity_text", severityText),
		)
		eventAttrs = append(eventAttrs, attrs...)
		m.span.AddEvent("observability.event", trace.WithAttributes(eventAttrs...))
		if severityText == "ERROR" {
			desc := m.errorStage
			if desc == "" {
				desc = http.StatusText(status)
			}
			m.span.SetStatus(codes.Error, desc)
		} else {
			m.span.SetStatus(codes.Ok, "")
		}
		m.span.End()
	}

	if m.logger == nil {
		return
	}

	fields := log.Fields{
		"event.name":      enrollEventName,
		"event.domain":    enrollEventDomain,
		"severity_text":   severityText,
		"severity_number": severityNumber,
		"attributes":      attributeFields(attrs),
	}
	if m.span != nil {
		if sc := m.span.SpanContext(); sc.HasTraceID() {
			fields["trace_id"] = sc.TraceID().String()
		}
	}
	m.logger.WithFields(fields).Info("observability.event")
}

func severityForStatus(status int) (string, int) {
	switch {
	case status >= http.StatusInternalServerError:
		return "ERROR", 17
	case status >= http.StatusBadRequest:
		return "WARN", 13
	default:
		return "INFO", 9
	}
}

func attributeFields(attrs []attribute.KeyValue) map[string]any {
	out := make(map[string]any, len(attrs))
	for _, kv := range attrs {
		out[string(kv.Key)] = kv.Value.AsInterface()
	}
	return out
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
