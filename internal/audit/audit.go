// Package audit provides the append-only audit trail and the
// correlation-id plumbing that ties every log entry produced while
// servicing a request back to that request.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"venuelink.org/internal/obs"
)

type ctxKey string

const correlationIDKey ctxKey = "audit_correlation_id"

// WithCorrelationID attaches the request correlation id to the context.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	id = strings.TrimSpace(id)
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationIDKey, id)
}

// CorrelationID extracts the correlation id from the context, if any.
func CorrelationID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(correlationIDKey).(string); ok {
		return v
	}
	return ""
}

// Entry is one append-only audit record. Entries are written once and
// never mutated; retention is an operational concern outside the app.
type Entry struct {
	ID            string
	OccurredAt    time.Time
	CorrelationID string
	SubjectID     string // empty for anonymous or failed auth
	Action        string
	Outcome       string // success, denied, error
	ResourceType  string
	ResourceID    string
	Metadata      map[string]string
}

// Outcome values.
const (
	OutcomeSuccess = "success"
	OutcomeDenied  = "denied"
	OutcomeError   = "error"
)

// Sink persists audit entries durably.
type Sink interface {
	Append(ctx context.Context, entry *Entry) error
}

// Tee fans each entry out to several sinks. Every sink sees the entry
// even when an earlier one fails; the first error is returned.
func Tee(sinks ...Sink) Sink { return teeSink(sinks) }

type teeSink []Sink

func (t teeSink) Append(ctx context.Context, entry *Entry) error {
	var first error
	for _, s := range t {
		if s == nil {
			continue
		}
		if err := s.Append(ctx, entry); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Recorder writes each entry to the durable sink and mirrors it to the
// structured log stream. Recording never fails the request path: sink
// errors are logged and swallowed.
type Recorder struct {
	sink Sink
	now  func() time.Time
}

// NewRecorder builds a Recorder. A nil sink is allowed; entries then go
// to the log stream only.
func NewRecorder(sink Sink) *Recorder {
	return &Recorder{sink: sink, now: time.Now}
}

// Record stamps the entry with time and correlation id and emits it.
func (r *Recorder) Record(ctx context.Context, entry Entry) {
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = r.now().UTC()
	}
	if entry.CorrelationID == "" {
		entry.CorrelationID = CorrelationID(ctx)
	}

	fields := map[string]any{
		"outcome":  entry.Outcome,
		"resource": entry.ResourceType,
	}
	if entry.SubjectID != "" {
		fields["subject_id"] = entry.SubjectID
	}
	if entry.ResourceID != "" {
		fields["resource_id"] = entry.ResourceID
	}
	for k, v := range entry.Metadata {
		fields[k] = v
	}
	_ = LogEvent(ctx, entry.Action, fields)

	if r.sink == nil {
		return
	}
	if err := r.sink.Append(ctx, &entry); err != nil {
		_ = LogEvent(ctx, "audit.append_failed", map[string]any{
			"action": entry.Action,
			"error":  err.Error(),
		})
	}
}

// LogEvent writes a structured audit log line enriched with the
// request correlation id.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	entry := map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
		"type":  "audit",
		"event": event,
	}
	if cid := CorrelationID(ctx); cid != "" {
		entry["correlation_id"] = cid
	}
	if len(fields) > 0 {
		copyFields := make(map[string]any, len(fields))
		for k, v := range fields {
			copyFields[k] = v
		}
		entry["fields"] = copyFields
	} else {
		entry["fields"] = map[string]any{}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	obs.Logger().Println(string(data))
	return nil
}
