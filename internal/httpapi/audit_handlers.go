package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"venuelink.org/internal/audit"
	"venuelink.org/internal/auth"
)

// auditEntryBody is the wire shape of one audit entry.
type auditEntryBody struct {
	ID            string            `json:"id"`
	OccurredAt    time.Time         `json:"occurredAt"`
	CorrelationID string            `json:"correlationId,omitempty"`
	SubjectID     string            `json:"subjectId,omitempty"`
	Action        string            `json:"action"`
	Outcome       string            `json:"outcome"`
	ResourceType  string            `json:"resourceType,omitempty"`
	ResourceID    string            `json:"resourceId,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

func auditBody(e audit.Entry) auditEntryBody {
	return auditEntryBody{
		ID:            e.ID,
		OccurredAt:    e.OccurredAt,
		CorrelationID: e.CorrelationID,
		SubjectID:     e.SubjectID,
		Action:        e.Action,
		Outcome:       e.Outcome,
		ResourceType:  e.ResourceType,
		ResourceID:    e.ResourceID,
		Metadata:      e.Metadata,
	}
}

// auditAccess is the permission question both audit endpoints ask.
// The entries span every venue, so only an unscoped reader qualifies.
var auditAccess = auth.AccessRequest{
	Resource: auth.ResourceAuditLog,
	Action:   auth.ActionRead,
}

const (
	auditLogsDefaultLimit = 100
	auditLogsMaxLimit     = 500
)

// handleAuditLogs returns the newest persisted audit entries.
func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireAccess(w, r, auditAccess); !ok {
		return
	}

	limit := auditLogsDefaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, r, http.StatusBadRequest, "bad_request", "limit must be a positive integer")
			return
		}
		limit = min(n, auditLogsMaxLimit)
	}

	entries, err := a.auditLog.RecentEntries(r.Context(), limit)
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	body := make([]auditEntryBody, 0, len(entries))
	for _, e := range entries {
		body = append(body, auditBody(e))
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": body})
}

// handleAuditStream tails the audit trail over server-sent events.
// Entries recorded after the subscription land as one data frame each.
func (a *API) handleAuditStream(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireAccess(w, r, auditAccess); !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "internal", "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	entries := a.events.Subscribe(r.Context())
	for entry := range entries {
		data, err := json.Marshal(auditBody(entry))
		if err != nil {
			continue
		}
		if _, err := w.Write([]byte("data: ")); err != nil {
			return
		}
		if _, err := w.Write(data); err != nil {
			return
		}
		if _, err := w.Write([]byte("\n\n")); err != nil {
			return
		}
		flusher.Flush()
	}
}
