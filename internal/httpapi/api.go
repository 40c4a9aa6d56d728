package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"venuelink.org/internal/audit"
	"venuelink.org/internal/auth"
	"venuelink.org/internal/obs"
	"venuelink.org/internal/ratelimit"
	"venuelink.org/internal/stream"
)

// ReadyProbe pings the credential store for /readyz.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// AuditLog reads back persisted audit entries for the admin surface.
type AuditLog interface {
	RecentEntries(ctx context.Context, limit int) ([]audit.Entry, error)
}

// Deps carries the collaborators the HTTP layer is built from.
// Sessions and Users are required; Limiter, Events and AuditLog may be
// nil to disable throttling and the audit surface (tests).
type Deps struct {
	Sessions *auth.Service
	Users    auth.UserStore
	Limiter  *ratelimit.Limiter
	Ready    ReadyProbe
	Events   *stream.Stream
	AuditLog AuditLog
	Version  string
}

// API is the HTTP layer over the auth core.
type API struct {
	mux      *http.ServeMux
	sessions *auth.Service
	users    auth.UserStore
	limiter  *ratelimit.Limiter
	ready    ReadyProbe
	events   *stream.Stream
	auditLog AuditLog
	version  string
}

// New wires the routes.
func New(d Deps) *API {
	a := &API{
		mux:      http.NewServeMux(),
		sessions: d.Sessions,
		users:    d.Users,
		limiter:  d.Limiter,
		ready:    d.Ready,
		events:   d.Events,
		auditLog: d.AuditLog,
		version:  d.Version,
	}

	a.mux.HandleFunc("POST /v1/auth/register", a.handleRegister)
	a.mux.HandleFunc("POST /v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("POST /v1/auth/refresh", a.handleRefresh)
	a.mux.HandleFunc("POST /v1/auth/logout", a.handleLogout)
	a.mux.HandleFunc("GET /v1/auth/me", a.handleMe)
	a.mux.HandleFunc("PATCH /v1/users/{id}/status", a.handleUserStatus)

	if a.auditLog != nil {
		a.mux.HandleFunc("GET /v1/audit/logs", a.handleAuditLogs)
	}
	if a.events != nil {
		a.mux.HandleFunc("GET /v1/audit/stream", a.handleAuditStream)
	}

	a.mux.HandleFunc("GET /healthz", a.Healthz)
	a.mux.HandleFunc("GET /readyz", a.Ready)
	a.mux.HandleFunc("GET /v1/info", a.Info)
	a.mux.Handle("GET /metrics", obs.Handler())

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler assembles the middleware chain. RequestID sits outermost so
// every later layer (including rate-limit rejections) carries the
// correlation id; the rate limiter runs before token verification per
// the request lifecycle.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = RateLimit(h, a.limiter)
	h = obs.Instrument(h)
	h = MaxBodyBytes(h, 1<<20)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return h
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "venuelink-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.ready.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "venuelink-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}
