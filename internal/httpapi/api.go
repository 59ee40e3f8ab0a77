// Package httpapi is the HTTP layer. It wires the login gate, the case
// service and the assignment balancer behind a ServeMux and the shared
// middleware chain.
package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"memorio.org/internal/assign"
	"memorio.org/internal/audit"
	"memorio.org/internal/auth"
	"memorio.org/internal/cases"
	"memorio.org/internal/login"
	"memorio.org/internal/notify"
	"memorio.org/internal/obs"
	"memorio.org/internal/stream"
)

// ReadyProbe checks readiness (for example, a DB ping).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// UserDirectory covers the account operations the invite endpoint needs.
type UserDirectory interface {
	FindByEmail(ctx context.Context, email string) (*auth.User, error)
	CreateUser(ctx context.Context, u *auth.User) error
}

// Deps are the domain services behind the HTTP surface.
type Deps struct {
	Gate     *login.Gate
	Balancer *assign.Balancer
	Cases    *cases.Service
	Sessions *auth.Sessions
	Users    UserDirectory
	Notifier notify.Sink
	Audit    *audit.Log
	Feed     *stream.Feed
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string

	gate     *login.Gate
	balancer *assign.Balancer
	cases    *cases.Service
	sessions *auth.Sessions
	users    UserDirectory
	notifier notify.Sink
	auditLog *audit.Log
	feed     *stream.Feed

	rateBurst    int
	ratePerSec   float64
	maxBodyBytes int64
}

func New(rp ReadyProbe, version string, deps Deps) *API {
	a := &API{
		mux:          http.NewServeMux(),
		readyProbe:   rp,
		version:      version,
		gate:         deps.Gate,
		balancer:     deps.Balancer,
		cases:        deps.Cases,
		sessions:     deps.Sessions,
		users:        deps.Users,
		notifier:     deps.Notifier,
		auditLog:     deps.Audit,
		feed:         deps.Feed,
		rateBurst:    100,
		ratePerSec:   50,
		maxBodyBytes: 1 << 20,
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/login", a.handleLogin)
	a.mux.HandleFunc("/v1/assign-worker", a.handleAssignWorker)
	a.mux.HandleFunc("/v1/cases", a.handleCasesCollection)
	a.mux.HandleFunc("/v1/cases/", a.handleCaseResource)
	a.mux.HandleFunc("/v1/invites/", a.handleInvite)
	a.mux.HandleFunc("/v1/events/stream", a.Stream)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// SetRateLimit overrides the default per-IP limit, typically from config.
func (a *API) SetRateLimit(burst int, perSec float64) {
	a.rateBurst = burst
	a.ratePerSec = perSec
}

// SetMaxBodyBytes overrides the default request body cap, typically from
// config. The same limit bounds the body middleware and JSON decoding.
func (a *API) SetMaxBodyBytes(n int64) {
	if n > 0 {
		a.maxBodyBytes = n
	}
}

// Handler assembles the middleware chain around the mux.
func (a *API) Handler() http.Handler {
	h := a.withAuth(a.mux)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = MaxBodyBytes(h, a.maxBodyBytes)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "memorio-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
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
		"name":    "memorio-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}
