package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/gobwas/glob"

	"devvault.dev/internal/auth"
	"devvault.dev/internal/obs"
	"devvault.dev/internal/tracker"
)

const serviceName = "devvault-api"

// DefaultPublicPaths are reachable without a bearer token.
var DefaultPublicPaths = []string{
	"/auth/register",
	"/auth/login",
	"/healthz",
	"/readyz",
	"/metrics",
}

// Pinger is satisfied by the stores.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadyProbe checks the backing store; a zero probe is always ready.
type ReadyProbe struct {
	Store Pinger
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.Store == nil {
		return nil
	}
	return rp.Store.Ping(ctx)
}

// Options wires the API to its collaborators.
type Options struct {
	Auth      *auth.Service
	Validator *auth.TokenValidator
	Tracker   *tracker.Service
	Ready     ReadyProbe
	Version   string

	RateBurst    int
	RatePerSec   float64
	MaxBodyBytes int64
	// TrustedProxies lists CIDRs or addresses whose X-Forwarded-For is
	// believed by the rate limiter. Empty means the TCP peer is the client.
	TrustedProxies []string
	// PublicPaths are glob patterns; nil means DefaultPublicPaths.
	PublicPaths []string
}

// API is the HTTP layer.
type API struct {
	mux       *http.ServeMux
	auth      *auth.Service
	validator *auth.TokenValidator
	tracker   *tracker.Service
	ready     ReadyProbe
	version   string

	rateBurst  int
	ratePerSec float64
	maxBody    int64
	public     []glob.Glob
	trusted    []netip.Prefix
}

// New validates opts and registers the routes.
func New(opts Options) (*API, error) {
	if opts.Auth == nil || opts.Validator == nil || opts.Tracker == nil {
		return nil, errors.New("httpapi: auth service, validator and tracker are required")
	}
	patterns := opts.PublicPaths
	if patterns == nil {
		patterns = DefaultPublicPaths
	}
	public := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("httpapi: public path %q: %w", p, err)
		}
		public = append(public, g)
	}

	trusted, err := ParseTrustedProxies(opts.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("httpapi: %w", err)
	}

	a := &API{
		mux:        http.NewServeMux(),
		auth:       opts.Auth,
		validator:  opts.Validator,
		tracker:    opts.Tracker,
		ready:      opts.Ready,
		version:    opts.Version,
		rateBurst:  opts.RateBurst,
		ratePerSec: opts.RatePerSec,
		maxBody:    opts.MaxBodyBytes,
		public:     public,
		trusted:    trusted,
	}
	if a.rateBurst <= 0 {
		a.rateBurst = 20
	}
	if a.ratePerSec <= 0 {
		a.ratePerSec = 10
	}
	if a.maxBody <= 0 {
		a.maxBody = 1 << 20
	}

	a.mux.HandleFunc("GET /healthz", a.Healthz)
	a.mux.HandleFunc("GET /readyz", a.Ready)
	a.mux.Handle("GET /metrics", obs.Handler())

	a.mux.HandleFunc("POST /auth/register", a.handleRegister)
	a.mux.HandleFunc("POST /auth/login", a.handleLogin)
	a.mux.HandleFunc("POST /auth/logout", a.handleLogout)
	a.mux.HandleFunc("GET /auth/me", a.handleMe)

	a.mux.HandleFunc("GET /api/projects", a.handleListProjects)
	a.mux.HandleFunc("POST /api/projects", a.handleCreateProject)
	a.mux.HandleFunc("GET /api/projects/{id}", a.handleGetProject)
	a.mux.HandleFunc("PUT /api/projects/{id}", a.handleUpdateProject)
	a.mux.HandleFunc("DELETE /api/projects/{id}", a.handleDeleteProject)
	a.mux.HandleFunc("GET /api/projects/{id}/tasks", a.handleListTasks)
	a.mux.HandleFunc("POST /api/projects/{id}/tasks", a.handleCreateTask)
	a.mux.HandleFunc("GET /api/tasks/{id}", a.handleGetTask)
	a.mux.HandleFunc("PUT /api/tasks/{id}", a.handleUpdateTask)
	a.mux.HandleFunc("DELETE /api/tasks/{id}", a.handleDeleteTask)

	return a, nil
}

// Handler returns the fully wrapped handler for the server.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = MaxBodyBytes(h, a.maxBody)
	h = RateLimit(h, a.rateBurst, a.ratePerSec, a.trusted)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.ready.Check(r.Context()); err != nil {
		obs.Logger().WarnContext(r.Context(), "readiness check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

// writeUnauthenticated answers every authentication failure identically,
// whichever check rejected the request.
func writeUnauthenticated(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="devvault"`)
	writeError(w, r, http.StatusUnauthorized, "unauthenticated")
}

// writeDomainError is the single place where core errors become statuses.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, publicMessage(err))
	case errors.Is(err, auth.ErrConflict):
		writeError(w, r, http.StatusBadRequest, "email is already registered")
	case errors.Is(err, auth.ErrUnauthenticated):
		writeUnauthenticated(w, r)
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, r, http.StatusForbidden, "forbidden")
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not found")
	case errors.Is(err, auth.ErrUnavailable),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		obs.Logger().LogAttrs(r.Context(), slog.LevelWarn, "store unavailable",
			slog.String("request_id", RequestIDFromContext(r.Context())),
			slog.String("error", err.Error()))
		writeError(w, r, http.StatusServiceUnavailable, "service unavailable")
	default:
		obs.Logger().LogAttrs(r.Context(), slog.LevelError, "unhandled error",
			slog.String("request_id", RequestIDFromContext(r.Context())),
			slog.String("error", err.Error()))
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

// publicMessage drops the package prefix of sentinel errors.
func publicMessage(err error) string {
	return strings.TrimPrefix(err.Error(), "auth: ")
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return fmt.Errorf("%w: request body is required", auth.ErrInvalidInput)
		case errors.As(err, &maxErr):
			return fmt.Errorf("%w: request body too large", auth.ErrInvalidInput)
		}
		return fmt.Errorf("%w: malformed JSON: %v", auth.ErrInvalidInput, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: unexpected data after JSON body", auth.ErrInvalidInput)
	}
	return nil
}
