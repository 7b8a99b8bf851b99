package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"studyhub.org/api/spec"
	"studyhub.org/internal/audit"
	"studyhub.org/internal/auth"
	"studyhub.org/internal/idp"
	"studyhub.org/internal/obs"
	"studyhub.org/internal/stream"
)

// ReadyProbe reports readiness, typically a database ping.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Deps bundles the services the HTTP layer dispatches into.
type Deps struct {
	Sessions    *auth.Sessions
	Credentials *auth.Credentials
	Resolver    *auth.Resolver
	Users       auth.UserStore
	RBAC        auth.RBACStore
	Recorder    *audit.Recorder
	Events      *stream.Stream

	// Provider is optional; when nil the external token exchange
	// endpoint answers 503.
	Provider *idp.Provider

	// SessionTTL overrides the default session lifetime when positive.
	SessionTTL time.Duration
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string
	env        string

	sessions    *auth.Sessions
	credentials *auth.Credentials
	resolver    *auth.Resolver
	users       auth.UserStore
	rbac        auth.RBACStore
	recorder    *audit.Recorder
	events      *stream.Stream
	provider    *idp.Provider

	sessionTTL time.Duration
	rateBurst  int
	ratePerSec int
}

func New(rp ReadyProbe, version, env string, deps Deps) *API {
	a := &API{
		mux:         http.NewServeMux(),
		readyProbe:  rp,
		version:     version,
		env:         env,
		sessions:    deps.Sessions,
		credentials: deps.Credentials,
		resolver:    deps.Resolver,
		users:       deps.Users,
		rbac:        deps.RBAC,
		recorder:    deps.Recorder,
		events:      deps.Events,
		provider:    deps.Provider,
		sessionTTL:  auth.DefaultSessionTTL,
		rateBurst:   20,
		ratePerSec:  10,
	}
	if deps.SessionTTL > 0 {
		a.sessionTTL = deps.SessionTTL
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// OpenAPI YAML
	a.mux.HandleFunc("/openapi.yaml", a.OpenAPISpec)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// session lifecycle
	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/logout", a.handleLogout)
	a.mux.HandleFunc("/v1/auth/exchange", a.handleExchange)
	a.mux.Handle("/v1/auth/session", Require(alwaysAllow)(http.HandlerFunc(a.handleSession)))

	// role administration
	admin := Require(auth.IsAdmin)
	a.mux.Handle("/v1/roles", admin(http.HandlerFunc(a.handleRoles)))
	a.mux.Handle("/v1/roles/", admin(http.HandlerFunc(a.handleRoleResource)))
	a.mux.Handle("/v1/permissions", admin(http.HandlerFunc(a.handlePermissions)))
	a.mux.Handle("/v1/users", admin(http.HandlerFunc(a.handleCreateUser)))
	a.mux.Handle("/v1/users/", admin(http.HandlerFunc(a.handleUserResource)))

	// live audit feed
	a.mux.Handle("/v1/audit/stream", admin(http.HandlerFunc(a.Stream)))

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler assembles the middleware chain around the mux.
func (a *API) Handler() http.Handler {
	h := http.Handler(a.mux)
	h = a.withSession(h)
	h = MaxBodyBytes(h, 1<<20)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// alwaysAllow passes any authenticated principal; the guard still rejects
// requests with no auth context at all.
func alwaysAllow(auth.AuthContext) bool { return true }

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "studyhub-api",
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
		"name":    "studyhub-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

func (a *API) OpenAPISpec(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
	_, _ = w.Write(spec.OpenAPI)
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

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// handleAuthError maps service errors to the wire. Infrastructure failures
// are the only ones that leak a 503; everything about the caller's identity
// stays behind a uniform 401.
func handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		writeError(w, r, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "resource not found")
	case errors.Is(err, auth.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, auth.ErrUnavailable):
		writeError(w, r, http.StatusServiceUnavailable, "service unavailable")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
