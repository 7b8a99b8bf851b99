package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"studyhub.org/internal/auth"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type sessionResponse struct {
	UserID      string   `json:"user_id"`
	Username    string   `json:"username,omitempty"`
	Email       string   `json:"email,omitempty"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

type exchangeRequest struct {
	Token string `json:"token"`
}

// handleLogin verifies a username/password pair and issues a session cookie.
// The response carries ok plus a reason string; the reason is informational
// only — status and error shape stay uniform across credential failures so
// nothing can be probed through timing the status code.
func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "username and password are required")
		return
	}

	user, err := a.users.FindUserByUsername(r.Context(), req.Username)
	switch {
	case errors.Is(err, auth.ErrNotFound):
		a.loginFailed(w, r, "", req.Username, http.StatusUnauthorized, "user_not_found")
		return
	case err != nil:
		a.loginFailed(w, r, "", req.Username, http.StatusServiceUnavailable, "db_unavailable")
		return
	}

	ok, err := a.credentials.Verify(r.Context(), user.ID, req.Password)
	if err != nil {
		a.loginFailed(w, r, user.ID, req.Username, http.StatusServiceUnavailable, "db_error")
		return
	}
	if !ok {
		a.loginFailed(w, r, user.ID, req.Username, http.StatusUnauthorized, "wrong_password")
		return
	}

	token, err := a.sessions.Create(r.Context(), user.ID, a.sessionTTL)
	if err != nil {
		a.loginFailed(w, r, user.ID, req.Username, http.StatusServiceUnavailable, "session_create_failed")
		return
	}

	a.setSessionCookie(w, token)
	a.auditLogin(r, user.ID, req.Username, "ok")

	roles := []string{}
	if ac, err := a.resolver.LoadContext(r.Context(), user.ID); err == nil {
		roles = ac.Roles
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":    true,
		"roles": roles,
	})
}

func (a *API) loginFailed(w http.ResponseWriter, r *http.Request, userID, username string, code int, reason string) {
	a.auditLogin(r, userID, username, reason)
	writeJSON(w, code, map[string]any{
		"ok":     false,
		"reason": reason,
	})
}

// handleLogout revokes the presented session and clears the cookie. It
// always answers {ok:true}: a missing, bogus or already revoked session is
// not the caller's problem, and a revoke that could not be persisted does
// not change what the client should do next.
func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	if cookie, err := r.Cookie(SessionCookie); err == nil && cookie.Value != "" {
		_ = a.sessions.Revoke(r.Context(), cookie.Value)
	}
	a.clearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// handleExchange accepts an identity-provider token, materialises the user
// and issues a first-party session for it.
func (a *API) handleExchange(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if a.provider == nil {
		writeError(w, r, http.StatusServiceUnavailable, "external login disabled")
		return
	}

	var req exchangeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Token) == "" {
		writeError(w, r, http.StatusBadRequest, "token is required")
		return
	}

	userID, err := a.provider.Authenticate(r.Context(), req.Token)
	if err != nil {
		if errors.Is(err, auth.ErrUnavailable) {
			writeError(w, r, http.StatusServiceUnavailable, "service unavailable")
			return
		}
		writeError(w, r, http.StatusUnauthorized, "invalid token")
		return
	}

	token, err := a.sessions.Create(r.Context(), userID, a.sessionTTL)
	if err != nil {
		writeError(w, r, http.StatusServiceUnavailable, "service unavailable")
		return
	}

	a.setSessionCookie(w, token)
	a.auditEvent(r, userID, "auth.login.external", "user", userID, nil)
	writeJSON(w, http.StatusOK, map[string]any{"user_id": userID})
}

// handleSession reports who the caller is. The guard upstream already
// required an authenticated principal.
func (a *API) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	ac, _ := auth.FromContext(r.Context())

	resp := sessionResponse{
		UserID:      ac.UserID,
		Roles:       ac.Roles,
		Permissions: ac.SortedPermissions(),
	}
	if user, err := a.users.FindUser(r.Context(), ac.UserID); err == nil {
		resp.Username = user.Username
		resp.Email = user.Email
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(a.sessionTTL / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   a.env == "prod",
	})
}

func (a *API) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   a.env == "prod",
	})
}

func (a *API) auditLogin(r *http.Request, userID, username, reason string) {
	action := "auth.login"
	if reason != "ok" {
		action = "auth.login.failed"
	}
	a.auditEvent(r, userID, action, "user", userID, map[string]string{
		"username": username,
		"reason":   reason,
	})
}

func (a *API) auditEvent(r *http.Request, actorID, action, entityType, entityID string, metadata map[string]string) {
	if a.recorder == nil {
		return
	}
	// Audit persistence failing must not fail the request that triggered it.
	_ = a.recorder.Record(r.Context(), actorID, action, entityType, entityID, metadata)
}
