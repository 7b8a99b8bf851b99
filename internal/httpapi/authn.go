package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"studyhub.org/internal/auth"
)

// SessionCookie is the name of the opaque session token cookie.
const SessionCookie = "sid"

var publicPaths = []string{
	"/v1/auth/login",
	"/v1/auth/logout",
	"/v1/auth/exchange",
	"/metrics",
	"/healthz",
	"/readyz",
	"/openapi.yaml",
	"/v1/info",
	"/",
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}

// withSession resolves the session cookie to an auth context and attaches it
// to the request. Requests without a cookie pass through unauthenticated;
// the route guards decide whether that is acceptable. A cookie that fails
// validation is rejected here with a uniform 401 so a revoked or expired
// token never reaches a handler looking live.
func (a *API) withSession(next http.Handler) http.Handler {
	if a.sessions == nil || a.resolver == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		cookie, err := r.Cookie(SessionCookie)
		if err != nil || strings.TrimSpace(cookie.Value) == "" {
			next.ServeHTTP(w, r)
			return
		}

		userID, err := a.sessions.Validate(r.Context(), cookie.Value)
		if err != nil {
			if errors.Is(err, auth.ErrUnavailable) {
				writeError(w, r, http.StatusServiceUnavailable, "service unavailable")
				return
			}
			writeError(w, r, http.StatusUnauthorized, "unauthorized")
			return
		}

		ac, err := a.resolver.LoadContext(r.Context(), userID)
		if err != nil {
			// Roles could not be resolved: fail closed rather than let the
			// request continue with partial access data.
			writeError(w, r, http.StatusServiceUnavailable, "service unavailable")
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.ContextWith(r.Context(), ac)))
	})
}

// Require builds a guard middleware around an authorization predicate.
// No auth context answers 401, a failing predicate 403; both carry a
// WWW-Authenticate challenge and neither reveals what was missing.
func Require(pred auth.Predicate) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ac, ok := auth.FromContext(r.Context())
			if !ok {
				w.Header().Set("WWW-Authenticate", `Session realm="studyhub"`)
				writeError(w, r, http.StatusUnauthorized, "unauthorized")
				return
			}
			if !pred(ac) {
				w.Header().Set("WWW-Authenticate", `Session realm="studyhub"`)
				writeError(w, r, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole is a convenience guard for a single role key.
func RequireRole(key string) func(http.Handler) http.Handler {
	return Require(auth.HasRole(key))
}
