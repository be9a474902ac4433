package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"authgate.org/internal/auth"
	"authgate.org/internal/obs"
)

const (
	accessTokenCookie  = "accessToken"
	refreshTokenCookie = "refreshToken"

	authHeader = "Authorization"
	bearer     = "Bearer "
)

// withAuth authenticates each inbound request. A missing or unverifiable
// credential passes through unauthenticated; routes that need a principal
// reject on their own. A positively detected stale credential (valid
// signature, outdated security stamp) is the only hard failure here: the
// session cookies are cleared and the request never reaches a handler.
func (a *API) withAuth(next http.Handler) http.Handler {
	if a == nil || a.auth == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		raw := extractCredential(r)
		if raw == "" {
			next.ServeHTTP(w, r)
			return
		}

		principal, err := a.auth.AuthenticateAccess(r.Context(), raw)
		if err != nil {
			if errors.Is(err, auth.ErrStaleCredential) {
				obs.ObserveStaleCredential()
				a.deleteTokenCookies(w)
				writeError(w, r, http.StatusUnauthorized, "invalid token")
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		ctx := auth.ContextWithPrincipal(r.Context(), principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// extractCredential reads the access credential from the session cookie,
// falling back to the Authorization header.
func extractCredential(r *http.Request) string {
	if c, err := r.Cookie(accessTokenCookie); err == nil {
		if v := strings.TrimSpace(c.Value); v != "" {
			return v
		}
	}
	header := strings.TrimSpace(r.Header.Get(authHeader))
	if header == "" {
		return ""
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return ""
	}
	return strings.TrimSpace(header[len(bearer):])
}

// RequireAuth rejects requests that carry no authenticated principal.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.PrincipalFromContext(r.Context()); !ok {
			w.Header().Set("WWW-Authenticate", `Bearer realm="authgate"`)
			writeError(w, r, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole rejects requests whose principal is missing (401) or lacks the
// given role (403).
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := auth.PrincipalFromContext(r.Context())
			if !ok {
				w.Header().Set("WWW-Authenticate", `Bearer realm="authgate"`)
				writeError(w, r, http.StatusUnauthorized, "authentication required")
				return
			}
			if !principal.HasRole(role) {
				w.Header().Set("WWW-Authenticate", `Bearer realm="authgate"`)
				writeError(w, r, http.StatusForbidden, "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
