package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"authgate.org/internal/auth"
	"authgate.org/internal/obs"
)

const serviceName = "authgate-api"

// ReadyProbe reports whether the service dependencies are reachable.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Options carries the API dependencies and cookie policy.
type Options struct {
	Auth         *auth.Service
	ReadyProbe   ReadyProbe
	Version      string
	CookieSecure bool
}

// API is the HTTP layer.
type API struct {
	mux          *http.ServeMux
	auth         *auth.Service
	readyProbe   ReadyProbe
	version      string
	cookieSecure bool
}

func New(opts Options) *API {
	a := &API{
		mux:          http.NewServeMux(),
		auth:         opts.Auth,
		readyProbe:   opts.ReadyProbe,
		version:      opts.Version,
		cookieSecure: opts.CookieSecure,
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	a.mux.HandleFunc("/v1/auth/register", a.handleRegister)
	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/refresh-token", a.handleRefreshToken)
	a.mux.HandleFunc("/v1/auth/logout", a.handleLogout)

	a.mux.Handle("/v1/users", RequireAuth(http.HandlerFunc(a.handleUsersCollection)))
	a.mux.Handle("/v1/users/", RequireAuth(http.HandlerFunc(a.handleUserResource)))
	a.mux.Handle("/v1/roles", RequireRole("admin")(http.HandlerFunc(a.handleRolesCollection)))
	a.mux.Handle("/v1/roles/", RequireRole("admin")(http.HandlerFunc(a.handleRoleResource)))

	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped http.Handler for the server.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = MaxBodyBytes(h, 1<<20)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = RequestID(h)
	h = Logging(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
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
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}
