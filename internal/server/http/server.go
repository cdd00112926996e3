// Package httpserver exposes the account services over HTTP.
package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/and161185/acme-accounts/internal/audit"
	"github.com/and161185/acme-accounts/internal/rbac"
	"github.com/and161185/acme-accounts/internal/service"
)

// Deps wires the router.
type Deps struct {
	Auth     service.AuthService
	Admin    service.AdminService
	Business service.BusinessService
	Policy   *rbac.Policy
	Audit    audit.Recorder
	Log      *zap.Logger

	// Optional.
	Metrics        Observer
	MetricsHandler http.Handler
	Ready          func(ctx context.Context) error
}

// Server holds handler dependencies.
type Server struct {
	auth     service.AuthService
	admin    service.AdminService
	business service.BusinessService
	log      *zap.Logger
}

// NewRouter builds the chi router with all routes and middleware.
func NewRouter(d Deps) http.Handler {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Metrics == nil {
		d.Metrics = nopObserver{}
	}
	s := &Server{auth: d.Auth, admin: d.Admin, business: d.Business, log: d.Log}

	r := chi.NewRouter()
	r.Use(Logging(d.Log, d.Metrics), Recover(d.Log))
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeErrorStatus(w, r, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeErrorStatus(w, r, http.StatusMethodNotAllowed, "Method not allowed")
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if d.Ready != nil {
			if err := d.Ready(r.Context()); err != nil {
				writeErrorStatus(w, r, http.StatusServiceUnavailable, "not ready")
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})
	if d.MetricsHandler != nil {
		r.Handle("/metrics", d.MetricsHandler)
	}

	r.Post("/api/auth/signup", s.signup)

	r.Group(func(r chi.Router) {
		r.Use(Authenticate(d.Auth, d.Log), Authorize(d.Policy, d.Audit, d.Metrics, d.Log))

		r.Post("/api/auth/changepass", s.changePassword)
		r.Post("/api/auth/token", s.issueToken)

		r.Get("/api/empl/payment", s.payroll)
		r.Post("/api/acct/payments", s.uploadPayments)
		r.Put("/api/acct/payments", s.changeSalary)

		r.Get("/api/admin/user", s.listUsers)
		r.Get("/api/admin/user/", s.listUsers)
		r.Delete("/api/admin/user/{email}", s.deleteUser)
		r.Put("/api/admin/user/role", s.changeRole)
		r.Put("/api/admin/user/access", s.changeAccess)

		r.Get("/api/security/events", s.events)
		r.Get("/api/security/events/", s.events)
	})
	return r
}

// New builds an HTTP server with the project's timeouts.
func New(addr string, handler http.Handler, readHeaderTimeout time.Duration) *http.Server {
	if readHeaderTimeout <= 0 {
		readHeaderTimeout = 5 * time.Second
	}
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}
