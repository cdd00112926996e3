package httpserver

import (
	"errors"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/and161185/acme-accounts/internal/audit"
	"github.com/and161185/acme-accounts/internal/errs"
	"github.com/and161185/acme-accounts/internal/model"
	"github.com/and161185/acme-accounts/internal/rbac"
	"github.com/and161185/acme-accounts/internal/service"
)

// Observer receives HTTP metrics.
type Observer interface {
	ObserveHTTP(method, route, status string, seconds float64)
	AccessDenied()
}

type nopObserver struct{}

func (nopObserver) ObserveHTTP(string, string, string, float64) {}
func (nopObserver) AccessDenied()                                {}

// Logging logs one line per request with metadata only, never bodies or credentials.
func Logging(log *zap.Logger, obs Observer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			dur := time.Since(start)
			obs.ObserveHTTP(r.Method, route, strconv.Itoa(status), dur.Seconds())

			log.Info("http",
				zap.String("method", r.Method),
				zap.String("route", route),
				zap.Int("status", status),
				zap.Duration("dur", dur),
				zap.String("peer", r.RemoteAddr),
			)
		})
	}
}

// Recover turns panics into a 500 error payload.
func Recover(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					log.Error("panic",
						zap.Any("reason", rec),
						zap.ByteString("stack", debug.Stack()),
						zap.String("path", r.URL.Path),
					)
					writeErrorStatus(w, r, http.StatusInternalServerError, "Internal error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// Authenticate accepts HTTP Basic credentials or a bearer token and stores the principal.
func Authenticate(auth service.AuthService, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var (
				p   model.Principal
				err error
			)
			if user, pass, ok := r.BasicAuth(); ok {
				p, err = auth.Authenticate(r.Context(), user, pass, r.URL.Path)
			} else if tok, ok := bearerToken(r); ok {
				p, err = auth.ResolveToken(r.Context(), tok)
			} else {
				err = errs.ErrInvalidCredential
			}
			if err != nil {
				if errors.Is(err, errs.ErrInvalidCredential) {
					w.Header().Set("WWW-Authenticate", `Basic realm="acme-accounts"`)
				}
				log.Debug("authentication rejected", zap.String("path", r.URL.Path), zap.Error(err))
				writeError(w, r, log, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// Authorize applies the role policy; denials are audited as ACCESS_DENIED.
func Authorize(policy *rbac.Policy, rec audit.Recorder, obs Observer, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromCtx(r.Context())
			if !ok {
				writeError(w, r, log, errs.ErrInvalidCredential)
				return
			}
			err := policy.Authorize(p, r.URL.Path)
			if err == nil {
				next.ServeHTTP(w, r)
				return
			}
			if errors.Is(err, errs.ErrAccessDenied) {
				obs.AccessDenied()
				if aerr := rec.Record(r.Context(), model.ActionAccessDenied, p.Email, r.URL.Path, r.URL.Path); aerr != nil {
					log.Warn("audit access denied", zap.String("email", p.Email), zap.Error(aerr))
				}
			}
			writeError(w, r, log, err)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	v := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(v) >= 7 && strings.EqualFold(v[:7], "bearer ") {
		if t := strings.TrimSpace(v[7:]); t != "" {
			return t, true
		}
	}
	return "", false
}
