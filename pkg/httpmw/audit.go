package httpmw

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"afc-coordinator/pkg/audit"
	"afc-coordinator/pkg/logger"
)

// AuditConfig configures the audit middleware.
type AuditConfig struct {
	ServiceName   string
	ExcludePaths  map[string]bool
	Logger        audit.Logger
	UserHeader    string
	UsernameHeader string
	RequestIDHeader string
}

// Audit logs a fire-and-forget audit entry for every non-excluded request.
func Audit(cfg *AuditConfig) Middleware {
	if cfg.Logger == nil {
		cfg.Logger = audit.Get()
	}
	if cfg.UserHeader == "" {
		cfg.UserHeader = "X-User-ID"
	}
	if cfg.UsernameHeader == "" {
		cfg.UsernameHeader = "X-Username"
	}
	if cfg.RequestIDHeader == "" {
		cfg.RequestIDHeader = "X-Request-ID"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.ExcludePaths != nil && cfg.ExcludePaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			entry := audit.NewEntry().
				Service(cfg.ServiceName).
				Method(r.Method + " " + r.URL.Path).
				Action(pathToAction(r.URL.Path)).
				User(r.Header.Get(cfg.UserHeader), r.Header.Get(cfg.UsernameHeader)).
				Client(clientIP(r), r.UserAgent()).
				RequestID(r.Header.Get(cfg.RequestIDHeader)).
				Build()

			if rec.status >= 400 {
				entry.Outcome = audit.OutcomeFailure
				entry.ErrorCode = strconv.Itoa(rec.status)
			} else {
				entry.Outcome = audit.OutcomeSuccess
			}

			go func() {
				if err := cfg.Logger.Log(context.Background(), entry); err != nil {
					logger.Log.Warn("failed to write audit log", "error", err)
				}
			}()
		})
	}
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}

// pathToAction maps an ingress route to an audit Action by keyword.
func pathToAction(path string) audit.Action {
	switch {
	case strings.Contains(path, "invalidate"):
		return audit.ActionInvalidate
	case strings.Contains(path, "precompute"):
		return audit.ActionPrecompute
	case strings.Contains(path, "switch"):
		return audit.ActionSwitchToggle
	case strings.Contains(path, "available_spectrum_inquiry"), strings.Contains(path, "inquiry"):
		return audit.ActionDispatch
	case strings.Contains(path, "quota"), strings.Contains(path, "config"):
		return audit.ActionUpdate
	case strings.Contains(path, "status"), strings.Contains(path, "report"):
		return audit.ActionRead
	default:
		return audit.ActionRead
	}
}
