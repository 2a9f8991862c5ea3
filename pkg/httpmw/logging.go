package httpmw

import (
	"net/http"
	"time"

	"afc-coordinator/pkg/logger"
)

// statusRecorder captures the status code written by downstream handlers.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Logging logs every ingress request with method, path, status and duration.
func Logging() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			duration := time.Since(start)
			if rec.status >= 500 {
				logger.Log.Error("http request failed",
					"method", r.Method,
					"path", r.URL.Path,
					"status", rec.status,
					"duration_ms", duration.Milliseconds(),
				)
			} else {
				logger.Log.Info("http request completed",
					"method", r.Method,
					"path", r.URL.Path,
					"status", rec.status,
					"duration_ms", duration.Milliseconds(),
				)
			}
		})
	}
}
