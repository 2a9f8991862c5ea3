package httpmw

import (
	"net/http"
	"strconv"
	"time"

	"afc-coordinator/pkg/metrics"
)

// Metrics records HTTPRequestsTotal/HTTPRequestDuration/HTTPRequestsInFlight
// for every ingress request, keyed by route path.
func Metrics(routeLabel func(r *http.Request) string) Middleware {
	if routeLabel == nil {
		routeLabel = func(r *http.Request) string { return r.URL.Path }
	}
	m := metrics.Get()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := routeLabel(r)

			m.HTTPRequestsInFlight.Inc()
			defer m.HTTPRequestsInFlight.Dec()

			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			m.RecordHTTPRequest(path, strconv.Itoa(rec.status), time.Since(start))
		})
	}
}
