// Package httpmw provides net/http middleware for coordinator-svc and
// rcache-svc ingress: request logging, rate limiting, Prometheus metrics,
// audit logging and JSON body validation.
package httpmw

import "net/http"

// Middleware wraps an http.Handler with additional behaviour.
type Middleware func(http.Handler) http.Handler

// Chain composes middleware in the order given: Chain(a, b, c)(h) calls
// a, then b, then c, then h.
func Chain(mw ...Middleware) Middleware {
	return func(final http.Handler) http.Handler {
		h := final
		for i := len(mw) - 1; i >= 0; i-- {
			h = mw[i](h)
		}
		return h
	}
}
