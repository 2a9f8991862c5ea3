// Package precompute implements rcache.PrecomputeFunc by re-POSTing a
// cached entry's stored AFC Inquiry Request to coordinator-svc's ingress
// endpoint. Grounded on original_source/rcache/rcache_service.py's
// _single_precompute_worker, which issues the equivalent HTTP POST back
// at the msghnd process; re-expressed against services/coordinator-svc's
// internal/ingress.Handler contract instead of msghnd's.
package precompute

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"afc-coordinator/pkg/rcache"
)

// Client drives precomputation by re-dispatching a stored request to a
// coordinator-svc ingress URL with the no-cache flag set, so the fresh
// response always bypasses the (about-to-be-stale) cached row.
type Client struct {
	ingressURL string
	http       *http.Client
}

// New builds a Client targeting ingressURL (e.g.
// "http://coordinator-svc:8080/inquiry").
func New(ingressURL string, timeout time.Duration) *Client {
	return &Client{
		ingressURL: ingressURL,
		http:       &http.Client{Timeout: timeout},
	}
}

// Compute satisfies rcache.PrecomputeFunc: a non-2xx response is treated
// as a failure, which rcache.Precomputer turns into a row delete rather
// than leaving a permanently stale entry in place.
func (c *Client) Compute(ctx context.Context, entry *rcache.Entry) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.ingressURL+"?nocache=1", bytes.NewReader(entry.Request))
	if err != nil {
		return fmt.Errorf("precompute: build request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-AFC-Internal", "1")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("precompute: dispatch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("precompute: ingress returned %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
