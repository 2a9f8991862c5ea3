// Package configclient implements afcmodels.ConfigStore over HTTP,
// calling rcache-svc's GET /rulesetIds and GET /afcConfig/{ruleset}
// endpoints. Grounded on pkg/client/grpc.go's dial-once, reuse-client
// shape, re-expressed for plain JSON/HTTP since rcache-svc's Config
// Queries surface (spec.md §6) is REST, not gRPC.
package configclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"afc-coordinator/pkg/afcmodels"
)

// Client calls a remote rcache-svc's config-query endpoints.
type Client struct {
	baseURL string
	http    *http.Client
}

// New builds a Client against baseURL (e.g. "http://rcache-svc:8081").
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// RulesetIDs lists every ruleset the upstream currently holds a config for.
func (c *Client) RulesetIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := c.getJSON(ctx, c.baseURL+"/rulesetIds", &ids); err != nil {
		return nil, fmt.Errorf("configclient: rulesetIds: %w", err)
	}
	return ids, nil
}

// Config fetches one ruleset's config.
func (c *Client) Config(ctx context.Context, rulesetID string) (*afcmodels.Config, error) {
	endpoint := c.baseURL + "/afcConfig/" + url.PathEscape(rulesetID)

	var cfg afcmodels.Config
	if err := c.getJSON(ctx, endpoint, &cfg); err != nil {
		if err == errNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("configclient: afcConfig %s: %w", rulesetID, err)
	}
	cfg.FetchedAt = time.Now()
	return &cfg, nil
}

var errNotFound = fmt.Errorf("configclient: not found")

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
