package configapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"afc-coordinator/pkg/afcmodels"
)

type fakeStore struct {
	ids map[string]*afcmodels.Config
}

func (f *fakeStore) RulesetIDs(context.Context) ([]string, error) {
	var ids []string
	for id := range f.ids {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeStore) Config(_ context.Context, rulesetID string) (*afcmodels.Config, error) {
	cfg, ok := f.ids[rulesetID]
	if !ok {
		return nil, nil
	}
	return cfg, nil
}

func newTestServer() *httptest.Server {
	store := &fakeStore{ids: map[string]*afcmodels.Config{
		"US_47_CFR_PART_15_SUBPART_E": {RulesetID: "US_47_CFR_PART_15_SUBPART_E", RegionStr: "US"},
	}}
	mux := http.NewServeMux()
	New(store).Register(mux)
	return httptest.NewServer(mux)
}

func TestHandleRulesetIDsReturnsKnownRulesets(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/rulesetIds")
	if err != nil {
		t.Fatalf("GET /rulesetIds: %v", err)
	}
	defer resp.Body.Close()

	var ids []string
	if err := json.NewDecoder(resp.Body).Decode(&ids); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(ids) != 1 || ids[0] != "US_47_CFR_PART_15_SUBPART_E" {
		t.Fatalf("unexpected rulesetIds: %v", ids)
	}
}

func TestHandleConfigReturns404ForUnknownRuleset(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/afcConfig/UNKNOWN")
	if err != nil {
		t.Fatalf("GET /afcConfig: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestHandleConfigReturnsKnownRuleset(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/afcConfig/US_47_CFR_PART_15_SUBPART_E")
	if err != nil {
		t.Fatalf("GET /afcConfig: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var cfg afcmodels.Config
	if err := json.NewDecoder(resp.Body).Decode(&cfg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cfg.RegionStr != "US" {
		t.Fatalf("expected regionStr US, got %q", cfg.RegionStr)
	}
}
