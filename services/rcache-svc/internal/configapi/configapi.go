// Package configapi exposes an afcmodels.ConfigStore over HTTP, serving
// the Config Queries surface coordinator-svc's internal/configclient
// dials: GET /rulesetIds and GET /afcConfig/{ruleset}. Grounded on
// services/coordinator-svc/internal/ingress's handler shape, mirrored
// for a read-only GET surface instead of a POST ingress.
package configapi

import (
	"encoding/json"
	"net/http"

	"afc-coordinator/pkg/afcmodels"
	"afc-coordinator/pkg/logger"
)

// Handler serves afcmodels.ConfigStore queries as JSON.
type Handler struct {
	store afcmodels.ConfigStore
}

// New wraps a ConfigStore as an http.Handler.
func New(store afcmodels.ConfigStore) *Handler {
	return &Handler{store: store}
}

// Register wires the Config Queries routes onto mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /rulesetIds", h.handleRulesetIDs)
	mux.HandleFunc("GET /afcConfig/{ruleset}", h.handleConfig)
}

func (h *Handler) handleRulesetIDs(w http.ResponseWriter, r *http.Request) {
	ids, err := h.store.RulesetIDs(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ids)
}

func (h *Handler) handleConfig(w http.ResponseWriter, r *http.Request) {
	rulesetID := r.PathValue("ruleset")

	cfg, err := h.store.Config(r.Context(), rulesetID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if cfg == nil {
		writeError(w, http.StatusNotFound, "unknown ruleset: "+rulesetID)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Log.Error("configapi: failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
