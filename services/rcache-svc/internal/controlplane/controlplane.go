// Package controlplane is rcache-svc's operator-facing REST surface:
// switch toggles, precomputation quota, on-demand invalidation, a status
// snapshot, and xlsx/pdf exports of that snapshot. Grounded on
// gateway-svc's handler-to-service delegation shape and on
// rcache_service.py's Flask control-plane routes (/status, /switches,
// /quota, /invalidate) for the route surface itself.
package controlplane

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"afc-coordinator/pkg/dispatchhistory"
	"afc-coordinator/pkg/healthstate"
	"afc-coordinator/pkg/logger"
	"afc-coordinator/pkg/rcache"
	"afc-coordinator/pkg/report"
)

// recentInvalidationBacklog bounds how many invalidation events the
// Handler keeps in memory for the report export, matching the Python
// original's small in-process ring buffer rather than a dedicated table.
const recentInvalidationBacklog = 50

// Handler serves the Rcache Control Plane REST routes.
type Handler struct {
	store       rcache.Store
	invalidator *rcache.Invalidator
	precomputer *rcache.Precomputer
	averager    *rcache.Averager
	health      *healthstate.State
	startedAt   time.Time

	dispatchHistory dispatchhistory.Repository
	generators      map[string]report.Generator

	mu            sync.Mutex
	recentInvalid []report.InvalidationEvent
}

// New builds a Handler. generators maps a format key ("xlsx", "pdf") to
// the Generator that serves it.
func New(
	store rcache.Store,
	invalidator *rcache.Invalidator,
	precomputer *rcache.Precomputer,
	averager *rcache.Averager,
	health *healthstate.State,
	history dispatchhistory.Repository,
	generators map[string]report.Generator,
) *Handler {
	return &Handler{
		store:           store,
		invalidator:     invalidator,
		precomputer:     precomputer,
		averager:        averager,
		health:          health,
		startedAt:       time.Now(),
		dispatchHistory: history,
		generators:      generators,
	}
}

// Register wires every Control Plane route onto mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /status", h.handleStatus)
	mux.HandleFunc("GET /switches/{name}", h.handleGetSwitch)
	mux.HandleFunc("POST /switches/{name}", h.handleSetSwitch)
	mux.HandleFunc("GET /quota", h.handleGetQuota)
	mux.HandleFunc("POST /quota", h.handleSetQuota)
	mux.HandleFunc("POST /invalidate", h.handleInvalidate)
	mux.HandleFunc("GET /report.xlsx", h.handleReport("xlsx"))
	mux.HandleFunc("GET /report.pdf", h.handleReport("pdf"))
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.buildStatus(r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *Handler) buildStatus(r *http.Request) (rcache.Status, error) {
	ctx := r.Context()

	invalidationEnabled, err := h.store.SwitchState(ctx, rcache.SwitchInvalidationEnabled)
	if err != nil {
		return rcache.Status{}, err
	}
	precomputationEnabled, err := h.store.SwitchState(ctx, rcache.SwitchPrecomputationEnabled)
	if err != nil {
		return rcache.Status{}, err
	}
	updateEnabled, err := h.store.SwitchState(ctx, rcache.SwitchUpdateEnabled)
	if err != nil {
		return rcache.Status{}, err
	}

	numInvalid, err := h.store.NumInvalidEntries(ctx)
	if err != nil {
		return rcache.Status{}, err
	}
	total, err := h.store.CacheSize(ctx)
	if err != nil {
		return rcache.Status{}, err
	}
	numPrecomputing, err := h.store.NumPrecomputing(ctx)
	if err != nil {
		return rcache.Status{}, err
	}

	status := rcache.Status{
		UpTime:                time.Since(h.startedAt),
		DBConnected:           true,
		AllTasksRunning:       h.health.IsServing(),
		InvalidationEnabled:   invalidationEnabled,
		PrecomputationEnabled: precomputationEnabled,
		UpdateEnabled:         updateEnabled,
		PrecomputationQuota:   h.precomputer.Quota(),
		NumValidEntries:       total - numInvalid,
		NumInvalidEntries:     numInvalid,
		NumPrecomputed:        h.precomputer.Count(),
		ActivePrecomputations: int(numPrecomputing),
	}
	if h.averager != nil {
		status.AvgUpdateWriteRate = h.averager.AvgUpdateWriteRate()
		status.AvgUpdateQueueLen = h.averager.AvgUpdateQueueLen()
		status.AvgPrecomputationRate = h.averager.AvgPrecomputationRate()
		status.AvgScheduleLag = h.averager.AvgScheduleLag()
	}
	// UpdateQueueLen stays zero: coordinator-svc writes directly to the
	// shared Postgres store (see DESIGN.md), so rcache-svc has no update
	// dispatch queue of its own to measure an instantaneous depth from.
	return status, nil
}

func (h *Handler) handleGetSwitch(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	enabled, err := h.store.SwitchState(r.Context(), name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, switchResponse{Name: name, Enabled: enabled})
}

func (h *Handler) handleSetSwitch(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	var body switchResponse
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	if err := h.store.SetSwitchState(r.Context(), name, body.Enabled); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, switchResponse{Name: name, Enabled: body.Enabled})
}

type switchResponse struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

func (h *Handler) handleGetQuota(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, quotaResponse{Quota: h.precomputer.Quota()})
}

func (h *Handler) handleSetQuota(w http.ResponseWriter, r *http.Request) {
	var body quotaResponse
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	h.precomputer.SetQuota(body.Quota)
	writeJSON(w, http.StatusOK, quotaResponse{Quota: h.precomputer.Quota()})
}

type quotaResponse struct {
	Quota int `json:"quota"`
}

// invalidateRequest matches the three shapes spec.md §6 describes: a
// global sweep, a list of rulesets, or a list of spatial tiles.
type invalidateRequest struct {
	All        bool              `json:"all,omitempty"`
	RulesetIDs []string          `json:"rulesetIds,omitempty"`
	Tiles      []rcache.LatLonRect `json:"tiles,omitempty"`
}

func (h *Handler) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	var body invalidateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	switch {
	case body.All:
		h.invalidator.InvalidateAll()
		h.recordInvalidation("all", 0)
	case len(body.RulesetIDs) > 0:
		h.invalidator.InvalidateRulesets(body.RulesetIDs)
		for _, rulesetID := range body.RulesetIDs {
			h.recordInvalidation(rulesetID, 0)
		}
	case len(body.Tiles) > 0:
		h.invalidator.InvalidateTiles(body.Tiles)
		h.recordInvalidation("spatial", len(body.Tiles))
	default:
		writeError(w, http.StatusBadRequest, "invalidate request must set all, rulesetIds, or tiles")
		return
	}

	if h.precomputer != nil {
		h.precomputer.Wake()
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) recordInvalidation(scope string, count int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.recentInvalid = append(h.recentInvalid, report.InvalidationEvent{
		Timestamp: time.Now(),
		Scope:     scope,
		Count:     count,
	})
	if len(h.recentInvalid) > recentInvalidationBacklog {
		h.recentInvalid = h.recentInvalid[len(h.recentInvalid)-recentInvalidationBacklog:]
	}
}

func (h *Handler) handleReport(format string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gen, ok := h.generators[format]
		if !ok {
			writeError(w, http.StatusNotImplemented, "report format not configured: "+format)
			return
		}

		status, err := h.buildStatus(r)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		data := &report.Data{
			GeneratedAt: time.Now(),
			Status:      status,
			Switches: []report.SwitchSnapshot{
				{Name: rcache.SwitchInvalidationEnabled, Enabled: status.InvalidationEnabled},
				{Name: rcache.SwitchPrecomputationEnabled, Enabled: status.PrecomputationEnabled},
				{Name: rcache.SwitchUpdateEnabled, Enabled: status.UpdateEnabled},
			},
			RecentInvalid: h.snapshotRecentInvalid(),
			// DispatchStats is per-serial-number (dispatchhistory.Repository
			// has no fleet-wide aggregate), so a whole-fleet report carries
			// no per-ruleset breakdown here; an operator wanting dispatch
			// stats for one device uses coordinator-svc's history lookup.
			DispatchStats: map[string]dispatchhistory.Stats{},
		}

		body, err := gen.Generate(data)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		w.Header().Set("Content-Type", gen.ContentType())
		if _, err := w.Write(body); err != nil {
			logger.Log.Error("controlplane: failed to write report body", "error", err)
		}
	}
}

func (h *Handler) snapshotRecentInvalid() []report.InvalidationEvent {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]report.InvalidationEvent, len(h.recentInvalid))
	copy(out, h.recentInvalid)
	return out
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Log.Error("controlplane: failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
