// Package ingress is coordinator-svc's HTTP JSON entry point: it decodes
// an Inquiry Request body, derives the debug/edebug/nocache/gui/internal
// flags from the query string and the X-AFC-Internal header, and hands
// off to the Message-Processor Shell. Grounded on gateway-svc's
// cmd/main.go health/ready handler shape, generalized from a ConnectRPC
// service method to a plain net/http.HandlerFunc since coordinator-svc's
// ingress is JSON, not protobuf.
package ingress

import (
	"encoding/json"
	"net/http"

	"afc-coordinator/pkg/afcmodels"
	"afc-coordinator/pkg/logger"
	"afc-coordinator/services/coordinator-svc/internal/shell"
)

// Handler serves POST /inquiry.
type Handler struct {
	shell *shell.Shell
}

// New wraps a Shell as an http.Handler.
func New(s *shell.Shell) *Handler {
	return &Handler{shell: s}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req afcmodels.InquiryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"malformed request body"}`))
		return
	}

	flags := flagsFromRequest(r)
	resp := h.shell.Handle(r.Context(), req, flags)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Log.Error("ingress: failed to encode response", "error", err)
	}
}

func flagsFromRequest(r *http.Request) afcmodels.Flags {
	q := r.URL.Query()
	return afcmodels.Flags{
		Debug:    isSet(q.Get("debug")),
		Edebug:   isSet(q.Get("edebug")),
		NoCache:  isSet(q.Get("nocache")),
		GUI:      isSet(q.Get("gui")),
		Internal: r.Header.Get("X-AFC-Internal") != "",
	}
}

func isSet(v string) bool {
	return v != "" && v != "0" && v != "false"
}
