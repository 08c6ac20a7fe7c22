// Package api exposes a read-only HTTP query surface over a running
// parse/forward session: current stats, the active configuration, and
// an SSE stream of newly rendered records.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"evtxlink/config"
	"evtxlink/evtx"
)

// handlers holds the API handler functions and their dependencies.
type handlers struct {
	stats *evtx.Stats
	cfg   *config.Config
	hub   *eventHub
}

// ConfigResponse is the JSON response for GET /api/config. It omits
// broker credentials — there is no write surface in this tool, but
// there is no reason to echo passwords back over HTTP either.
type ConfigResponse struct {
	Namespace         string              `json:"namespace"`
	Inputs            []string            `json:"inputs"`
	Output            config.OutputFormat `json:"output"`
	Threads           int                 `json:"threads"`
	ValidateChecksums bool                `json:"validate_checksums"`
	Forwarders        ForwardersResponse  `json:"forwarders"`
}

// ForwardersResponse summarizes which downstream targets are configured,
// without leaking broker addresses or credentials.
type ForwardersResponse struct {
	Kafka  []string `json:"kafka"`
	MQTT   []string `json:"mqtt"`
	Valkey []string `json:"valkey"`
}

// NewRouter builds the chi router for the query API. Returns the router,
// its SSE hub, and a cleanup function that stops the hub.
func NewRouter(stats *evtx.Stats, cfg *config.Config) (chi.Router, *eventHub, func()) {
	hub := newEventHub()
	h := &handlers{stats: stats, cfg: cfg, hub: hub}

	r := chi.NewRouter()
	r.Get("/stats", h.handleStats)
	r.Get("/config", h.handleConfig)
	r.Get("/events", h.handleSSE)

	return r, hub, hub.Stop
}

func (h *handlers) handleStats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, h.stats.Snapshot())
}

func (h *handlers) handleConfig(w http.ResponseWriter, r *http.Request) {
	resp := ConfigResponse{
		Namespace:         h.cfg.Namespace,
		Inputs:            h.cfg.Inputs,
		Output:            h.cfg.Output,
		Threads:           h.cfg.Threads,
		ValidateChecksums: h.cfg.ValidateChecksums,
	}
	for _, k := range h.cfg.Kafka {
		if k.Enabled {
			resp.Forwarders.Kafka = append(resp.Forwarders.Kafka, k.Name)
		}
	}
	for _, m := range h.cfg.MQTT {
		if m.Enabled {
			resp.Forwarders.MQTT = append(resp.Forwarders.MQTT, m.Name)
		}
	}
	for _, v := range h.cfg.Valkey {
		if v.Enabled {
			resp.Forwarders.Valkey = append(resp.Forwarders.Valkey, v.Name)
		}
	}
	h.writeJSON(w, resp)
}

func (h *handlers) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *handlers) writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
