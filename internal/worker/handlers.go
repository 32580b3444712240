package worker

import (
	"io"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

// handleHealth responds immediately, even during initialization, so load
// balancers can tell a starting process from a dead one.
func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"version":        s.version,
		"ready":          s.ready.Load(),
		"uptime_seconds": int64(time.Since(s.startTime).Seconds()),
	})
}

// handleReady returns 200 only once the stores are up.
func (s *Service) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready.Load() {
		writeJSON(w, http.StatusOK, map[string]interface{}{"ready": true})
		return
	}

	body := map[string]interface{}{"ready": false}
	if err := s.GetInitError(); err != nil {
		body["error"] = err.Error()
	}
	writeJSON(w, http.StatusServiceUnavailable, body)
}

// handleModelCache is the cache endpoint: one JSON envelope in, one out.
// All request-level errors are encoded in the body; the HTTP status is 200
// whenever the handler produced a response at all.
func (s *Service) handleModelCache(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	s.initMu.RLock()
	engine := s.engine
	s.initMu.RUnlock()
	if engine == nil {
		http.Error(w, "service is initializing", http.StatusServiceUnavailable)
		return
	}

	resp := engine.Handle(r.Context(), raw)
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(resp); err != nil {
		log.Debug().Err(err).Msg("Response write failed")
	}
}

// handleModelCacheProbe lets probes GET the endpoint without a body.
func (s *Service) handleModelCacheProbe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok"})
}

// handleStats reports the engine's request counters.
func (s *Service) handleStats(w http.ResponseWriter, r *http.Request) {
	s.initMu.RLock()
	engine := s.engine
	s.initMu.RUnlock()
	if engine == nil {
		http.Error(w, "service is initializing", http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"version":        s.version,
		"uptime_seconds": int64(time.Since(s.startTime).Seconds()),
		"counters":       engine.Metrics().Stats(),
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Debug().Err(err).Msg("Response encode failed")
	}
}
