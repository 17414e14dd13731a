package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nvrhub/hieasy/internal/deviceconf"
	xlog "github.com/nvrhub/hieasy/internal/log"
)

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleConfigTypes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, deviceconf.TypeList())
}

func (s *Server) handleOneConfig(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "mainCmd")
	mainCmd, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid config type: "+raw)
		return
	}
	if _, ok := deviceconf.TypeFor(mainCmd); !ok {
		writeError(w, http.StatusNotFound, "unknown config type "+raw)
		return
	}
	rec, err := s.getConfig(r.Context(), mainCmd)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleAllConfigs(w http.ResponseWriter, r *http.Request) {
	out := make(map[string]*deviceconf.Record, len(deviceconf.Types))
	for _, t := range deviceconf.TypeList() {
		typ := t
		rec, err := s.getConfig(r.Context(), t.MainCmd)
		if err != nil {
			rec = &deviceconf.Record{MainCmd: t.MainCmd, AssistCmd: -1, Err: err.Error(), Type: &typ}
		}
		out[strconv.Itoa(t.MainCmd)] = rec
	}
	writeJSON(w, http.StatusOK, out)
}

// statusTypes are the four config blocks summarised by /api/status.
var statusTypes = []struct {
	mainCmd int
	key     string
}{
	{123, "device_info"},
	{129, "device_status"},
	{111, "system_time"},
	{127, "storage"},
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	out := make(map[string]any, len(statusTypes)+1)
	for _, st := range statusTypes {
		rec, err := s.getConfig(r.Context(), st.mainCmd)
		if err != nil {
			out["connected"] = false
			out["error"] = err.Error()
			writeJSON(w, http.StatusOK, out)
			return
		}
		out[st.key] = rec.Data
	}
	out["connected"] = true
	writeJSON(w, http.StatusOK, out)
}

// getConfig serves one config type through the TTL cache, hitting the
// device at most once per expiry and retrying once on a fresh connection
// when the shared session has gone stale.
func (s *Server) getConfig(ctx context.Context, mainCmd int) (*deviceconf.Record, error) {
	if rec, ok := s.cached(mainCmd); ok {
		return rec, nil
	}

	s.deviceMu.Lock()
	defer s.deviceMu.Unlock()

	// Another request may have filled the cache while we waited.
	if rec, ok := s.cached(mainCmd); ok {
		return rec, nil
	}

	var (
		rec *deviceconf.Record
		err error
	)
	for attempt := 0; attempt < 2; attempt++ {
		rec, err = s.device.Get(ctx, mainCmd, -1)
		if err == nil {
			break
		}
		s.device.Close()
		if ctx.Err() != nil {
			break
		}
		s.log.Warn().Err(err).
			Str(xlog.FieldEvent, "api.device_retry").
			Int(xlog.FieldCmdID, mainCmd).
			Msg("device read failed, retrying on a fresh connection")
	}
	if err != nil {
		return nil, err
	}

	if t, ok := deviceconf.TypeFor(mainCmd); ok && rec.Type == nil {
		rec.Type = &t
	}

	s.cacheMu.Lock()
	s.cache[mainCmd] = cacheEntry{rec: rec, ts: s.timeNow()}
	s.cacheMu.Unlock()
	return rec, nil
}

func (s *Server) cached(mainCmd int) (*deviceconf.Record, bool) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	e, ok := s.cache[mainCmd]
	if !ok || s.timeNow().Sub(e.ts) >= configCacheTTL {
		return nil, false
	}
	return e.rec, true
}
