package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/nvrhub/hieasy/internal/recorder"
)

func (s *Server) handleRecorderStatus(w http.ResponseWriter, _ *http.Request) {
	if s.rec == nil {
		writeError(w, http.StatusServiceUnavailable, "recorder not available")
		return
	}
	writeJSON(w, http.StatusOK, s.rec.Status())
}

func (s *Server) handleRecorderConfigUpdate(w http.ResponseWriter, r *http.Request) {
	if s.rec == nil {
		writeError(w, http.StatusServiceUnavailable, "recorder not available")
		return
	}
	var u recorder.Update
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&u); err != nil {
		writeError(w, http.StatusBadRequest, "invalid update: "+err.Error())
		return
	}
	cfg, err := s.rec.UpdateConfig(r.Context(), u)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleRecordings(w http.ResponseWriter, r *http.Request) {
	if s.rec == nil {
		writeError(w, http.StatusServiceUnavailable, "recorder not available")
		return
	}
	channel := -1
	if raw := r.URL.Query().Get("channel"); raw != "" {
		ch, err := strconv.Atoi(raw)
		if err != nil || ch < 0 {
			writeError(w, http.StatusBadRequest, "invalid channel: "+raw)
			return
		}
		channel = ch
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit: "+raw)
			return
		}
		limit = n
	}
	recs := s.rec.Recordings(channel, limit)
	if recs == nil {
		recs = []recorder.Recording{}
	}
	writeJSON(w, http.StatusOK, recs)
}
