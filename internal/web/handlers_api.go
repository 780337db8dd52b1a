package web

import (
	"errors"
	"net/http"
	"strconv"

	"airwatch/internal/device"
	"airwatch/internal/store"
)

const defaultHistoryLimit = 100

func (s *Server) handleAPIListDevices(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.view.List())
}

// pathAddress normalises the {address} path value, writing a 400 on failure.
func (s *Server) pathAddress(w http.ResponseWriter, r *http.Request) (device.Address, bool) {
	addr, err := device.ParseAddress(r.PathValue("address"))
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return "", false
	}
	return addr, true
}

func (s *Server) handleAPIGetDevice(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.pathAddress(w, r)
	if !ok {
		return
	}
	st, found := s.view.Get(addr.String())
	if !found {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "device not found"})
		return
	}
	s.writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleAPIDeviceHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "history not enabled"})
		return
	}
	addr, ok := s.pathAddress(w, r)
	if !ok {
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		limit = n
	}

	sightings, err := s.history.History(addr.String(), limit)
	if errors.Is(err, store.ErrNotFound) {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "no history for device"})
		return
	}
	if err != nil {
		s.logger.Error("read history", "err", err, "address", addr)
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	s.writeJSON(w, http.StatusOK, sightings)
}

// handleAPIHistoryAddresses lists addresses with recorded history, including
// devices seen in earlier runs that the live registry no longer holds.
func (s *Server) handleAPIHistoryAddresses(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "history not enabled"})
		return
	}
	addrs, err := s.history.Addresses()
	if err != nil {
		s.logger.Error("list history", "err", err)
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	if addrs == nil {
		addrs = []string{}
	}
	s.writeJSON(w, http.StatusOK, addrs)
}

func (s *Server) handleAPIStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"version":    s.version,
		"devices":    s.view.Len(),
		"history":    s.history != nil,
		"ws_clients": s.feed.count(),
		"automation": s.engine != nil,
	}
	if s.stats != nil {
		st := s.stats()
		resp["lines"] = st.Lines
		resp["observations"] = st.Observations
		resp["source_closed"] = st.SourceClosed
	}
	s.writeJSON(w, http.StatusOK, resp)
}
