package routes

import (
	"net/http"

	"docshift/logger"
)

// StatusHandler returns the tracked state of a conversion request
func (s *Server) StatusHandler(w http.ResponseWriter, r *http.Request) {
	logger.Debugf("Status request: method=%s, remoteAddr=%s", r.Method, r.RemoteAddr)

	if r.Method != http.MethodGet {
		logger.Warnf("Invalid method for status endpoint: %s", r.Method)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		logger.Warn("Missing id parameter in status request")
		http.Error(w, "Missing id parameter", http.StatusBadRequest)
		return
	}

	status, exists := s.Tracker.Get(id)
	if !exists {
		logger.Debugf("Request not tracked: %s", id)
		http.Error(w, "Request "+id+" not found", http.StatusNotFound)
		return
	}

	logger.Debugf("Request status: id=%s, state=%s, phase=%s", id, status.State, status.Phase)
	writeJSON(w, http.StatusOK, status)
}
