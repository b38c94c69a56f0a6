package routes

import (
	"errors"
	"fmt"
	"net/http"

	"docshift/job"
	"docshift/logger"
)

// CancelHandler cancels a pending or converting request by ID
func (s *Server) CancelHandler(w http.ResponseWriter, r *http.Request) {
	logger.Debugf("Cancel request: method=%s, remoteAddr=%s", r.Method, r.RemoteAddr)

	if r.Method != http.MethodDelete {
		logger.Warnf("Invalid method for cancel endpoint: %s", r.Method)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		logger.Warn("Missing id parameter in cancel request")
		http.Error(w, "Missing id parameter", http.StatusBadRequest)
		return
	}

	logger.Infof("Attempting to cancel request: %s", id)
	if err := s.Tracker.Cancel(id); err != nil {
		logger.Warnf("Failed to cancel request %s: %v", id, err)
		if errors.Is(err, job.ErrNotFound) {
			http.Error(w, fmt.Sprintf("Request not found: %v", err), http.StatusNotFound)
		} else {
			http.Error(w, fmt.Sprintf("Cannot cancel request: %v", err), http.StatusConflict)
		}
		return
	}

	logger.Infof("Request cancelled: %s", id)
	w.WriteHeader(http.StatusNoContent)
}
