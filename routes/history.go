package routes

import (
	"net/http"

	"docshift/history"
	"docshift/logger"
)

// HistoryQueryHandler returns the stored outcome of one request
func (s *Server) HistoryQueryHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "id parameter required", http.StatusBadRequest)
		return
	}

	record, err := s.History.Get(id)
	if err != nil {
		logger.Errorf("Failed to query history for %s: %v", id, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if record == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{
			"request_id": id,
			"status":     "not_found",
			"message":    "No history record found for this request",
		})
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// HistoryListHandler lists stored records, optionally filtered by status
func (s *Server) HistoryListHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status := history.Status(r.URL.Query().Get("status"))
	switch status {
	case "", history.StatusSuccess, history.StatusFailed:
	default:
		http.Error(w, "status must be success or failed", http.StatusBadRequest)
		return
	}

	records, err := s.History.List(status)
	if err != nil {
		logger.Errorf("Failed to list history records: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"records": records,
		"count":   len(records),
	})
}
