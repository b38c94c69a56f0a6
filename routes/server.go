package routes

import (
	"encoding/json"
	"net/http"
	"time"

	"docshift/config"
	"docshift/credentials"
	"docshift/history"
	"docshift/job"
	"docshift/logger"
	writerbackends "docshift/writerBackends"
)

// Server holds what the HTTP handlers need
type Server struct {
	Config      *config.Config
	Dispatcher  *job.Dispatcher
	Tracker     *job.Tracker
	History     *history.Store
	Credentials *credentials.Store

	startTime time.Time
}

func NewServer(cfg *config.Config, dispatcher *job.Dispatcher, hist *history.Store, creds *credentials.Store) *Server {
	return &Server{
		Config:      cfg,
		Dispatcher:  dispatcher,
		Tracker:     dispatcher.Tracker,
		History:     hist,
		Credentials: creds,
		startTime:   time.Now(),
	}
}

// Handler registers every route and wraps the mux in the middleware chain
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/convert", s.ConvertHandler)
	mux.HandleFunc("/conversions", s.ConversionsHandler)
	mux.HandleFunc("/status", s.StatusHandler)
	mux.HandleFunc("/cancel", s.CancelHandler)
	mux.HandleFunc("/history", s.HistoryQueryHandler)
	mux.HandleFunc("/history/list", s.HistoryListHandler)
	mux.HandleFunc("/credentials", s.RegisterCredentialsHandler)
	mux.HandleFunc("/health", s.HealthHandler)
	mux.HandleFunc("/version", VersionHandler)
	mux.Handle(writerbackends.ServePrefix, http.StripPrefix(writerbackends.ServePrefix, http.FileServer(http.Dir(s.Config.ServeDir))))
	logger.Debug("HTTP routes registered")

	return Recovery(RequestID(Logging(mux)))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Errorf("Failed to encode response: %v", err)
	}
}
