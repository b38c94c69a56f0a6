package routes

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"docshift/logger"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status         string            `json:"status"`
	Timestamp      time.Time         `json:"timestamp"`
	Version        string            `json:"version"`
	GoVersion      string            `json:"go_version"`
	Uptime         string            `json:"uptime"`
	StartTime      string            `json:"start_time"`
	ActiveRequests int               `json:"active_requests"`
	Checks         map[string]string `json:"checks,omitempty"`
}

// formatUptime formats a duration into days, hours, minutes, seconds
func formatUptime(d time.Duration) string {
	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
}

// HealthHandler provides a basic health check endpoint for load balancers and monitoring
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	logger.Debugf("Health check request: method=%s, remoteAddr=%s", r.Method, r.RemoteAddr)

	if r.Method != http.MethodGet {
		logger.Warnf("Invalid method for health endpoint: %s", r.Method)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Version:   getVersion(),
		GoVersion: runtime.Version(),
		Uptime:    formatUptime(time.Since(s.startTime)),
		StartTime: s.startTime.Format("2006-01-02 15:04:05 MST"),
		Checks:    map[string]string{},
	}
	if s.Tracker != nil {
		response.ActiveRequests = s.Tracker.Active()
	}

	status := http.StatusOK
	if err := s.History.CheckHealth(); err != nil {
		logger.Warnf("History store unhealthy: %v", err)
		response.Status = "degraded"
		response.Checks["history"] = err.Error()
		status = http.StatusServiceUnavailable
	} else {
		response.Checks["history"] = "ok"
	}

	logger.Debugf("Health check response: status=%s, version=%s", response.Status, response.Version)
	writeJSON(w, status, response)
}
