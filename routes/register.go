package routes

import (
	"encoding/json"
	"errors"
	"net/http"

	"docshift/credentials"
	"docshift/logger"
)

// RegisterCredentialsHandler stores storage backend credentials and
// returns the access key tokens refer to them by
func (s *Server) RegisterCredentialsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if _, err := s.verifyJWT(r); err != nil {
		writeError(w, err)
		return
	}

	credsBody := make(map[string]string)
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&credsBody); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	keyString, err := s.Credentials.Register(credsBody)
	if err != nil {
		if errors.Is(err, credentials.ErrInvalidType) || errors.Is(err, credentials.ErrMissingField) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		logger.Errorf("Failed to store credentials: %v", err)
		http.Error(w, "Failed to store credentials", http.StatusInternalServerError)
		return
	}

	logger.Infof("Registered %s credentials", credsBody["type"])
	writeJSON(w, http.StatusOK, map[string]string{
		"access_key": keyString,
	})
}
