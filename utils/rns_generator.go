package utils

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
)

// NewRequestID returns a fresh request identifier. It is also the name of
// the request's artifact directory.
func NewRequestID() string {
	return uuid.NewString()
}

// GenerateRandomHex returns 2n hex characters of crypto randomness
func GenerateRandomHex(n int) (string, error) {
	bytes := make([]byte, n)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
