package credentials

import (
	"encoding/json"
	"errors"
	"fmt"

	"docshift/logger"
	"docshift/utils"

	"github.com/cockroachdb/pebble"
)

var (
	ErrNotFound     = errors.New("credentials not found")
	ErrInvalidType  = errors.New("unknown storage backend type")
	ErrMissingField = errors.New("missing credential field")
)

// required fields per backend type
var requiredFields = map[string][]string{
	"s3":          {"accessKey", "secretKey", "region", "bucket"},
	"gcs":         {"credentialsJSON", "bucket"},
	"sftp":        {"host", "user"},
	"directServe": {},
}

// Store keeps storage backend credentials under random access keys
type Store struct {
	db *pebble.DB
}

// Open opens the Pebble DB for credentials at the specified path
func Open(dbPath string) (*Store, error) {
	db, err := pebble.Open(dbPath, &pebble.Options{})
	if err != nil {
		logger.Errorf("Failed to open Pebble DB: %v", err)
		return nil, fmt.Errorf("failed to open credentials store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the DB
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Validate checks that creds name a known backend and carry its fields
func Validate(creds map[string]string) error {
	fields, ok := requiredFields[creds["type"]]
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidType, creds["type"])
	}
	for _, f := range fields {
		if creds[f] == "" {
			return fmt.Errorf("%w %q for %s backend", ErrMissingField, f, creds["type"])
		}
	}
	if creds["type"] == "sftp" && creds["password"] == "" && creds["privateKey"] == "" {
		return fmt.Errorf("%w: sftp backend needs a password or privateKey", ErrMissingField)
	}
	return nil
}

// Register validates creds and stores them under a new random key
func (s *Store) Register(creds map[string]string) (string, error) {
	if err := Validate(creds); err != nil {
		return "", err
	}
	key, err := utils.GenerateRandomHex(16)
	if err != nil {
		return "", fmt.Errorf("failed to generate access key: %w", err)
	}
	if err := s.StoreCredentials(key, creds); err != nil {
		return "", err
	}
	return key, nil
}

func (s *Store) GetCredentials(key string) (map[string]string, error) {
	value, closer, err := s.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer closer.Close()
	creds := make(map[string]string)
	if err := json.Unmarshal(value, &creds); err != nil {
		return nil, err
	}
	return creds, nil
}

// StoreCredentials stores the credentials map under the given key
func (s *Store) StoreCredentials(key string, creds map[string]string) error {
	encodedCreds, err := json.Marshal(creds)
	if err != nil {
		return err
	}
	return s.db.Set([]byte(key), encodedCreds, pebble.Sync)
}

// DeleteCredentials deletes the credentials for the given key
func (s *Store) DeleteCredentials(key string) error {
	return s.db.Delete([]byte(key), pebble.Sync)
}
