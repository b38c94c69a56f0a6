package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every runtime setting of the server. It is built once by Load
// and passed down explicitly.
type Config struct {
	Addr     string
	DataDir  string
	TempDir  string
	ServeDir string

	MaxUploadBytes int64

	PollInterval    time.Duration
	PollTimeout     time.Duration
	RequestTimeout  time.Duration
	UploadTimeout   time.Duration
	RemoveBGTimeout time.Duration

	RemoveBGAPIKey      string
	RemoveBGBaseURL     string
	CloudConvertAPIKey  string
	CloudConvertBaseURL string

	JWTSecret string
	JWTIssuer string

	LogLevel string
	LogFile  string

	HistoryMaxAge   time.Duration
	ArtifactMaxAge  time.Duration
	StatusRetention time.Duration
}

const (
	DefaultRemoveBGBaseURL     = "https://api.remove.bg"
	DefaultCloudConvertBaseURL = "https://api.cloudconvert.com"
)

// Load reads an optional .env file and then the environment.
// A missing .env file is not an error.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Addr:     getString("DOCSHIFT_ADDR", ":8080"),
		DataDir:  GetDataDir(),
		TempDir:  getString("DOCSHIFT_TEMP_DIR", filepath.Join(os.TempDir(), "docshift")),
		ServeDir: GetDirectServeBaseDir(),

		MaxUploadBytes: getInt64("DOCSHIFT_MAX_UPLOAD_MB", 32) << 20,

		PollInterval:    getDuration("DOCSHIFT_POLL_INTERVAL", 2*time.Second),
		PollTimeout:     getDuration("DOCSHIFT_POLL_TIMEOUT", 5*time.Minute),
		RequestTimeout:  getDuration("DOCSHIFT_REQUEST_TIMEOUT", 30*time.Second),
		UploadTimeout:   getDuration("DOCSHIFT_UPLOAD_TIMEOUT", 2*time.Minute),
		RemoveBGTimeout: getDuration("DOCSHIFT_REMOVEBG_TIMEOUT", 10*time.Second),

		RemoveBGAPIKey:      os.Getenv("REMOVE_BG_API_KEY"),
		RemoveBGBaseURL:     getString("REMOVE_BG_BASE_URL", DefaultRemoveBGBaseURL),
		CloudConvertAPIKey:  os.Getenv("CLOUDCONVERT_API_KEY"),
		CloudConvertBaseURL: getString("CLOUDCONVERT_BASE_URL", DefaultCloudConvertBaseURL),

		JWTSecret: os.Getenv("DOCSHIFT_JWT_SECRET"),
		JWTIssuer: os.Getenv("DOCSHIFT_JWT_ISSUER"),

		LogLevel: getString("DOCSHIFT_LOG_LEVEL", "info"),
		LogFile:  os.Getenv("DOCSHIFT_LOG_FILE"),

		HistoryMaxAge:   getDuration("DOCSHIFT_HISTORY_MAX_AGE", 30*24*time.Hour),
		ArtifactMaxAge:  getDuration("DOCSHIFT_ARTIFACT_MAX_AGE", time.Hour),
		StatusRetention: getDuration("DOCSHIFT_STATUS_RETENTION", 10*time.Minute),
	}
}

// AuthEnabled reports whether bearer tokens are required
func (c *Config) AuthEnabled() bool {
	return c.JWTSecret != ""
}

// GetDataDir returns the directory holding the Pebble databases.
// Priority: DOCSHIFT_DATA_DIR environment variable > "./data" default
func GetDataDir() string {
	return getString("DOCSHIFT_DATA_DIR", "./data")
}

// GetCredentialsDBPath returns the full path to the credentials database.
// Path: {DATA_DIR}/credentials.db
func GetCredentialsDBPath(dataDir string) string {
	return filepath.Join(dataDir, "credentials.db")
}

// GetHistoryDBPath returns the full path to the conversion history database.
// Path: {DATA_DIR}/history.db
func GetHistoryDBPath(dataDir string) string {
	return filepath.Join(dataDir, "history.db")
}

// GetDirectServeBaseDir returns the base directory for direct file serving.
// Configurable by server administrators only, never by callers.
func GetDirectServeBaseDir() string {
	return getString("DOCSHIFT_SERVE_DIR", "./serve")
}

func getString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt64(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// getDuration accepts Go duration strings ("90s") or plain seconds ("90")
func getDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	return def
}
