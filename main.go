package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"docshift/artifacts"
	"docshift/config"
	"docshift/credentials"
	"docshift/encoder"
	"docshift/history"
	"docshift/job"
	"docshift/logger"
	"docshift/remotejob"
	"docshift/removebg"
	"docshift/routes"
)

func main() {
	cfg := config.Load()

	if err := logger.Init(cfg.LogFile, true); err != nil {
		logger.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Close()
	if level, ok := logger.ParseLevel(cfg.LogLevel); ok {
		logger.SetLevel(level)
	} else {
		logger.Warnf("Unknown log level %q, keeping default", cfg.LogLevel)
	}

	logger.Info("Starting docshift server initialization")

	for _, dir := range []string{cfg.DataDir, cfg.TempDir, cfg.ServeDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Fatalf("Failed to create directory %s: %v", dir, err)
		}
	}

	// Initialize credentials store
	logger.Debug("Initializing credentials database")
	creds, err := credentials.Open(config.GetCredentialsDBPath(cfg.DataDir))
	if err != nil {
		logger.Fatalf("Failed to initialize credentials store: %v", err)
	}
	defer creds.Close()
	logger.Info("Credentials database initialized successfully")

	// Initialize history store
	logger.Debug("Initializing history database")
	hist, err := history.Open(config.GetHistoryDBPath(cfg.DataDir))
	if err != nil {
		logger.Fatalf("Failed to initialize history store: %v", err)
	}
	defer hist.Close()
	logger.Info("History database initialized successfully")

	encoder.RegisterDefaults()
	logger.Infof("%d local encoders registered", len(encoder.Registered()))

	if cfg.RemoveBGAPIKey == "" {
		logger.Warn("REMOVE_BG_API_KEY not set, remove_bg requests will fail")
	}
	if cfg.CloudConvertAPIKey == "" {
		logger.Warn("CLOUDCONVERT_API_KEY not set, remote document conversions will fail")
	}
	if !cfg.AuthEnabled() {
		logger.Warn("DOCSHIFT_JWT_SECRET not set, authentication and archival are disabled")
	}

	tracker := job.NewTracker(cfg.StatusRetention)
	dispatcher := &job.Dispatcher{
		TempDir:  cfg.TempDir,
		ServeDir: cfg.ServeDir,
		Tracker:  tracker,
		Remote: remotejob.New(remotejob.Config{
			BaseURL:        cfg.CloudConvertBaseURL,
			APIKey:         cfg.CloudConvertAPIKey,
			PollInterval:   cfg.PollInterval,
			PollTimeout:    cfg.PollTimeout,
			RequestTimeout: cfg.RequestTimeout,
			UploadTimeout:  cfg.UploadTimeout,
		}),
		RemoveBG:       removebg.New(cfg.RemoveBGBaseURL, cfg.RemoveBGAPIKey, cfg.RemoveBGTimeout),
		Credentials:    creds,
		History:        hist,
		CallbackClient: &http.Client{Timeout: 30 * time.Second},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Arenas left behind by a crash are swept once at startup and then by
	// the cleanup routine
	if n, err := artifacts.SweepStale(cfg.TempDir, 0); err != nil {
		logger.Errorf("Failed to sweep temp dir: %v", err)
	} else if n > 0 {
		logger.Infof("Removed %d leftover request directories", n)
	}
	go cleanupRoutine(ctx, cfg, hist, tracker)

	server := routes.NewServer(cfg, dispatcher, hist, creds)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("Graceful shutdown failed: %v", err)
		}
	}()

	logger.Infof("docshift server starting on %s", cfg.Addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("Server failed to start: %v", err)
	}
	dispatcher.WaitCallbacks()
	logger.Info("Server stopped")
}

// cleanupRoutine periodically drops old history records, stale request
// directories and expired status entries
func cleanupRoutine(ctx context.Context, cfg *config.Config, hist *history.Store, tracker *job.Tracker) {
	interval := cfg.ArtifactMaxAge
	if interval <= 0 || interval > time.Hour {
		interval = time.Hour
	}
	logger.Infof("Cleanup routine started - will run every %v", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Cleanup routine stopped due to context cancellation")
			return
		case <-ticker.C:
			logger.Debug("Running scheduled cleanup")

			if n, err := hist.CleanupOldRecords(cfg.HistoryMaxAge); err != nil {
				logger.Errorf("Failed to cleanup old history records: %v", err)
			} else if n > 0 {
				logger.Infof("Removed %d history records older than %v", n, cfg.HistoryMaxAge)
			}

			if n, err := artifacts.SweepStale(cfg.TempDir, cfg.ArtifactMaxAge); err != nil {
				logger.Errorf("Failed to sweep stale request directories: %v", err)
			} else if n > 0 {
				logger.Infof("Removed %d stale request directories", n)
			}

			if n := tracker.Sweep(); n > 0 {
				logger.Debugf("Dropped %d finished status entries", n)
			}
		}
	}
}
