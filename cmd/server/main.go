// Command server starts the SoundCrate catalog API.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"soundcrate/internal/api"
	"soundcrate/internal/auth"
	"soundcrate/internal/config"
	"soundcrate/internal/media"
	"soundcrate/internal/observability/logging"
	"soundcrate/internal/observability/metrics"
	"soundcrate/internal/server"
	"soundcrate/internal/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.LookupEnv, os.Stdout, nil); err != nil {
		fmt.Fprintln(os.Stderr, "soundcrate:", err)
		os.Exit(1)
	}
}

// run wires the server from args and the environment and blocks until ctx is
// cancelled. ready, when non-nil, is closed once the listener is bound.
func run(ctx context.Context, args []string, lookupEnv func(string) (string, bool), stdout io.Writer, ready chan<- struct{}) error {
	cfg, err := config.Load(config.Options{Args: args, LookupEnv: lookupEnv, Output: stdout})
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Writer: stdout})
	recorder := metrics.Default()

	store, err := storage.Open(ctx, cfg.Storage.Driver, cfg.Storage.Target(), cfg.Storage.Options(logging.WithComponent(logger, "storage"))...)
	if err != nil {
		return fmt.Errorf("open %s datastore: %w", cfg.Storage.Driver, err)
	}
	defer closeStore(store, logger)
	logger.Info("datastore ready", "driver", cfg.Storage.Driver)

	handler, mediaHandler, err := buildHandler(cfg, store, logger, recorder)
	if err != nil {
		return err
	}

	srv, err := server.New(handler, serverConfig(cfg, logger, recorder, mediaHandler, ready))
	if err != nil {
		return fmt.Errorf("initialise server: %w", err)
	}
	logger.Info("metrics endpoint available", "path", "/metrics")
	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

func buildHandler(cfg config.Config, store storage.Repository, logger *slog.Logger, recorder *metrics.Recorder) (*api.Handler, http.Handler, error) {
	tokens, err := auth.NewTokenManager(cfg.Auth.JWTSecret, auth.WithTokenTTL(cfg.Auth.TokenTTL), auth.WithIssuer(cfg.Auth.Issuer))
	if err != nil {
		return nil, nil, fmt.Errorf("token manager: %w", err)
	}
	authService, err := auth.NewService(store, tokens, auth.WithLogger(logging.WithComponent(logger, "auth")))
	if err != nil {
		return nil, nil, fmt.Errorf("auth service: %w", err)
	}

	mediaLogger := logging.WithComponent(logger, "media")
	backend, err := media.NewBackend(cfg.MediaBackendConfig())
	if err != nil {
		return nil, nil, fmt.Errorf("media backend: %w", err)
	}
	gateway, err := media.NewGateway(backend, media.WithLogger(mediaLogger), media.WithMetrics(recorder), media.WithTimeout(cfg.Media.UploadTimeout))
	if err != nil {
		return nil, nil, fmt.Errorf("media gateway: %w", err)
	}
	intake, err := media.NewIntake(cfg.Media.UploadDir, cfg.Media.MaxFileBytes, mediaLogger)
	if err != nil {
		return nil, nil, fmt.Errorf("upload intake: %w", err)
	}
	logger.Info("media backend ready", "backend", backend.Name(), "upload_dir", intake.Dir())

	handler := api.NewHandler(store, authService, gateway)
	handler.Intake = intake
	handler.Metrics = recorder
	handler.Logger = logging.WithComponent(logger, "api")

	var mediaHandler http.Handler
	if disk, ok := backend.(*media.DiskBackend); ok {
		mediaHandler = disk.Handler()
	}
	return handler, mediaHandler, nil
}

func serverConfig(cfg config.Config, logger *slog.Logger, recorder *metrics.Recorder, mediaHandler http.Handler, ready chan<- struct{}) server.Config {
	return server.Config{
		Addr: cfg.Server.Addr,
		TLS: server.TLSConfig{
			CertFile: cfg.Server.TLSCertFile,
			KeyFile:  cfg.Server.TLSKeyFile,
		},
		RateLimit: server.RateLimitConfig{
			GlobalRPS:     cfg.Rate.GlobalRPS,
			GlobalBurst:   cfg.Rate.GlobalBurst,
			LoginLimit:    cfg.Rate.LoginLimit,
			LoginWindow:   cfg.Rate.LoginWindow,
			RedisAddr:     cfg.Rate.RedisAddr,
			RedisPassword: cfg.Rate.RedisPassword,
			RedisDB:       cfg.Rate.RedisDB,
			RedisTimeout:  cfg.Rate.RedisTimeout,
		},
		CORS:            server.CORSConfig{AllowedOrigins: cfg.CORS.AllowedOrigins},
		Logger:          logger,
		AuditLogger:     logging.WithComponent(logger, "audit"),
		Metrics:         recorder,
		Media:           mediaHandler,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		Ready:           ready,
	}
}

func closeStore(store storage.Repository, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := store.Close(ctx); err != nil {
		logger.Warn("failed to close datastore", "error", err)
	}
}
