package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"soundcrate/internal/api"
	"soundcrate/internal/observability/logging"
	"soundcrate/internal/observability/metrics"
)

const (
	// DefaultShutdownTimeout bounds graceful shutdown when the context is cancelled.
	DefaultShutdownTimeout = 10 * time.Second
	// DefaultReadTimeout leaves room for multipart bodies carrying two
	// full-size media files.
	DefaultReadTimeout = 2 * time.Minute
	// DefaultWriteTimeout must outlast the media upload timeout so a slow
	// backend upload still gets its response written.
	DefaultWriteTimeout = 3 * time.Minute
)

// TLSConfig defines certificate and key paths for enabling TLS listeners.
type TLSConfig struct {
	CertFile string
	KeyFile  string
}

// Config controls how the HTTP server is assembled.
type Config struct {
	Addr        string
	TLS         TLSConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Security    SecurityConfig
	Logger      *slog.Logger
	AuditLogger *slog.Logger
	Metrics     *metrics.Recorder
	// Media serves locally stored uploads under /media/ when set.
	Media           http.Handler
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	// Ready is closed once the listener is bound.
	Ready chan<- struct{}
}

// Server wraps the configured http.Server together with the limiter it owns.
type Server struct {
	httpServer      *http.Server
	logger          *slog.Logger
	limiter         *rateLimiter
	tlsCertFile     string
	tlsKeyFile      string
	shutdownTimeout time.Duration
	ready           chan<- struct{}
}

// New registers every catalog route on a fresh mux and wraps it in the
// middleware chain.
func New(handler *api.Handler, cfg Config) (*Server, error) {
	if handler == nil {
		return nil, fmt.Errorf("handler is required")
	}
	if (strings.TrimSpace(cfg.TLS.CertFile) == "") != (strings.TrimSpace(cfg.TLS.KeyFile) == "") {
		return nil, fmt.Errorf("both TLS cert file and key file must be provided")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	auditLogger := cfg.AuditLogger
	if auditLogger == nil {
		auditLogger = logging.WithComponent(logger, "audit")
	}
	recorder := cfg.Metrics
	if recorder == nil {
		recorder = metrics.Default()
	}
	if handler.Metrics == nil {
		handler.Metrics = recorder
	}
	if handler.Logger == nil {
		handler.Logger = logger
	}

	policy, err := newCORSPolicy(cfg.CORS)
	if err != nil {
		return nil, err
	}
	limiter := newRateLimiter(cfg.RateLimit)
	if limiter.redis != nil {
		handler.Checks = append(handler.Checks, api.HealthCheck{Component: "rate_limiter", Ping: limiter.Ping})
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", handler.Health)
	mux.Handle("/metrics", recorder.Handler())
	mux.HandleFunc("/api/users/", handler.Users)
	mux.HandleFunc("/api/artists", handler.Artists)
	mux.HandleFunc("/api/artists/", handler.ArtistByID)
	mux.HandleFunc("/api/albums", handler.Albums)
	mux.HandleFunc("/api/albums/", handler.AlbumByID)
	mux.HandleFunc("/api/songs", handler.Songs)
	mux.HandleFunc("/api/songs/", handler.SongByID)
	if cfg.Media != nil {
		mux.Handle("/media/", http.StripPrefix("/media/", cfg.Media))
	}
	mux.HandleFunc("/", handler.NotFound)

	handlerChain := http.Handler(mux)
	handlerChain = auditMiddleware(auditLogger, handlerChain)
	handlerChain = authMiddleware(handler, handlerChain)
	handlerChain = rateLimitMiddleware(limiter, recorder, handlerChain)
	handlerChain = metrics.HTTPMiddleware(recorder, handlerChain)
	handlerChain = corsMiddleware(policy, logger, handlerChain)
	handlerChain = securityHeadersMiddleware(cfg.Security, handlerChain)
	handlerChain = recoverMiddleware(handlerChain)
	handlerChain = logging.RequestLogger(logging.RequestLoggerConfig{Logger: logger})(handlerChain)
	handlerChain = requestIDMiddleware(logger, handlerChain)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handlerChain,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       positiveOr(cfg.ReadTimeout, DefaultReadTimeout),
		WriteTimeout:      positiveOr(cfg.WriteTimeout, DefaultWriteTimeout),
		IdleTimeout:       60 * time.Second,
	}

	srv := &Server{
		httpServer:      httpServer,
		logger:          logger,
		limiter:         limiter,
		tlsCertFile:     strings.TrimSpace(cfg.TLS.CertFile),
		tlsKeyFile:      strings.TrimSpace(cfg.TLS.KeyFile),
		shutdownTimeout: cfg.ShutdownTimeout,
		ready:           cfg.Ready,
	}
	if srv.tlsCertFile != "" {
		httpServer.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return srv, nil
}

// Handler exposes the fully wrapped handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run serves until ctx is cancelled, then shuts down gracefully within the
// configured timeout.
func (s *Server) Run(ctx context.Context) error {
	timeout := s.shutdownTimeout
	if timeout <= 0 {
		timeout = DefaultShutdownTimeout
	}

	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	if s.tlsCertFile != "" {
		cert, err := tls.LoadX509KeyPair(s.tlsCertFile, s.tlsKeyFile)
		if err != nil {
			ln.Close()
			return err
		}
		tlsCfg := s.httpServer.TLSConfig.Clone()
		tlsCfg.Certificates = append([]tls.Certificate{cert}, tlsCfg.Certificates...)
		s.httpServer.TLSConfig = tlsCfg
		ln = tls.NewListener(ln, tlsCfg)
	}

	s.logger.Info("http server listening", "addr", ln.Addr().String(), "tls", s.tlsCertFile != "")
	if s.ready != nil {
		close(s.ready)
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.httpServer.Serve(ln)
	}()

	select {
	case err := <-serveErr:
		s.closeLimiter()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	shutdownErr := s.Shutdown(shutdownCtx)

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-shutdownCtx.Done():
		if shutdownErr != nil {
			return shutdownErr
		}
		return shutdownCtx.Err()
	}
	return shutdownErr
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.closeLimiter()
	return err
}

func (s *Server) closeLimiter() {
	if err := s.limiter.Close(); err != nil {
		s.logger.Warn("failed to close rate limiter", "error", err)
	}
}

func positiveOr(value, fallback time.Duration) time.Duration {
	if value > 0 {
		return value
	}
	return fallback
}
