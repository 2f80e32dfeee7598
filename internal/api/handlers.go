package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"soundcrate/internal/auth"
	"soundcrate/internal/media"
	"soundcrate/internal/observability/logging"
	"soundcrate/internal/observability/metrics"
	"soundcrate/internal/storage"
)

const (
	msgBodyRequired = "Request body is required"
	msgNotFound     = "Not found"
)

// HealthCheck is an extra dependency probed by Health.
type HealthCheck struct {
	Component string
	Ping      func(ctx context.Context) error
}

type Handler struct {
	Store   storage.Repository
	Auth    *auth.Service
	Media   media.Uploader
	Intake  *media.Intake
	Metrics *metrics.Recorder
	Logger  *slog.Logger
	Checks  []HealthCheck

	intakeOnce sync.Once
	intakeErr  error
}

func NewHandler(store storage.Repository, authService *auth.Service, uploader media.Uploader) *Handler {
	return &Handler{Store: store, Auth: authService, Media: uploader}
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger == nil {
		return logging.WithComponent(slog.Default(), "api")
	}
	return h.Logger
}

func (h *Handler) metrics() *metrics.Recorder {
	if h.Metrics == nil {
		return metrics.Default()
	}
	return h.Metrics
}

func (h *Handler) intake() (*media.Intake, error) {
	h.intakeOnce.Do(func() {
		if h.Intake != nil {
			return
		}
		h.Intake, h.intakeErr = media.NewIntake("", 0, h.logger())
	})
	return h.Intake, h.intakeErr
}

type componentStatus struct {
	Component string `json:"component"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks []componentStatus `json:"checks"`
}

// Health probes the datastore and every registered check. A failing component
// degrades the overall status and answers 503.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		WriteMethodNotAllowed(w, r, http.MethodGet, http.MethodHead)
		return
	}
	response := healthResponse{Status: "ok", Checks: make([]componentStatus, 0, len(h.Checks)+1)}
	statusCode := http.StatusOK
	record := func(component string, err error) {
		check := componentStatus{Component: component, Status: "ok"}
		if err != nil {
			check.Status = "degraded"
			check.Error = err.Error()
			response.Status = "degraded"
			statusCode = http.StatusServiceUnavailable
		}
		response.Checks = append(response.Checks, check)
	}

	if h.Store != nil {
		record("datastore", h.Store.Ping(r.Context()))
	}
	for _, check := range h.Checks {
		if check.Ping == nil {
			continue
		}
		record(check.Component, check.Ping(r.Context()))
	}
	writeJSON(w, statusCode, response)
}

// NotFound answers every unmatched route.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	WriteMessage(w, http.StatusNotFound, msgNotFound)
}

// pathSegments splits the remainder of r.URL.Path after prefix.
func pathSegments(r *http.Request, prefix string) []string {
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
