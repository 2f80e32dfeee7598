// Package media moves staged upload files to a public backend and returns the
// URL clients should reference. The staged file is always removed, whatever
// the outcome.
package media

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"soundcrate/internal/apperr"
	"soundcrate/internal/observability/metrics"
)

// Upload folders used by the catalog.
const (
	FolderArtists  = "spotify/artists"
	FolderAlbums   = "spotify/albums"
	FolderSongs    = "spotify/songs"
	FolderCovers   = "spotify/covers"
	FolderProfiles = "spotify/profiles"
)

// Object describes where a backend should place a staged file.
type Object struct {
	Folder      string
	Key         string
	ContentType string
}

// Backend stores a local file and reports its public URL.
type Backend interface {
	Name() string
	Put(ctx context.Context, localPath string, object Object) (string, error)
}

// Asset is a stored media file.
type Asset struct {
	URL     string
	Key     string
	Folder  string
	Backend string
}

// Uploader is the contract handlers depend on.
type Uploader interface {
	Upload(ctx context.Context, localPath, folder string) (Asset, error)
}

// Option configures a Gateway instance.
type Option func(*Gateway)

// WithLogger sets the logger used for backend and cleanup failures.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithMetrics sets the recorder for upload and cleanup counters.
func WithMetrics(recorder *metrics.Recorder) Option {
	return func(g *Gateway) {
		if recorder != nil {
			g.metrics = recorder
		}
	}
}

// WithTimeout bounds each backend call.
func WithTimeout(timeout time.Duration) Option {
	return func(g *Gateway) {
		if timeout > 0 {
			g.timeout = timeout
		}
	}
}

func withRemove(remove func(string) error) Option {
	return func(g *Gateway) {
		g.remove = remove
	}
}

// Gateway hands staged files to a Backend.
type Gateway struct {
	backend Backend
	logger  *slog.Logger
	metrics *metrics.Recorder
	timeout time.Duration
	remove  func(string) error
}

// DefaultUploadTimeout bounds a single backend upload.
const DefaultUploadTimeout = 2 * time.Minute

// NewGateway wraps backend.
func NewGateway(backend Backend, opts ...Option) (*Gateway, error) {
	if backend == nil {
		return nil, errors.New("media: backend is required")
	}
	g := &Gateway{
		backend: backend,
		logger:  slog.Default(),
		metrics: metrics.Default(),
		timeout: DefaultUploadTimeout,
		remove:  os.Remove,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g, nil
}

// Backend reports the configured backend.
func (g *Gateway) Backend() Backend {
	return g.backend
}

// Upload stores the file at localPath under folder. The local file is removed
// on success and on every failure.
func (g *Gateway) Upload(ctx context.Context, localPath, folder string) (Asset, error) {
	defer g.discard(localPath)

	folder = strings.Trim(strings.TrimSpace(folder), "/")
	if strings.TrimSpace(localPath) == "" {
		return Asset{}, apperr.Validation("Invalid file path")
	}
	if folder == "" {
		return Asset{}, apperr.Validation("Invalid folder name")
	}
	info, err := os.Stat(localPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Asset{}, apperr.NotFound("File does not exist")
		}
		return Asset{}, apperr.Upstream(err, "Failed to read upload")
	}
	if info.IsDir() {
		return Asset{}, apperr.Validation("Invalid file path")
	}

	ext := strings.ToLower(filepath.Ext(localPath))
	object := Object{
		Folder:      folder,
		Key:         path.Join(folder, uuid.NewString()+ext),
		ContentType: mime.TypeByExtension(ext),
	}
	if object.ContentType == "" {
		object.ContentType = "application/octet-stream"
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	start := time.Now()
	url, err := g.backend.Put(callCtx, localPath, object)
	g.metrics.ObserveUpload(g.backend.Name(), err, time.Since(start))
	if err != nil {
		g.logger.Error("media upload failed", "backend", g.backend.Name(), "folder", folder, "error", err)
		return Asset{}, apperr.Upstream(err, "Failed to upload media")
	}
	return Asset{URL: url, Key: object.Key, Folder: folder, Backend: g.backend.Name()}, nil
}

// Discard removes a staged file that will not be uploaded.
func (g *Gateway) Discard(localPath string) {
	g.discard(localPath)
}

func (g *Gateway) discard(localPath string) {
	if strings.TrimSpace(localPath) == "" {
		return
	}
	if err := g.remove(localPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		g.metrics.TempCleanupFailed()
		g.logger.Warn("failed to remove staged upload", "path", localPath, "error", err)
	}
}

// joinURL appends key to base with exactly one slash between them.
func joinURL(base, key string) string {
	trimmedBase := strings.TrimRight(strings.TrimSpace(base), "/")
	trimmedKey := strings.TrimLeft(key, "/")
	if trimmedKey == "" {
		return trimmedBase
	}
	return trimmedBase + "/" + trimmedKey
}

func describeBackend(name string, err error) error {
	return fmt.Errorf("%s backend: %w", name, err)
}
