package media

import (
	"fmt"
	"strings"
)

const (
	BackendDisk       = "disk"
	BackendCloudinary = "cloudinary"
	BackendS3         = "s3"
)

// Config selects and configures a backend.
type Config struct {
	Backend       string
	CloudinaryURL string
	S3            S3Config
	DiskDir       string
	DiskBaseURL   string
}

// NewBackend builds the backend named by cfg.Backend. The empty name selects
// the disk backend.
func NewBackend(cfg Config) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendDisk:
		return NewDiskBackend(cfg.DiskDir, cfg.DiskBaseURL)
	case BackendCloudinary:
		return NewCloudinaryBackend(cfg.CloudinaryURL)
	case BackendS3:
		return NewS3Backend(cfg.S3)
	default:
		return nil, fmt.Errorf("media: unknown backend %q", cfg.Backend)
	}
}
