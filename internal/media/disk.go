package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// DiskBackend copies uploads into a directory served under /media/. It is
// meant for development and tests.
type DiskBackend struct {
	root    string
	baseURL string
}

// NewDiskBackend creates root when missing. baseURL is the public prefix for
// stored keys, for example http://localhost:8080/media.
func NewDiskBackend(root, baseURL string) (*DiskBackend, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, errors.New("media: disk public dir is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = "/media"
	}
	return &DiskBackend{root: root, baseURL: baseURL}, nil
}

func (b *DiskBackend) Name() string { return "disk" }

func (b *DiskBackend) Put(ctx context.Context, localPath string, object Object) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	target := filepath.Join(b.root, filepath.FromSlash(object.Key))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", describeBackend(b.Name(), err)
	}
	if err := copyFile(localPath, target); err != nil {
		return "", describeBackend(b.Name(), err)
	}
	return joinURL(b.baseURL, object.Key), nil
}

// Handler serves stored files. Mount it with http.StripPrefix("/media/", ...).
func (b *DiskBackend) Handler() http.Handler {
	return http.FileServer(http.Dir(b.root))
}

// Root reports the directory files are copied into.
func (b *DiskBackend) Root() string {
	return b.root
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".partial-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
