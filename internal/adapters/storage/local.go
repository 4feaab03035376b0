// internal/adapters/storage/local.go
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ammerola/stockledger/internal/core/ports"
)

// LocalStorage implements ports.ObjectStorage on the filesystem. It backs
// development setups without S3 and the tests.
type LocalStorage struct {
	basePath string
	logger   *slog.Logger
}

var _ ports.ObjectStorage = (*LocalStorage)(nil)

// NewLocalStorage creates a new local storage client
func NewLocalStorage(basePath string, logger *slog.Logger) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &LocalStorage{
		basePath: basePath,
		logger:   logger.With(slog.String("storage", "local")),
	}, nil
}

func (l *LocalStorage) path(key string) (string, error) {
	clean := filepath.Clean("/" + key)
	if clean == "/" {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(l.basePath, filepath.FromSlash(clean)), nil
}

func (l *LocalStorage) Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	path, err := l.path(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("failed to store %s: %w", key, err)
	}

	l.logger.DebugContext(ctx, "object stored", slog.String("key", key))
	return "file://" + path, nil
}

func (l *LocalStorage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	path, err := l.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
		}
		return nil, fmt.Errorf("failed to open %s: %w", key, err)
	}
	return f, nil
}

func (l *LocalStorage) Delete(ctx context.Context, key string) error {
	path, err := l.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

func (l *LocalStorage) List(ctx context.Context, prefix string) ([]ports.ObjectInfo, error) {
	var objects []ports.ObjectInfo
	err := filepath.WalkDir(l.basePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".upload-") {
			return nil
		}
		rel, err := filepath.Rel(l.basePath, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		objects = append(objects, ports.ObjectInfo{Key: key, Size: info.Size(), LastModified: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list objects: %w", err)
	}
	return objects, nil
}

// PresignGet returns a file URL; local files need no signature.
func (l *LocalStorage) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	path, err := l.path(key)
	if err != nil {
		return "", err
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String(), nil
}
