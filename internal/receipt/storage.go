package receipt

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// Storage is the object-storage collaborator boundary: put bytes under a
// key, fetch them back, and mint a shareable URL.
type Storage interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	SignedURL(key string) (string, error)
}

// LocalStorage keeps artifacts on the local filesystem and serves them
// through the API's /storage/local route. Suits single-node deployments;
// S3-class backends slot in behind the same interface.
type LocalStorage struct {
	Dir     string
	BaseURL string
}

var _ Storage = (*LocalStorage)(nil)

func NewLocalStorage(dir, baseURL string) (*LocalStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create receipt dir: %w", err)
	}
	return &LocalStorage{Dir: dir, BaseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (s *LocalStorage) path(key string) (string, error) {
	clean := filepath.Clean("/" + key)
	return filepath.Join(s.Dir, clean), nil
}

func (s *LocalStorage) Put(_ context.Context, key string, data []byte) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	return os.WriteFile(p, data, 0o644)
}

func (s *LocalStorage) Get(_ context.Context, key string) ([]byte, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(p)
}

// SignedURL escapes the key per path segment so the slashes survive routing.
func (s *LocalStorage) SignedURL(key string) (string, error) {
	segs := strings.Split(key, "/")
	for i, seg := range segs {
		segs[i] = url.PathEscape(seg)
	}
	return s.BaseURL + "/storage/local/" + strings.Join(segs, "/"), nil
}
