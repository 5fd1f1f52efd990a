package uploads

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// Store persists uploaded content and returns the URL it is served from.
type Store interface {
	Put(ctx context.Context, name string, content io.Reader) (string, error)
}

// DiskStore writes uploads under a root directory served at baseURL.
type DiskStore struct {
	root    string
	baseURL string
}

func NewDiskStore(root, baseURL string) *DiskStore {
	return &DiskStore{root: root, baseURL: strings.TrimSuffix(baseURL, "/")}
}

// Root is the directory the media handler serves.
func (s *DiskStore) Root() string {
	return s.root
}

func (s *DiskStore) Put(_ context.Context, name string, content io.Reader) (string, error) {
	clean := filepath.Clean("/" + name)
	path := filepath.Join(s.root, clean)

	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return "", fmt.Errorf("failed to create upload directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return "", fmt.Errorf("failed to create upload %s: %w", name, err)
	}

	if _, err := io.Copy(file, content); err != nil {
		_ = file.Close()
		_ = os.Remove(path)

		return "", fmt.Errorf("failed to write upload %s: %w", name, err)
	}

	if err := file.Close(); err != nil {
		return "", fmt.Errorf("failed to close upload %s: %w", name, err)
	}

	return s.baseURL + (&url.URL{Path: filepath.ToSlash(clean)}).EscapedPath(), nil
}
