package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// LocalStore writes blobs below a directory that is served under a public prefix.
type LocalStore struct {
	root   string
	prefix string
}

func NewLocalStore(root, publicPrefix string) *LocalStore {
	return &LocalStore{root: root, prefix: strings.TrimRight(publicPrefix, "/")}
}

func (s *LocalStore) Name() string { return "local" }

func (s *LocalStore) Root() string { return s.root }

func (s *LocalStore) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	clean := path.Clean("/" + key)[1:]
	if clean == "" || clean == "." {
		return "", fmt.Errorf("invalid blob key %q", key)
	}

	full := filepath.Join(s.root, filepath.FromSlash(clean))
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return "", fmt.Errorf("failed to create storage directory: %w", err)
	}
	if err := os.WriteFile(full, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write blob: %w", err)
	}

	return s.prefix + "/" + clean, nil
}
