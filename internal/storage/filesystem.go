package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FileSystemStore keeps objects under a root directory. Used for local runs.
type FileSystemStore struct {
	root    string
	baseURL string
}

func NewFileSystemStore(root, publicBaseURL string) (*FileSystemStore, error) {
	if root == "" {
		return nil, errors.New("storage: filesystem root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	if publicBaseURL == "" {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, err
		}
		publicBaseURL = "file://" + filepath.ToSlash(abs)
	}
	return &FileSystemStore{root: root, baseURL: publicBaseURL}, nil
}

func (s *FileSystemStore) Put(ctx context.Context, key string, body io.Reader, contentType string) (Object, error) {
	key, err := cleanKey(key)
	if err != nil {
		return Object{}, err
	}
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}
	full := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return Object{}, err
	}

	// Write to a sibling temp file so readers never see a partial object.
	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return Object{}, err
	}
	n, err := io.Copy(tmp, body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return Object{}, fmt.Errorf("write object %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		_ = os.Remove(tmp.Name())
		return Object{}, err
	}
	if contentType == "" {
		contentType = ContentTypeFor(key)
	}
	return Object{Key: key, URL: joinURL(s.baseURL, key), ContentType: contentType, Size: n}, nil
}

func (s *FileSystemStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	key, err := cleanKey(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(s.root, filepath.FromSlash(key)))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return f, err
}
