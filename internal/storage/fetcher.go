package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/go-resty/resty/v2"
)

// Fetcher downloads provider-hosted media to local files.
type Fetcher struct {
	http *resty.Client
}

func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(time.Second).
		SetRetryMaxWaitTime(5 * time.Second)
	return &Fetcher{http: client}
}

// Download writes the body at rawURL to dst.
func (f *Fetcher) Download(ctx context.Context, rawURL, dst string) error {
	resp, err := f.http.R().SetContext(ctx).SetOutput(dst).Get(rawURL)
	if err != nil {
		return fmt.Errorf("download %s: %w", rawURL, err)
	}
	if resp.IsError() {
		_ = os.Remove(dst)
		return fmt.Errorf("download %s: status %d", rawURL, resp.StatusCode())
	}
	return nil
}

// Copier mirrors a remote recording into a Store.
type Copier struct {
	Fetcher *Fetcher
	Store   Store
	// TempDir defaults to the OS temp dir.
	TempDir string
}

// CopyFromURL downloads rawURL and uploads it under key. The temp file is always removed.
func (c Copier) CopyFromURL(ctx context.Context, rawURL, key string) (Object, error) {
	if c.Fetcher == nil || c.Store == nil {
		return Object{}, fmt.Errorf("storage: copier not configured")
	}
	tmp, err := os.CreateTemp(c.TempDir, "recording-*"+path.Ext(key))
	if err != nil {
		return Object{}, err
	}
	name := tmp.Name()
	_ = tmp.Close()
	defer os.Remove(name)

	if err := c.Fetcher.Download(ctx, rawURL, name); err != nil {
		return Object{}, err
	}
	f, err := os.Open(name)
	if err != nil {
		return Object{}, err
	}
	defer f.Close()

	return c.Store.Put(ctx, key, f, ContentTypeFor(key))
}
