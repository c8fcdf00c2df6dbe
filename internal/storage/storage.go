// Package storage persists recordings and clips in durable object storage.
package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
)

var (
	ErrNotFound   = errors.New("storage: object not found")
	ErrInvalidKey = errors.New("storage: invalid key")
)

// Object is a stored blob and the URL it is served from.
type Object struct {
	Key         string `json:"key"`
	URL         string `json:"url"`
	ContentType string `json:"content_type,omitempty"`
	Size        int64  `json:"size"`
}

// Store is the put/get contract shared by every backend.
type Store interface {
	Put(ctx context.Context, key string, body io.Reader, contentType string) (Object, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// RecordingKey is where the durable copy of a call recording lives.
func RecordingKey(residentID, callID, ext string) string {
	if ext == "" {
		ext = ".wav"
	}
	return path.Join("recordings", residentID, callID+ext)
}

// ClipKey is where a segment's clip lives.
func ClipKey(residentID, segmentID string) string {
	return path.Join("clips", residentID, segmentID+".mp3")
}

func cleanKey(key string) (string, error) {
	key = strings.TrimLeft(path.Clean("/"+key), "/")
	if key == "" || key == "." {
		return "", ErrInvalidKey
	}
	return key, nil
}

// ContentTypeFor guesses the media type from the key extension.
func ContentTypeFor(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".m4a":
		return "audio/mp4"
	case ".ogg":
		return "audio/ogg"
	default:
		return "application/octet-stream"
	}
}

func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + key
}
