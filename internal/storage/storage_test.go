package storage

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileSystemStore_PutGet(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileSystemStore(t.TempDir(), "https://media.example")
	require.NoError(t, err)

	obj, err := s.Put(ctx, ClipKey("r1", "s1"), strings.NewReader("mp3 bytes"), "")
	require.NoError(t, err)
	require.Equal(t, "clips/r1/s1.mp3", obj.Key)
	require.Equal(t, "https://media.example/clips/r1/s1.mp3", obj.URL)
	require.Equal(t, "audio/mpeg", obj.ContentType)

	rc, err := s.Get(ctx, obj.Key)
	require.NoError(t, err)
	defer rc.Close()
	b, _ := io.ReadAll(rc)
	require.Equal(t, "mp3 bytes", string(b))

	_, err = s.Get(ctx, "clips/r1/missing.mp3")
	require.True(t, errors.Is(err, ErrNotFound))
}

func TestCleanKey_StaysInsideRoot(t *testing.T) {
	k, err := cleanKey("../../etc/passwd")
	require.NoError(t, err)
	require.Equal(t, "etc/passwd", k)

	_, err = cleanKey("/")
	require.ErrorIs(t, err, ErrInvalidKey)
}

func TestCopier_CopyFromURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/gone.wav" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte("RIFF...."))
	}))
	defer srv.Close()

	store, err := NewFileSystemStore(t.TempDir(), "https://media.example")
	require.NoError(t, err)
	c := Copier{Fetcher: NewFetcher(0), Store: store, TempDir: t.TempDir()}

	obj, err := c.CopyFromURL(context.Background(), srv.URL+"/rec.wav", RecordingKey("r1", "c1", ".wav"))
	require.NoError(t, err)
	require.Equal(t, "recordings/r1/c1.wav", obj.Key)
	require.EqualValues(t, 8, obj.Size)

	_, err = c.CopyFromURL(context.Background(), srv.URL+"/gone.wav", RecordingKey("r1", "c2", ".wav"))
	require.Error(t, err)
}
