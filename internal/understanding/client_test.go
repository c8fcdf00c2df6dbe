package understanding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

func TestClient_ProposeSegments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req proposeSegmentsRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if r.URL.Path != "/v1/segments/propose" || req.AudioDurationSeconds != 120 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"segments":[{"start_seconds":3.5,"end_seconds":40,"title":"The mill","category":"childhood","quality_score":0.8,"tone":"warm"}]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "k"})
	got, err := c.ProposeSegments(context.Background(), "Resident: I grew up by the mill.", 120)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, 3.5, got[0].StartSeconds)
	require.Equal(t, "childhood", got[0].Category)
}

func TestClient_ExtractMemories(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"memories":[{"category":"family","key":"daughter","value":"Mary","confidence":0.9}]}`))
	}))
	defer srv.Close()

	got, err := NewClient(Config{BaseURL: srv.URL}).ExtractMemories(context.Background(), "r1", "transcript")
	require.NoError(t, err)
	require.Equal(t, []MemoryFact{{Category: "family", Key: "daughter", Value: "Mary", Confidence: 0.9}}, got)
}

func TestClient_BreakerOpensAfterRepeatedFailures(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	for i := 0; i < 5; i++ {
		_, err := c.ProposeSegments(context.Background(), "t", 10)
		require.True(t, errors.Is(err, ErrUnavailable), "got %v", err)
	}
	before := atomic.LoadInt32(&hits)

	_, err := c.ProposeSegments(context.Background(), "t", 10)
	require.True(t, errors.Is(err, ErrUnavailable))
	require.Equal(t, before, atomic.LoadInt32(&hits), "open breaker must not reach the service")
}

func TestTruncate_KeepsRunesWhole(t *testing.T) {
	body := `{"error":"modèle surchargé ✓"}`
	for n := 0; n <= len(body); n++ {
		require.True(t, utf8.ValidString(truncate(body, n)), "n=%d", n)
	}
	require.Equal(t, `{"error":"modè`, truncate(body, 14))
}
