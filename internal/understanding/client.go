// Package understanding is the client for the external language-understanding service.
// It turns transcripts into memory facts and story segment proposals.
package understanding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"
)

var (
	ErrUnavailable = errors.New("understanding: service unavailable")
	ErrBadResponse = errors.New("understanding: malformed response")
)

type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// MemoryFact is one durable fact the service extracted from a transcript.
type MemoryFact struct {
	Category   string  `json:"category"`
	Key        string  `json:"key"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

// SegmentProposal is a candidate story boundary. Times are seconds into the call audio.
type SegmentProposal struct {
	StartSeconds float64  `json:"start_seconds"`
	EndSeconds   float64  `json:"end_seconds"`
	Title        string   `json:"title"`
	Transcript   string   `json:"transcript"`
	Category     string   `json:"category"`
	QualityScore float64  `json:"quality_score"`
	Tone         string   `json:"tone"`
	Flags        []string `json:"flags,omitempty"`
}

type extractMemoriesRequest struct {
	ResidentID string `json:"resident_id"`
	Transcript string `json:"transcript"`
}

type extractMemoriesResponse struct {
	Memories []MemoryFact `json:"memories"`
}

type proposeSegmentsRequest struct {
	Transcript           string  `json:"transcript"`
	AudioDurationSeconds float64 `json:"audio_duration_seconds"`
}

type proposeSegmentsResponse struct {
	Segments []SegmentProposal `json:"segments"`
}

// Client calls the service over HTTP behind a circuit breaker so a stalled
// service fails pipeline jobs fast instead of holding workers.
type Client struct {
	http *resty.Client
	cb   *gobreaker.CircuitBreaker
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(time.Second).
		SetRetryMaxWaitTime(5*time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey)
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "understanding",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
	})
	return &Client{http: client, cb: cb}
}

// ExtractMemories asks for durable facts about the resident.
func (c *Client) ExtractMemories(ctx context.Context, residentID, transcript string) ([]MemoryFact, error) {
	var out extractMemoriesResponse
	if err := c.post(ctx, "/v1/memories/extract", extractMemoriesRequest{ResidentID: residentID, Transcript: transcript}, &out); err != nil {
		return nil, err
	}
	return out.Memories, nil
}

// ProposeSegments asks for story boundaries. The duration is an upper bound the service
// is told about, but callers must still clamp what comes back.
func (c *Client) ProposeSegments(ctx context.Context, transcript string, audioDurationSeconds float64) ([]SegmentProposal, error) {
	var out proposeSegmentsResponse
	req := proposeSegmentsRequest{Transcript: transcript, AudioDurationSeconds: audioDurationSeconds}
	if err := c.post(ctx, "/v1/segments/propose", req, &out); err != nil {
		return nil, err
	}
	return out.Segments, nil
}

func (c *Client) post(ctx context.Context, path string, body, result any) error {
	_, err := c.cb.Execute(func() (interface{}, error) {
		resp, err := c.http.R().
			SetContext(ctx).
			SetBody(body).
			SetResult(result).
			Post(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if resp.StatusCode() >= 500 {
			return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode())
		}
		if resp.IsError() {
			return nil, fmt.Errorf("%w: status %d: %s", ErrBadResponse, resp.StatusCode(), truncate(resp.String(), 200))
		}
		return nil, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// truncate keeps at most n runes of s.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
