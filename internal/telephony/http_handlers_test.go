package telephony

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

type recordingProcessor struct {
	events  []WebhookEvent
	outcome Outcome
	err     error
}

func (p *recordingProcessor) Process(_ context.Context, ev WebhookEvent) (Outcome, error) {
	p.events = append(p.events, ev)
	return p.outcome, p.err
}

func serve(t *testing.T, h WebhookHandler, body []byte, sig string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/webhooks/voice", h.Handle)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/voice", bytes.NewReader(body))
	if sig != "" {
		req.Header.Set(SignatureHeader, sig)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestWebhookHandler_RejectsBadSignatureWithoutProcessing(t *testing.T) {
	p := &recordingProcessor{}
	body := []byte(`{"event":"call_ended","call":{"call_id":"p1"}}`)

	w := serve(t, WebhookHandler{Secret: "whsec", Processor: p}, body, Sign("wrong", body))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	w = serve(t, WebhookHandler{Secret: "whsec", Processor: p}, body, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unsigned body, got %d", w.Code)
	}
	if len(p.events) != 0 {
		t.Fatalf("processor must not run on rejected signatures")
	}
}

func TestWebhookHandler_MalformedJSON(t *testing.T) {
	p := &recordingProcessor{}
	body := []byte(`{"event":"call_ended",`)
	w := serve(t, WebhookHandler{Secret: "whsec", Processor: p}, body, Sign("whsec", body))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if len(p.events) != 0 {
		t.Fatalf("processor must not run on malformed bodies")
	}
}

func TestWebhookHandler_AcknowledgesEvenOnProcessingError(t *testing.T) {
	p := &recordingProcessor{outcome: Outcome{Warning: "call not found"}, err: errors.New("db down")}
	body := []byte(`{"event":"call_started","call":{"call_id":"p1"}}`)

	w := serve(t, WebhookHandler{Secret: "whsec", Processor: p}, body, Sign("whsec", body))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["received"] != true || resp["warning"] != "call not found" || resp["error"] == nil {
		t.Fatalf("unexpected response: %v", resp)
	}
	if len(p.events) != 1 || p.events[0].Call.CallID != "p1" {
		t.Fatalf("expected one processed event, got %+v", p.events)
	}
}
