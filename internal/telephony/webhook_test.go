package telephony

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"carecall-platform/internal/calls"
)

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"event":"call_started","call":{"call_id":"p1"}}`)
	sig := Sign("whsec", body)

	if err := VerifySignature("whsec", body, sig); err != nil {
		t.Fatalf("expected valid signature, got %v", err)
	}
	if err := VerifySignature("whsec", body, "sha256="+sig); err != nil {
		t.Fatalf("expected prefixed signature to verify, got %v", err)
	}

	tampered := append([]byte(nil), body...)
	tampered[len(tampered)-2] = ' '
	for name, tc := range map[string]struct {
		secret, header string
		body           []byte
	}{
		"tampered body": {"whsec", sig, tampered},
		"wrong secret":  {"other", sig, body},
		"missing":       {"whsec", "", body},
		"not hex":       {"whsec", "zz", body},
		"empty secret":  {"", Sign("", body), body},
	} {
		if err := VerifySignature(tc.secret, tc.body, tc.header); !errors.Is(err, ErrInvalidSignature) {
			t.Fatalf("%s: expected ErrInvalidSignature, got %v", name, err)
		}
	}
}

func TestNormalizeTranscript_FlattensTurns(t *testing.T) {
	raw, plain := NormalizeTranscript(WebhookCall{
		Transcript: "ignored",
		TranscriptObject: []TranscriptTurn{
			{Role: "agent", Content: "Good morning, Ada!"},
			{Role: "user", Content: " Morning, dear. "},
			{Role: "user", Content: ""},
		},
	})
	want := "Agent: Good morning, Ada!\nResident: Morning, dear."
	if plain != want {
		t.Fatalf("unexpected transcript:\n%s", plain)
	}
	if !strings.HasPrefix(raw, `[{"role":"agent"`) {
		t.Fatalf("expected raw turn list, got %s", raw)
	}

	raw, plain = NormalizeTranscript(WebhookCall{Transcript: " Agent: hi "})
	if raw != "Agent: hi" || plain != "Agent: hi" {
		t.Fatalf("unexpected flat transcript: %q %q", raw, plain)
	}
}

func TestTerminalStatus(t *testing.T) {
	cases := map[string]calls.Status{
		"":                    calls.StatusCompleted,
		"user_hangup":         calls.StatusCompleted,
		"agent_hangup":        calls.StatusCompleted,
		"dial_no_answer":      calls.StatusNoAnswer,
		"voicemail_reached":   calls.StatusNoAnswer,
		"dial_busy":           calls.StatusNoAnswer,
		"error_llm_websocket": calls.StatusFailed,
		"dial_failed":         calls.StatusFailed,
		"invalid_destination": calls.StatusFailed,
	}
	for reason, want := range cases {
		if got := TerminalStatus(reason); got != want {
			t.Fatalf("TerminalStatus(%q) = %s, want %s", reason, got, want)
		}
	}
}

func TestParseWebhook(t *testing.T) {
	ev, err := ParseWebhook([]byte(`{"event":"call_ended","call":{"call_id":"p1","metadata":{"internalCallId":"c1"},"duration_ms":61000},"timestamp":1772445600000}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ev.Event != EventCallEnded || ev.Call.InternalCallID() != "c1" || ev.Call.DurationMs != 61000 {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if _, err := ParseWebhook([]byte(`{"event":`)); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}
}

func TestSpeakerLabel(t *testing.T) {
	cases := map[string]string{
		"assistant":  "Agent",
		" USER ":     "Resident",
		"":           "Unknown",
		"nurse":      "Nurse",
		"éducatrice": "Éducatrice",
		"通訳":         "通訳",
	}
	for role, want := range cases {
		if got := speakerLabel(role); got != want {
			t.Errorf("speakerLabel(%q) = %q, want %q", role, got, want)
		}
		if !utf8.ValidString(speakerLabel(role)) {
			t.Errorf("speakerLabel(%q) is not valid UTF-8", role)
		}
	}
}
