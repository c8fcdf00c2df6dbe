package calls

import (
	"errors"
	"testing"
)

func TestStatus_TerminalAndActiveArePartitioned(t *testing.T) {
	all := []Status{StatusScheduled, StatusInitiating, StatusInProgress, StatusCompleted, StatusNoAnswer, StatusFailed}
	for _, s := range all {
		if s.IsTerminal() == s.IsActive() {
			t.Fatalf("status %q must be exactly one of terminal or active", s)
		}
		if !s.Valid() {
			t.Fatalf("status %q should be valid", s)
		}
	}
	if Status("ringing").Valid() {
		t.Fatalf("unknown status should be invalid")
	}
}

func TestIsProviderHosted(t *testing.T) {
	hosts := []string{"recordings.voice.example"}
	cases := map[string]bool{
		"https://recordings.voice.example/abc.wav":    true,
		"https://eu.recordings.voice.example/abc.wav": true,
		"https://bucket.s3.amazonaws.com/abc.wav":     false,
		"https://evilrecordings.voice.example/x":      false,
		"not a url":                                   false,
	}
	for u, want := range cases {
		if got := IsProviderHosted(u, hosts); got != want {
			t.Fatalf("IsProviderHosted(%q) = %v, want %v", u, got, want)
		}
	}
}

func TestSetPermanentRecording_NeverAcceptsProviderURL(t *testing.T) {
	hosts := []string{"recordings.voice.example"}
	c := Call{RecordingURL: "https://recordings.voice.example/a.wav"}
	if !c.NeedsDurableCopy() {
		t.Fatalf("expected durable copy to be needed")
	}

	if err := c.SetPermanentRecording("https://recordings.voice.example/a.wav", "", hosts); !errors.Is(err, ErrExpiringRecording) {
		t.Fatalf("expected ErrExpiringRecording, got %v", err)
	}
	if c.PermanentRecordingURL != "" {
		t.Fatalf("permanent url must stay unset")
	}

	if err := c.SetPermanentRecording("https://cdn.carecall.example/recordings/a.wav", "recordings/a.wav", hosts); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if c.NeedsDurableCopy() {
		t.Fatalf("expected no further copy after durable url is set")
	}
}
