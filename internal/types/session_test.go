package types

import (
	"strings"
	"testing"
)

func TestParseSessionIDRejectsGarbage(t *testing.T) {
	if _, err := ParseSessionID("not-a-uuid"); err != ErrMalformedSessionID {
		t.Fatalf("expected ErrMalformedSessionID, got %v", err)
	}
}

func TestParseSessionIDAccepted(t *testing.T) {
	id, err := ParseSessionID("550e8400-e29b-41d4-a716-446655440000")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id.String() != "550e8400-e29b-41d4-a716-446655440000" {
		t.Fatalf("round-trip mismatch: got %s", id.String())
	}
}

func TestExtractSessionIDSubstitutesZeroWhenAbsent(t *testing.T) {
	body := []byte(`{"value":{"capabilities":{"browserName":"firefox"}}}`)
	id, rewritten, err := ExtractSessionID(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !id.IsZero() {
		t.Fatalf("expected zero session id, got %s", id.String())
	}
	if len(rewritten) == 0 {
		t.Fatal("expected rewritten body")
	}
}

func TestExtractSessionIDPreservesCapabilities(t *testing.T) {
	body := []byte(`{"value":{"sessionId":"550e8400-e29b-41d4-a716-446655440000","capabilities":{"browserName":"firefox","extra":{"nested":true}}}}`)
	id, rewritten, err := ExtractSessionID(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id.String() != "550e8400-e29b-41d4-a716-446655440000" {
		t.Fatalf("unexpected id: %s", id.String())
	}
	if !strings.Contains(string(rewritten), `"browserName":"firefox"`) || !strings.Contains(string(rewritten), `"nested":true`) {
		t.Fatalf("capabilities were dropped on rewrite: %s", rewritten)
	}
}

func TestExtractSessionIDRejectsMissingValue(t *testing.T) {
	if _, _, err := ExtractSessionID([]byte(`{}`)); err != ErrMalformedSessionID {
		t.Fatalf("expected ErrMalformedSessionID, got %v", err)
	}
}
