package forwarder

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sessiondriver/sessiondriver/internal/types"
)

func TestForwardStreamsBackendResponse(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/session" {
			t.Errorf("unexpected backend path: %s", r.URL.Path)
		}
		w.Header().Set("X-From-Backend", "yes")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"value":{"sessionId":"abc"}}`))
	}))
	defer backend.Close()

	address := strings.TrimPrefix(backend.URL, "http://")
	f := New("http://")

	req := httptest.NewRequest(http.MethodPost, "/session", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()

	if err := f.Forward(rec, req, address, false); err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if rec.Header().Get("X-From-Backend") != "yes" {
		t.Fatal("expected backend header to be copied through")
	}
	if !strings.Contains(rec.Body.String(), "sessionId") {
		t.Fatalf("expected body to be streamed through, got %s", rec.Body.String())
	}
}

func TestForwardRewritesStatusPath(t *testing.T) {
	var gotPath string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	address := strings.TrimPrefix(backend.URL, "http://")
	f := New("http://")

	req := httptest.NewRequest(http.MethodGet, "/session/abc/driver/status", nil)
	rec := httptest.NewRecorder()

	if err := f.Forward(rec, req, address, true); err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if gotPath != "/status" {
		t.Fatalf("expected rewritten path /status, got %s", gotPath)
	}
}

func TestForwardRejectsMalformedHeaderName(t *testing.T) {
	f := New("http://")
	req := httptest.NewRequest(http.MethodGet, "/session/abc", nil)
	req.Header["bad header"] = []string{"x"}

	rec := httptest.NewRecorder()
	err := f.Forward(rec, req, "127.0.0.1:1", false)
	if err == nil {
		t.Fatal("expected an error for a malformed header name")
	}
	fe, ok := err.(*types.ForwardError)
	if !ok {
		t.Fatalf("expected *types.ForwardError, got %T", err)
	}
	if fe.Unwrap() != types.ErrMalformedHeader {
		t.Fatalf("expected ErrMalformedHeader, got %v", fe.Unwrap())
	}
}

func TestForwardWrapsTransportFailureAsGatewayError(t *testing.T) {
	f := New("http://")
	req := httptest.NewRequest(http.MethodGet, "/session/abc", nil)
	rec := httptest.NewRecorder()

	// Nothing listens here; the connection must fail.
	err := f.Forward(rec, req, "127.0.0.1:1", false)
	if err == nil {
		t.Fatal("expected a transport error")
	}
	fe, ok := err.(*types.ForwardError)
	if !ok {
		t.Fatalf("expected *types.ForwardError, got %T", err)
	}
	if fe.Unwrap() != types.ErrBackendTransport {
		t.Fatalf("expected ErrBackendTransport, got %v", fe.Unwrap())
	}
}

func TestForwardRejectsUnsupportedMethod(t *testing.T) {
	f := New("http://")
	req := httptest.NewRequest(http.MethodPut, "/session/abc", nil)
	rec := httptest.NewRecorder()

	err := f.Forward(rec, req, "127.0.0.1:1", false)
	if err == nil {
		t.Fatal("expected an error for an unsupported method")
	}
	fe, ok := err.(*types.ForwardError)
	if !ok {
		t.Fatalf("expected *types.ForwardError, got %T", err)
	}
	if fe.Unwrap() != types.ErrUnsupportedVerb {
		t.Fatalf("expected ErrUnsupportedVerb, got %v", fe.Unwrap())
	}
	if rec.Code != 200 {
		t.Fatalf("expected Forward to return before writing any status, got %d", rec.Code)
	}
}
