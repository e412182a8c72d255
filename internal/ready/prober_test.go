package ready

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestWaitReturnsOnFirstReady(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/status" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	p := New()
	p.PollInterval = time.Millisecond
	exited := false
	p.Exit = func(int) { exited = true }

	p.Wait("http://", strings.TrimPrefix(backend.URL, "http://"))
	if exited {
		t.Fatal("expected Exit not to be called when backend is ready")
	}
}

func TestWaitAbortsAfterThreshold(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer backend.Close()

	p := New()
	p.PollInterval = time.Microsecond
	exitCode := -1
	p.Exit = func(code int) { exitCode = code }

	p.Wait("http://", strings.TrimPrefix(backend.URL, "http://"))
	if exitCode != 1 {
		t.Fatalf("expected Exit(1) after exhausting attempts, got exitCode=%d", exitCode)
	}
}
