package dispatcher

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sessiondriver/sessiondriver/internal/config"
	"github.com/sessiondriver/sessiondriver/internal/forwarder"
	"github.com/sessiondriver/sessiondriver/internal/portalloc"
	"github.com/sessiondriver/sessiondriver/internal/ready"
	"github.com/sessiondriver/sessiondriver/internal/session"
	"github.com/sessiondriver/sessiondriver/internal/stats"
	"github.com/sessiondriver/sessiondriver/internal/types"
)

func TestGlobalStatusAlwaysReady(t *testing.T) {
	d := New(&config.Config{}, session.New(time.Hour), portalloc.New("127.0.0.1", 30000), forwarder.New("http://"), ready.New(), stats.New())

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	want := `{"value":{"ready":true,"message":""}}`
	if rec.Body.String() != want {
		t.Fatalf("expected canonical status body %q, got %q", want, rec.Body.String())
	}
}

func TestDeleteUnknownSessionIs404(t *testing.T) {
	d := New(&config.Config{}, session.New(time.Hour), portalloc.New("127.0.0.1", 30100), forwarder.New("http://"), ready.New(), stats.New())

	req := httptest.NewRequest(http.MethodDelete, "/session/550e8400-e29b-41d4-a716-446655440000", nil)
	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestMalformedSessionIDIs400(t *testing.T) {
	d := New(&config.Config{}, session.New(time.Hour), portalloc.New("127.0.0.1", 30200), forwarder.New("http://"), ready.New(), stats.New())

	req := httptest.NewRequest(http.MethodDelete, "/session/not-a-uuid", nil)
	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestActivityOnLiveSessionRearmsAndForwards(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"value":{}}`))
	}))
	defer backend.Close()

	reg := session.New(time.Hour)
	id := types.ZeroSessionID
	address := backend.Listener.Addr().String()
	b, err := reg.Insert(id, address, nil)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	before := b.IdleRemaining()
	time.Sleep(50 * time.Millisecond)

	d := New(&config.Config{}, reg, portalloc.New("127.0.0.1", 30300), forwarder.New("http://"), ready.New(), stats.New())

	req := httptest.NewRequest(http.MethodGet, "/session/"+id.String()+"/element/active", nil)
	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	// Without a rearm the remaining idle time would have shrunk by the
	// 50ms slept above; a rearm restores it to (nearly) the full TTI.
	if after := b.IdleRemaining(); after < before-25*time.Millisecond {
		t.Fatalf("expected activity to rearm the idle timer, idle remaining went from %v to %v", before, after)
	}
}

func TestDeleteLiveSessionForwardsAndRemovesIt(t *testing.T) {
	var gotMethod string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"value":null}`))
	}))
	defer backend.Close()

	reg := session.New(time.Hour)
	id := types.ZeroSessionID
	address := backend.Listener.Addr().String()
	if _, err := reg.Insert(id, address, nil); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	d := New(&config.Config{}, reg, portalloc.New("127.0.0.1", 30400), forwarder.New("http://"), ready.New(), stats.New())

	req := httptest.NewRequest(http.MethodDelete, "/session/"+id.String(), nil)
	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if gotMethod != http.MethodDelete {
		t.Fatalf("expected backend to see a DELETE, got %s", gotMethod)
	}
	if _, ok := reg.Lookup(id); ok {
		t.Fatal("expected session to be removed from the registry")
	}
}
