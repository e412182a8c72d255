// Package dispatcher implements the request router (spec.md §4.7): the
// single HTTP entrypoint that demultiplexes onto the Port Allocator,
// Launcher, Readiness Prober, Forwarder, and Session Registry.
package dispatcher

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sessiondriver/sessiondriver/internal/config"
	"github.com/sessiondriver/sessiondriver/internal/forwarder"
	"github.com/sessiondriver/sessiondriver/internal/launcher"
	"github.com/sessiondriver/sessiondriver/internal/metrics"
	"github.com/sessiondriver/sessiondriver/internal/portalloc"
	"github.com/sessiondriver/sessiondriver/internal/ready"
	"github.com/sessiondriver/sessiondriver/internal/session"
	"github.com/sessiondriver/sessiondriver/internal/stats"
	"github.com/sessiondriver/sessiondriver/internal/types"
)

// Dispatcher wires the whole request lifecycle together, per spec.md's
// five-case request state machine.
type Dispatcher struct {
	Config    *config.Config
	Registry  *session.Registry
	Ports     *portalloc.Allocator
	Forwarder *forwarder.Forwarder
	Prober    *ready.Prober
	Stats     *stats.Tracker
}

// New wires a Dispatcher from its collaborators.
func New(cfg *config.Config, reg *session.Registry, ports *portalloc.Allocator, fwd *forwarder.Forwarder, prober *ready.Prober, st *stats.Tracker) *Dispatcher {
	return &Dispatcher{Config: cfg, Registry: reg, Ports: ports, Forwarder: fwd, Prober: prober, Stats: st}
}

// ServeHTTP implements http.Handler, routing onto the five cases of
// spec.md §4.7.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSuffix(r.URL.Path, "/")

	if path == "/status" && (r.Method == http.MethodGet || r.Method == http.MethodHead) {
		d.globalStatus(w, r)
		return
	}

	if path == "/session" && r.Method == http.MethodPost {
		d.newSession(w, r)
		return
	}

	segments := strings.Split(strings.TrimPrefix(path, "/"), "/")
	if len(segments) >= 2 && segments[0] == "session" {
		id, err := types.ParseSessionID(segments[1])
		if err != nil {
			writeError(w, err)
			return
		}

		switch {
		case len(segments) == 2 && r.Method == http.MethodDelete:
			d.deleteSession(w, r, id)
			return
		case len(segments) == 4 && segments[2] == "driver" && segments[3] == "status" && r.Method == http.MethodGet:
			d.driverStatus(w, r, id)
			return
		default:
			d.activity(w, r, id)
			return
		}
	}

	http.NotFound(w, r)
}

// globalStatusBody is the canonical, invariant global status response: any
// number of calls must return it byte-for-byte, so it carries no
// request-varying state (not even the current session count).
const globalStatusBody = `{"value":{"ready":true,"message":""}}`

// globalStatus answers liveness for the proxy itself, not any particular
// backend. It never touches the registry or any subprocess.
func (d *Dispatcher) globalStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write([]byte(globalStatusBody))
}

// newSession allocates a port, spawns a backend, awaits readiness,
// forwards the client's POST /session body, then registers the resulting
// session id keyed to the spawned backend's address (spec.md §4.7 case 2).
func (d *Dispatcher) newSession(w http.ResponseWriter, r *http.Request) {
	port, err := d.Ports.Allocate()
	if err != nil {
		writeError(w, err)
		return
	}
	metrics.PortsAllocatedTotal.Inc()

	spawnStart := time.Now()
	proc, err := launcher.Launch(d.Config.WebDriverPath, d.Config.Host, port, d.Config.StrippedExtraArgs())
	if err != nil {
		writeError(w, types.ErrSpawnFailed)
		return
	}
	metrics.SpawnDuration.Observe(time.Since(spawnStart).Seconds())

	address := addr(d.Config.Host, port)

	readyStart := time.Now()
	d.Prober.Wait(d.Config.UpstreamProto, address)
	metrics.ReadinessWaitDuration.Observe(time.Since(readyStart).Seconds())

	rec := httptest.NewRecorder()
	forwardStart := time.Now()
	if err := d.Forwarder.Forward(rec, r, address, false); err != nil {
		metrics.ForwardDuration.WithLabelValues(outcomeFor(err)).Observe(time.Since(forwardStart).Seconds())
		if killErr := proc.Kill(); killErr != nil {
			log.Warn().Err(killErr).Msg("killing subprocess after failed new-session forward")
		}
		writeError(w, err)
		return
	}
	metrics.ForwardDuration.WithLabelValues("ok").Observe(time.Since(forwardStart).Seconds())

	id, rewritten, err := types.ExtractSessionID(rec.Body.Bytes())
	if err != nil {
		if killErr := proc.Kill(); killErr != nil {
			log.Warn().Err(killErr).Msg("killing subprocess after unparseable new-session response")
		}
		writeError(w, types.NewBadURLError(err))
		return
	}

	if _, err := d.Registry.Insert(id, address, proc); err != nil {
		if killErr := proc.Kill(); killErr != nil {
			log.Warn().Err(killErr).Msg("killing subprocess after registry insert failure")
		}
		writeError(w, err)
		return
	}
	metrics.SessionsCreatedTotal.Inc()
	metrics.SessionsActive.Set(float64(d.Registry.Len()))

	for key, values := range rec.Header() {
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(rewritten)))
	w.WriteHeader(rec.Code)
	_, _ = w.Write(rewritten)
}

// deleteSession removes the registry entry first, then forwards the
// DELETE to the still-live backend and returns its response, only
// killing the subprocess once that forward has completed (spec.md §4.7
// case 3). Falls through to 404 if the session was already absent.
func (d *Dispatcher) deleteSession(w http.ResponseWriter, r *http.Request, id types.SessionID) {
	b, ok := d.Registry.Remove(id)
	if !ok {
		writeError(w, types.ErrSessionNotFound)
		return
	}
	defer func() {
		if err := b.Close(); err != nil {
			log.Warn().Err(err).Str("session_id", id.String()).Msg("error closing session on delete")
		}
	}()

	metrics.SessionsDestroyedTotal.WithLabelValues("deleted").Inc()
	metrics.SessionsActive.Set(float64(d.Registry.Len()))
	d.Stats.Forget(id)

	start := time.Now()
	err := d.Forwarder.Forward(w, r, b.Address, false)
	metrics.ForwardDuration.WithLabelValues(outcomeFor(err)).Observe(time.Since(start).Seconds())
	if err != nil {
		writeError(w, err)
	}
}

// driverStatus rearms the session's idle timer and forwards to the
// backend's own /status, regardless of the inbound path shape (spec.md
// §4.7 case 4).
func (d *Dispatcher) driverStatus(w http.ResponseWriter, r *http.Request, id types.SessionID) {
	d.forwardActive(w, r, id, true)
}

// activity rearms the session's idle timer and forwards the request
// verbatim (spec.md §4.7 case 5).
func (d *Dispatcher) activity(w http.ResponseWriter, r *http.Request, id types.SessionID) {
	d.forwardActive(w, r, id, false)
}

func (d *Dispatcher) forwardActive(w http.ResponseWriter, r *http.Request, id types.SessionID, statusRequest bool) {
	b, ok := d.Registry.Rearm(id)
	if !ok {
		writeError(w, types.ErrSessionNotFound)
		return
	}

	start := time.Now()
	err := d.Forwarder.Forward(w, r, b.Address, statusRequest)
	metrics.ForwardDuration.WithLabelValues(outcomeFor(err)).Observe(time.Since(start).Seconds())
	if err != nil {
		writeError(w, err)
		return
	}
	d.Stats.Record(id, time.Since(start))
}

func outcomeFor(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, types.ErrBackendTransport):
		return "gateway_error"
	case errors.Is(err, types.ErrMalformedHeader):
		return "bad_request"
	default:
		return "internal_error"
	}
}

// writeError maps an error to the HTTP status spec.md §4.8 assigns it and
// writes a minimal JSON body. Readiness-timeout is deliberately absent
// here: that failure mode aborts the process rather than producing a
// response (spec.md §4.3).
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, types.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, types.ErrMalformedSessionID),
		errors.Is(err, types.ErrMalformedHeader),
		errors.Is(err, types.ErrSessionAlreadyExists),
		errors.Is(err, types.ErrDuplicateAddress):
		status = http.StatusBadRequest
	case errors.Is(err, types.ErrBackendTransport):
		status = http.StatusBadGateway
	case errors.Is(err, types.ErrUnparseableURL),
		errors.Is(err, types.ErrSpawnFailed),
		errors.Is(err, types.ErrPortExhausted):
		status = http.StatusInternalServerError
	}

	log.Debug().Err(err).Int("status", status).Msg("dispatch error")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"value": map[string]any{
			"error":   http.StatusText(status),
			"message": err.Error(),
		},
	})
}

func addr(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
