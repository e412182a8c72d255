// Package portalloc hands out free local TCP ports for spawned WebDriver
// backends, per spec.md §4.1.
package portalloc

import (
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/sessiondriver/sessiondriver/internal/types"
)

// Allocator maintains a monotonically non-decreasing port cursor. Allocate
// is serialized so two concurrent allocations never return the same port.
//
// There is a necessary TOCTOU window between releasing the probe listener
// and the subprocess binding the port itself. On collision the subprocess
// fails readiness and the containing NewSession path fails.
type Allocator struct {
	mu     sync.Mutex
	host   string
	cursor int
	giveUp int // stop after this many consecutive bind failures
}

// New creates an Allocator starting at base, probing bindability against
// host.
func New(host string, base int) *Allocator {
	return &Allocator{host: host, cursor: base, giveUp: 1000}
}

// Allocate probes (host, cursor), incrementing cursor on every attempt
// (successful or not), and returns the first port that bound successfully.
func (a *Allocator) Allocate() (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for attempts := 0; attempts < a.giveUp; attempts++ {
		port := a.cursor
		a.cursor++

		ln, err := net.Listen("tcp", net.JoinHostPort(a.host, strconv.Itoa(port)))
		if err != nil {
			continue
		}
		if cerr := ln.Close(); cerr != nil {
			return 0, fmt.Errorf("releasing probe listener on port %d: %w", port, cerr)
		}
		return port, nil
	}
	return 0, types.ErrPortExhausted
}
