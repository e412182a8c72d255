// Package ready implements the Readiness Prober (spec.md §4.3): polling a
// freshly spawned backend's /status until it answers 2xx, or giving up.
package ready

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog/log"
)

// Default cadence/thresholds from spec.md §4.3.
const (
	DefaultPollInterval = 125 * time.Millisecond
	warnAttempt1        = 40
	warnAttempt2        = 80
	warnAttempt3        = 120
	abortAttempt        = 480
)

// Prober polls a backend's /status endpoint until ready. Exit is the
// process-abort hook; tests inject a non-fatal stand-in to observe the
// abort decision instead of killing the test binary.
type Prober struct {
	Client       *http.Client
	PollInterval time.Duration
	Exit         func(code int)
}

// New returns a Prober with the default client, cadence, and an Exit hook
// that calls os.Exit(1), matching spec.md's "fails loudly rather than
// leaking zombies" rationale for a WebDriver that never comes up.
func New() *Prober {
	return &Prober{
		Client:       &http.Client{Timeout: 5 * time.Second},
		PollInterval: DefaultPollInterval,
		Exit:         os.Exit,
	}
}

// Wait polls <protocol><address>/status until a 2xx response, emitting
// advisory warnings at attempts 40/80/120 and aborting the process (via
// Exit) at attempt 480, per spec.md §4.3.
func (p *Prober) Wait(protocol, address string) {
	url := fmt.Sprintf("%s%s/status", protocol, address)

	attempt := 0
	for {
		attempt++

		resp, err := p.Client.Get(url)
		if err == nil {
			closeBody(resp)
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				log.Debug().Str("address", address).Int("attempt", attempt).Msg("webdriver ready")
				return
			}
		}

		switch attempt {
		case warnAttempt1, warnAttempt2, warnAttempt3:
			fmt.Fprintln(os.Stderr, "There might be an issue with the WebDriver (Please check your configuration)")
			log.Warn().Str("address", address).Int("attempt", attempt).Msg("webdriver not ready yet")
		case abortAttempt:
			fmt.Fprintln(os.Stderr, "There might be an issue with the WebDriver (Please check your configuration)")
			log.Error().Str("address", address).Int("attempt", attempt).
				Msg("webdriver never became ready, aborting process")
			p.Exit(1)
			return
		}

		time.Sleep(p.PollInterval)
	}
}

func closeBody(resp *http.Response) {
	if resp.Body != nil {
		_ = resp.Body.Close()
	}
}
