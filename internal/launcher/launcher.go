// Package launcher spawns WebDriver subprocesses, per spec.md §4.2.
package launcher

import (
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/sessiondriver/sessiondriver/internal/config"
)

// Process owns a spawned WebDriver subprocess. Kill terminates it;
// dropping a Process without calling Kill leaks the child, so every
// owner (the Session Registry, or the NewSession path on failure) is
// responsible for eventually calling Kill exactly once.
type Process struct {
	cmd     *exec.Cmd
	mu      sync.Mutex
	stopped bool
}

// Launch constructs and starts a child process with arguments
// --port=<port> --host=<host> followed by the space-split tokens of
// extraArgs (quote-stripped by the caller, see config.SplitExtraArgs).
// Stdout/stderr are piped, not inherited.
func Launch(executable, host string, port int, extraArgs []string) (*Process, error) {
	args := []string{fmt.Sprintf("--port=%d", port), fmt.Sprintf("--host=%s", host)}
	args = append(args, extraArgs...)

	cmd := exec.Command(executable, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}

	log.Debug().Str("executable", executable).Strs("args", args).Msg("spawning webdriver subprocess")

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	p := &Process{cmd: cmd}
	go drain(stdout, "stdout", cmd.Process.Pid)
	go drain(stderr, "stderr", cmd.Process.Pid)
	// Reap the process when it exits so it never becomes a zombie, even
	// if Kill is never called (e.g. the backend crashes on its own).
	go func() {
		_ = cmd.Wait()
	}()

	return p, nil
}

// Kill terminates the subprocess. Safe to call multiple times and safe to
// call after the process has already exited on its own.
func (p *Process) Kill() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return nil
	}
	p.stopped = true

	if p.cmd.Process == nil {
		return nil
	}
	if err := p.cmd.Process.Kill(); err != nil {
		log.Debug().Err(err).Int("pid", p.cmd.Process.Pid).Msg("kill webdriver subprocess (may have already exited)")
		return nil
	}
	return nil
}

// PID returns the subprocess's process id, for dashboard/stats display.
func (p *Process) PID() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

func drain(r io.Reader, stream string, pid int) {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			log.Debug().Int("pid", pid).Str("stream", stream).Str("chunk", string(buf[:n])).Msg("webdriver output")
		}
		if err != nil {
			return
		}
	}
}

// ExtraArgsFromConfig is a thin convenience wrapper kept at the launcher
// boundary so callers don't need to import config just for one helper.
func ExtraArgsFromConfig(cfg *config.Config) []string {
	return cfg.StrippedExtraArgs()
}
