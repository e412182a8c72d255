package config

import (
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// OpsConfig carries the small set of operational knobs that are safe to
// change while sessiondriver is running, without touching WebDriverMeta
// (which stays immutable after start per spec.md §3). It is optional:
// when no path is configured, defaults apply and no file is watched.
type OpsConfig struct {
	LogLevel            string        `yaml:"log_level"`
	DashboardRefresh    time.Duration `yaml:"-"`
	DashboardRefreshRaw string        `yaml:"dashboard_refresh"`
}

// OpsConfigWatcher hot-reloads an OpsConfig file and exposes a thread-safe
// snapshot via an fsnotify-driven reload loop.
type OpsConfigWatcher struct {
	mu       sync.RWMutex
	current  OpsConfig
	watcher  *fsnotify.Watcher
	stopCh   chan struct{}
	onReload func(OpsConfig)
}

// OnReload registers a callback invoked with the newly parsed OpsConfig
// every time the watched file is (re)loaded, including the initial load
// performed by WatchOpsConfig. Used to apply hot-reloadable knobs such as
// the log level without the caller having to poll Snapshot itself.
func (w *OpsConfigWatcher) OnReload(fn func(OpsConfig)) {
	w.mu.Lock()
	w.onReload = fn
	current := w.current
	w.mu.Unlock()
	if fn != nil {
		fn(current)
	}
}

// defaultOpsConfig is used whenever the file is absent, unreadable, or
// unset.
func defaultOpsConfig() OpsConfig {
	return OpsConfig{LogLevel: "info", DashboardRefresh: time.Second}
}

// WatchOpsConfig loads path (if non-empty) and begins watching it for
// changes. If path is empty, a watcher holding only defaults is returned
// and no filesystem watch is installed.
func WatchOpsConfig(path string) (*OpsConfigWatcher, error) {
	w := &OpsConfigWatcher{current: defaultOpsConfig(), stopCh: make(chan struct{})}
	if path == "" {
		return w, nil
	}

	w.reload(path)

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(path); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	w.watcher = fsw

	go w.watchLoop(path)
	return w, nil
}

func (w *OpsConfigWatcher) watchLoop(path string) {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				w.reload(path)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("ops config watcher error")
		case <-w.stopCh:
			return
		}
	}
}

func (w *OpsConfigWatcher) reload(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("could not read ops config, keeping previous values")
		return
	}

	parsed := defaultOpsConfig()
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("could not parse ops config, keeping previous values")
		return
	}
	if parsed.DashboardRefreshRaw != "" {
		d, err := time.ParseDuration(parsed.DashboardRefreshRaw)
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("invalid dashboard_refresh, keeping previous value")
			parsed.DashboardRefresh = w.Snapshot().DashboardRefresh
		} else {
			parsed.DashboardRefresh = d
		}
	} else {
		parsed.DashboardRefresh = defaultOpsConfig().DashboardRefresh
	}
	if parsed.LogLevel == "" {
		parsed.LogLevel = defaultOpsConfig().LogLevel
	}

	w.mu.Lock()
	w.current = parsed
	fn := w.onReload
	w.mu.Unlock()

	log.Info().Str("log_level", parsed.LogLevel).Dur("dashboard_refresh", parsed.DashboardRefresh).
		Msg("ops config reloaded")

	if fn != nil {
		fn(parsed)
	}
}

// Snapshot returns the current ops config.
func (w *OpsConfigWatcher) Snapshot() OpsConfig {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Close stops the filesystem watch, if any.
func (w *OpsConfigWatcher) Close() error {
	close(w.stopCh)
	if w.watcher != nil {
		return w.watcher.Close()
	}
	return nil
}
