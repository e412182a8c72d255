// Package config provides application configuration management.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Configuration bounds to prevent misconfiguration.
const (
	minTTI = 1 * time.Second
	maxTTI = 7 * 24 * time.Hour
)

// Config holds the WebDriverMeta (§3) plus server-bind settings. Everything
// here is immutable once Load() returns, except the port allocator's own
// cursor (owned by internal/portalloc, not by Config).
type Config struct {
	// Server bind settings.
	Host string
	Port int

	// WebDriverMeta.
	WebDriverPath string
	ExtraArgs     string // raw, pre quote-stripping
	TTI           time.Duration
	UpstreamProto string
	BasePort      int

	// Ambient settings.
	LogLevel       string
	MetricsEnabled bool
	DashboardOn    bool
	OpsConfigPath  string
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		Host: getEnvString("SESSIONDRIVER_HOST", "0.0.0.0"),
		Port: getEnvInt("SESSIONDRIVER_PORT", 4444),

		WebDriverPath: getEnvString("SESSIONDRIVER_WEBDRIVER", ""),
		ExtraArgs:     getEnvString("SESSIONDRIVER_PARAMETERS", ""),
		TTI:           getEnvDuration("SESSIONDRIVER_TTI", 12*time.Hour),
		UpstreamProto: getEnvString("SESSIONDRIVER_PROTOCOL", "http://"),
		BasePort:      getEnvInt("SESSIONDRIVER_BASE_PORT", 4445),

		LogLevel:       getEnvString("SESSIONDRIVER_LOG_LEVEL", "info"),
		MetricsEnabled: getEnvBool("SESSIONDRIVER_METRICS_ENABLED", true),
		DashboardOn:    getEnvBool("SESSIONDRIVER_DASHBOARD", false),
		OpsConfigPath:  getEnvString("SESSIONDRIVER_OPS_CONFIG", ""),
	}
}

// Validate bounds-checks configuration values, warning and clamping to a
// sensible default rather than failing, for anything that isn't a hard
// startup requirement (WebDriverPath is checked separately by the caller,
// since an empty path is fatal, not a default-able mistake).
func (c *Config) Validate() {
	if c.Port < 0 || c.Port > 65535 {
		log.Warn().Int("port", c.Port).Msg("invalid bind port, using default 4444")
		c.Port = 4444
	}
	if c.BasePort < 1 || c.BasePort > 65535 {
		log.Warn().Int("base_port", c.BasePort).Msg("invalid base port, using default 4445")
		c.BasePort = 4445
	}
	if c.TTI < minTTI {
		log.Warn().Dur("tti", c.TTI).Dur("min", minTTI).Msg("TTI too short, using minimum")
		c.TTI = minTTI
	} else if c.TTI > maxTTI {
		log.Warn().Dur("tti", c.TTI).Dur("max", maxTTI).Msg("TTI too long, capping to maximum")
		c.TTI = maxTTI
	}
	if c.UpstreamProto != "http://" && c.UpstreamProto != "https://" {
		log.Warn().Str("protocol", c.UpstreamProto).Msg("unrecognized upstream protocol literal, using http://")
		c.UpstreamProto = "http://"
	}
}

// StrippedExtraArgs returns ExtraArgs with one layer of matched outer
// quoting removed, then space-split into individual arguments, per
// spec.md §9: conservative outer-quote stripping, not shell tokenization.
func (c *Config) StrippedExtraArgs() []string {
	return SplitExtraArgs(c.ExtraArgs)
}

// SplitExtraArgs strips one layer of matched outer quotes (optionally
// backslash-escaped) from raw if present, then splits the remainder on
// spaces. Empty fields from repeated spaces are dropped.
//
// Matching stays conservative, not shell tokenization: a backslash-escaped
// pair (\"...\" or \'...\') is checked before a bare pair ("..." or '...'),
// and only an exact matching pair at both ends is stripped. Anything else
// passes through untouched.
func SplitExtraArgs(raw string) []string {
	s := raw

	escaped := []string{`\"`, `\'`}
	for _, q := range escaped {
		if len(s) >= 2*len(q) && strings.HasPrefix(s, q) && strings.HasSuffix(s, q) {
			s = s[len(q) : len(s)-len(q)]
			return strings.Fields(s)
		}
	}

	bare := []byte{'"', '\''}
	for _, q := range bare {
		if len(s) >= 2 && s[0] == q && s[len(s)-1] == q {
			s = s[1 : len(s)-1]
			break
		}
	}

	return strings.Fields(s)
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		intValue, err := strconv.ParseInt(value, 10, 32)
		if err == nil {
			return int(intValue)
		}
		log.Warn().Str("key", key).Str("value", value).Int("default", defaultValue).
			Msg("invalid integer in environment variable, using default")
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		boolValue, err := strconv.ParseBool(value)
		if err == nil {
			return boolValue
		}
		log.Warn().Str("key", key).Str("value", value).Err(err).Bool("default", defaultValue).
			Msg("invalid boolean in environment variable, using default")
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err == nil {
			if duration > 0 {
				return duration
			}
			log.Warn().Str("key", key).Str("value", value).Dur("default", defaultValue).
				Msg("duration must be positive, using default")
			return defaultValue
		}
		log.Warn().Str("key", key).Str("value", value).Err(err).Dur("default", defaultValue).
			Msg("invalid duration in environment variable, using default")
	}
	return defaultValue
}
