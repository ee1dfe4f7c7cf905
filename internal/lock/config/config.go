// Package config holds the runtime settings of the synchronization core.
//
// Settings come from three places, later ones winning: built-in defaults,
// the SYNCORE_OPTIONS environment variable, and functional options passed to
// lock.Init. SYNCORE_OPTIONS uses the same shape as GORACE: a space separated
// list of key=value pairs, for example
//
//	SYNCORE_OPTIONS="log_level=debug track_owners=1 max_queue=1024"
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// EnvVar is the environment variable read by FromEnv.
const EnvVar = "SYNCORE_OPTIONS"

// ErrUnknownKey is wrapped by Parse for keys it does not recognize.
var ErrUnknownKey = errors.New("unknown option")

// Config is the complete runtime configuration.
type Config struct {
	LogLevel  logrus.Level
	LogFormat string // "text" or "json"

	// TrackOwners records the call stack of every acquisition.
	TrackOwners bool

	// MaxQueue bounds each wait queue; 0 means unbounded.
	MaxQueue int

	// MaxHeld bounds each thread's held-locks set; 0 means unbounded.
	MaxHeld int

	// SpinLimit is the number of yields a thin-lock contender makes before
	// requesting inflation.
	SpinLimit int

	// ReclaimInterval is the number of new thread contexts between scans for
	// dead goroutines.
	ReclaimInterval int
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LogLevel:        logrus.InfoLevel,
		LogFormat:       "text",
		SpinLimit:       64,
		ReclaimInterval: 1000,
	}
}

// Option modifies a Config.
type Option func(*Config)

// WithLogLevel sets the log level.
func WithLogLevel(level logrus.Level) Option {
	return func(c *Config) { c.LogLevel = level }
}

// WithJSONLogs switches the log formatter to JSON.
func WithJSONLogs() Option {
	return func(c *Config) { c.LogFormat = "json" }
}

// WithOwnerTracking enables or disables acquisition-site recording.
func WithOwnerTracking(on bool) Option {
	return func(c *Config) { c.TrackOwners = on }
}

// WithMaxQueue bounds every wait queue.
func WithMaxQueue(n int) Option {
	return func(c *Config) { c.MaxQueue = n }
}

// WithMaxHeld bounds every held-locks set.
func WithMaxHeld(n int) Option {
	return func(c *Config) { c.MaxHeld = n }
}

// WithSpinLimit sets the thin-lock spin limit.
func WithSpinLimit(n int) Option {
	return func(c *Config) { c.SpinLimit = n }
}

// WithReclaimInterval sets how often dead goroutines are scanned for.
func WithReclaimInterval(n int) Option {
	return func(c *Config) { c.ReclaimInterval = n }
}

// Load builds a configuration from the defaults, the environment and opts.
func Load(opts ...Option) (Config, error) {
	c := Default()
	if err := c.Parse(os.Getenv(EnvVar)); err != nil {
		return Default(), fmt.Errorf("%s: %w", EnvVar, err)
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c, c.Validate()
}

// Parse applies a space separated key=value list to c.
func (c *Config) Parse(s string) error {
	for _, field := range strings.Fields(s) {
		key, val, ok := strings.Cut(field, "=")
		if !ok {
			return fmt.Errorf("%q: expected key=value", field)
		}
		if err := c.set(key, val); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	return nil
}

func (c *Config) set(key, val string) error {
	var err error
	switch key {
	case "log_level":
		c.LogLevel, err = logrus.ParseLevel(val)
	case "log_format":
		if val != "text" && val != "json" {
			return fmt.Errorf("invalid format %q", val)
		}
		c.LogFormat = val
	case "track_owners":
		c.TrackOwners, err = strconv.ParseBool(val)
	case "max_queue":
		c.MaxQueue, err = strconv.Atoi(val)
	case "max_held":
		c.MaxHeld, err = strconv.Atoi(val)
	case "spin_limit":
		c.SpinLimit, err = strconv.Atoi(val)
	case "reclaim_interval":
		c.ReclaimInterval, err = strconv.Atoi(val)
	default:
		return ErrUnknownKey
	}
	return err
}

// Validate reports the first out-of-range setting.
func (c Config) Validate() error {
	switch {
	case c.MaxQueue < 0:
		return fmt.Errorf("max_queue: must not be negative, got %d", c.MaxQueue)
	case c.MaxHeld < 0:
		return fmt.Errorf("max_held: must not be negative, got %d", c.MaxHeld)
	case c.SpinLimit < 1:
		return fmt.Errorf("spin_limit: must be positive, got %d", c.SpinLimit)
	case c.ReclaimInterval < 1:
		return fmt.Errorf("reclaim_interval: must be positive, got %d", c.ReclaimInterval)
	}
	return nil
}

// Logger builds the logger described by c.
func (c Config) Logger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetLevel(c.LogLevel)
	if c.LogFormat == "json" {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log
}
