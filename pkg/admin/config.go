package admin

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pzverkov/poolwatch/internal/constants"
	"github.com/pzverkov/poolwatch/pkg/logging"
	"github.com/pzverkov/poolwatch/pkg/tracing"
	"github.com/pzverkov/poolwatch/pkg/window"
)

// Config holds the monitoring configuration of one pool.
type Config struct {
	// StatisticsTokens lists the rolling windows to keep, e.g. "10s,15m".
	// Each distinct token yields an independent window; repeats of a token
	// are dropped.
	// Default: "10s,15m,1d"
	StatisticsTokens string

	// CheckInterval is how often idle windows are checked for expiry.
	// Default: 1 second
	CheckInterval time.Duration

	// Logger receives monitor and window logs.
	// Optional - if nil, the global logger is used.
	Logger *logging.Logger

	// Tracer traces rotations.
	// Optional - if nil, the global tracer is used.
	Tracer tracing.Tracer

	// Clock overrides the time source, mainly for tests.
	// Optional - if nil, time.Now is used.
	Clock func() time.Time
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		StatisticsTokens: constants.DefaultStatisticsTokens,
		CheckInterval:    constants.DefaultCheckInterval,
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.CheckInterval < 0 {
		return errors.New("admin: CheckInterval cannot be negative")
	}
	if c.StatisticsTokens != "" {
		if _, err := window.ParsePeriods(c.StatisticsTokens); err != nil {
			return fmt.Errorf("admin: StatisticsTokens: %w", err)
		}
	}
	return nil
}

// applyDefaults fills in zero values with defaults.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()

	if c.StatisticsTokens == "" {
		c.StatisticsTokens = defaults.StatisticsTokens
	}
	if c.CheckInterval == 0 {
		c.CheckInterval = defaults.CheckInterval
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	c.Logger = logging.OrDefault(c.Logger)
	c.Tracer = tracing.OrDefault(c.Tracer)
}

// uniqueTokens returns tokens in canonical form with repeats removed,
// keeping the first occurrence, together with the dropped repeats.
func uniqueTokens(tokens string) (string, []string, error) {
	periods, err := window.ParsePeriods(tokens)
	if err != nil {
		return "", nil, fmt.Errorf("admin: StatisticsTokens: %w", err)
	}

	seen := make(map[window.Period]bool, len(periods))
	kept := make([]string, 0, len(periods))
	var dropped []string
	for _, p := range periods {
		if seen[p] {
			dropped = append(dropped, p.String())
			continue
		}
		seen[p] = true
		kept = append(kept, p.String())
	}
	return strings.Join(kept, constants.TokenSeparator), dropped, nil
}
