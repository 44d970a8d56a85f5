// Package constants defines the token grammar, defaults and names shared by
// the poolwatch packages.
package constants

import "time"

// Period token grammar: one or more digits followed by a unit suffix.
const (
	// SuffixSecond selects a window measured in seconds
	SuffixSecond = 's'

	// SuffixMinute selects a window measured in minutes
	SuffixMinute = 'm'

	// SuffixHour selects a window measured in hours
	SuffixHour = 'h'

	// SuffixDay selects a window measured in days
	SuffixDay = 'd'

	// TokenSeparator splits a list of tokens, each yielding its own window
	TokenSeparator = ","
)

// Admin defaults
const (
	// DefaultStatisticsTokens is used when a pool registers without tokens
	DefaultStatisticsTokens = "10s,15m,1d"

	// DefaultCheckInterval is how often idle windows are checked for expiry
	DefaultCheckInterval = time.Second

	// DefaultPoolAlias names a pool registered without an alias
	DefaultPoolAlias = "default"
)

// Process configuration
const (
	// EnvPrefix prefixes every environment variable read by pkg/config
	EnvPrefix = "POOLWATCH"

	// ConfigName is the config file base name looked up by pkg/config
	ConfigName = "poolwatch.config"

	// ConfigType is the config file format
	ConfigType = "yml"

	// ConfigPath is the default directory searched for the config file
	ConfigPath = "/etc/poolwatch"

	// DefaultMetricsAddress is where the observability server listens
	DefaultMetricsAddress = ":9090"

	// MetricsNamespace prefixes every exported metric name
	MetricsNamespace = "poolwatch"
)

// Health thresholds
const (
	// DefaultMaxRefusedRatio marks a pool degraded when the last completed
	// window refused more than this share of requests
	DefaultMaxRefusedRatio = 0.5
)
