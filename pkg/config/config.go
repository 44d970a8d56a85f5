// Package config loads the poolwatch process configuration from an optional
// YAML file and POOLWATCH_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/pzverkov/poolwatch/internal/constants"
	"github.com/pzverkov/poolwatch/pkg/admin"
	"github.com/pzverkov/poolwatch/pkg/logging"
	"github.com/pzverkov/poolwatch/pkg/window"
)

// Config is the process configuration.
type Config struct {
	// Logging configuration
	Logging LoggingConfig `json:"logging,omitempty" mapstructure:"logging"`

	// Metrics server configuration
	Metrics MetricsConfig `json:"metrics,omitempty" mapstructure:"metrics"`

	// Pool defaults applied to every registered pool
	Pool PoolConfig `json:"pool,omitempty" mapstructure:"pool"`

	// Pools overrides Pool per alias. Only configurable via the config file.
	Pools map[string]PoolConfig `json:"pools,omitempty" mapstructure:"pools"`
}

// LoggingConfig selects the log level and output format.
type LoggingConfig struct {
	Level  string `json:"level,omitempty"  mapstructure:"level"`
	Format string `json:"format,omitempty" mapstructure:"format"`
}

// MetricsConfig configures the observability HTTP server.
type MetricsConfig struct {
	Enabled         bool    `json:"enabled,omitempty"           mapstructure:"enabled"`
	Address         string  `json:"address,omitempty"           mapstructure:"address"`
	Namespace       string  `json:"namespace,omitempty"         mapstructure:"namespace"`
	MaxRefusedRatio float64 `json:"max_refused_ratio,omitempty" mapstructure:"max_refused_ratio"`
}

// PoolConfig holds the monitoring settings of a pool.
type PoolConfig struct {
	StatisticsTokens []string      `json:"statistics_tokens,omitempty" mapstructure:"statistics_tokens"`
	CheckInterval    time.Duration `json:"check_interval,omitempty"    mapstructure:"check_interval"`
}

// Load reads poolwatch.config.yml from the given directories, or from
// /etc/poolwatch when none are given. A missing file is not an error.
func Load(paths ...string) (*Config, error) {
	v := newViper()
	if len(paths) == 0 {
		paths = []string{constants.ConfigPath}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	if err := v.ReadInConfig(); err != nil {
		fileNotFoundError := viper.ConfigFileNotFoundError{}
		if !errors.As(err, &fileNotFoundError) {
			return nil, fmt.Errorf("failed to read configuration file: %w", err)
		}
		logging.GetLogger().Named("config").Debug("config file not found, using defaults")
	}

	return decode(v)
}

// LoadFile reads the configuration from file, which must exist.
func LoadFile(file string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(file)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read configuration file: %w", err)
	}

	return decode(v)
}

func newViper() *viper.Viper {
	v := viper.NewWithOptions(
		viper.KeyDelimiter("."),
		viper.EnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_")),
	)

	v.SetConfigName(constants.ConfigName)
	v.SetConfigType(constants.ConfigType)

	v.SetEnvPrefix(constants.EnvPrefix)
	v.AllowEmptyEnv(true)
	v.AutomaticEnv()

	//
	// Logging configuration
	//
	_ = v.BindEnv("logging.level")
	v.SetDefault("logging.level", "info")

	_ = v.BindEnv("logging.format")
	v.SetDefault("logging.format", "text")

	//
	// Metrics configuration
	//
	_ = v.BindEnv("metrics.enabled")
	v.SetDefault("metrics.enabled", false)

	_ = v.BindEnv("metrics.address")
	v.SetDefault("metrics.address", constants.DefaultMetricsAddress)

	_ = v.BindEnv("metrics.namespace")
	v.SetDefault("metrics.namespace", constants.MetricsNamespace)

	_ = v.BindEnv("metrics.max_refused_ratio")
	v.SetDefault("metrics.max_refused_ratio", constants.DefaultMaxRefusedRatio)

	//
	// Pool defaults
	//
	_ = v.BindEnv("pool.statistics_tokens")
	v.SetDefault("pool.statistics_tokens", constants.DefaultStatisticsTokens)

	_ = v.BindEnv("pool.check_interval")
	v.SetDefault("pool.check_interval", constants.DefaultCheckInterval.String())

	return v
}

func decode(v *viper.Viper) (*Config, error) {
	decodeHooks := mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(constants.TokenSeparator),
	)

	config := &Config{}
	if err := v.Unmarshal(config, viper.DecodeHook(decodeHooks)); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	config.Pool.StatisticsTokens = trimTokens(config.Pool.StatisticsTokens)
	for alias, p := range config.Pools {
		p.StatisticsTokens = trimTokens(p.StatisticsTokens)
		config.Pools[alias] = p
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func trimTokens(tokens []string) []string {
	out := tokens[:0]
	for _, t := range tokens {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("config: logging.format %q must be text or json", c.Logging.Format)
	}
	if c.Metrics.MaxRefusedRatio < 0 || c.Metrics.MaxRefusedRatio > 1 {
		return errors.New("config: metrics.max_refused_ratio must be within [0, 1]")
	}
	if err := c.Pool.validate("pool"); err != nil {
		return err
	}
	for alias, p := range c.Pools {
		if err := p.validate("pools." + alias); err != nil {
			return err
		}
	}
	return nil
}

func (p PoolConfig) validate(key string) error {
	if p.CheckInterval < 0 {
		return fmt.Errorf("config: %s.check_interval cannot be negative", key)
	}
	for _, token := range p.StatisticsTokens {
		if _, err := window.ParsePeriod(token); err != nil {
			return fmt.Errorf("config: %s.statistics_tokens: %w", key, err)
		}
	}
	return nil
}

// NewLogger builds a logger writing to w at the configured level and format.
func (c LoggingConfig) NewLogger(w io.Writer) *logging.Logger {
	return logging.NewLogger(
		logging.WithOutput(w),
		logging.WithLevel(logging.ParseLevel(c.Level)),
		logging.WithFormat(logging.ParseFormat(c.Format)),
	)
}

// PoolFor returns the pool configuration of alias: the entry in Pools with
// unset fields taken from Pool.
func (c *Config) PoolFor(alias string) PoolConfig {
	p, ok := c.Pools[alias]
	if !ok {
		return c.Pool
	}
	if len(p.StatisticsTokens) == 0 {
		p.StatisticsTokens = c.Pool.StatisticsTokens
	}
	if p.CheckInterval == 0 {
		p.CheckInterval = c.Pool.CheckInterval
	}
	return p
}

// Aliases returns the aliases configured under Pools in sorted order.
func (c *Config) Aliases() []string {
	aliases := make([]string, 0, len(c.Pools))
	for alias := range c.Pools {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	return aliases
}

// AdminConfig converts p into the admin configuration of one pool.
func (p PoolConfig) AdminConfig() admin.Config {
	return admin.Config{
		StatisticsTokens: strings.Join(p.StatisticsTokens, constants.TokenSeparator),
		CheckInterval:    p.CheckInterval,
	}
}
