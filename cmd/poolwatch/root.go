package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pzverkov/poolwatch/pkg/config"
	"github.com/pzverkov/poolwatch/pkg/logging"
	"github.com/pzverkov/poolwatch/pkg/tracing"
)

// cli carries state shared by all subcommands once the root command has
// loaded the configuration.
type cli struct {
	configFile string
	logLevel   string
	logFormat  string
	tracing    string

	cfg    *config.Config
	logger *logging.Logger
}

func newRootCommand() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "poolwatch",
		Short: "Rolling-window statistics for connection pools",
		Long: `poolwatch keeps served and refused statistics of connection pools over
calendar-aligned rolling windows such as 10s, 15m or 1d.

Configuration is read from /etc/poolwatch/poolwatch.config.yml (or --config)
and POOLWATCH_* environment variables; flags override both.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.setup,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.configFile, "config", "", "Config file (default /etc/poolwatch/poolwatch.config.yml)")
	flags.StringVar(&c.logLevel, "log-level", "", "Log level: debug, info, warn, error, silent")
	flags.StringVar(&c.logFormat, "log-format", "", "Log format: text or json")
	flags.StringVar(&c.tracing, "tracing", "none", "Tracing mode: none, simple, otel (requires -tags otel)")

	root.AddCommand(
		newSimulateCommand(c),
		newParseCommand(),
		newVersionCommand(),
	)
	return root
}

func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	var err error
	if c.configFile != "" {
		c.cfg, err = config.LoadFile(c.configFile)
	} else {
		c.cfg, err = config.Load()
	}
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("log-level") {
		c.cfg.Logging.Level = c.logLevel
	}
	if cmd.Flags().Changed("log-format") {
		c.cfg.Logging.Format = c.logFormat
	}
	if err := c.cfg.Validate(); err != nil {
		return err
	}

	c.logger = c.cfg.Logging.NewLogger(cmd.ErrOrStderr()).With(logging.Fields{"app": "poolwatch"})
	logging.SetLogger(c.logger)

	switch strings.ToLower(c.tracing) {
	case "none", "":
		tracing.SetTracer(tracing.NoOpTracer{})
	case "simple":
		tracing.SetTracer(tracing.NewSimpleTracer())
	case "otel":
		if !tracing.OTelEnabled() {
			return fmt.Errorf("tracing mode otel requires building with -tags otel")
		}
		tracing.SetTracer(tracing.NewOTelTracer("poolwatch"))
	default:
		return fmt.Errorf("invalid tracing mode: %s (use none, simple, otel)", c.tracing)
	}
	return nil
}
