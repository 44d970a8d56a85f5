package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pzverkov/poolwatch/pkg/window"
)

type parsedToken struct {
	Token     string   `json:"token"`
	Period    string   `json:"period"`
	NextRolls []string `json:"next_rolls"`
	first     time.Time
}

func newParseCommand() *cobra.Command {
	var (
		at    string
		count int
		utc   bool
	)

	cmd := &cobra.Command{
		Use:   "parse <tokens>",
		Short: "Validate statistics tokens and print their next roll times",
		Long: `Validate a comma separated list of statistics tokens and print when each
window would roll over next. Windows align to the calendar: a 15m window
rolls at :00, :15, :30 and :45, a 1d window at local midnight.

Examples:

1. Check the default tokens:
   poolwatch parse 10s,15m,1d

2. Show five roll times from a fixed instant, in UTC:
   poolwatch parse 15m --at 2024-03-01T10:07:00Z --count 5 --utc
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now()
			if at != "" {
				t, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("invalid --at: %w", err)
				}
				now = t
			}
			if utc {
				now = now.UTC()
			}
			if count < 1 {
				return fmt.Errorf("--count must be at least 1")
			}
			return runParse(cmd, args[0], now, count)
		},
	}

	cmd.Flags().StringVar(&at, "at", "", "Compute roll times from this RFC3339 instant instead of now")
	cmd.Flags().IntVar(&count, "count", 1, "Number of roll times to print per token")
	cmd.Flags().BoolVar(&utc, "utc", false, "Align to UTC instead of the instant's location")
	addOutputFlag(cmd)
	return cmd
}

func runParse(cmd *cobra.Command, tokens string, now time.Time, count int) error {
	format, err := getOutputFormat(cmd)
	if err != nil {
		return err
	}

	periods, err := window.ParsePeriods(tokens)
	if err != nil {
		return err
	}

	parts := strings.Split(tokens, ",")
	result := make([]parsedToken, 0, len(periods))
	for i, p := range periods {
		first := p.FirstBoundary(now)
		pt := parsedToken{
			Token:  strings.TrimSpace(parts[i]),
			Period: p.Duration().String(),
			first:  first,
		}
		for n := 0; n < count; n++ {
			pt.NextRolls = append(pt.NextRolls, p.Add(first, n).Format(time.RFC3339))
		}
		result = append(result, pt)
	}

	if format == formatJSON {
		return printJSON(cmd, result)
	}

	out := cmd.OutOrStdout()
	for _, pt := range result {
		fmt.Fprintf(out, "%-8s %-12s next roll %s (in %s)\n",
			pt.Token, pt.Period, pt.NextRolls[0], pt.first.Sub(now).Round(time.Second))
		for _, r := range pt.NextRolls[1:] {
			fmt.Fprintf(out, "%-8s %-12s then      %s\n", "", "", r)
		}
	}
	return nil
}
