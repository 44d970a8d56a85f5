package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

type outputFormat string

const (
	formatHuman outputFormat = "human"
	formatJSON  outputFormat = "json"
)

func addOutputFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("output", "o", string(formatHuman), "Output format: human|json")
}

func getOutputFormat(cmd *cobra.Command) (outputFormat, error) {
	f, err := cmd.Flags().GetString("output")
	if err != nil {
		return formatHuman, err
	}
	switch outputFormat(f) {
	case formatHuman, formatJSON:
		return outputFormat(f), nil
	default:
		return formatHuman, fmt.Errorf("invalid output format: %s (use human or json)", f)
	}
}

func printJSON(cmd *cobra.Command, value any) error {
	output, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\n", output)
	return err
}
