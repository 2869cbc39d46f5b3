package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/choreloop/choreloop/internal/periodkey"
)

// NewKeyCommand groups the codec subcommands.
func NewKeyCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Generate, parse, and pattern completion keys",
	}
	cmd.AddCommand(newKeyGenerateCommand(opts))
	cmd.AddCommand(newKeyParseCommand(opts))
	cmd.AddCommand(newKeyPatternCommand(opts))
	return cmd
}

func newKeyGenerateCommand(opts *RootOptions) *cobra.Command {
	var (
		period string
		date   string
	)
	cmd := &cobra.Command{
		Use:   "generate <task-id>",
		Short: "Generate a period-scoped completion key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := periodkey.ParsePeriod(period)
			if err != nil {
				return err
			}
			at := time.Now().UTC()
			if date != "" {
				at, err = time.Parse(time.RFC3339, date)
				if err != nil {
					return fmt.Errorf("invalid --date: %w", err)
				}
			}
			key, err := periodkey.Generate(p, args[0], at)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	}
	cmd.Flags().StringVar(&period, "period", "daily", "period (daily|weekly|monthly)")
	cmd.Flags().StringVar(&date, "date", "", "RFC 3339 date (default: now)")
	return cmd
}

func newKeyParseCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "parse <key>",
		Short: "Decompose a completion key and recover its instance start",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := periodkey.Parse(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if opts.Format == "json" {
				return printJSON(out, map[string]string{
					"period":   string(key.Period),
					"taskId":   key.TaskID,
					"datePart": key.DatePart,
					"date":     key.Date.Format(time.RFC3339),
				})
			}
			printKV(out, [][2]string{
				{"period", string(key.Period)},
				{"taskId", key.TaskID},
				{"datePart", key.DatePart},
				{"date", key.Date.Format(time.RFC3339)},
			})
			return nil
		},
	}
}

func newKeyPatternCommand(opts *RootOptions) *cobra.Command {
	var (
		period string
		taskID string
	)
	cmd := &cobra.Command{
		Use:   "pattern",
		Short: "Build a scan pattern for key discovery",
		RunE: func(cmd *cobra.Command, args []string) error {
			if period != "" {
				if _, err := periodkey.ParsePeriod(period); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), periodkey.ScanPattern(periodkey.Period(period), taskID))
			return nil
		},
	}
	cmd.Flags().StringVar(&period, "period", "", "period segment (empty for wildcard)")
	cmd.Flags().StringVar(&taskID, "task", "", "task segment (empty for wildcard)")
	return cmd
}
