package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/choreloop/choreloop/internal/completion"
	"github.com/choreloop/choreloop/internal/periodkey"
)

type statusRow struct {
	TaskID   string `json:"taskId"`
	Key      string `json:"key"`
	Complete bool   `json:"complete"`
}

// NewStatusCommand reports per-task completion for one period instance
// using a single batched existence check.
func NewStatusCommand(opts *RootOptions) *cobra.Command {
	var (
		period string
		date   string
	)
	cmd := &cobra.Command{
		Use:   "status <task-id>...",
		Short: "Check period-instance completion for the given tasks",
		Args:  cobra.MinimumNArgs(1),
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

			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			rdb := openKV(cfg)
			defer rdb.Close()
			store := completion.NewStore(rdb, completion.WithMaxLogLength(cfg.Log.MaxLength))

			keys := make([]string, len(args))
			for i, taskID := range args {
				key, err := periodkey.Generate(p, taskID, at)
				if err != nil {
					return err
				}
				keys[i] = key
			}

			present, err := store.BatchExists(cmd.Context(), keys)
			if err != nil {
				return err
			}

			rows := make([]statusRow, len(args))
			for i := range args {
				rows[i] = statusRow{TaskID: args[i], Key: keys[i], Complete: present[i]}
			}

			out := cmd.OutOrStdout()
			if opts.Format == "json" {
				return printJSON(out, rows)
			}
			for _, row := range rows {
				mark := " "
				if row.Complete {
					mark = "x"
				}
				fmt.Fprintf(out, "[%s] %s\n", mark, row.TaskID)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&period, "period", "daily", "period (daily|weekly|monthly)")
	cmd.Flags().StringVar(&date, "date", "", "RFC 3339 date inside the period instance (default: now)")
	return cmd
}
