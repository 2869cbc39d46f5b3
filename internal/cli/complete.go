package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/choreloop/choreloop/internal/clock"
	"github.com/choreloop/choreloop/internal/completion"
	"github.com/choreloop/choreloop/internal/periodkey"
	"github.com/choreloop/choreloop/internal/protocol"
	"github.com/choreloop/choreloop/internal/resolver"
)

// taskFlags carries task metadata on the command line. The CLI has no
// task CRUD store to consult, so the operator supplies the metadata a
// deployment's task store would.
type taskFlags struct {
	name     string
	score    int
	assignee string
	period   string
}

func (f *taskFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.name, "name", "", "task name (for the log record)")
	cmd.Flags().IntVar(&f.score, "score", 0, "task score (log record delta)")
	cmd.Flags().StringVar(&f.assignee, "assignee", "", "task assignee (empty: anyone may complete)")
	cmd.Flags().StringVar(&f.period, "period", "daily", "task period (daily|weekly|monthly)")
}

// flagTaskSource serves exactly one task, described by flags.
type flagTaskSource struct {
	meta protocol.TaskMeta
}

func (s flagTaskSource) Task(_ context.Context, taskID string) (protocol.TaskMeta, error) {
	if taskID != s.meta.ID {
		return protocol.TaskMeta{}, fmt.Errorf("unknown task %q", taskID)
	}
	return s.meta, nil
}

func buildProtocol(opts *RootOptions, taskID string, f *taskFlags) (*protocol.Protocol, func(), error) {
	p, err := periodkey.ParsePeriod(f.period)
	if err != nil {
		return nil, nil, err
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, nil, err
	}
	rdb := openKV(cfg)
	store := completion.NewStore(rdb, completion.WithMaxLogLength(cfg.Log.MaxLength))
	clk := clock.SystemClock{}
	res := resolver.New(store, clk,
		resolver.WithCache(cfg.Cache.Size, cfg.Cache.TTL.Std()))
	vault := protocol.NewVault(rdb, protocol.UUIDv7Generator{}, clk, cfg.Protocol.TokenTTL.Std())

	name := f.name
	if name == "" {
		name = taskID
	}
	tasks := flagTaskSource{meta: protocol.TaskMeta{
		ID:         taskID,
		Name:       name,
		Score:      f.score,
		AssigneeID: f.assignee,
		Period:     p,
	}}

	proto := protocol.NewProtocol(store, vault, res, tasks, protocol.AssigneeOnly{}, clk, nil)
	return proto, func() { rdb.Close() }, nil
}

// NewCompleteCommand completes a task through the two-phase exchange:
// initiate mints the token, confirm redeems it immediately (the
// client-visible countdown is a UI affordance, not a protocol one).
func NewCompleteCommand(opts *RootOptions) *cobra.Command {
	var (
		user string
		f    taskFlags
	)
	cmd := &cobra.Command{
		Use:   "complete <task-id>",
		Short: "Complete a task's current period instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			proto, closeKV, err := buildProtocol(opts, args[0], &f)
			if err != nil {
				return err
			}
			defer closeKV()

			token, err := proto.Initiate(cmd.Context(), args[0], user)
			if err != nil {
				return err
			}
			res, err := proto.Confirm(cmd.Context(), token, user)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.Format == "json" {
				return printJSON(out, map[string]string{
					"taskId":      res.TaskID,
					"completedAt": res.CompletedAt.Format(time.RFC3339),
				})
			}
			fmt.Fprintf(out, "completed %s at %s\n", res.TaskID, res.CompletedAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "acting user ID")
	cmd.MarkFlagRequired("user")
	f.register(cmd)
	return cmd
}

// NewRevertCommand toggles a completed task back to incomplete.
func NewRevertCommand(opts *RootOptions) *cobra.Command {
	var (
		user string
		f    taskFlags
	)
	cmd := &cobra.Command{
		Use:   "revert <task-id>",
		Short: "Toggle a completed task back to incomplete",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			proto, closeKV, err := buildProtocol(opts, args[0], &f)
			if err != nil {
				return err
			}
			defer closeKV()

			if err := proto.Revert(cmd.Context(), args[0], user); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reverted %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "acting user ID")
	cmd.MarkFlagRequired("user")
	f.register(cmd)
	return cmd
}
