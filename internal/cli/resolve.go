package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/choreloop/choreloop/internal/clock"
	"github.com/choreloop/choreloop/internal/completion"
	"github.com/choreloop/choreloop/internal/periodkey"
	"github.com/choreloop/choreloop/internal/resolver"
)

// resolveManifest is the YAML input to the resolve command: the task
// metadata list and the member list the resolver enriches against.
type resolveManifest struct {
	Members []string `yaml:"members"`
	Tasks   []struct {
		ID            string `yaml:"id"`
		Period        string `yaml:"period"`
		CompletedDate string `yaml:"completedDate"`
	} `yaml:"tasks"`
}

// NewResolveCommand runs a resolution pass over a task manifest.
func NewResolveCommand(opts *RootOptions) *cobra.Command {
	var manifestPath string
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve best-available completion dates for a task manifest",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(manifestPath)
			if err != nil {
				return fmt.Errorf("read manifest: %w", err)
			}
			var manifest resolveManifest
			if err := yaml.Unmarshal(data, &manifest); err != nil {
				return fmt.Errorf("parse manifest: %w", err)
			}

			tasks := make([]resolver.Task, len(manifest.Tasks))
			for i, mt := range manifest.Tasks {
				task := resolver.Task{ID: mt.ID, Period: periodkey.Period(mt.Period)}
				if mt.CompletedDate != "" {
					d, err := time.Parse(time.RFC3339, mt.CompletedDate)
					if err != nil {
						return fmt.Errorf("task %s: invalid completedDate: %w", mt.ID, err)
					}
					task.CompletedDate = d
				}
				tasks[i] = task
			}

			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			rdb := openKV(cfg)
			defer rdb.Close()
			store := completion.NewStore(rdb, completion.WithMaxLogLength(cfg.Log.MaxLength))
			res := resolver.New(store, clock.SystemClock{},
				resolver.WithCache(cfg.Cache.Size, cfg.Cache.TTL.Std()),
				resolver.WithLogWindow(cfg.Resolver.Window),
				resolver.WithFanout(cfg.Resolver.Fanout),
				resolver.WithCutoffYear(cfg.Resolver.CutoffYear),
			)

			resolved, err := res.Resolve(cmd.Context(), tasks, manifest.Members)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.Format == "json" {
				return printJSON(out, resolved)
			}
			for _, r := range resolved {
				fmt.Fprintf(out, "%s  %s  %s/%s\n",
					r.TaskID,
					r.Date.Format(time.RFC3339),
					r.Source,
					r.Confidence)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&manifestPath, "file", "f", "", "YAML manifest of tasks and members")
	cmd.MarkFlagRequired("file")
	return cmd
}
