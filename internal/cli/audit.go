package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/choreloop/choreloop/internal/completion"
)

// NewAuditCommand dumps the implausible-date audit hash: self-reported
// completion dates the resolver rejected and substituted.
func NewAuditCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "audit",
		Short: "List self-reported dates rejected as implausible",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			rdb := openKV(cfg)
			defer rdb.Close()
			store := completion.NewStore(rdb)

			entries, err := store.ReadAudit(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.Format == "json" {
				return printJSON(out, entries)
			}
			ids := make([]string, 0, len(entries))
			for id := range entries {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			for _, id := range ids {
				fmt.Fprintf(out, "%s  %s\n", id, entries[id])
			}
			return nil
		},
	}
}
