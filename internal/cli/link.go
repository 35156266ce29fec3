package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newLinkCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "link <history-id> [commit-hash]",
		Short: "Record the commit that published an AI edit",
		Long: `Record the commit that published an AI edit.

Omitting the hash clears a previously linked commit. Unknown ids are not
an error.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid history id %q", args[0])
			}
			var hash *string
			if len(args) == 2 {
				hash = &args[1]
			}

			cfg, err := opts.load()
			if err != nil {
				return err
			}
			st, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.UpdateAuditCommit(cmd.Context(), id, hash); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if done, err := opts.writeJSON(out, map[string]any{"success": true, "id": id, "commit_hash": hash}); done || err != nil {
				return err
			}
			if hash == nil {
				fmt.Fprintf(out, "Cleared commit on history entry %d\n", id)
			} else {
				fmt.Fprintf(out, "Linked history entry %d to %s\n", id, *hash)
			}
			return nil
		},
	}
}
