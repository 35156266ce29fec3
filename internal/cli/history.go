package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"churchsite/internal/config"
	"churchsite/internal/models"
	"churchsite/internal/store"
)

type historyPage struct {
	History []models.AuditRecord `json:"history"`
	Total   int64                `json:"total"`
	Page    int                  `json:"page"`
	Limit   int                  `json:"limit"`
}

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var page, limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded AI prompts, newest first",
		Example: `  churchsite history
  churchsite history --page 2 --limit 50
  churchsite history --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if page < 1 || limit < 1 {
				return fmt.Errorf("--page and --limit must be positive")
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

			records, total, err := st.ListAudit(cmd.Context(), limit, (page-1)*limit)
			if err != nil {
				return err
			}
			if records == nil {
				records = []models.AuditRecord{}
			}
			out := cmd.OutOrStdout()
			if done, err := opts.writeJSON(out, historyPage{History: records, Total: total, Page: page, Limit: limit}); done || err != nil {
				return err
			}

			if len(records) == 0 {
				fmt.Fprintln(out, "No prompts recorded.")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTIME\tSTATUS\tBEFORE\tAFTER\tPROMPT")
			for _, r := range records {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
					r.ID,
					r.Timestamp.Local().Format("2006-01-02 15:04"),
					r.JobStatus,
					r.GitHashBefore,
					deref(r.GitHashAfter, "-"),
					truncate(r.Prompt, 60))
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(out, "page %d, %d of %d prompts\n", page, len(records), total)
			return nil
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&limit, "limit", 20, "rows per page")
	return cmd
}

// openStore connects without a revisioner; CLI commands never append.
func openStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	st, err := store.Open(ctx, cfg, nil)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := st.RunMigrations(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}
	return st, nil
}

func deref(s *string, def string) string {
	if s == nil || *s == "" {
		return def
	}
	return *s
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
