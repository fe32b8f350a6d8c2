package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/me/uthreads/pkg/model"
)

func newRunsCmd() *cobra.Command {
	var (
		limit   int
		offset  int
		jsonOut bool
	)

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List journaled runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openJournal(cmd.Context(), cfg.Journal, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			opts := model.ListOptions{Limit: limit, Offset: offset}
			opts.Clamp()
			runs, total, err := st.ListRuns(cmd.Context(), opts)
			if err != nil {
				return fmt.Errorf("list runs: %w", err)
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(runs)
			}
			printRuns(out, runs, total)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs to show")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of runs to skip")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print runs as JSON")

	return cmd
}

func printRuns(w io.Writer, runs []*model.Run, total int) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs found.")
		return
	}

	fmt.Fprintf(w, "%-42s  %-16s  %-8s  %10s  %8s  %s\n", "RUN", "WORKLOAD", "TIMER", "QUANTA", "EXIT", "STARTED")
	fmt.Fprintln(w, strings.Repeat("-", 110))
	for _, r := range runs {
		exit := "running"
		if r.ExitCode != nil {
			exit = fmt.Sprintf("%d", *r.ExitCode)
		}
		fmt.Fprintf(w, "%-42s  %-16s  %-8s  %10d  %8s  %s\n",
			r.ID, truncate(r.Workload, 16), r.Timer, r.TotalQuanta, exit,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"))
	}
	if total > len(runs) {
		fmt.Fprintf(w, "(%d of %d runs)\n", len(runs), total)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
