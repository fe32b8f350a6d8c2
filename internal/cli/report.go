package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/me/uthreads/internal/metrics"
)

func newReportCmd() *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "report <run-id>",
		Short: "Summarize how a journaled run shared the CPU",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openJournal(cmd.Context(), cfg.Journal, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			run, err := st.GetRun(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("get run: %w", err)
			}
			if run == nil {
				return fmt.Errorf("run %s not found", args[0])
			}
			rows, err := st.QuantaByThread(cmd.Context(), run.ID)
			if err != nil {
				return fmt.Errorf("quanta by thread: %w", err)
			}

			report := metrics.FromJournal(run, rows)
			out := cmd.OutOrStdout()
			if jsonOut {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			metrics.PrintReport(out, report)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the report as JSON")

	return cmd
}
