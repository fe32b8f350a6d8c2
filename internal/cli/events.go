package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/me/uthreads/pkg/model"
)

func newEventsCmd() *cobra.Command {
	var (
		kind    string
		tid     int
		limit   int
		offset  int
		jsonOut bool
	)

	cmd := &cobra.Command{
		Use:   "events <run-id>",
		Short: "Show the scheduling events of a run",
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

			opts := model.ListOptions{Limit: limit, Offset: offset, Kind: model.EventKind(kind)}
			if cmd.Flags().Changed("tid") {
				opts.TID = &tid
			}
			opts.Clamp()
			events, total, err := st.ListEvents(cmd.Context(), run.ID, opts)
			if err != nil {
				return fmt.Errorf("list events: %w", err)
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(events)
			}
			printEvents(out, events, total)
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "Only show events of this kind (spawn, switch, block, ...)")
	cmd.Flags().IntVar(&tid, "tid", 0, "Only show events of this thread")
	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum number of events to show")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of events to skip")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print events as JSON")

	return cmd
}

func printEvents(w io.Writer, events []model.Event, total int) {
	if len(events) == 0 {
		fmt.Fprintln(w, "No events found.")
		return
	}

	fmt.Fprintf(w, "%8s  %-10s  %5s  %5s  %8s  %10s  %s\n", "SEQ", "KIND", "TID", "PEER", "QUANTA", "TOTAL", "AT")
	fmt.Fprintln(w, strings.Repeat("-", 80))
	for _, e := range events {
		fmt.Fprintf(w, "%8d  %-10s  %5d  %5d  %8d  %10d  %s\n",
			e.Seq, e.Kind, e.TID, e.Peer, e.Quanta, e.TotalQuanta,
			e.At.Local().Format("15:04:05.000000"))
	}
	if total > len(events) {
		fmt.Fprintf(w, "(%d of %d events)\n", len(events), total)
	}
}
