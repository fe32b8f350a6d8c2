package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/me/uthreads/pkg/model"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the live threads of a running scheduler",
		Long: "Query the status API of a process started with " +
			"'uthreads run --status-addr' and print its threads and counters.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var stats model.Stats
			if err := client.GetInto("/api/v1/stats", &stats); err != nil {
				return fmt.Errorf("get stats: %w", err)
			}
			var threads []model.ThreadInfo
			if err := client.GetInto("/api/v1/threads", &threads); err != nil {
				return fmt.Errorf("get threads: %w", err)
			}
			printStatus(cmd.OutOrStdout(), stats, threads)
			return nil
		},
	}
}

func printStatus(w io.Writer, stats model.Stats, threads []model.ThreadInfo) {
	fmt.Fprintf(w, "Quantum:      %s\n", stats.QuantumStr)
	fmt.Fprintf(w, "Total quanta: %d (%d ticks)\n", stats.TotalQuanta, stats.Ticks)
	fmt.Fprintf(w, "Threads:      %d of %d\n", stats.Threads, stats.MaxThreads)
	fmt.Fprintf(w, "Running:      %d\n", stats.Running)
	if stats.MutexOwner != model.NoThread {
		fmt.Fprintf(w, "Mutex owner:  %d (waiting: %v)\n", stats.MutexOwner, stats.MutexWaiting)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "%5s  %-22s  %10s  %s\n", "TID", "STATE", "QUANTA", "LOCK")
	fmt.Fprintln(w, strings.Repeat("-", 48))
	for _, t := range threads {
		lock := ""
		if t.HoldsLock {
			lock = "held"
		}
		fmt.Fprintf(w, "%5d  %-22s  %10d  %s\n", t.ID, t.State, t.Quanta, lock)
	}
}
