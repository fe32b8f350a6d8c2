package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/me/uthreads/internal/server"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the journal over the status API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			st, err := openJournal(ctx, cfg.Journal, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			return serveJournal(ctx, server.New(st, logger), addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8090", "Listen address")

	return cmd
}

func serveJournal(ctx context.Context, srv *server.Server, addr string) error {
	logger.Info("serving journal", "journal", cfg.Journal, "addr", addr)
	return srv.ListenAndServe(ctx, addr)
}
