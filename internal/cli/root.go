package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/me/uthreads/internal/config"
	"github.com/me/uthreads/internal/logging"
	"github.com/me/uthreads/internal/store"
)

var (
	flagConfig    string
	flagJournal   string
	flagServer    string
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	cfg    config.Config
	logger *slog.Logger
	client *Client
)

// defaultServer returns the default status API URL, checking UTHREADS_SERVER env var first.
func defaultServer() string {
	if s := os.Getenv("UTHREADS_SERVER"); s != "" {
		return s
	}
	return "http://localhost:8090"
}

// NewRootCmd creates the root cobra command for the uthreads CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "uthreads",
		Short: "uthreads: preemptive user-space thread scheduler",
		Long: "uthreads runs scripted workloads on a round-robin green-thread scheduler " +
			"and journals every scheduling decision for later inspection.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			c, err := resolveConfig(cmd)
			if err != nil {
				return err
			}
			cfg = c
			logger = logging.NewLoggerWithWriter(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat, cmd.ErrOrStderr())
			client = NewClient(flagServer, logger)
			return nil
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagConfig, "config", "", "YAML config file")
	root.PersistentFlags().StringVar(&flagJournal, "journal", config.DefaultJournalPath(), "SQLite journal path (empty disables)")
	root.PersistentFlags().StringVar(&flagServer, "server", defaultServer(), "Status API URL (or UTHREADS_SERVER env)")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(
		newRunCmd(),
		newRunsCmd(),
		newEventsCmd(),
		newReportCmd(),
		newServeCmd(),
		newStatusCmd(),
	)

	return root
}

// resolveConfig layers the config file over the defaults and explicitly set
// flags over both.
func resolveConfig(cmd *cobra.Command) (config.Config, error) {
	c := config.DefaultConfig()
	if flagConfig != "" {
		loaded, err := config.Load(flagConfig)
		if err != nil {
			return c, err
		}
		c = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("journal") {
		c.Journal = flagJournal
	}
	if flags.Changed("log-level") {
		c.LogLevel = flagLogLevel
	}
	if flags.Changed("log-format") {
		c.LogFormat = flagLogFormat
	}
	if flagDebug {
		c.LogLevel = "debug"
	}
	if err := c.Validate(); err != nil {
		return c, fmt.Errorf("invalid configuration: %w", err)
	}
	return c, nil
}

// openJournal opens and migrates the journal at path.
func openJournal(ctx context.Context, path string, logger *slog.Logger) (*store.SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("journal disabled: set --journal or journal in the config file")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create journal dir: %w", err)
		}
	}
	st, err := store.NewSQLiteStore(path, logger)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	return st, nil
}
