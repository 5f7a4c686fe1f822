// Package commands implements the notecontext command line.
package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/dshills/notecontext/internal/app"
	"github.com/dshills/notecontext/internal/config"
	"github.com/dshills/notecontext/internal/service"
)

// BuildInfo is stamped in at link time
type BuildInfo struct {
	Version   string
	BuildTime string
}

// runner loads configuration from the global flags and runs commands
// inside a started application.
type runner struct {
	info BuildInfo

	configPath string
	dbPath     string
	notesDir   string
	logLevel   string

	cfg *config.Config
	svc *service.Service
}

// NewRootCommand builds the command tree.
func NewRootCommand(info BuildInfo) *cobra.Command {
	r := &runner{info: info}

	root := &cobra.Command{
		Use:           "notecontext",
		Short:         "Search and ask questions about a folder of local notes",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&r.configPath, "config", "", "YAML config file (default $"+config.EnvConfigPath+")")
	flags.StringVar(&r.dbPath, "db", "", "SQLite database path (overrides config)")
	flags.StringVar(&r.notesDir, "notes", "", "notes directory (overrides config)")
	flags.StringVar(&r.logLevel, "log-level", "", "debug, info, warn or error (overrides config)")

	root.AddCommand(
		newMCPCommand(r),
		newServeCommand(r),
		newIndexCommand(r),
		newWatchCommand(r),
		newSearchCommand(r),
		newAskCommand(r),
		newStatsCommand(r),
		newPinCommand(r),
		newEmbedCommand(r),
		newVersionCommand(r),
	)
	return root
}

func (r *runner) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(r.configPath)
	if err != nil {
		return nil, err
	}
	if r.dbPath != "" {
		cfg.DBPath = r.dbPath
	}
	if r.notesDir != "" {
		cfg.NotesDir = r.notesDir
	}
	if r.logLevel != "" {
		cfg.Log.Level = r.logLevel
	}
	return cfg, nil
}

// run starts the application, calls fn and stops the application again.
// opts add entry-point specific options such as app.Background.
func (r *runner) run(cmd *cobra.Command, fn func(ctx context.Context) error, opts ...fx.Option) error {
	cfg, err := r.loadConfig()
	if err != nil {
		return err
	}
	r.cfg = cfg

	opts = append(opts, fx.Populate(&r.svc))
	a := app.New(cfg, r.info.Version, opts...)
	if err := a.Err(); err != nil {
		return err
	}

	ctx := cmd.Context()
	startCtx, cancel := context.WithTimeout(ctx, fx.DefaultTimeout)
	defer cancel()
	if err := a.Start(startCtx); err != nil {
		return fmt.Errorf("failed to start application: %w", err)
	}

	runErr := fn(ctx)

	stopCtx, cancel := context.WithTimeout(context.Background(), fx.DefaultTimeout)
	defer cancel()
	if err := a.Stop(stopCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("failed to stop application: %w", err)
	}
	return runErr
}
