package commands

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/dshills/notecontext/internal/app"
	"github.com/dshills/notecontext/internal/embedpool"
	"github.com/dshills/notecontext/internal/mcp"
	"github.com/dshills/notecontext/internal/service"
)

func newMCPCommand(r *runner) *cobra.Command {
	var noWatch bool

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the notes as MCP tools over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var srv *mcp.Server
			return r.run(cmd, func(ctx context.Context) error {
				if !noWatch {
					watchConfigured(ctx, r.svc)
				}
				return srv.Serve(ctx, os.Stdin, os.Stdout)
			}, app.Background, fx.Populate(&srv))
		},
	}
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "do not watch the configured notes directory")
	return cmd
}

func newServeCommand(r *runner) *cobra.Command {
	var (
		addr    string
		noWatch bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var handler http.Handler
			return r.run(cmd, func(ctx context.Context) error {
				if addr == "" {
					addr = r.cfg.HTTP.Addr
				}
				if !noWatch {
					watchConfigured(ctx, r.svc)
				}
				return serveHTTP(ctx, addr, handler)
			}, app.Background, fx.Populate(&handler))
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "do not watch the configured notes directory")
	return cmd
}

func serveHTTP(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting HTTP server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// watchConfigured starts watching the configured notes directory, if any.
// Failure is logged; the server stays usable for explicit index requests.
func watchConfigured(ctx context.Context, svc *service.Service) {
	if svc.NotesRoot() == "" {
		return
	}
	stats, err := svc.Watch(ctx, "")
	if err != nil {
		slog.Warn("failed to watch notes directory", "dir", svc.NotesRoot(), "err", err)
		return
	}
	slog.Info("watching notes", "dir", svc.NotesRoot(),
		"indexed", stats.FilesIndexed, "removed", stats.FilesRemoved)
}

func newWatchCommand(r *runner) *cobra.Command {
	return &cobra.Command{
		Use:   "watch [dir]",
		Short: "Index a notes directory and keep it in sync until interrupted",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var pool *embedpool.Pool
			return r.run(cmd, func(ctx context.Context) error {
				dir := ""
				if len(args) == 1 {
					dir = args[0]
				}
				stats, err := r.svc.Watch(ctx, dir)
				if err != nil {
					return err
				}
				printScan(cmd.OutOrStdout(), stats)
				cmd.Printf("Watching %s (Ctrl-C to stop)\n", r.svc.NotesRoot())

				var events <-chan embedpool.Event
				if pool != nil {
					events = pool.Events()
				}
				for {
					select {
					case <-ctx.Done():
						return nil
					case ev := <-events:
						logPoolEvent(ev)
					}
				}
			}, app.Background, fx.Populate(&pool))
		},
	}
}

func logPoolEvent(ev embedpool.Event) {
	switch ev.Type {
	case embedpool.EventError:
		slog.Warn("embedding failed", "chunk_id", ev.ChunkID, "err", ev.Error)
	case embedpool.EventIdle:
		slog.Debug("embeddings up to date", "processed", ev.Processed, "failed", ev.Failed)
	default:
		slog.Debug("embedding progress", "processed", ev.Processed)
	}
}
