package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dshills/notecontext/internal/indexer"
	"github.com/dshills/notecontext/internal/service"
)

func newIndexCommand(r *runner) *cobra.Command {
	var noEmbed bool

	cmd := &cobra.Command{
		Use:   "index [dir]",
		Short: "Index a notes directory once",
		Long: `Index reads every qualifying note below dir (the configured notes
directory when omitted), skipping unchanged files and removing notes that no
longer exist. Pending passages are embedded afterwards unless --no-embed is set.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.run(cmd, func(ctx context.Context) error {
				dir := ""
				if len(args) == 1 {
					dir = args[0]
				}
				stats, err := r.svc.Index(ctx, dir)
				if err != nil {
					return err
				}
				printScan(cmd.OutOrStdout(), stats)

				if noEmbed {
					return nil
				}
				return embedPending(ctx, cmd.OutOrStdout(), r.svc)
			})
		},
	}
	cmd.Flags().BoolVar(&noEmbed, "no-embed", false, "skip embedding new passages")
	return cmd
}

func newEmbedCommand(r *runner) *cobra.Command {
	return &cobra.Command{
		Use:   "embed",
		Short: "Embed passages that have no vector for the current model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.run(cmd, func(ctx context.Context) error {
				return embedPending(ctx, cmd.OutOrStdout(), r.svc)
			})
		},
	}
}

func embedPending(ctx context.Context, w io.Writer, svc *service.Service) error {
	processed, failed, err := svc.EmbedPending(ctx)
	if errors.Is(err, service.ErrEmbeddingsDisabled) {
		fmt.Fprintln(w, "Embeddings disabled; search is lexical only")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Embedded %s passages", humanize.Comma(int64(processed)))
	if failed > 0 {
		fmt.Fprintf(w, " (%d failed)", failed)
	}
	fmt.Fprintln(w)
	return nil
}

func printScan(w io.Writer, stats *indexer.Statistics) {
	fmt.Fprintf(w, "Indexed %d of %d files in %s", stats.FilesIndexed, stats.FilesFound, stats.Duration.Round(time.Millisecond))
	if stats.FilesSkipped > 0 {
		fmt.Fprintf(w, ", %d unchanged", stats.FilesSkipped)
	}
	if stats.FilesRemoved > 0 {
		fmt.Fprintf(w, ", %d removed", stats.FilesRemoved)
	}
	fmt.Fprintln(w)
	if stats.FilesFailed > 0 {
		fmt.Fprintf(w, "%d files failed:\n", stats.FilesFailed)
		for _, msg := range stats.ErrorMessages {
			fmt.Fprintf(w, "  %s\n", msg)
		}
	}
}
