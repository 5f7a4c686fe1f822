package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dshills/notecontext/internal/storage"
)

func newStatsCommand(r *runner) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show index statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.run(cmd, func(ctx context.Context) error {
				st, err := r.svc.Status(ctx)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), st)
				}
				fmt.Fprintln(cmd.OutOrStdout(), st.Summary())
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print statistics as JSON")
	return cmd
}

func newPinCommand(r *runner) *cobra.Command {
	var unpin bool

	cmd := &cobra.Command{
		Use:   "pin [path]",
		Short: "Pin a note so it is always given to the model; list pins without a path",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.run(cmd, func(ctx context.Context) error {
				out := cmd.OutOrStdout()
				if len(args) == 1 {
					var err error
					if unpin {
						err = r.svc.Unpin(ctx, args[0])
					} else {
						err = r.svc.Pin(ctx, args[0])
					}
					if err != nil {
						return err
					}
				}

				pins, err := r.svc.Pins(ctx)
				if err != nil {
					return err
				}
				if len(pins) == 0 {
					fmt.Fprintln(out, "No pinned notes")
				}
				for _, f := range pins {
					fmt.Fprintf(out, "%s  %s\n", f.Name, f.Path)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&unpin, "unpin", false, "remove the pin instead")
	return cmd
}

func newVersionCommand(r *runner) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "notecontext %s\n", r.info.Version)
			fmt.Fprintf(out, "Build Time: %s\n", r.info.BuildTime)
			fmt.Fprintf(out, "Build Mode: %s\n", storage.BuildMode)
			fmt.Fprintf(out, "SQLite Driver: %s\n", storage.DriverName)
			fmt.Fprintf(out, "Vector Extension: %v\n", storage.VectorExtensionAvailable)
		},
	}
}
