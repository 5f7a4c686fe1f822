package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/notecontext/internal/searcher"
	"github.com/dshills/notecontext/internal/service"
	"github.com/dshills/notecontext/pkg/types"
)

func newSearchCommand(r *runner) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the notes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.run(cmd, func(ctx context.Context) error {
				ret, err := r.svc.Search(ctx, strings.Join(args, " "), limit)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), ret.Passages())
				}
				printRetrieval(cmd.OutOrStdout(), ret)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "maximum number of passages")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print results as JSON")
	return cmd
}

func printRetrieval(w io.Writer, ret *searcher.Retrieval) {
	if ret.DateRange != nil {
		start, end := ret.DateRange.Dates()
		fmt.Fprintf(w, "Notes dated %s to %s\n", start, end)
	}
	passages := ret.Passages()
	if len(passages) == 0 {
		fmt.Fprintln(w, "No matching notes")
		return
	}
	for i, p := range passages {
		printPassage(w, i+1, p)
	}
}

func printPassage(w io.Writer, n int, p types.SearchResult) {
	label := fmt.Sprintf("%.3f", p.Score)
	if p.Pinned {
		label = "pinned"
	}
	fmt.Fprintf(w, "[%d] %s  %s", n, label, p.Name)
	if p.NoteDate != "" {
		fmt.Fprintf(w, "  (%s)", p.NoteDate)
	}
	fmt.Fprintln(w)
	if p.HeadingPath != "" {
		fmt.Fprintf(w, "    %s\n", p.HeadingPath)
	}
	text := p.Snippet
	if text == "" {
		text = p.Content
	}
	fmt.Fprintf(w, "    %s\n    %s\n", oneLine(text, 160), p.Path)
}

func oneLine(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > limit {
		return string(r[:limit]) + "…"
	}
	return s
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newAskCommand(r *runner) *cobra.Command {
	var (
		conversationID string
		newConv        bool
		noStream       bool
	)

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question answered from the notes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.run(cmd, func(ctx context.Context) error {
				out := cmd.OutOrStdout()
				req := service.AskRequest{
					Query:           strings.Join(args, " "),
					ConversationID:  conversationID,
					NewConversation: newConv,
				}

				var onChunk func(string) error
				if !noStream {
					onChunk = func(chunk string) error {
						_, err := io.WriteString(out, chunk)
						return err
					}
				}
				resp, err := r.svc.Ask(ctx, req, onChunk)
				if err != nil {
					return err
				}
				if noStream {
					fmt.Fprint(out, resp.Text)
				}
				fmt.Fprintln(out)
				printSources(out, resp.Sources)
				if resp.ConversationID != "" {
					fmt.Fprintf(out, "\nconversation: %s\n", resp.ConversationID)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&conversationID, "conversation", "c", "", "continue a stored conversation")
	cmd.Flags().BoolVar(&newConv, "new", false, "start a new conversation titled after the question")
	cmd.Flags().BoolVar(&noStream, "no-stream", false, "print the answer only when complete")
	return cmd
}

func printSources(w io.Writer, sources []types.Source) {
	if len(sources) == 0 {
		return
	}
	fmt.Fprintln(w, "\nSources:")
	for i, s := range sources {
		fmt.Fprintf(w, "  [%d] %s  %s\n", i+1, s.Name, s.Path)
	}
}
