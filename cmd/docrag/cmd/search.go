package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/SakshamDixitSBH/docrag/internal/output"
	"github.com/SakshamDixitSBH/docrag/internal/store"
)

type searchOptions struct {
	kind   string
	k      int
	format string
}

// searchResult is the JSON shape of a search.
type searchResult struct {
	Query string      `json:"query"`
	Kind  store.Kind  `json:"kind"`
	Hits  []store.Hit `json:"hits"`
}

func newSearchCmd() *cobra.Command {
	opts := &searchOptions{}

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Rank indexed chunks against a keyword query",
		Long: `Search the index with BM25 keyword ranking.

Query and text are lowercased and split on whitespace. Punctuation stays
attached to its word, so "friday." does not match "friday".
Results are ordered by score, ties keeping ingestion order.`,
		Example: `  docrag search "payment terms"
  docrag search invoice --kind email -k 10
  docrag search "force majeure" --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().StringVar(&opts.kind, "kind", "all", "Filter by source kind: all, pdf, email")
	cmd.Flags().IntVarP(&opts.k, "k", "k", 0, "Number of results (default from search.default_k)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runSearch(cmd *cobra.Command, query string, opts *searchOptions) error {
	kind, err := store.ParseKind(opts.kind)
	if err != nil {
		return err
	}
	if opts.format != "text" && opts.format != "json" {
		return fmt.Errorf("invalid format %q: use text or json", opts.format)
	}

	proj, err := loadProject()
	if err != nil {
		return err
	}
	ix, err := proj.openIndex(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = ix.Close() }()

	out := output.New(cmd.OutOrStdout())
	hits := ix.Search(query, kind, proj.resolveK(cmd, opts.k))

	if opts.format == "json" {
		if hits == nil {
			hits = []store.Hit{}
		}
		return out.JSON(searchResult{Query: query, Kind: kind, Hits: hits})
	}

	if ix.IsEmpty() {
		out.Warning("Index is empty. Run 'docrag ingest <paths>' first.")
		return nil
	}
	out.Hits(query, hits)
	return nil
}
