package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/SakshamDixitSBH/docrag/internal/answer"
	"github.com/SakshamDixitSBH/docrag/internal/output"
	"github.com/SakshamDixitSBH/docrag/internal/store"
)

type askOptions struct {
	kind   string
	k      int
	format string
}

func newAskCmd() *cobra.Command {
	opts := &askOptions{}

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question from the indexed documents",
		Long: `Retrieve the best matching chunks and ask the configured model to answer
using only that context. Answers cite their sources as [pdf p.N] or [email].

When nothing matches, no model call is made and the answer is
"No context found."

The model is configured under 'answer' in the config file. The API key is
read from the environment variable named by answer.api_key_env
(OPENAI_API_KEY by default).`,
		Example: `  docrag ask "What is the notice period?"
  docrag ask "Who approved the March invoice?" --kind email`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().StringVar(&opts.kind, "kind", "all", "Filter context by source kind: all, pdf, email")
	cmd.Flags().IntVarP(&opts.k, "k", "k", 0, "Number of chunks to retrieve (default from search.default_k)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runAsk(cmd *cobra.Command, question string, opts *askOptions) error {
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

	svc, err := proj.answerService(ix)
	if err != nil {
		return err
	}

	ans, err := svc.Ask(cmd.Context(), question, kind, proj.resolveK(cmd, opts.k))
	if err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())
	if opts.format == "json" {
		if ans.Hits == nil {
			ans.Hits = []store.Hit{}
		}
		return out.JSON(ans)
	}

	_, _ = fmt.Fprintln(out.Out(), ans.Text)
	if len(ans.Hits) == 0 {
		return nil
	}
	out.Newline()
	out.Header("Sources")
	for _, h := range ans.Hits {
		out.KeyValue(answer.Citation(h.Metadata), output.Provenance(h.Metadata))
	}
	return nil
}
