package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/doclens/pagerag/internal/output"
	"github.com/doclens/pagerag/internal/pipeline"
)

func newQueryCmd() *cobra.Command {
	var fileID string
	var noRerank bool
	var noExpand bool

	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Ask a question against an indexed document",
		Long: `Query retrieves the most relevant chunks of an indexed document and
prints them as an assembled context block with page-level citations.

Reranking and query expansion improve quality but cost extra API calls;
disable them with --no-rerank and --no-expand.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd.Context(), args[0], fileID, pipeline.QueryOptions{
				Rerank: !noRerank,
				Expand: !noExpand,
			})
		},
	}

	cmd.Flags().StringVar(&fileID, "file", "", "Document identifier")
	cmd.Flags().BoolVar(&noRerank, "no-rerank", false, "Skip LLM reranking")
	cmd.Flags().BoolVar(&noExpand, "no-expand", false, "Skip query expansion")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func runQuery(ctx context.Context, question, fileID string, opts pipeline.QueryOptions) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	w := output.New(os.Stdout)

	if !a.pipeline.IsDocumentIndexed(ctx, fileID) {
		return fmt.Errorf("%s is not indexed, run 'pagerag index' first", fileID)
	}

	contextText, cited, err := a.pipeline.PerformQuery(ctx, question, fileID, opts)
	if err != nil {
		return err
	}
	if len(cited) == 0 {
		w.Warning("no relevant content found")
		return nil
	}

	w.Header("Context")
	fmt.Println(contextText)
	w.Newline()

	w.Header("Sources")
	for _, c := range cited {
		w.Status(citation(c.PageNumber, c.Index, c.IsCaption))
	}
	return nil
}

// citation formats one source line.
func citation(page, index int, isCaption bool) string {
	loc := "page unknown"
	if page > 0 {
		loc = fmt.Sprintf("page %d", page)
	}
	if isCaption {
		return fmt.Sprintf("%s, image caption", loc)
	}
	return fmt.Sprintf("%s, chunk %d", loc, index)
}
