package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/doclens/pagerag/internal/chunk"
	"github.com/doclens/pagerag/internal/output"
	"github.com/doclens/pagerag/internal/pipeline"
)

// progressPollInterval is how often the index command refreshes its
// progress bar.
const progressPollInterval = 200 * time.Millisecond

func newIndexCmd() *cobra.Command {
	var fileID string
	var textPath string
	var pagesPath string
	var captionsPath string

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Index a document for retrieval",
		Long: `Index chunks the extracted text of a document, embeds each chunk, and
persists it into the local hybrid index. Re-indexing the same file ID
replaces its previous content.

Page boundaries and image captions are optional JSON sidecars:

  --pages    [{"page": 1, "offset": 0}, {"page": 2, "offset": 2048}]
  --captions [{"page": 3, "text": "Diagram of the cooling loop"}]`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runIndex(cmd.Context(), fileID, textPath, pagesPath, captionsPath)
		},
	}

	cmd.Flags().StringVar(&fileID, "file", "", "Document identifier")
	cmd.Flags().StringVar(&textPath, "text", "", "Path to the extracted document text")
	cmd.Flags().StringVar(&pagesPath, "pages", "", "Path to a JSON file of page boundaries")
	cmd.Flags().StringVar(&captionsPath, "captions", "", "Path to a JSON file of image captions")
	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("text")

	return cmd
}

func runIndex(ctx context.Context, fileID, textPath, pagesPath, captionsPath string) error {
	text, err := os.ReadFile(textPath)
	if err != nil {
		return fmt.Errorf("read document text: %w", err)
	}

	var pages []chunk.PageBoundary
	if pagesPath != "" {
		if err := readJSONFile(pagesPath, &pages); err != nil {
			return fmt.Errorf("read page boundaries: %w", err)
		}
	}

	var captions []chunk.Caption
	if captionsPath != "" {
		if err := readJSONFile(captionsPath, &captions); err != nil {
			return fmt.Errorf("read captions: %w", err)
		}
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	w := output.New(os.Stdout)
	done := make(chan struct{})
	go pollProgress(a.pipeline, w, done)

	err = a.pipeline.IndexDocument(ctx, fileID, string(text), pages, captions)
	close(done)
	w.ProgressDone()
	if err != nil {
		return fmt.Errorf("index %s: %w", fileID, err)
	}

	count, err := a.store.CountChunks(ctx, fileID)
	if err != nil {
		count = 0
	}
	if count == 0 {
		w.Warningf("%s contained no indexable text", fileID)
		return nil
	}
	w.Successf("indexed %s (%d chunks)", fileID, count)
	return nil
}

// pollProgress renders the indexing progress bar until done closes.
func pollProgress(p *pipeline.Pipeline, w *output.Writer, done <-chan struct{}) {
	ticker := time.NewTicker(progressPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			snap := p.Progress()
			if snap.Phase == pipeline.PhaseIdle {
				continue
			}
			w.Progress(int(snap.Progress*100), 100, string(snap.Phase))
		}
	}
}

func readJSONFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
