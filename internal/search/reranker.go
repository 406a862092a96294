package search

import (
	"context"
	"log/slog"
	"sort"
	"unicode/utf8"

	"github.com/doclens/pagerag/internal/llm"
)

// previewLength caps how much of each candidate is sent for scoring.
const previewLength = 300

// Reranker reorders candidates with an external relevance grade. It is
// strictly best-effort: any failure keeps the original hybrid-search order.
type Reranker struct {
	llm    llm.CompletionClient
	logger *slog.Logger
}

// NewReranker creates a reranker.
func NewReranker(client llm.CompletionClient, logger *slog.Logger) *Reranker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reranker{llm: client, logger: logger}
}

// Rerank grades each candidate against the query (0-10) and reorders by
// grade descending. Reranking is only attempted when there are more
// candidates than the desired final count; otherwise the order cannot change
// the outcome and the external call is saved.
func (r *Reranker) Rerank(ctx context.Context, chunks []ScoredChunk, query string, desiredFinal int) []ScoredChunk {
	if len(chunks) <= desiredFinal {
		return chunks
	}

	previews := make([]string, len(chunks))
	for i, ch := range chunks {
		previews[i] = preview(ch.Content)
	}

	scores, err := r.llm.ScoreRelevance(ctx, query, previews)
	if err != nil {
		r.logger.Warn("rerank failed, keeping hybrid order",
			slog.String("error", err.Error()))
		return chunks
	}

	graded := make([]ScoredChunk, len(chunks))
	copy(graded, chunks)
	for _, s := range scores {
		// The index comes from an external response; never trust it blindly.
		if s.Index < 0 || s.Index >= len(graded) {
			continue
		}
		graded[s.Index].RerankScore = s.Score
	}

	sort.SliceStable(graded, func(i, j int) bool {
		return graded[i].RerankScore > graded[j].RerankScore
	})
	return graded
}

func preview(content string) string {
	if len(content) <= previewLength {
		return content
	}
	// Back off to a rune boundary so the preview stays valid UTF-8.
	cut := previewLength
	for cut > 0 && !utf8.RuneStart(content[cut]) {
		cut--
	}
	return content[:cut]
}
