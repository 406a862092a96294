// Package llm provides the chat-completion services the query pipeline
// depends on: translation, query expansion, and relevance scoring.
package llm

import (
	"context"
)

// Expansion is the result of expanding a short query.
type Expansion struct {
	// Keywords are additional search terms related to the query.
	Keywords []string
	// Hypothetical is a short passage written as if it answered the query,
	// embedded in place of the raw query for better recall.
	Hypothetical string
}

// RelevanceScore grades one candidate chunk against a query.
type RelevanceScore struct {
	// Index refers to the candidate's position in the scored slice.
	Index int
	// Score is the graded relevance from 0 (unrelated) to 10 (direct answer).
	Score float64
}

// CompletionClient is the LLM boundary of the query pipeline. All methods are
// best-effort: callers degrade to untransformed input when a call fails.
type CompletionClient interface {
	// Translate renders text into English, returning it unchanged when it
	// already is English.
	Translate(ctx context.Context, text string) (string, error)

	// Expand derives related keywords and a hypothetical answer passage for
	// a short query.
	Expand(ctx context.Context, query string) (Expansion, error)

	// ScoreRelevance grades each preview against the query on a 0-10 scale.
	ScoreRelevance(ctx context.Context, query string, previews []string) ([]RelevanceScore, error)

	// Close releases resources.
	Close() error
}
