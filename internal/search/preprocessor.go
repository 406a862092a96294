package search

import (
	"context"
	"log/slog"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/doclens/pagerag/internal/llm"
)

const (
	// expansionWordThreshold: queries shorter than this many words get
	// keyword + HyDE expansion.
	expansionWordThreshold = 4

	// foreignRatioThreshold: above this fraction of non-ASCII letters the
	// query is treated as non-English and translated before retrieval.
	foreignRatioThreshold = 0.3

	// translationCacheSize bounds the per-process translation cache.
	// Repeated queries are common when a user refines a question.
	translationCacheSize = 256
)

// Preprocessor normalizes a user query before retrieval: best-effort
// translation into the index language, then optional expansion for short
// queries. Both transformations are independently skippable; a failure never
// aborts the query.
type Preprocessor struct {
	llm          llm.CompletionClient
	translations *lru.Cache[string, string]
	logger       *slog.Logger
}

// NewPreprocessor creates a query preprocessor.
func NewPreprocessor(client llm.CompletionClient, logger *slog.Logger) *Preprocessor {
	if logger == nil {
		logger = slog.Default()
	}
	cache, _ := lru.New[string, string](translationCacheSize)
	return &Preprocessor{llm: client, translations: cache, logger: logger}
}

// ResolveQuery returns the query text to use for retrieval.
func (p *Preprocessor) ResolveQuery(ctx context.Context, query string, allowExpansion bool) string {
	resolved := p.translateIfForeign(ctx, query)

	if allowExpansion && wordCount(resolved) < expansionWordThreshold {
		if expanded := p.expand(ctx, resolved); expanded != "" {
			resolved = expanded
		}
	}
	return resolved
}

// translateIfForeign translates the query when it does not look like the
// index language. Results are cached by the raw query string.
func (p *Preprocessor) translateIfForeign(ctx context.Context, query string) string {
	if nonASCIIRatio(query) <= foreignRatioThreshold {
		return query
	}

	if cached, ok := p.translations.Get(query); ok {
		return cached
	}

	translated, err := p.llm.Translate(ctx, query)
	if err != nil || strings.TrimSpace(translated) == "" {
		p.logger.Debug("query translation skipped",
			slog.String("query", query),
			slog.Any("error", err))
		return query
	}

	p.translations.Add(query, translated)
	return translated
}

// expand widens a short query with related keywords and a hypothetical
// answer passage. Returns "" when expansion fails or yields nothing.
func (p *Preprocessor) expand(ctx context.Context, query string) string {
	exp, err := p.llm.Expand(ctx, query)
	if err != nil {
		p.logger.Debug("query expansion skipped",
			slog.String("query", query),
			slog.String("error", err.Error()))
		return ""
	}

	parts := make([]string, 0, 3)
	parts = append(parts, query)
	if len(exp.Keywords) > 0 {
		parts = append(parts, strings.Join(exp.Keywords, " "))
	}
	if exp.Hypothetical != "" {
		parts = append(parts, exp.Hypothetical)
	}
	if len(parts) == 1 {
		return ""
	}
	return strings.Join(parts, "\n")
}
