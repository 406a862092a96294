package search

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// tokenEncoding is the tiktoken encoding used for budget estimates. It
// matches the OpenAI embedding and chat models the pipeline targets.
const tokenEncoding = "cl100k_base"

// ContextBuilder assembles the final prompt context from surviving chunks
// under a token budget.
type ContextBuilder struct {
	once     sync.Once
	encoding *tiktoken.Tiktoken
	logger   *slog.Logger
}

// NewContextBuilder creates a context builder. The tiktoken encoding is
// loaded lazily on first use.
func NewContextBuilder(logger *slog.Logger) *ContextBuilder {
	if logger == nil {
		logger = slog.Default()
	}
	return &ContextBuilder{logger: logger}
}

// BuildWithTokenLimit concatenates chunk content in ranking order, separated
// by blank lines, without exceeding maxTokens. A chunk that would overflow
// the budget is dropped whole rather than truncated mid-sentence.
func (b *ContextBuilder) BuildWithTokenLimit(chunks []ScoredChunk, maxTokens int) string {
	if maxTokens <= 0 || len(chunks) == 0 {
		return ""
	}

	var sb strings.Builder
	used := 0
	for _, ch := range chunks {
		cost := b.CountTokens(ch.Content)
		if used > 0 {
			cost += b.CountTokens("\n\n")
		}
		if used+cost > maxTokens {
			continue
		}
		if used > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(ch.Content)
		used += cost
	}
	return sb.String()
}

// CountTokens estimates the token count of text. When the tiktoken encoding
// cannot be loaded, a chars/4 approximation is used instead.
func (b *ContextBuilder) CountTokens(text string) int {
	b.once.Do(func() {
		enc, err := tiktoken.GetEncoding(tokenEncoding)
		if err != nil {
			b.logger.Warn("tiktoken encoding unavailable, using char estimate",
				slog.String("error", err.Error()))
			return
		}
		b.encoding = enc
	})

	if b.encoding != nil {
		return len(b.encoding.Encode(text, nil, nil))
	}
	return (len(text) + 3) / 4
}
