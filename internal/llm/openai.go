package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	pkgerrors "github.com/doclens/pagerag/internal/errors"
)

const (
	// DefaultModel is the chat model used when none is configured.
	DefaultModel = "gpt-4o-mini"

	// DefaultTimeout bounds a single chat completion call.
	DefaultTimeout = 60 * time.Second

	// maxRetries is the retry budget for rate-limited calls.
	maxRetries = 3

	// baseBackoff and maxBackoff bound the exponential wait between retries.
	baseBackoff = 2 * time.Second
	maxBackoff  = 32 * time.Second
)

// ErrAPIKeyNotSet means no OpenAI API key was configured.
var ErrAPIKeyNotSet = errors.New("OpenAI API key not set")

// OpenAIClient implements CompletionClient over the OpenAI chat API.
type OpenAIClient struct {
	client  openai.Client
	model   string
	timeout time.Duration
}

// Verify interface implementation at compile time.
var _ CompletionClient = (*OpenAIClient)(nil)

// OpenAIClientConfig configures the chat client.
type OpenAIClientConfig struct {
	APIKey string
	Model  string
	// BaseURL overrides the API endpoint, for proxies and tests.
	BaseURL string
}

// NewOpenAIClient creates a chat client.
func NewOpenAIClient(cfg OpenAIClientConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, ErrAPIKeyNotSet
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIClient{
		client:  openai.NewClient(opts...),
		model:   cfg.Model,
		timeout: DefaultTimeout,
	}, nil
}

// Translate renders text into English.
func (c *OpenAIClient) Translate(ctx context.Context, text string) (string, error) {
	prompt := fmt.Sprintf(
		"Translate the following text to English. If it is already English, return it unchanged. "+
			"Return only the translation, no commentary.\n\nText: %s", text)

	out, err := c.complete(ctx, prompt, 0.0, false)
	if err != nil {
		return "", pkgerrors.TransientService("translate", err)
	}
	return strings.TrimSpace(out), nil
}

type expansionResponse struct {
	Keywords     []string `json:"keywords"`
	Hypothetical string   `json:"hypothetical_answer"`
}

// Expand derives related keywords and a hypothetical answer passage.
func (c *OpenAIClient) Expand(ctx context.Context, query string) (Expansion, error) {
	prompt := fmt.Sprintf(
		"Given a short search query, produce JSON with two fields: "+
			`"keywords" (3-5 related search terms) and "hypothetical_answer" `+
			"(a 2-3 sentence passage written as if it directly answered the query).\n\n"+
			"Query: %s", query)

	out, err := c.complete(ctx, prompt, 0.3, true)
	if err != nil {
		return Expansion{}, pkgerrors.TransientService("expand", err)
	}

	exp, err := parseExpansion(out)
	if err != nil {
		return Expansion{}, pkgerrors.TransientService("expand", err)
	}
	return exp, nil
}

func parseExpansion(raw string) (Expansion, error) {
	var resp expansionResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return Expansion{}, fmt.Errorf("parse expansion response: %w", err)
	}
	return Expansion{Keywords: resp.Keywords, Hypothetical: strings.TrimSpace(resp.Hypothetical)}, nil
}

type scoresResponse struct {
	Scores []struct {
		Index int     `json:"index"`
		Score float64 `json:"score"`
	} `json:"scores"`
}

// ScoreRelevance grades each preview against the query on a 0-10 scale.
func (c *OpenAIClient) ScoreRelevance(ctx context.Context, query string, previews []string) ([]RelevanceScore, error) {
	if len(previews) == 0 {
		return []RelevanceScore{}, nil
	}

	var sb strings.Builder
	sb.WriteString("Rate how relevant each passage is to the question on a 0-10 scale ")
	sb.WriteString("(0 = unrelated, 10 = directly answers it). Return JSON: ")
	sb.WriteString(`{"scores": [{"index": 0, "score": 7.5}, ...]} with one entry per passage.`)
	sb.WriteString("\n\nQuestion: ")
	sb.WriteString(query)
	for i, preview := range previews {
		fmt.Fprintf(&sb, "\n\nPassage %d:\n%s", i, preview)
	}

	out, err := c.complete(ctx, sb.String(), 0.0, true)
	if err != nil {
		return nil, pkgerrors.TransientService("rerank", err)
	}

	scores, err := parseScores(out, len(previews))
	if err != nil {
		return nil, pkgerrors.TransientService("rerank", err)
	}
	return scores, nil
}

// parseScores validates the model output, dropping out-of-range indices and
// clamping scores to [0, 10].
func parseScores(raw string, n int) ([]RelevanceScore, error) {
	var resp scoresResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, fmt.Errorf("parse scores response: %w", err)
	}

	scores := make([]RelevanceScore, 0, len(resp.Scores))
	for _, s := range resp.Scores {
		if s.Index < 0 || s.Index >= n {
			continue
		}
		score := s.Score
		if score < 0 {
			score = 0
		}
		if score > 10 {
			score = 10
		}
		scores = append(scores, RelevanceScore{Index: s.Index, Score: score})
	}
	if len(scores) == 0 {
		return nil, fmt.Errorf("scores response contained no usable entries")
	}
	return scores, nil
}

// Close releases resources.
func (c *OpenAIClient) Close() error { return nil }

// complete issues a single-turn chat completion, retrying rate-limited calls
// with exponential backoff.
func (c *OpenAIClient) complete(ctx context.Context, prompt string, temperature float64, jsonOutput bool) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(temperature),
	}
	if jsonOutput {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{Type: "json_object"},
		}
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * baseBackoff
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}

		completion, err := c.client.Chat.Completions.New(ctx, params)
		if err != nil {
			lastErr = err
			if isRateLimitError(err) {
				continue
			}
			return "", fmt.Errorf("chat completion: %w", err)
		}
		if len(completion.Choices) == 0 {
			return "", fmt.Errorf("chat completion returned no choices")
		}
		return completion.Choices[0].Message.Content, nil
	}

	return "", fmt.Errorf("chat completion rate limited after %d retries: %w", maxRetries, lastErr)
}

func isRateLimitError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}
