// Package pipeline orchestrates the retrieval pipeline: document indexing
// (chunk, embed, persist) and query execution (preprocess, hybrid search,
// rerank, filter, context assembly).
package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/doclens/pagerag/internal/chunk"
	"github.com/doclens/pagerag/internal/embed"
	pkgerrors "github.com/doclens/pagerag/internal/errors"
	"github.com/doclens/pagerag/internal/llm"
	"github.com/doclens/pagerag/internal/search"
	"github.com/doclens/pagerag/internal/store"
)

// Defaults.
const (
	// DefaultFinalChunks is how many chunks survive into the context.
	DefaultFinalChunks = 5

	// DefaultRateDelay spaces successive embedding calls during indexing.
	DefaultRateDelay = 100 * time.Millisecond

	// Token budgets by query shape.
	BudgetComparison = 2000
	BudgetShort      = 800
	BudgetDefault    = 1200

	// shortQueryWords: queries under this word count get the small budget.
	shortQueryWords = 6

	// embeddingShare is the progress fraction the embedding phase covers.
	embeddingShare = 0.9
)

// comparisonKeywords trigger the large token budget.
var comparisonKeywords = []string{"compare", "comparison", "difference", "differences", "versus", " vs "}

// EmbeddingCache is the cache surface the orchestrator needs.
type EmbeddingCache interface {
	GetOrCreate(ctx context.Context, text string) ([]float32, error)
	Clear(ctx context.Context) error
	CleanupDisk(ctx context.Context) error
	Stats() embed.CacheStats
}

// QueryOptions toggles the optional query stages.
type QueryOptions struct {
	Rerank bool
	Expand bool
}

// Config tunes the orchestrator.
type Config struct {
	TopK                int
	SimilarityThreshold float64
	FinalChunks         int
	// TokenBudget overrides the context budget for ordinary queries.
	TokenBudget     int
	RateDelay       time.Duration
	ChunkTargetSize int
	ChunkOverlap    int
	Logger          *slog.Logger
}

// Pipeline wires the retrieval components together. Construct one per
// process and pass it by reference; it owns no global state.
type Pipeline struct {
	chunker      *chunk.Chunker
	cache        EmbeddingCache
	store        store.ChunkStore
	searcher     *search.Service
	preprocessor *search.Preprocessor
	reranker     *search.Reranker
	builder      *search.ContextBuilder
	logger       *slog.Logger

	finalChunks   int
	topK          int
	defaultBudget int
	rateDelay     time.Duration

	// Indexing is single-flight per file and serialized pipeline-wide.
	group   singleflight.Group
	indexMu sync.Mutex

	progressMu sync.RWMutex
	current    *sessionProgress
}

// New creates the pipeline from its collaborators.
func New(st store.ChunkStore, cache EmbeddingCache, client llm.CompletionClient, cfg Config) *Pipeline {
	if cfg.TopK <= 0 {
		cfg.TopK = search.DefaultTopK
	}
	if cfg.FinalChunks <= 0 {
		cfg.FinalChunks = DefaultFinalChunks
	}
	if cfg.TokenBudget <= 0 {
		cfg.TokenBudget = BudgetDefault
	}
	if cfg.RateDelay == 0 {
		cfg.RateDelay = DefaultRateDelay
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	chunker := chunk.New()
	if cfg.ChunkTargetSize > 0 {
		chunker = chunk.NewWithOptions(chunk.Options{
			TargetSize: cfg.ChunkTargetSize,
			Overlap:    cfg.ChunkOverlap,
		})
	}

	return &Pipeline{
		chunker: chunker,
		cache:   cache,
		store:   st,
		searcher: search.NewService(st, cache, search.ServiceConfig{
			TopK:                cfg.TopK,
			SimilarityThreshold: cfg.SimilarityThreshold,
			Logger:              cfg.Logger,
		}),
		preprocessor:  search.NewPreprocessor(client, cfg.Logger),
		reranker:      search.NewReranker(client, cfg.Logger),
		builder:       search.NewContextBuilder(cfg.Logger),
		logger:        cfg.Logger,
		finalChunks:   cfg.FinalChunks,
		topK:          cfg.TopK,
		defaultBudget: cfg.TokenBudget,
		rateDelay:     cfg.RateDelay,
	}
}

// IndexDocument chunks, embeds, and persists a document. Concurrent calls
// for the same file share one underlying run; sessions for different files
// are serialized pipeline-wide. The session runs to completion even when the
// caller abandons the wait, since other callers may be joined to it.
func (p *Pipeline) IndexDocument(ctx context.Context, fileID string, text string, pages []chunk.PageBoundary, captions []chunk.Caption) error {
	ch := p.group.DoChan(fileID, func() (any, error) {
		return nil, p.runIndexSession(fileID, text, pages, captions)
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runIndexSession executes one indexing session under the pipeline-wide
// serialization lock, on a detached context.
func (p *Pipeline) runIndexSession(fileID string, text string, pages []chunk.PageBoundary, captions []chunk.Caption) error {
	p.indexMu.Lock()
	defer p.indexMu.Unlock()

	ctx := context.Background()
	session := newSessionProgress(uuid.New().String(), fileID)
	p.setCurrent(session)

	logger := p.logger.With(
		slog.String("session_id", session.sessionID),
		slog.String("file_id", fileID))
	logger.Info("indexing started")

	chunks := p.chunker.Chunk(text, fileID, pages, captions)
	if len(chunks) == 0 {
		// Replace semantics hold even for empty input: a re-index with no
		// content drops the previous chunk set instead of leaving it live.
		if err := p.store.DeleteChunks(ctx, fileID); err != nil {
			session.setError(err.Error())
			logger.Error("clearing previous chunks failed", slog.String("error", err.Error()))
			return err
		}
		logger.Info("nothing to index")
		session.setCompleted()
		return nil
	}

	session.setPhase(PhaseEmbedding)
	records := make([]store.ChunkRecord, 0, len(chunks))
	var lastErr error
	for i, ch := range chunks {
		if i > 0 && p.rateDelay > 0 {
			time.Sleep(p.rateDelay)
		}

		vec, err := p.cache.GetOrCreate(ctx, ch.Content)
		if err != nil {
			lastErr = err
			logger.Warn("chunk embedding failed, skipping",
				slog.Int("chunk_index", ch.Index),
				slog.String("error", err.Error()))
			continue
		}
		records = append(records, store.ChunkRecord{Chunk: ch, Vector: vec})
		session.setProgress(embeddingShare * float64(i+1) / float64(len(chunks)))
	}

	if len(records) == 0 {
		err := pkgerrors.EmbeddingFailed(lastErr).WithDetail("file_id", fileID)
		session.setError(err.Error())
		logger.Error("indexing failed, no chunk could be embedded")
		return err
	}

	session.setPhase(PhasePersisting)
	if err := p.store.InsertChunks(ctx, fileID, records); err != nil {
		session.setError(err.Error())
		logger.Error("persisting chunks failed", slog.String("error", err.Error()))
		return err
	}

	session.setCompleted()
	logger.Info("indexing completed",
		slog.Int("chunks", len(chunks)),
		slog.Int("embedded", len(records)))
	return nil
}

// PerformQuery answers a question against one file's indexed content. Zero
// matching chunks yields ("", []) without error; optional-stage failures
// degrade silently. Only a store failure on the core search surfaces.
func (p *Pipeline) PerformQuery(ctx context.Context, query string, fileID string, opts QueryOptions) (string, []chunk.Chunk, error) {
	if strings.TrimSpace(query) == "" {
		return "", nil, pkgerrors.New(pkgerrors.ErrCodeQueryEmpty, "query is empty", nil)
	}

	resolved := p.preprocessor.ResolveQuery(ctx, query, opts.Expand)

	candidates, err := p.searcher.HybridSearch(ctx, resolved, fileID, p.topK)
	if err != nil {
		return "", nil, err
	}
	if len(candidates) == 0 {
		return "", []chunk.Chunk{}, nil
	}

	if opts.Rerank {
		candidates = p.reranker.Rerank(ctx, candidates, query, p.finalChunks)
	}

	candidates = search.FilterLowConfidence(candidates, query)
	if len(candidates) == 0 {
		return "", []chunk.Chunk{}, nil
	}
	if len(candidates) > p.finalChunks {
		candidates = candidates[:p.finalChunks]
	}

	budget := chooseTokenBudget(query, p.defaultBudget)
	contextText := p.builder.BuildWithTokenLimit(candidates, budget)

	cited := make([]chunk.Chunk, len(candidates))
	for i, c := range candidates {
		cited[i] = c.Chunk
	}
	return contextText, cited, nil
}

// chooseTokenBudget picks the context budget from the query shape:
// comparison questions need room for both sides, short simple questions
// rarely need much. Other queries get the fallback budget.
func chooseTokenBudget(query string, fallback int) int {
	lower := strings.ToLower(query)
	for _, kw := range comparisonKeywords {
		if strings.Contains(lower, kw) {
			return BudgetComparison
		}
	}
	if len(strings.Fields(query)) < shortQueryWords {
		return BudgetShort
	}
	return fallback
}

// IsDocumentIndexed reports whether the file has stored chunks.
func (p *Pipeline) IsDocumentIndexed(ctx context.Context, fileID string) bool {
	count, err := p.store.CountChunks(ctx, fileID)
	if err != nil {
		p.logger.Warn("chunk count failed",
			slog.String("file_id", fileID),
			slog.String("error", err.Error()))
		return false
	}
	return count > 0
}

// DeleteDocument removes a file's chunks from the store.
func (p *Pipeline) DeleteDocument(ctx context.Context, fileID string) error {
	return p.store.DeleteChunks(ctx, fileID)
}

// Progress returns the current (or last) indexing session snapshot.
func (p *Pipeline) Progress() ProgressSnapshot {
	p.progressMu.RLock()
	defer p.progressMu.RUnlock()
	if p.current == nil {
		return ProgressSnapshot{Phase: PhaseIdle}
	}
	return p.current.snapshot()
}

func (p *Pipeline) setCurrent(s *sessionProgress) {
	p.progressMu.Lock()
	defer p.progressMu.Unlock()
	p.current = s
}

// ClearCache drops both embedding cache tiers.
func (p *Pipeline) ClearCache(ctx context.Context) error {
	return p.cache.Clear(ctx)
}

// CleanupDiskCache prunes the disk cache tier per retention policy.
func (p *Pipeline) CleanupDiskCache(ctx context.Context) error {
	return p.cache.CleanupDisk(ctx)
}

// CacheStats reports embedding cache counters.
func (p *Pipeline) CacheStats() embed.CacheStats {
	return p.cache.Stats()
}
