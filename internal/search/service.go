package search

import (
	"context"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/doclens/pagerag/internal/chunk"
	"github.com/doclens/pagerag/internal/store"
)

// Search defaults.
const (
	// DefaultTopK is the candidate count per query.
	DefaultTopK = 10

	// DefaultSimilarityThreshold is the vector-leg cutoff.
	DefaultSimilarityThreshold = 0.25

	// Combined-score weights. Vector similarity dominates; the lexical leg
	// mostly rescues exact-term matches the embedding missed.
	vectorWeight  = 0.7
	lexicalWeight = 0.3
)

// EmbeddingProvider produces the query embedding, normally the tiered cache.
type EmbeddingProvider interface {
	GetOrCreate(ctx context.Context, text string) ([]float32, error)
}

// ScoredChunk is a chunk with the retrieval scores of a single query.
// Ephemeral, never persisted.
type ScoredChunk struct {
	chunk.Chunk
	// Similarity is the cosine similarity, zero if the chunk only
	// appeared in the lexical leg.
	Similarity float64
	// LexicalScore is the BM25 score, zero if vector-only.
	LexicalScore float64
	// RerankScore is the 0-10 external grade, set only after reranking.
	RerankScore float64
	// Combined is the merged ranking score.
	Combined     float64
	MatchedTerms []string
}

// Service runs hybrid retrieval against the chunk store.
type Service struct {
	store     store.ChunkStore
	embedder  EmbeddingProvider
	topK      int
	threshold float64
	logger    *slog.Logger
}

// ServiceConfig configures the search service.
type ServiceConfig struct {
	TopK                int
	SimilarityThreshold float64
	Logger              *slog.Logger
}

// NewService creates a search service over the given store and embedder.
func NewService(st store.ChunkStore, embedder EmbeddingProvider, cfg ServiceConfig) *Service {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = DefaultSimilarityThreshold
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		store:     st,
		embedder:  embedder,
		topK:      cfg.TopK,
		threshold: cfg.SimilarityThreshold,
		logger:    cfg.Logger,
	}
}

// HybridSearch runs the vector and lexical legs in parallel and merges the
// results by chunk identity: a chunk in both lists carries both scores, a
// chunk in one list carries zero for the other. The merged list is capped at
// topK, ordered by combined score descending with ties broken by chunk index
// ascending. A failed query embedding degrades to lexical-only retrieval.
func (s *Service) HybridSearch(ctx context.Context, query string, fileID string, topK int) ([]ScoredChunk, error) {
	if topK <= 0 {
		topK = s.topK
	}

	var vectorHits []store.VectorHit
	var lexicalHits []store.LexicalHit

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		vec, err := s.embedder.GetOrCreate(gctx, query)
		if err != nil {
			s.logger.Warn("query embedding failed, vector leg skipped",
				slog.String("error", err.Error()))
			return nil
		}
		hits, err := s.store.VectorSearch(gctx, vec, fileID, topK, s.threshold)
		if err != nil {
			return err
		}
		vectorHits = hits
		return nil
	})
	g.Go(func() error {
		hits, err := s.store.LexicalSearch(gctx, query, fileID, topK)
		if err != nil {
			return err
		}
		lexicalHits = hits
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return s.merge(ctx, vectorHits, lexicalHits, topK)
}

// Search runs the vector leg alone.
func (s *Service) Search(ctx context.Context, query string, fileID string, topK int) ([]ScoredChunk, error) {
	if topK <= 0 {
		topK = s.topK
	}
	vec, err := s.embedder.GetOrCreate(ctx, query)
	if err != nil {
		return nil, err
	}
	hits, err := s.store.VectorSearch(ctx, vec, fileID, topK, s.threshold)
	if err != nil {
		return nil, err
	}
	return s.merge(ctx, hits, nil, topK)
}

// SearchBM25 runs the lexical leg alone.
func (s *Service) SearchBM25(ctx context.Context, query string, fileID string, topK int) ([]ScoredChunk, error) {
	if topK <= 0 {
		topK = s.topK
	}
	hits, err := s.store.LexicalSearch(ctx, query, fileID, topK)
	if err != nil {
		return nil, err
	}
	return s.merge(ctx, nil, hits, topK)
}

// merge joins the two hit lists by chunk ID, loads chunk metadata, computes
// combined scores, and orders the result deterministically.
func (s *Service) merge(ctx context.Context, vectorHits []store.VectorHit, lexicalHits []store.LexicalHit, topK int) ([]ScoredChunk, error) {
	type scorePair struct {
		similarity   float64
		lexical      float64
		matchedTerms []string
	}

	byID := make(map[string]*scorePair)
	order := make([]string, 0, len(vectorHits)+len(lexicalHits))
	for _, h := range vectorHits {
		if _, seen := byID[h.ChunkID]; !seen {
			byID[h.ChunkID] = &scorePair{}
			order = append(order, h.ChunkID)
		}
		byID[h.ChunkID].similarity = h.Score
	}

	var maxLexical float64
	for _, h := range lexicalHits {
		if h.Score > maxLexical {
			maxLexical = h.Score
		}
	}
	for _, h := range lexicalHits {
		if _, seen := byID[h.ChunkID]; !seen {
			byID[h.ChunkID] = &scorePair{}
			order = append(order, h.ChunkID)
		}
		byID[h.ChunkID].lexical = h.Score
		byID[h.ChunkID].matchedTerms = h.MatchedTerms
	}

	if len(order) == 0 {
		return []ScoredChunk{}, nil
	}

	chunks, err := s.store.GetChunks(ctx, order)
	if err != nil {
		return nil, err
	}

	results := make([]ScoredChunk, 0, len(chunks))
	for _, ch := range chunks {
		pair := byID[ch.ID]
		normLexical := 0.0
		if maxLexical > 0 {
			normLexical = pair.lexical / maxLexical
		}
		results = append(results, ScoredChunk{
			Chunk:        ch,
			Similarity:   pair.similarity,
			LexicalScore: pair.lexical,
			Combined:     vectorWeight*pair.similarity + lexicalWeight*normLexical,
			MatchedTerms: pair.matchedTerms,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Combined != results[j].Combined {
			return results[i].Combined > results[j].Combined
		}
		return results[i].Index < results[j].Index
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}
