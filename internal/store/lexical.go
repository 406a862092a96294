package store

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search"
	"github.com/blevesearch/bleve/v2/search/query"
)

// LexicalIndex wraps Bleve v2 for BM25 keyword search over chunk content.
type LexicalIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
}

// lexicalDocument is the document shape stored in Bleve.
type lexicalDocument struct {
	Content string `json:"content"`
	FileID  string `json:"file_id"`
}

// NewLexicalIndex opens or creates a BM25 index at path.
// An empty path creates an in-memory index for testing.
func NewLexicalIndex(path string) (*LexicalIndex, error) {
	indexMapping := createLexicalMapping()

	var idx bleve.Index
	var err error
	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, indexMapping)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("open lexical index: %w", err)
	}

	return &LexicalIndex{index: idx, path: path}, nil
}

// createLexicalMapping builds the index mapping: English analysis for content,
// exact-match keyword field for file scoping.
func createLexicalMapping() *mapping.IndexMappingImpl {
	contentField := bleve.NewTextFieldMapping()
	contentField.Analyzer = en.AnalyzerName

	fileIDField := bleve.NewTextFieldMapping()
	fileIDField.Analyzer = keyword.Name
	fileIDField.IncludeInAll = false

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("content", contentField)
	docMapping.AddFieldMappingsAt("file_id", fileIDField)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping
	indexMapping.DefaultAnalyzer = en.AnalyzerName
	return indexMapping
}

// Index adds or replaces chunks in the index.
func (l *LexicalIndex) Index(ctx context.Context, records []ChunkRecord) error {
	if len(records) == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return fmt.Errorf("lexical index is closed")
	}

	batch := l.index.NewBatch()
	for _, rec := range records {
		doc := lexicalDocument{Content: rec.Chunk.Content, FileID: rec.Chunk.FileID}
		if err := batch.Index(rec.Chunk.ID, doc); err != nil {
			return fmt.Errorf("index chunk %s: %w", rec.Chunk.ID, err)
		}
	}

	if err := l.index.Batch(batch); err != nil {
		return fmt.Errorf("execute index batch: %w", err)
	}
	return nil
}

// Search returns up to limit chunks matching query, scored by BM25.
// A non-empty fileID restricts results to chunks of that file.
func (l *LexicalIndex) Search(ctx context.Context, queryStr string, fileID string, limit int) ([]LexicalHit, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return nil, fmt.Errorf("lexical index is closed")
	}
	if strings.TrimSpace(queryStr) == "" {
		return []LexicalHit{}, nil
	}

	matchQuery := bleve.NewMatchQuery(queryStr)
	matchQuery.SetField("content")

	var searchQuery query.Query = matchQuery
	if fileID != "" {
		fileQuery := bleve.NewTermQuery(fileID)
		fileQuery.SetField("file_id")
		searchQuery = bleve.NewConjunctionQuery(matchQuery, fileQuery)
	}

	req := bleve.NewSearchRequest(searchQuery)
	req.Size = limit
	req.IncludeLocations = true

	result, err := l.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}

	hits := make([]LexicalHit, 0, len(result.Hits))
	for _, hit := range result.Hits {
		hits = append(hits, LexicalHit{
			ChunkID:      hit.ID,
			Score:        hit.Score,
			MatchedTerms: extractMatchedTerms(hit),
		})
	}
	return hits, nil
}

// DeleteByFile removes all chunks of a file from the index.
func (l *LexicalIndex) DeleteByFile(ctx context.Context, fileID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return fmt.Errorf("lexical index is closed")
	}

	termQuery := bleve.NewTermQuery(fileID)
	termQuery.SetField("file_id")

	docCount, _ := l.index.DocCount()
	req := bleve.NewSearchRequest(termQuery)
	req.Size = int(docCount)
	req.Fields = []string{}

	result, err := l.index.SearchInContext(ctx, req)
	if err != nil {
		return fmt.Errorf("find chunks of file %s: %w", fileID, err)
	}
	if len(result.Hits) == 0 {
		return nil
	}

	batch := l.index.NewBatch()
	for _, hit := range result.Hits {
		batch.Delete(hit.ID)
	}
	if err := l.index.Batch(batch); err != nil {
		return fmt.Errorf("delete chunks of file %s: %w", fileID, err)
	}
	return nil
}

// Delete removes specific chunks from the index.
func (l *LexicalIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return fmt.Errorf("lexical index is closed")
	}

	batch := l.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	if err := l.index.Batch(batch); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	return nil
}

// DocCount returns the number of indexed chunks.
func (l *LexicalIndex) DocCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return 0
	}
	n, _ := l.index.DocCount()
	return int(n)
}

// Close closes the underlying Bleve index.
func (l *LexicalIndex) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	return l.index.Close()
}

// extractMatchedTerms collects the analyzed terms that matched in the content
// field of a hit.
func extractMatchedTerms(hit *search.DocumentMatch) []string {
	terms := make(map[string]struct{})
	for field, locations := range hit.Locations {
		if field != "content" {
			continue
		}
		for term := range locations {
			terms[term] = struct{}{}
		}
	}

	result := make([]string, 0, len(terms))
	for term := range terms {
		result = append(result, term)
	}
	return result
}
