package search

import "strings"

// similarityFloor is the vector-score signal threshold for the
// low-confidence filter. Tunable, not load-bearing.
const similarityFloor = 0.25

// FilterLowConfidence drops chunks that fail all three relevance signals:
// vector similarity below the floor, zero lexical score, and no exact keyword
// overlap with the query's significant terms. Passing any one signal keeps
// the chunk. An emptied list means the query has no grounded answer.
func FilterLowConfidence(chunks []ScoredChunk, query string) []ScoredChunk {
	terms := significantTerms(query)

	kept := make([]ScoredChunk, 0, len(chunks))
	for _, ch := range chunks {
		if ch.Similarity >= similarityFloor {
			kept = append(kept, ch)
			continue
		}
		if ch.LexicalScore > 0 {
			kept = append(kept, ch)
			continue
		}
		if hasKeywordOverlap(ch.Content, terms) {
			kept = append(kept, ch)
		}
	}
	return kept
}

func hasKeywordOverlap(content string, terms []string) bool {
	lower := strings.ToLower(content)
	for _, term := range terms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}
