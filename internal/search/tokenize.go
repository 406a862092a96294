// Package search implements the query half of the pipeline: hybrid
// vector+lexical retrieval, query preprocessing, reranking, low-confidence
// filtering, and token-budgeted context assembly.
package search

import (
	"strings"
	"unicode"
)

// minTermLength is the shortest token treated as a significant query term.
const minTermLength = 3

// stopWords are common English terms excluded from keyword matching.
var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "but": {}, "not": {},
	"you": {}, "all": {}, "can": {}, "had": {}, "her": {}, "was": {},
	"one": {}, "our": {}, "out": {}, "has": {}, "him": {}, "his": {},
	"how": {}, "its": {}, "may": {}, "who": {}, "did": {}, "get": {},
	"this": {}, "that": {}, "with": {}, "from": {}, "have": {}, "what": {},
	"when": {}, "where": {}, "which": {}, "will": {}, "would": {},
	"there": {}, "their": {}, "about": {}, "into": {}, "than": {},
	"them": {}, "then": {}, "they": {}, "were": {}, "your": {},
	"does": {}, "don": {}, "should": {}, "could": {}, "been": {},
	"being": {}, "because": {}, "between": {}, "both": {}, "each": {},
	"more": {}, "most": {}, "other": {}, "some": {}, "such": {},
	"only": {}, "over": {}, "same": {}, "very": {},
}

// significantTerms lowercases and tokenizes a query, keeping terms long
// enough to matter and excluding stop words.
func significantTerms(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})

	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < minTermLength {
			continue
		}
		if _, isStop := stopWords[f]; isStop {
			continue
		}
		terms = append(terms, f)
	}
	return terms
}

// nonASCIIRatio reports the fraction of letters outside the ASCII range,
// used as a cheap signal that the query is not in the index language.
func nonASCIIRatio(text string) float64 {
	var letters, nonASCII int
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if r > unicode.MaxASCII {
			nonASCII++
		}
	}
	if letters == 0 {
		return 0
	}
	return float64(nonASCII) / float64(letters)
}

// wordCount counts whitespace-separated words.
func wordCount(text string) int {
	return len(strings.Fields(text))
}
