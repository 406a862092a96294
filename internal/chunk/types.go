// Package chunk splits extracted document text into page-aware, bounded
// segments that form the unit of indexing and retrieval.
package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Chunk size defaults, in characters.
const (
	// DefaultTargetSize is the target chunk size.
	DefaultTargetSize = 1000

	// DefaultOverlap is the overlap carried between consecutive chunks so a
	// sentence cut at a boundary stays retrievable from both sides.
	DefaultOverlap = 200

	// cutWindow is how far back from the target size the splitter looks for a
	// natural break (paragraph, sentence, word).
	cutWindow = 250
)

// Chunk is a retrievable unit of document content.
type Chunk struct {
	ID         string // deterministic: hash(fileID, index)
	FileID     string // owning document
	Index      int    // 0-based, contiguous per document
	Content    string
	PageNumber int  // 1-based; 0 when unknown
	IsCaption  bool // true for image-caption side chunks
}

// PageBoundary marks where a page starts in the extracted text.
type PageBoundary struct {
	Page   int // 1-based page number
	Offset int // byte offset into the text where this page begins
}

// Caption is an AI-generated image description anchored to a page.
type Caption struct {
	Page int
	Text string
}

// chunkID derives a stable chunk identifier from file and position.
// Stable IDs make a re-index an upsert rather than an accumulating insert.
func chunkID(fileID string, index int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d", fileID, index)))
	return hex.EncodeToString(sum[:])[:16]
}
