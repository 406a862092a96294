package chunk

import (
	"sort"
	"strings"
	"unicode/utf8"
)

// Chunker splits document text into bounded, overlapping segments.
type Chunker struct {
	targetSize int
	overlap    int
}

// Options configures a Chunker.
type Options struct {
	// TargetSize is the target chunk size in characters.
	TargetSize int
	// Overlap is the number of characters repeated between consecutive chunks.
	Overlap int
}

// New creates a Chunker with default sizing.
func New() *Chunker {
	return NewWithOptions(Options{})
}

// NewWithOptions creates a Chunker with explicit sizing.
func NewWithOptions(opts Options) *Chunker {
	if opts.TargetSize <= 0 {
		opts.TargetSize = DefaultTargetSize
	}
	if opts.Overlap < 0 || opts.Overlap >= opts.TargetSize {
		opts.Overlap = DefaultOverlap
		if opts.Overlap >= opts.TargetSize {
			opts.Overlap = opts.TargetSize / 5
		}
	}
	return &Chunker{targetSize: opts.TargetSize, overlap: opts.Overlap}
}

// Chunk splits text into page-tagged segments and appends caption chunks.
// Returns an empty slice when the text holds no extractable content; callers
// treat that as "nothing to index", not an error.
func (c *Chunker) Chunk(text, fileID string, pages []PageBoundary, captions []Caption) []Chunk {
	var chunks []Chunk

	if strings.TrimSpace(text) != "" {
		chunks = c.splitText(text, fileID, pages)
	}

	// Captions become standalone chunks so a picture's description is
	// independently retrievable.
	for _, cap := range captions {
		if strings.TrimSpace(cap.Text) == "" {
			continue
		}
		idx := len(chunks)
		chunks = append(chunks, Chunk{
			ID:         chunkID(fileID, idx),
			FileID:     fileID,
			Index:      idx,
			Content:    strings.TrimSpace(cap.Text),
			PageNumber: cap.Page,
			IsCaption:  true,
		})
	}

	if chunks == nil {
		return []Chunk{}
	}
	return chunks
}

// splitText produces the body chunks with overlap and page attribution.
func (c *Chunker) splitText(text, fileID string, pages []PageBoundary) []Chunk {
	boundaries := normalizeBoundaries(pages, len(text))

	var chunks []Chunk
	start := 0
	for start < len(text) {
		end := start + c.targetSize
		if end >= len(text) {
			end = len(text)
		} else {
			end = c.findCut(text, start, end)
		}

		segment := strings.TrimSpace(text[start:end])
		if segment != "" {
			idx := len(chunks)
			chunks = append(chunks, Chunk{
				ID:         chunkID(fileID, idx),
				FileID:     fileID,
				Index:      idx,
				Content:    segment,
				PageNumber: majorityPage(boundaries, start, end),
			})
		}

		if end == len(text) {
			break
		}
		next := snapToRuneStart(text, end-c.overlap)
		if next <= start {
			_, size := utf8.DecodeRuneInString(text[start:])
			next = start + size
		}
		start = next
	}
	return chunks
}

// findCut looks backwards from the hard limit for a natural break point.
// Preference order: paragraph break, sentence end, word boundary. All
// returned positions are rune-aligned so a chunk never holds a partial rune.
func (c *Chunker) findCut(text string, start, limit int) int {
	limit = snapToRuneStart(text, limit)
	window := snapToRuneStart(text, limit-cutWindow)
	if window < start {
		window = start
	}
	region := text[window:limit]

	if i := strings.LastIndex(region, "\n\n"); i >= 0 {
		return window + i + 2
	}
	// CJK sentence marks carry no trailing space.
	for _, mark := range []string{". ", ".\n", "! ", "? ", "。", "！", "？"} {
		if i := strings.LastIndex(region, mark); i >= 0 {
			return window + i + len(mark)
		}
	}
	if i := strings.LastIndexByte(region, ' '); i >= 0 {
		return window + i + 1
	}
	return limit
}

// snapToRuneStart moves pos back to the first byte of the rune containing it.
func snapToRuneStart(text string, pos int) int {
	for pos > 0 && pos < len(text) && !utf8.RuneStart(text[pos]) {
		pos--
	}
	return pos
}

// normalizeBoundaries sorts boundaries and converts them to [start, end) page
// ranges covering the whole text. Returns nil when no boundaries are supplied.
type pageRange struct {
	page       int
	start, end int
}

func normalizeBoundaries(pages []PageBoundary, textLen int) []pageRange {
	if len(pages) == 0 {
		return nil
	}
	sorted := make([]PageBoundary, len(pages))
	copy(sorted, pages)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Offset < sorted[j].Offset })

	ranges := make([]pageRange, 0, len(sorted))
	for i, pb := range sorted {
		end := textLen
		if i+1 < len(sorted) {
			end = sorted[i+1].Offset
		}
		if pb.Offset >= end {
			continue
		}
		ranges = append(ranges, pageRange{page: pb.Page, start: pb.Offset, end: end})
	}
	return ranges
}

// majorityPage assigns the page holding most of the span [start, end).
// A chunk spanning a boundary belongs to the page where most of it lies.
func majorityPage(ranges []pageRange, start, end int) int {
	if len(ranges) == 0 {
		return 0
	}
	bestPage, bestOverlap := 0, 0
	for _, r := range ranges {
		lo, hi := max(start, r.start), min(end, r.end)
		if hi-lo > bestOverlap {
			bestOverlap = hi - lo
			bestPage = r.page
		}
	}
	return bestPage
}
