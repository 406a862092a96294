package chunk

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunk_EmptyInput(t *testing.T) {
	c := New()

	tests := []struct {
		name string
		text string
	}{
		{name: "empty string", text: ""},
		{name: "whitespace only", text: "   \n\t  \n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := c.Chunk(tt.text, "file-1", nil, nil)
			require.NotNil(t, chunks)
			assert.Empty(t, chunks)
		})
	}
}

func TestChunk_IndicesAreContiguous(t *testing.T) {
	c := NewWithOptions(Options{TargetSize: 100, Overlap: 20})

	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 50)
	chunks := c.Chunk(text, "file-1", nil, nil)

	require.Greater(t, len(chunks), 1)
	for i, ch := range chunks {
		assert.Equal(t, i, ch.Index)
		assert.Equal(t, "file-1", ch.FileID)
		assert.NotEmpty(t, ch.ID)
		assert.NotEmpty(t, ch.Content)
	}
}

func TestChunk_BoundedSize(t *testing.T) {
	c := NewWithOptions(Options{TargetSize: 200, Overlap: 40})

	text := strings.Repeat("Sentence number one is here. ", 100)
	chunks := c.Chunk(text, "file-1", nil, nil)

	for _, ch := range chunks {
		assert.LessOrEqual(t, len(ch.Content), 200)
	}
}

func TestChunk_OverlapCarriesContext(t *testing.T) {
	c := NewWithOptions(Options{TargetSize: 120, Overlap: 40})

	text := strings.Repeat("Alpha beta gamma delta epsilon zeta. ", 30)
	chunks := c.Chunk(text, "file-1", nil, nil)
	require.Greater(t, len(chunks), 1)

	// The tail of each chunk should reappear at the head of the next one.
	for i := 0; i < len(chunks)-1; i++ {
		tail := chunks[i].Content[len(chunks[i].Content)-10:]
		assert.Contains(t, chunks[i+1].Content, strings.TrimSpace(tail))
	}
}

func TestChunk_NonSpacedScriptKeepsValidUTF8(t *testing.T) {
	c := NewWithOptions(Options{TargetSize: 100, Overlap: 20})

	// No ASCII spaces or periods anywhere, so every cut must fall back to
	// CJK sentence marks or rune-aligned hard cuts.
	text := strings.Repeat("フランスの首都はパリです。", 100)
	chunks := c.Chunk(text, "file-1", nil, nil)

	require.Greater(t, len(chunks), 1)
	for _, ch := range chunks {
		assert.True(t, utf8.ValidString(ch.Content),
			"chunk %d holds a partial rune: %q", ch.Index, ch.Content)
		assert.NotEmpty(t, ch.Content)
	}
}

func TestChunk_CutsAtCJKSentenceMarks(t *testing.T) {
	c := NewWithOptions(Options{TargetSize: 100, Overlap: 20})

	text := strings.Repeat("フランスの首都はパリです。", 100)
	chunks := c.Chunk(text, "file-1", nil, nil)

	require.Greater(t, len(chunks), 1)
	for _, ch := range chunks[:len(chunks)-1] {
		assert.True(t, strings.HasSuffix(ch.Content, "。"),
			"chunk %d should end at a sentence mark: %q", ch.Index, ch.Content)
	}
}

func TestChunk_MarklessScriptStaysValidUTF8(t *testing.T) {
	c := NewWithOptions(Options{TargetSize: 100, Overlap: 20})

	// No break points at all: forces the rune-aligned hard-cut path.
	text := strings.Repeat("ラグパイプライン", 100)
	chunks := c.Chunk(text, "file-1", nil, nil)

	require.Greater(t, len(chunks), 1)
	for _, ch := range chunks {
		assert.True(t, utf8.ValidString(ch.Content),
			"chunk %d holds a partial rune: %q", ch.Index, ch.Content)
		assert.LessOrEqual(t, len(ch.Content), 100)
	}
}

func TestChunk_PageAttribution(t *testing.T) {
	c := NewWithOptions(Options{TargetSize: 100, Overlap: 10})

	page1 := strings.Repeat("First page content here. ", 10) // 250 bytes
	page2 := strings.Repeat("Second page content now. ", 10)
	text := page1 + page2
	pages := []PageBoundary{
		{Page: 1, Offset: 0},
		{Page: 2, Offset: len(page1)},
	}

	chunks := c.Chunk(text, "file-1", pages, nil)
	require.NotEmpty(t, chunks)

	for _, ch := range chunks {
		assert.GreaterOrEqual(t, ch.PageNumber, 1)
		assert.LessOrEqual(t, ch.PageNumber, 2)
	}
	// First chunk is fully inside page 1, last fully inside page 2.
	assert.Equal(t, 1, chunks[0].PageNumber)
	assert.Equal(t, 2, chunks[len(chunks)-1].PageNumber)
}

func TestChunk_MajorityPageWins(t *testing.T) {
	// One chunk spans the boundary with most content on page 2.
	text := strings.Repeat("a", 30) + ". " + strings.Repeat("b", 200)
	pages := []PageBoundary{
		{Page: 1, Offset: 0},
		{Page: 2, Offset: 32},
	}
	c := NewWithOptions(Options{TargetSize: 500, Overlap: 50})

	chunks := c.Chunk(text, "file-1", pages, nil)

	require.Len(t, chunks, 1)
	assert.Equal(t, 2, chunks[0].PageNumber)
}

func TestChunk_CaptionsBecomeOwnChunks(t *testing.T) {
	c := New()

	captions := []Caption{
		{Page: 3, Text: "A bar chart of quarterly revenue."},
		{Page: 5, Text: ""},
		{Page: 7, Text: "Photograph of the Eiffel Tower at night."},
	}
	chunks := c.Chunk("Body text of the document.", "file-1", nil, captions)

	require.Len(t, chunks, 3) // body + 2 non-empty captions
	assert.False(t, chunks[0].IsCaption)

	assert.True(t, chunks[1].IsCaption)
	assert.Equal(t, 3, chunks[1].PageNumber)
	assert.True(t, chunks[2].IsCaption)
	assert.Equal(t, 7, chunks[2].PageNumber)

	// Caption chunks continue the index sequence without gaps.
	for i, ch := range chunks {
		assert.Equal(t, i, ch.Index)
	}
}

func TestChunk_CaptionsOnlyDocument(t *testing.T) {
	c := New()

	chunks := c.Chunk("", "file-1", nil, []Caption{{Page: 1, Text: "A diagram."}})

	require.Len(t, chunks, 1)
	assert.True(t, chunks[0].IsCaption)
	assert.Equal(t, 0, chunks[0].Index)
}

func TestChunkID_Deterministic(t *testing.T) {
	assert.Equal(t, chunkID("f", 0), chunkID("f", 0))
	assert.NotEqual(t, chunkID("f", 0), chunkID("f", 1))
	assert.NotEqual(t, chunkID("f", 0), chunkID("g", 0))
}
