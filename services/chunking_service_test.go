package services

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"document-archive-platform/models"
)

func TestNewChunkingServiceDefaults(t *testing.T) {
	cs := NewChunkingService(0, -1)
	assert.Equal(t, 500, cs.targetSize)
	assert.Equal(t, 50, cs.overlap)

	// An overlap as large as the target would never make progress.
	cs = NewChunkingService(100, 100)
	assert.Equal(t, 50, cs.overlap)
}

func TestChunkTextShortInputSingleChunk(t *testing.T) {
	cs := NewChunkingService(500, 50)
	chunks := cs.ChunkText("just one short paragraph")
	require.Len(t, chunks, 1)
	assert.Equal(t, "just one short paragraph", chunks[0])
}

func TestChunkTextRespectsSizeBound(t *testing.T) {
	cs := NewChunkingService(200, 30)

	var sb strings.Builder
	for i := 0; i < 40; i++ {
		fmt.Fprintf(&sb, "Paragraph %d carries a handful of ordinary words for packing.\n\n", i)
	}
	chunks := cs.ChunkText(sb.String())

	require.Greater(t, len(chunks), 1)
	for i, chunk := range chunks {
		assert.NotEmpty(t, chunk, "chunk %d", i)
		// A chunk holds at most one target-sized piece plus the
		// carried-over tail and its separator.
		assert.LessOrEqual(t, len(chunk), 200+30+2, "chunk %d", i)
	}
}

func TestChunkTextOverlapCarriesTail(t *testing.T) {
	cs := NewChunkingService(160, 30)

	para1 := strings.TrimSpace(strings.Repeat("alpha beta gamma ", 8)) // ~135 chars
	para2 := strings.TrimSpace(strings.Repeat("delta epsilon ", 9))
	chunks := cs.ChunkText(para1 + "\n\n" + para2)

	require.GreaterOrEqual(t, len(chunks), 2)
	tail := tailOverlap(chunks[0], 30)
	require.NotEmpty(t, tail)
	assert.True(t, strings.HasPrefix(chunks[1], tail),
		"second chunk should open with the first chunk's tail")
	// The tail never starts mid-word.
	assert.True(t, strings.HasSuffix(chunks[0], tail))
}

func TestChunkTextSplitsOversizedParagraph(t *testing.T) {
	cs := NewChunkingService(300, 0)

	words := strings.Fields(strings.Repeat("archive document record ", 80))
	text := strings.Join(words, " ") // one paragraph, no blank lines
	chunks := cs.ChunkText(text)

	require.Greater(t, len(chunks), 1)
	for i, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk), 300, "chunk %d", i)
	}

	// With no overlap the chunks partition the words exactly.
	var got []string
	for _, chunk := range chunks {
		got = append(got, strings.Fields(chunk)...)
	}
	assert.Equal(t, words, got)
}

func TestChunkDocumentContiguousIndices(t *testing.T) {
	cs := NewChunkingService(120, 20)
	doc := &models.Document{
		ID:          7,
		Title:       "Procurement audit",
		Country:     "Kenya",
		Description: "Findings from the annual review",
	}
	content := strings.Repeat("The audit identified irregular payments across departments. ", 20)

	chunks := cs.ChunkDocument(doc, content)
	require.NotEmpty(t, chunks)
	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.ChunkIndex)
		assert.Equal(t, int64(7), chunk.DocumentID)
		assert.Equal(t, "Procurement audit", chunk.DocumentTitle)
		assert.Equal(t, "Kenya", chunk.DocumentCountry)
		assert.NotEmpty(t, chunk.Content)
	}
}

func TestBuildChunkSource(t *testing.T) {
	src := BuildChunkSource(" My Title ", "desc", "body text")
	assert.Equal(t, "Title: My Title\n\nDescription: desc\n\nContent: body text", src)
}

func TestTailOverlap(t *testing.T) {
	// Shorter than the overlap: the whole chunk is the tail.
	assert.Equal(t, "tiny", tailOverlap("tiny", 30))

	tail := tailOverlap("the quick brown fox jumps over the lazy dog", 10)
	assert.Equal(t, "lazy dog", tail)
}
