package services

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestAnswerConfidence(t *testing.T) {
	assert.Equal(t, 0.0, AnswerConfidence(0))
	assert.Equal(t, 0.0, AnswerConfidence(-3))
	assert.InDelta(t, 0.4, AnswerConfidence(1), 0.0001)
	assert.InDelta(t, 0.6, AnswerConfidence(3), 0.0001)
	assert.InDelta(t, 0.9, AnswerConfidence(6), 0.0001)
	assert.Equal(t, 0.9, AnswerConfidence(100), "confidence saturates, more context is not certainty")
}

func TestChunkPreview(t *testing.T) {
	short := "a short chunk"
	assert.Equal(t, short, chunkPreview(short))

	long := strings.Repeat("x", chunkPreviewLength+50)
	got := chunkPreview(long)
	assert.Equal(t, chunkPreviewLength+3, len(got))
	assert.True(t, strings.HasSuffix(got, "..."))

	// Truncation counts runes, multi-byte text is never cut mid-rune.
	arabic := strings.Repeat("م", chunkPreviewLength+10)
	preview := chunkPreview(arabic)
	assert.True(t, utf8.ValidString(preview))
	assert.Equal(t, chunkPreviewLength+3, utf8.RuneCountInString(preview))
}
