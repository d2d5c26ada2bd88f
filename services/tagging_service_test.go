package services

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const taggingSample = `The committee reviewed the procurement contracts in detail.
The contracts covered hospitals, schools and roads across the region.
Several contracts were awarded without tender. The committee flagged
the hospitals budget for a follow-up audit.`

func TestGenerateTagsDeterministic(t *testing.T) {
	tagger := NewTaggingService(0, nil)
	ctx := context.Background()

	first := tagger.GenerateTags(ctx, taggingSample)
	second := tagger.GenerateTags(ctx, taggingSample)

	require.NotEmpty(t, first)
	assert.Equal(t, first, second, "same text must yield the same tags in the same order")
}

func TestGenerateTagsShape(t *testing.T) {
	tagger := NewTaggingService(0, nil)
	tags := tagger.GenerateTags(context.Background(), taggingSample)

	require.NotEmpty(t, tags)
	seen := make(map[string]bool)
	for _, tag := range tags {
		assert.Equal(t, strings.ToLower(tag), tag, "tags are lowercased")
		assert.GreaterOrEqual(t, len(tag), minTagLength)
		assert.LessOrEqual(t, len(tag), maxTagLength)
		assert.False(t, tagStopWords[tag], "stop word leaked: %s", tag)
		assert.False(t, seen[tag], "duplicate tag: %s", tag)
		seen[tag] = true
	}
}

func TestGenerateTagsRespectsCap(t *testing.T) {
	tagger := NewTaggingService(3, nil)
	tags := tagger.GenerateTags(context.Background(), taggingSample)
	assert.LessOrEqual(t, len(tags), 3)
}

func TestGenerateTagsEmptyInput(t *testing.T) {
	tagger := NewTaggingService(0, nil)
	assert.Nil(t, tagger.GenerateTags(context.Background(), ""))
	assert.Nil(t, tagger.GenerateTags(context.Background(), "   \n\t "))
}

func TestNormalizeTag(t *testing.T) {
	assert.Equal(t, "geneva", normalizeTag(" Geneva, "))
	assert.Equal(t, "united nations", normalizeTag("  United   Nations "))
	assert.Equal(t, "", normalizeTag("..."))
	assert.Equal(t, "covid-19", normalizeTag("COVID-19"))
}

func TestValidTagFiltering(t *testing.T) {
	ctx := context.Background()
	tagger := NewTaggingService(0, nil)

	assert.True(t, tagger.validTag(ctx, "water"))
	assert.False(t, tagger.validTag(ctx, "the"), "stop words are rejected")
	assert.False(t, tagger.validTag(ctx, "ab"), "too short")
	assert.False(t, tagger.validTag(ctx, strings.Repeat("x", maxTagLength+1)), "too long")
	assert.False(t, tagger.validTag(ctx, "1234"), "needs at least one letter")

	banned := NewTaggingService(0, loadedSpamFilter("contraband"))
	assert.False(t, banned.validTag(ctx, "contraband"))
	assert.True(t, banned.validTag(ctx, "cargo"))
}
