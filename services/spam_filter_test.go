package services

import (
	"context"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// loadedSpamFilter builds a filter with the given banned words already
// cached, bypassing the database load.
func loadedSpamFilter(words ...string) *SpamFilter {
	f := NewSpamFilter(nil, time.Hour)
	set := make(map[string]bool, len(words))
	quoted := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.ToLower(w)
		set[w] = true
		quoted = append(quoted, regexp.QuoteMeta(w))
	}
	if len(quoted) > 0 {
		f.pattern = regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)
	}
	f.words = set
	f.loadedAt = time.Now()
	return f
}

func TestContainsBannedWordBoundaries(t *testing.T) {
	f := loadedSpamFilter("scandal", "leak")
	ctx := context.Background()

	assert.True(t, f.ContainsBanned(ctx, "the scandal broke yesterday"))
	assert.True(t, f.ContainsBanned(ctx, "A LEAK was reported"), "matching is case-insensitive")
	assert.False(t, f.ContainsBanned(ctx, "leaking is a different word"))
	assert.False(t, f.ContainsBanned(ctx, "nothing to see"))
}

func TestRedactMasksOnlyBannedWords(t *testing.T) {
	f := loadedSpamFilter("secret")
	ctx := context.Background()

	out := f.Redact(ctx, "The secret meeting discussed secretive plans")
	assert.Equal(t, "The *** meeting discussed secretive plans", out)
}

func TestRedactWithoutBannedWordsIsIdentity(t *testing.T) {
	f := loadedSpamFilter()
	text := "any text at all"
	assert.Equal(t, text, f.Redact(context.Background(), text))
}

func TestIsBannedWordExactMatch(t *testing.T) {
	f := loadedSpamFilter("bribe")
	ctx := context.Background()

	assert.True(t, f.IsBannedWord(ctx, "bribe"))
	assert.False(t, f.IsBannedWord(ctx, "bribery"))
	assert.False(t, f.IsBannedWord(ctx, "clean"))
}
