package services

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"time"

	"document-archive-platform/internal/catalog"
	"document-archive-platform/internal/logger"
)

const redactionMark = "***"

// SpamFilter matches banned words on word boundaries. The compiled
// pattern is cached and rebuilt at most once per TTL, so moderation
// changes take effect within minutes without a per-request query.
type SpamFilter struct {
	store *catalog.Store
	ttl   time.Duration

	mu       sync.RWMutex
	pattern  *regexp.Regexp // nil when no words are banned
	words    map[string]bool
	loadedAt time.Time
}

func NewSpamFilter(store *catalog.Store, ttl time.Duration) *SpamFilter {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &SpamFilter{store: store, ttl: ttl, words: map[string]bool{}}
}

// Refresh reloads the banned word list immediately.
func (f *SpamFilter) Refresh(ctx context.Context) error {
	words, err := f.store.BannedWordSet(ctx)
	if err != nil {
		return err
	}

	set := make(map[string]bool, len(words))
	quoted := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" {
			continue
		}
		set[w] = true
		quoted = append(quoted, regexp.QuoteMeta(w))
	}

	var pattern *regexp.Regexp
	if len(quoted) > 0 {
		pattern, err = regexp.Compile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)
		if err != nil {
			return err
		}
	}

	f.mu.Lock()
	f.pattern = pattern
	f.words = set
	f.loadedAt = time.Now()
	f.mu.Unlock()
	return nil
}

// Invalidate forces a reload on the next check, used after admin edits.
func (f *SpamFilter) Invalidate() {
	f.mu.Lock()
	f.loadedAt = time.Time{}
	f.mu.Unlock()
}

// ensureFresh refreshes a stale cache, keeping the old pattern when the
// reload fails.
func (f *SpamFilter) ensureFresh(ctx context.Context) {
	f.mu.RLock()
	stale := time.Since(f.loadedAt) > f.ttl
	f.mu.RUnlock()
	if !stale {
		return
	}
	if err := f.Refresh(ctx); err != nil {
		logger.Logger.Warn("banned word refresh failed, keeping cached list", "error", err)
		f.mu.Lock()
		f.loadedAt = time.Now() // back off, retry after another TTL
		f.mu.Unlock()
	}
}

// ContainsBanned reports whether the text holds any banned word.
func (f *SpamFilter) ContainsBanned(ctx context.Context, text string) bool {
	f.ensureFresh(ctx)
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.pattern != nil && f.pattern.MatchString(text)
}

// Redact masks banned words in outgoing text.
func (f *SpamFilter) Redact(ctx context.Context, text string) string {
	f.ensureFresh(ctx)
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.pattern == nil {
		return text
	}
	return f.pattern.ReplaceAllString(text, redactionMark)
}

// IsBannedWord checks one already-lowercased word.
func (f *SpamFilter) IsBannedWord(ctx context.Context, word string) bool {
	f.ensureFresh(ctx)
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.words[word]
}
