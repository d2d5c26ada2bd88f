package services

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"github.com/jdkato/prose/v2"

	"document-archive-platform/internal/logger"
)

const (
	minTagLength     = 3
	maxTagLength     = 50
	maxTagCandidates = 1000
	taggingInputCap  = 100000 // chars of English text fed to the tagger
)

// nounTags are the part-of-speech tags counted as tag candidates.
var nounTags = map[string]bool{
	"NN": true, "NNS": true, "NNP": true, "NNPS": true,
}

var tagStopWords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "but": true,
	"not": true, "you": true, "all": true, "any": true, "can": true,
	"had": true, "her": true, "was": true, "one": true, "our": true,
	"out": true, "day": true, "get": true, "has": true, "him": true,
	"his": true, "how": true, "man": true, "new": true, "now": true,
	"old": true, "see": true, "two": true, "way": true, "who": true,
	"its": true, "did": true, "per": true, "via": true, "she": true,
	"use": true, "that": true, "with": true, "have": true, "this": true,
	"will": true, "your": true, "from": true, "they": true, "been": true,
	"were": true, "more": true, "when": true, "which": true, "their": true,
	"there": true, "would": true, "about": true, "other": true, "into": true,
	"than": true, "them": true, "these": true, "some": true, "also": true,
	"such": true, "only": true, "over": true, "very": true, "what": true,
	"upon": true, "said": true, "each": true, "must": true, "may": true,
	"shall": true, "being": true, "page": true, "document": true,
	"documents": true, "file": true, "text": true, "copy": true,
}

// TaggingService derives descriptive tags from English text by counting
// noun tokens and named entities. Output is deterministic for the same
// input.
type TaggingService struct {
	maxTags int
	spam    *SpamFilter
}

func NewTaggingService(maxTags int, spam *SpamFilter) *TaggingService {
	if maxTags <= 0 {
		maxTags = 50
	}
	return &TaggingService{maxTags: maxTags, spam: spam}
}

// GenerateTags returns up to maxTags tags ordered by frequency, ties
// broken alphabetically. Returns nil when the text yields nothing usable.
func (t *TaggingService) GenerateTags(ctx context.Context, text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) > taggingInputCap {
		text = text[:taggingInputCap]
	}

	doc, err := prose.NewDocument(text)
	if err != nil {
		logger.Logger.Warn("tagging parse failed", "error", err)
		return nil
	}

	counts := make(map[string]int)
	add := func(candidate string) {
		candidate = normalizeTag(candidate)
		if !t.validTag(ctx, candidate) {
			return
		}
		if _, seen := counts[candidate]; !seen && len(counts) >= maxTagCandidates {
			return
		}
		counts[candidate]++
	}

	for _, tok := range doc.Tokens() {
		if nounTags[tok.Tag] {
			add(tok.Text)
		}
	}
	// Entity phrases count on top of their individual tokens, multi-word
	// names surface as their own tags.
	for _, ent := range doc.Entities() {
		add(ent.Text)
	}

	if len(counts) == 0 {
		return nil
	}

	tags := make([]string, 0, len(counts))
	for tag := range counts {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool {
		if counts[tags[i]] != counts[tags[j]] {
			return counts[tags[i]] > counts[tags[j]]
		}
		return tags[i] < tags[j]
	})

	if len(tags) > t.maxTags {
		tags = tags[:t.maxTags]
	}
	return tags
}

// normalizeTag lowercases and strips surrounding punctuation, collapsing
// inner whitespace for entity phrases.
func normalizeTag(s string) string {
	s = strings.ToLower(strings.TrimFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}))
	return strings.Join(strings.Fields(s), " ")
}

func (t *TaggingService) validTag(ctx context.Context, tag string) bool {
	if len(tag) < minTagLength || len(tag) > maxTagLength {
		return false
	}
	if tagStopWords[tag] {
		return false
	}
	hasLetter := false
	for _, r := range tag {
		if unicode.IsLetter(r) {
			hasLetter = true
			break
		}
	}
	if !hasLetter {
		return false
	}
	if t.spam != nil && t.spam.IsBannedWord(ctx, tag) {
		return false
	}
	return true
}
