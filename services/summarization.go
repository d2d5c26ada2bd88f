package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"document-archive-platform/internal/ai"
	"document-archive-platform/internal/logger"
)

// summaryInputCap bounds how much document text goes into the prompt.
const summaryInputCap = 5000

// thinkBlockRe strips chain-of-thought markup some models emit.
var thinkBlockRe = regexp.MustCompile(`(?s)<think>.*?</think>`)

// SummarizationService produces a one-paragraph abstract per document.
type SummarizationService struct {
	geminiClient *ai.GeminiClient
	maxWords     int
}

// NewSummarizationService creates a new summarization service
func NewSummarizationService(geminiClient *ai.GeminiClient, maxWords int) *SummarizationService {
	if maxWords <= 0 {
		maxWords = 200
	}
	return &SummarizationService{geminiClient: geminiClient, maxWords: maxWords}
}

// Summarize returns a cleaned single-paragraph summary, or nil when the
// model is unavailable or returns nothing usable. A missing summary is
// never an error, documents publish without one.
func (ss *SummarizationService) Summarize(ctx context.Context, title, text string) *string {
	if ss.geminiClient == nil {
		return nil
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) > summaryInputCap {
		text = text[:summaryInputCap]
	}

	prompt := fmt.Sprintf(`Write an objective summary of the following document in a single paragraph of at most %d words.
State only what the document contains. Do not speculate, do not address the reader, and do not add opinions or warnings.

Title: %s

Document text:
%s

Summary:`, ss.maxWords, title, text)

	raw, err := ss.geminiClient.Generate(ctx, prompt, 0.3)
	if err != nil {
		logger.Logger.Warn("summarization failed", "error", err)
		return nil
	}

	summary := CleanSummary(raw, ss.maxWords)
	if summary == "" {
		return nil
	}
	return &summary
}

// CleanSummary strips think blocks, folds the text into one paragraph,
// and enforces the word limit.
func CleanSummary(raw string, maxWords int) string {
	cleaned := thinkBlockRe.ReplaceAllString(raw, "")
	words := strings.Fields(cleaned)
	if len(words) == 0 {
		return ""
	}
	if maxWords > 0 && len(words) > maxWords {
		words = words[:maxWords]
	}
	return strings.Join(words, " ")
}
