package services

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
	"unicode"

	"github.com/ledongthuc/pdf"

	"document-archive-platform/internal/logger"
)

const (
	// acceptQuality short-circuits the ladder, floorQuality is the bar
	// for keeping the best attempt when nothing reaches acceptQuality.
	acceptQuality = 0.7
	floorQuality  = 0.3

	minExtractChars = 50
)

// ExtractionResult contains the outcome of one extraction attempt.
type ExtractionResult struct {
	Text         string
	Method       string
	Pages        int
	QualityScore float64
}

// TextExtractor recovers text from stored PDFs. Cheap methods run first:
// the embedded text layer, then pdftotext when installed, then OCR.
// Scanned documents have no text layer and land on OCR naturally.
type TextExtractor struct {
	ocrClient *OCRClient
}

func NewTextExtractor(ocrClient *OCRClient) *TextExtractor {
	return &TextExtractor{ocrClient: ocrClient}
}

// ExtractFromPDF walks the extraction ladder and returns the first
// good-quality result, or the best attempt above the quality floor.
func (e *TextExtractor) ExtractFromPDF(ctx context.Context, pdfData []byte, filename, language string) (*ExtractionResult, error) {
	methods := []struct {
		name    string
		extract func(context.Context, []byte, string) (string, int, error)
	}{
		{"embedded", e.extractEmbedded},
		{"poppler", e.extractWithPoppler},
		{"ocr", e.extractWithOCR(language)},
	}

	var best *ExtractionResult
	var lastErr error
	for _, method := range methods {
		text, pages, err := method.extract(ctx, pdfData, filename)
		if err != nil {
			logger.Logger.Debug("extraction method failed",
				"method", method.name, "filename", filename, "error", err)
			lastErr = err
			continue
		}

		result := &ExtractionResult{
			Text:         strings.TrimSpace(text),
			Method:       method.name,
			Pages:        pages,
			QualityScore: evaluateTextQuality(text),
		}
		logger.Logger.Debug("extraction attempt",
			"method", method.name, "chars", len(result.Text), "quality", result.QualityScore)

		if len(result.Text) >= minExtractChars && result.QualityScore >= acceptQuality {
			return result, nil
		}
		if best == nil || result.QualityScore > best.QualityScore {
			best = result
		}
	}

	if best != nil && best.QualityScore >= floorQuality && best.Text != "" {
		return best, nil
	}
	return nil, fmt.Errorf("all extraction methods failed: %v", lastErr)
}

// extractEmbedded reads the PDF's own text layer. Pages are joined with
// blank lines, the same separator OCR output uses.
func (e *TextExtractor) extractEmbedded(ctx context.Context, content []byte, _ string) (string, int, error) {
	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", 0, fmt.Errorf("failed to create PDF reader: %w", err)
	}

	var pageTexts []string
	pages := reader.NumPage()
	for i := 1; i <= pages; i++ {
		if ctx.Err() != nil {
			return "", 0, ctx.Err()
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		fonts := make(map[string]*pdf.Font)
		text, err := page.GetPlainText(fonts)
		if err != nil {
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			pageTexts = append(pageTexts, text)
		}
	}

	joined := strings.Join(pageTexts, "\n\n")
	if joined == "" {
		return "", pages, fmt.Errorf("no text layer present")
	}
	return joined, pages, nil
}

// extractWithPoppler shells out to pdftotext when it is installed.
func (e *TextExtractor) extractWithPoppler(ctx context.Context, content []byte, _ string) (string, int, error) {
	if _, err := exec.LookPath("pdftotext"); err != nil {
		return "", 0, fmt.Errorf("pdftotext not available")
	}

	extractCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(extractCtx, "pdftotext", "-layout", "-", "-")
	cmd.Stdin = bytes.NewReader(content)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", 0, fmt.Errorf("pdftotext failed: %v, stderr: %s", err, stderr.String())
	}

	text := stdout.String()
	if strings.TrimSpace(text) == "" {
		return "", 0, fmt.Errorf("no text extracted by pdftotext")
	}
	// pdftotext separates pages with form feeds.
	pages := strings.Count(text, "\f") + 1
	text = strings.ReplaceAll(text, "\f", "\n\n")
	return text, pages, nil
}

func (e *TextExtractor) extractWithOCR(language string) func(context.Context, []byte, string) (string, int, error) {
	return func(ctx context.Context, content []byte, filename string) (string, int, error) {
		if e.ocrClient == nil || !e.ocrClient.Enabled() {
			return "", 0, fmt.Errorf("ocr not configured")
		}
		text, err := e.ocrClient.ExtractText(ctx, &OCRRequest{
			Data:     content,
			Filename: filename,
			Language: language,
			IsPDF:    true,
		})
		if err != nil {
			return "", 0, err
		}
		pages := strings.Count(text, "\n\n") + 1
		return text, pages, nil
	}
}

// evaluateTextQuality scores extracted text between 0 and 1. The scoring
// must not punish non-Latin scripts, so any letter counts as content.
func evaluateTextQuality(text string) float64 {
	text = strings.TrimSpace(text)
	if len(text) == 0 {
		return 0.0
	}
	runes := []rune(text)
	if len(runes) < 10 {
		return 0.1
	}

	var content, printable, corrupted int
	for _, r := range runes {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			content++
			printable++
		case r == ' ' || r == '\n' || r == '\t' || r == '\r':
			printable++
		case r == '�':
			corrupted++
		case unicode.IsPrint(r):
			printable++
		default:
			corrupted++
		}
	}

	total := float64(len(runes))
	score := float64(printable) / total * 0.4
	contentRatio := float64(content) / total
	if contentRatio >= 0.3 {
		score += 0.3
	} else {
		score += contentRatio
	}
	score -= float64(corrupted) / total * 2.0
	if len(runes) > 100 {
		score += 0.1
	}
	// A text that is mostly words in reasonable lengths reads as clean.
	words := strings.Fields(text)
	if len(words) > 0 {
		avgLen := float64(len(text)) / float64(len(words))
		if avgLen >= 3 && avgLen <= 12 {
			score += 0.2
		}
	}

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
