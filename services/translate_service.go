package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
	"unicode"

	"document-archive-platform/internal/logger"
)

const (
	// translateChunkLimit bounds one translation request. Chunks split on
	// paragraph boundaries so context survives the cut.
	translateChunkLimit = 4000

	// minLatinRatio is the acceptance bar for a translation claiming to
	// be English: at least this share of its letters must be Latin.
	minLatinRatio = 0.6
)

// isoCodes maps document languages to the codes the translate services
// understand. Missing languages are sent as auto-detect.
var isoCodes = map[string]string{
	"english":             "en",
	"arabic":              "ar",
	"french":              "fr",
	"spanish":             "es",
	"german":              "de",
	"russian":             "ru",
	"ukrainian":           "uk",
	"turkish":             "tr",
	"persian":             "fa",
	"urdu":                "ur",
	"hindi":               "hi",
	"chinese_simplified":  "zh",
	"chinese_traditional": "zh",
	"myanmar":             "my",
	"amharic":             "am",
	"somali":              "so",
	"swahili":             "sw",
	"vietnamese":          "vi",
	"korean":              "ko",
	"japanese":            "ja",
}

// TranslateService turns foreign-language OCR text into English. A local
// service is preferred; a remote HTTP fallback covers its outages. When
// both fail the original text is kept so the pipeline never blocks on
// translation.
type TranslateService struct {
	primaryURL  string
	fallbackURL string
	httpClient  *http.Client
	primaryUp   atomic.Bool
}

func NewTranslateService(primaryURL, fallbackURL string, timeout time.Duration) *TranslateService {
	t := &TranslateService{
		primaryURL:  primaryURL,
		fallbackURL: fallbackURL,
		httpClient:  &http.Client{Timeout: timeout},
	}
	t.primaryUp.Store(primaryURL != "")
	return t
}

// Probe checks the local translate service once at startup. A down
// primary routes all traffic to the fallback until the next start.
func (t *TranslateService) Probe(ctx context.Context) {
	if t.primaryURL == "" {
		t.primaryUp.Store(false)
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.primaryURL+"/health", nil)
	if err != nil {
		t.primaryUp.Store(false)
		return
	}
	resp, err := t.httpClient.Do(req)
	if err != nil {
		logger.Logger.Warn("translate service unreachable, using fallback only", "error", err)
		t.primaryUp.Store(false)
		return
	}
	resp.Body.Close()
	up := resp.StatusCode == http.StatusOK
	t.primaryUp.Store(up)
	if !up {
		logger.Logger.Warn("translate service unhealthy, using fallback only", "status", resp.StatusCode)
	}
}

// Healthy re-probes the primary and reports whether any translation
// backend is reachable. The fallback counts as healthy; it is the
// configured degradation path, not an outage.
func (t *TranslateService) Healthy(ctx context.Context) bool {
	t.Probe(ctx)
	return t.primaryUp.Load() || t.fallbackURL != ""
}

// TranslateToEnglish translates text chunk by chunk. English input comes
// back untouched, and untranslatable chunks keep their original text.
func (t *TranslateService) TranslateToEnglish(ctx context.Context, text, sourceLanguage string) string {
	if strings.TrimSpace(text) == "" || sourceLanguage == "english" {
		return text
	}

	source := isoCodes[sourceLanguage]
	if source == "" {
		source = "auto"
	}

	chunks := splitTranslateChunks(text, translateChunkLimit)
	out := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		out = append(out, t.translateChunk(ctx, chunk, source))
	}
	return strings.Join(out, "\n\n")
}

func (t *TranslateService) translateChunk(ctx context.Context, chunk, source string) string {
	if t.primaryUp.Load() {
		translated, err := t.callTranslate(ctx, t.primaryURL, chunk, source)
		if err == nil && acceptableEnglish(translated) {
			return translated
		}
		if err != nil {
			logger.Logger.Warn("primary translation failed", "error", err)
		}
	}
	if t.fallbackURL != "" {
		translated, err := t.callTranslate(ctx, t.fallbackURL, chunk, source)
		if err == nil && acceptableEnglish(translated) {
			return translated
		}
		if err != nil {
			logger.Logger.Warn("fallback translation failed", "error", err)
		}
	}
	return chunk
}

type translateRequest struct {
	Q      string `json:"q"`
	Source string `json:"source"`
	Target string `json:"target"`
	Format string `json:"format"`
}

type translateResponse struct {
	TranslatedText string `json:"translatedText"`
}

func (t *TranslateService) callTranslate(ctx context.Context, baseURL, text, source string) (string, error) {
	body, err := json.Marshal(translateRequest{Q: text, Source: source, Target: "en", Format: "text"})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/translate", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("translate service returned status %d", resp.StatusCode)
	}

	var parsed translateResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode translate response: %w", err)
	}
	return strings.TrimSpace(parsed.TranslatedText), nil
}

// acceptableEnglish rejects empty results and results whose letters are
// mostly non-Latin, which happens when a service echoes the source text.
func acceptableEnglish(text string) bool {
	if text == "" {
		return false
	}
	return latinLetterRatio(text) >= minLatinRatio
}

// latinLetterRatio is the share of Latin letters among all letters.
// Text without letters passes, there is nothing to judge.
func latinLetterRatio(text string) float64 {
	letters, latin := 0, 0
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if r < 0x250 {
			latin++
		}
	}
	if letters == 0 {
		return 1
	}
	return float64(latin) / float64(letters)
}

// splitTranslateChunks packs paragraphs into chunks up to limit bytes.
// Oversized paragraphs split again on sentence ends, then hard cuts.
func splitTranslateChunks(text string, limit int) []string {
	paragraphs := strings.Split(text, "\n\n")
	var chunks []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
		}
	}

	for _, para := range paragraphs {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		for _, piece := range splitOversized(para, limit) {
			if current.Len() > 0 && current.Len()+len(piece)+2 > limit {
				flush()
			}
			if current.Len() > 0 {
				current.WriteString("\n\n")
			}
			current.WriteString(piece)
		}
	}
	flush()
	return chunks
}

func splitOversized(para string, limit int) []string {
	if len(para) <= limit {
		return []string{para}
	}
	var pieces []string
	for len(para) > limit {
		cut := strings.LastIndex(para[:limit], ". ")
		if cut < limit/2 {
			cut = strings.LastIndex(para[:limit], " ")
		}
		if cut < limit/2 {
			cut = limit
		} else {
			cut++
		}
		pieces = append(pieces, strings.TrimSpace(para[:cut]))
		para = strings.TrimSpace(para[cut:])
	}
	if para != "" {
		pieces = append(pieces, para)
	}
	return pieces
}
