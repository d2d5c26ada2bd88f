package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"document-archive-platform/internal/logger"
	"document-archive-platform/utils"
)

// OCR rasterisation parameters for PDF inputs. The service renders at
// most ocrMaxPages pages at ocrRenderDPI before recognition.
const (
	ocrMaxPages  = 10
	ocrRenderDPI = 300
)

// languageAliases maps colloquial language names onto pack names.
var languageAliases = map[string]string{
	"mandarin": "chinese_simplified",
	"chinese":  "chinese_simplified",
	"burmese":  "myanmar",
	"farsi":    "persian",
}

// languagePacks maps supported document languages to recognition packs.
// Languages outside this table fall back to the English pack.
var languagePacks = map[string]string{
	"english":             "eng",
	"arabic":              "ara",
	"french":              "fra",
	"spanish":             "spa",
	"german":              "deu",
	"russian":             "rus",
	"ukrainian":           "ukr",
	"turkish":             "tur",
	"persian":             "fas",
	"urdu":                "urd",
	"hindi":               "hin",
	"chinese_simplified":  "chi_sim",
	"chinese_traditional": "chi_tra",
	"myanmar":             "mya",
	"tigrinya":            "tir",
	"amharic":             "amh",
	"somali":              "som",
	"swahili":             "swa",
	"vietnamese":          "vie",
	"korean":              "kor",
	"japanese":            "jpn",
}

// NormalizeDocumentLanguage resolves a user-supplied language onto the
// supported whitelist, defaulting to english.
func NormalizeDocumentLanguage(language string) string {
	l := strings.ToLower(strings.TrimSpace(language))
	if alias, ok := languageAliases[l]; ok {
		l = alias
	}
	if _, ok := languagePacks[l]; ok {
		return l
	}
	return "english"
}

// ResolveLanguagePack returns the recognition pack for a document
// language, going through the same alias table.
func ResolveLanguagePack(language string) string {
	return languagePacks[NormalizeDocumentLanguage(language)]
}

// OCRClient talks to the OCR sidecar service over HTTP.
type OCRClient struct {
	httpClient *http.Client
	baseURL    string
	enabled    bool
}

// OCRRequest carries one file to recognise.
type OCRRequest struct {
	Data     []byte
	Filename string
	Language string // document language, resolved to a pack internally
	IsPDF    bool
}

// OCRResponse is the service's JSON answer. PageTexts is set for
// multi-page inputs; Text carries single-block results.
type OCRResponse struct {
	Success   bool     `json:"success"`
	Text      string   `json:"text"`
	PageTexts []string `json:"page_texts"`
	PageCount int      `json:"page_count"`
	Error     string   `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
	Version     string `json:"version"`
}

// NewOCRClient creates a new OCR client
func NewOCRClient(baseURL string, enabled bool, timeout time.Duration) *OCRClient {
	if baseURL == "" {
		baseURL = "http://localhost:8001"
	}
	return &OCRClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		enabled:    enabled,
	}
}

// Enabled reports whether OCR is configured at all.
func (c *OCRClient) Enabled() bool { return c.enabled }

// IsHealthy checks if the OCR service is up and has its models loaded.
func (c *OCRClient) IsHealthy(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false, fmt.Errorf("failed to create health check request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("health check request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("ocr service unhealthy: status %d", resp.StatusCode)
	}
	var healthResp HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&healthResp); err != nil {
		return false, fmt.Errorf("failed to decode health response: %w", err)
	}
	return healthResp.Status == "healthy" && healthResp.ModelLoaded, nil
}

// ExtractText recognises text from an image or PDF. Page texts come back
// joined with blank lines so paragraph chunking sees page boundaries.
func (c *OCRClient) ExtractText(ctx context.Context, req *OCRRequest) (string, error) {
	if !c.enabled {
		return "", utils.NewError(utils.KindUpstreamUnavailable, "ocr is disabled")
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fileWriter, err := writer.CreateFormFile("file", req.Filename)
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := fileWriter.Write(req.Data); err != nil {
		return "", fmt.Errorf("failed to copy file data: %w", err)
	}

	writer.WriteField("language", ResolveLanguagePack(req.Language))
	if req.IsPDF {
		writer.WriteField("dpi", fmt.Sprintf("%d", ocrRenderDPI))
		writer.WriteField("max_pages", fmt.Sprintf("%d", ocrMaxPages))
	}
	writer.Close()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/ocr/extract", &buf)
	if err != nil {
		return "", fmt.Errorf("failed to create ocr request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", utils.WrapError(utils.KindUpstreamUnavailable, "ocr request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", utils.NewError(utils.KindUpstreamUnavailable,
			fmt.Sprintf("ocr service returned status %d: %s", resp.StatusCode, string(body)))
	}

	var ocrResp OCRResponse
	if err := json.NewDecoder(resp.Body).Decode(&ocrResp); err != nil {
		return "", fmt.Errorf("failed to decode ocr response: %w", err)
	}
	if !ocrResp.Success {
		return "", utils.NewError(utils.KindUpstreamUnavailable,
			fmt.Sprintf("ocr processing failed: %s", ocrResp.Error))
	}

	text := ocrResp.Text
	if len(ocrResp.PageTexts) > 0 {
		pages := make([]string, 0, len(ocrResp.PageTexts))
		for _, p := range ocrResp.PageTexts {
			if strings.TrimSpace(p) != "" {
				pages = append(pages, strings.TrimSpace(p))
			}
		}
		text = strings.Join(pages, "\n\n")
	}

	logger.Logger.Debug("ocr extraction done",
		"filename", req.Filename, "pages", ocrResp.PageCount, "chars", len(text))
	return text, nil
}
