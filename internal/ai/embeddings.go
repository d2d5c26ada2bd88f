package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"time"

	"document-archive-platform/internal/logger"
)

const (
	// Prefixes steer the embedding model: stored chunks embed as
	// passages, search input embeds as a query.
	passagePrefix = "passage: "
	queryPrefix   = "query: "

	// maxEmbedChars bounds embedding input length before the prefix.
	maxEmbedChars = 5000

	geminiEmbeddingModel = "text-embedding-004"
)

// EmbeddingService produces L2-normalised vectors of a fixed dimension.
// Every method returns nil on failure rather than an error: embedding is
// optional enrichment and callers skip documents without vectors.
type EmbeddingService struct {
	provider   string
	serviceURL string
	dim        int
	httpClient *http.Client
	gemini     *GeminiClient
}

// NewEmbeddingService builds the service for the configured provider.
// The gemini client may be nil when the provider is local.
func NewEmbeddingService(provider, serviceURL string, dim int, timeout time.Duration, gemini *GeminiClient) *EmbeddingService {
	return &EmbeddingService{
		provider:   provider,
		serviceURL: serviceURL,
		dim:        dim,
		httpClient: &http.Client{Timeout: timeout},
		gemini:     gemini,
	}
}

// Dimension returns the configured vector dimension.
func (e *EmbeddingService) Dimension() int { return e.dim }

// EmbedPassage embeds document text for storage.
func (e *EmbeddingService) EmbedPassage(ctx context.Context, text string) []float32 {
	return e.embed(ctx, passagePrefix, text)
}

// EmbedQuery embeds a search query.
func (e *EmbeddingService) EmbedQuery(ctx context.Context, text string) []float32 {
	return e.embed(ctx, queryPrefix, text)
}

// EmbedPassages embeds a batch of passages. The result is aligned with
// the input; failed entries are nil.
func (e *EmbeddingService) EmbedPassages(ctx context.Context, texts []string) [][]float32 {
	out := make([][]float32, len(texts))
	if e.provider == "local" && e.serviceURL != "" {
		prefixed := make([]string, len(texts))
		for i, t := range texts {
			prefixed[i] = passagePrefix + truncateChars(t, maxEmbedChars)
		}
		vectors, err := e.embedLocalBatch(ctx, prefixed)
		if err == nil && len(vectors) == len(texts) {
			for i, v := range vectors {
				out[i] = e.finalize(v)
			}
			return out
		}
		if err != nil {
			logger.Logger.Warn("batch embedding failed, falling back to per-text", "error", err)
		}
	}
	for i, t := range texts {
		out[i] = e.EmbedPassage(ctx, t)
	}
	return out
}

func (e *EmbeddingService) embed(ctx context.Context, prefix, text string) []float32 {
	input := prefix + truncateChars(text, maxEmbedChars)

	var raw []float32
	var err error
	switch e.provider {
	case "gemini":
		if e.gemini == nil {
			logger.Logger.Warn("gemini embedding provider selected but client missing")
			return nil
		}
		raw, err = e.gemini.EmbedContent(ctx, geminiEmbeddingModel, input)
	default:
		raw, err = e.embedLocal(ctx, input)
	}
	if err != nil {
		logger.Logger.Warn("embedding failed", "provider", e.provider, "error", err)
		return nil
	}
	return e.finalize(raw)
}

// finalize adjusts the raw vector to the configured dimension and
// L2-normalises it. Vectors shorter than the dimension, or with zero
// norm, count as failures.
func (e *EmbeddingService) finalize(raw []float32) []float32 {
	if len(raw) < e.dim {
		if raw != nil {
			logger.Logger.Warn("embedding dimension mismatch", "got", len(raw), "want", e.dim)
		}
		return nil
	}
	// Provider vectors may be longer than the configured dimension;
	// keep the leading components and re-normalise.
	v := raw[:e.dim]
	return normalizeL2(v)
}

type embedRequest struct {
	Texts     []string `json:"texts"`
	Dimension int      `json:"dimension"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func (e *EmbeddingService) embedLocal(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.embedLocalBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embedding service returned %d vectors for 1 text", len(vectors))
	}
	return vectors[0], nil
}

func (e *EmbeddingService) embedLocalBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if e.serviceURL == "" {
		return nil, fmt.Errorf("embedding service url is not configured")
	}
	body, err := json.Marshal(embedRequest{Texts: texts, Dimension: e.dim})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.serviceURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding service returned status %d", resp.StatusCode)
	}

	var parsed embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	return parsed.Embeddings, nil
}

func truncateChars(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}

func normalizeL2(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return nil
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}
