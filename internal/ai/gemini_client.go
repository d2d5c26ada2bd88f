package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	genai "github.com/google/generative-ai-go/genai"

	"document-archive-platform/internal/logger"
	"document-archive-platform/utils"
)

// GeminiClient wraps the Gemini API behind a circuit breaker and a local
// rate limiter so pipeline workers degrade instead of hammering a
// struggling upstream.
type GeminiClient struct {
	client       *genai.Client
	model        string
	timeout      time.Duration
	breaker      *gobreaker.CircuitBreaker
	rateLimiter  *rate.Limiter
	tokenCounter *TokenCounter
}

// TokenCounter tracks request and token budgets per minute and per day.
type TokenCounter struct {
	mu              sync.Mutex
	limits          RateLimits
	minuteTokens    int
	dailyTokens     int
	minuteRequests  int
	dailyRequests   int
	lastMinuteReset time.Time
	lastDayReset    time.Time
}

type RateLimits struct {
	RPM int // Requests per minute
	TPM int // Tokens per minute
	RPD int // Requests per day
}

// NewGeminiClient connects to the Gemini API. maxRPM caps outgoing
// requests per minute; token budgets scale from it. timeout bounds each
// individual call, zero means the caller's context rules.
func NewGeminiClient(ctx context.Context, apiKey, model string, maxRPM int, timeout time.Duration) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is not configured")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	if maxRPM <= 0 {
		maxRPM = 10
	}
	limits := RateLimits{RPM: maxRPM, TPM: maxRPM * 25000, RPD: maxRPM * 150}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "GeminiAPI",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Logger.Warn("circuit breaker state change",
				"breaker", name, "from", from.String(), "to", to.String())
		},
	})

	// RPM limit with some buffer
	burst := maxRPM / 10
	if burst < 1 {
		burst = 1
	}
	rateLimiter := rate.NewLimiter(rate.Limit(float64(maxRPM)*0.9/60.0), burst)

	return &GeminiClient{
		client:       client,
		model:        model,
		timeout:      timeout,
		breaker:      breaker,
		rateLimiter:  rateLimiter,
		tokenCounter: &TokenCounter{limits: limits},
	}, nil
}

// callContext applies the per-call timeout when one is configured.
func (gc *GeminiClient) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if gc.timeout > 0 {
		return context.WithTimeout(ctx, gc.timeout)
	}
	return context.WithCancel(ctx)
}

// Generate sends one prompt and returns the concatenated text parts of
// the first candidate. Failures, including an open circuit breaker, come
// back as upstream_unavailable so callers fall back to their stock
// behaviour instead of retrying here.
func (gc *GeminiClient) Generate(ctx context.Context, prompt string, temperature float32) (string, error) {
	tracer := otel.Tracer("gemini-client")
	ctx, span := tracer.Start(ctx, "gemini.generate_content")
	defer span.End()
	ctx, cancel := gc.callContext(ctx)
	defer cancel()

	estimatedTokens := estimateTokens(prompt)
	span.SetAttributes(
		attribute.Int("gemini.estimated_tokens", estimatedTokens),
		attribute.String("gemini.model", gc.model),
	)

	if !gc.tokenCounter.CanConsume(estimatedTokens, 1) {
		span.SetAttributes(attribute.Bool("gemini.rate_limited", true))
		return "", utils.NewError(utils.KindUpstreamUnavailable, "language model budget exhausted, retry later")
	}

	if err := gc.rateLimiter.Wait(ctx); err != nil {
		span.SetAttributes(attribute.Bool("gemini.rate_limited", true))
		return "", err
	}

	result, err := gc.breaker.Execute(func() (interface{}, error) {
		model := gc.client.GenerativeModel(gc.model)
		model.SetTemperature(temperature)
		model.SetMaxOutputTokens(2048)

		resp, err := model.GenerateContent(ctx, genai.Text(prompt))
		if err != nil {
			span.SetAttributes(attribute.Bool("gemini.error", true))
			span.SetAttributes(attribute.String("gemini.error_message", err.Error()))
			return nil, err
		}

		actualTokens := extractTokenUsage(resp)
		gc.tokenCounter.RecordUsage(actualTokens, 1)
		span.SetAttributes(attribute.Int("gemini.actual_tokens", actualTokens))
		return resp, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			span.SetAttributes(attribute.Bool("gemini.circuit_breaker_open", true))
			return "", utils.WrapError(utils.KindUpstreamUnavailable, "language model temporarily unavailable", err)
		}
		span.SetAttributes(attribute.Bool("gemini.error", true))
		return "", utils.WrapError(utils.KindUpstreamUnavailable, "language model request failed", err)
	}

	text := responseText(result.(*genai.GenerateContentResponse))
	if strings.TrimSpace(text) == "" {
		return "", utils.NewError(utils.KindUpstreamUnavailable, "language model returned no text")
	}
	span.SetAttributes(attribute.Bool("gemini.success", true))
	return text, nil
}

// EmbedContent returns the raw embedding vector for one text using the
// given embedding model.
func (gc *GeminiClient) EmbedContent(ctx context.Context, embeddingModel, text string) ([]float32, error) {
	ctx, cancel := gc.callContext(ctx)
	defer cancel()
	if err := gc.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}
	result, err := gc.breaker.Execute(func() (interface{}, error) {
		em := gc.client.EmbeddingModel(embeddingModel)
		resp, err := em.EmbedContent(ctx, genai.Text(text))
		if err != nil {
			return nil, err
		}
		if resp.Embedding == nil {
			return nil, errors.New("no embedding returned")
		}
		return resp.Embedding.Values, nil
	})
	if err != nil {
		return nil, utils.WrapError(utils.KindUpstreamUnavailable, "embedding request failed", err)
	}
	return result.([]float32), nil
}

func (tc *TokenCounter) CanConsume(tokens, requests int) bool {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	now := time.Now()
	if now.Sub(tc.lastMinuteReset) >= time.Minute {
		tc.minuteTokens = 0
		tc.minuteRequests = 0
		tc.lastMinuteReset = now
	}
	if now.Sub(tc.lastDayReset) >= 24*time.Hour {
		tc.dailyTokens = 0
		tc.dailyRequests = 0
		tc.lastDayReset = now
	}

	if tc.minuteRequests+requests > tc.limits.RPM {
		return false
	}
	if tc.minuteTokens+tokens > tc.limits.TPM {
		return false
	}
	if tc.dailyRequests+requests > tc.limits.RPD {
		return false
	}
	return true
}

func (tc *TokenCounter) RecordUsage(tokens, requests int) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	tc.minuteTokens += tokens
	tc.minuteRequests += requests
	tc.dailyTokens += tokens
	tc.dailyRequests += requests
}

// Rough estimation: 1 token is about 4 characters.
func estimateTokens(prompt string) int {
	n := len(prompt) / 4
	if n < 1 {
		n = 1
	}
	return n
}

// Extract token usage from the response, estimating when metadata is absent.
func extractTokenUsage(resp *genai.GenerateContentResponse) int {
	if resp.UsageMetadata != nil {
		return int(resp.UsageMetadata.TotalTokenCount)
	}
	estimated := len(responseText(resp)) / 4
	if estimated < 1 {
		estimated = 1
	}
	return estimated
}

func responseText(resp *genai.GenerateContentResponse) string {
	var sb strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				sb.WriteString(string(text))
			}
		}
		break
	}
	return sb.String()
}

// Close the client
func (gc *GeminiClient) Close() error {
	if gc.client != nil {
		return gc.client.Close()
	}
	return nil
}
