package ai

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func embedBackend(t *testing.T, vector []float32, capture *embedRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if capture != nil {
			*capture = req
		}
		vectors := make([][]float32, len(req.Texts))
		for i := range vectors {
			vectors[i] = vector
		}
		json.NewEncoder(w).Encode(embedResponse{Embeddings: vectors})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func vectorNorm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func TestEmbedPassagePrefixesAndNormalises(t *testing.T) {
	var captured embedRequest
	srv := embedBackend(t, []float32{3, 4, 0, 0}, &captured)

	svc := NewEmbeddingService("local", srv.URL, 4, time.Second, nil)
	vec := svc.EmbedPassage(context.Background(), "budget allocation table")

	require.Len(t, captured.Texts, 1)
	assert.Equal(t, "passage: budget allocation table", captured.Texts[0])
	assert.Equal(t, 4, captured.Dimension)

	require.Len(t, vec, 4)
	assert.InDelta(t, 1.0, vectorNorm(vec), 0.0001)
	assert.InDelta(t, 0.6, float64(vec[0]), 0.0001)
	assert.InDelta(t, 0.8, float64(vec[1]), 0.0001)
}

func TestEmbedQueryPrefix(t *testing.T) {
	var captured embedRequest
	srv := embedBackend(t, []float32{1, 0}, &captured)

	svc := NewEmbeddingService("local", srv.URL, 2, time.Second, nil)
	vec := svc.EmbedQuery(context.Background(), "who signed the contract")

	require.Len(t, captured.Texts, 1)
	assert.Equal(t, "query: who signed the contract", captured.Texts[0])
	assert.NotNil(t, vec)
}

func TestEmbedTruncatesBeforePrefix(t *testing.T) {
	var captured embedRequest
	srv := embedBackend(t, []float32{1, 0}, &captured)

	svc := NewEmbeddingService("local", srv.URL, 2, time.Second, nil)
	svc.EmbedPassage(context.Background(), strings.Repeat("x", maxEmbedChars+500))

	require.Len(t, captured.Texts, 1)
	assert.Len(t, captured.Texts[0], len(passagePrefix)+maxEmbedChars,
		"the prefix never counts against the input budget")
	assert.True(t, strings.HasPrefix(captured.Texts[0], passagePrefix))
}

func TestEmbedPassagesBatchAligned(t *testing.T) {
	var captured embedRequest
	srv := embedBackend(t, []float32{0, 2, 0}, &captured)

	svc := NewEmbeddingService("local", srv.URL, 3, time.Second, nil)
	out := svc.EmbedPassages(context.Background(), []string{"first chunk", "second chunk"})

	require.Len(t, out, 2)
	require.Len(t, captured.Texts, 2)
	assert.Equal(t, "passage: first chunk", captured.Texts[0])
	assert.Equal(t, "passage: second chunk", captured.Texts[1])
	for _, vec := range out {
		require.Len(t, vec, 3)
		assert.InDelta(t, 1.0, vectorNorm(vec), 0.0001)
	}
}

func TestEmbedFailuresReturnNil(t *testing.T) {
	ctx := context.Background()

	noURL := NewEmbeddingService("local", "", 4, time.Second, nil)
	assert.Nil(t, noURL.EmbedPassage(ctx, "text"))

	noClient := NewEmbeddingService("gemini", "", 4, time.Second, nil)
	assert.Nil(t, noClient.EmbedPassage(ctx, "text"))

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer failing.Close()
	down := NewEmbeddingService("local", failing.URL, 4, time.Second, nil)
	assert.Nil(t, down.EmbedPassage(ctx, "text"))
}

func TestFinalize(t *testing.T) {
	svc := NewEmbeddingService("local", "", 3, time.Second, nil)

	assert.Nil(t, svc.finalize(nil))
	assert.Nil(t, svc.finalize([]float32{1, 2}), "short vectors are failures")
	assert.Nil(t, svc.finalize([]float32{0, 0, 0}), "zero norm cannot be normalised")

	trimmed := svc.finalize([]float32{2, 0, 0, 9, 9})
	require.Len(t, trimmed, 3, "longer vectors keep their leading components")
	assert.InDelta(t, 1.0, vectorNorm(trimmed), 0.0001)
	assert.InDelta(t, 1.0, float64(trimmed[0]), 0.0001)
}

func TestTruncateChars(t *testing.T) {
	assert.Equal(t, "abc", truncateChars("abc", 5))
	assert.Equal(t, "abcde", truncateChars("abcdefgh", 5))
}

func TestNormalizeL2(t *testing.T) {
	assert.Nil(t, normalizeL2([]float32{0, 0}))

	v := normalizeL2([]float32{3, 4})
	require.Len(t, v, 2)
	assert.InDelta(t, 0.6, float64(v[0]), 0.0001)
	assert.InDelta(t, 0.8, float64(v[1]), 0.0001)
}
