package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatinLetterRatio(t *testing.T) {
	assert.InDelta(t, 1.0, latinLetterRatio("hello world"), 0.001)
	assert.InDelta(t, 0.0, latinLetterRatio("مرحبا"), 0.001)
	assert.InDelta(t, 0.5, latinLetterRatio("abПЯ"), 0.001)
	assert.InDelta(t, 1.0, latinLetterRatio("1234 !?"), 0.001, "no letters means nothing to judge")
}

func TestAcceptableEnglish(t *testing.T) {
	assert.False(t, acceptableEnglish(""))
	assert.True(t, acceptableEnglish("the committee approved the budget"))
	assert.False(t, acceptableEnglish("الوثيقة الأصلية"), "echoed source text is rejected")
}

func TestSplitTranslateChunksShortText(t *testing.T) {
	chunks := splitTranslateChunks("hello world", translateChunkLimit)
	require.Len(t, chunks, 1)
	assert.Equal(t, "hello world", chunks[0])
}

func TestSplitTranslateChunksPacksParagraphs(t *testing.T) {
	text := "first paragraph\n\nsecond paragraph\n\nthird paragraph"
	chunks := splitTranslateChunks(text, translateChunkLimit)
	require.Len(t, chunks, 1, "short paragraphs pack into one request")
	assert.Equal(t, text, chunks[0])
}

func TestSplitTranslateChunksRespectsLimit(t *testing.T) {
	text := strings.Join([]string{
		"alpha beta gamma delta",
		"epsilon zeta eta theta",
		"iota kappa lambda mu",
		"nu xi omicron pi rho",
	}, "\n\n")
	chunks := splitTranslateChunks(text, 50)
	require.NotEmpty(t, chunks)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk), 50)
		assert.NotEmpty(t, chunk)
	}
}

func TestSplitTranslateChunksHardCutsUnbrokenText(t *testing.T) {
	chunks := splitTranslateChunks(strings.Repeat("a", 120), 50)
	require.Equal(t, []string{
		strings.Repeat("a", 50),
		strings.Repeat("a", 50),
		strings.Repeat("a", 20),
	}, chunks)
}

func TestSplitOversizedPrefersSentenceEnds(t *testing.T) {
	para := "First sentence here. Second part follows after that point"
	pieces := splitOversized(para, 30)
	require.Greater(t, len(pieces), 1)
	assert.Equal(t, "First sentence here.", pieces[0])
	assert.Equal(t, strings.Fields(para), strings.Fields(strings.Join(pieces, " ")),
		"splitting must not lose or reorder words")
}

func newTranslateBackend(t *testing.T, translated string, capture *translateRequest) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/translate", func(w http.ResponseWriter, r *http.Request) {
		var req translateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if capture != nil {
			*capture = req
		}
		json.NewEncoder(w).Encode(translateResponse{TranslatedText: translated})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// deadBackend returns a URL nothing listens on.
func deadBackend(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	return url
}

func TestTranslateToEnglishPassthrough(t *testing.T) {
	svc := NewTranslateService("", "", time.Second)
	assert.Equal(t, "already english", svc.TranslateToEnglish(context.Background(), "already english", "english"))
	assert.Equal(t, "", svc.TranslateToEnglish(context.Background(), "", "french"))
}

func TestTranslateToEnglishUsesPrimary(t *testing.T) {
	var captured translateRequest
	primary := newTranslateBackend(t, "Hello world", &captured)

	svc := NewTranslateService(primary.URL, "", time.Second)
	got := svc.TranslateToEnglish(context.Background(), "Bonjour le monde", "french")

	assert.Equal(t, "Hello world", got)
	assert.Equal(t, "Bonjour le monde", captured.Q)
	assert.Equal(t, "fr", captured.Source)
	assert.Equal(t, "en", captured.Target)
	assert.Equal(t, "text", captured.Format)
}

func TestTranslateToEnglishUnknownLanguageAutoDetects(t *testing.T) {
	var captured translateRequest
	primary := newTranslateBackend(t, "translated", &captured)

	svc := NewTranslateService(primary.URL, "", time.Second)
	svc.TranslateToEnglish(context.Background(), "some text", "klingon")

	assert.Equal(t, "auto", captured.Source)
}

func TestTranslateToEnglishFallsBack(t *testing.T) {
	fallback := newTranslateBackend(t, "from fallback", nil)

	svc := NewTranslateService(deadBackend(t), fallback.URL, time.Second)
	got := svc.TranslateToEnglish(context.Background(), "texte source", "french")

	assert.Equal(t, "from fallback", got)
}

func TestTranslateToEnglishKeepsOriginalWhenAllFail(t *testing.T) {
	svc := NewTranslateService(deadBackend(t), deadBackend(t), time.Second)
	got := svc.TranslateToEnglish(context.Background(), "texte intraduisible", "french")
	assert.Equal(t, "texte intraduisible", got)
}

func TestTranslateToEnglishRejectsEchoedSource(t *testing.T) {
	primary := newTranslateBackend(t, "النص الأصلي دون ترجمة", nil)

	svc := NewTranslateService(primary.URL, "", time.Second)
	got := svc.TranslateToEnglish(context.Background(), "النص الأصلي", "arabic")

	assert.Equal(t, "النص الأصلي", got, "a non-Latin echo keeps the original text")
}

func TestTranslateHealthy(t *testing.T) {
	ctx := context.Background()

	primary := newTranslateBackend(t, "ok", nil)
	assert.True(t, NewTranslateService(primary.URL, "", time.Second).Healthy(ctx))

	assert.False(t, NewTranslateService(deadBackend(t), "", time.Second).Healthy(ctx))
	assert.True(t, NewTranslateService(deadBackend(t), primary.URL, time.Second).Healthy(ctx),
		"a reachable fallback keeps translation healthy")

	assert.False(t, NewTranslateService("", "", time.Second).Healthy(ctx))
	assert.True(t, NewTranslateService("", primary.URL, time.Second).Healthy(ctx))
}
