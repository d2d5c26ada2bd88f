package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"document-archive-platform/utils"
)

func TestNormalizeDocumentLanguage(t *testing.T) {
	assert.Equal(t, "chinese_simplified", NormalizeDocumentLanguage("Mandarin"))
	assert.Equal(t, "chinese_simplified", NormalizeDocumentLanguage("chinese"))
	assert.Equal(t, "persian", NormalizeDocumentLanguage(" FARSI "))
	assert.Equal(t, "myanmar", NormalizeDocumentLanguage("burmese"))
	assert.Equal(t, "arabic", NormalizeDocumentLanguage("Arabic"))
	assert.Equal(t, "english", NormalizeDocumentLanguage("klingon"))
	assert.Equal(t, "english", NormalizeDocumentLanguage(""))
}

func TestResolveLanguagePack(t *testing.T) {
	assert.Equal(t, "mya", ResolveLanguagePack("burmese"))
	assert.Equal(t, "chi_sim", ResolveLanguagePack("mandarin"))
	assert.Equal(t, "ara", ResolveLanguagePack("arabic"))
	assert.Equal(t, "eng", ResolveLanguagePack("unknown tongue"))
}

func TestExtractTextDisabled(t *testing.T) {
	client := NewOCRClient("", false, time.Second)
	_, err := client.ExtractText(context.Background(), &OCRRequest{Data: []byte("x"), Filename: "a.pdf"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, utils.ErrUpstreamUnavailable))
}

func TestExtractTextJoinsPages(t *testing.T) {
	var gotLanguage string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		gotLanguage = r.FormValue("language")
		json.NewEncoder(w).Encode(OCRResponse{
			Success:   true,
			PageTexts: []string{"page one", "  ", "page two"},
			PageCount: 3,
		})
	}))
	defer srv.Close()

	client := NewOCRClient(srv.URL, true, time.Second)
	text, err := client.ExtractText(context.Background(), &OCRRequest{
		Data:     []byte("fake scan"),
		Filename: "scan.pdf",
		Language: "farsi",
		IsPDF:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, "page one\n\npage two", text, "blank pages are dropped from the join")
	assert.Equal(t, "fas", gotLanguage)
}

func TestExtractTextServiceFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(OCRResponse{Success: false, Error: "model not loaded"})
	}))
	defer srv.Close()

	client := NewOCRClient(srv.URL, true, time.Second)
	_, err := client.ExtractText(context.Background(), &OCRRequest{Data: []byte("x"), Filename: "a.png"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, utils.ErrUpstreamUnavailable))
	assert.Contains(t, err.Error(), "model not loaded")
}

func TestIsHealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(HealthResponse{Status: "healthy", ModelLoaded: true})
	}))
	defer srv.Close()

	ok, err := NewOCRClient(srv.URL, true, time.Second).IsHealthy(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	loading := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(HealthResponse{Status: "healthy", ModelLoaded: false})
	}))
	defer loading.Close()

	ok, err = NewOCRClient(loading.URL, true, time.Second).IsHealthy(context.Background())
	require.NoError(t, err)
	assert.False(t, ok, "a service still loading models is not ready")
}
