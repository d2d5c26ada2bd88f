package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"document-archive-platform/models"
)

func scoredFixture(id int64, similarity float64, createdAt time.Time) scoredDocument {
	return scoredDocument{
		doc:        &models.Document{ID: id, CreatedAt: createdAt},
		similarity: similarity,
	}
}

func TestMergeScoredPrefersSemanticEntry(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	semantic := []scoredDocument{
		scoredFixture(1, 0.9, base),
		scoredFixture(2, 0.7, base),
	}
	keyword := []scoredDocument{
		scoredFixture(2, 0, base),
		scoredFixture(3, 0, base),
	}

	merged := mergeScored(semantic, keyword)
	require.Len(t, merged, 3)
	assert.Equal(t, int64(1), merged[0].doc.ID)
	assert.Equal(t, int64(2), merged[1].doc.ID)
	assert.Equal(t, 0.7, merged[1].similarity, "the semantic entry wins for documents in both sets")
	assert.Equal(t, int64(3), merged[2].doc.ID)
}

func TestSortScored(t *testing.T) {
	old := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := old.Add(48 * time.Hour)
	scored := []scoredDocument{
		scoredFixture(1, 0.2, old),
		scoredFixture(2, 0.8, old),
		scoredFixture(3, 0.2, recent),
	}

	sortScored(scored)
	assert.Equal(t, int64(2), scored[0].doc.ID)
	assert.Equal(t, int64(3), scored[1].doc.ID, "ties break newest first")
	assert.Equal(t, int64(1), scored[2].doc.ID)
}

func TestClampPaging(t *testing.T) {
	page, perPage := clampPaging(0, 0)
	assert.Equal(t, 1, page)
	assert.Equal(t, defaultPerPage, perPage)

	page, perPage = clampPaging(-3, -1)
	assert.Equal(t, 1, page)
	assert.Equal(t, defaultPerPage, perPage)

	page, perPage = clampPaging(2, 500)
	assert.Equal(t, 2, page)
	assert.Equal(t, maxPerPage, perPage)

	page, perPage = clampPaging(4, 15)
	assert.Equal(t, 4, page)
	assert.Equal(t, 15, perPage)
}

func TestPaginate(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	scored := make([]scoredDocument, 0, 5)
	for i := int64(1); i <= 5; i++ {
		scored = append(scored, scoredFixture(i, 0, base))
	}

	first := paginate(scored, 1, 2)
	require.Len(t, first, 2)
	assert.Equal(t, int64(1), first[0].doc.ID)

	last := paginate(scored, 3, 2)
	require.Len(t, last, 1, "the last page may be partial")
	assert.Equal(t, int64(5), last[0].doc.ID)

	assert.Nil(t, paginate(scored, 4, 2), "pages past the end are empty")
}

func TestNormalizeSearchType(t *testing.T) {
	assert.Equal(t, SearchTypeKeyword, normalizeSearchType(" KEYWORD "))
	assert.Equal(t, SearchTypeSemantic, normalizeSearchType("semantic"))
	assert.Equal(t, SearchTypeHybrid, normalizeSearchType(""))
	assert.Equal(t, SearchTypeHybrid, normalizeSearchType("fuzzy"))
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 0, 0}, []float32{1, 0, 0}), 0.0001)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 0.0001)
	assert.Equal(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{1, 0, 0}), "length mismatch scores zero")
	assert.Equal(t, 0.0, cosineSimilarity(nil, nil))
}

func TestBuildSearchDocumentRedactsAndPromotes(t *testing.T) {
	svc := &SearchService{spam: loadedSpamFilter("classified")}
	created := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)

	doc := &models.Document{
		ID:               7,
		Title:            "Procurement review",
		Country:          "Kenya",
		DocumentLanguage: "arabic",
		OCRTextOriginal:  "النص الأصلي",
		OCRTextEnglish:   "The classified annex lists suppliers",
		GeneratedTags:    []string{"suppliers", "classified", "annex"},
		ViewCount:        12,
		CreatedAt:        created,
	}

	out := svc.buildSearchDocument(context.Background(), doc, 0.42)

	assert.True(t, out.HasEnglishTranslation)
	assert.True(t, out.HasArabicText)
	assert.Equal(t, "The *** annex lists suppliers", out.OCRText)
	assert.Equal(t, []string{"suppliers", "annex"}, out.GeneratedTags)
	assert.Equal(t, 0.42, out.Similarity)
	assert.Equal(t, int64(7), out.ID)
	assert.Equal(t, created, out.CreatedAt)
}

func TestBuildSearchDocumentEnglishOriginal(t *testing.T) {
	svc := &SearchService{spam: loadedSpamFilter()}

	doc := &models.Document{
		ID:               8,
		DocumentLanguage: "english",
		OCRTextOriginal:  "original english text",
		OCRTextEnglish:   "should be ignored",
	}

	out := svc.buildSearchDocument(context.Background(), doc, 0)
	assert.Equal(t, "original english text", out.OCRText)
	assert.False(t, out.HasEnglishTranslation)
	assert.False(t, out.HasArabicText)
}
