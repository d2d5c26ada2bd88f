package services

import (
	"context"
	"sort"
	"strings"

	"document-archive-platform/internal/ai"
	"document-archive-platform/internal/catalog"
	"document-archive-platform/internal/logger"
	"document-archive-platform/internal/telemetry"
	"document-archive-platform/models"
	"document-archive-platform/utils"
)

const (
	// SearchType values accepted by the public search endpoint.
	SearchTypeHybrid   = "hybrid"
	SearchTypeKeyword  = "keyword"
	SearchTypeSemantic = "semantic"

	defaultPerPage = 20
	maxPerPage     = 100

	// Candidate caps before pagination. Semantic scoring walks at most
	// this many stored document vectors per query.
	searchFetchLimit = 1000

	minSemanticSimilarity = 0.3
)

// scoredDocument pairs a candidate with its semantic similarity.
// Keyword-only hits carry similarity 0.
type scoredDocument struct {
	doc        *models.Document
	similarity float64
}

// SearchService merges full-text, substring and vector results over the
// publicly visible part of the catalog.
type SearchService struct {
	store    *catalog.Store
	embedder *ai.EmbeddingService
	spam     *SpamFilter
	metrics  *telemetry.Metrics
}

func NewSearchService(store *catalog.Store, embedder *ai.EmbeddingService, spam *SpamFilter, metrics *telemetry.Metrics) *SearchService {
	return &SearchService{store: store, embedder: embedder, spam: spam, metrics: metrics}
}

// Search runs one public query. An empty q ignores the mode and lists
// the newest visible documents for the given filters.
func (s *SearchService) Search(ctx context.Context, q, country, state string, page, perPage int, searchType string) (*models.SearchResponse, error) {
	q = strings.TrimSpace(q)
	searchType = normalizeSearchType(searchType)
	page, perPage = clampPaging(page, perPage)

	if q == "" {
		return s.recentDocuments(ctx, country, state, page, perPage, searchType)
	}

	var scored []scoredDocument
	var err error
	switch searchType {
	case SearchTypeKeyword:
		scored, err = s.keywordMatches(ctx, q, country, state)
	case SearchTypeSemantic:
		scored, err = s.semanticMatches(ctx, q, country, state)
	default:
		scored, err = s.hybridMatches(ctx, q, country, state)
	}
	if err != nil {
		return nil, err
	}

	sortScored(scored)
	total := len(scored)
	pageSlice := paginate(scored, page, perPage)

	results := make([]models.SearchDocument, 0, len(pageSlice))
	for _, sc := range pageSlice {
		results = append(results, s.buildSearchDocument(ctx, sc.doc, sc.similarity))
	}
	if s.metrics != nil {
		s.metrics.RecordSearch(searchType, total)
	}
	return &models.SearchResponse{
		Results:    results,
		Total:      total,
		Page:       page,
		PerPage:    perPage,
		SearchType: searchType,
	}, nil
}

// PublicDocument returns one visible document in the search shape.
func (s *SearchService) PublicDocument(ctx context.Context, id int64) (*models.SearchDocument, error) {
	doc, err := s.store.GetPublicDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	out := s.buildSearchDocument(ctx, doc, 0)
	return &out, nil
}

func (s *SearchService) recentDocuments(ctx context.Context, country, state string, page, perPage int, searchType string) (*models.SearchResponse, error) {
	docs, total, err := s.store.RecentApproved(ctx, country, state, perPage, (page-1)*perPage)
	if err != nil {
		return nil, err
	}
	results := make([]models.SearchDocument, 0, len(docs))
	for _, doc := range docs {
		results = append(results, s.buildSearchDocument(ctx, doc, 0))
	}
	if s.metrics != nil {
		s.metrics.RecordSearch("recent", total)
	}
	return &models.SearchResponse{
		Results:    results,
		Total:      total,
		Page:       page,
		PerPage:    perPage,
		SearchType: searchType,
	}, nil
}

// keywordMatches unions full-text hits with substring hits. A full-text
// failure degrades to substring-only rather than failing the query.
func (s *SearchService) keywordMatches(ctx context.Context, q, country, state string) ([]scoredDocument, error) {
	seen := make(map[int64]bool)
	var out []scoredDocument

	ftsDocs, err := s.store.FullTextSearch(ctx, q, country, state, searchFetchLimit)
	if err != nil {
		logger.Logger.Warn("full-text search failed, using substring only", "error", err)
	}
	for _, doc := range ftsDocs {
		if !seen[doc.ID] {
			seen[doc.ID] = true
			out = append(out, scoredDocument{doc: doc})
		}
	}

	subDocs, err := s.store.SubstringSearch(ctx, q, country, state, searchFetchLimit)
	if err != nil {
		if len(out) == 0 {
			return nil, err
		}
		logger.Logger.Warn("substring search failed", "error", err)
		return out, nil
	}
	for _, doc := range subDocs {
		if !seen[doc.ID] {
			seen[doc.ID] = true
			out = append(out, scoredDocument{doc: doc})
		}
	}
	return out, nil
}

// semanticMatches embeds the query and scores it against the stored
// document-level vectors, keeping cosine similarity >= 0.3.
func (s *SearchService) semanticMatches(ctx context.Context, q, country, state string) ([]scoredDocument, error) {
	queryVec := s.embedder.EmbedQuery(ctx, q)
	if queryVec == nil {
		return nil, utils.NewError(utils.KindUpstreamUnavailable, "semantic search is temporarily unavailable")
	}

	candidates, err := s.store.ApprovedEmbeddings(ctx, searchFetchLimit)
	if err != nil {
		return nil, err
	}

	type hit struct {
		id  int64
		sim float64
	}
	var hits []hit
	for _, cand := range candidates {
		sim := cosineSimilarity(queryVec, cand.Embedding)
		if sim >= minSemanticSimilarity {
			hits = append(hits, hit{id: cand.ID, sim: sim})
		}
	}
	if len(hits) == 0 {
		return nil, nil
	}

	ids := make([]int64, len(hits))
	for i, h := range hits {
		ids[i] = h.id
	}
	docs, err := s.store.DocumentsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	var out []scoredDocument
	for _, h := range hits {
		doc, ok := docs[h.id]
		if !ok || !doc.IsPubliclyVisible() {
			continue
		}
		if country != "" && !strings.EqualFold(doc.Country, country) {
			continue
		}
		if state != "" && !strings.EqualFold(doc.State, state) {
			continue
		}
		out = append(out, scoredDocument{doc: doc, similarity: h.sim})
	}
	return out, nil
}

// hybridMatches unions semantic and keyword hits, preferring the scored
// semantic entry for duplicates. An embedding outage degrades hybrid to
// keyword-only.
func (s *SearchService) hybridMatches(ctx context.Context, q, country, state string) ([]scoredDocument, error) {
	semantic, err := s.semanticMatches(ctx, q, country, state)
	if err != nil {
		logger.Logger.Warn("semantic leg failed, degrading to keyword", "error", err)
		semantic = nil
	}

	keyword, err := s.keywordMatches(ctx, q, country, state)
	if err != nil {
		if len(semantic) == 0 {
			return nil, err
		}
		logger.Logger.Warn("keyword leg failed, returning semantic only", "error", err)
	}

	return mergeScored(semantic, keyword), nil
}

// mergeScored unions the two result legs. A document present in both
// keeps its semantic entry, that one carries the similarity.
func mergeScored(semantic, keyword []scoredDocument) []scoredDocument {
	seen := make(map[int64]bool, len(semantic))
	out := make([]scoredDocument, 0, len(semantic)+len(keyword))
	for _, sc := range semantic {
		seen[sc.doc.ID] = true
		out = append(out, sc)
	}
	for _, sc := range keyword {
		if !seen[sc.doc.ID] {
			seen[sc.doc.ID] = true
			out = append(out, sc)
		}
	}
	return out
}

// buildSearchDocument applies redaction, tag filtering and translation
// promotion to produce the public view.
func (s *SearchService) buildSearchDocument(ctx context.Context, doc *models.Document, similarity float64) models.SearchDocument {
	isEnglish := doc.DocumentLanguage == "english"

	ocrText := doc.OCRTextOriginal
	hasEnglish := false
	if !isEnglish && doc.OCRTextEnglish != "" {
		ocrText = doc.OCRTextEnglish
		hasEnglish = true
	}
	ocrText = s.spam.Redact(ctx, ocrText)

	var tags []string
	for _, tag := range doc.GeneratedTags {
		if !s.spam.IsBannedWord(ctx, tag) {
			tags = append(tags, tag)
		}
	}

	return models.SearchDocument{
		ID:                    doc.ID,
		Title:                 doc.Title,
		Country:               doc.Country,
		State:                 doc.State,
		Description:           doc.Description,
		DocumentLanguage:      doc.DocumentLanguage,
		OCRText:               ocrText,
		Summary:               doc.Summary,
		GeneratedTags:         tags,
		ViewCount:             doc.ViewCount,
		Similarity:            similarity,
		HasEnglishTranslation: hasEnglish,
		HasArabicText:         doc.DocumentLanguage == "arabic" && doc.OCRTextOriginal != "",
		CreatedAt:             doc.CreatedAt,
	}
}

func normalizeSearchType(searchType string) string {
	switch strings.ToLower(strings.TrimSpace(searchType)) {
	case SearchTypeKeyword:
		return SearchTypeKeyword
	case SearchTypeSemantic:
		return SearchTypeSemantic
	default:
		return SearchTypeHybrid
	}
}

func clampPaging(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	return page, perPage
}

// sortScored orders by similarity descending, then newest first. The
// sort is stable so equally scored keyword hits keep their rank order.
func sortScored(scored []scoredDocument) {
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].similarity != scored[j].similarity {
			return scored[i].similarity > scored[j].similarity
		}
		return scored[i].doc.CreatedAt.After(scored[j].doc.CreatedAt)
	})
}

func paginate(scored []scoredDocument, page, perPage int) []scoredDocument {
	offset := (page - 1) * perPage
	if offset >= len(scored) {
		return nil
	}
	end := offset + perPage
	if end > len(scored) {
		end = len(scored)
	}
	return scored[offset:end]
}

// cosineSimilarity over stored vectors. Both sides are L2-normalised at
// write time, so the dot product is the cosine.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}
