package services

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"document-archive-platform/internal/ai"
	"document-archive-platform/internal/catalog"
	"document-archive-platform/internal/logger"
	"document-archive-platform/internal/telemetry"
	"document-archive-platform/internal/vectorstore"
	"document-archive-platform/models"
	"document-archive-platform/utils"
)

const (
	maxQuestionLength  = 2000
	chunkPreviewLength = 200

	ragSystemInstruction = "You are a research assistant for a public document archive. " +
		"Answer only from the provided context and cite the documents you used by title. " +
		"If the context does not contain the answer, say that the archive holds no relevant information."

	ragNoDocsAnswer  = "I could not find any relevant documents in the archive for this question."
	ragApologyAnswer = "I was unable to process this question right now. Please try again later."
)

// RAGService answers questions from retrieved document chunks. Failures
// of the embedder or the model degrade to stock answers with confidence
// zero; every served answer is logged with its response time.
type RAGService struct {
	store         *catalog.Store
	chunks        *vectorstore.Store
	embedder      *ai.EmbeddingService
	gemini        *ai.GeminiClient
	metrics       *telemetry.Metrics
	topK          int
	maxContextLen int
}

func NewRAGService(store *catalog.Store, chunks *vectorstore.Store, embedder *ai.EmbeddingService,
	gemini *ai.GeminiClient, metrics *telemetry.Metrics, topK, maxContextLen int) *RAGService {
	if topK <= 0 {
		topK = 5
	}
	if maxContextLen <= 0 {
		maxContextLen = 12000
	}
	return &RAGService{
		store:         store,
		chunks:        chunks,
		embedder:      embedder,
		gemini:        gemini,
		metrics:       metrics,
		topK:          topK,
		maxContextLen: maxContextLen,
	}
}

// Answer runs the full retrieve-and-generate flow. documentID scopes
// retrieval to one document when non-nil; a non-English language asks
// the model to reply in that language.
func (s *RAGService) Answer(ctx context.Context, question string, documentID *int64, language string) (*models.RAGAnswer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, utils.NewError(utils.KindInputInvalid, "question is required")
	}
	if utf8.RuneCountInString(question) > maxQuestionLength {
		return nil, utils.NewError(utils.KindInputInvalid,
			fmt.Sprintf("question must be at most %d characters", maxQuestionLength))
	}

	start := time.Now()

	queryVec := s.embedder.EmbedQuery(ctx, question)
	if queryVec == nil {
		return s.finish(ctx, question, documentID, ragApologyAnswer, nil, 0, start), nil
	}

	var matches []*models.ChunkMatch
	var err error
	if documentID != nil {
		matches, err = s.chunks.SearchScoped(ctx, queryVec, *documentID, s.topK, 0)
	} else {
		matches, err = s.chunks.Search(ctx, queryVec, s.topK, 0)
	}
	if err != nil {
		logger.Logger.Error("chunk retrieval failed", "error", err)
		return s.finish(ctx, question, documentID, ragApologyAnswer, nil, 0, start), nil
	}

	retained, err := s.filterVisible(ctx, matches)
	if err != nil {
		logger.Logger.Error("chunk visibility check failed", "error", err)
		return s.finish(ctx, question, documentID, ragApologyAnswer, nil, 0, start), nil
	}
	if len(retained) == 0 {
		return s.finish(ctx, question, documentID, ragNoDocsAnswer, nil, 0, start), nil
	}

	if s.gemini == nil {
		return s.finish(ctx, question, documentID, ragApologyAnswer, nil, 0, start), nil
	}
	prompt := s.buildPrompt(question, retained, language)
	answer, err := s.gemini.Generate(ctx, prompt, 0.2)
	if err != nil {
		logger.Logger.Warn("answer generation failed", "error", err)
		return s.finish(ctx, question, documentID, ragApologyAnswer, nil, 0, start), nil
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return s.finish(ctx, question, documentID, ragApologyAnswer, nil, 0, start), nil
	}

	confidence := AnswerConfidence(len(retained))
	sources := make([]models.RAGSource, 0, len(retained))
	for _, m := range retained {
		sources = append(sources, models.RAGSource{
			DocumentID:    m.DocumentID,
			DocumentTitle: m.DocumentTitle,
			Country:       m.DocumentCountry,
			ChunkPreview:  chunkPreview(m.Content),
		})
	}
	return s.finish(ctx, question, documentID, answer, sources, confidence, start), nil
}

// filterVisible drops chunks whose document is no longer publicly
// visible. The vector query joins on status too; this second pass
// covers documents rejected between the scan and the answer.
func (s *RAGService) filterVisible(ctx context.Context, matches []*models.ChunkMatch) ([]*models.ChunkMatch, error) {
	if len(matches) == 0 {
		return nil, nil
	}
	ids := make([]int64, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, m.DocumentID)
	}
	visible, err := s.store.ApprovedStatuses(ctx, ids)
	if err != nil {
		return nil, err
	}
	var out []*models.ChunkMatch
	for _, m := range matches {
		if visible[m.DocumentID] {
			out = append(out, m)
		}
	}
	return out, nil
}

// buildPrompt assembles the instruction, the retained chunk blocks and
// the question. Context blocks stop at the configured length cap but
// the first block is always included.
func (s *RAGService) buildPrompt(question string, retained []*models.ChunkMatch, language string) string {
	var b strings.Builder
	b.WriteString(ragSystemInstruction)
	if language = strings.ToLower(strings.TrimSpace(language)); language != "" && language != "english" {
		b.WriteString(" Reply in ")
		b.WriteString(language)
		b.WriteString(".")
	}
	b.WriteString("\n\nContext:\n\n")

	used := 0
	for i, m := range retained {
		block := fmt.Sprintf("Document: %s (Country: %s)\nContent: %s\n\n",
			m.DocumentTitle, m.DocumentCountry, m.Content)
		if i > 0 && used+len(block) > s.maxContextLen {
			break
		}
		b.WriteString(block)
		used += len(block)
	}

	b.WriteString("Question: ")
	b.WriteString(question)
	b.WriteString("\n\nAnswer:")
	return b.String()
}

// finish packages the answer, writes the query log row and records
// telemetry. Logging failures never fail the request.
func (s *RAGService) finish(ctx context.Context, question string, documentID *int64,
	answer string, sources []models.RAGSource, confidence float64, start time.Time) *models.RAGAnswer {

	elapsed := time.Since(start).Milliseconds()
	if sources == nil {
		sources = []models.RAGSource{}
	}

	result := &models.RAGAnswer{
		Question:       question,
		Answer:         answer,
		Confidence:     confidence,
		Sources:        sources,
		ResponseTimeMs: elapsed,
	}

	queryID, err := s.store.InsertQueryLog(ctx, &models.RAGQueryLog{
		QueryText:      question,
		AnswerText:     answer,
		Confidence:     confidence,
		SourcesCount:   len(sources),
		ResponseTimeMs: elapsed,
		DocumentID:     documentID,
	})
	if err != nil {
		logger.Logger.Warn("query log write failed", "error", err)
	} else {
		result.QueryID = queryID
	}

	if s.metrics != nil {
		s.metrics.RecordRAGAnswer(confidence, len(sources))
	}
	return result
}

// AnswerConfidence maps the retained chunk count onto a bounded score.
func AnswerConfidence(retainedChunks int) float64 {
	if retainedChunks <= 0 {
		return 0
	}
	confidence := 0.3 + 0.1*float64(retainedChunks)
	if confidence > 0.9 {
		return 0.9
	}
	return confidence
}

func chunkPreview(content string) string {
	runes := []rune(content)
	if len(runes) <= chunkPreviewLength {
		return content
	}
	return string(runes[:chunkPreviewLength]) + "..."
}
