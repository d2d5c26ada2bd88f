package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/redis/go-redis/v9"

	"document-archive-platform/internal/catalog"
	"document-archive-platform/internal/logger"
	"document-archive-platform/models"
	"document-archive-platform/utils"
)

const (
	maxHighlightLength = 5000
	maxNoteLength      = 2000
)

// AnnotationService validates and persists page highlights. Annotations
// share the comment rate window shape, keyed separately, and keep their
// own per-document listing cache.
type AnnotationService struct {
	store      *catalog.Store
	limiter    *RateLimiter
	spam       *SpamFilter
	rdb        *redis.Client
	rateWindow time.Duration
	cacheTTL   time.Duration
}

func NewAnnotationService(store *catalog.Store, limiter *RateLimiter, spam *SpamFilter,
	rdb *redis.Client, rateWindowSecs, cacheTTLSecs int) *AnnotationService {
	return &AnnotationService{
		store:      store,
		limiter:    limiter,
		spam:       spam,
		rdb:        rdb,
		rateWindow: time.Duration(rateWindowSecs) * time.Second,
		cacheTTL:   time.Duration(cacheTTLSecs) * time.Second,
	}
}

// Create checks the rectangle invariants and text limits before
// claiming the session's rate window and inserting.
func (s *AnnotationService) Create(ctx context.Context, a *models.Annotation) (*models.Annotation, error) {
	if !a.Validate() {
		return nil, utils.NewError(utils.KindInputInvalid,
			"annotation requires page_number >= 1, x,y >= 0 and positive width and height")
	}

	a.HighlightedText = strings.TrimSpace(a.HighlightedText)
	a.AnnotationNote = strings.TrimSpace(a.AnnotationNote)
	if a.HighlightedText == "" {
		return nil, utils.NewError(utils.KindInputInvalid, "highlighted_text is required")
	}
	if utf8.RuneCountInString(a.HighlightedText) > maxHighlightLength {
		return nil, utils.NewError(utils.KindInputInvalid,
			fmt.Sprintf("highlighted_text must be at most %d characters", maxHighlightLength))
	}
	if utf8.RuneCountInString(a.AnnotationNote) > maxNoteLength {
		return nil, utils.NewError(utils.KindInputInvalid,
			fmt.Sprintf("annotation_note must be at most %d characters", maxNoteLength))
	}
	if _, err := s.store.GetPublicDocument(ctx, a.DocumentID); err != nil {
		return nil, err
	}
	if a.AnnotationNote != "" && s.spam.ContainsBanned(ctx, a.AnnotationNote) {
		return nil, utils.NewError(utils.KindInputInvalid, "annotation contains prohibited content")
	}

	rateKey := fmt.Sprintf("annotation_rate:%d:%s", a.DocumentID, a.SessionHash)
	allowed, retryAfter := s.limiter.Allow(ctx, rateKey, s.rateWindow)
	if !allowed {
		return nil, utils.RateLimitError("please wait before annotating again", retryAfter)
	}

	created, err := s.store.CreateAnnotation(ctx, a)
	if err != nil {
		s.limiter.Reset(ctx, rateKey)
		return nil, err
	}
	s.invalidateCache(ctx, a.DocumentID)
	return created, nil
}

// List returns every highlight on a publicly visible document, cached
// per document for a few minutes.
func (s *AnnotationService) List(ctx context.Context, documentID int64) ([]*models.Annotation, error) {
	if _, err := s.store.GetPublicDocument(ctx, documentID); err != nil {
		return nil, err
	}

	cacheKey := annotationCacheKey(documentID)
	if cached := s.cachedList(ctx, cacheKey); cached != nil {
		return cached, nil
	}

	annotations, err := s.store.ListAnnotations(ctx, documentID)
	if err != nil {
		return nil, err
	}
	s.cacheList(ctx, cacheKey, annotations)
	return annotations, nil
}

// Delete removes one highlight, session-owned unless sessionHash is empty.
func (s *AnnotationService) Delete(ctx context.Context, id int64, sessionHash string) error {
	deleted, err := s.store.DeleteAnnotation(ctx, id, sessionHash)
	if err != nil {
		return err
	}
	s.invalidateCache(ctx, deleted.DocumentID)
	return nil
}

func annotationCacheKey(documentID int64) string {
	return fmt.Sprintf("annotations:%d", documentID)
}

func (s *AnnotationService) cachedList(ctx context.Context, key string) []*models.Annotation {
	if s.rdb == nil {
		return nil
	}
	raw, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return nil
	}
	var list []*models.Annotation
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil
	}
	if list == nil {
		list = []*models.Annotation{}
	}
	return list
}

func (s *AnnotationService) cacheList(ctx context.Context, key string, list []*models.Annotation) {
	if s.rdb == nil {
		return
	}
	raw, err := json.Marshal(list)
	if err != nil {
		return
	}
	if err := s.rdb.Set(ctx, key, raw, s.cacheTTL).Err(); err != nil {
		logger.Logger.Warn("annotation cache write failed", "key", key, "error", err)
	}
}

func (s *AnnotationService) invalidateCache(ctx context.Context, documentID int64) {
	if s.rdb == nil {
		return
	}
	if err := s.rdb.Del(ctx, annotationCacheKey(documentID)).Err(); err != nil {
		logger.Logger.Warn("annotation cache invalidation failed", "document_id", documentID, "error", err)
	}
}
