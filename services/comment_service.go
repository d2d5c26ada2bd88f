package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/redis/go-redis/v9"

	"document-archive-platform/internal/catalog"
	"document-archive-platform/internal/logger"
	"document-archive-platform/internal/telemetry"
	"document-archive-platform/models"
	"document-archive-platform/utils"
)

const (
	minCommentLength = 10
	maxCommentLength = 5000
)

// CommentService handles anonymous threaded comments: validation, spam
// checks, per-session rate limiting and the cached public listings.
type CommentService struct {
	store      *catalog.Store
	limiter    *RateLimiter
	spam       *SpamFilter
	rdb        *redis.Client
	metrics    *telemetry.Metrics
	rateWindow time.Duration
	cacheTTL   time.Duration
	maxActive  int
}

func NewCommentService(store *catalog.Store, limiter *RateLimiter, spam *SpamFilter,
	rdb *redis.Client, metrics *telemetry.Metrics,
	rateWindowSecs, cacheTTLSecs, maxActive int) *CommentService {
	return &CommentService{
		store:      store,
		limiter:    limiter,
		spam:       spam,
		rdb:        rdb,
		metrics:    metrics,
		rateWindow: time.Duration(rateWindowSecs) * time.Second,
		cacheTTL:   time.Duration(cacheTTLSecs) * time.Second,
		maxActive:  maxActive,
	}
}

// Create validates and persists one comment. The rate window is claimed
// only after validation passes, and released again if the insert fails,
// so a rejected attempt does not burn the session's slot.
func (s *CommentService) Create(ctx context.Context, documentID int64, parentID *int64, text, sessionHash string) (*models.Comment, error) {
	text = strings.TrimSpace(text)
	if n := utf8.RuneCountInString(text); n < minCommentLength || n > maxCommentLength {
		return nil, utils.NewError(utils.KindInputInvalid,
			fmt.Sprintf("comment must be between %d and %d characters", minCommentLength, maxCommentLength))
	}
	if _, err := s.store.GetPublicDocument(ctx, documentID); err != nil {
		return nil, err
	}
	if s.spam.ContainsBanned(ctx, text) {
		return nil, utils.NewError(utils.KindInputInvalid, "comment contains prohibited content")
	}

	rateKey := fmt.Sprintf("comment_rate:%d:%s", documentID, sessionHash)
	allowed, retryAfter := s.limiter.Allow(ctx, rateKey, s.rateWindow)
	if !allowed {
		return nil, utils.RateLimitError("please wait before commenting again", retryAfter)
	}

	created, err := s.store.CreateComment(ctx, &models.Comment{
		DocumentID:      documentID,
		ParentCommentID: parentID,
		CommentText:     text,
		SessionHash:     sessionHash,
	}, s.maxActive)
	if err != nil {
		s.limiter.Reset(ctx, rateKey)
		return nil, err
	}

	s.invalidateCache(ctx, documentID)
	if s.metrics != nil {
		s.metrics.RecordComment()
	}
	return created, nil
}

// List returns the comment tree for a document in the requested order.
// Results are cached per (document, sort) for a few minutes; every write
// path drops the cache.
func (s *CommentService) List(ctx context.Context, documentID int64, sortOrder string) ([]*models.CommentNode, error) {
	switch sortOrder {
	case models.SortMostReplies, models.SortNewest, models.SortOldest:
	default:
		sortOrder = models.SortNewest
	}

	cacheKey := commentCacheKey(documentID, sortOrder)
	if cached := s.cachedTree(ctx, cacheKey); cached != nil {
		return cached, nil
	}

	comments, err := s.store.ListApprovedComments(ctx, documentID)
	if err != nil {
		return nil, err
	}
	tree := BuildCommentTree(comments)
	SortCommentTree(tree, sortOrder)

	s.cacheTree(ctx, cacheKey, tree)
	return tree, nil
}

// Flag records a community flag; at the threshold the comment and its
// subtree vanish from listings.
func (s *CommentService) Flag(ctx context.Context, commentID int64) (*models.Comment, error) {
	c, err := s.store.FlagComment(ctx, commentID)
	if err != nil {
		return nil, err
	}
	s.invalidateCache(ctx, c.DocumentID)
	return c, nil
}

// Delete removes a comment and its replies. A non-empty sessionHash
// restricts deletion to the session that wrote it; admins pass "".
func (s *CommentService) Delete(ctx context.Context, commentID int64, sessionHash string) error {
	c, err := s.store.GetComment(ctx, commentID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteComment(ctx, commentID, sessionHash); err != nil {
		return err
	}
	s.invalidateCache(ctx, c.DocumentID)
	return nil
}

// BuildCommentTree assembles the reply tree from a flat, chronologically
// ordered comment list. Nodes whose parent is absent from the list (the
// parent was flagged away or deleted) are dropped with their subtree.
func BuildCommentTree(comments []*models.Comment) []*models.CommentNode {
	nodes := make(map[int64]*models.CommentNode, len(comments))
	for _, c := range comments {
		nodes[c.ID] = &models.CommentNode{Comment: *c}
	}

	roots := make([]*models.CommentNode, 0)
	for _, c := range comments {
		node := nodes[c.ID]
		if c.ParentCommentID == nil {
			roots = append(roots, node)
			continue
		}
		parent, ok := nodes[*c.ParentCommentID]
		if !ok {
			continue
		}
		parent.Replies = append(parent.Replies, node)
	}

	for _, root := range roots {
		countDescendants(root)
	}
	return roots
}

func countDescendants(node *models.CommentNode) int {
	total := 0
	for _, reply := range node.Replies {
		total += 1 + countDescendants(reply)
	}
	node.DescendantCount = total
	return total
}

// SortCommentTree orders the top-level comments. Replies always stay in
// chronological order regardless of the requested sort.
func SortCommentTree(roots []*models.CommentNode, sortOrder string) {
	switch sortOrder {
	case models.SortMostReplies:
		sort.SliceStable(roots, func(i, j int) bool {
			if roots[i].DescendantCount != roots[j].DescendantCount {
				return roots[i].DescendantCount > roots[j].DescendantCount
			}
			return roots[i].CreatedAt.After(roots[j].CreatedAt)
		})
	case models.SortOldest:
		sort.SliceStable(roots, func(i, j int) bool {
			return roots[i].CreatedAt.Before(roots[j].CreatedAt)
		})
	default:
		sort.SliceStable(roots, func(i, j int) bool {
			return roots[i].CreatedAt.After(roots[j].CreatedAt)
		})
	}
}

func commentCacheKey(documentID int64, sortOrder string) string {
	return fmt.Sprintf("comments:%d:%s", documentID, sortOrder)
}

func (s *CommentService) cachedTree(ctx context.Context, key string) []*models.CommentNode {
	if s.rdb == nil {
		return nil
	}
	ctx, cancel := utils.WithShortTimeout(ctx)
	defer cancel()
	raw, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return nil
	}
	var tree []*models.CommentNode
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil
	}
	if tree == nil {
		tree = []*models.CommentNode{}
	}
	return tree
}

func (s *CommentService) cacheTree(ctx context.Context, key string, tree []*models.CommentNode) {
	if s.rdb == nil {
		return
	}
	raw, err := json.Marshal(tree)
	if err != nil {
		return
	}
	ctx, cancel := utils.WithShortTimeout(ctx)
	defer cancel()
	if err := s.rdb.Set(ctx, key, raw, s.cacheTTL).Err(); err != nil {
		logger.Logger.Warn("comment cache write failed", "key", key, "error", err)
	}
}

func (s *CommentService) invalidateCache(ctx context.Context, documentID int64) {
	if s.rdb == nil {
		return
	}
	keys := []string{
		commentCacheKey(documentID, models.SortMostReplies),
		commentCacheKey(documentID, models.SortNewest),
		commentCacheKey(documentID, models.SortOldest),
	}
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		logger.Logger.Warn("comment cache invalidation failed", "document_id", documentID, "error", err)
	}
}
