package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"document-archive-platform/models"
)

func commentFixture(id int64, parentID *int64, createdAt time.Time) *models.Comment {
	return &models.Comment{
		ID:              id,
		DocumentID:      1,
		ParentCommentID: parentID,
		CommentText:     "comment",
		Status:          models.CommentStatusApproved,
		CreatedAt:       createdAt,
	}
}

func ptrID(id int64) *int64 { return &id }

func TestBuildCommentTree(t *testing.T) {
	base := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	comments := []*models.Comment{
		commentFixture(1, nil, base),
		commentFixture(2, ptrID(1), base.Add(time.Minute)),
		commentFixture(3, ptrID(1), base.Add(2*time.Minute)),
		commentFixture(4, ptrID(2), base.Add(3*time.Minute)),
		commentFixture(5, nil, base.Add(4*time.Minute)),
	}

	roots := BuildCommentTree(comments)
	require.Len(t, roots, 2)

	first := roots[0]
	assert.Equal(t, int64(1), first.ID)
	assert.Equal(t, 3, first.DescendantCount, "descendants count transitively")
	require.Len(t, first.Replies, 2)
	assert.Equal(t, int64(2), first.Replies[0].ID)
	assert.Equal(t, 1, first.Replies[0].DescendantCount)
	require.Len(t, first.Replies[0].Replies, 1)
	assert.Equal(t, int64(4), first.Replies[0].Replies[0].ID)

	second := roots[1]
	assert.Equal(t, int64(5), second.ID)
	assert.Equal(t, 0, second.DescendantCount)
	assert.Empty(t, second.Replies)
}

func TestBuildCommentTreeDropsOrphans(t *testing.T) {
	base := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	comments := []*models.Comment{
		commentFixture(1, nil, base),
		// Parent 99 was removed by moderation, 2 and its child vanish.
		commentFixture(2, ptrID(99), base.Add(time.Minute)),
		commentFixture(3, ptrID(2), base.Add(2*time.Minute)),
	}

	roots := BuildCommentTree(comments)
	require.Len(t, roots, 1)
	assert.Equal(t, int64(1), roots[0].ID)
	assert.Empty(t, roots[0].Replies)
}

func TestBuildCommentTreeEmpty(t *testing.T) {
	assert.Empty(t, BuildCommentTree(nil))
}

func buildSortFixture(t *testing.T) []*models.CommentNode {
	t.Helper()
	base := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	comments := []*models.Comment{
		commentFixture(1, nil, base),                    // oldest, 2 descendants
		commentFixture(2, nil, base.Add(time.Hour)),     // middle, 0 descendants
		commentFixture(3, nil, base.Add(2*time.Hour)),   // newest, 1 descendant
		commentFixture(4, ptrID(1), base.Add(time.Minute)),
		commentFixture(5, ptrID(4), base.Add(2*time.Minute)),
		commentFixture(6, ptrID(3), base.Add(3*time.Hour)),
	}
	return BuildCommentTree(comments)
}

func TestSortCommentTreeMostReplies(t *testing.T) {
	roots := buildSortFixture(t)
	SortCommentTree(roots, models.SortMostReplies)

	require.Len(t, roots, 3)
	assert.Equal(t, int64(1), roots[0].ID)
	assert.Equal(t, int64(3), roots[1].ID)
	assert.Equal(t, int64(2), roots[2].ID)
}

func TestSortCommentTreeNewestAndOldest(t *testing.T) {
	roots := buildSortFixture(t)
	SortCommentTree(roots, models.SortNewest)
	assert.Equal(t, int64(3), roots[0].ID)
	assert.Equal(t, int64(1), roots[2].ID)

	SortCommentTree(roots, models.SortOldest)
	assert.Equal(t, int64(1), roots[0].ID)
	assert.Equal(t, int64(3), roots[2].ID)

	// Unknown sort orders fall back to newest first.
	SortCommentTree(roots, "whatever")
	assert.Equal(t, int64(3), roots[0].ID)
}

func TestSortCommentTreeKeepsRepliesChronological(t *testing.T) {
	roots := buildSortFixture(t)
	SortCommentTree(roots, models.SortMostReplies)

	for _, root := range roots {
		for i := 1; i < len(root.Replies); i++ {
			assert.False(t, root.Replies[i].CreatedAt.Before(root.Replies[i-1].CreatedAt),
				"replies stay in posting order")
		}
	}
}
