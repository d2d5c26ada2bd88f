package models

import "time"

// Comment moderation status constants
const (
	CommentStatusPending  = "pending"
	CommentStatusApproved = "approved"
	CommentStatusRejected = "rejected"
	CommentStatusFlagged  = "flagged"
)

// FlagThreshold is the flag count at which a comment is hidden from public view.
const FlagThreshold = 3

// Comment is an anonymous, optionally threaded note on a document.
type Comment struct {
	ID              int64     `json:"id"`
	DocumentID      int64     `json:"document_id"`
	ParentCommentID *int64    `json:"parent_comment_id,omitempty"`
	CommentText     string    `json:"comment_text"`
	SessionHash     string    `json:"-"`
	Status          string    `json:"status"`
	FlagCount       int       `json:"flag_count"`
	CreatedAt       time.Time `json:"created_at"`
}

// CommentNode is a comment with its reply subtree attached.
// DescendantCount covers all transitive replies, not just direct children.
type CommentNode struct {
	Comment
	Replies         []*CommentNode `json:"replies"`
	DescendantCount int            `json:"reply_count"`
}

// Comment listing sort orders
const (
	SortMostReplies = "most_replies"
	SortNewest      = "newest"
	SortOldest      = "oldest"
)
