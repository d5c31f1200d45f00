package domain

import (
	"time"
)

// Topic is a forum discussion thread.
type Topic struct {
	ID         int64     `json:"id"`
	ForumID    int64     `json:"forum_id"`
	CustomerID int64     `json:"customer_id"`
	Subject    string    `json:"subject"`
	NumPosts   int       `json:"num_posts"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	// FirstMatchedPostID is the lowest post id in this topic that matched the
	// search, so renderers can deep-link to the matching post. Zero when the
	// topic was not loaded through a search.
	FirstMatchedPostID int64 `json:"first_matched_post_id,omitempty"`
}

// Post is a single message within a topic.
type Post struct {
	ID         int64     `json:"id"`
	TopicID    int64     `json:"topic_id"`
	ForumID    int64     `json:"forum_id"`
	CustomerID int64     `json:"customer_id"`
	Subject    string    `json:"subject"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"created_at"`
}
