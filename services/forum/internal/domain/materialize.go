package domain

import (
	"context"
	"fmt"
	"slices"
)

// TopicFetcher loads full topic entities by id.
type TopicFetcher interface {
	GetTopicsByIDs(ctx context.Context, ids []int64) ([]*Topic, error)
}

// MatchedPosts groups matched post ids by their parent topic id, keeping the
// order in which topics were first seen.
type MatchedPosts struct {
	order []int64
	posts map[int64][]int64
}

// NewMatchedPosts returns an empty grouping.
func NewMatchedPosts() *MatchedPosts {
	return &MatchedPosts{posts: make(map[int64][]int64)}
}

// Add records that postID matched within topicID.
func (m *MatchedPosts) Add(topicID, postID int64) {
	if _, seen := m.posts[topicID]; !seen {
		m.order = append(m.order, topicID)
	}
	m.posts[topicID] = append(m.posts[topicID], postID)
}

// TopicIDs returns the distinct topic ids in first-seen order.
func (m *MatchedPosts) TopicIDs() []int64 {
	return slices.Clone(m.order)
}

// PostIDs returns every matched post id recorded for the topic.
func (m *MatchedPosts) PostIDs(topicID int64) []int64 {
	return slices.Clone(m.posts[topicID])
}

// FirstPostID returns the lowest matched post id for the topic.
func (m *MatchedPosts) FirstPostID(topicID int64) (int64, bool) {
	ids := m.posts[topicID]
	if len(ids) == 0 {
		return 0, false
	}
	return slices.Min(ids), true
}

// Len returns the number of distinct topics.
func (m *MatchedPosts) Len() int { return len(m.order) }

// MatchedPostsFromHits groups engine hits by topic id.
func MatchedPostsFromHits(hits []SearchHit) *MatchedPosts {
	m := NewMatchedPosts()
	for _, h := range hits {
		topicID, ok := h.Int64(FieldTopicID)
		if !ok {
			continue
		}
		postID, ok := h.Int64(FieldPostID)
		if !ok {
			continue
		}
		m.Add(topicID, postID)
	}
	return m
}

// MatchedPostsFromPosts groups directly loaded posts by topic id.
func MatchedPostsFromPosts(posts []Post) *MatchedPosts {
	m := NewMatchedPosts()
	for _, p := range posts {
		m.Add(p.TopicID, p.ID)
	}
	return m
}

// NewTopicLoader returns a deferred loader that fetches the grouped topics and
// stamps each with its first matched post id. Nothing is fetched until the
// loader is invoked.
func NewTopicLoader(fetcher TopicFetcher, matches *MatchedPosts) TopicLoader {
	ids := matches.TopicIDs()
	return func(ctx context.Context) ([]*Topic, error) {
		if len(ids) == 0 {
			return []*Topic{}, nil
		}
		topics, err := fetcher.GetTopicsByIDs(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("load matched topics: %w", err)
		}
		for _, t := range topics {
			if t == nil {
				continue
			}
			if first, ok := matches.FirstPostID(t.ID); ok {
				t.FirstMatchedPostID = first
			}
		}
		return topics, nil
	}
}
