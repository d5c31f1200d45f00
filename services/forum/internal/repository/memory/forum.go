// Package memory provides an in-memory forum repository for development and
// tests. Every read returns copies, so callers never share state with the
// store.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/utafrali/EcommerceGo/services/forum/internal/domain"
	"github.com/utafrali/EcommerceGo/services/forum/internal/repository"
)

// ForumRepository is an in-memory implementation of
// repository.ForumRepository. Thread-safe via sync.RWMutex.
type ForumRepository struct {
	mu        sync.RWMutex
	topics    map[int64]domain.Topic
	posts     map[int64]domain.Post
	customers map[int64]string
	forums    map[int64]string
}

var _ repository.ForumRepository = (*ForumRepository)(nil)

// NewForumRepository creates an empty in-memory forum repository.
func NewForumRepository() *ForumRepository {
	return &ForumRepository{
		topics:    make(map[int64]domain.Topic),
		posts:     make(map[int64]domain.Post),
		customers: make(map[int64]string),
		forums:    make(map[int64]string),
	}
}

// SaveTopic adds or replaces a topic.
func (r *ForumRepository) SaveTopic(t domain.Topic) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics[t.ID] = t
}

// SavePost adds or replaces a post.
func (r *ForumRepository) SavePost(p domain.Post) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.posts[p.ID] = p
}

// DeletePost removes a post.
func (r *ForumRepository) DeletePost(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.posts, id)
}

// SaveCustomer sets a customer's display name.
func (r *ForumRepository) SaveCustomer(id int64, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.customers[id] = name
}

// SaveForum sets a forum's name.
func (r *ForumRepository) SaveForum(id int64, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forums[id] = name
}

// GetTopicsByIDs implements repository.ForumRepository.
func (r *ForumRepository) GetTopicsByIDs(_ context.Context, ids []int64) ([]*domain.Topic, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	topics := make([]*domain.Topic, 0, len(ids))
	for _, id := range ids {
		if t, ok := r.topics[id]; ok {
			topics = append(topics, &t)
		}
	}
	return topics, nil
}

// SearchPosts implements repository.ForumRepository.
func (r *ForumRepository) SearchPosts(_ context.Context, filter repository.PostFilter) ([]domain.Post, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := r.scan(filter)
	total := len(matched)

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := min(max(filter.Offset, 0), total)
	end := min(offset+limit, total)

	page := make([]domain.Post, end-offset)
	copy(page, matched[offset:end])
	if len(page) == 0 {
		total = 0
	}
	return page, total, nil
}

// CountPosts implements repository.ForumRepository.
func (r *ForumRepository) CountPosts(_ context.Context, filter repository.PostFilter) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.scan(filter)), nil
}

// FacetCounts implements repository.ForumRepository.
func (r *ForumRepository) FacetCounts(_ context.Context, filter repository.PostFilter, field string, limit int) ([]*domain.Facet, error) {
	var key func(domain.Post) int64
	switch field {
	case domain.FacetGroupCustomer:
		key = func(p domain.Post) int64 { return p.CustomerID }
	case domain.FacetGroupForum:
		key = func(p domain.Post) int64 { return p.ForumID }
	default:
		return nil, fmt.Errorf("facet counts: unsupported field %q", field)
	}
	if limit <= 0 {
		limit = 10
	}

	r.mu.RLock()
	matched := r.scan(filter)
	r.mu.RUnlock()

	counts := make(map[int64]int)
	for _, p := range matched {
		counts[key(p)]++
	}
	ids := make([]int64, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if counts[ids[i]] != counts[ids[j]] {
			return counts[ids[i]] > counts[ids[j]]
		}
		return ids[i] < ids[j]
	})
	if len(ids) > limit {
		ids = ids[:limit]
	}

	facets := make([]*domain.Facet, 0, len(ids))
	for _, id := range ids {
		facets = append(facets, &domain.Facet{Value: strconv.FormatInt(id, 10), Count: counts[id]})
	}
	return facets, nil
}

// CustomerNames implements repository.ForumRepository.
func (r *ForumRepository) CustomerNames(_ context.Context, ids []int64) (map[int64]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return pick(r.customers, ids), nil
}

// ForumNames implements repository.ForumRepository.
func (r *ForumRepository) ForumNames(_ context.Context, ids []int64) (map[int64]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return pick(r.forums, ids), nil
}

// ListPosts implements repository.ForumRepository.
func (r *ForumRepository) ListPosts(_ context.Context, afterID int64, limit int) ([]domain.Post, error) {
	if limit <= 0 {
		limit = 500
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	posts := make([]domain.Post, 0)
	for _, p := range r.posts {
		if p.ID > afterID {
			posts = append(posts, p)
		}
	}
	sort.Slice(posts, func(i, j int) bool { return posts[i].ID < posts[j].ID })
	if len(posts) > limit {
		posts = posts[:limit]
	}
	return posts, nil
}

// scan returns matching posts ordered by id. Callers hold at least a read
// lock.
func (r *ForumRepository) scan(filter repository.PostFilter) []domain.Post {
	termLower := strings.ToLower(strings.TrimSpace(filter.Term))

	matched := make([]domain.Post, 0)
	for _, p := range r.posts {
		if matches(p, filter, termLower) {
			matched = append(matched, p)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	return matched
}

// matches checks whether a post matches the given filter.
func matches(p domain.Post, filter repository.PostFilter, termLower string) bool {
	if termLower != "" {
		subject := strings.Contains(strings.ToLower(p.Subject), termLower)
		text := strings.Contains(strings.ToLower(p.Text), termLower)
		switch filter.SearchIn {
		case domain.SearchInSubject:
			if !subject {
				return false
			}
		case domain.SearchInText:
			if !text {
				return false
			}
		default:
			if !subject && !text {
				return false
			}
		}
	}

	if len(filter.ForumIDs) > 0 {
		found := false
		for _, id := range filter.ForumIDs {
			if p.ForumID == id {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if filter.CustomerID != nil && p.CustomerID != *filter.CustomerID {
		return false
	}
	if filter.TopicID != nil && p.TopicID != *filter.TopicID {
		return false
	}
	if filter.From != nil && p.CreatedAt.Before(*filter.From) {
		return false
	}
	if filter.To != nil && p.CreatedAt.After(*filter.To) {
		return false
	}

	return true
}

func pick(names map[int64]string, ids []int64) map[int64]string {
	out := make(map[int64]string, len(ids))
	for _, id := range ids {
		if n, ok := names[id]; ok {
			out[id] = n
		}
	}
	return out
}
