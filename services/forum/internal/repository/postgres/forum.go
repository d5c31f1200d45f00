package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/utafrali/EcommerceGo/pkg/database"
	"github.com/utafrali/EcommerceGo/services/forum/internal/domain"
	"github.com/utafrali/EcommerceGo/services/forum/internal/repository"
)

const (
	topicColumns = "id, forum_id, customer_id, subject, num_posts, created_at, updated_at"
	postColumns  = "id, topic_id, forum_id, customer_id, subject, text, created_at"
)

// facetColumns whitelists the columns posts may be grouped by.
var facetColumns = map[string]string{
	domain.FacetGroupCustomer: "customer_id",
	domain.FacetGroupForum:    "forum_id",
}

// ForumRepository implements repository.ForumRepository using PostgreSQL.
type ForumRepository struct {
	pool database.DBTX
}

var _ repository.ForumRepository = (*ForumRepository)(nil)

// NewForumRepository creates a new PostgreSQL-backed forum repository.
func NewForumRepository(pool database.DBTX) *ForumRepository {
	return &ForumRepository{pool: pool}
}

// GetTopicsByIDs retrieves topics by id, preserving the order of ids.
func (r *ForumRepository) GetTopicsByIDs(ctx context.Context, ids []int64) (_ []*domain.Topic, err error) {
	if len(ids) == 0 {
		return []*domain.Topic{}, nil
	}

	query := `SELECT ` + topicColumns + ` FROM forum_topics WHERE id = ANY($1)`
	ctx, end := database.TraceQuery(ctx, "GetTopicsByIDs", query)
	defer func() { end(err) }()

	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("get topics: %w", err)
	}
	defer rows.Close()

	byID := make(map[int64]*domain.Topic, len(ids))
	for rows.Next() {
		var t domain.Topic
		if err := rows.Scan(
			&t.ID,
			&t.ForumID,
			&t.CustomerID,
			&t.Subject,
			&t.NumPosts,
			&t.CreatedAt,
			&t.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan topic row: %w", err)
		}
		byID[t.ID] = &t
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate topic rows: %w", err)
	}

	topics := make([]*domain.Topic, 0, len(byID))
	for _, id := range ids {
		if t, ok := byID[id]; ok {
			topics = append(topics, t)
		}
	}
	return topics, nil
}

// SearchPosts returns a page of posts matching the filter with the total
// count. The total is zero when the page lies past the last match.
func (r *ForumRepository) SearchPosts(ctx context.Context, filter repository.PostFilter) (_ []domain.Post, _ int, err error) {
	where, args := whereClause(filter)
	argIndex := len(args) + 1

	// Use count(*) OVER() for total count in a single query.
	query := fmt.Sprintf(`
		SELECT %s,
			   count(*) OVER() AS total_count
		FROM forum_posts
		%s
		ORDER BY id
		LIMIT $%d OFFSET $%d`,
		postColumns, where, argIndex, argIndex+1,
	)

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	args = append(args, limit, max(filter.Offset, 0))

	ctx, end := database.TraceQuery(ctx, "SearchPosts", query)
	defer func() { end(err) }()

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("search posts: %w", err)
	}
	defer rows.Close()

	var (
		posts      = []domain.Post{}
		totalCount int
	)
	for rows.Next() {
		var p domain.Post
		if err := rows.Scan(
			&p.ID,
			&p.TopicID,
			&p.ForumID,
			&p.CustomerID,
			&p.Subject,
			&p.Text,
			&p.CreatedAt,
			&totalCount,
		); err != nil {
			return nil, 0, fmt.Errorf("scan post row: %w", err)
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate post rows: %w", err)
	}

	return posts, totalCount, nil
}

// CountPosts returns the number of posts matching the filter.
func (r *ForumRepository) CountPosts(ctx context.Context, filter repository.PostFilter) (_ int, err error) {
	where, args := whereClause(filter)
	query := "SELECT count(*) FROM forum_posts " + where

	ctx, end := database.TraceQuery(ctx, "CountPosts", query)
	defer func() { end(err) }()

	var total int
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count posts: %w", err)
	}
	return total, nil
}

// FacetCounts groups matching posts by customer or forum.
func (r *ForumRepository) FacetCounts(ctx context.Context, filter repository.PostFilter, field string, limit int) (_ []*domain.Facet, err error) {
	column, ok := facetColumns[field]
	if !ok {
		return nil, fmt.Errorf("facet counts: unsupported field %q", field)
	}
	if limit <= 0 {
		limit = 10
	}

	where, args := whereClause(filter)
	query := fmt.Sprintf(`
		SELECT %[1]s, count(*) AS cnt
		FROM forum_posts
		%[2]s
		GROUP BY %[1]s
		ORDER BY cnt DESC, %[1]s
		LIMIT $%[3]d`,
		column, where, len(args)+1,
	)
	args = append(args, limit)

	ctx, end := database.TraceQuery(ctx, "FacetCounts", query)
	defer func() { end(err) }()

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("facet counts: %w", err)
	}
	defer rows.Close()

	facets := []*domain.Facet{}
	for rows.Next() {
		var (
			id    int64
			count int
		)
		if err := rows.Scan(&id, &count); err != nil {
			return nil, fmt.Errorf("scan facet row: %w", err)
		}
		facets = append(facets, &domain.Facet{Value: strconv.FormatInt(id, 10), Count: count})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate facet rows: %w", err)
	}
	return facets, nil
}

// CustomerNames returns customer display names keyed by id.
func (r *ForumRepository) CustomerNames(ctx context.Context, ids []int64) (map[int64]string, error) {
	return r.names(ctx, "CustomerNames", `SELECT id, display_name FROM forum_customers WHERE id = ANY($1)`, ids)
}

// ForumNames returns forum names keyed by id.
func (r *ForumRepository) ForumNames(ctx context.Context, ids []int64) (map[int64]string, error) {
	return r.names(ctx, "ForumNames", `SELECT id, name FROM forums WHERE id = ANY($1)`, ids)
}

func (r *ForumRepository) names(ctx context.Context, op, query string, ids []int64) (_ map[int64]string, err error) {
	if len(ids) == 0 {
		return map[int64]string{}, nil
	}

	ctx, end := database.TraceQuery(ctx, op, query)
	defer func() { end(err) }()

	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", strings.ToLower(op), err)
	}
	defer rows.Close()

	out := make(map[int64]string, len(ids))
	for rows.Next() {
		var (
			id   int64
			name string
		)
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("scan %s row: %w", strings.ToLower(op), err)
		}
		out[id] = name
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s rows: %w", strings.ToLower(op), err)
	}
	return out, nil
}

// ListPosts returns posts after afterID in id order.
func (r *ForumRepository) ListPosts(ctx context.Context, afterID int64, limit int) (_ []domain.Post, err error) {
	if limit <= 0 {
		limit = 500
	}
	query := `SELECT ` + postColumns + ` FROM forum_posts WHERE id > $1 ORDER BY id LIMIT $2`

	ctx, end := database.TraceQuery(ctx, "ListPosts", query)
	defer func() { end(err) }()

	rows, err := r.pool.Query(ctx, query, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	posts := []domain.Post{}
	for rows.Next() {
		var p domain.Post
		if err := rows.Scan(
			&p.ID,
			&p.TopicID,
			&p.ForumID,
			&p.CustomerID,
			&p.Subject,
			&p.Text,
			&p.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan post row: %w", err)
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate post rows: %w", err)
	}
	return posts, nil
}

// whereClause builds the WHERE clause and its positional arguments.
func whereClause(filter repository.PostFilter) (string, []any) {
	var (
		conditions []string
		args       []any
		argIndex   = 1
	)

	if term := strings.TrimSpace(filter.Term); term != "" {
		switch filter.SearchIn {
		case domain.SearchInSubject:
			conditions = append(conditions, fmt.Sprintf("subject ILIKE $%d", argIndex))
		case domain.SearchInText:
			conditions = append(conditions, fmt.Sprintf("text ILIKE $%d", argIndex))
		default:
			conditions = append(conditions, fmt.Sprintf("(subject ILIKE $%d OR text ILIKE $%d)", argIndex, argIndex))
		}
		args = append(args, "%"+escapeLike(term)+"%")
		argIndex++
	}

	if len(filter.ForumIDs) > 0 {
		conditions = append(conditions, fmt.Sprintf("forum_id = ANY($%d)", argIndex))
		args = append(args, filter.ForumIDs)
		argIndex++
	}

	if filter.CustomerID != nil {
		conditions = append(conditions, fmt.Sprintf("customer_id = $%d", argIndex))
		args = append(args, *filter.CustomerID)
		argIndex++
	}

	if filter.TopicID != nil {
		conditions = append(conditions, fmt.Sprintf("topic_id = $%d", argIndex))
		args = append(args, *filter.TopicID)
		argIndex++
	}

	if filter.From != nil {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argIndex))
		args = append(args, *filter.From)
		argIndex++
	}

	if filter.To != nil {
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", argIndex))
		args = append(args, *filter.To)
	}

	if len(conditions) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
