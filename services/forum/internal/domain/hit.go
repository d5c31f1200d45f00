package domain

import (
	"encoding/json"
	"strconv"
)

// Indexed field names shared by every index provider.
const (
	FieldTopicID    = "topicid"
	FieldPostID     = "postid"
	FieldForumID    = "forumid"
	FieldCustomerID = "customerid"
	FieldSubject    = "subject"
	FieldText       = "text"
	FieldCreatedAt  = "createdat"
)

// SearchHit is one raw match returned by an index engine.
type SearchHit struct {
	ID     string         `json:"id"`
	Score  float64        `json:"score"`
	Fields map[string]any `json:"fields"`
}

// Int64 returns the named field as an int64. Engines hand numeric fields back
// as float64, json.Number or strings depending on the backend.
func (h SearchHit) Int64(name string) (int64, bool) {
	v, ok := h.Fields[name]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	}
	return 0, false
}

// String returns the named field as a string.
func (h SearchHit) String(name string) (string, bool) {
	v, ok := h.Fields[name]
	if !ok {
		return "", false
	}
	switch s := v.(type) {
	case string:
		return s, true
	case json.Number:
		return s.String(), true
	case float64:
		return strconv.FormatInt(int64(s), 10), true
	case int64:
		return strconv.FormatInt(s, 10), true
	}
	return "", false
}

// TopicID returns the hit's parent topic id, or 0 if the field is missing.
func (h SearchHit) TopicID() int64 {
	id, _ := h.Int64(FieldTopicID)
	return id
}

// PostID returns the hit's post id, or 0 if the field is missing.
func (h SearchHit) PostID() int64 {
	id, _ := h.Int64(FieldPostID)
	return id
}
