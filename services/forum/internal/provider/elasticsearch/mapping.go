package elasticsearch

import (
	"strconv"
	"time"

	"github.com/utafrali/EcommerceGo/services/forum/internal/domain"
)

// DefaultIndexPrefix is prepended to the lower-cased store name to form the
// Elasticsearch index name.
const DefaultIndexPrefix = "ecommerce_"

// fieldSpell collects unstemmed subject and text terms for the term suggester.
const fieldSpell = "spell"

// postDocument is the _source of a forum post in Elasticsearch.
type postDocument struct {
	TopicID    int64     `json:"topicid"`
	PostID     int64     `json:"postid"`
	ForumID    string    `json:"forumid"`
	CustomerID string    `json:"customerid"`
	Subject    string    `json:"subject"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"createdat"`
}

func newPostDocument(p domain.Post) postDocument {
	return postDocument{
		TopicID:    p.TopicID,
		PostID:     p.ID,
		ForumID:    strconv.FormatInt(p.ForumID, 10),
		CustomerID: strconv.FormatInt(p.CustomerID, 10),
		Subject:    p.Subject,
		Text:       p.Text,
		CreatedAt:  p.CreatedAt,
	}
}

// buildIndexMapping returns the JSON mapping for a forum posts index. Subject
// and text are copied into an unstemmed field that backs spell checking.
func buildIndexMapping() string {
	return `{
  "settings": {
    "number_of_shards": 1,
    "number_of_replicas": 0,
    "analysis": {
      "analyzer": {
        "forum_text": {
          "type": "custom",
          "tokenizer": "standard",
          "filter": ["lowercase", "english_stop", "english_stemmer"]
        },
        "forum_spell": {
          "type": "custom",
          "tokenizer": "standard",
          "filter": ["lowercase"]
        }
      },
      "filter": {
        "english_stop": {
          "type": "stop",
          "stopwords": "_english_"
        },
        "english_stemmer": {
          "type": "stemmer",
          "language": "english"
        }
      }
    }
  },
  "mappings": {
    "properties": {
      "topicid":    { "type": "long" },
      "postid":     { "type": "long" },
      "forumid":    { "type": "keyword" },
      "customerid": { "type": "keyword" },
      "subject":    { "type": "text", "analyzer": "forum_text", "copy_to": "spell" },
      "text":       { "type": "text", "analyzer": "forum_text", "copy_to": "spell" },
      "spell":      { "type": "text", "analyzer": "forum_spell" },
      "createdat":  { "type": "date" }
    }
  }
}`
}
