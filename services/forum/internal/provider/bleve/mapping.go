package bleve

import (
	"strconv"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/utafrali/EcommerceGo/services/forum/internal/domain"
)

// fieldSpell holds unstemmed subject and text terms for spell checking.
const fieldSpell = "spell"

// postDocument is the shape of a forum post in the bleve index.
type postDocument struct {
	Subject    string    `json:"subject"`
	Text       string    `json:"text"`
	Spell      string    `json:"spell"`
	ForumID    string    `json:"forumid"`
	CustomerID string    `json:"customerid"`
	TopicID    float64   `json:"topicid"`
	PostID     float64   `json:"postid"`
	CreatedAt  time.Time `json:"createdat"`
}

func newPostDocument(p domain.Post) postDocument {
	return postDocument{
		Subject:    p.Subject,
		Text:       p.Text,
		Spell:      p.Subject + " " + p.Text,
		ForumID:    strconv.FormatInt(p.ForumID, 10),
		CustomerID: strconv.FormatInt(p.CustomerID, 10),
		TopicID:    float64(p.TopicID),
		PostID:     float64(p.ID),
		CreatedAt:  p.CreatedAt,
	}
}

func docID(postID int64) string {
	return strconv.FormatInt(postID, 10)
}

// buildIndexMapping returns the mapping for forum post documents: english
// analysis on subject and text, keyword ids for filters and facets, stored
// numeric topic and post ids for hit grouping.
func buildIndexMapping() mapping.IndexMapping {
	subject := bleve.NewTextFieldMapping()
	subject.Analyzer = en.AnalyzerName

	text := bleve.NewTextFieldMapping()
	text.Analyzer = en.AnalyzerName
	text.Store = false

	spell := bleve.NewTextFieldMapping()
	spell.Analyzer = standard.Name
	spell.Store = false
	spell.IncludeInAll = false

	forumID := bleve.NewKeywordFieldMapping()
	forumID.IncludeInAll = false
	customerID := bleve.NewKeywordFieldMapping()
	customerID.IncludeInAll = false

	topicID := bleve.NewNumericFieldMapping()
	topicID.IncludeInAll = false
	postID := bleve.NewNumericFieldMapping()
	postID.IncludeInAll = false

	createdAt := bleve.NewDateTimeFieldMapping()
	createdAt.IncludeInAll = false

	post := bleve.NewDocumentMapping()
	post.AddFieldMappingsAt(domain.FieldSubject, subject)
	post.AddFieldMappingsAt(domain.FieldText, text)
	post.AddFieldMappingsAt(fieldSpell, spell)
	post.AddFieldMappingsAt(domain.FieldForumID, forumID)
	post.AddFieldMappingsAt(domain.FieldCustomerID, customerID)
	post.AddFieldMappingsAt(domain.FieldTopicID, topicID)
	post.AddFieldMappingsAt(domain.FieldPostID, postID)
	post.AddFieldMappingsAt(domain.FieldCreatedAt, createdAt)

	m := bleve.NewIndexMapping()
	m.DefaultMapping = post
	m.DefaultAnalyzer = en.AnalyzerName
	return m
}
