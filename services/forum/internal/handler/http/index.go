package http

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/EcommerceGo/pkg/httputil"
	"github.com/utafrali/EcommerceGo/pkg/validator"
	"github.com/utafrali/EcommerceGo/services/forum/internal/domain"
	"github.com/utafrali/EcommerceGo/services/forum/internal/service"
)

// IndexHandler handles HTTP requests that maintain the forum index.
type IndexHandler struct {
	service *service.IndexService
	logger  *slog.Logger
}

// NewIndexHandler creates a new index maintenance HTTP handler.
func NewIndexHandler(svc *service.IndexService, logger *slog.Logger) *IndexHandler {
	return &IndexHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Request DTOs ---

// IndexPostRequest is the JSON request body for indexing a post.
type IndexPostRequest struct {
	ID         int64      `json:"id" validate:"required,gt=0"`
	TopicID    int64      `json:"topic_id" validate:"required,gt=0"`
	ForumID    int64      `json:"forum_id" validate:"gte=0"`
	CustomerID int64      `json:"customer_id" validate:"gte=0"`
	Subject    string     `json:"subject" validate:"max=450"`
	Text       string     `json:"text"`
	CreatedAt  *time.Time `json:"created_at"`
}

func (req IndexPostRequest) post() domain.Post {
	p := domain.Post{
		ID:         req.ID,
		TopicID:    req.TopicID,
		ForumID:    req.ForumID,
		CustomerID: req.CustomerID,
		Subject:    req.Subject,
		Text:       req.Text,
	}
	if req.CreatedAt != nil {
		p.CreatedAt = req.CreatedAt.UTC()
	}
	return p
}

// --- Handlers ---

// IndexPost handles POST /api/v1/forum/index
func (h *IndexHandler) IndexPost(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req IndexPostRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	if err := h.service.IndexPost(r.Context(), req.post()); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]any{"id": req.ID, "status": "indexed"}})
}

// DeletePost handles DELETE /api/v1/forum/index/{id}. The optional topic_id
// query parameter lets the topic cache drop the affected topic.
func (h *IndexHandler) DeletePost(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	var topicID int64
	if v := r.URL.Query().Get("topic_id"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil || parsed <= 0 {
			writeParamError(w, "topic_id must be a positive integer")
			return
		}
		topicID = parsed
	}

	if err := h.service.DeletePost(r.Context(), id, topicID); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]any{"id": id, "status": "deleted"}})
}

// Reindex handles POST /api/v1/forum/reindex. The rebuild runs in the
// background; a second request while one is running is rejected.
func (h *IndexHandler) Reindex(w http.ResponseWriter, r *http.Request) {
	if err := h.service.StartReindex(r.Context()); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusAccepted, httputil.Response{Data: map[string]string{"status": "reindex started"}})
}
