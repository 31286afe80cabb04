package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cloo-solutions/counsel/internal/api"
	"github.com/cloo-solutions/counsel/internal/api/middleware"
	"github.com/cloo-solutions/counsel/internal/domain"
	"github.com/cloo-solutions/counsel/internal/pagination"
	"github.com/cloo-solutions/counsel/internal/service"
)

type ConversationService interface {
	List(ctx context.Context, identity domain.Identity, cursor string, limit int) (*pagination.PageResult[*domain.Conversation], error)
	Get(ctx context.Context, identity domain.Identity, id string) (*service.ConversationDetail, error)
}

type ConversationHandler struct {
	svc ConversationService
}

func NewConversationHandler(svc ConversationService) *ConversationHandler {
	return &ConversationHandler{svc: svc}
}

type ConversationResponse struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id,omitempty"`
	OwnerID   string `json:"owner_id"`
	Title     string `json:"title"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type MessageResponse struct {
	ID                 string            `json:"id"`
	Role               string            `json:"role"`
	Content            string            `json:"content"`
	Citations          []domain.Citation `json:"citations"`
	UsedExternalSearch bool              `json:"used_external_search"`
	Model              string            `json:"model,omitempty"`
	CreatedAt          string            `json:"created_at"`
}

type ConversationListResponse struct {
	Items   []ConversationResponse `json:"items"`
	Cursor  string                 `json:"cursor,omitempty"`
	HasMore bool                   `json:"has_more"`
}

type ConversationDetailResponse struct {
	ConversationResponse
	Messages []MessageResponse `json:"messages"`
}

func conversationToResponse(c *domain.Conversation) ConversationResponse {
	return ConversationResponse{
		ID:        c.ID,
		ProjectID: c.ProjectID,
		OwnerID:   c.OwnerID,
		Title:     c.Title,
		CreatedAt: c.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: c.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())
	if identity.IsZero() {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 0 {
			api.Error(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	page, err := h.svc.List(r.Context(), identity, r.URL.Query().Get("cursor"), limit)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	items := make([]ConversationResponse, 0, len(page.Items))
	for _, c := range page.Items {
		items = append(items, conversationToResponse(c))
	}
	api.Success(w, http.StatusOK, ConversationListResponse{
		Items:   items,
		Cursor:  page.Cursor,
		HasMore: page.HasMore,
	})
}

func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())
	if identity.IsZero() {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	detail, err := h.svc.Get(r.Context(), identity, chi.URLParam(r, "id"))
	if err != nil {
		api.HandleError(w, err)
		return
	}

	messages := make([]MessageResponse, 0, len(detail.Messages))
	for _, m := range detail.Messages {
		citations := m.Citations
		if citations == nil {
			citations = []domain.Citation{}
		}
		messages = append(messages, MessageResponse{
			ID:                 m.ID,
			Role:               string(m.Role),
			Content:            m.Content,
			Citations:          citations,
			UsedExternalSearch: m.UsedExternalSearch,
			Model:              m.Model,
			CreatedAt:          m.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	api.Success(w, http.StatusOK, ConversationDetailResponse{
		ConversationResponse: conversationToResponse(detail.Conversation),
		Messages:             messages,
	})
}
