package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/cloo-solutions/counsel/internal/api"
	"github.com/cloo-solutions/counsel/internal/api/middleware"
	"github.com/cloo-solutions/counsel/internal/domain"
	"github.com/cloo-solutions/counsel/internal/logging"
	"github.com/cloo-solutions/counsel/internal/service"
)

type ChatService interface {
	Chat(ctx context.Context, identity domain.Identity, req service.ChatRequest, emit func(domain.StreamEvent)) error
}

type ChatHandler struct {
	svc    ChatService
	logger logging.Logger
}

func NewChatHandler(svc ChatService, logger logging.Logger) *ChatHandler {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &ChatHandler{svc: svc, logger: logger}
}

type ChatRequest struct {
	ConversationID string   `json:"conversation_id"`
	ProjectID      string   `json:"project_id"`
	Message        string   `json:"message"`
	DocumentIDs    []string `json:"document_ids"`
	Anonymize      bool     `json:"anonymize"`
	Model          string   `json:"model"`
	UseKnowledge   *bool    `json:"use_knowledge"`
}

// Chat answers one message as a server-sent event stream.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())
	if identity.IsZero() {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			api.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		if errors.Is(err, io.EOF) {
			api.HandleError(w, domain.ErrMessageEmpty)
			return
		}
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	stream, err := newSSEWriter(w)
	if err != nil {
		api.Error(w, http.StatusInternalServerError, "streaming unavailable")
		return
	}

	err = h.svc.Chat(r.Context(), identity, service.ChatRequest{
		ConversationID: req.ConversationID,
		ProjectID:      req.ProjectID,
		Message:        req.Message,
		DocumentIDs:    req.DocumentIDs,
		Anonymize:      req.Anonymize,
		Model:          req.Model,
		UseKnowledge:   req.UseKnowledge,
	}, stream.Send)

	if err != nil {
		if !stream.Opened() {
			api.HandleError(w, err)
			return
		}
		h.logger.WithError(err).WithField("user_id", identity.UserID).Warn("chat failed after stream opened")
		stream.Send(domain.ErrorEvent{Message: "internal error"})
	}
	stream.Done()
}
