package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/counsel/internal/domain"
	"github.com/cloo-solutions/counsel/internal/service"
)

type MockChatService struct {
	mock.Mock
}

func (m *MockChatService) Chat(ctx context.Context, identity domain.Identity, req service.ChatRequest, emit func(domain.StreamEvent)) error {
	args := m.Called(ctx, identity, req, emit)
	if fn, ok := args.Get(0).(func(func(domain.StreamEvent)) error); ok {
		return fn(emit)
	}
	return args.Error(0)
}

func postChat(t *testing.T, svc ChatService, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := withIdentity(httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body)), alice)
	w := httptest.NewRecorder()
	NewChatHandler(svc, nil).Chat(w, req)
	return w
}

func sseLines(t *testing.T, body string) []string {
	t.Helper()
	var lines []string
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		if line, ok := strings.CutPrefix(sc.Text(), "data: "); ok {
			lines = append(lines, line)
		}
	}
	return lines
}

func TestChatHandler_StreamsEvents(t *testing.T) {
	svc := new(MockChatService)
	useKnowledge := false
	want := service.ChatRequest{
		ConversationID: "c1",
		Message:        "Was gilt bei Kündigung?",
		DocumentIDs:    []string{"d1"},
		Anonymize:      true,
		UseKnowledge:   &useKnowledge,
	}
	svc.On("Chat", mock.Anything, alice, want, mock.Anything).Return(func(emit func(domain.StreamEvent)) error {
		emit(domain.StartEvent{ConversationID: "c1"})
		emit(domain.DeltaEvent{Text: "Die "})
		emit(domain.DeltaEvent{Text: "Frist"})
		emit(domain.FinalMessageEvent{})
		emit(domain.DoneEvent{MessageID: "m2", Model: "gpt-4o", Citations: []domain.Citation{}, Sources: []string{}})
		return nil
	})

	w := postChat(t, svc, `{"conversation_id":"c1","message":"Was gilt bei Kündigung?","document_ids":["d1"],"anonymize":true,"use_knowledge":false}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Equal(t, "c1", w.Header().Get("X-Conversation-ID"))

	lines := sseLines(t, w.Body.String())
	require.Len(t, lines, 5)
	assert.JSONEq(t, `{"type":"start","conversation_id":"c1"}`, lines[0])
	assert.JSONEq(t, `{"type":"delta","text":"Die "}`, lines[1])
	assert.JSONEq(t, `{"type":"delta","text":"Frist"}`, lines[2])

	var done map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[3]), &done))
	assert.Equal(t, "done", done["type"])
	assert.Equal(t, "m2", done["message_id"])
	assert.Equal(t, "[DONE]", lines[4])
	svc.AssertExpectations(t)
}

func TestChatHandler_PreStreamErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		retry  string
	}{
		{"empty message", domain.ErrMessageEmpty, http.StatusBadRequest, ""},
		{"rate limited", &service.RateLimitError{RetryAfter: 30 * time.Minute}, http.StatusTooManyRequests, "1800"},
		{"forbidden", domain.ErrForbidden, http.StatusForbidden, ""},
		{"not found", domain.ErrConversationNotFound, http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockChatService)
			svc.On("Chat", mock.Anything, alice, mock.Anything, mock.Anything).Return(tt.err)

			w := postChat(t, svc, `{"message":"x"}`)

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			assert.Equal(t, tt.retry, w.Header().Get("Retry-After"))
		})
	}
}

func TestChatHandler_ErrorEventEndsStream(t *testing.T) {
	svc := new(MockChatService)
	svc.On("Chat", mock.Anything, alice, mock.Anything, mock.Anything).Return(func(emit func(domain.StreamEvent)) error {
		emit(domain.StartEvent{ConversationID: "c1"})
		emit(domain.DeltaEvent{Text: "Teil"})
		emit(domain.ErrorEvent{Message: "Der KI-Dienst ist derzeit überlastet."})
		return nil
	})

	w := postChat(t, svc, `{"message":"Hallo"}`)

	require.Equal(t, http.StatusOK, w.Code)
	lines := sseLines(t, w.Body.String())
	require.Len(t, lines, 4)
	assert.JSONEq(t, `{"type":"error","message":"Der KI-Dienst ist derzeit überlastet."}`, lines[2])
	assert.Equal(t, "[DONE]", lines[3])
}

func TestChatHandler_InvalidBody(t *testing.T) {
	w := postChat(t, new(MockChatService), `{"message":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChatHandler_RequiresIdentity(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":"Hallo"}`))
	w := httptest.NewRecorder()
	NewChatHandler(new(MockChatService), nil).Chat(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
