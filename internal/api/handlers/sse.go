package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/cloo-solutions/counsel/internal/domain"
)

var errStreamingUnsupported = errors.New("response writer does not support streaming")

// sseWriter frames stream events as `data: {...}` lines. The response headers
// are committed on the first event, so errors raised before it can still be
// answered with a JSON status.
type sseWriter struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	opened  bool
	broken  bool
	headers map[string]string
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errStreamingUnsupported
	}
	return &sseWriter{w: w, flusher: flusher, headers: map[string]string{}}, nil
}

func (s *sseWriter) Opened() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened
}

func (s *sseWriter) open() {
	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	for k, v := range s.headers {
		h.Set(k, v)
	}
	s.w.WriteHeader(http.StatusOK)
	s.opened = true
}

// Send writes one event. Write failures mean the caller went away; later
// events are dropped silently.
func (s *sseWriter) Send(ev domain.StreamEvent) {
	if ev.EventType() == domain.EventFinalMessage {
		return
	}
	data, err := encodeEvent(ev)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.broken {
		return
	}
	if !s.opened {
		if start, ok := ev.(domain.StartEvent); ok {
			s.headers["X-Conversation-ID"] = start.ConversationID
		}
		s.open()
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		s.broken = true
		return
	}
	s.flusher.Flush()
}

// Done terminates the stream.
func (s *sseWriter) Done() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.opened || s.broken {
		return
	}
	if _, err := fmt.Fprint(s.w, "data: [DONE]\n\n"); err != nil {
		s.broken = true
		return
	}
	s.flusher.Flush()
}

// encodeEvent renders an event as a JSON object with its "type" first.
func encodeEvent(ev domain.StreamEvent) ([]byte, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	typ, err := json.Marshal(ev.EventType())
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(body)+len(typ)+10)
	out = append(out, `{"type":`...)
	out = append(out, typ...)
	if len(body) > 2 {
		out = append(out, ',')
		out = append(out, body[1:]...)
	} else {
		out = append(out, '}')
	}
	return out, nil
}
