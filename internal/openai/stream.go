package openai

import (
	"errors"
	"io"
	"sort"
	"strings"

	"github.com/cloo-solutions/counsel/internal/domain"
	openai "github.com/sashabaranov/go-openai"
)

// recvStream is the part of *openai.ChatCompletionStream the adapter needs.
type recvStream interface {
	Recv() (openai.ChatCompletionStreamResponse, error)
	Close() error
}

// chatStream turns provider chunks into domain stream events. Tool call
// fragments are merged by their index and surface only in the final message.
type chatStream struct {
	stream recvStream
	model  string

	pending  []domain.StreamEvent
	text     strings.Builder
	thinking strings.Builder
	calls    map[int]*openai.ToolCall
	finish   openai.FinishReason
	usage    domain.Usage
	done     bool
}

func newChatStream(stream recvStream, model string) *chatStream {
	return &chatStream{
		stream: stream,
		model:  model,
		calls:  make(map[int]*openai.ToolCall),
	}
}

func (s *chatStream) Next() (domain.StreamEvent, error) {
	for {
		if len(s.pending) > 0 {
			ev := s.pending[0]
			s.pending = s.pending[1:]
			return ev, nil
		}
		if s.done {
			return nil, io.EOF
		}

		resp, err := s.stream.Recv()
		if errors.Is(err, io.EOF) {
			s.done = true
			return domain.FinalMessageEvent{Message: s.finalMessage()}, nil
		}
		if err != nil {
			return nil, classifyError(err)
		}
		s.consume(resp)
	}
}

func (s *chatStream) consume(resp openai.ChatCompletionStreamResponse) {
	if resp.Model != "" {
		s.model = resp.Model
	}
	if resp.Usage != nil {
		s.usage = domain.Usage{InputTokens: resp.Usage.PromptTokens, OutputTokens: resp.Usage.CompletionTokens}
	}

	for _, choice := range resp.Choices {
		delta := choice.Delta
		if delta.ReasoningContent != "" {
			if s.thinking.Len() == 0 {
				s.pending = append(s.pending, domain.ThinkingStartEvent{})
			}
			s.thinking.WriteString(delta.ReasoningContent)
			s.pending = append(s.pending, domain.ThinkingEvent{Text: delta.ReasoningContent})
		}
		if delta.Content != "" {
			s.text.WriteString(delta.Content)
			s.pending = append(s.pending, domain.DeltaEvent{Text: delta.Content})
		}
		for i, tc := range delta.ToolCalls {
			idx := i
			if tc.Index != nil {
				idx = *tc.Index
			}
			s.mergeToolCall(idx, tc)
		}
		if choice.FinishReason != "" {
			s.finish = choice.FinishReason
		}
	}
}

func (s *chatStream) mergeToolCall(idx int, fragment openai.ToolCall) {
	call, ok := s.calls[idx]
	if !ok {
		call = &openai.ToolCall{Type: openai.ToolTypeFunction}
		s.calls[idx] = call
	}
	if fragment.ID != "" {
		call.ID = fragment.ID
	}
	if fragment.Function.Name != "" {
		call.Function.Name = fragment.Function.Name
	}
	call.Function.Arguments += fragment.Function.Arguments
}

func (s *chatStream) finalMessage() domain.AssistantMessage {
	var blocks []domain.ContentBlock
	if s.thinking.Len() > 0 {
		blocks = append(blocks, domain.ThinkingBlock{Text: s.thinking.String()})
	}
	if s.text.Len() > 0 {
		blocks = append(blocks, domain.TextBlock{Text: s.text.String()})
	}

	indexes := make([]int, 0, len(s.calls))
	for idx := range s.calls {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)
	for _, idx := range indexes {
		call := s.calls[idx]
		if call.Function.Name == "" {
			continue
		}
		blocks = append(blocks, domain.ToolUseBlock{Call: domain.ToolCall{
			ID:    call.ID,
			Name:  call.Function.Name,
			Input: toolInput(call.Function.Arguments),
		}})
	}

	msg := domain.AssistantMessage{Model: s.model, Blocks: blocks, Usage: s.usage}
	msg.StopReason = s.stopReason(len(msg.Turn().ToolCalls()) > 0)
	return msg
}

func (s *chatStream) stopReason(hasToolCalls bool) domain.StopReason {
	switch s.finish {
	case openai.FinishReasonLength:
		return domain.StopMaxTokens
	case openai.FinishReasonContentFilter:
		return domain.StopRefusal
	}
	if hasToolCalls {
		return domain.StopToolUse
	}
	return domain.StopEndTurn
}

func (s *chatStream) Close() error {
	return s.stream.Close()
}
