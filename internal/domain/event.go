package domain

// StreamEvent is one element of the response stream. The concrete types below
// are the complete set; consumers switch over them exhaustively.
type StreamEvent interface {
	EventType() string
}

const (
	EventStart         = "start"
	EventThinkingStart = "thinking_start"
	EventThinking      = "thinking"
	EventDelta         = "delta"
	EventStatus        = "status"
	EventDone          = "done"
	EventError         = "error"
	EventFinalMessage  = "final_message"
)

// StartEvent opens the stream and names the conversation.
type StartEvent struct {
	ConversationID string `json:"conversation_id"`
}

// ThinkingStartEvent marks the beginning of a reasoning trace.
type ThinkingStartEvent struct{}

// ThinkingEvent carries a fragment of the reasoning trace.
type ThinkingEvent struct {
	Text string `json:"text"`
}

// DeltaEvent carries a fragment of answer text, in generation order.
type DeltaEvent struct {
	Text string `json:"text"`
}

// StatusEvent is human-readable progress ("Searching case law...").
type StatusEvent struct {
	Message string `json:"message"`
}

// DoneEvent closes a successful stream.
type DoneEvent struct {
	MessageID          string     `json:"message_id,omitempty"`
	Citations          []Citation `json:"citations"`
	Sources            []string   `json:"sources"`
	Model              string     `json:"model"`
	UsedExternalSearch bool       `json:"used_external_search"`
	Warnings           []string   `json:"warnings,omitempty"`
}

// ErrorEvent closes a failed stream with a user-facing message.
type ErrorEvent struct {
	Message string `json:"message"`
}

// FinalMessageEvent ends one completion round. It stays between the completion
// driver and the tool loop and is never written to the caller.
type FinalMessageEvent struct {
	Message AssistantMessage `json:"-"`
}

func (StartEvent) EventType() string         { return EventStart }
func (ThinkingStartEvent) EventType() string { return EventThinkingStart }
func (ThinkingEvent) EventType() string      { return EventThinking }
func (DeltaEvent) EventType() string         { return EventDelta }
func (StatusEvent) EventType() string        { return EventStatus }
func (DoneEvent) EventType() string          { return EventDone }
func (ErrorEvent) EventType() string         { return EventError }
func (FinalMessageEvent) EventType() string  { return EventFinalMessage }
