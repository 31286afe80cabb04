package domain

import "strings"

// ContentBlock is one element of a turn sent to or received from the model.
// The concrete types below are the complete set; consumers switch over them exhaustively.
type ContentBlock interface {
	contentBlock()
}

// TextBlock is plain text.
type TextBlock struct {
	Text string
}

// ImageBlock is an inline image attachment.
type ImageBlock struct {
	Name      string
	MediaType string
	Data      []byte
}

// DocumentBlock is a non-image attachment. Text carries whatever was extracted at upload.
type DocumentBlock struct {
	Name      string
	MediaType string
	Data      []byte
	Text      string
}

// ToolUseBlock is a tool invocation requested by the model.
type ToolUseBlock struct {
	Call ToolCall
}

// ToolResultBlock answers a ToolUseBlock from the previous assistant turn.
type ToolResultBlock struct {
	Result ToolResult
}

// ThinkingBlock is the model's intermediate reasoning trace.
type ThinkingBlock struct {
	Text string
}

func (TextBlock) contentBlock()       {}
func (ImageBlock) contentBlock()      {}
func (DocumentBlock) contentBlock()   {}
func (ToolUseBlock) contentBlock()    {}
func (ToolResultBlock) contentBlock() {}
func (ThinkingBlock) contentBlock()   {}

// Turn is a role plus its content blocks, the unit the model consumes.
type Turn struct {
	Role   Role
	Blocks []ContentBlock
}

// TextTurn builds a turn holding a single text block.
func TextTurn(role Role, text string) Turn {
	return Turn{Role: role, Blocks: []ContentBlock{TextBlock{Text: text}}}
}

// Text concatenates the turn's text blocks.
func (t Turn) Text() string {
	var b strings.Builder
	for _, block := range t.Blocks {
		if tb, ok := block.(TextBlock); ok {
			b.WriteString(tb.Text)
		}
	}
	return b.String()
}

// ToolCalls returns the tool invocations in the turn, in order.
func (t Turn) ToolCalls() []ToolCall {
	var calls []ToolCall
	for _, block := range t.Blocks {
		if tu, ok := block.(ToolUseBlock); ok {
			calls = append(calls, tu.Call)
		}
	}
	return calls
}

// WithoutThinking returns a copy of the turn with reasoning blocks removed.
func (t Turn) WithoutThinking() Turn {
	blocks := make([]ContentBlock, 0, len(t.Blocks))
	for _, block := range t.Blocks {
		if _, ok := block.(ThinkingBlock); ok {
			continue
		}
		blocks = append(blocks, block)
	}
	return Turn{Role: t.Role, Blocks: blocks}
}

// StopReason explains why the model ended a completion.
type StopReason string

const (
	StopEndTurn   StopReason = "end_turn"
	StopToolUse   StopReason = "tool_use"
	StopMaxTokens StopReason = "max_tokens"
	StopRefusal   StopReason = "refusal"
)

// Usage is the token accounting reported by the provider.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// AssistantMessage is the finalized output of one completion round.
type AssistantMessage struct {
	Model      string
	Blocks     []ContentBlock
	StopReason StopReason
	Usage      Usage
}

// Turn converts the message into an assistant turn.
func (m AssistantMessage) Turn() Turn {
	return Turn{Role: RoleAssistant, Blocks: m.Blocks}
}
