package openai

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloo-solutions/counsel/internal/domain"
	openai "github.com/sashabaranov/go-openai"
)

// toChatMessages maps turns onto the chat completions wire format. Tool results
// carried by a user turn become tool-role messages placed right after the
// assistant message that requested them.
func toChatMessages(system string, turns []domain.Turn) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(turns)+1)
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}

	for _, turn := range turns {
		switch turn.Role {
		case domain.RoleAssistant:
			messages = append(messages, assistantMessage(turn))
		default:
			messages = append(messages, userMessages(turn)...)
		}
	}
	return messages
}

func assistantMessage(turn domain.Turn) openai.ChatCompletionMessage {
	msg := openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleAssistant,
		Content: turn.Text(),
	}
	for _, call := range turn.ToolCalls() {
		args := string(call.Input)
		if args == "" {
			args = "{}"
		}
		msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
			ID:   call.ID,
			Type: openai.ToolTypeFunction,
			Function: openai.FunctionCall{
				Name:      call.Name,
				Arguments: args,
			},
		})
	}
	return msg
}

func userMessages(turn domain.Turn) []openai.ChatCompletionMessage {
	var (
		out      []openai.ChatCompletionMessage
		parts    []openai.ChatMessagePart
		hasImage bool
	)

	for _, block := range turn.Blocks {
		switch b := block.(type) {
		case domain.ToolResultBlock:
			content := b.Result.Content
			if b.Result.IsError {
				content = "ERROR: " + content
			}
			out = append(out, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				ToolCallID: b.Result.CallID,
				Content:    content,
			})
		case domain.TextBlock:
			parts = append(parts, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: b.Text})
		case domain.DocumentBlock:
			parts = append(parts, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeText,
				Text: fmt.Sprintf("<document name=%q type=%q>\n%s\n</document>", b.Name, b.MediaType, b.Text),
			})
		case domain.ImageBlock:
			hasImage = true
			parts = append(parts, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL:    "data:" + b.MediaType + ";base64," + base64.StdEncoding.EncodeToString(b.Data),
					Detail: openai.ImageURLDetailAuto,
				},
			})
		case domain.ToolUseBlock, domain.ThinkingBlock:
			// only valid on assistant turns
		}
	}

	if len(parts) == 0 {
		return out
	}

	msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser}
	if hasImage {
		msg.MultiContent = parts
	} else {
		texts := make([]string, 0, len(parts))
		for _, p := range parts {
			texts = append(texts, p.Text)
		}
		msg.Content = strings.Join(texts, "\n\n")
	}
	return append(out, msg)
}

func toTools(defs []domain.ToolDefinition) []openai.Tool {
	if len(defs) == 0 {
		return nil
	}
	tools := make([]openai.Tool, 0, len(defs))
	for _, def := range defs {
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.Parameters,
			},
		})
	}
	return tools
}

func toolInput(arguments string) json.RawMessage {
	arguments = strings.TrimSpace(arguments)
	if arguments == "" || !json.Valid([]byte(arguments)) {
		return json.RawMessage("{}")
	}
	return json.RawMessage(arguments)
}
