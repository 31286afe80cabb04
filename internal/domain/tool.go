package domain

import "encoding/json"

// ToolCall is a request from the model to run a tool. Never persisted.
type ToolCall struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// ToolResult is the outcome of a ToolCall, correlated by CallID. Never persisted.
type ToolResult struct {
	CallID  string
	Content string
	IsError bool
}

// ToolDefinition describes a tool offered to the model.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}
