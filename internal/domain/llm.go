package domain

import (
	"errors"
	"fmt"
)

// CompletionRequest is one streaming round against the model provider.
type CompletionRequest struct {
	Model           string
	System          string
	Turns           []Turn
	Tools           []ToolDefinition
	MaxTokens       int
	ReasoningEffort string
}

// EventStream yields DeltaEvent, ThinkingStartEvent and ThinkingEvent values in
// generation order, then exactly one FinalMessageEvent, then io.EOF.
type EventStream interface {
	Next() (StreamEvent, error)
	Close() error
}

// UpstreamKind classifies a model provider failure.
type UpstreamKind string

const (
	UpstreamTimeout     UpstreamKind = "timeout"
	UpstreamOverloaded  UpstreamKind = "overloaded"
	UpstreamRateLimited UpstreamKind = "rate_limited"
	UpstreamBadRequest  UpstreamKind = "bad_request"
	UpstreamAuth        UpstreamKind = "auth"
	UpstreamBilling     UpstreamKind = "billing"
	UpstreamUnknown     UpstreamKind = "unknown"
)

// UpstreamError is a classified model provider failure.
type UpstreamError struct {
	Kind       UpstreamKind
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("upstream %s (status %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("upstream %s: %v", e.Kind, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Retryable reports whether a new attempt may succeed without changing the request.
func (e *UpstreamError) Retryable() bool {
	switch e.Kind {
	case UpstreamTimeout, UpstreamOverloaded, UpstreamRateLimited:
		return true
	default:
		return false
	}
}

// UpstreamKindOf returns the classification of err, or UpstreamUnknown.
func UpstreamKindOf(err error) UpstreamKind {
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		return upstream.Kind
	}
	return UpstreamUnknown
}
