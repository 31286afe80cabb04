package service

import (
	"math"
	"unicode/utf8"

	"github.com/cloo-solutions/counsel/internal/domain"
	"github.com/cloo-solutions/counsel/internal/logging"
)

const (
	charsPerToken       = 3.5
	documentBlockTokens = 1500
	imageBlockTokens    = 1000
	turnOverheadTokens  = 4
	defaultMinWindow    = 4
)

// EstimateTokens approximates the token count of German text.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return int(math.Ceil(float64(utf8.RuneCountInString(text)) / charsPerToken))
}

// EstimateTurnTokens approximates a turn, counting attachments at a fixed cost.
func EstimateTurnTokens(t domain.Turn) int {
	total := turnOverheadTokens
	for _, block := range t.Blocks {
		switch b := block.(type) {
		case domain.TextBlock:
			total += EstimateTokens(b.Text)
		case domain.ThinkingBlock:
			total += EstimateTokens(b.Text)
		case domain.DocumentBlock:
			total += documentBlockTokens
		case domain.ImageBlock:
			total += imageBlockTokens
		case domain.ToolUseBlock:
			total += EstimateTokens(b.Call.Name) + EstimateTokens(string(b.Call.Input))
		case domain.ToolResultBlock:
			total += EstimateTokens(b.Result.Content)
		}
	}
	return total
}

// Budgeter trims conversation history to fit the context window.
type Budgeter struct {
	minWindow int
	logger    logging.Logger
}

func NewBudgeter(minWindow int, logger logging.Logger) *Budgeter {
	if minWindow <= 0 {
		minWindow = defaultMinWindow
	}
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &Budgeter{minWindow: minWindow, logger: logger}
}

// Fit drops the oldest turns until the estimate is within maxTokens. It never
// goes below the minimum window and keeps a user turn first; when the floor
// stops it, it logs and leaves final truncation to the provider.
func (b *Budgeter) Fit(systemPrompt string, turns []domain.Turn, maxTokens int) []domain.Turn {
	if maxTokens <= 0 || len(turns) == 0 {
		return turns
	}

	total := EstimateTokens(systemPrompt)
	sizes := make([]int, len(turns))
	for i, t := range turns {
		sizes[i] = EstimateTurnTokens(t)
		total += sizes[i]
	}

	start := 0
	for total > maxTokens {
		step := 1
		if start+1 < len(turns) && turns[start+1].Role != domain.RoleUser {
			step = 2
		}
		if len(turns)-start-step < b.minWindow {
			break
		}
		for i := start; i < start+step; i++ {
			total -= sizes[i]
		}
		start += step
	}

	if total > maxTokens {
		b.logger.WithFields(logging.Fields{
			"estimated_tokens": total,
			"max_tokens":       maxTokens,
			"turns":            len(turns) - start,
		}).Warn("context exceeds token budget at minimum history window")
	}
	if start > 0 {
		b.logger.WithFields(logging.Fields{"dropped_turns": start, "estimated_tokens": total}).Debug("trimmed conversation history")
	}
	return turns[start:]
}
