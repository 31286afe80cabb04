package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cloo-solutions/counsel/internal/logging"
)

const (
	expansionTimeout    = 8 * time.Second
	maxQueryExpansions  = 3
	expansionSystemText = "Du formulierst Suchanfragen für eine juristische Wissensdatenbank."
	expansionPrompt     = `Formuliere bis zu %d alternative Suchanfragen für die folgende Frage, damit eine Stichwort- und Vektorsuche in Kommentaren und Gesetzestexten mehr relevante Passagen findet. Verwende Fachbegriffe und Normen, wo sinnvoll. Antworte ausschließlich mit einem JSON-Array von Strings.

Frage: %s`
)

// TextCompleter runs a single non-streaming completion.
type TextCompleter interface {
	Complete(ctx context.Context, model, system, prompt string) (string, error)
}

// Expander asks a utility model for alternative phrasings of a question to
// improve retrieval recall. It never fails: any error yields no expansions.
type Expander struct {
	llm    TextCompleter
	model  string
	logger logging.Logger
}

func NewExpander(llm TextCompleter, model string, logger logging.Logger) *Expander {
	return &Expander{llm: llm, model: model, logger: logger}
}

// Expand returns up to three phrasings distinct from the question.
func (e *Expander) Expand(ctx context.Context, question string) []string {
	if e == nil || e.llm == nil || strings.TrimSpace(question) == "" {
		return nil
	}

	return WithFallback(ctx, FallbackOptions{Stage: StageExpansion, Timeout: expansionTimeout, Logger: e.logger}, []string(nil),
		func(ctx context.Context) ([]string, error) {
			prompt := fmt.Sprintf(expansionPrompt, maxQueryExpansions, question)
			out, err := e.llm.Complete(ctx, e.model, expansionSystemText, prompt)
			if err != nil {
				return nil, err
			}
			return parseExpansions(out, question)
		})
}

func parseExpansions(output, question string) ([]string, error) {
	start := strings.Index(output, "[")
	end := strings.LastIndex(output, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("expansion output is not a JSON array: %q", truncateRunes(output, 120))
	}

	var candidates []string
	if err := json.Unmarshal([]byte(output[start:end+1]), &candidates); err != nil {
		return nil, fmt.Errorf("decode expansions: %w", err)
	}

	seen := map[string]struct{}{normalizeQuery(question): {}}
	expansions := make([]string, 0, maxQueryExpansions)
	for _, candidate := range candidates {
		candidate = strings.TrimSpace(candidate)
		key := normalizeQuery(candidate)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		expansions = append(expansions, candidate)
		if len(expansions) == maxQueryExpansions {
			break
		}
	}
	return expansions, nil
}

func normalizeQuery(q string) string {
	return strings.ToLower(strings.Join(strings.Fields(q), " "))
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
