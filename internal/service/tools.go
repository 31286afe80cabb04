package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloo-solutions/counsel/internal/caselaw"
	"github.com/cloo-solutions/counsel/internal/domain"
)

const (
	ToolSearchCaseLaw = "search_case_law"
	ToolGetCase       = "get_case"

	searchToolTimeout = 25 * time.Second
	fetchToolTimeout  = 45 * time.Second
	maxCaseTextChars  = 40_000
)

// CaseLawClient is the subset of the case-law API the tools use.
type CaseLawClient interface {
	Search(ctx context.Context, query string, opts caselaw.SearchOptions) ([]caselaw.Case, error)
	Fetch(ctx context.Context, fileNumber string) (*caselaw.Case, error)
}

// ToolExecutor runs the tools offered to the model.
type ToolExecutor interface {
	Definitions() []domain.ToolDefinition
	Execute(ctx context.Context, call domain.ToolCall) (string, error)
	Timeout(name string) time.Duration
	StatusMessage(name string) string
}

var errUnknownTool = errors.New("unknown tool")

// CaseLawTools exposes case-law search and retrieval as model tools.
type CaseLawTools struct {
	client CaseLawClient
}

func NewCaseLawTools(client CaseLawClient) *CaseLawTools {
	return &CaseLawTools{client: client}
}

func (t *CaseLawTools) Definitions() []domain.ToolDefinition {
	if t == nil || t.client == nil {
		return nil
	}
	return []domain.ToolDefinition{
		{
			Name:        ToolSearchCaseLaw,
			Description: "Durchsucht eine Datenbank deutscher Gerichtsentscheidungen nach Stichworten. Liefert Aktenzeichen, Gericht, Datum und einen Textauszug.",
			Parameters: toolParams(
				map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "Suchbegriffe, z. B. Normen und Schlagworte (\"§ 573 BGB Eigenbedarf\").",
					},
					"court": map[string]any{
						"type":        "string",
						"description": "Optionales Gericht, z. B. \"BGH\" oder \"BAG\".",
					},
					"limit": map[string]any{
						"type":        "integer",
						"description": "Maximale Anzahl an Treffern (Standard 5, höchstens 20).",
					},
				},
				[]string{"query"},
			),
		},
		{
			Name:        ToolGetCase,
			Description: "Lädt den vollständigen Text einer Entscheidung anhand ihres Aktenzeichens.",
			Parameters: toolParams(
				map[string]any{
					"file_number": map[string]any{
						"type":        "string",
						"description": "Aktenzeichen, z. B. \"VIII ZR 180/18\".",
					},
				},
				[]string{"file_number"},
			),
		},
	}
}

func (t *CaseLawTools) Timeout(name string) time.Duration {
	if name == ToolGetCase {
		return fetchToolTimeout
	}
	return searchToolTimeout
}

func (t *CaseLawTools) StatusMessage(name string) string {
	switch name {
	case ToolSearchCaseLaw:
		return "Durchsuche Rechtsprechung…"
	case ToolGetCase:
		return "Lade Entscheidung…"
	default:
		return "Führe Werkzeug aus…"
	}
}

type searchCaseLawInput struct {
	Query string `json:"query"`
	Court string `json:"court"`
	Limit int    `json:"limit"`
}

type getCaseInput struct {
	FileNumber string `json:"file_number"`
}

func (t *CaseLawTools) Execute(ctx context.Context, call domain.ToolCall) (string, error) {
	if t == nil || t.client == nil {
		return "", caselaw.ErrNotConfigured
	}
	switch call.Name {
	case ToolSearchCaseLaw:
		var in searchCaseLawInput
		if err := decodeToolInput(call.Input, &in); err != nil {
			return "", err
		}
		if strings.TrimSpace(in.Query) == "" {
			return "", errors.New("query is required")
		}
		cases, err := t.client.Search(ctx, in.Query, caselaw.SearchOptions{Court: in.Court, Limit: in.Limit})
		if err != nil {
			return "", err
		}
		return formatCaseList(cases), nil
	case ToolGetCase:
		var in getCaseInput
		if err := decodeToolInput(call.Input, &in); err != nil {
			return "", err
		}
		if strings.TrimSpace(in.FileNumber) == "" {
			return "", errors.New("file_number is required")
		}
		cs, err := t.client.Fetch(ctx, in.FileNumber)
		if err != nil {
			return "", err
		}
		return formatCase(cs), nil
	default:
		return "", fmt.Errorf("%w: %s", errUnknownTool, call.Name)
	}
}

func decodeToolInput(raw json.RawMessage, out any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("invalid tool input: %w", err)
	}
	return nil
}

// formatCaseList never repeats the query: tool output is citation provenance,
// and a file number the model searched for is not evidence that it exists.
func formatCaseList(cases []caselaw.Case) string {
	if len(cases) == 0 {
		return "Keine Entscheidungen gefunden."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d Entscheidungen:\n", len(cases))
	for i, c := range cases {
		fmt.Fprintf(&b, "\n%d. %s, %s, Az. %s", i+1, c.Court, c.Date, c.FileNumber)
		if c.URL != "" {
			fmt.Fprintf(&b, " (%s)", c.URL)
		}
		if c.Text != "" {
			fmt.Fprintf(&b, "\n%s", c.Text)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func formatCase(c *caselaw.Case) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s, Urteil/Beschluss vom %s, Az. %s\n", c.Court, c.Date, c.FileNumber)
	if c.URL != "" {
		fmt.Fprintf(&b, "Quelle: %s\n", c.URL)
	}
	b.WriteString("\n")
	b.WriteString(truncateRunes(c.Text, maxCaseTextChars))
	return b.String()
}

func toolParams(properties map[string]any, required []string) map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}
