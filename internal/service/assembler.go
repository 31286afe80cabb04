package service

import (
	"fmt"
	"strings"

	"github.com/cloo-solutions/counsel/internal/domain"
)

// DefaultSystemPrompt is the base instruction for the legal assistant.
const DefaultSystemPrompt = `Du bist ein juristischer Assistent für eine deutsche Rechtsanwaltskanzlei. Antworte präzise und strukturiert auf Deutsch, es sei denn, die Frage ist in einer anderen Sprache gestellt.

Regeln:
- Stütze dich auf Normen, Rechtsprechung und die bereitgestellten Wissensquellen. Kennzeichne, was du aus eigenem Wissen ergänzt.
- Nenne Aktenzeichen nur, wenn sie in den Wissensquellen oder in Ergebnissen der Rechtsprechungssuche vorkommen. Erfinde niemals Aktenzeichen, Fundstellen oder Randnummern.
- Nutze die Werkzeuge search_case_law und get_case, wenn aktuelle oder konkrete Rechtsprechung benötigt wird.
- Weise auf Unsicherheiten und abweichende Auffassungen hin.`

const (
	knowledgeInstruction = "Die folgenden Auszüge stammen aus den Wissensquellen der Kanzlei. Zitiere Kommentar- und Gesetzestexte wörtlich und halte dich an die jeweilige Zitierweise. Zusammenfassungen dienen nur als Hintergrund."
	templateInstruction  = "Die Kanzlei verfügt über folgende Vorlagen. Verweise mit exaktem Namen auf eine passende Vorlage, wenn der Nutzer ein Dokument erstellen möchte. Erfinde keine Vorlagen."
	privacyInstruction   = "Datenschutzmodus ist aktiv. Personenbezogene Angaben wurden durch Platzhalter wie [PERSON_1], [EMAIL_1], [PHONE_1] oder [IBAN_1] ersetzt. Übernimm diese Platzhalter unverändert in deine Antwort und versuche nicht, die ursprünglichen Angaben zu erschließen."
)

// DocumentPayload is an attached document with its bytes.
type DocumentPayload struct {
	Document *domain.Document
	Data     []byte
}

type AssembleInput struct {
	SystemPromptBase string
	// History is the persisted conversation in creation order, without the current question.
	History    []*domain.Message
	Question   string
	Documents  []DocumentPayload
	Retrieval  *RetrievalResult
	Templates  []*domain.Template
	Anonymizer *Anonymizer
}

// Assembler builds the system prompt and the role-alternating turn list.
type Assembler struct{}

func NewAssembler() *Assembler {
	return &Assembler{}
}

// Assemble returns the system prompt and turns for the first completion round.
// The last turn is always a user turn carrying the question and attachments.
func (a *Assembler) Assemble(input AssembleInput) (string, []domain.Turn) {
	anon := input.Anonymizer

	history := make([]*domain.Message, 0, len(input.History)+1)
	for _, m := range input.History {
		if m == nil {
			continue
		}
		cp := *m
		cp.Content = anon.Apply(cp.Content)
		history = append(history, &cp)
	}
	history = append(history, &domain.Message{Role: domain.RoleUser, Content: anon.Apply(input.Question)})

	turns := FoldTurns(history)
	last := &turns[len(turns)-1]
	for _, doc := range input.Documents {
		if block := documentBlock(doc, anon); block != nil {
			last.Blocks = append(last.Blocks, block)
		}
	}

	return buildSystemPrompt(input), turns
}

// FoldTurns reconciles persisted history into turns that strictly alternate
// starting with a user turn. Consecutive same-role messages, left behind by a
// failed earlier request, are folded into one turn. Leading assistant messages
// and messages with unknown roles are dropped.
func FoldTurns(messages []*domain.Message) []domain.Turn {
	turns := make([]domain.Turn, 0, len(messages))
	var texts [][]string
	for _, m := range messages {
		if m == nil || !m.Role.IsValid() {
			continue
		}
		if len(turns) == 0 && m.Role != domain.RoleUser {
			continue
		}
		if n := len(turns); n > 0 && turns[n-1].Role == m.Role {
			texts[n-1] = append(texts[n-1], m.Content)
			continue
		}
		turns = append(turns, domain.Turn{Role: m.Role})
		texts = append(texts, []string{m.Content})
	}
	for i := range turns {
		turns[i].Blocks = []domain.ContentBlock{domain.TextBlock{Text: joinNonEmpty(texts[i], "\n\n")}}
	}
	return turns
}

func joinNonEmpty(parts []string, sep string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}

func documentBlock(doc DocumentPayload, anon *Anonymizer) domain.ContentBlock {
	if doc.Document == nil {
		return nil
	}
	if doc.Document.IsImage() {
		if len(doc.Data) == 0 {
			return nil
		}
		return domain.ImageBlock{Name: doc.Document.Filename, MediaType: doc.Document.MimeType, Data: doc.Data}
	}
	return domain.DocumentBlock{
		Name:      doc.Document.Filename,
		MediaType: doc.Document.MimeType,
		Data:      doc.Data,
		Text:      anon.Apply(doc.Document.ExtractedText),
	}
}

func buildSystemPrompt(input AssembleInput) string {
	var b strings.Builder
	base := input.SystemPromptBase
	if strings.TrimSpace(base) == "" {
		base = DefaultSystemPrompt
	}
	b.WriteString(base)

	if r := input.Retrieval; !r.Empty() && strings.TrimSpace(r.Text) != "" {
		writeSection(&b, "knowledge_sources", knowledgeInstruction, input.Anonymizer.Apply(r.Text))
	}

	if len(input.Templates) > 0 {
		var lines strings.Builder
		for _, t := range input.Templates {
			if t == nil {
				continue
			}
			fmt.Fprintf(&lines, "- %s", t.Name)
			if t.Category != "" {
				fmt.Fprintf(&lines, " [%s]", t.Category)
			}
			if t.Description != "" {
				fmt.Fprintf(&lines, ": %s", t.Description)
			}
			lines.WriteString("\n")
		}
		writeSection(&b, "templates", templateInstruction, strings.TrimRight(lines.String(), "\n"))
	}

	if input.Anonymizer != nil {
		writeSection(&b, "privacy_mode", privacyInstruction, "")
	}
	return b.String()
}

func writeSection(b *strings.Builder, tag, instruction, body string) {
	fmt.Fprintf(b, "\n\n<%s>\n%s\n", tag, instruction)
	if body != "" {
		b.WriteString("\n")
		b.WriteString(body)
		b.WriteString("\n")
	}
	fmt.Fprintf(b, "</%s>", tag)
}
