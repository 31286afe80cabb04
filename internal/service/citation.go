package service

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/cloo-solutions/counsel/internal/domain"
	"github.com/cloo-solutions/counsel/internal/logging"
	"golang.org/x/sync/errgroup"
)

const (
	quickVerifyTimeout     = 5 * time.Second
	quickVerifyConcurrency = 4
	unverifiedWarningLead  = "⚠️ Hinweis: Die folgenden Aktenzeichen konnten nicht verifiziert werden: "

	CitationSourceTool      = "tool"
	CitationSourceKnowledge = "knowledge"
	CitationSourceLookup    = "lookup"
)

// fileNumberPattern matches German court file numbers such as "VI ZR 123/21",
// "2 BvR 1234/19", "5 AZR 12/20" or "1 StR 45/22".
var fileNumberPattern = regexp.MustCompile(`\b(?:[IVX]{1,5}|\d{1,2})a?\s+[A-Z][A-Za-z]{0,4}\s+\d{1,5}/\d{2,4}\b`)

// ExtractIdentifiers returns the distinct file numbers in text, whitespace
// normalized, in order of first appearance.
func ExtractIdentifiers(text string) []string {
	matches := fileNumberPattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		id := collapseSpaces(m)
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// CaseLookup checks whether a file number exists in an authoritative database.
type CaseLookup interface {
	Exists(ctx context.Context, fileNumber string) (bool, error)
}

// Verification is the outcome of checking an answer's citations.
type Verification struct {
	Text       string
	Citations  []domain.Citation
	Unverified []string
}

// Verifier checks that file numbers in an answer were seen during the request
// or can be confirmed by a direct lookup.
type Verifier struct {
	lookup  CaseLookup
	timeout time.Duration
	logger  logging.Logger
}

func NewVerifier(lookup CaseLookup, logger logging.Logger) *Verifier {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &Verifier{lookup: lookup, timeout: quickVerifyTimeout, logger: logger}
}

// Provenance holds the file numbers seen in tool output and in retrieved
// knowledge during one request. Membership is exact: "I ZR 12/20" is not
// backed by "VI ZR 12/20".
type Provenance struct {
	Tool      map[string]struct{}
	Knowledge map[string]struct{}
}

func NewProvenance(toolResultsText, retrievedText string) Provenance {
	return Provenance{Tool: identifierSet(toolResultsText), Knowledge: identifierSet(retrievedText)}
}

func identifierSet(text string) map[string]struct{} {
	ids := ExtractIdentifiers(text)
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// Verify returns the final text, with a warning block appended when some
// identifiers could not be verified, and the unverified identifiers.
func (v *Verifier) Verify(ctx context.Context, finalText, toolResultsText, retrievedText string) (string, []string) {
	result := v.Check(ctx, finalText, toolResultsText, retrievedText)
	return result.Text, result.Unverified
}

// Check is Verify with per-identifier provenance.
func (v *Verifier) Check(ctx context.Context, finalText, toolResultsText, retrievedText string) *Verification {
	return v.CheckProvenance(ctx, finalText, NewProvenance(toolResultsText, retrievedText))
}

func (v *Verifier) CheckProvenance(ctx context.Context, finalText string, prov Provenance) *Verification {
	ids := ExtractIdentifiers(finalText)
	result := &Verification{Text: finalText}
	if len(ids) == 0 {
		return result
	}

	citations := make([]domain.Citation, len(ids))
	var pending []int
	for i, id := range ids {
		citations[i] = domain.Citation{Identifier: id}
		_, inTool := prov.Tool[id]
		_, inKnowledge := prov.Knowledge[id]
		switch {
		case inTool:
			citations[i].Source = CitationSourceTool
			citations[i].Verified = true
		case inKnowledge:
			citations[i].Source = CitationSourceKnowledge
			citations[i].Verified = true
		default:
			pending = append(pending, i)
		}
	}

	v.quickVerify(ctx, citations, pending)

	for _, c := range citations {
		if !c.Verified {
			result.Unverified = append(result.Unverified, c.Identifier)
		}
	}
	result.Citations = citations
	if len(result.Unverified) > 0 {
		citationUnverifiedTotal.Add(float64(len(result.Unverified)))
		result.Text = appendUnverifiedWarning(finalText, result.Unverified)
	}
	return result
}

func (v *Verifier) quickVerify(ctx context.Context, citations []domain.Citation, pending []int) {
	if v.lookup == nil || len(pending) == 0 {
		return
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(quickVerifyConcurrency)
	for _, idx := range pending {
		id := citations[idx].Identifier
		g.Go(func() error {
			lookupCtx, cancel := context.WithTimeout(gctx, v.timeout)
			defer cancel()

			ok, err := v.lookup.Exists(lookupCtx, id)
			if err != nil {
				degradedTotal.WithLabelValues(StageCitationVerify).Inc()
				v.logger.WithError(err).WithFields(logging.Fields{"stage": StageCitationVerify, "identifier": id}).Warn("degraded: quick verify failed")
				return nil
			}
			if ok {
				mu.Lock()
				citations[idx].Verified = true
				citations[idx].Source = CitationSourceLookup
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
}

func appendUnverifiedWarning(text string, unverified []string) string {
	if strings.Contains(text, unverifiedWarningLead) {
		return text
	}
	var b strings.Builder
	b.WriteString(strings.TrimRight(text, "\n"))
	b.WriteString("\n\n---\n")
	b.WriteString(unverifiedWarningLead)
	b.WriteString(strings.Join(unverified, ", "))
	b.WriteString(". Bitte prüfen Sie diese Fundstellen vor einer Verwendung.")
	return b.String()
}
