package service

import (
	"fmt"
	"regexp"
	"strings"
)

type piiPattern struct {
	kind string
	re   *regexp.Regexp
	// group is the submatch that is replaced; 0 replaces the whole match.
	group int
}

// Order matters: e-mail addresses and IBANs contain digit runs the phone
// pattern would otherwise claim.
var piiPatterns = []piiPattern{
	{kind: "EMAIL", re: regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)},
	{kind: "IBAN", re: regexp.MustCompile(`\b[A-Z]{2}\d{2}(?:\s?[A-Z0-9]{4}){3,7}(?:\s?[A-Z0-9]{1,3})?\b`)},
	{kind: "PHONE", re: regexp.MustCompile(`(?:\+\d{2}|\b00\d{2}|\b0)[\s/\-]?\(?\d{2,5}\)?[\s/\-]?\d{3,}(?:[\s\-]\d{2,})*`)},
	{kind: "PERSON", group: 2, re: regexp.MustCompile(`\b(Herrn?|Frau|Hr\.|Fr\.|Dr\.|Prof\.)\s+((?:Dr\.\s+)?[A-ZÄÖÜ][a-zäöüß]+(?:-[A-ZÄÖÜ][a-zäöüß]+)?)`)},
}

// Anonymizer replaces personal data with stable placeholders. The same value
// maps to the same placeholder for the lifetime of the Anonymizer, so one
// instance is used for every text of a request. Not safe for concurrent use.
type Anonymizer struct {
	placeholders map[string]string
	counters     map[string]int
}

func NewAnonymizer() *Anonymizer {
	return &Anonymizer{
		placeholders: make(map[string]string),
		counters:     make(map[string]int),
	}
}

// Apply returns text with every recognized identifier replaced.
func (a *Anonymizer) Apply(text string) string {
	if a == nil || text == "" {
		return text
	}
	for _, p := range piiPatterns {
		text = a.replace(text, p)
	}
	return text
}

// Count is the number of distinct values replaced so far.
func (a *Anonymizer) Count() int {
	if a == nil {
		return 0
	}
	return len(a.placeholders)
}

func (a *Anonymizer) replace(text string, p piiPattern) string {
	matches := p.re.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return text
	}
	var b strings.Builder
	last := 0
	for _, m := range matches {
		start, end := m[2*p.group], m[2*p.group+1]
		if start < 0 {
			continue
		}
		b.WriteString(text[last:start])
		b.WriteString(a.placeholder(p.kind, text[start:end]))
		last = end
	}
	b.WriteString(text[last:])
	return b.String()
}

func (a *Anonymizer) placeholder(kind, value string) string {
	key := kind + "\x00" + strings.ToLower(strings.Join(strings.Fields(value), ""))
	if ph, ok := a.placeholders[key]; ok {
		return ph
	}
	a.counters[kind]++
	ph := fmt.Sprintf("[%s_%d]", kind, a.counters[kind])
	a.placeholders[key] = ph
	return ph
}
