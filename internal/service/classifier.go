package service

import (
	"regexp"
	"strings"
)

// legalVocabulary matches statute references, court names and common German
// legal terms. Word stems are matched as prefixes so inflected forms hit too.
var legalVocabulary = regexp.MustCompile(`(?i)(` +
	`§|art\.\s*\d|abs\.\s*\d|` +
	`\b(bgb|stgb|stpo|zpo|hgb|gmbhg|aktg|inso|vwgo|vwvfg|sgb|arbgg|kschg|tzbfg|betrvg|bdsg|dsgvo|uwg|urhg|markeng|gg|ao|estg|ustg|famfg|weg|beurkg|gwb)\b|` +
	`\b(bgh|bag|bverfg|bverwg|bfh|bsg|eugh|olg|lg|ag|lag|vg|ovg|fg)\b|` +
	`\b(gesetz|verordnung|richtlinie|paragraph|vorschrift|urteil|beschluss|rechtsprechung|aktenzeichen|gericht|klage|kläger|beklagt|berufung|revision|beschwerde|widerspruch|einspruch|vollstreck|mahnbescheid|frist|verjähr|anspruch|haftung|schadensersatz|schmerzensgeld|gewährleistung|mängel|rücktritt|kündig|abmahn|vertrag|vereinbarung|klausel|agb|miet|pacht|arbeitsvertrag|arbeitnehmer|arbeitgeber|betriebsrat|erbe|erbschaft|erbrecht|testament|pflichtteil|unterhalt|scheidung|sorgerecht|gesellschaft|geschäftsführer|insolvenz|datenschutz|straf|ordnungswidrig|bußgeld|steuer|rechtlich|rechtslage|zulässig|unwirksam|nichtig|anfecht|vollmacht|notar)|` +
	`\b(statute|regulation|court|lawsuit|liability|contract|tenant|landlord|employment law|case law|legal)\b` +
	`)`)

// Classifier decides locally, without a model call, whether a question needs
// knowledge-source retrieval.
type Classifier struct {
	minLength int
}

func NewClassifier() *Classifier {
	return &Classifier{minLength: 12}
}

// NeedsKnowledge reports whether the text looks like a legal question.
func (c *Classifier) NeedsKnowledge(text string) bool {
	text = strings.TrimSpace(text)
	if len([]rune(text)) < c.minLength {
		return legalVocabulary.MatchString(text) && strings.ContainsAny(text, "§")
	}
	return legalVocabulary.MatchString(text)
}

// ResolveKnowledge applies an explicit caller override before classifying.
func (c *Classifier) ResolveKnowledge(text string, override *bool) bool {
	if override != nil {
		return *override
	}
	return c.NeedsKnowledge(text)
}
