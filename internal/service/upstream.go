package service

import (
	"context"
	"errors"

	"github.com/cloo-solutions/counsel/internal/domain"
)

var upstreamMessages = map[domain.UpstreamKind]string{
	domain.UpstreamTimeout:     "Die Anfrage hat zu lange gedauert. Bitte versuchen Sie es erneut. (The request timed out, please try again.)",
	domain.UpstreamOverloaded:  "Der KI-Dienst ist derzeit überlastet. Bitte versuchen Sie es in einigen Minuten erneut. (The AI service is overloaded, please try again in a few minutes.)",
	domain.UpstreamRateLimited: "Der KI-Dienst begrenzt derzeit die Anfragen. Bitte versuchen Sie es gleich erneut. (The AI service is rate limiting requests, please retry shortly.)",
	domain.UpstreamBadRequest:  "Die Anfrage konnte nicht verarbeitet werden. Bitte kürzen Sie den Verlauf oder die Anhänge. (The request could not be processed, try a shorter history or fewer attachments.)",
	domain.UpstreamAuth:        "Der KI-Dienst ist nicht korrekt konfiguriert. Bitte wenden Sie sich an Ihren Administrator. (The AI service is misconfigured, contact your administrator.)",
	domain.UpstreamBilling:     "Das Kontingent des KI-Dienstes ist erschöpft. Bitte wenden Sie sich an Ihren Administrator. (The AI service quota is exhausted, contact your administrator.)",
	domain.UpstreamUnknown:     "Es ist ein unerwarteter Fehler aufgetreten. Bitte versuchen Sie es erneut. (An unexpected error occurred, please try again.)",
}

// ClassifyUpstreamError maps a model provider failure to its kind and the
// message shown to the user. The original error is never shown.
func ClassifyUpstreamError(err error) (domain.UpstreamKind, string) {
	kind := domain.UpstreamKindOf(err)
	if kind == domain.UpstreamUnknown && errors.Is(err, context.DeadlineExceeded) {
		kind = domain.UpstreamTimeout
	}
	return kind, upstreamMessages[kind]
}
