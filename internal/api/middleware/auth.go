package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/cloo-solutions/counsel/internal/api"
	"github.com/cloo-solutions/counsel/internal/domain"
)

type contextKey string

const IdentityKey contextKey = "identity"

type AuthValidator interface {
	ValidateAPIKey(ctx context.Context, token string) (domain.Identity, error)
}

// APIKeyAuth resolves the bearer token to an Identity and stores it in the
// request context.
func APIKeyAuth(validator AuthValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				api.Error(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok {
				api.Error(w, http.StatusUnauthorized, "invalid authorization format")
				return
			}

			identity, err := validator.ValidateAPIKey(r.Context(), strings.TrimSpace(token))
			if err != nil || identity.IsZero() {
				api.Error(w, http.StatusUnauthorized, "invalid api key")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

func WithIdentity(ctx context.Context, identity domain.Identity) context.Context {
	if ids, ok := ctx.Value(identitySlotKey).(*identitySlot); ok {
		ids.identity = identity
	}
	return context.WithValue(ctx, IdentityKey, identity)
}

// GetIdentity returns the caller resolved by APIKeyAuth, or the zero Identity.
func GetIdentity(ctx context.Context) domain.Identity {
	identity, _ := ctx.Value(IdentityKey).(domain.Identity)
	return identity
}

const identitySlotKey contextKey = "identity_slot"

// identitySlot lets outer middleware see the identity resolved further in.
type identitySlot struct {
	identity domain.Identity
}

func withIdentitySlot(r *http.Request) (*http.Request, *identitySlot) {
	if slot, ok := r.Context().Value(identitySlotKey).(*identitySlot); ok {
		return r, slot
	}
	slot := &identitySlot{}
	return r.WithContext(context.WithValue(r.Context(), identitySlotKey, slot)), slot
}
