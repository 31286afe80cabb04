package domain

import "time"

// APIKey represents an API key for authentication
type APIKey struct {
	ID        string
	OrgID     string
	UserID    string // Identity the key acts as; owns conversations
	Name      string
	KeyHash   string // Never store plaintext keys
	CreatedAt time.Time
	RevokedAt *time.Time
}

// NewAPIKey creates a new APIKey instance
func NewAPIKey(id, orgID, userID, name, keyHash string, createdAt time.Time, revokedAt *time.Time) *APIKey {
	return &APIKey{
		ID:        id,
		OrgID:     orgID,
		UserID:    userID,
		Name:      name,
		KeyHash:   keyHash,
		CreatedAt: createdAt,
		RevokedAt: revokedAt,
	}
}

// Identity returns the caller identity this key resolves to.
func (a *APIKey) Identity() Identity {
	return Identity{OrgID: a.OrgID, UserID: a.UserID, KeyID: a.ID}
}

// IsRevoked returns true if the API key has been revoked
func (a *APIKey) IsRevoked() bool {
	return a.RevokedAt != nil
}

// ValidateAPIKey validates an APIKey instance
func ValidateAPIKey(a *APIKey) error {
	if a == nil {
		return nilEntity("api key")
	}
	return checkRequired("api key",
		required{"ID", a.ID},
		required{"OrgID", a.OrgID},
		required{"UserID", a.UserID},
		required{"Name", a.Name},
		required{"KeyHash", a.KeyHash},
	)
}
