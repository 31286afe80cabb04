package domain

// Identity is the authenticated caller of a request.
type Identity struct {
	OrgID  string
	UserID string
	KeyID  string
}

// IsZero reports whether no caller was resolved.
func (i Identity) IsZero() bool {
	return i.OrgID == "" || i.UserID == ""
}

// RateLimitKey is the per-identity admission key.
func (i Identity) RateLimitKey() string {
	return i.OrgID + ":" + i.UserID
}
