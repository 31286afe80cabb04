package domain

import "time"

// Template is a document template the assistant can point users to.
type Template struct {
	ID          string
	OrgID       string
	Name        string
	Category    string
	Description string
	CreatedAt   time.Time
}
