package domain

import "time"

// Organization represents a tenant (a law firm) in the system
type Organization struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// NewOrganization creates a new Organization instance
func NewOrganization(id, name string, createdAt time.Time) *Organization {
	return &Organization{
		ID:        id,
		Name:      name,
		CreatedAt: createdAt,
	}
}

// ValidateOrganization validates an Organization instance
func ValidateOrganization(o *Organization) error {
	if o == nil {
		return nilEntity("organization")
	}
	return checkRequired("organization",
		required{"ID", o.ID},
		required{"Name", o.Name},
	)
}
