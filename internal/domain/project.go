package domain

import "time"

// Project groups conversations of a client matter within an organization.
// Members of a project may read and continue each other's conversations.
type Project struct {
	ID        string
	OrgID     string
	Name      string
	CreatedAt time.Time
}

// NewProject creates a new Project instance
func NewProject(id, orgID, name string, createdAt time.Time) *Project {
	return &Project{
		ID:        id,
		OrgID:     orgID,
		Name:      name,
		CreatedAt: createdAt,
	}
}

// ValidateProject validates a Project instance
func ValidateProject(p *Project) error {
	if p == nil {
		return nilEntity("project")
	}
	return checkRequired("project",
		required{"ID", p.ID},
		required{"OrgID", p.OrgID},
		required{"Name", p.Name},
	)
}

// ProjectMember grants a user access to a project's conversations.
type ProjectMember struct {
	ProjectID string
	UserID    string
	CreatedAt time.Time
}
