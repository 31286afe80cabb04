package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cloo-solutions/counsel/internal/domain"
)

type ProjectRepository struct {
	db dbtx
}

func NewProjectRepository(pool *pgxpool.Pool) *ProjectRepository {
	return &ProjectRepository{db: pool}
}

func (r *ProjectRepository) Create(ctx context.Context, project *domain.Project) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO projects (id, org_id, name, created_at) VALUES ($1, $2, $3, $4)`,
		project.ID, project.OrgID, project.Name, project.CreatedAt,
	)
	switch pgErrorCode(err) {
	case pgUniqueViolation:
		return domain.ErrProjectAlreadyExists
	case pgForeignKeyViolation:
		return domain.ErrOrganizationNotFound
	}
	return err
}

func (r *ProjectRepository) GetByID(ctx context.Context, id string) (*domain.Project, error) {
	if !isUUID(id) {
		return nil, domain.ErrProjectNotFound
	}
	return getOne(ctx, r.db, domain.ErrProjectNotFound, scanProject,
		`SELECT id, org_id, name, created_at FROM projects WHERE id = $1`, id)
}

func (r *ProjectRepository) ListByOrg(ctx context.Context, orgID string) ([]*domain.Project, error) {
	return getAll(ctx, r.db, scanProject,
		`SELECT id, org_id, name, created_at FROM projects WHERE org_id = $1 ORDER BY name, id`,
		orgID,
	)
}

// ListByMember returns the organization's projects the user belongs to.
func (r *ProjectRepository) ListByMember(ctx context.Context, orgID, userID string) ([]*domain.Project, error) {
	return getAll(ctx, r.db, scanProject,
		`SELECT p.id, p.org_id, p.name, p.created_at
		 FROM projects p
		 JOIN project_members m ON m.project_id = p.id
		 WHERE p.org_id = $1 AND m.user_id = $2
		 ORDER BY p.name, p.id`,
		orgID, userID,
	)
}

func scanProject(row pgx.CollectableRow) (*domain.Project, error) {
	p := &domain.Project{}
	return p, row.Scan(&p.ID, &p.OrgID, &p.Name, &p.CreatedAt)
}

// AddMember grants a user access to the project. Adding an existing member is a no-op.
func (r *ProjectRepository) AddMember(ctx context.Context, projectID, userID string) error {
	if !isUUID(projectID) {
		return domain.ErrProjectNotFound
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO project_members (project_id, user_id, created_at) VALUES ($1, $2, $3)
		 ON CONFLICT (project_id, user_id) DO NOTHING`,
		projectID, userID, time.Now().UTC(),
	)
	if pgErrorCode(err) == pgForeignKeyViolation {
		return domain.ErrProjectNotFound
	}
	return err
}

// RemoveMember revokes a membership. Removing a non-member is a no-op.
func (r *ProjectRepository) RemoveMember(ctx context.Context, projectID, userID string) error {
	if !isUUID(projectID) {
		return domain.ErrProjectNotFound
	}
	_, err := r.db.Exec(ctx,
		`DELETE FROM project_members WHERE project_id = $1 AND user_id = $2`,
		projectID, userID,
	)
	return err
}

func (r *ProjectRepository) IsMember(ctx context.Context, projectID, userID string) (bool, error) {
	if !isUUID(projectID) {
		return false, nil
	}
	var ok bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM project_members WHERE project_id = $1 AND user_id = $2)`,
		projectID, userID,
	).Scan(&ok)
	return ok, err
}

func (r *ProjectRepository) ListMembers(ctx context.Context, projectID string) ([]domain.ProjectMember, error) {
	if !isUUID(projectID) {
		return nil, domain.ErrProjectNotFound
	}
	return getAll(ctx, r.db, func(row pgx.CollectableRow) (domain.ProjectMember, error) {
		var m domain.ProjectMember
		err := row.Scan(&m.ProjectID, &m.UserID, &m.CreatedAt)
		return m, err
	}, `SELECT project_id, user_id, created_at FROM project_members WHERE project_id = $1 ORDER BY created_at, user_id`, projectID)
}
