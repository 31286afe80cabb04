package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cloo-solutions/counsel/internal/domain"
)

type TemplateRepository struct {
	db dbtx
}

func NewTemplateRepository(pool *pgxpool.Pool) *TemplateRepository {
	return &TemplateRepository{db: pool}
}

func (r *TemplateRepository) Create(ctx context.Context, t *domain.Template) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO templates (id, org_id, name, category, description, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID, t.OrgID, t.Name, t.Category, t.Description, t.CreatedAt,
	)
	if pgErrorCode(err) == pgForeignKeyViolation {
		return domain.ErrOrganizationNotFound
	}
	return err
}

func (r *TemplateRepository) ListByOrg(ctx context.Context, orgID string) ([]*domain.Template, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, org_id, name, category, description, created_at
		 FROM templates WHERE org_id = $1
		 ORDER BY category, name`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	templates := []*domain.Template{}
	for rows.Next() {
		var t domain.Template
		if err := rows.Scan(&t.ID, &t.OrgID, &t.Name, &t.Category, &t.Description, &t.CreatedAt); err != nil {
			return nil, err
		}
		templates = append(templates, &t)
	}
	if err := rows.Err(); err != nil {
		if isNotFound(err) {
			return []*domain.Template{}, nil
		}
		return nil, err
	}
	return templates, nil
}
