package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cloo-solutions/counsel/internal/domain"
)

const selectOrg = `SELECT id, name, created_at FROM organizations`

type OrgRepository struct {
	db dbtx
}

func NewOrgRepository(pool *pgxpool.Pool) *OrgRepository {
	return &OrgRepository{db: pool}
}

func scanOrg(row pgx.CollectableRow) (*domain.Organization, error) {
	o := &domain.Organization{}
	return o, row.Scan(&o.ID, &o.Name, &o.CreatedAt)
}

// Create inserts org. Names are unique across the installation.
func (r *OrgRepository) Create(ctx context.Context, org *domain.Organization) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO organizations (id, name, created_at) VALUES ($1, $2, $3)`,
		org.ID, org.Name, org.CreatedAt,
	)
	if pgErrorCode(err) == pgUniqueViolation {
		return domain.ErrOrganizationAlreadyExists
	}
	return err
}

func (r *OrgRepository) GetByID(ctx context.Context, id string) (*domain.Organization, error) {
	if !isUUID(id) {
		return nil, domain.ErrOrganizationNotFound
	}
	return getOne(ctx, r.db, domain.ErrOrganizationNotFound, scanOrg, selectOrg+` WHERE id = $1`, id)
}

func (r *OrgRepository) GetByName(ctx context.Context, name string) (*domain.Organization, error) {
	return getOne(ctx, r.db, domain.ErrOrganizationNotFound, scanOrg, selectOrg+` WHERE name = $1`, name)
}

func (r *OrgRepository) List(ctx context.Context) ([]*domain.Organization, error) {
	return getAll(ctx, r.db, scanOrg, selectOrg+` ORDER BY created_at DESC, id DESC`)
}
