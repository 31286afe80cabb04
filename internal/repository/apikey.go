package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cloo-solutions/counsel/internal/domain"
)

const selectAPIKey = `SELECT id, org_id, user_id, name, key_hash, created_at, revoked_at FROM api_keys`

// APIKeyRepository stores key hashes. The plaintext token never reaches it.
type APIKeyRepository struct {
	db dbtx
}

func NewAPIKeyRepository(pool *pgxpool.Pool) *APIKeyRepository {
	return &APIKeyRepository{db: pool}
}

func scanAPIKey(row pgx.CollectableRow) (*domain.APIKey, error) {
	k := &domain.APIKey{}
	return k, row.Scan(&k.ID, &k.OrgID, &k.UserID, &k.Name, &k.KeyHash, &k.CreatedAt, &k.RevokedAt)
}

func (r *APIKeyRepository) Create(ctx context.Context, key *domain.APIKey) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO api_keys (id, org_id, user_id, name, key_hash, created_at, revoked_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		key.ID, key.OrgID, key.UserID, key.Name, key.KeyHash, key.CreatedAt, key.RevokedAt,
	)
	switch pgErrorCode(err) {
	case pgUniqueViolation:
		return domain.ErrAPIKeyAlreadyExists
	case pgForeignKeyViolation:
		return domain.ErrOrganizationNotFound
	}
	return err
}

func (r *APIKeyRepository) GetByID(ctx context.Context, id string) (*domain.APIKey, error) {
	if !isUUID(id) {
		return nil, domain.ErrAPIKeyNotFound
	}
	return getOne(ctx, r.db, domain.ErrAPIKeyNotFound, scanAPIKey, selectAPIKey+` WHERE id = $1`, id)
}

// GetByHash resolves a presented token's sha256. Revoked keys are returned
// too so the caller can tell revoked from unknown.
func (r *APIKeyRepository) GetByHash(ctx context.Context, hash string) (*domain.APIKey, error) {
	return getOne(ctx, r.db, domain.ErrAPIKeyNotFound, scanAPIKey, selectAPIKey+` WHERE key_hash = $1`, hash)
}

// GetByOrgID lists the organization's keys, newest first.
func (r *APIKeyRepository) GetByOrgID(ctx context.Context, orgID string) ([]*domain.APIKey, error) {
	return getAll(ctx, r.db, scanAPIKey, selectAPIKey+` WHERE org_id = $1 ORDER BY created_at DESC, id DESC`, orgID)
}

// Revoke marks an active key revoked. Unknown and already revoked keys are
// reported as not found.
func (r *APIKeyRepository) Revoke(ctx context.Context, id string) error {
	if !isUUID(id) {
		return domain.ErrAPIKeyNotFound
	}
	tag, err := r.db.Exec(ctx,
		`UPDATE api_keys SET revoked_at = $1 WHERE id = $2 AND revoked_at IS NULL`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAPIKeyNotFound
	}
	return nil
}
