package repository

import (
	"context"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cloo-solutions/counsel/internal/domain"
	"github.com/cloo-solutions/counsel/internal/pagination"
)

const conversationColumns = `c.id, c.org_id, c.owner_id, c.project_id, c.title, c.created_at, c.updated_at`

type ConversationRepository struct {
	db dbtx
}

func NewConversationRepository(pool *pgxpool.Pool) *ConversationRepository {
	return &ConversationRepository{db: pool}
}

func NewConversationRepositoryWithTx(tx pgx.Tx) *ConversationRepository {
	return &ConversationRepository{db: tx}
}

func scanConversation(row pgx.Row) (*domain.Conversation, error) {
	var c domain.Conversation
	var projectID *string
	if err := row.Scan(&c.ID, &c.OrgID, &c.OwnerID, &projectID, &c.Title, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.ProjectID = stringOrEmpty(projectID)
	return &c, nil
}

func (r *ConversationRepository) Create(ctx context.Context, c *domain.Conversation) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO conversations (id, org_id, owner_id, project_id, title, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.OrgID, c.OwnerID, nullableString(c.ProjectID), c.Title, c.CreatedAt, c.UpdatedAt,
	)
	if pgErrorCode(err) == pgForeignKeyViolation {
		return domain.ErrProjectNotFound
	}
	return err
}

func (r *ConversationRepository) GetByID(ctx context.Context, id string) (*domain.Conversation, error) {
	if !isUUID(id) {
		return nil, domain.ErrConversationNotFound
	}
	c, err := scanConversation(r.db.QueryRow(ctx,
		`SELECT `+conversationColumns+` FROM conversations c WHERE c.id = $1`, id))
	if err != nil {
		if isNotFound(err) {
			return nil, domain.ErrConversationNotFound
		}
		return nil, err
	}
	return c, nil
}

// ListAccessible returns the conversations a user owns or reaches through a
// project membership, ordered by last activity.
func (r *ConversationRepository) ListAccessible(ctx context.Context, orgID, userID string, cursor *pagination.Cursor, limit int) ([]*domain.Conversation, error) {
	query := `SELECT ` + conversationColumns + `
		FROM conversations c
		WHERE c.org_id = $1
		  AND (c.owner_id = $2 OR c.project_id IN (SELECT project_id FROM project_members WHERE user_id = $2))`
	args := []any{orgID, userID}
	if cursor != nil {
		if !isUUID(cursor.LastID) {
			return nil, domain.ErrInvalidCursor
		}
		query += ` AND (c.updated_at, c.id) < ($3::timestamptz, $4::uuid)`
		args = append(args, cursor.Timestamp, cursor.LastID)
	}
	args = append(args, limit)
	query += ` ORDER BY c.updated_at DESC, c.id DESC LIMIT $` + strconv.Itoa(len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Touch moves the conversation's last activity forward.
func (r *ConversationRepository) Touch(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.Exec(ctx,
		`UPDATE conversations SET updated_at = $2 WHERE id = $1 AND updated_at < $2`,
		id, at,
	)
	return err
}
