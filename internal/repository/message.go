package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cloo-solutions/counsel/internal/domain"
)

const messageColumns = `id, conversation_id, role, content, citations, used_external_search, model, created_at`

type MessageRepository struct {
	db dbtx
}

func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{db: pool}
}

func NewMessageRepositoryWithTx(tx pgx.Tx) *MessageRepository {
	return &MessageRepository{db: tx}
}

func (r *MessageRepository) Create(ctx context.Context, m *domain.Message) error {
	citations := m.Citations
	if citations == nil {
		citations = []domain.Citation{}
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO messages (`+messageColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		m.ID, m.ConversationID, string(m.Role), m.Content, citations, m.UsedExternalSearch, m.Model, m.CreatedAt,
	)
	if pgErrorCode(err) == pgForeignKeyViolation {
		return domain.ErrConversationNotFound
	}
	return err
}

// ListRecent returns the newest limit messages in creation order.
func (r *MessageRepository) ListRecent(ctx context.Context, conversationID string, limit int) ([]*domain.Message, error) {
	return r.list(ctx,
		`SELECT `+messageColumns+` FROM (
			SELECT `+messageColumns+` FROM messages
			WHERE conversation_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		 ) recent
		 ORDER BY created_at, id`,
		conversationID, limit,
	)
}

func (r *MessageRepository) ListByConversation(ctx context.Context, conversationID string) ([]*domain.Message, error) {
	return r.list(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE conversation_id = $1 ORDER BY created_at, id`,
		conversationID,
	)
}

func (r *MessageRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Message, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []*domain.Message{}
	for rows.Next() {
		var m domain.Message
		var role string
		if err := rows.Scan(&m.ID, &m.ConversationID, &role, &m.Content, &m.Citations, &m.UsedExternalSearch, &m.Model, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Role = domain.Role(role)
		messages = append(messages, &m)
	}
	return messages, rows.Err()
}
