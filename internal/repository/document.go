package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cloo-solutions/counsel/internal/domain"
)

type DocumentRepository struct {
	db dbtx
}

func NewDocumentRepository(pool *pgxpool.Pool) *DocumentRepository {
	return &DocumentRepository{db: pool}
}

func (r *DocumentRepository) Create(ctx context.Context, d *domain.Document) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO documents (id, org_id, conversation_id, filename, mime_type, size_bytes, sha256, storage_key, extracted_text, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		d.ID, d.OrgID, nullableString(d.ConversationID), d.Filename, d.MimeType, d.SizeBytes,
		d.SHA256, d.StorageKey, nullableString(d.ExtractedText), d.CreatedAt,
	)
	return err
}

// GetByIDs returns the organization's documents among ids in request order.
// Unknown, foreign and malformed ids are skipped.
func (r *DocumentRepository) GetByIDs(ctx context.Context, orgID string, ids []string) ([]*domain.Document, error) {
	valid := validUUIDs(ids)
	if len(valid) == 0 {
		return []*domain.Document{}, nil
	}
	rows, err := r.db.Query(ctx,
		`SELECT id, org_id, conversation_id, filename, mime_type, size_bytes, sha256, storage_key, extracted_text, created_at
		 FROM documents
		 WHERE org_id = $1 AND id = ANY($2::uuid[])`, orgID, valid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[string]*domain.Document, len(valid))
	for rows.Next() {
		var d domain.Document
		var convID, text *string
		if err := rows.Scan(&d.ID, &d.OrgID, &convID, &d.Filename, &d.MimeType, &d.SizeBytes, &d.SHA256, &d.StorageKey, &text, &d.CreatedAt); err != nil {
			return nil, err
		}
		d.ConversationID = stringOrEmpty(convID)
		d.ExtractedText = stringOrEmpty(text)
		byID[d.ID] = &d
	}
	if err := rows.Err(); err != nil {
		if isNotFound(err) {
			return []*domain.Document{}, nil
		}
		return nil, err
	}

	docs := make([]*domain.Document, 0, len(byID))
	seen := make(map[string]struct{}, len(byID))
	for _, id := range valid {
		d, ok := byID[id]
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		docs = append(docs, d)
	}
	return docs, nil
}
