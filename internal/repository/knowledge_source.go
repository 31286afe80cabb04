package repository

import (
	"context"
	"strings"
	"unicode"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/cloo-solutions/counsel/internal/domain"
	"github.com/cloo-solutions/counsel/internal/service"
)

const sourceColumns = `id, name, category, active, processed, summary, origin_url, created_at, updated_at`

// KnowledgeSourceRepository reads ingested sources and searches their chunks.
type KnowledgeSourceRepository struct {
	db dbtx
}

func NewKnowledgeSourceRepository(pool *pgxpool.Pool) *KnowledgeSourceRepository {
	return &KnowledgeSourceRepository{db: pool}
}

func scanSource(row pgx.Row) (*domain.KnowledgeSource, error) {
	var s domain.KnowledgeSource
	var summary, originURL *string
	if err := row.Scan(&s.ID, &s.Name, &s.Category, &s.Active, &s.Processed, &summary, &originURL, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.Summary = stringOrEmpty(summary)
	s.OriginURL = stringOrEmpty(originURL)
	return &s, nil
}

func (r *KnowledgeSourceRepository) Create(ctx context.Context, s *domain.KnowledgeSource) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO knowledge_sources (`+sourceColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		s.ID, s.Name, s.Category, s.Active, s.Processed,
		nullableString(s.Summary), nullableString(s.OriginURL), s.CreatedAt, s.UpdatedAt,
	)
	return err
}

// AddChunk stores one chunk of a source. embedding may be nil for sources
// that are only searched lexically.
func (r *KnowledgeSourceRepository) AddChunk(ctx context.Context, c *domain.SourceChunk, embedding []float32) error {
	var vec any
	if len(embedding) > 0 {
		vec = pgvector.NewVector(embedding)
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO source_chunks (id, source_id, chunk_index, heading, content, embedding)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.SourceID, c.ChunkIndex, c.Heading, c.Content, vec,
	)
	if pgErrorCode(err) == pgForeignKeyViolation {
		return domain.ErrSourceNotFound
	}
	return err
}

func (r *KnowledgeSourceRepository) SetActive(ctx context.Context, id string, active bool) error {
	if !isUUID(id) {
		return domain.ErrSourceNotFound
	}
	tag, err := r.db.Exec(ctx,
		`UPDATE knowledge_sources SET active = $2, updated_at = now() WHERE id = $1`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSourceNotFound
	}
	return nil
}

// ListAll returns every source regardless of state.
func (r *KnowledgeSourceRepository) ListAll(ctx context.Context) ([]*domain.KnowledgeSource, error) {
	return r.listSources(ctx, `SELECT `+sourceColumns+` FROM knowledge_sources ORDER BY name, id`)
}

func (r *KnowledgeSourceRepository) ListActive(ctx context.Context, ids []string) ([]*domain.KnowledgeSource, error) {
	if len(ids) == 0 {
		return r.listSources(ctx,
			`SELECT `+sourceColumns+` FROM knowledge_sources
			 WHERE active AND processed
			 ORDER BY name, id`)
	}
	valid := validUUIDs(ids)
	if len(valid) == 0 {
		return []*domain.KnowledgeSource{}, nil
	}
	return r.listSources(ctx,
		`SELECT `+sourceColumns+` FROM knowledge_sources
		 WHERE active AND processed AND id = ANY($1::uuid[])
		 ORDER BY name, id`, valid)
}

func (r *KnowledgeSourceRepository) listSources(ctx context.Context, query string, args ...any) ([]*domain.KnowledgeSource, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sources := []*domain.KnowledgeSource{}
	for rows.Next() {
		s, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, s)
	}
	return sources, rows.Err()
}

// CountChunks returns the chunk count per source. Sources without chunks are absent.
func (r *KnowledgeSourceRepository) CountChunks(ctx context.Context, sourceIDs []string) (map[string]int, error) {
	counts := make(map[string]int)
	valid := validUUIDs(sourceIDs)
	if len(valid) == 0 {
		return counts, nil
	}
	rows, err := r.db.Query(ctx,
		`SELECT source_id, count(*) FROM source_chunks
		 WHERE source_id = ANY($1::uuid[])
		 GROUP BY source_id`, valid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		counts[id] = n
	}
	return counts, rows.Err()
}

func (r *KnowledgeSourceRepository) SearchChunksSemantic(ctx context.Context, sourceIDs []string, embedding []float32, limit int) ([]*service.ChunkSearchResult, error) {
	valid := validUUIDs(sourceIDs)
	if len(valid) == 0 || len(embedding) == 0 {
		return []*service.ChunkSearchResult{}, nil
	}
	return r.searchChunks(ctx,
		`SELECT id, source_id, chunk_index, heading, content,
		        (1 - (embedding <=> $2))::real AS score
		 FROM source_chunks
		 WHERE source_id = ANY($1::uuid[]) AND embedding IS NOT NULL
		 ORDER BY embedding <=> $2
		 LIMIT $3`,
		valid, pgvector.NewVector(embedding), limit)
}

func (r *KnowledgeSourceRepository) SearchChunksLexical(ctx context.Context, sourceIDs []string, query string, limit int) ([]*service.ChunkSearchResult, error) {
	valid := validUUIDs(sourceIDs)
	tsquery := lexicalQuery(query)
	if len(valid) == 0 || tsquery == "" {
		return []*service.ChunkSearchResult{}, nil
	}
	return r.searchChunks(ctx,
		`SELECT id, source_id, chunk_index, heading, content,
		        ts_rank(search_vector, q)::real AS score
		 FROM source_chunks, to_tsquery('german', $2) q
		 WHERE source_id = ANY($1::uuid[]) AND search_vector @@ q
		 ORDER BY score DESC, chunk_index
		 LIMIT $3`,
		valid, tsquery, limit)
}

func (r *KnowledgeSourceRepository) searchChunks(ctx context.Context, query string, args ...any) ([]*service.ChunkSearchResult, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []*service.ChunkSearchResult{}
	for rows.Next() {
		var c service.ChunkSearchResult
		if err := rows.Scan(&c.ChunkID, &c.SourceID, &c.ChunkIndex, &c.Heading, &c.Content, &c.Score); err != nil {
			return nil, err
		}
		results = append(results, &c)
	}
	return results, rows.Err()
}

// lexicalQuery turns free text into an OR tsquery over its word tokens.
// Operators and punctuation are dropped so user input cannot break the query.
func lexicalQuery(text string) string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]struct{}, len(fields))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.ToLower(f)
		if len([]rune(f)) < 2 {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		tokens = append(tokens, f)
	}
	return strings.Join(tokens, " | ")
}
