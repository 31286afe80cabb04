package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// dbtx is satisfied by *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const (
	pgInvalidTextRepresentation = "22P02"
	pgUniqueViolation           = "23505"
	pgForeignKeyViolation       = "23503"
)

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// isUUID reports whether s is valid uuid input. Ids that are not can never
// match a row and are rejected before the query runs.
func isUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// validUUIDs drops ids Postgres would reject as uuid input.
func validUUIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if isUUID(id) {
			out = append(out, id)
		}
	}
	return out
}

func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// isNotFound reports whether a single-row lookup found nothing.
func isNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows) || pgErrorCode(err) == pgInvalidTextRepresentation
}

// getOne runs a query expected to return one row. No row, or an id Postgres
// cannot parse, yields notFound.
func getOne[T any](ctx context.Context, db dbtx, notFound error, scan pgx.RowToFunc[*T], sql string, args ...any) (*T, error) {
	rows, err := db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	v, err := pgx.CollectOneRow(rows, scan)
	if isNotFound(err) {
		return nil, notFound
	}
	return v, err
}

// getAll collects every row. The result is never nil.
func getAll[T any](ctx context.Context, db dbtx, scan pgx.RowToFunc[T], sql string, args ...any) ([]T, error) {
	rows, err := db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scan)
}
