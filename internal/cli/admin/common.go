package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/cloo-solutions/counsel/internal/config"
	"github.com/cloo-solutions/counsel/internal/database"
	"github.com/cloo-solutions/counsel/internal/domain"
)

const timeLayout = "2006-01-02 15:04:05"

func getDBPool(ctx context.Context) (*pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return database.NewPool(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConns)
}

type poolRunE func(ctx context.Context, cmd *cobra.Command, args []string, pool *pgxpool.Pool) error

// withPool adapts fn to a cobra RunE that holds a database pool for the
// duration of the command.
func withPool(fn poolRunE) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		pool, err := getDBPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()
		return fn(ctx, cmd, args, pool)
	}
}

type orgLookup interface {
	GetByID(ctx context.Context, id string) (*domain.Organization, error)
	GetByName(ctx context.Context, name string) (*domain.Organization, error)
}

// resolveOrgID accepts an organization id or name.
func resolveOrgID(ctx context.Context, orgs orgLookup, ref string) (string, error) {
	lookup := orgs.GetByName
	if _, err := uuid.Parse(ref); err == nil {
		lookup = orgs.GetByID
	}
	org, err := lookup(ctx, ref)
	switch {
	case errors.Is(err, domain.ErrOrganizationNotFound):
		return "", fmt.Errorf("organization not found: %s", ref)
	case err != nil:
		return "", err
	}
	return org.ID, nil
}

func addOutputFlag(cmd *cobra.Command) {
	cmd.Flags().String("output", "text", "Output format (text or json)")
}

// emit writes v as indented JSON when --output=json and calls text otherwise.
func emit(cmd *cobra.Command, v any, text func(w io.Writer) error) error {
	out := cmd.OutOrStdout()
	if format, _ := cmd.Flags().GetString("output"); format == "json" {
		return printJSON(out, v)
	}
	return text(out)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
