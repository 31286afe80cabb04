package admin

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/cloo-solutions/counsel/internal/domain"
	"github.com/cloo-solutions/counsel/internal/repository"
	"github.com/cloo-solutions/counsel/internal/service"
)

func authService(pool *pgxpool.Pool) (*service.AuthService, *repository.OrgRepository) {
	orgs := repository.NewOrgRepository(pool)
	return service.NewAuthService(orgs, repository.NewAPIKeyRepository(pool), &service.DefaultUUIDGenerator{}), orgs
}

func APIKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys",
		Long:  "Every API key acts as exactly one user of one organization. Conversations are owned by that user.",
	}
	cmd.AddCommand(apiKeyCreateCmd(), apiKeyListCmd(), apiKeyRevokeCmd())
	return cmd
}

func apiKeyCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Issue an API key for a user",
		RunE: withPool(func(ctx context.Context, cmd *cobra.Command, _ []string, pool *pgxpool.Pool) error {
			orgRef, _ := cmd.Flags().GetString("org")
			userID, _ := cmd.Flags().GetString("user")
			name, _ := cmd.Flags().GetString("name")

			authSvc, orgs := authService(pool)
			orgID, err := resolveOrgID(ctx, orgs, orgRef)
			if err != nil {
				return err
			}
			token, err := authSvc.CreateAPIKey(ctx, orgID, userID, name)
			if err != nil {
				return fmt.Errorf("failed to create API key: %w", err)
			}
			key, err := authSvc.GetAPIKeyByHash(ctx, token)
			if err != nil {
				return fmt.Errorf("failed to read back API key: %w", err)
			}

			view := keyView(key)
			view["token"] = token
			return emit(cmd, view, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Key %s (%s) issued to %s in %s\n\n  %s\n\nThe token is shown only once.\n",
					key.ID, key.Name, key.UserID, orgID, token)
				return err
			})
		}),
	}

	cmd.Flags().StringP("org", "o", "", "Organization ID or name (required)")
	cmd.Flags().StringP("user", "u", "", "User the key acts as (required)")
	cmd.Flags().StringP("name", "n", "", "Label for the key (required)")
	addOutputFlag(cmd)
	for _, f := range []string{"org", "user", "name"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}

func apiKeyListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the API keys of an organization",
		RunE: withPool(func(ctx context.Context, cmd *cobra.Command, _ []string, pool *pgxpool.Pool) error {
			orgRef, _ := cmd.Flags().GetString("org")

			authSvc, orgs := authService(pool)
			orgID, err := resolveOrgID(ctx, orgs, orgRef)
			if err != nil {
				return err
			}
			keys, err := authSvc.ListAPIKeys(ctx, orgID)
			if err != nil {
				return fmt.Errorf("failed to list API keys: %w", err)
			}

			items := make([]map[string]any, len(keys))
			for i, key := range keys {
				items[i] = keyView(key)
			}
			return emit(cmd, map[string]any{"items": items}, func(w io.Writer) error {
				return writeKeyTable(w, keys)
			})
		}),
	}

	cmd.Flags().StringP("org", "o", "", "Organization ID or name (required)")
	addOutputFlag(cmd)
	_ = cmd.MarkFlagRequired("org")
	return cmd
}

func apiKeyRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: withPool(func(ctx context.Context, cmd *cobra.Command, args []string, pool *pgxpool.Pool) error {
			authSvc, _ := authService(pool)
			if err := authSvc.RevokeAPIKey(ctx, args[0]); err != nil {
				return fmt.Errorf("failed to revoke API key: %w", err)
			}
			return emit(cmd, map[string]any{"id": args[0], "revoked": true}, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "API key %s revoked\n", args[0])
				return err
			})
		}),
	}
	addOutputFlag(cmd)
	return cmd
}

func keyView(key *domain.APIKey) map[string]any {
	return map[string]any{
		"id":         key.ID,
		"org_id":     key.OrgID,
		"name":       key.Name,
		"user_id":    key.UserID,
		"created_at": key.CreatedAt,
		"revoked_at": key.RevokedAt,
	}
}

func writeKeyTable(w io.Writer, keys []*domain.APIKey) error {
	if len(keys) == 0 {
		_, err := fmt.Fprintln(w, "No API keys found")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tUSER\tSTATUS\tCREATED")
	for _, key := range keys {
		status := "active"
		if key.IsRevoked() {
			status = "revoked"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", key.ID, key.Name, key.UserID, status, key.CreatedAt.Format(timeLayout))
	}
	return tw.Flush()
}
