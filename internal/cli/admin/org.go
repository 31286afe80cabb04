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

func OrgCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "org",
		Short: "Manage organizations",
		Long:  "An organization is a law firm. Its API keys, projects, documents and templates are isolated from every other organization.",
	}

	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Create an organization",
		Args:  cobra.ExactArgs(1),
		RunE: withPool(func(ctx context.Context, cmd *cobra.Command, args []string, pool *pgxpool.Pool) error {
			authSvc := service.NewAuthService(repository.NewOrgRepository(pool), nil, &service.DefaultUUIDGenerator{})
			org, err := authSvc.CreateOrg(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to create organization: %w", err)
			}
			return emit(cmd, orgView(org), func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Organization created: %s (%s)\n", org.Name, org.ID)
				return err
			})
		}),
	}
	addOutputFlag(create)

	list := &cobra.Command{
		Use:   "list",
		Short: "List organizations",
		RunE: withPool(func(ctx context.Context, cmd *cobra.Command, _ []string, pool *pgxpool.Pool) error {
			orgs, err := repository.NewOrgRepository(pool).List(ctx)
			if err != nil {
				return fmt.Errorf("failed to list organizations: %w", err)
			}
			items := make([]map[string]any, len(orgs))
			for i, org := range orgs {
				items[i] = orgView(org)
			}
			return emit(cmd, map[string]any{"items": items}, func(w io.Writer) error {
				return writeOrgTable(w, orgs)
			})
		}),
	}
	addOutputFlag(list)

	cmd.AddCommand(create, list)
	return cmd
}

func orgView(org *domain.Organization) map[string]any {
	return map[string]any{"id": org.ID, "name": org.Name, "created_at": org.CreatedAt}
}

func writeOrgTable(w io.Writer, orgs []*domain.Organization) error {
	if len(orgs) == 0 {
		_, err := fmt.Fprintln(w, "No organizations found")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tCREATED")
	for _, org := range orgs {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", org.ID, org.Name, org.CreatedAt.Format(timeLayout))
	}
	return tw.Flush()
}
