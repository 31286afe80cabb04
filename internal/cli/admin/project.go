package admin

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/cloo-solutions/counsel/internal/domain"
	"github.com/cloo-solutions/counsel/internal/repository"
)

func ProjectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Manage projects and their members",
		Long:  "Projects group conversations of a matter. Members may read and continue each other's conversations in the project.",
	}

	cmd.AddCommand(projectCreateCmd())
	cmd.AddCommand(projectListCmd())
	cmd.AddCommand(projectMemberCmd("add-member", "Grant a user access to a project", "added to",
		(*repository.ProjectRepository).AddMember))
	cmd.AddCommand(projectMemberCmd("remove-member", "Revoke a user's access to a project", "removed from",
		(*repository.ProjectRepository).RemoveMember))

	return cmd
}

func projectCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a project",
		Args:  cobra.ExactArgs(1),
		RunE: withPool(func(ctx context.Context, cmd *cobra.Command, args []string, pool *pgxpool.Pool) error {
			orgRef, _ := cmd.Flags().GetString("org")
			members, _ := cmd.Flags().GetStringSlice("member")

			orgID, err := resolveOrgID(ctx, repository.NewOrgRepository(pool), orgRef)
			if err != nil {
				return err
			}

			project := domain.NewProject(uuid.NewString(), orgID, args[0], time.Now().UTC())
			if err := domain.ValidateProject(project); err != nil {
				return err
			}

			projects := repository.NewProjectRepository(pool)
			if err := projects.Create(ctx, project); err != nil {
				return fmt.Errorf("failed to create project: %w", err)
			}
			for _, userID := range members {
				if err := projects.AddMember(ctx, project.ID, userID); err != nil {
					return fmt.Errorf("failed to add member %s: %w", userID, err)
				}
			}

			view := map[string]any{"id": project.ID, "name": project.Name, "members": members}
			return emit(cmd, view, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Project created: %s (%s)\n", project.Name, project.ID)
				return err
			})
		}),
	}

	cmd.Flags().StringP("org", "o", "", "Organization ID or name (required)")
	cmd.Flags().StringSlice("member", nil, "User to add as member (repeatable)")
	addOutputFlag(cmd)
	_ = cmd.MarkFlagRequired("org")

	return cmd
}

func projectListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the projects of an organization",
		RunE: withPool(func(ctx context.Context, cmd *cobra.Command, _ []string, pool *pgxpool.Pool) error {
			orgRef, _ := cmd.Flags().GetString("org")

			orgID, err := resolveOrgID(ctx, repository.NewOrgRepository(pool), orgRef)
			if err != nil {
				return err
			}

			projectRepo := repository.NewProjectRepository(pool)
			projects, err := projectRepo.ListByOrg(ctx, orgID)
			if err != nil {
				return fmt.Errorf("failed to list projects: %w", err)
			}

			items := make([]map[string]any, 0, len(projects))
			for _, p := range projects {
				members, err := projectRepo.ListMembers(ctx, p.ID)
				if err != nil {
					return err
				}
				userIDs := make([]string, len(members))
				for i, m := range members {
					userIDs[i] = m.UserID
				}
				items = append(items, map[string]any{"id": p.ID, "name": p.Name, "members": userIDs})
			}

			return emit(cmd, map[string]any{"items": items}, func(w io.Writer) error {
				if len(items) == 0 {
					_, err := fmt.Fprintln(w, "No projects found")
					return err
				}
				for _, item := range items {
					fmt.Fprintf(w, "  %s: %s %v\n", item["id"], item["name"], item["members"])
				}
				return nil
			})
		}),
	}

	cmd.Flags().StringP("org", "o", "", "Organization ID or name (required)")
	addOutputFlag(cmd)
	_ = cmd.MarkFlagRequired("org")

	return cmd
}

type memberOp func(r *repository.ProjectRepository, ctx context.Context, projectID, userID string) error

func projectMemberCmd(use, short, verb string, op memberOp) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <project-id> <user-id>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: withPool(func(ctx context.Context, cmd *cobra.Command, args []string, pool *pgxpool.Pool) error {
			if err := op(repository.NewProjectRepository(pool), ctx, args[0], args[1]); err != nil {
				return fmt.Errorf("%s failed: %w", use, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s project %s\n", args[1], verb, args[0])
			return nil
		}),
	}
}
