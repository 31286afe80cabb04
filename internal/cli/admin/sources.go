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
)

func SourcesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "Inspect knowledge sources",
		Long:  "List ingested knowledge sources and toggle whether retrieval may use them",
	}

	cmd.AddCommand(sourcesListCmd())
	cmd.AddCommand(sourcesSetActiveCmd("activate", true))
	cmd.AddCommand(sourcesSetActiveCmd("deactivate", false))

	return cmd
}

func sourcesListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List knowledge sources with their chunk counts",
		RunE: withPool(func(ctx context.Context, cmd *cobra.Command, _ []string, pool *pgxpool.Pool) error {
			repo := repository.NewKnowledgeSourceRepository(pool)
			sources, err := repo.ListAll(ctx)
			if err != nil {
				return fmt.Errorf("failed to list sources: %w", err)
			}
			ids := make([]string, len(sources))
			for i, s := range sources {
				ids[i] = s.ID
			}
			counts, err := repo.CountChunks(ctx, ids)
			if err != nil {
				return fmt.Errorf("failed to count chunks: %w", err)
			}

			items := make([]map[string]any, len(sources))
			for i, s := range sources {
				items[i] = map[string]any{
					"id":          s.ID,
					"name":        s.Name,
					"category":    s.Category,
					"active":      s.Active,
					"processed":   s.Processed,
					"has_summary": s.HasSummary(),
					"chunks":      counts[s.ID],
				}
			}
			return emit(cmd, map[string]any{"items": items}, func(w io.Writer) error {
				return writeSourceTable(w, sources, counts)
			})
		}),
	}
	addOutputFlag(cmd)
	return cmd
}

func writeSourceTable(w io.Writer, sources []*domain.KnowledgeSource, counts map[string]int) error {
	if len(sources) == 0 {
		_, err := fmt.Fprintln(w, "No knowledge sources found")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tCATEGORY\tACTIVE\tPROCESSED\tCHUNKS")
	for _, s := range sources {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%t\t%d\n", s.ID, s.Name, s.Category, s.Active, s.Processed, counts[s.ID])
	}
	return tw.Flush()
}

func sourcesSetActiveCmd(use string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <source-id>",
		Short: fmt.Sprintf("Mark a knowledge source as %sd", use),
		Args:  cobra.ExactArgs(1),
		RunE: withPool(func(ctx context.Context, cmd *cobra.Command, args []string, pool *pgxpool.Pool) error {
			if err := repository.NewKnowledgeSourceRepository(pool).SetActive(ctx, args[0], active); err != nil {
				return fmt.Errorf("failed to %s source: %w", use, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Source %s %sd\n", args[0], use)
			return nil
		}),
	}
}
