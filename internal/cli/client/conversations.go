package client

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

type conversationSummary struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id,omitempty"`
	OwnerID   string `json:"owner_id"`
	Title     string `json:"title"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type conversationPage struct {
	Items   []conversationSummary `json:"items"`
	Cursor  string                `json:"cursor,omitempty"`
	HasMore bool                  `json:"has_more"`
}

type conversationMessage struct {
	ID        string     `json:"id"`
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	Citations []citation `json:"citations"`
	Model     string     `json:"model,omitempty"`
	CreatedAt string     `json:"created_at"`
}

type conversationDetail struct {
	conversationSummary
	Messages []conversationMessage `json:"messages"`
}

func ConversationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"conv"},
		Short:   "Browse conversation history",
	}

	cmd.AddCommand(conversationsListCmd())
	cmd.AddCommand(conversationsShowCmd())

	return cmd
}

func conversationsListCmd() *cobra.Command {
	var limit int
	var cursor string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List conversations you can access, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			q := url.Values{}
			if limit > 0 {
				q.Set("limit", strconv.Itoa(limit))
			}
			if cursor != "" {
				q.Set("cursor", cursor)
			}
			path := "/conversations"
			if len(q) > 0 {
				path += "?" + q.Encode()
			}

			var page conversationPage
			if err := c.Get(cmd.Context(), path, &page); err != nil {
				return err
			}

			if outputJSON, _ := cmd.Flags().GetBool("output"); outputJSON {
				return writeJSON(cmd.OutOrStdout(), page)
			}
			writeConversationTable(cmd.OutOrStdout(), page)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of conversations")
	cmd.Flags().StringVar(&cursor, "cursor", "", "Continue from a previous page")

	return cmd
}

func conversationsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <conversation-id>",
		Short: "Print a conversation with all messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			var detail conversationDetail
			if err := c.Get(cmd.Context(), "/conversations/"+url.PathEscape(args[0]), &detail); err != nil {
				return err
			}

			if outputJSON, _ := cmd.Flags().GetBool("output"); outputJSON {
				return writeJSON(cmd.OutOrStdout(), detail)
			}
			writeTranscript(cmd.OutOrStdout(), detail)
			return nil
		},
	}
}

func writeConversationTable(out io.Writer, page conversationPage) {
	if len(page.Items) == 0 {
		fmt.Fprintln(out, "No conversations")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUPDATED\tPROJECT\tTITLE")
	for _, c := range page.Items {
		project := c.ProjectID
		if project == "" {
			project = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.ID, c.UpdatedAt, project, c.Title)
	}
	_ = w.Flush()

	if page.HasMore {
		fmt.Fprintf(out, "\nMore results: --cursor %s\n", page.Cursor)
	}
}

func writeTranscript(out io.Writer, detail conversationDetail) {
	fmt.Fprintf(out, "# %s\n", detail.Title)
	for _, m := range detail.Messages {
		fmt.Fprintf(out, "\n[%s] %s\n", strings.ToUpper(m.Role), m.CreatedAt)
		fmt.Fprintln(out, m.Content)
		for _, c := range m.Citations {
			mark := "✓"
			if !c.Verified {
				mark = "?"
			}
			fmt.Fprintf(out, "  %s %s\n", mark, c.Identifier)
		}
	}
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
