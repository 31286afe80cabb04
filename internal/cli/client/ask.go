package client

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

type askRequest struct {
	ConversationID string   `json:"conversation_id,omitempty"`
	ProjectID      string   `json:"project_id,omitempty"`
	Message        string   `json:"message"`
	DocumentIDs    []string `json:"document_ids,omitempty"`
	Anonymize      bool     `json:"anonymize,omitempty"`
	Model          string   `json:"model,omitempty"`
	UseKnowledge   *bool    `json:"use_knowledge,omitempty"`
}

type citation struct {
	Identifier string `json:"identifier"`
	Source     string `json:"source,omitempty"`
	Verified   bool   `json:"verified"`
}

type doneEvent struct {
	MessageID          string     `json:"message_id"`
	Citations          []citation `json:"citations"`
	Sources            []string   `json:"sources"`
	Model              string     `json:"model"`
	UsedExternalSearch bool       `json:"used_external_search"`
	Warnings           []string   `json:"warnings"`
}

type textEvent struct {
	Text    string `json:"text"`
	Message string `json:"message"`
}

// askResult is what --output prints once the stream completes.
type askResult struct {
	ConversationID string `json:"conversation_id"`
	Answer         string `json:"answer"`
	doneEvent
}

func AskCmd() *cobra.Command {
	var req askRequest
	var showThinking bool

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask the legal assistant a question",
		Long: `Send a question and stream the answer to stdout.

Pass "-" as the question to read it from stdin. Progress messages go to stderr.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question, err := readQuestion(args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			req.Message = question

			if cmd.Flags().Changed("knowledge") {
				use, _ := cmd.Flags().GetBool("knowledge")
				req.UseKnowledge = &use
			}

			c, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			outputJSON, _ := cmd.Flags().GetBool("output")
			return runAsk(cmd, c, req, outputJSON, showThinking)
		},
	}

	cmd.Flags().StringVarP(&req.ConversationID, "conversation", "c", "", "Continue an existing conversation")
	cmd.Flags().StringVarP(&req.ProjectID, "project", "p", "", "File a new conversation under a project")
	cmd.Flags().StringSliceVarP(&req.DocumentIDs, "document", "d", nil, "Attach an uploaded document (repeatable)")
	cmd.Flags().BoolVar(&req.Anonymize, "anonymize", false, "Mask personal data before it reaches the model")
	cmd.Flags().StringVarP(&req.Model, "model", "m", "", "Model to answer with")
	cmd.Flags().Bool("knowledge", false, "Force knowledge-base retrieval on or off")
	cmd.Flags().BoolVar(&showThinking, "thinking", false, "Print the model's reasoning trace to stderr")

	return cmd
}

func readQuestion(args []string, stdin io.Reader) (string, error) {
	question := strings.Join(args, " ")
	if question == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read question: %w", err)
		}
		question = string(data)
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return "", fmt.Errorf("question is empty")
	}
	return question, nil
}

func runAsk(cmd *cobra.Command, c *APIClient, req askRequest, outputJSON, showThinking bool) error {
	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()

	var answer strings.Builder
	var done *doneEvent
	var streamErr string

	conversationID, err := c.Stream(cmd.Context(), "/chat", req, func(ev StreamEvent) error {
		switch ev.Type {
		case "delta":
			var d textEvent
			if err := json.Unmarshal(ev.Raw, &d); err != nil {
				return err
			}
			answer.WriteString(d.Text)
			if !outputJSON {
				fmt.Fprint(out, d.Text)
			}
		case "thinking":
			if showThinking {
				var d textEvent
				if err := json.Unmarshal(ev.Raw, &d); err == nil {
					fmt.Fprint(errOut, d.Text)
				}
			}
		case "status":
			var s textEvent
			if err := json.Unmarshal(ev.Raw, &s); err == nil && !outputJSON {
				fmt.Fprintf(errOut, "… %s\n", s.Message)
			}
		case "done":
			done = &doneEvent{}
			if err := json.Unmarshal(ev.Raw, done); err != nil {
				return err
			}
		case "error":
			var e textEvent
			_ = json.Unmarshal(ev.Raw, &e)
			streamErr = e.Message
		}
		return nil
	})
	if err != nil {
		return err
	}
	if streamErr != "" {
		if !outputJSON {
			fmt.Fprintln(out)
		}
		return fmt.Errorf("answer failed: %s (conversation %s)", streamErr, conversationID)
	}
	if done == nil {
		return fmt.Errorf("stream completed without a result")
	}

	if outputJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(askResult{ConversationID: conversationID, Answer: answer.String(), doneEvent: *done})
	}

	fmt.Fprintln(out)
	writeAnswerFooter(errOut, conversationID, done)
	return nil
}

func writeAnswerFooter(w io.Writer, conversationID string, done *doneEvent) {
	fmt.Fprintln(w)
	if len(done.Sources) > 0 {
		fmt.Fprintf(w, "Sources: %s\n", strings.Join(done.Sources, "; "))
	}
	for _, c := range done.Citations {
		mark := "✓"
		if !c.Verified {
			mark = "?"
		}
		fmt.Fprintf(w, "  %s %s\n", mark, c.Identifier)
	}
	for _, warning := range done.Warnings {
		fmt.Fprintf(w, "Warning: %s\n", warning)
	}
	fmt.Fprintf(w, "Conversation: %s (%s)\n", conversationID, done.Model)
}
