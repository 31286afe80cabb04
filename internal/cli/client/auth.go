package client

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

// MeResponse mirrors GET /me.
type MeResponse struct {
	OrgID  string `json:"org_id"`
	UserID string `json:"user_id"`
	KeyID  string `json:"key_id"`
}

func AuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage authentication credentials",
	}

	cmd.AddCommand(authLoginCmd())
	cmd.AddCommand(authLogoutCmd())
	cmd.AddCommand(authStatusCmd())

	return cmd
}

func authLoginCmd() *cobra.Command {
	var apiKey, apiURL string
	var verify bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store an API key",
		Long:  "Store the API key and server URL in the user config directory (counsel/config.json)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if apiKey == "" {
				fmt.Fprint(cmd.ErrOrStderr(), "Enter API key: ")
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("failed to read API key: %w", err)
				}
				apiKey = strings.TrimSpace(line)
			}
			if verify {
				if _, err := fetchMe(cmd, NewAPIClientWithConfig(apiKey, apiURL)); err != nil {
					return fmt.Errorf("key rejected by %s: %w", apiURL, err)
				}
			}
			return runAuthLogin(cmd.OutOrStdout(), apiKey, apiURL)
		},
	}

	cmd.Flags().StringVar(&apiKey, "key", "", "API key (cns_...)")
	cmd.Flags().StringVar(&apiURL, "url", defaultAPIURL, "API URL")
	cmd.Flags().BoolVar(&verify, "verify", false, "Check the key against the server before storing it")

	return cmd
}

func authLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove stored credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := DeleteGlobalConfig(); err != nil {
				return fmt.Errorf("failed to logout: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Successfully logged out")
			return nil
		},
	}
}

func authStatusCmd() *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show authentication status",
		Long:  "Show where credentials come from and, with --check, who the server thinks you are",
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			flagKey, _ := cmd.Flags().GetString("api-key")
			flagURL, _ := cmd.Flags().GetString("api-url")

			creds, err := ResolveCredentials(flagKey, flagURL)
			if err != nil {
				return err
			}

			var me *MeResponse
			if check && creds.Found() {
				me, err = fetchMe(cmd, NewAPIClientWithConfig(creds.APIKey, creds.APIURL))
				if err != nil {
					return err
				}
			}

			if outputJSON {
				return writeStatusJSON(cmd.OutOrStdout(), creds, me)
			}
			writeStatusText(cmd.OutOrStdout(), creds, me)
			return nil
		},
	}

	cmd.Flags().BoolVar(&check, "check", false, "Verify the credentials against the server")

	return cmd
}

func runAuthLogin(out io.Writer, apiKey, apiURL string) error {
	if !IsValidAPIKey(apiKey) {
		return fmt.Errorf("invalid API key format (expected: cns_ + 64 hex characters)")
	}
	if err := SaveGlobalConfig(&GlobalConfig{APIKey: apiKey, APIURL: apiURL}); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	fmt.Fprintln(out, "Successfully logged in")
	return nil
}

func fetchMe(cmd *cobra.Command, c *APIClient) (*MeResponse, error) {
	var me MeResponse
	if err := c.Get(cmd.Context(), "/me", &me); err != nil {
		return nil, err
	}
	return &me, nil
}

func writeStatusJSON(out io.Writer, creds Credentials, me *MeResponse) error {
	status := map[string]any{
		"authenticated": creds.Found(),
		"source":        string(creds.Source),
	}
	if creds.Found() {
		status["api_key"] = maskAPIKey(creds.APIKey)
		status["api_url"] = creds.APIURL
	}
	if me != nil {
		status["org_id"] = me.OrgID
		status["user_id"] = me.UserID
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(status)
}

func writeStatusText(out io.Writer, creds Credentials, me *MeResponse) {
	if !creds.Found() {
		fmt.Fprintln(out, "Not authenticated")
		fmt.Fprintln(out, "Run 'counsel auth login' to authenticate")
		return
	}

	fmt.Fprintf(out, "Authenticated: yes\n")
	fmt.Fprintf(out, "Source: %s\n", creds.Source)
	fmt.Fprintf(out, "API Key: %s\n", maskAPIKey(creds.APIKey))
	fmt.Fprintf(out, "API URL: %s\n", creds.APIURL)
	if me != nil {
		fmt.Fprintf(out, "Organization: %s\n", me.OrgID)
		fmt.Fprintf(out, "User: %s\n", me.UserID)
	}
}

func maskAPIKey(key string) string {
	if len(key) < 12 {
		return "***"
	}
	return key[:8] + "..." + key[len(key)-4:]
}
