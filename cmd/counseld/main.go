package main

import (
	"fmt"
	"os"

	"github.com/cloo-solutions/counsel/internal/cli"
	"github.com/cloo-solutions/counsel/internal/cli/admin"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "counseld",
		Short: "Counsel daemon and admin CLI",
		Long:  "Counsel daemon for running the API server and managing organizations, API keys, projects and knowledge sources",
	}

	cli.AddHelpJSONFlag(rootCmd)
	rootCmd.AddCommand(admin.ServeCmd())
	rootCmd.AddCommand(admin.OrgCmd())
	rootCmd.AddCommand(admin.APIKeyCmd())
	rootCmd.AddCommand(admin.ProjectCmd())
	rootCmd.AddCommand(admin.SourcesCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
