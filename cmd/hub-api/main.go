package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/contracthub-dev/contracthub/internal/hub"
	"github.com/contracthub-dev/contracthub/internal/version"
)

func main() {
	root := &cobra.Command{
		Use:           "hub-api",
		Short:         "Contract Hub API server",
		Long:          "Serves the Contract Hub API: template catalog, binary staging, and the deployment workflow.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return hub.App(cmd.Context())
		},
	}

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("hub-api %s (commit %s, built %s)\n", version.Version, version.GitCommit, version.BuildDate)
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
