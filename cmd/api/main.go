package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/WebOleg/new-clean-payment-plugin-sub000/internal/config"
)

var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string
	serve := serveCmd()
	root := &cobra.Command{
		Use:           "bna-gateway",
		Short:         "BNA Smart Payment session gateway",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.LoadEnvFile(envFile)
		},
		RunE: serve.RunE,
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	root.AddCommand(serve)
	root.AddCommand(migrateCmd())
	root.AddCommand(pingCmd())
	root.AddCommand(notesCmd())
	return root
}
