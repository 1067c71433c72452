package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/WebOleg/new-clean-payment-plugin-sub000/internal/bna"
	"github.com/WebOleg/new-clean-payment-plugin-sub000/internal/di"
	"github.com/WebOleg/new-clean-payment-plugin-sub000/internal/repository"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := di.InitializeApp()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			runErr := make(chan error, 1)
			go func() { runErr <- a.Run(ctx) }()

			select {
			case err := <-runErr:
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				return errors.Join(err, a.Shutdown(shutdownCtx))
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := a.Shutdown(shutdownCtx); err != nil {
				return err
			}
			return <-runErr
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			runner, err := di.InitializeMigrationRunner()
			if err != nil {
				return err
			}
			return runner.Run()
		},
	}
}

func pingCmd() *cobra.Command {
	var accessKey, secretKey, environment string
	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Check that the configured (or given) credentials reach the payment api",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := di.InitializeConnectionService()
			if err != nil {
				return err
			}
			var override *bna.Credentials
			if accessKey != "" || secretKey != "" {
				creds := bna.Credentials{AccessKey: accessKey, SecretKey: secretKey}
				if environment != "" {
					env, ok := bna.ParseEnvironment(environment)
					if !ok {
						return fmt.Errorf("unknown environment %q", environment)
					}
					creds.Environment = env
				}
				override = &creds
			}
			if !svc.Test(cmd.Context(), override) {
				return errors.New("payment api not reachable with these credentials")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "connected")
			return nil
		},
	}
	cmd.Flags().StringVar(&accessKey, "access-key", "", "temporary access key")
	cmd.Flags().StringVar(&secretKey, "secret-key", "", "temporary secret key")
	cmd.Flags().StringVar(&environment, "environment", "", "environment for the temporary credentials")
	return cmd
}

func notesCmd() *cobra.Command {
	var page, pageSize int
	cmd := &cobra.Command{
		Use:   "notes <order-id>",
		Short: "Print the payment notes recorded on an order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orderID, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil || orderID == 0 {
				return fmt.Errorf("invalid order id %q", args[0])
			}
			orders, err := di.InitializeOrderRepository()
			if err != nil {
				return err
			}
			notes, err := orders.ListNotes(cmd.Context(), uint(orderID), repository.PageRequest{Page: page, PageSize: pageSize})
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(notes)
		},
	}
	cmd.Flags().IntVar(&page, "page", repository.DefaultPage, "page number")
	cmd.Flags().IntVar(&pageSize, "page-size", repository.DefaultPageSize, "notes per page")
	return cmd
}
