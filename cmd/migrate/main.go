package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"devvault.dev/internal/config"
	"devvault.dev/internal/migrate"
	"devvault.dev/internal/obs"
	"devvault.dev/internal/store/pg"
)

type options struct {
	dsn     string
	table   string
	timeout time.Duration
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:          "migrate",
		Short:        "Apply or inspect the DevVault database schema",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.dsn, "dsn", os.Getenv(config.EnvDSN), "PostgreSQL DSN (defaults to $"+config.EnvDSN+")")
	root.PersistentFlags().StringVar(&opts.table, "table", "schema_migrations", "bookkeeping table name")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "overall timeout")

	root.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply every pending migration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withManager(cmd.Context(), opts, func(ctx context.Context, m *migrate.Manager) error {
					applied, err := m.Up(ctx)
					if err != nil {
						return err
					}
					if len(applied) == 0 {
						fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
					}
					for _, name := range applied {
						fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", name)
					}
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withManager(cmd.Context(), opts, func(ctx context.Context, m *migrate.Manager) error {
					name, err := m.Down(ctx)
					if errors.Is(err, migrate.ErrNothingToRollback) {
						fmt.Fprintln(cmd.OutOrStdout(), "nothing to roll back")
						return nil
					}
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "rolled back %s\n", name)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "List migrations and whether they are applied",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withManager(cmd.Context(), opts, func(ctx context.Context, m *migrate.Manager) error {
					statuses, err := m.Status(ctx)
					if err != nil {
						return err
					}
					for _, s := range statuses {
						mark := "pending"
						if s.Applied {
							mark = "applied"
						}
						fmt.Fprintf(cmd.OutOrStdout(), "%-8s %s\n", mark, s.Name)
					}
					return nil
				})
			},
		},
	)
	return root
}

func withManager(parent context.Context, opts *options, fn func(context.Context, *migrate.Manager) error) error {
	if opts.dsn == "" {
		return fmt.Errorf("missing DSN: provide --dsn or %s", config.EnvDSN)
	}
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, opts.timeout)
	defer cancel()

	store, err := pg.Open(opts.dsn)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.WaitReady(ctx, 5); err != nil {
		return fmt.Errorf("database not reachable: %w", err)
	}

	m := migrate.NewManager(store.DB(), nil,
		migrate.WithMigrationsTable(opts.table),
		migrate.WithLogger(obs.Logger()),
	)
	return fn(ctx, m)
}
