// Package main is provisionctl, the operator CLI for the provisioner.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/kiranshivaraju/provisioner/internal/cache"
	"github.com/kiranshivaraju/provisioner/internal/config"
	"github.com/kiranshivaraju/provisioner/internal/queue"
	"github.com/kiranshivaraju/provisioner/internal/status"
	"github.com/kiranshivaraju/provisioner/internal/store"
	"github.com/kiranshivaraju/provisioner/internal/workspace"
	"github.com/kiranshivaraju/provisioner/pkg/requestid"
)

func main() {
	_ = godotenv.Load()

	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "provisionctl",
		Short:         "Operator utility for the terraform provisioner",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newMigrateCommand())
	cmd.AddCommand(newNormalizeCommand())
	cmd.AddCommand(newPurgeCommand())
	cmd.AddCommand(newJobCommand())
	cmd.AddCommand(newPruneCommand())
	return cmd
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func newMigrateCommand() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := store.RunMigrations(cfg.Database.URL, dir); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "migrations", "Directory containing migration files")
	return cmd
}

func newNormalizeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "normalize <device_id>",
		Short: "Print the request id a device id maps to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), requestid.Normalize(args[0]))
			return nil
		},
	}
}

func newPurgeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "purge <device_id>",
		Short: "Delete a request record, its resources and its cached status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			pool, err := store.Connect(ctx, cfg.Database)
			if err != nil {
				return fmt.Errorf("connect database: %w", err)
			}
			defer pool.Close()

			redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
			if err != nil {
				return fmt.Errorf("create redis cache: %w", err)
			}
			defer redisCache.Close()

			requestID := requestid.Normalize(args[0])
			rec := status.NewRecorder(store.NewPostgresStore(pool), redisCache)
			if err := rec.DeleteRequestTree(ctx, requestID); err != nil {
				return fmt.Errorf("purge request %d: %w", requestID, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged request %d\n", requestID)
			return nil
		},
	}
}

func newJobCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "job <job_id>",
		Short: "Print the queue state and result of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			client, err := queue.NewClient(cfg.Redis.URL, cfg.Queue.Name, cfg.Queue.ResultRetention)
			if err != nil {
				return fmt.Errorf("create queue client: %w", err)
			}
			defer client.Close()

			js, err := client.JobStatus(commandContext(cmd), args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(js)
		},
	}
}

func newPruneCommand() *cobra.Command {
	var (
		root      string
		olderThan time.Duration
	)

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove workspace directories not modified within --older-than",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if root == "" {
				if v := os.Getenv("TERRAFORM_ROOT"); v != "" {
					root = v
				} else {
					root = "terraform_templates"
				}
			}
			b, err := workspace.NewBuilder(root, workspace.Settings{})
			if err != nil {
				return err
			}
			report, err := b.Cleanup(commandContext(cmd), olderThan)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d workspace(s) from %s\n", report.DeletedDirs, root)
			return nil
		},
	}

	cmd.Flags().StringVar(&root, "root", "", "Workspace root (defaults to TERRAFORM_ROOT)")
	cmd.Flags().DurationVar(&olderThan, "older-than", 7*24*time.Hour, "Minimum age of workspaces to remove")
	return cmd
}
