// cmd/scanapi/jobs.go
// Inspection of the SQLite job archive

package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/aspnmy/scanapi/internal/archive"
	"github.com/aspnmy/scanapi/internal/models"
	"github.com/aspnmy/scanapi/internal/output"
)

func newJobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect archived scan jobs (requires --db)",
	}

	cmd.AddCommand(newJobsListCmd())
	cmd.AddCommand(newJobsShowCmd())
	cmd.AddCommand(newJobsDeleteCmd())
	cmd.AddCommand(newJobsPruneCmd())

	return cmd
}

// withArchive loads config, opens the archive and runs fn
func withArchive(cmd *cobra.Command, fn func(ctx context.Context, store *archive.Store) error) error {
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}
	if cfg.Database.SQLite == "" {
		return fmt.Errorf("no job archive configured: set --db or database.sqlite")
	}

	store, err := archive.NewStore(cfg.Database.SQLite)
	if err != nil {
		return err
	}
	defer store.Close()

	return fn(cmd.Context(), store)
}

func newJobsListCmd() *cobra.Command {
	var (
		status string
		limit  int
		format string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List archived jobs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			printer, err := output.NewPrinter(format, true, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			return withArchive(cmd, func(ctx context.Context, store *archive.Store) error {
				jobs, err := store.List(ctx, models.JobStatus(status), limit)
				if err != nil {
					return err
				}
				return printer.Jobs(jobs)
			})
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Only jobs with this status")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum jobs to list")
	cmd.Flags().StringVarP(&format, "output", "o", output.FormatTable, "Output format: table, json, csv")

	return cmd
}

func newJobsShowCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show an archived job and its result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			printer, err := output.NewPrinter(format, true, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			return withArchive(cmd, func(ctx context.Context, store *archive.Store) error {
				job, err := store.Load(ctx, args[0])
				if err != nil {
					return err
				}

				if format == output.FormatTable {
					w := cmd.OutOrStdout()
					fmt.Fprintf(w, "Job:     %s\n", job.Request.ID)
					fmt.Fprintf(w, "Target:  %s\n", job.Request.Target)
					fmt.Fprintf(w, "Type:    %s\n", job.Request.Profile)
					fmt.Fprintf(w, "Args:    %s\n", strings.Join(job.Args, " "))
					fmt.Fprintf(w, "Status:  %s\n", job.Status)
					fmt.Fprintf(w, "Created: %s\n\n", job.Request.CreatedAt.Local().Format(time.DateTime))
				}
				if job.Outcome == nil {
					return nil
				}
				return printer.Outcome(job.Outcome)
			})
		},
	}
	cmd.Flags().StringVarP(&format, "output", "o", output.FormatTable, "Output format: table, json, csv")

	return cmd
}

func newJobsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <job-id>",
		Short: "Delete an archived job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withArchive(cmd, func(ctx context.Context, store *archive.Store) error {
				if err := store.Delete(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Job %s deleted\n", args[0])
				return nil
			})
		},
	}
}

func newJobsPruneCmd() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete archived jobs that finished before --older-than",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withArchive(cmd, func(ctx context.Context, store *archive.Store) error {
				n, err := store.Prune(ctx, olderThan)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d job(s)\n", n)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "Age threshold")

	return cmd
}
