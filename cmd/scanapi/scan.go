// cmd/scanapi/scan.go

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aspnmy/scanapi/internal/app"
	"github.com/aspnmy/scanapi/internal/models"
	"github.com/aspnmy/scanapi/internal/output"
	"github.com/aspnmy/scanapi/pkg/logger"
)

var scanKeys = map[string]string{
	"timeout":   "scanner.timeout",
	"binary":    "scanner.binary",
	"audit-log": "output.audit_log",
}

type scanOptions struct {
	scanType   string
	customArgs string
	format     string
	noColor    bool
}

func newScanCmd() *cobra.Command {
	var opts scanOptions

	cmd := &cobra.Command{
		Use:   "scan <target>",
		Short: "Run one scan locally and print the result",
		Example: `  scanapi scan 192.168.1.1
  scanapi scan 10.0.0.0/24 --type service -o json
  scanapi scan scanme.nmap.org --type custom --args "-sV -p22,80"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			printer, err := output.NewPrinter(opts.format, !opts.noColor, cmd.OutOrStdout())
			if err != nil {
				return err
			}

			cfg, err := loadConfig(cmd, scanKeys)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sd := newShutdownManager(cfg.Server.ShutdownTimeout)
			defer sd.Shutdown(context.Background()) //nolint:errcheck

			deps, err := buildDeps(cfg, sd)
			if err != nil {
				return err
			}

			// one job: a single worker with room for it in the queue
			appOpts := orchestratorOptions(cfg)
			appOpts.Workers = 1
			appOpts.QueueDepth = 1
			orch := app.New(appOpts, deps)
			sd.Register(orch.Shutdown)

			req := models.ScanRequest{
				Target:     args[0],
				Profile:    models.ProfileID(opts.scanType),
				CustomArgs: opts.customArgs,
			}
			outcome, err := runOne(ctx, orch, req)
			if err != nil {
				return err
			}

			if err := printer.Outcome(outcome); err != nil {
				return err
			}
			if outcome.Status != models.StatusSucceeded {
				return fmt.Errorf("scan %s", outcome.Status)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.scanType, "type", "t", string(models.ProfileQuick), "Scan type (see 'scanapi profiles')")
	f.StringVarP(&opts.customArgs, "args", "a", "", "Arguments for the custom scan type")
	f.StringVarP(&opts.format, "output", "o", output.FormatTable, "Output format: table, json, csv")
	f.BoolVar(&opts.noColor, "no-color", false, "Disable colored output")
	f.Duration("timeout", 10*time.Minute, "Scan timeout")
	f.String("binary", "nmap", "Path to the nmap binary")
	f.String("audit-log", "", "Append the finished job to this JSONL file")

	return cmd
}

// runOne submits req and waits for it. An interrupt cancels the job and
// returns its cancelled outcome.
func runOne(ctx context.Context, orch *app.Orchestrator, req models.ScanRequest) (*models.ScanOutcome, error) {
	id, err := orch.Submit(ctx, req)
	if err != nil {
		return nil, err
	}
	logger.Debug("Scan submitted", logger.JobID(id))

	outcome, err := orch.Wait(ctx, id)
	if err == nil {
		return outcome, nil
	}
	if ctx.Err() == nil {
		return nil, err
	}

	logger.Warn("Interrupted, cancelling scan", logger.JobID(id))
	if err := orch.Cancel(context.Background(), id); err != nil {
		logger.Debug("Cancel after interrupt", logger.Err(err))
	}
	return orch.Result(context.Background(), id)
}
