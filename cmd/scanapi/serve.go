// cmd/scanapi/serve.go

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/aspnmy/scanapi/internal/api"
	"github.com/aspnmy/scanapi/internal/app"
	"github.com/aspnmy/scanapi/internal/archive"
	"github.com/aspnmy/scanapi/internal/core"
	"github.com/aspnmy/scanapi/internal/output"
	"github.com/aspnmy/scanapi/internal/scanner"
	"github.com/aspnmy/scanapi/pkg/logger"
	"github.com/aspnmy/scanapi/pkg/ratelimit"
)

var serveKeys = map[string]string{
	"addr":        "server.addr",
	"workers":     "scanner.workers",
	"queue-depth": "scanner.queue_depth",
	"timeout":     "scanner.timeout",
	"binary":      "scanner.binary",
	"audit-log":   "output.audit_log",
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP scan gateway",
		Example: `  scanapi serve --addr :5000 --workers 8
  SCANAPI_TARGETS__ALLOW_PUBLIC=false scanapi serve --db jobs.db`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, serveKeys)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			logger.Info("Starting scanapi",
				logger.String("version", version),
				logger.String("commit", commit),
			)
			core.Print(cfg)

			return runServe(cfg)
		},
	}

	f := cmd.Flags()
	f.String("addr", ":5000", "Listen address")
	f.Int("workers", 4, "Concurrent nmap processes")
	f.Int("queue-depth", 16, "Jobs waiting for a worker before submissions are rejected")
	f.Duration("timeout", 10*time.Minute, "Per-scan timeout")
	f.String("binary", "nmap", "Path to the nmap binary")
	f.String("audit-log", "", "Append finished jobs to this JSONL file")

	return cmd
}

// buildDeps builds the orchestrator dependencies shared by serve and scan.
// Cleanup steps are registered on sd.
func buildDeps(cfg *core.Config, sd *shutdownManager) (app.Deps, error) {
	deps := app.Deps{
		Executor: scanner.NewNmapRunner(scanner.Config{
			Binary:         cfg.Scanner.Binary,
			KillGrace:      cfg.Scanner.KillGrace,
			MaxOutputBytes: cfg.Scanner.MaxOutputBytes,
		}),
		Validator: newValidator(cfg),
	}

	if cfg.Database.SQLite != "" {
		store, err := archive.NewStore(cfg.Database.SQLite)
		if err != nil {
			return deps, fmt.Errorf("failed to open job archive: %w", err)
		}
		deps.Archive = store
		sd.Register(func(context.Context) error { return store.Close() })
	}

	if cfg.Output.AuditLog != "" {
		audit, err := output.NewJSONLFormatter(cfg.Output.AuditLog)
		if err != nil {
			return deps, fmt.Errorf("failed to open audit log: %w", err)
		}
		deps.Audit = audit
		sd.Register(func(context.Context) error { return audit.Close() })
	}

	return deps, nil
}

func orchestratorOptions(cfg *core.Config) app.Options {
	return app.Options{
		Workers:     cfg.Scanner.Workers,
		QueueDepth:  cfg.Scanner.QueueDepth,
		Timeout:     cfg.Scanner.Timeout,
		Retention:   cfg.Scanner.Retention,
		MaxRetained: cfg.Scanner.MaxRetained,
	}
}

func runServe(cfg *core.Config) error {
	sd := newShutdownManager(cfg.Server.ShutdownTimeout)

	deps, err := buildDeps(cfg, sd)
	if err != nil {
		_ = sd.Shutdown(context.Background())
		return err
	}

	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.New(ratelimit.Config{Rate: cfg.RateLimit.Rate, Burst: cfg.RateLimit.Burst})
		sd.Register(func(context.Context) error {
			limiter.Stop()
			return nil
		})
	}

	orch := app.New(orchestratorOptions(cfg), deps)

	handler := api.NewServer(orch, limiter, api.Config{
		CORSOrigins:  cfg.Server.CORSOrigins,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		IncludeRaw:   cfg.Output.IncludeRaw,
	}).Handler()

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
	}

	// LIFO: cancel jobs first so synchronous handlers return, then drain
	// the listener, then close sinks
	sd.Register(srv.Shutdown)
	sd.Register(orch.Shutdown)

	return sd.Run(func(ctx context.Context) error {
		errCh := make(chan error, 1)
		go func() {
			logger.Info("HTTP server listening", logger.String("addr", cfg.Server.Addr))
			errCh <- srv.ListenAndServe()
		}()

		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		}
	})
}
