// cmd/scanapi/main.go
// scanapi - nmap scan-job gateway

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/aspnmy/scanapi/internal/core"
	"github.com/aspnmy/scanapi/internal/target"
	"github.com/aspnmy/scanapi/pkg/logger"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// persistent flag -> config key
var globalKeys = map[string]string{
	"log-level":  "log.level",
	"log-format": "log.format",
	"log-file":   "log.file",
	"db":         "database.sqlite",
}

var configFile string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "scanapi",
		Short: "nmap scan-job gateway",
		Long: `scanapi runs nmap scans as managed jobs behind an HTTP API.

Configuration priority: defaults < config file < SCANAPI_ environment < flags.
Environment keys use "__" between sections, e.g. SCANAPI_SCANNER__WORKERS=8.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&configFile, "config", "c", "", "Path to YAML config file")
	pf.String("log-level", "info", "Log level: debug, info, warn, error")
	pf.String("log-format", "console", "Log format: console, json")
	pf.String("log-file", "", "Log file (default stderr)")
	pf.String("db", "", "SQLite job archive path")

	root.AddCommand(newServeCmd())
	root.AddCommand(newScanCmd())
	root.AddCommand(newProfilesCmd())
	root.AddCommand(newJobsCmd())
	root.AddCommand(newVersionCmd())

	return root
}

// loadConfig layers changed flags over file and environment, then
// initializes the global logger
func loadConfig(cmd *cobra.Command, keys map[string]string) (*core.Config, error) {
	overrides := make(map[string]interface{})
	cmd.Flags().Visit(func(f *pflag.Flag) {
		if key, ok := globalKeys[f.Name]; ok {
			overrides[key] = f.Value.String()
		}
		if key, ok := keys[f.Name]; ok {
			overrides[key] = f.Value.String()
		}
	})

	cfg, err := core.Load(configFile, overrides)
	if err != nil {
		return nil, err
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	}); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, nil
}

func newValidator(cfg *core.Config) *target.Validator {
	policy := target.Policy{
		MaxHosts:         cfg.Targets.MaxHosts,
		AllowPublic:      cfg.Targets.AllowPublic,
		ResolveHostnames: cfg.Targets.ResolveHostnames,
	}

	var resolver target.Resolver
	if cfg.Targets.ResolveHostnames {
		resolver = target.NewDNSResolver(cfg.Targets.Nameserver, cfg.Targets.ResolveTimeout)
	}
	return target.NewValidator(policy, resolver)
}
