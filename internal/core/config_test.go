// internal/core/config_test.go

package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, "nmap", cfg.Scanner.Binary)
	assert.Equal(t, 4, cfg.Scanner.Workers)
	assert.Equal(t, 16, cfg.Scanner.QueueDepth)
	assert.Equal(t, 10*time.Minute, cfg.Scanner.Timeout)
	assert.Equal(t, uint64(65536), cfg.Targets.MaxHosts)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.CORSOrigins)
	assert.Same(t, cfg, Get())
}

func TestLoad_Precedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scanapi.yaml")
	yml := `
scanner:
  workers: 8
  queue_depth: 2
  timeout: 90s
targets:
  allow_public: false
log:
  format: json
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))

	t.Setenv("SCANAPI_SCANNER__QUEUE_DEPTH", "5")
	t.Setenv("SCANAPI_SERVER__ADDR", ":9000")

	cfg, err := Load(path, map[string]interface{}{
		"server.addr": ":7000",
	})
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Scanner.Workers, "file overrides defaults")
	assert.Equal(t, 5, cfg.Scanner.QueueDepth, "env overrides file")
	assert.Equal(t, ":7000", cfg.Server.Addr, "flags override env")
	assert.Equal(t, 90*time.Second, cfg.Scanner.Timeout)
	assert.False(t, cfg.Targets.AllowPublic)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 5*time.Second, cfg.Scanner.KillGrace, "untouched defaults survive")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero workers", func(c *Config) { c.Scanner.Workers = 0 }},
		{"negative queue", func(c *Config) { c.Scanner.QueueDepth = -1 }},
		{"tiny timeout", func(c *Config) { c.Scanner.Timeout = time.Millisecond }},
		{"no binary", func(c *Config) { c.Scanner.Binary = "" }},
		{"tiny output cap", func(c *Config) { c.Scanner.MaxOutputBytes = 10 }},
		{"no retention", func(c *Config) { c.Scanner.Retention = 0 }},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }},
		{"resolve without nameserver", func(c *Config) {
			c.Targets.ResolveHostnames = true
			c.Targets.Nameserver = ""
		}},
		{"zero rate", func(c *Config) { c.RateLimit.Rate = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, Validate(&cfg))
		})
	}

	cfg := Default()
	assert.NoError(t, Validate(&cfg))
}
