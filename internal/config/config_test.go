package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "alertd.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	yaml := `
server:
  listen: 127.0.0.1:9999
poller:
  interval: 30s
  symbols_file: testdata/stocks.txt
storage:
  driver: postgres
  postgres:
    host: localhost
    port: 5432
    name: stockwatch
    user: testuser
    password: testpass
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Listen != "127.0.0.1:9999" {
		t.Errorf("Server.Listen = %q, want %q", cfg.Server.Listen, "127.0.0.1:9999")
	}
	if cfg.Poller.Interval != 30*time.Second {
		t.Errorf("Poller.Interval = %v, want 30s", cfg.Poller.Interval)
	}
	if cfg.Storage.Postgres.Host != "localhost" {
		t.Errorf("Storage.Postgres.Host = %q, want %q", cfg.Storage.Postgres.Host, "localhost")
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_DB_PASSWORD", "secret123")

	yaml := `
storage:
  driver: postgres
  postgres:
    host: localhost
    name: stockwatch
    user: testuser
    password: ${TEST_DB_PASSWORD}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Storage.Postgres.Password != "secret123" {
		t.Errorf("Password = %q, want %q", cfg.Storage.Postgres.Password, "secret123")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	path := writeTempFile(t, "storage:\n  driver: memory\n")

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if cfg.Server.Listen != DefaultListen {
		t.Errorf("Server.Listen = %q, want default %q", cfg.Server.Listen, DefaultListen)
	}
	if cfg.Poller.Interval != DefaultPollInterval {
		t.Errorf("Poller.Interval = %v, want default %v", cfg.Poller.Interval, DefaultPollInterval)
	}
	if cfg.Poller.Concurrency != DefaultPollConcurrency {
		t.Errorf("Poller.Concurrency = %d, want default %d", cfg.Poller.Concurrency, DefaultPollConcurrency)
	}
	if cfg.Quote.BaseURL != DefaultQuoteBaseURL {
		t.Errorf("Quote.BaseURL = %q, want default %q", cfg.Quote.BaseURL, DefaultQuoteBaseURL)
	}
	if cfg.History.BatchSize != DefaultHistoryBatchSize {
		t.Errorf("History.BatchSize = %d, want default %d", cfg.History.BatchSize, DefaultHistoryBatchSize)
	}
}

func TestLoadAndValidate_MemoryDriver(t *testing.T) {
	path := writeTempFile(t, "storage:\n  driver: memory\n")

	if _, err := LoadAndValidate(path); err != nil {
		t.Fatalf("LoadAndValidate failed: %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{
			name:    "bad storage driver",
			mutate:  func(c *Config) { c.Storage.Driver = "sqlite" },
			wantSub: "storage.driver",
		},
		{
			name:    "missing db host",
			mutate:  func(c *Config) { c.Storage.Driver = "postgres" },
			wantSub: "storage.postgres.host",
		},
		{
			name:    "zero poll concurrency",
			mutate:  func(c *Config) { c.Poller.Concurrency = -1 },
			wantSub: "poller.concurrency",
		},
		{
			name:    "backoff max below base",
			mutate:  func(c *Config) { c.Poller.BackoffMax = c.Poller.BackoffBase / 2 },
			wantSub: "poller.backoff_max",
		},
		{
			name:    "history without postgres",
			mutate:  func(c *Config) { c.History.Enabled = true },
			wantSub: "history.enabled",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{Storage: StorageConfig{Driver: "memory"}}
			cfg.applyDefaults()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error %q does not mention %q", err, tt.wantSub)
			}
		})
	}
}
