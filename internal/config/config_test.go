package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("expected default http addr, got %s", cfg.HTTPAddr)
	}
	if cfg.Reservation.MaxRetries != 5 {
		t.Errorf("expected default max_retries 5, got %d", cfg.Reservation.MaxRetries)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
http_addr: ":9999"
reservation:
  max_retries: 12
  mutation_timeout: 1s
  worker_count: 3
  queue_size: 100
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTPAddr != ":9999" {
		t.Errorf("expected :9999, got %s", cfg.HTTPAddr)
	}
	if cfg.Reservation.MaxRetries != 12 {
		t.Errorf("expected max_retries 12, got %d", cfg.Reservation.MaxRetries)
	}
	if cfg.Reservation.MutationTimeout != time.Second {
		t.Errorf("expected 1s mutation timeout, got %s", cfg.Reservation.MutationTimeout)
	}
	// Untouched keys keep their defaults.
	if cfg.Redis.Addr != "localhost:6379" {
		t.Errorf("expected default redis addr, got %s", cfg.Redis.Addr)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
mysql:
  dsn: "file-user:pw@tcp(filehost:3306)/inventory"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("MYSQL_DSN", "env-user:pw@tcp(envhost:3306)/inventory")
	t.Setenv("REDIS_ADDR", "envhost:6379")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MySQL.DSN != "env-user:pw@tcp(envhost:3306)/inventory" {
		t.Errorf("expected env DSN to win, got %s", cfg.MySQL.DSN)
	}
	if cfg.Redis.Addr != "envhost:6379" {
		t.Errorf("expected env redis addr to win, got %s", cfg.Redis.Addr)
	}
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
reservation:
  max_retries: 0
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("expected error for zero max_retries")
	}
}

func TestLoad_RejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(":\t not yaml ["), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}
