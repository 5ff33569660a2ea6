package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ENVIRONMENT", "dev")
	t.Setenv("TABLE_PREFIX", "")
	t.Setenv("CONFIG_FILE", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.TablePrefix != "dev_" {
		t.Errorf("TablePrefix = %q, want %q", cfg.TablePrefix, "dev_")
	}
	if !cfg.ApplySchema {
		t.Error("ApplySchema should default to true in dev")
	}
	if cfg.Policy.TrashRetention != 30*24*time.Hour {
		t.Errorf("TrashRetention = %v, want 720h", cfg.Policy.TrashRetention)
	}
	if cfg.BlobSigningKey == "" {
		t.Error("dev signing key should be filled in")
	}
}

func TestLoad_ProdRequiresSigningKey(t *testing.T) {
	t.Setenv("ENVIRONMENT", "prod")
	t.Setenv("BLOB_SIGNING_KEY", "")
	t.Setenv("CONFIG_FILE", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when BLOB_SIGNING_KEY is missing in prod")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	t.Setenv("TRASH_RETENTION", "forever")
	t.Setenv("CONFIG_FILE", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid TRASH_RETENTION")
	}
}

func TestLoad_PolicyOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sealdrive.yaml")
	content := "policy:\n  trash_retention: 48h\n  sweep_batch_size: 7\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("ENVIRONMENT", "test")
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Policy.TrashRetention != 48*time.Hour {
		t.Errorf("TrashRetention = %v, want 48h", cfg.Policy.TrashRetention)
	}
	if cfg.Policy.SweepBatchSize != 7 {
		t.Errorf("SweepBatchSize = %d, want 7", cfg.Policy.SweepBatchSize)
	}
	// Untouched values keep their env/default value
	if cfg.Policy.SweepInterval != time.Hour {
		t.Errorf("SweepInterval = %v, want 1h", cfg.Policy.SweepInterval)
	}
	if cfg.TablePrefix != "test_" {
		t.Errorf("TablePrefix = %q, want test_", cfg.TablePrefix)
	}
}
