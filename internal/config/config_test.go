package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
)

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "designtree.yaml")
	doc := "storage:\n  backend: sqlite\n  dsn: /tmp/dt.db\nhistory:\n  limit: 10\n"
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(viper.New(), path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.StorageBackend != "sqlite" || cfg.StorageDSN != "/tmp/dt.db" || cfg.HistoryLimit != 10 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.GRPCAddr != ":50061" || cfg.RedisPrefix != "designtree" || cfg.S3Region != "us-east-1" {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "designtree.yaml")
	if err := os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("DESIGNTREE_GRPC_ADDR", ":6000")

	cfg, err := Load(viper.New(), path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.GRPCAddr != ":6000" || cfg.LogLevel != "debug" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	if _, err := FromViper(v); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}

	bad := []map[string]string{
		{"storage.backend": "mongo"},
		{"storage.backend": "postgres"},
		{"objects.backend": "s3"},
		{"objects.backend": "gcs"},
	}
	for _, overrides := range bad {
		v := viper.New()
		SetDefaults(v)
		for k, val := range overrides {
			v.Set(k, val)
		}
		if _, err := FromViper(v); err == nil {
			t.Errorf("expected validation error for %v", overrides)
		}
	}
}

func TestMissingExplicitFile(t *testing.T) {
	if _, err := Load(viper.New(), filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}
