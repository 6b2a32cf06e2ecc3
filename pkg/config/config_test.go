package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Store.Driver != DriverSQLite {
		t.Errorf("expected default driver %q, got %q", DriverSQLite, cfg.Store.Driver)
	}
	if cfg.Store.SQLitePath != "multistream_index.db" {
		t.Errorf("unexpected sqlite path %q", cfg.Store.SQLitePath)
	}
	if cfg.Corpus.BlockCacheSize != 0 {
		t.Errorf("block cache should be disabled by default, got %d", cfg.Corpus.BlockCacheSize)
	}
	if cfg.Redis.Enabled || cfg.Kafka.Enabled {
		t.Error("redis and kafka should be disabled by default")
	}
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wikidump.yaml")
	data := `
corpus:
  path: /data/corpus.xml.bz2
  blockCacheSize: 16
store:
  driver: postgres
redis:
  enabled: true
  cacheTTL: 90s
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	t.Setenv("WD_CORPUS_PATH", "/override/corpus.xml.bz2")
	t.Setenv("WD_SERVER_PORT", "9999")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Corpus.Path != "/override/corpus.xml.bz2" {
		t.Errorf("env override not applied, got %q", cfg.Corpus.Path)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("expected port 9999, got %d", cfg.Server.Port)
	}
	if cfg.Corpus.BlockCacheSize != 16 {
		t.Errorf("expected block cache 16, got %d", cfg.Corpus.BlockCacheSize)
	}
	if cfg.Store.Driver != DriverPostgres {
		t.Errorf("expected postgres driver, got %q", cfg.Store.Driver)
	}
	if !cfg.Redis.Enabled || cfg.Redis.CacheTTL != 90*time.Second {
		t.Errorf("redis section not parsed: %+v", cfg.Redis)
	}
	if cfg.Redis.Addr != "localhost:6379" {
		t.Errorf("default redis addr lost, got %q", cfg.Redis.Addr)
	}
}

func TestValidateRejectsUnknownDriver(t *testing.T) {
	t.Setenv("WD_STORE_DRIVER", "leveldb")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestValidateRateLimit(t *testing.T) {
	cfg := defaultConfig()
	cfg.RateLimit.Enabled = true
	cfg.RateLimit.Burst = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for zero burst")
	}
}
