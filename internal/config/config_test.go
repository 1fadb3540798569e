package config

import (
	"os"
	"path/filepath"
	"testing"
)

// isolate points the config dir at a temp dir and clears overrides.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	for _, k := range []string{"SENTINEL_DB_DRIVER", "SENTINEL_DB_DSN", "SENTINEL_ADDR", "SENTINEL_LOG_LEVEL", "SENTINEL_RETENTION_DAYS"} {
		t.Setenv(k, "")
	}
	return dir
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store.Driver != "sqlite" || cfg.Server.Addr != "127.0.0.1:8787" {
		t.Errorf("defaults = %+v", cfg)
	}
	if Exists() {
		t.Error("Exists = true before Save")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	isolate(t)

	cfg := DefaultConfig()
	cfg.Store.Driver = "postgres"
	cfg.Store.DSN = "postgres://localhost/sentinel"
	cfg.Server.AllowedOrigins = []string{"http://localhost:3000"}
	cfg.Log.File = "/var/log/sentinel.log"
	if err := Save(cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !Exists() {
		t.Fatal("Exists = false after Save")
	}

	got, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Store != cfg.Store {
		t.Errorf("Store = %+v, want %+v", got.Store, cfg.Store)
	}
	if len(got.Server.AllowedOrigins) != 1 || got.Log.File != cfg.Log.File {
		t.Errorf("loaded = %+v", got)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("SENTINEL_DB_DRIVER", "postgres")
	t.Setenv("SENTINEL_DB_DSN", "postgres://db/metrics")
	t.Setenv("SENTINEL_ADDR", ":9000")
	t.Setenv("SENTINEL_LOG_LEVEL", "debug")
	t.Setenv("SENTINEL_RETENTION_DAYS", "14")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store.Driver != "postgres" || cfg.Store.DSN != "postgres://db/metrics" {
		t.Errorf("Store = %+v", cfg.Store)
	}
	if cfg.Server.Addr != ":9000" || cfg.Server.RetentionDays != 14 || cfg.Log.Level != "debug" {
		t.Errorf("overrides not applied: %+v", cfg)
	}

	t.Setenv("SENTINEL_RETENTION_DAYS", "two weeks")
	if _, err := Load(); err == nil {
		t.Error("expected an error for a non-numeric retention")
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	dir := isolate(t)

	path := filepath.Join(dir, "sentinel", "config.toml")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("[server]\naddr = \"0.0.0.0:8080\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != "0.0.0.0:8080" {
		t.Errorf("Addr = %q", cfg.Server.Addr)
	}
	if cfg.Server.EventsBuffer != 200 || cfg.General.DefaultDays != 7 {
		t.Errorf("defaults lost: %+v", cfg)
	}
}
