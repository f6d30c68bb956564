package dbwrapper

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig_NotFound(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	if !errors.Is(err, ErrConfigurationNotFound) {
		t.Fatalf("expected ErrConfigurationNotFound, got %v", err)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"dsn": `), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := LoadConfig(path)
	if !errors.Is(err, ErrInvalidConfiguration) {
		t.Fatalf("expected ErrInvalidConfiguration, got %v", err)
	}
}

func TestLoadConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{
		"host": "localhost",
		"port": 5432,
		"dbname": "app",
		"user": "app",
		"password": "s3cret pass",
		"print_sql": true,
		"queries_dir": "/srv/sql",
		"max_open_conns": 8,
		"conn_max_lifetime": "30s"
	}`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	assertNoError(t, err)

	if want := "dbname=app host=localhost password='s3cret pass' port=5432 user=app"; cfg.DSN != want {
		t.Fatalf("DSN = %q, want %q", cfg.DSN, want)
	}
	if !cfg.PrintSQL || cfg.QueriesDir != "/srv/sql" || cfg.MaxOpenConns != 8 {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.ConnMaxLifetime != 30*time.Second {
		t.Fatalf("ConnMaxLifetime = %v", cfg.ConnMaxLifetime)
	}
	if cfg.Driver != "postgres" || cfg.Dialect != Postgres || cfg.Logger == nil {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestConfigFromMap(t *testing.T) {
	cfg, err := ConfigFromMap(map[string]any{
		"driver":        "mysql",
		"dsn":           "user:pass@tcp(localhost:3306)/app",
		"dialect":       "mysql",
		"cache_queries": "true",
		"host":          "ignored-when-dsn-is-set",
	})
	assertNoError(t, err)

	if cfg.Driver != "mysql" || cfg.Dialect != MySQL || !cfg.CacheQueries {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.DSN != "user:pass@tcp(localhost:3306)/app" {
		t.Fatalf("DSN = %q", cfg.DSN)
	}
	if cfg.QueriesDir != "sql" || cfg.MaxParams != 65535 || cfg.MaxNameLen != 64 {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestConfigFromMap_Errors(t *testing.T) {
	tests := []map[string]any{
		{"dialect": "oracle"},
		{"unknown_key": 1},
		{"max_open_conns": "many"},
	}
	for _, m := range tests {
		if _, err := ConfigFromMap(m); !errors.Is(err, ErrInvalidConfiguration) {
			t.Fatalf("%v: expected ErrInvalidConfiguration, got %v", m, err)
		}
	}
}

func TestConfigFromMap_Nil(t *testing.T) {
	cfg, err := ConfigFromMap(nil)
	assertNoError(t, err)
	if cfg.Driver != "postgres" || cfg.QueriesDir != "sql" {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestDefaultConfig_MaxParamsPerDialect(t *testing.T) {
	tests := []struct {
		d    Dialect
		want int
	}{
		{Postgres, 65535},
		{MySQL, 65535},
		{SQLite, 999},
		{SQLServer, 2100},
	}
	for _, tt := range tests {
		if got := defaultConfig(Config{Dialect: tt.d}).MaxParams; got != tt.want {
			t.Fatalf("%v: MaxParams = %d, want %d", tt.d, got, tt.want)
		}
	}
	if got := defaultConfig(Config{MaxParams: -1}).MaxParams; got != -1 {
		t.Fatalf("unlimited MaxParams was overridden: %d", got)
	}
}

// TestQueriesDir_Disabled ensures "-" turns named-query lookup off while an
// empty value falls back to the default directory.
func TestQueriesDir_Disabled(t *testing.T) {
	if got := defaultConfig(Config{}).QueriesDir; got != "sql" {
		t.Fatalf("default QueriesDir = %q, want sql", got)
	}

	dir := t.TempDir()
	writeQuery(t, dir, "count-users", "SELECT count(*) FROM users")
	if text, err := newQueryLoader(dir, false).resolve("count-users"); err != nil || text != "SELECT count(*) FROM users" {
		t.Fatalf("enabled lookup = %q, %v", text, err)
	}

	cfg := defaultConfig(Config{QueriesDir: "-"})
	if cfg.QueriesDir != "-" {
		t.Fatalf("QueriesDir = %q, want -", cfg.QueriesDir)
	}
	if text, err := newQueryLoader(cfg.QueriesDir, false).resolve("count-users"); err != nil || text != "count-users" {
		t.Fatalf("disabled lookup = %q, %v", text, err)
	}
}
