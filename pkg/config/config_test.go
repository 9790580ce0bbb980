package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "feedbridge.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
store:
  path: /var/lib/feedbridge/state.db
inventory:
  type: sqlite
  database: /var/lib/feedbridge/inventory.db
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Store.Path != "/var/lib/feedbridge/state.db" {
		t.Errorf("store path = %q", cfg.Store.Path)
	}
	if cfg.Engine.SummaryErrorLimit != 10 {
		t.Errorf("summary error limit = %d, want default 10", cfg.Engine.SummaryErrorLimit)
	}
	if cfg.Audit.Level != "standard" {
		t.Errorf("audit level = %q, want default standard", cfg.Audit.Level)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Errorf("logging defaults = %q/%q", cfg.Logging.Level, cfg.Logging.Format)
	}
}

func TestLoadEmptyFileUsesSQLiteDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "{}"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Inventory.Type != "sqlite" || cfg.Inventory.Database != "inventory.db" {
		t.Errorf("inventory defaults = %q/%q", cfg.Inventory.Type, cfg.Inventory.Database)
	}
	if cfg.Store.Path != "feedbridge.db" {
		t.Errorf("store path default = %q", cfg.Store.Path)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "unknown inventory type",
			content: "inventory:\n  type: oracle\n  database: db\n",
			wantErr: "unknown type",
		},
		{
			name:    "network type requires host",
			content: "inventory:\n  type: postgres\n  database: db\n",
			wantErr: "host is required",
		},
		{
			name:    "bad audit level",
			content: "audit:\n  level: verbose\n",
			wantErr: "unknown level",
		},
		{
			name:    "bad logging format",
			content: "logging:\n  format: xml\n",
			wantErr: "unknown format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("Load() expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil || !strings.Contains(err.Error(), "failed to read") {
		t.Fatalf("Load() error = %v", err)
	}
}

func TestBuildDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  InventoryConfig
		want string
	}{
		{
			name: "postgres with defaults",
			cfg:  InventoryConfig{Type: "postgres", Host: "db", Port: 5432, Database: "inv", User: "u", Password: "p"},
			want: "postgres://u:p@db:5432/inv?sslmode=disable&search_path=public",
		},
		{
			name: "mysql",
			cfg:  InventoryConfig{Type: "mysql", Host: "db", Port: 3306, Database: "inv", User: "u", Password: "p"},
			want: "u:p@tcp(db:3306)/inv?parseTime=true",
		},
		{
			name: "mssql windows auth",
			cfg:  InventoryConfig{Type: "mssql", Host: "db", Port: 1433, Database: "inv", WindowsAuth: true},
			want: "sqlserver://db:1433?database=inv&integrated security=SSPI",
		},
		{
			name: "sqlite is a file path",
			cfg:  InventoryConfig{Type: "sqlite", Database: "inventory.db"},
			want: "inventory.db",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.BuildDSN(); got != tt.want {
				t.Errorf("BuildDSN() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPassphraseFromEnv(t *testing.T) {
	t.Setenv(PassphraseEnv, "orchid-lantern-42")
	pass, err := Passphrase()
	if err != nil {
		t.Fatalf("Passphrase() error = %v", err)
	}
	if pass != "orchid-lantern-42" {
		t.Errorf("Passphrase() = %q", pass)
	}
}

func TestPassphraseMissingFailsLoudly(t *testing.T) {
	t.Setenv(PassphraseEnv, "")
	_, err := Passphrase()
	if err == nil || !strings.Contains(err.Error(), PassphraseEnv) {
		t.Fatalf("Passphrase() error = %v, want mention of %s", err, PassphraseEnv)
	}
}

func TestSampleRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.yaml")
	if err := Save(path, Sample()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Inventory.Type != "postgres" || cfg.Inventory.Port != 5432 {
		t.Errorf("sample inventory = %q:%d", cfg.Inventory.Type, cfg.Inventory.Port)
	}
	if !cfg.Audit.Enabled {
		t.Error("sample audit not enabled")
	}
}
