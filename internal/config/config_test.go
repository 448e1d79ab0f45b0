package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, `service: com.example.vault
data_dir: /tmp/vault
backend: sqlite
keystore: file
access_group: TEAMID.com.example.shared
cipher: xchacha20-poly1305
auth_timeout: 10s
max_entries: 50
max_payload_bytes: 4096
api_addr: 127.0.0.1:9090
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Service != "com.example.vault" {
		t.Errorf("Service = %q", cfg.Service)
	}
	if cfg.Backend != BackendSQLite || cfg.Keystore != KeystoreFile {
		t.Errorf("Backend/Keystore = %q/%q", cfg.Backend, cfg.Keystore)
	}
	if cfg.Cipher != "xchacha20-poly1305" {
		t.Errorf("Cipher = %q", cfg.Cipher)
	}
	if cfg.AuthTimeout != 10*time.Second {
		t.Errorf("AuthTimeout = %v, want 10s", cfg.AuthTimeout)
	}
	if cfg.MaxEntries != 50 || cfg.MaxPayloadBytes != 4096 {
		t.Errorf("limits = %d/%d", cfg.MaxEntries, cfg.MaxPayloadBytes)
	}
	if cfg.APIAddr != "127.0.0.1:9090" {
		t.Errorf("APIAddr = %q, want %q", cfg.APIAddr, "127.0.0.1:9090")
	}
	if cfg.AccessGroup != "TEAMID.com.example.shared" {
		t.Errorf("AccessGroup = %q", cfg.AccessGroup)
	}
	if cfg.AuditPath != "/tmp/vault/audit.jsonl" {
		t.Errorf("AuditPath = %q, want derived from data_dir", cfg.AuditPath)
	}
	if cfg.RecordsPath() != "/tmp/vault/entries.db" {
		t.Errorf("RecordsPath = %q", cfg.RecordsPath())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	if err != nil {
		t.Fatalf("expected no error for missing file, got: %v", err)
	}
	want := Default()
	if cfg.Service != want.Service || cfg.Backend != want.Backend || cfg.Keystore != want.Keystore {
		t.Errorf("cfg = %+v, want defaults", cfg)
	}
	if cfg.AuthTimeout != DefaultAuthTimeout {
		t.Errorf("AuthTimeout = %v, want %v", cfg.AuthTimeout, DefaultAuthTimeout)
	}
}

func TestLoadEmptyAndCommentOnlyFiles(t *testing.T) {
	for name, content := range map[string]string{
		"empty":    "",
		"comments": "# backend: sqlite\n# api_addr: 127.0.0.1:9090\n",
	} {
		t.Run(name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, content))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cfg.Backend != BackendFile {
				t.Errorf("Backend = %q, want %q", cfg.Backend, BackendFile)
			}
			if cfg.APIAddr != "" {
				t.Errorf("APIAddr = %q, want empty", cfg.APIAddr)
			}
		})
	}
}

func TestLoadPartialConfigKeepsDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "backend: sqlite\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Backend != BackendSQLite {
		t.Errorf("Backend = %q", cfg.Backend)
	}
	if cfg.Cipher != Default().Cipher {
		t.Errorf("Cipher = %q, want default", cfg.Cipher)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	if _, err := Load(writeConfig(t, "backend: [unterminated\n")); err == nil {
		t.Error("expected parse error")
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "backend: file\nmax_entries: 5\n")
	t.Setenv("SECURESTORE_BACKEND", "sqlite")
	t.Setenv("SECURESTORE_MAX_ENTRIES", "9")
	t.Setenv("SECURESTORE_AUTH_TIMEOUT", "2m")
	t.Setenv("SECURESTORE_AUDIT_PATH", "/var/log/securestore.jsonl")
	t.Setenv("SECURESTORE_ACCESS_GROUP", "TEAMID.shared")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Backend != BackendSQLite {
		t.Errorf("Backend = %q, want env override", cfg.Backend)
	}
	if cfg.MaxEntries != 9 {
		t.Errorf("MaxEntries = %d, want 9", cfg.MaxEntries)
	}
	if cfg.AuthTimeout != 2*time.Minute {
		t.Errorf("AuthTimeout = %v, want 2m", cfg.AuthTimeout)
	}
	if cfg.AuditPath != "/var/log/securestore.jsonl" {
		t.Errorf("AuditPath = %q", cfg.AuditPath)
	}
	if cfg.AccessGroup != "TEAMID.shared" {
		t.Errorf("AccessGroup = %q, want env override", cfg.AccessGroup)
	}
}

func TestEnvRejectsMalformedValue(t *testing.T) {
	t.Setenv("SECURESTORE_MAX_ENTRIES", "lots")
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for non-numeric max entries")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"defaults", func(*Config) {}, ""},
		{"backend", func(c *Config) { c.Backend = "postgres" }, "backend"},
		{"keystore", func(c *Config) { c.Keystore = "tpm" }, "keystore"},
		{"cipher", func(c *Config) { c.Cipher = "rot13" }, "cipher"},
		{"timeout", func(c *Config) { c.AuthTimeout = -time.Second }, "auth_timeout"},
		{"entries", func(c *Config) { c.MaxEntries = -1 }, "max_entries"},
		{"payload", func(c *Config) { c.MaxPayloadBytes = -1 }, "max_payload_bytes"},
		{"service", func(c *Config) { c.Service = "" }, "service"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.DataDir = "/tmp/securestore"
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.want == "" {
				if err != nil {
					t.Errorf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestDerivedPaths(t *testing.T) {
	cfg := &Config{DataDir: "/data", Backend: BackendFile}
	if got := cfg.RecordsPath(); got != "/data/entries" {
		t.Errorf("RecordsPath = %q", got)
	}
	if got := cfg.KeysDir(); got != "/data/keys" {
		t.Errorf("KeysDir = %q", got)
	}
	if got := cfg.SocketPath(); got != "/data/securestore.sock" {
		t.Errorf("SocketPath = %q", got)
	}
}
