package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/benaskins/securestore/internal/crypto"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SECURESTORE_"

// Backends and keystores accepted by Validate.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"

	KeystoreSystem = "system"
	KeystoreFile   = "file"
	KeystoreMemory = "memory"
)

const (
	DefaultService         = "com.securestore"
	DefaultAuthTimeout     = 30 * time.Second
	DefaultMaxPayloadBytes = 1 << 20
)

// Config holds securestore settings loaded from ~/.securestore/config.yaml
// with SECURESTORE_* environment overrides. AccessGroup names a Keychain
// access group shared by cooperating apps; empty means the app's own group.
type Config struct {
	Service         string        `yaml:"service" env:"SERVICE"`
	DataDir         string        `yaml:"data_dir" env:"DATA_DIR"`
	Backend         string        `yaml:"backend" env:"BACKEND"`
	Keystore        string        `yaml:"keystore" env:"KEYSTORE"`
	AccessGroup     string        `yaml:"access_group" env:"ACCESS_GROUP"`
	Cipher          string        `yaml:"cipher" env:"CIPHER"`
	AuthTimeout     time.Duration `yaml:"auth_timeout" env:"AUTH_TIMEOUT"`
	MaxEntries      int           `yaml:"max_entries" env:"MAX_ENTRIES"`
	MaxPayloadBytes int           `yaml:"max_payload_bytes" env:"MAX_PAYLOAD_BYTES"`
	AuditPath       string        `yaml:"audit_path" env:"AUDIT_PATH"`
	APIAddr         string        `yaml:"api_addr" env:"API_ADDR"`
}

// DefaultDir returns ~/.securestore.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".securestore")
}

// DefaultPath returns the default config file path: ~/.securestore/config.yaml.
func DefaultPath() string {
	dir := DefaultDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "config.yaml")
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Service:         DefaultService,
		DataDir:         DefaultDir(),
		Backend:         BackendFile,
		Keystore:        KeystoreSystem,
		Cipher:          string(crypto.DefaultSuite),
		AuthTimeout:     DefaultAuthTimeout,
		MaxPayloadBytes: DefaultMaxPayloadBytes,
	}
}

// Load reads a YAML config file from path over the defaults, then applies
// environment overrides. A missing, empty or all-comment file leaves the
// defaults in place.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if cfg.AuditPath == "" && cfg.DataDir != "" {
		cfg.AuditPath = filepath.Join(cfg.DataDir, "audit.jsonl")
	}
	return cfg, nil
}

// Validate rejects unknown enum values and negative limits.
func (c *Config) Validate() error {
	var errs []error
	if c.Service == "" {
		errs = append(errs, errors.New("service must not be empty"))
	}
	if c.DataDir == "" {
		errs = append(errs, errors.New("data_dir must not be empty"))
	}
	switch c.Backend {
	case BackendFile, BackendSQLite:
	default:
		errs = append(errs, fmt.Errorf("backend %q: want %s or %s", c.Backend, BackendFile, BackendSQLite))
	}
	switch c.Keystore {
	case KeystoreSystem, KeystoreFile, KeystoreMemory:
	default:
		errs = append(errs, fmt.Errorf("keystore %q: want %s, %s or %s", c.Keystore, KeystoreSystem, KeystoreFile, KeystoreMemory))
	}
	if !crypto.Suite(c.Cipher).Valid() {
		errs = append(errs, fmt.Errorf("cipher %q: want %s or %s", c.Cipher, crypto.SuiteAESGCM, crypto.SuiteXChaCha20Poly1305))
	}
	if c.AuthTimeout < 0 {
		errs = append(errs, errors.New("auth_timeout must not be negative"))
	}
	if c.MaxEntries < 0 {
		errs = append(errs, errors.New("max_entries must not be negative"))
	}
	if c.MaxPayloadBytes < 0 {
		errs = append(errs, errors.New("max_payload_bytes must not be negative"))
	}
	return errors.Join(errs...)
}

// RecordsPath is where the configured backend keeps entries: a directory
// for the file backend, a database file for sqlite.
func (c *Config) RecordsPath() string {
	if c.Backend == BackendSQLite {
		return filepath.Join(c.DataDir, "entries.db")
	}
	return filepath.Join(c.DataDir, "entries")
}

// KeysDir holds key files for the file keystore.
func (c *Config) KeysDir() string {
	return filepath.Join(c.DataDir, "keys")
}

// SocketPath is the Unix socket served by `securestore serve`.
func (c *Config) SocketPath() string {
	return filepath.Join(c.DataDir, "securestore.sock")
}
