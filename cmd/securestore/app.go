package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/benaskins/securestore/internal/audit"
	"github.com/benaskins/securestore/internal/config"
	"github.com/benaskins/securestore/internal/crypto"
	"github.com/benaskins/securestore/internal/health"
	"github.com/benaskins/securestore/internal/keychain"
	"github.com/benaskins/securestore/internal/policy"
	"github.com/benaskins/securestore/internal/store"
)

// app is a fully wired store and its collaborators.
type app struct {
	cfg       *config.Config
	store     *store.Store
	keys      *keychain.Manager
	passcodes *policy.PasscodeStore
	audit     *audit.Logger
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func keyBackend(cfg *config.Config) keychain.Backend {
	switch cfg.Keystore {
	case config.KeystoreFile:
		return keychain.NewFileBackend(cfg.KeysDir())
	case config.KeystoreMemory:
		return keychain.NewMemoryBackend()
	default:
		return keychain.NewSystemBackend(cfg.Service, cfg.AccessGroup, cfg.KeysDir())
	}
}

func openRecords(cfg *config.Config) (store.Records, error) {
	if cfg.Backend == config.BackendSQLite {
		return store.OpenSQLiteRecords(cfg.RecordsPath())
	}
	return store.OpenFileRecords(cfg.RecordsPath())
}

// errEphemeralKeys rejects the memory keystore outside serve. Its master key
// dies with the process, so entries written by one command could never be
// read by the next.
var errEphemeralKeys = errors.New(`keystore "memory" only lives as long as one process; use it with serve or choose "file" or "system"`)

// openApp wires config, keystore, policy, audit log and records into a store
// for a single command. prompt is nil for non-interactive use.
func openApp(prompt policy.PromptFunc) (*app, error) {
	return open(prompt, false)
}

// openServer is openApp for the long-running server, which may keep its
// keys in memory.
func openServer() (*app, error) {
	return open(nil, true)
}

func open(prompt policy.PromptFunc, longLived bool) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.Keystore == config.KeystoreMemory && !longLived {
		return nil, errEphemeralKeys
	}
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.AuditPath), 0700); err != nil {
		return nil, fmt.Errorf("creating audit dir: %w", err)
	}

	backend := keyBackend(cfg)
	keys := keychain.NewManager(backend, cfg.Service)
	passcodes := policy.NewPasscodeStore(backend, cfg.Service)

	engine, err := crypto.NewEngine(crypto.Suite(cfg.Cipher))
	if err != nil {
		return nil, err
	}
	pol := policy.New(&policy.PasscodeAuthenticator{
		Store:          passcodes,
		Prompt:         prompt,
		DeviceUnlocked: true,
	}, policy.Options{Timeout: cfg.AuthTimeout})

	log, err := audit.NewLogger(cfg.AuditPath)
	if err != nil {
		return nil, err
	}
	records, err := openRecords(cfg)
	if err != nil {
		log.Close()
		return nil, fmt.Errorf("opening %s records: %w", cfg.Backend, err)
	}

	s, err := store.New(store.Options{
		Records:         records,
		Keys:            keys,
		Policy:          pol,
		Cipher:          engine,
		Audit:           log,
		MaxEntries:      cfg.MaxEntries,
		MaxPayloadBytes: cfg.MaxPayloadBytes,
	})
	if err != nil {
		records.Close()
		log.Close()
		return nil, err
	}
	return &app{cfg: cfg, store: s, keys: keys, passcodes: passcodes, audit: log}, nil
}

func (a *app) Close() error {
	return errors.Join(a.store.Close(), a.audit.Close())
}

// checks returns the health checks for records, audit log and keystore.
func (a *app) checks() map[string]health.Checker {
	return map[string]health.Checker{
		"records": a.store,
		"audit":   a.audit,
		"keystore": health.CheckerFunc(func() error {
			timeout := a.cfg.AuthTimeout
			if timeout <= 0 {
				timeout = policy.DefaultTimeout
			}
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			_, err := a.keys.GetOrCreateMasterKey(ctx)
			return err
		}),
	}
}

// exitCode distinguishes failure classes for scripts.
func exitCode(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return 2
	case errors.Is(err, store.ErrAccessDenied), errors.Is(err, store.ErrAuthenticationTimeout):
		return 3
	case errors.Is(err, store.ErrAuthenticationFailure):
		return 4
	default:
		return 1
	}
}
