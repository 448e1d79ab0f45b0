package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"

	"github.com/benaskins/securestore/internal/audit"
	"github.com/benaskins/securestore/internal/config"
	"github.com/benaskins/securestore/internal/health"
	"github.com/benaskins/securestore/internal/policy"
	"github.com/benaskins/securestore/internal/store"
)

func useConfig(t *testing.T, backend string) string {
	t.Helper()
	return useKeystore(t, backend, config.KeystoreFile)
}

func useKeystore(t *testing.T, backend, keystore string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf("data_dir: %s\nbackend: %s\nkeystore: %s\n", filepath.Join(dir, "data"), backend, keystore)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	old := configPath
	configPath = path
	t.Cleanup(func() { configPath = old })
	return dir
}

func TestOpenAppRoundTrip(t *testing.T) {
	for _, backend := range []string{config.BackendFile, config.BackendSQLite} {
		t.Run(backend, func(t *testing.T) {
			dir := useConfig(t, backend)

			a, err := openApp(nil)
			if err != nil {
				t.Fatalf("openApp: %v", err)
			}
			ctx := store.WithActor(context.Background(), cliActor)
			if err := a.store.Put(ctx, "token", []byte("secret123"), policy.TagDeviceUnlock); err != nil {
				t.Fatalf("Put: %v", err)
			}
			a.Close()

			// A second process sees the same key and entries.
			a, err = openApp(nil)
			if err != nil {
				t.Fatalf("reopen: %v", err)
			}
			defer a.Close()
			got, err := a.store.Get(ctx, "token", policy.Caller{Actor: cliActor})
			if err != nil || string(got) != "secret123" {
				t.Fatalf("Get = %q, %v", got, err)
			}

			records, err := audit.ReadFile(filepath.Join(dir, "data", "audit.jsonl"))
			if err != nil {
				t.Fatalf("ReadFile: %v", err)
			}
			if len(records) != 2 || records[1].Operation != audit.OpRead || records[1].Actor != cliActor {
				t.Errorf("audit records = %+v", records)
			}

			report := health.Run(a.checks())
			if report.Status != health.StatusHealthy {
				t.Errorf("health = %+v", report)
			}
		})
	}
}

func TestOpenAppRejectsInvalidConfig(t *testing.T) {
	useConfig(t, "postgres")
	if _, err := openApp(nil); err == nil {
		t.Error("expected invalid backend to be rejected")
	}
}

func TestMemoryKeystoreOnlyForServer(t *testing.T) {
	useKeystore(t, config.BackendFile, config.KeystoreMemory)
	if _, err := openApp(nil); !errors.Is(err, errEphemeralKeys) {
		t.Fatalf("openApp = %v, want errEphemeralKeys", err)
	}

	a, err := openServer()
	if err != nil {
		t.Fatalf("openServer: %v", err)
	}
	defer a.Close()
	ctx := context.Background()
	if err := a.store.Put(ctx, "token", []byte("secret"), policy.TagNone); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if got, err := a.store.Get(ctx, "token", policy.Caller{}); err != nil || string(got) != "secret" {
		t.Errorf("Get = %q, %v", got, err)
	}
}

func TestPutBiometricRejected(t *testing.T) {
	useConfig(t, config.BackendFile)
	a, err := openApp(nil)
	if err != nil {
		t.Fatalf("openApp: %v", err)
	}
	defer a.Close()
	ctx := context.Background()

	err = a.store.Put(ctx, "face", []byte("x"), policy.TagBiometric)
	if !errors.Is(err, store.ErrPolicyViolation) {
		t.Fatalf("Put biometric = %v, want ErrPolicyViolation", err)
	}
	if _, err := a.store.Info(ctx, "face"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Info = %v, want ErrNotFound", err)
	}
}

func TestPasscodeEntryNeedsPasscode(t *testing.T) {
	useConfig(t, config.BackendFile)
	a, err := openApp(nil)
	if err != nil {
		t.Fatalf("openApp: %v", err)
	}
	defer a.Close()
	ctx := context.Background()

	if err := a.passcodes.Set([]byte("1357")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	a.store.Put(ctx, "pin", []byte("9999"), policy.TagBiometricOrPasscode)

	if _, err := a.store.Get(ctx, "pin", policy.Caller{}); !errors.Is(err, store.ErrAccessDenied) {
		t.Errorf("Get without passcode = %v, want ErrAccessDenied", err)
	}
	got, err := a.store.Get(ctx, "pin", policy.Caller{Passcode: []byte("1357")})
	if err != nil || string(got) != "9999" {
		t.Errorf("Get with passcode = %q, %v", got, err)
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{store.ErrNotFound, 2},
		{&policy.DeniedError{Reason: "device is locked"}, 3},
		{fmt.Errorf("get: %w", store.ErrAuthenticationTimeout), 3},
		{store.ErrAuthenticationFailure, 4},
		{errors.New("boom"), 1},
	}
	for _, tt := range tests {
		if got := exitCode(tt.err); got != tt.want {
			t.Errorf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestPrintRecord(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	printRecord(&buf, audit.Record{
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		EntryID:   "token",
		Operation: audit.OpRead,
		Outcome:   audit.OutcomeDenied,
		Actor:     "cli",
		Error:     "access denied: device is locked",
	})
	line := buf.String()
	for _, want := range []string{"read", "denied", "cli", "token", "device is locked"} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q missing %q", line, want)
		}
	}
}

func TestRequireConfirmation(t *testing.T) {
	confirmed = false
	if err := requireConfirmation("clear"); err == nil {
		t.Error("expected refusal without --yes")
	}
	confirmed = true
	defer func() { confirmed = false }()
	if err := requireConfirmation("clear"); err != nil {
		t.Errorf("requireConfirmation: %v", err)
	}
}
