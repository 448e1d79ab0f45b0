package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/benaskins/securestore/internal/api"
	"github.com/benaskins/securestore/internal/health"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the store over a Unix socket API",
	Long:  "Serve the HTTP API on ~/.securestore/securestore.sock. Passcodes are taken from the X-Securestore-Passcode header.",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "api-addr", "", "Optional TCP address for the API (e.g. 127.0.0.1:9090)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := openServer()
	if err != nil {
		return err
	}
	defer a.Close()

	addr := serveAddr
	if addr == "" {
		addr = a.cfg.APIAddr
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	checks := map[string]health.Checker{
		"records": a.store,
		"audit":   a.audit,
	}
	monitor := health.NewMonitor(health.CheckerFunc(func() error {
		report := health.Run(checks)
		for _, r := range report.Checks {
			if r.Status != health.StatusHealthy {
				return fmt.Errorf("%s: %s", r.Name, r.Message)
			}
		}
		return nil
	}), 30*time.Second, 3, slog.With("component", "monitor"), func(err error) {
		slog.Error("store unhealthy", "error", err)
	})
	monitor.Start(ctx)
	defer monitor.Stop()

	socketPath := a.cfg.SocketPath()
	// Remove stale socket
	os.Remove(socketPath)

	// One byte over the payload limit lets the store report StorageFull.
	var maxBody int64
	if a.cfg.MaxPayloadBytes > 0 {
		maxBody = int64(a.cfg.MaxPayloadBytes) + 1
	}
	srv := api.NewServer(api.Options{
		Store:        a.store,
		Checks:       checks,
		Audit:        a.audit,
		MaxBodyBytes: maxBody,
	})

	errCh := make(chan error, 2)
	go func() {
		errCh <- srv.ListenUnix(socketPath)
	}()
	if addr != "" {
		slog.Warn("serving API over TCP; any local process can reach it", "addr", addr)
		go func() {
			errCh <- srv.ListenTCP(addr)
		}()
	}

	// The socket is created with the umask; restrict it to the owner.
	for i := 0; i < 50; i++ {
		if err := os.Chmod(socketPath, 0600); err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	slog.Info("audit log", "path", a.audit.Path())
	fmt.Fprintf(os.Stderr, "securestore serving on %s\n", socketPath)

	select {
	case sig := <-sigCh:
		slog.Info("received signal, shutting down", "signal", sig)
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("API server error", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)
	os.Remove(socketPath)
	return nil
}
