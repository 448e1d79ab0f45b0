package health

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// toggleChecker fails while broken is set.
type toggleChecker struct {
	mu     sync.Mutex
	broken bool
	calls  atomic.Int32
}

func (c *toggleChecker) Health() error {
	c.calls.Add(1)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.broken {
		return errors.New("audit log unwritable")
	}
	return nil
}

func (c *toggleChecker) set(broken bool) {
	c.mu.Lock()
	c.broken = broken
	c.mu.Unlock()
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestRunAllHealthy(t *testing.T) {
	report := Run(map[string]Checker{
		"audit":    CheckerFunc(func() error { return nil }),
		"keystore": CheckerFunc(func() error { return nil }),
	})

	if report.Status != StatusHealthy {
		t.Errorf("expected healthy, got %s", report.Status)
	}
	if len(report.Checks) != 2 || report.Checks[0].Name != "audit" {
		t.Errorf("unexpected checks %+v", report.Checks)
	}
}

func TestRunOneUnhealthy(t *testing.T) {
	report := Run(map[string]Checker{
		"audit":    CheckerFunc(func() error { return errors.New("disk full") }),
		"keystore": CheckerFunc(func() error { return nil }),
	})

	if report.Status != StatusUnhealthy {
		t.Errorf("expected unhealthy, got %s", report.Status)
	}
	if report.Checks[0].Status != StatusUnhealthy || report.Checks[0].Message != "disk full" {
		t.Errorf("unexpected audit result %+v", report.Checks[0])
	}
	if report.Checks[1].Status != StatusHealthy {
		t.Errorf("unexpected keystore result %+v", report.Checks[1])
	}
}

func TestMonitorUnhealthyThreshold(t *testing.T) {
	c := &toggleChecker{broken: true}
	var fired atomic.Int32
	m := NewMonitor(c, 10*time.Millisecond, 3, slog.Default(), func(error) { fired.Add(1) })

	m.Start(context.Background())
	defer m.Stop()

	waitFor(t, func() bool { return m.CurrentStatus() == StatusUnhealthy })
	if c.calls.Load() < 3 {
		t.Errorf("expected at least 3 checks before unhealthy, got %d", c.calls.Load())
	}

	time.Sleep(50 * time.Millisecond)
	if fired.Load() != 1 {
		t.Errorf("expected callback once on transition, got %d", fired.Load())
	}
}

func TestMonitorRecovery(t *testing.T) {
	c := &toggleChecker{broken: true}
	m := NewMonitor(c, 10*time.Millisecond, 1, slog.Default(), nil)

	m.Start(context.Background())
	defer m.Stop()

	waitFor(t, func() bool { return m.CurrentStatus() == StatusUnhealthy })
	c.set(false)
	waitFor(t, func() bool { return m.CurrentStatus() == StatusHealthy })
}

func TestMonitorStop(t *testing.T) {
	c := &toggleChecker{}
	m := NewMonitor(c, 10*time.Millisecond, 1, slog.Default(), nil)
	m.Start(context.Background())
	waitFor(t, func() bool { return m.CurrentStatus() == StatusHealthy })
	m.Stop()

	calls := c.calls.Load()
	time.Sleep(50 * time.Millisecond)
	if c.calls.Load() != calls {
		t.Error("checks continued after Stop")
	}
}
