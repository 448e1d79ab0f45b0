// Package health reports whether the store's supporting services are usable.
//
// Components that can degrade without failing callers, such as the audit
// log, expose a Health method. This package aggregates those into a report
// and can watch one periodically.
package health

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Status represents the health state of a component.
type Status string

const (
	StatusUnknown   Status = "unknown"
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

// Checker is implemented by anything that can report its own health.
type Checker interface {
	Health() error
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func() error

func (f CheckerFunc) Health() error { return f() }

// Result is the outcome of a single check.
type Result struct {
	Name    string `json:"name"`
	Status  Status `json:"status"`
	Message string `json:"message"`
}

// Report is the combined outcome of several checks.
type Report struct {
	Status Status   `json:"status"`
	Checks []Result `json:"checks"`
}

// Run evaluates each named checker. The report is healthy only if every
// check is. Results are ordered by name.
func Run(checks map[string]Checker) Report {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	report := Report{Status: StatusHealthy, Checks: make([]Result, 0, len(names))}
	for _, name := range names {
		r := Result{Name: name, Status: StatusHealthy, Message: "ok"}
		if err := checks[name].Health(); err != nil {
			r.Status = StatusUnhealthy
			r.Message = err.Error()
			report.Status = StatusUnhealthy
		}
		report.Checks = append(report.Checks, r)
	}
	return report
}

// Monitor runs a check periodically and tracks state.
type Monitor struct {
	checker   Checker
	interval  time.Duration
	threshold int
	logger    *slog.Logger

	mu               sync.Mutex
	status           Status
	consecutiveFails int
	cancel           context.CancelFunc
	done             chan struct{}

	// onUnhealthy is called when the component transitions to unhealthy.
	onUnhealthy func(err error)
}

// NewMonitor creates a monitor that marks the component unhealthy after
// threshold consecutive failures.
func NewMonitor(checker Checker, interval time.Duration, threshold int, logger *slog.Logger, onUnhealthy func(error)) *Monitor {
	if threshold <= 0 {
		threshold = 3
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Monitor{
		checker:     checker,
		interval:    interval,
		threshold:   threshold,
		logger:      logger,
		status:      StatusUnknown,
		onUnhealthy: onUnhealthy,
	}
}

// Start begins periodic checking.
func (m *Monitor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancel = cancel
	m.done = make(chan struct{})
	m.mu.Unlock()

	go m.run(ctx)
}

// Stop halts the check loop.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	done := m.done
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// CurrentStatus returns the current health status.
func (m *Monitor) CurrentStatus() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *Monitor) run(ctx context.Context) {
	defer func() {
		m.mu.Lock()
		m.cancel = nil
		close(m.done)
		m.mu.Unlock()
	}()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	// Run first check immediately
	m.check()

	for {
		select {
		case <-ticker.C:
			m.check()
		case <-ctx.Done():
			return
		}
	}
}

func (m *Monitor) check() {
	err := m.checker.Health()

	m.mu.Lock()
	prevStatus := m.status
	if err == nil {
		m.consecutiveFails = 0
		m.status = StatusHealthy
	} else {
		m.consecutiveFails++
		if m.consecutiveFails >= m.threshold {
			m.status = StatusUnhealthy
		}
	}
	newStatus := m.status
	consecutiveFails := m.consecutiveFails
	m.mu.Unlock()

	if err != nil {
		m.logger.Warn("health check failed",
			"error", err,
			"consecutive_fails", consecutiveFails,
			"threshold", m.threshold,
		)
	}

	if prevStatus == StatusUnhealthy && newStatus == StatusHealthy {
		m.logger.Info("component recovered")
	}

	// Fire callback on transition to unhealthy
	if prevStatus != StatusUnhealthy && newStatus == StatusUnhealthy {
		m.logger.Error("component is unhealthy", "consecutive_fails", consecutiveFails)
		if m.onUnhealthy != nil {
			m.onUnhealthy(err)
		}
	}
}
