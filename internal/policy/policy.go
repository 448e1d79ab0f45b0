package policy

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultTimeout bounds how long an authentication prompt may take.
	DefaultTimeout = 30 * time.Second

	defaultMaxFailures   = 5
	defaultFailureRefill = 30 * time.Second
	defaultMaxOrigins    = 1024

	// LocalOrigin is the throttling bucket for callers with no Origin.
	LocalOrigin = "local"
)

// Caller identifies who is asking and carries any factor material they
// supplied up front.
type Caller struct {
	// Actor labels the caller in logs and the audit trail. It is not trusted.
	Actor string
	// Origin is where the request came from, set by the transport (peer uid,
	// remote host) and never by the caller. Failures are throttled per Origin.
	Origin   string
	Passcode []byte
}

func (c Caller) origin() string {
	if c.Origin == "" {
		return LocalOrigin
	}
	return c.Origin
}

// Authenticator is the platform authentication collaborator. It proves
// factors for a caller, possibly by prompting the user.
type Authenticator interface {
	Authenticate(ctx context.Context, caller Caller, tag Tag) (Factors, error)
}

// Capable is implemented by authenticators that can never prove some
// factors, such as one without biometric hardware.
type Capable interface {
	CanSatisfy(tag Tag) bool
}

// Decision is the outcome of Authorize.
type Decision struct {
	Granted bool
	Reason  string
}

// Err returns nil for a grant and a *DeniedError otherwise.
func (d Decision) Err() error {
	if d.Granted {
		return nil
	}
	return &DeniedError{Reason: d.Reason}
}

func granted() Decision { return Decision{Granted: true} }
func denied(reason string) Decision { return Decision{Reason: reason} }

// Options tunes a Policy.
type Options struct {
	// Timeout bounds a single Authenticate call. Zero means DefaultTimeout.
	Timeout time.Duration
	// MaxFailures is the number of denials an origin may accumulate before
	// further attempts are refused without prompting. Zero means 5.
	MaxFailures int
	// FailureRefill is how often one failure is forgiven. Zero means 30s.
	FailureRefill time.Duration
	// MaxOrigins bounds how many origins are tracked separately. Once full,
	// origins with no outstanding failures are forgotten and any further
	// origins share one bucket. Zero means 1024.
	MaxOrigins int
}

// Policy evaluates entry tags against proven factors.
type Policy struct {
	auth    Authenticator
	timeout time.Duration
	refill  rate.Limit
	burst   int
	logger  *slog.Logger

	mu         sync.Mutex
	limiters   map[string]*rate.Limiter
	maxOrigins int
	overflow   *rate.Limiter
}

// New creates a Policy that consults auth for non-trivial tags.
func New(auth Authenticator, opts Options) *Policy {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxFailures <= 0 {
		opts.MaxFailures = defaultMaxFailures
	}
	if opts.FailureRefill <= 0 {
		opts.FailureRefill = defaultFailureRefill
	}
	if opts.MaxOrigins <= 0 {
		opts.MaxOrigins = defaultMaxOrigins
	}
	refill := rate.Every(opts.FailureRefill)
	return &Policy{
		auth:       auth,
		timeout:    opts.Timeout,
		refill:     refill,
		burst:      opts.MaxFailures,
		logger:     slog.With("component", "policy"),
		limiters:   make(map[string]*rate.Limiter),
		maxOrigins: opts.MaxOrigins,
		overflow:   rate.NewLimiter(refill, opts.MaxFailures),
	}
}

// Authorize decides whether caller may access an entry tagged tag. Denials
// are returned as a Decision. The error is non-nil only when the
// authenticator timed out (ErrAuthenticationTimeout) or ctx was cancelled.
func (p *Policy) Authorize(ctx context.Context, tag Tag, caller Caller) (Decision, error) {
	if !tag.Valid() {
		return denied("unknown policy " + string(tag)), nil
	}
	if tag == TagNone {
		return granted(), nil
	}
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}
	if p.auth == nil {
		return denied("no authenticator available"), nil
	}

	lim := p.limiter(caller.origin())
	if lim.Tokens() < 1 {
		p.logger.Warn("authentication throttled", "origin", caller.origin(), "actor", caller.Actor)
		return denied("too many failed attempts"), nil
	}

	factors, err := p.authenticate(ctx, caller, tag)
	if err != nil {
		if errors.Is(err, ErrAuthenticationTimeout) {
			return Decision{}, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Decision{}, ctxErr
		}
		lim.Allow()
		return denied(err.Error()), nil
	}
	if !factors.Satisfies(tag) {
		lim.Allow()
		return denied(factors.missing(tag)), nil
	}
	return granted(), nil
}

// Satisfiable reports whether any caller could ever be granted tag. It is
// false for unknown tags, for non-trivial tags with no authenticator, and for
// tags a Capable authenticator rules out.
func (p *Policy) Satisfiable(tag Tag) bool {
	if !tag.Valid() {
		return false
	}
	if tag == TagNone {
		return true
	}
	if p.auth == nil {
		return false
	}
	if c, ok := p.auth.(Capable); ok {
		return c.CanSatisfy(tag)
	}
	return true
}

// authenticate runs the authenticator under the policy timeout. The call is
// abandoned, not waited for, once the deadline passes.
func (p *Policy) authenticate(ctx context.Context, caller Caller, tag Tag) (Factors, error) {
	actx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	type result struct {
		factors Factors
		err     error
	}
	ch := make(chan result, 1)
	go func() {
		f, err := p.auth.Authenticate(actx, caller, tag)
		ch <- result{f, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil && errors.Is(actx.Err(), context.DeadlineExceeded) {
			return Factors{}, ErrAuthenticationTimeout
		}
		return r.factors, r.err
	case <-actx.Done():
		if ctx.Err() != nil && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Factors{}, ctx.Err()
		}
		return Factors{}, ErrAuthenticationTimeout
	}
}

func (p *Policy) limiter(origin string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if lim, ok := p.limiters[origin]; ok {
		return lim
	}
	if len(p.limiters) >= p.maxOrigins {
		p.pruneLocked()
	}
	if len(p.limiters) >= p.maxOrigins {
		return p.overflow
	}
	lim := rate.NewLimiter(p.refill, p.burst)
	p.limiters[origin] = lim
	return lim
}

// pruneLocked forgets origins whose failure budget has fully refilled.
func (p *Policy) pruneLocked() {
	for origin, lim := range p.limiters {
		if lim.Tokens() >= float64(p.burst) {
			delete(p.limiters, origin)
		}
	}
}
