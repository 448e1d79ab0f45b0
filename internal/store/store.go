// Package store is the entry store: encrypted credentials keyed by id, each
// guarded by an immutable access policy tag, with every access recorded in
// the audit log.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"syscall"
	"time"

	"github.com/benaskins/securestore/internal/audit"
	"github.com/benaskins/securestore/internal/crypto"
	"github.com/benaskins/securestore/internal/keychain"
	"github.com/benaskins/securestore/internal/policy"
)

// Cipher seals and opens payloads. *crypto.Engine implements it.
type Cipher interface {
	Suite() crypto.Suite
	Encrypt(plaintext, ad []byte, key crypto.Key) (ciphertext, nonce []byte, err error)
	Decrypt(ciphertext, nonce, ad []byte, key crypto.Key) ([]byte, error)
}

// Keys provides the master key. *keychain.Manager implements it.
type Keys interface {
	GetOrCreateMasterKey(ctx context.Context) (*keychain.KeyHandle, error)
	Reset(ctx context.Context) error
}

// Authorizer decides access to tagged entries. *policy.Policy implements it.
type Authorizer interface {
	Authorize(ctx context.Context, tag policy.Tag, caller policy.Caller) (policy.Decision, error)
}

// satisfiable is implemented by authorizers that know when a tag can never
// be granted. *policy.Policy implements it.
type satisfiable interface {
	Satisfiable(tag policy.Tag) bool
}

// Recorder receives audit records. *audit.Logger implements it.
type Recorder interface {
	Record(r audit.Record)
}

// Options configures a Store. Records, Keys and Policy are required.
type Options struct {
	Records Records
	Keys    Keys
	Policy  Authorizer

	// Cipher defaults to an engine for crypto.DefaultSuite.
	Cipher Cipher
	// Audit defaults to discarding records.
	Audit Recorder

	// MaxEntries caps the number of entries. Zero means unlimited.
	MaxEntries int
	// MaxPayloadBytes caps the plaintext size. Zero means unlimited.
	MaxPayloadBytes int
}

// Store holds encrypted entries.
type Store struct {
	records Records
	keys    Keys
	policy  Authorizer
	cipher  Cipher
	audit   Recorder

	maxEntries int
	maxPayload int

	// all is held shared by single-entry operations and exclusively by
	// Clear and Reset.
	all    sync.RWMutex
	ids    *idLocks
	create sync.Mutex

	now    func() time.Time
	logger *slog.Logger
}

type discard struct{}

func (discard) Record(audit.Record) {}

// New assembles a Store.
func New(opts Options) (*Store, error) {
	if opts.Records == nil {
		return nil, errors.New("store: records backend is required")
	}
	if opts.Keys == nil {
		return nil, errors.New("store: key manager is required")
	}
	if opts.Policy == nil {
		return nil, errors.New("store: access policy is required")
	}
	c := opts.Cipher
	if c == nil {
		engine, err := crypto.NewEngine(crypto.DefaultSuite)
		if err != nil {
			return nil, err
		}
		c = engine
	}
	rec := opts.Audit
	if rec == nil {
		rec = discard{}
	}
	return &Store{
		records:    opts.Records,
		keys:       opts.Keys,
		policy:     opts.Policy,
		cipher:     c,
		audit:      rec,
		maxEntries: opts.MaxEntries,
		maxPayload: opts.MaxPayloadBytes,
		ids:        newIDLocks(),
		now:        time.Now,
		logger:     slog.With("component", "store"),
	}, nil
}

type actorKey struct{}

// WithActor names the actor recorded in the audit log for Put, Delete and
// Clear. Get takes the actor from its Caller and falls back to this.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

func actorFrom(ctx context.Context) string {
	actor, _ := ctx.Value(actorKey{}).(string)
	return actor
}

func (s *Store) record(id string, op audit.Operation, actor string, err error) {
	r := audit.Record{
		EntryID:   id,
		Operation: op,
		Actor:     actor,
		Outcome:   audit.OutcomeSuccess,
	}
	switch {
	case err == nil:
	case errors.Is(err, ErrAccessDenied), errors.Is(err, ErrPolicyViolation):
		r.Outcome = audit.OutcomeDenied
		r.Error = err.Error()
	default:
		r.Outcome = audit.OutcomeError
		r.Error = err.Error()
	}
	s.audit.Record(r)
}

// Put stores plaintext under id, creating the entry or replacing its
// payload. The policy tag of an existing entry cannot change.
func (s *Store) Put(ctx context.Context, id string, plaintext []byte, tag policy.Tag) (err error) {
	defer func() { s.record(id, audit.OpWrite, actorFrom(ctx), err) }()

	if err := ValidateID(id); err != nil {
		return err
	}
	if !tag.Valid() {
		return fmt.Errorf("%w: unknown policy %q", ErrPolicyViolation, tag)
	}
	if sp, ok := s.policy.(satisfiable); ok && !sp.Satisfiable(tag) {
		return fmt.Errorf("%w: policy %q cannot be satisfied on this device", ErrPolicyViolation, tag)
	}
	if s.maxPayload > 0 && len(plaintext) > s.maxPayload {
		return fmt.Errorf("%w: payload of %d bytes exceeds limit of %d", ErrStorageFull, len(plaintext), s.maxPayload)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.all.RLock()
	defer s.all.RUnlock()
	unlock := s.ids.lock(id)
	defer unlock()

	existing, err := s.records.Load(ctx, id)
	switch {
	case err == nil:
		if existing.Policy != tag {
			return fmt.Errorf("%w: entry %q has policy %s, not %s", ErrPolicyViolation, id, existing.Policy, tag)
		}
	case errors.Is(err, ErrNotFound):
		// Creation is serialized so concurrent puts cannot overshoot the
		// entry limit.
		s.create.Lock()
		defer s.create.Unlock()
		if err := s.checkCapacity(ctx); err != nil {
			return err
		}
	default:
		return err
	}

	handle, err := s.keys.GetOrCreateMasterKey(ctx)
	if err != nil {
		return err
	}
	ciphertext, nonce, err := s.cipher.Encrypt(plaintext, associatedData(id, tag, s.cipher.Suite()), handle)
	if err != nil {
		return fmt.Errorf("encrypting entry: %w", err)
	}

	now := s.now().UTC().Truncate(time.Millisecond)
	rec := &Record{
		ID:         id,
		Policy:     tag,
		Suite:      s.cipher.Suite(),
		Nonce:      nonce,
		Ciphertext: ciphertext,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if existing != nil {
		rec.Version = existing.Version + 1
		rec.CreatedAt = existing.CreatedAt
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.records.Save(rec); err != nil {
		if errors.Is(err, syscall.ENOSPC) {
			return fmt.Errorf("%w: %w", ErrStorageFull, err)
		}
		return err
	}
	s.logger.Debug("entry written", "id", id, "policy", tag, "version", rec.Version)
	return nil
}

func (s *Store) checkCapacity(ctx context.Context) error {
	if s.maxEntries <= 0 {
		return nil
	}
	ids, err := s.records.IDs(ctx)
	if err != nil {
		return err
	}
	if len(ids) >= s.maxEntries {
		return fmt.Errorf("%w: %d entries stored, limit is %d", ErrStorageFull, len(ids), s.maxEntries)
	}
	return nil
}

// Get returns the plaintext for id once caller satisfies the entry's
// policy. A denied caller never reaches the cipher.
func (s *Store) Get(ctx context.Context, id string, caller policy.Caller) (plaintext []byte, err error) {
	if caller.Actor == "" {
		caller.Actor = actorFrom(ctx)
	}
	defer func() { s.record(id, audit.OpRead, caller.Actor, err) }()

	if err := ValidateID(id); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.all.RLock()
	defer s.all.RUnlock()
	unlock := s.ids.rlock(id)
	defer unlock()

	rec, err := s.records.Load(ctx, id)
	if err != nil {
		return nil, err
	}

	decision, err := s.policy.Authorize(ctx, rec.Policy, caller)
	if err != nil {
		return nil, err
	}
	if !decision.Granted {
		s.logger.Info("access denied", "id", id, "actor", caller.Actor, "reason", decision.Reason)
		return nil, decision.Err()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	handle, err := s.keys.GetOrCreateMasterKey(ctx)
	if err != nil {
		return nil, err
	}

	c := s.cipher
	if rec.Suite != c.Suite() {
		engine, err := crypto.NewEngine(rec.Suite)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrAuthenticationFailure, err)
		}
		c = engine
	}
	plaintext, err = c.Decrypt(rec.Ciphertext, rec.Nonce, associatedData(rec.ID, rec.Policy, rec.Suite), handle)
	if err != nil {
		s.logger.Warn("entry failed authentication", "id", id)
		// A malformed nonce or ciphertext is tampering like any other.
		if !errors.Is(err, ErrAuthenticationFailure) {
			err = fmt.Errorf("%w: %w", ErrAuthenticationFailure, err)
		}
		return nil, err
	}
	return plaintext, nil
}

// Delete removes the entry for id.
func (s *Store) Delete(ctx context.Context, id string) (err error) {
	defer func() { s.record(id, audit.OpDelete, actorFrom(ctx), err) }()

	if err := ValidateID(id); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.all.RLock()
	defer s.all.RUnlock()
	unlock := s.ids.lock(id)
	defer unlock()

	if err := s.records.Remove(id); err != nil {
		return err
	}
	s.logger.Debug("entry deleted", "id", id)
	return nil
}

// List returns every entry id in ascending order.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.all.RLock()
	defer s.all.RUnlock()
	return s.records.IDs(ctx)
}

// Info returns the metadata of an entry without decrypting it.
func (s *Store) Info(ctx context.Context, id string) (Info, error) {
	if err := ValidateID(id); err != nil {
		return Info{}, err
	}
	s.all.RLock()
	defer s.all.RUnlock()
	unlock := s.ids.rlock(id)
	defer unlock()

	rec, err := s.records.Load(ctx, id)
	if err != nil {
		return Info{}, err
	}
	return rec.info(), nil
}

// Clear deletes every entry and returns how many were removed. Each removal
// is audited. Cancellation stops it between entries.
func (s *Store) Clear(ctx context.Context) (int, error) {
	s.all.Lock()
	defer s.all.Unlock()
	return s.clearLocked(ctx)
}

func (s *Store) clearLocked(ctx context.Context) (int, error) {
	ids, err := s.records.IDs(ctx)
	if err != nil {
		return 0, err
	}
	actor := actorFrom(ctx)
	removed := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		err := s.records.Remove(id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		s.record(id, audit.OpDelete, actor, err)
		if err != nil {
			return removed, err
		}
		removed++
	}
	s.logger.Info("store cleared", "removed", removed)
	return removed, nil
}

// Reset clears the store and destroys the master key.
func (s *Store) Reset(ctx context.Context) (int, error) {
	s.all.Lock()
	defer s.all.Unlock()
	removed, err := s.clearLocked(ctx)
	if err != nil {
		return removed, err
	}
	if err := s.keys.Reset(ctx); err != nil {
		return removed, fmt.Errorf("resetting master key: %w", err)
	}
	s.logger.Info("store reset")
	return removed, nil
}

// Health reports whether the records backend answers.
func (s *Store) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := s.records.IDs(ctx)
	return err
}

// Close releases the records backend.
func (s *Store) Close() error {
	return s.records.Close()
}
