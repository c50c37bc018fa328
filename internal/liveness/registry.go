// Package liveness holds the account registry and the ownership state
// machine: ping renews the owner's liveness window, and the designated
// backup may claim ownership once the window has lapsed.
package liveness

import (
	"errors"
	"sync"
	"time"

	"github.com/lastping/lastpingd/internal/principal"
)

var (
	ErrNotFound       = errors.New("liveness: no account for principal")
	ErrAlreadyExists  = errors.New("liveness: account already exists")
	ErrNotOwner       = errors.New("liveness: caller is not the account owner")
	ErrNotBackup      = errors.New("liveness: caller is not the designated backup")
	ErrNotExpired     = errors.New("liveness: account is not expired")
	ErrInvalidBackup  = errors.New("liveness: backup must differ from owner")
	ErrInvalidTimeout = errors.New("liveness: timeout must be positive")
)

// Clock supplies the call-scoped time reading. Every operation reads it
// exactly once, before validation.
type Clock func() time.Time

// Observer receives the outcome of each engine operation. Used for metrics;
// a nil observer is ignored.
type Observer func(op string, err error)

// Registry maps principals to their accounts and runs every engine
// operation under one mutex, so validation and mutation of a record are
// atomic with respect to any other call, claim included.
type Registry struct {
	mu       sync.Mutex
	accounts map[string]*Account
	clock    Clock
	timeout  time.Duration
	rev      uint64
	observe  Observer
}

// Option adjusts registry construction.
type Option func(*Registry)

// WithClock overrides the wall clock, for tests and replay.
func WithClock(clock Clock) Option {
	return func(r *Registry) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// WithDefaultTimeout overrides the timeout assigned at initialization.
func WithDefaultTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithObserver binds an operation-outcome hook.
func WithObserver(observe Observer) Option {
	return func(r *Registry) {
		r.observe = observe
	}
}

// NewRegistry constructs an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		accounts: make(map[string]*Account),
		clock:    time.Now,
		timeout:  DefaultTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Exists reports whether an account was ever initialized for the principal.
// No authorization is required.
func (r *Registry) Exists(id principal.Principal) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.accounts[id.Text()]
	return ok
}

// Initialize creates the caller's account with no backup, the default
// timeout, and last_ping set to now. Exactly-once per principal: a repeat
// call fails with ErrAlreadyExists and never touches the first record.
func (r *Registry) Initialize(caller principal.Principal) (View, error) {
	now := r.clock()
	r.mu.Lock()
	defer r.mu.Unlock()

	key := caller.Text()
	if _, ok := r.accounts[key]; ok {
		r.record("initialize", ErrAlreadyExists)
		return View{}, ErrAlreadyExists
	}
	account := &Account{
		Owner:     caller,
		LastPing:  now,
		Timeout:   r.timeout,
		CreatedAt: now,
	}
	r.accounts[key] = account
	r.rev++
	r.record("initialize", nil)
	return account.viewAt(now), nil
}

// Status returns the account projection for the given principal's record.
// World-readable: existence is the only requirement.
func (r *Registry) Status(id principal.Principal) (View, error) {
	now := r.clock()
	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.accounts[id.Text()]
	if !ok {
		r.record("status", ErrNotFound)
		return View{}, ErrNotFound
	}
	r.record("status", nil)
	return account.viewAt(now), nil
}

// Ping renews the caller's liveness window. Only the current owner proves
// liveness; this is the sole operation that resets the timer.
func (r *Registry) Ping(caller principal.Principal) (View, error) {
	now := r.clock()
	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.accounts[caller.Text()]
	if !ok {
		r.record("ping", ErrNotFound)
		return View{}, ErrNotFound
	}
	if !account.Owner.Equal(caller) {
		r.record("ping", ErrNotOwner)
		return View{}, ErrNotOwner
	}
	account.LastPing = now
	r.rev++
	r.record("ping", nil)
	return account.viewAt(now), nil
}

// SetBackup designates the principal allowed to claim after expiry. A
// configuration act: it does not reset last_ping.
func (r *Registry) SetBackup(caller, backup principal.Principal) (View, error) {
	now := r.clock()
	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.accounts[caller.Text()]
	if !ok {
		r.record("set_backup", ErrNotFound)
		return View{}, ErrNotFound
	}
	if !account.Owner.Equal(caller) {
		r.record("set_backup", ErrNotOwner)
		return View{}, ErrNotOwner
	}
	if backup.IsZero() || backup.Equal(account.Owner) {
		r.record("set_backup", ErrInvalidBackup)
		return View{}, ErrInvalidBackup
	}
	b := backup
	account.Backup = &b
	r.rev++
	r.record("set_backup", nil)
	return account.viewAt(now), nil
}

// SetTimeout replaces the expiry window. It does not reset last_ping, so a
// shortened window may render the account expired immediately; the owner
// who shortens their own timeout bears that consequence.
func (r *Registry) SetTimeout(caller principal.Principal, timeout time.Duration) (View, error) {
	now := r.clock()
	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.accounts[caller.Text()]
	if !ok {
		r.record("set_timeout", ErrNotFound)
		return View{}, ErrNotFound
	}
	if !account.Owner.Equal(caller) {
		r.record("set_timeout", ErrNotOwner)
		return View{}, ErrNotOwner
	}
	if timeout <= 0 {
		r.record("set_timeout", ErrInvalidTimeout)
		return View{}, ErrInvalidTimeout
	}
	account.Timeout = timeout
	r.rev++
	r.record("set_timeout", nil)
	return account.viewAt(now), nil
}

// Claim transfers ownership of the account registered under the original
// owner's principal to the caller. Requires the caller to be the designated
// backup and the account to be expired at call time. On success the claim
// itself counts as a liveness signal: owner := caller, backup cleared,
// last_ping := now, timeout preserved. The registry mutex makes the
// expiry check and the mutation one atomic step, so a second claimant
// re-reads the updated record and is rejected with ErrNotBackup.
func (r *Registry) Claim(caller, originalOwner principal.Principal) (View, error) {
	now := r.clock()
	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.accounts[originalOwner.Text()]
	if !ok {
		r.record("claim", ErrNotFound)
		return View{}, ErrNotFound
	}
	if account.Backup == nil || !account.Backup.Equal(caller) {
		r.record("claim", ErrNotBackup)
		return View{}, ErrNotBackup
	}
	if !account.ExpiredAt(now) {
		r.record("claim", ErrNotExpired)
		return View{}, ErrNotExpired
	}
	account.Owner = caller
	account.Backup = nil
	account.LastPing = now
	r.rev++
	r.record("claim", nil)
	return account.viewAt(now), nil
}

// Stats summarizes registry state for heartbeat logging and gauges.
type Stats struct {
	Accounts int
	Expired  int
	Revision uint64
}

// Stats counts registered and currently-expired accounts at call time.
func (r *Registry) Stats() Stats {
	now := r.clock()
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := Stats{Accounts: len(r.accounts), Revision: r.rev}
	for _, account := range r.accounts {
		if account.ExpiredAt(now) {
			stats.Expired++
		}
	}
	return stats
}

// Revision reports the mutation counter; the snapshot loop persists only
// when it has advanced.
func (r *Registry) Revision() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rev
}

func (r *Registry) record(op string, err error) {
	if r.observe != nil {
		r.observe(op, err)
	}
}
