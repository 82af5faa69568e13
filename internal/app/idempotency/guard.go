// Package idempotency serialises work on a key and remembers keys that have
// already been handled, so overlapping webhook and checkout callbacks for the
// same payment are recorded once.
package idempotency

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrLockTimeout is returned when a lock could not be taken before the wait
// deadline.
var ErrLockTimeout = errors.New("idempotency: lock wait timed out")

// Guard is implemented by the in-process and Redis backends.
type Guard interface {
	// Lock blocks until key is held by the caller, ctx is done, or the wait
	// limit passes. The returned func releases the lock.
	Lock(ctx context.Context, key string) (unlock func(), err error)
	// MarkOnce records key for ttl and reports whether this call was the
	// first to do so.
	MarkOnce(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Forget removes a mark so the key can be handled again.
	Forget(ctx context.Context, key string) error
}

// Options tune lock behaviour.
type Options struct {
	// LockTTL bounds how long a crashed holder can block others.
	LockTTL time.Duration
	// Wait is the longest Lock waits before ErrLockTimeout.
	Wait time.Duration
	// Poll is the retry interval while waiting.
	Poll time.Duration
}

func (o Options) withDefaults() Options {
	if o.LockTTL <= 0 {
		o.LockTTL = 30 * time.Second
	}
	if o.Wait <= 0 {
		o.Wait = 10 * time.Second
	}
	if o.Poll <= 0 {
		o.Poll = 50 * time.Millisecond
	}
	return o
}

// Memory is a single-process Guard.
type Memory struct {
	mu    sync.Mutex
	opts  Options
	locks map[string]string
	marks map[string]time.Time
	now   func() time.Time
}

var _ Guard = (*Memory)(nil)

// NewMemory creates an in-process guard.
func NewMemory(opts Options) *Memory {
	return &Memory{
		opts:  opts.withDefaults(),
		locks: make(map[string]string),
		marks: make(map[string]time.Time),
		now:   time.Now,
	}
}

func (m *Memory) tryLock(key, token string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, held := m.locks[key]; held {
		return false
	}
	m.locks[key] = token
	return true
}

func (m *Memory) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	err := waitFor(ctx, m.opts, func() (bool, error) { return m.tryLock(key, token), nil })
	if err != nil {
		return nil, err
	}
	return func() {
		m.mu.Lock()
		if m.locks[key] == token {
			delete(m.locks, key)
		}
		m.mu.Unlock()
	}, nil
}

func (m *Memory) MarkOnce(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if exp, ok := m.marks[key]; ok && now.Before(exp) {
		return false, nil
	}
	m.marks[key] = now.Add(ttl)
	m.sweep(now)
	return true, nil
}

func (m *Memory) Forget(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.marks, key)
	m.mu.Unlock()
	return nil
}

// sweep drops expired marks; called with mu held.
func (m *Memory) sweep(now time.Time) {
	if len(m.marks) < 1024 {
		return
	}
	for k, exp := range m.marks {
		if !now.Before(exp) {
			delete(m.marks, k)
		}
	}
}

func waitFor(ctx context.Context, opts Options, try func() (bool, error)) error {
	deadline := time.NewTimer(opts.Wait)
	defer deadline.Stop()
	ticker := time.NewTicker(opts.Poll)
	defer ticker.Stop()

	for {
		ok, err := try()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return ErrLockTimeout
		case <-ticker.C:
		}
	}
}
