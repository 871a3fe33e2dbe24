// Package lock provides keyed locking so that battle streak updates
// for the same participant are serialized. The streak state machine
// allows at most one transition per participant per calendar day, and
// three independent entry points (battle action, habit edit, manual
// sync) can race; holding the (battle, user) lock across the whole
// read-decide-write keeps those from double-applying.
package lock

import (
	"context"
	"sync"
	"time"
)

// keyedMutex wraps a mutex with reference counting for cleanup.
type keyedMutex struct {
	mu       sync.Mutex
	refCount int
}

// KeyedLock provides per-key locking for short critical sections.
// Keys are opaque strings; see Participant for the battle convention.
type KeyedLock struct {
	locks sync.Map // map[string]*keyedMutex
	pool  sync.Pool
}

// Participant builds the lock key for a battle participant. Locking at
// (battle, user) granularity lets the two participants of one battle
// proceed independently while each serializes with itself.
func Participant(battleID, userID string) string {
	return battleID + ":" + userID
}

// NewKeyedLock creates a new KeyedLock instance.
func NewKeyedLock() *KeyedLock {
	return &KeyedLock{
		pool: sync.Pool{
			New: func() any {
				return &keyedMutex{}
			},
		},
	}
}

// getLock retrieves or creates the mutex for key.
func (kl *KeyedLock) getLock(key string) *keyedMutex {
	if v, ok := kl.locks.Load(key); ok {
		return v.(*keyedMutex)
	}

	newLock := kl.pool.Get().(*keyedMutex)
	newLock.refCount = 0

	actual, loaded := kl.locks.LoadOrStore(key, newLock)
	if loaded {
		// Another goroutine created the lock first, return ours to pool
		kl.pool.Put(newLock)
	}
	return actual.(*keyedMutex)
}

// Lock acquires the lock for key.
func (kl *KeyedLock) Lock(key string) {
	lock := kl.getLock(key)
	lock.mu.Lock()
	lock.refCount++
}

// Unlock releases the lock for key.
func (kl *KeyedLock) Unlock(key string) {
	if v, ok := kl.locks.Load(key); ok {
		lock := v.(*keyedMutex)
		lock.refCount--
		lock.mu.Unlock()
	}
}

// TryLock attempts to acquire the lock without blocking.
// Returns true if the lock was acquired, false otherwise.
func (kl *KeyedLock) TryLock(key string) bool {
	lock := kl.getLock(key)
	if lock.mu.TryLock() {
		lock.refCount++
		return true
	}
	return false
}

// LockWithTimeout attempts to acquire the lock with a timeout.
// Returns true if the lock was acquired, false if the timeout fired.
func (kl *KeyedLock) LockWithTimeout(ctx context.Context, key string, timeout time.Duration) bool {
	lock := kl.getLock(key)

	done := make(chan struct{})
	go func() {
		lock.mu.Lock()
		close(done)
	}()

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case <-done:
		lock.refCount++
		return true
	case <-timeoutCtx.Done():
		// The acquiring goroutine will eventually get the mutex;
		// release it as soon as it does.
		go func() {
			<-done
			lock.mu.Unlock()
		}()
		return false
	}
}

// WithLock executes fn while holding the key's lock.
func (kl *KeyedLock) WithLock(key string, fn func() error) error {
	kl.Lock(key)
	defer kl.Unlock(key)
	return fn()
}

// WithLockContext executes fn while holding the key's lock, honoring
// context cancellation while waiting.
func (kl *KeyedLock) WithLockContext(ctx context.Context, key string, timeout time.Duration, fn func() error) error {
	if !kl.LockWithTimeout(ctx, key, timeout) {
		return ErrLockTimeout
	}
	defer kl.Unlock(key)

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fn()
	}
}

// IsLocked checks if a key currently has an active lock.
// Note: this is a point-in-time check and may change immediately after.
func (kl *KeyedLock) IsLocked(key string) bool {
	if v, ok := kl.locks.Load(key); ok {
		lock := v.(*keyedMutex)
		if lock.mu.TryLock() {
			lock.mu.Unlock()
			return false
		}
		return true
	}
	return false
}
