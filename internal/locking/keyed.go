// Package locking serializes engine mutations per (account, security) pair.
// Lot quantities carry a sum invariant that last-committer-wins would break,
// so every mutation on a holding takes its key lock before opening a database
// transaction. Different holdings proceed in parallel.
package locking

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	apperrors "lotkeeper/internal/errors"
)

// KeyedLock hands out one weighted(1) semaphore per key. Acquisition is
// bounded: a waiter that cannot get the lock within the timeout fails with
// ErrContention instead of queueing indefinitely.
type KeyedLock struct {
	mu      sync.Mutex
	sems    map[string]*semaphore.Weighted
	timeout time.Duration
}

// NewKeyedLock creates a KeyedLock with the given acquisition timeout.
func NewKeyedLock(timeout time.Duration) *KeyedLock {
	return &KeyedLock{
		sems:    make(map[string]*semaphore.Weighted),
		timeout: timeout,
	}
}

// Key builds the lock key for an (account, security) pair.
func Key(accountID, securityID string) string {
	return accountID + "|" + securityID
}

func (k *KeyedLock) sem(key string) *semaphore.Weighted {
	k.mu.Lock()
	defer k.mu.Unlock()
	s, ok := k.sems[key]
	if !ok {
		s = semaphore.NewWeighted(1)
		k.sems[key] = s
	}
	return s
}

// Acquire takes the lock for key, waiting at most the configured timeout.
// Returns ErrContention if the lock could not be acquired in time. On success
// the caller must call the returned release function.
func (k *KeyedLock) Acquire(key string) (release func(), err error) {
	s := k.sem(key)

	ctx, cancel := context.WithTimeout(context.Background(), k.timeout)
	defer cancel()

	if err := s.Acquire(ctx, 1); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrContention, err)
	}
	return func() { s.Release(1) }, nil
}

// WithLock runs fn while holding the lock for key.
func (k *KeyedLock) WithLock(key string, fn func() error) error {
	release, err := k.Acquire(key)
	if err != nil {
		return err
	}
	defer release()
	return fn()
}
