// Package locks serializes work on a single card across requests and processes.
package locks

import (
	"context"
	"errors"
	"strconv"
	"time"
)

// ErrNotObtained is returned when a lock stays held past the caller's wait budget.
var ErrNotObtained = errors.New("locks: not obtained")

// Lock is a held lock.
type Lock interface {
	Release(ctx context.Context) error
}

// Locker hands out exclusive locks by key.
type Locker interface {
	// Obtain blocks until key is locked, ctx ends, or the wait budget is spent.
	// ttl bounds how long a crashed holder can keep the lock.
	Obtain(ctx context.Context, key string, ttl time.Duration) (Lock, error)
}

// CardKey returns the lock key guarding a card.
func CardKey(cardID uint64) string {
	return "cardhub:card:" + strconv.FormatUint(cardID, 10)
}
