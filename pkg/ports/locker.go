package ports

import (
	"context"
	"time"
)

// UnlockFunc releases a held lock.
type UnlockFunc func(ctx context.Context) error

// Locker coordinates exclusive access to a shared rule store. Training
// ingestion and tree induction rewrite whole families; processes sharing
// one backend take the family lock before bulk writes.
type Locker interface {
	// Lock blocks until the lock for key is acquired, the context is
	// canceled, or the backend fails. The returned UnlockFunc must be
	// called to release the lock; ttl bounds how long a crashed holder
	// keeps it.
	Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
}
