// Package lock provides named leases that serialize planner runs across
// instances (Redis) or within one process (Local).
package lock

import (
	"context"
	"errors"
	"strconv"
	"time"
)

// ErrNotAcquired is returned when the wait budget runs out before the lease frees up.
var ErrNotAcquired = errors.New("lock: not acquired")

// Locker hands out exclusive leases on string keys.
type Locker interface {
	Acquire(ctx context.Context, key string) (Lease, error)
}

// Lease is held until Release or until its TTL expires.
type Lease interface {
	Key() string
	Release(ctx context.Context) error
}

// Options controls lease lifetime and acquisition wait.
type Options struct {
	TTL          time.Duration
	Wait         time.Duration
	PollInterval time.Duration
	Prefix       string
}

func (o Options) withDefaults() Options {
	if o.TTL <= 0 {
		o.TTL = 2 * time.Minute
	}
	if o.Wait < 0 {
		o.Wait = 0
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 50 * time.Millisecond
	}
	return o
}

// BatchKey serializes optimizer batch runs.
func BatchKey() string { return "planning:batch" }

// CascadeKey serializes cascades for one auditor.
func CascadeKey(auditorID int64) string {
	return "planning:cascade:auditor:" + strconv.FormatInt(auditorID, 10)
}
