// internal/common/lock/local.go
package lock

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// LocalLocker is an in-process Locker used when Redis is disabled.
// TTL is ignored; leases live until released.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]chan struct{}
	opts Options
}

func NewLocalLocker(opts Options) *LocalLocker {
	return &LocalLocker{held: make(map[string]chan struct{}), opts: opts.withDefaults()}
}

func (l *LocalLocker) Acquire(ctx context.Context, key string) (Lease, error) {
	fullKey := l.opts.Prefix + key
	timer := time.NewTimer(l.opts.Wait)
	defer timer.Stop()

	for {
		l.mu.Lock()
		released, busy := l.held[fullKey]
		if !busy {
			l.held[fullKey] = make(chan struct{})
			l.mu.Unlock()
			return &localLease{owner: l, key: fullKey}, nil
		}
		l.mu.Unlock()

		select {
		case <-released:
		case <-timer.C:
			return nil, fmt.Errorf("%w: %s", ErrNotAcquired, fullKey)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

type localLease struct {
	owner *LocalLocker
	key   string
	once  sync.Once
}

func (l *localLease) Key() string { return l.key }

func (l *localLease) Release(context.Context) error {
	released := false
	l.once.Do(func() {
		l.owner.mu.Lock()
		defer l.owner.mu.Unlock()
		if ch, ok := l.owner.held[l.key]; ok {
			close(ch)
			delete(l.owner.held, l.key)
			released = true
		}
	})
	if !released {
		return fmt.Errorf("%w: %s", ErrLeaseLost, l.key)
	}
	return nil
}
