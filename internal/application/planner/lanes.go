package planner

import (
	"context"
	"sync"
)

// lanes serializes work per key in arrival order. Each acquirer waits for
// the previous holder of the same key; different keys never block each other.
type lanes struct {
	mu    sync.Mutex
	tails map[string]chan struct{}
}

func newLanes() *lanes {
	return &lanes{tails: make(map[string]chan struct{})}
}

// acquire blocks until every earlier acquirer of key has released.
// PRE: release is called exactly once when err is nil
// POST: on ctx cancellation the slot is still handed on in order
func (l *lanes) acquire(ctx context.Context, key string) (release func(), err error) {
	l.mu.Lock()
	prev := l.tails[key]
	done := make(chan struct{})
	l.tails[key] = done
	l.mu.Unlock()

	release = func() {
		l.mu.Lock()
		if l.tails[key] == done {
			delete(l.tails, key)
		}
		l.mu.Unlock()
		close(done)
	}

	if prev == nil {
		return release, nil
	}
	select {
	case <-prev:
		return release, nil
	case <-ctx.Done():
		go func() {
			<-prev
			release()
		}()
		return nil, ctx.Err()
	}
}

// busy reports whether any work is queued or running for key.
func (l *lanes) busy(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.tails[key]
	return ok
}
