package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var ErrTimeout = errors.New("lock wait exceeded")

// Locker serializes work per key. The returned release func must be called
// exactly once.
type Locker interface {
	Acquire(ctx context.Context, key string) (func(), error)
}

type slot struct {
	ch   chan struct{}
	refs int
}

// Keyed is an in-process Locker. Different keys never contend; waiters on
// the same key give up when ctx ends or maxWait elapses.
type Keyed struct {
	mu      sync.Mutex
	slots   map[string]*slot
	maxWait time.Duration
}

func NewKeyed(maxWait time.Duration) *Keyed {
	//nolint:exhaustruct
	return &Keyed{
		slots:   make(map[string]*slot),
		maxWait: maxWait,
	}
}

func (k *Keyed) Acquire(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()

	s, ok := k.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		k.slots[key] = s
	}

	s.refs++
	k.mu.Unlock()

	var timeout <-chan time.Time

	if k.maxWait > 0 {
		timer := time.NewTimer(k.maxWait)
		defer timer.Stop()

		timeout = timer.C
	}

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		k.drop(key, s)

		return nil, fmt.Errorf("acquire %s: %w", key, ctx.Err())
	case <-timeout:
		k.drop(key, s)

		return nil, fmt.Errorf("acquire %s after %v: %w", key, k.maxWait, ErrTimeout)
	}

	var once sync.Once

	return func() {
		once.Do(func() {
			<-s.ch
			k.drop(key, s)
		})
	}, nil
}

func (k *Keyed) drop(key string, s *slot) {
	k.mu.Lock()
	defer k.mu.Unlock()

	s.refs--
	if s.refs == 0 {
		delete(k.slots, key)
	}
}

// Len reports how many keys are currently held or awaited.
func (k *Keyed) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()

	return len(k.slots)
}

func BookingKey(id string) string {
	return "booking:" + id
}

func ProfileKey(id string) string {
	return "profile:" + id
}
