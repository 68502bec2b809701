package lock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestKeyedSerializesSameKey(t *testing.T) {
	t.Parallel()

	k := NewKeyed(time.Second)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)

	for i := 0; i < 20; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			release, err := k.Acquire(context.Background(), BookingKey("b-1"))
			if err != nil {
				t.Errorf("acquire: %v", err)

				return
			}
			defer release()

			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}

	wg.Wait()

	if maxSeen != 1 {
		t.Fatalf("expected at most one holder, saw %d", maxSeen)
	}

	if k.Len() != 0 {
		t.Fatalf("expected no slots left, got %d", k.Len())
	}
}

func TestKeyedDifferentKeysDoNotContend(t *testing.T) {
	t.Parallel()

	k := NewKeyed(50 * time.Millisecond)

	releaseA, err := k.Acquire(context.Background(), BookingKey("a"))
	if err != nil {
		t.Fatalf("acquire a: %v", err)
	}
	defer releaseA()

	releaseB, err := k.Acquire(context.Background(), BookingKey("b"))
	if err != nil {
		t.Fatalf("acquire b while a is held: %v", err)
	}

	releaseB()
}

func TestKeyedTimesOut(t *testing.T) {
	t.Parallel()

	k := NewKeyed(20 * time.Millisecond)

	release, err := k.Acquire(context.Background(), ProfileKey("p"))
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer release()

	if _, err := k.Acquire(context.Background(), ProfileKey("p")); !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestKeyedHonoursContext(t *testing.T) {
	t.Parallel()

	k := NewKeyed(0)

	release, err := k.Acquire(context.Background(), "x")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := k.Acquire(ctx, "x"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	release()
	release()

	if k.Len() != 0 {
		t.Fatalf("double release must be harmless, slots left %d", k.Len())
	}
}
