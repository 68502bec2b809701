package simple

import (
	"context"
	"sync"
	"testing"
)

func TestGeneratorIsSequential(t *testing.T) {
	g := New("bk")

	for _, want := range []string{"bk-1", "bk-2", "bk-3"} {
		got, err := g.GetID(context.Background())
		if err != nil {
			t.Fatalf("GetID() error = %v", err)
		}

		if got != want {
			t.Fatalf("GetID() = %s, want %s", got, want)
		}
	}
}

func TestGeneratorIsSafeForConcurrentUse(t *testing.T) {
	g := New("ev")

	const workers = 50

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[string]struct{}, workers)
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			id, _ := g.GetID(context.Background())

			mu.Lock()
			seen[id] = struct{}{}
			mu.Unlock()
		}()
	}

	wg.Wait()

	if len(seen) != workers {
		t.Fatalf("got %d distinct ids, want %d", len(seen), workers)
	}
}
