package simple

import (
	"context"
	"fmt"
	"sync"
)

// Generator hands out sequential ids such as "bk-1", "bk-2". It is meant for
// tests and local runs where predictable ids help.
type Generator struct {
	mu      sync.Mutex
	prefix  string
	counter int
}

func New(prefix string) *Generator {
	//nolint:exhaustruct
	return &Generator{prefix: prefix}
}

func (g *Generator) GetID(_ context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.counter++

	return fmt.Sprintf("%s-%d", g.prefix, g.counter), nil
}
