package uuidgen_test

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/avstrong/staytrust/internal/idgen/uuidgen"
)

func TestGetIDReturnsDistinctUUIDs(t *testing.T) {
	g := uuidgen.New()
	seen := make(map[string]struct{})

	for i := 0; i < 100; i++ {
		id, err := g.GetID(context.Background())
		if err != nil {
			t.Fatalf("GetID() error = %v", err)
		}

		if _, err := uuid.Parse(id); err != nil {
			t.Fatalf("GetID() = %q, not a UUID: %v", id, err)
		}

		if _, dup := seen[id]; dup {
			t.Fatalf("GetID() returned %s twice", id)
		}

		seen[id] = struct{}{}
	}
}
