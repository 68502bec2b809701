package booking

import (
	"context"
	"strings"
)

type contextKey string

const idempotencyKey contextKey = "idempotencyKey"

func NewContextWithIdempotencyKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, idempotencyKey, key)
}

func IdempotencyKeyFromContext(ctx context.Context) (string, bool) {
	key, ok := ctx.Value(idempotencyKey).(string)

	return key, ok && key != ""
}

// guestScopedKey binds a client key to the guest it was sent for, so two
// guests never share a key space.
func guestScopedKey(guestID, key string) string {
	if strings.HasPrefix(key, guestID+":") {
		return key
	}

	return guestID + ":" + key
}
