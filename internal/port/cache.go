package port

import "context"

// AvailabilityCache mirrors counter quantities for the advisory read path.
// It is never authoritative: the ledger decides every commit.
type AvailabilityCache interface {
	// GetQuantity returns the mirrored quantity. ok is false on a miss.
	GetQuantity(ctx context.Context, resourceKey string) (quantity int, ok bool, err error)

	// SetQuantity refreshes the mirror after a committed mutation.
	SetQuantity(ctx context.Context, resourceKey string, quantity int) error

	// Invalidate drops a mirrored entry.
	Invalidate(ctx context.Context, resourceKey string) error

	// SetIdempotency sets a key for idempotency check, returns false if already exists.
	SetIdempotency(ctx context.Context, key string) (bool, error)
}
