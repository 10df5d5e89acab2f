package port

import (
	"context"

	"github.com/hqtran/inventory-core/internal/core/domain"
)

// StockLedger is the single source of truth for availability. Apply is the
// only operation permitted to change a counter's available quantity.
type StockLedger interface {
	// Apply atomically checks and writes available+delta on one counter.
	// Delta is negative for consumption, positive for restock/compensation.
	// Returns the post-mutation available count.
	Apply(ctx context.Context, productID, variantKey string, delta int) (int, error)

	// GetCounter reads one counter. Returns domain.ErrNotFound when the
	// (product, variant) pair does not exist.
	GetCounter(ctx context.Context, productID, variantKey string) (*domain.StockCounter, error)

	// CreateCounter seeds a new counter row.
	CreateCounter(ctx context.Context, counter domain.StockCounter) error

	// SetStatus enables or disables a counter. Disabled counters refuse
	// consumption but still accept compensating restocks.
	SetStatus(ctx context.Context, productID, variantKey string, status domain.CounterStatus) error

	// RecordMovement appends one entry to the stock movement journal.
	RecordMovement(ctx context.Context, movement domain.Movement) error
}
