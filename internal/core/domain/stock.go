package domain

import "time"

type CounterStatus string

const (
	CounterStatusActive   CounterStatus = "active"
	CounterStatusDisabled CounterStatus = "disabled"
)

// StockCounter is the durable availability record for one product variant.
// VariantKey is "" for products without option combinations.
type StockCounter struct {
	ProductID  string
	VariantKey string
	Available  int
	Version    int // optimistic locking
	Status     CounterStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (c StockCounter) Key() string {
	return ResourceKey(c.ProductID, c.VariantKey)
}

// ResourceKey is the canonical identity of a counter, used for deterministic
// lock ordering across multi-item reservations.
func ResourceKey(productID, variantKey string) string {
	return productID + "/" + variantKey
}
