package domain

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

var (
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrNotFound           = errors.New("stock counter not found")
	ErrContentionExceeded = errors.New("contention retry budget exceeded")
	ErrCompensationFailed = errors.New("compensation failed")
	ErrInvalidReservation = errors.New("invalid reservation request")
)

// LineItem is one (product, variant, quantity) entry of a reservation.
// Quantity is always positive; the direction of the mutation is decided by
// the operation (reserve consumes, restock replenishes).
type LineItem struct {
	ProductID  string
	VariantKey string
	Quantity   int
}

func (li LineItem) Key() string {
	return ResourceKey(li.ProductID, li.VariantKey)
}

// ReservationRequest is one checkout attempt. Ephemeral: built per request,
// never persisted on its own.
type ReservationRequest struct {
	OrderID string
	Items   []LineItem
}

// Validate rejects malformed requests before any mutation is attempted.
func (r ReservationRequest) Validate() error {
	if len(r.Items) == 0 {
		return fmt.Errorf("%w: no line items", ErrInvalidReservation)
	}
	seen := make(map[string]struct{}, len(r.Items))
	for i, li := range r.Items {
		if li.ProductID == "" {
			return fmt.Errorf("%w: item %d missing product id", ErrInvalidReservation, i)
		}
		if li.Quantity <= 0 {
			return fmt.Errorf("%w: item %d quantity must be positive", ErrInvalidReservation, i)
		}
		key := li.Key()
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%w: duplicate resource %s", ErrInvalidReservation, key)
		}
		seen[key] = struct{}{}
	}
	return nil
}

// SortedItems returns the line items ordered ascending by resource key so
// two concurrent requests sharing resources acquire them in the same order.
func (r ReservationRequest) SortedItems() []LineItem {
	items := make([]LineItem, len(r.Items))
	copy(items, r.Items)
	sort.Slice(items, func(i, j int) bool { return items[i].Key() < items[j].Key() })
	return items
}

// MutationOutcome is the per-item result of one mutator call.
type MutationOutcome struct {
	ProductID    string
	VariantKey   string
	Quantity     int
	Succeeded    bool
	NewAvailable int
	Reason       error
}

// ReservationResult aggregates per-item outcomes into the all-or-nothing
// answer for the whole request.
type ReservationResult struct {
	OrderID       string
	Success       bool
	Outcomes      []MutationOutcome
	FailureReason error
	CompletedAt   time.Time
}

type MovementKind string

const (
	MovementReserve    MovementKind = "reserve"
	MovementRestock    MovementKind = "restock"
	MovementCompensate MovementKind = "compensate"
)

// Movement is one audit-journal entry for a committed counter change.
type Movement struct {
	ID         string
	ProductID  string
	VariantKey string
	Delta      int
	OrderID    string
	Kind       MovementKind
	CreatedAt  time.Time
}
