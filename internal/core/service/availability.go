package service

import (
	"context"

	"github.com/hqtran/inventory-core/internal/core/domain"
)

// Availability is the advisory pre-checkout answer for one counter.
type Availability struct {
	Available bool
	Quantity  int
}

// CheckAvailability reports whether quantity units look obtainable right
// now. Pure read: the mirror is tried first, the ledger on a miss, and the
// answer may be stale by the time a reservation is attempted. The mutator
// re-checks everything at commit; this path only short-circuits obviously
// doomed attempts.
func (s *ReservationService) CheckAvailability(ctx context.Context, productID, variantKey string, quantity int) (Availability, error) {
	if productID == "" || quantity <= 0 {
		return Availability{}, domain.ErrInvalidReservation
	}

	key := domain.ResourceKey(productID, variantKey)
	if mirrored, ok, err := s.cache.GetQuantity(ctx, key); err == nil && ok {
		return Availability{Available: mirrored >= quantity, Quantity: mirrored}, nil
	} else if err != nil {
		s.logger.Debug().Str("resource", key).Err(err).Msg("mirror read failed, falling back to ledger")
	}

	counter, err := s.ledger.GetCounter(ctx, productID, variantKey)
	if err != nil {
		return Availability{}, err
	}

	if counter.Status == domain.CounterStatusDisabled {
		return Availability{Available: false, Quantity: 0}, nil
	}

	if err := s.cache.SetQuantity(ctx, key, counter.Available); err != nil {
		s.logger.Debug().Str("resource", key).Err(err).Msg("mirror backfill failed")
	}
	return Availability{Available: counter.Available >= quantity, Quantity: counter.Available}, nil
}
