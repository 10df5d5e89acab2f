package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hqtran/inventory-core/internal/core/domain"
	"github.com/hqtran/inventory-core/internal/metrics"
	"github.com/hqtran/inventory-core/internal/port"
)

// ReservationService coordinates multi-item stock reservations: every line
// item commits through the ledger's atomic mutator, and a failure after
// partial progress compensates the already-applied items in reverse order.
// The service never leaves a request partially applied from the caller's
// perspective, except for a loudly-reported compensation failure.
type ReservationService struct {
	ledger    port.StockLedger
	cache     port.AvailabilityCache
	logger    zerolog.Logger
	movements chan domain.Movement
}

func NewReservationService(ledger port.StockLedger, cache port.AvailabilityCache, logger zerolog.Logger, queueSize int) *ReservationService {
	return &ReservationService{
		ledger:    ledger,
		cache:     cache,
		logger:    logger,
		movements: make(chan domain.Movement, queueSize),
	}
}

// Reserve consumes stock for every line item or none of them. Items are
// applied in ascending resource-key order so two concurrent requests sharing
// counters never acquire them in opposite orders.
func (s *ReservationService) Reserve(ctx context.Context, req domain.ReservationRequest) (*domain.ReservationResult, error) {
	start := time.Now()
	result, err := s.applyAll(ctx, req, -1, domain.MovementReserve)
	metrics.ReserveDuration.Observe(time.Since(start).Seconds())
	metrics.ReservationsTotal.WithLabelValues(resultLabel(err)).Inc()
	return result, err
}

// Restock replenishes stock through the same all-or-nothing path. Used for
// admin restocking and for releasing stock after a failed payment.
func (s *ReservationService) Restock(ctx context.Context, req domain.ReservationRequest) (*domain.ReservationResult, error) {
	return s.applyAll(ctx, req, 1, domain.MovementRestock)
}

func (s *ReservationService) applyAll(ctx context.Context, req domain.ReservationRequest, direction int, kind domain.MovementKind) (*domain.ReservationResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	items := req.SortedItems()
	result := &domain.ReservationResult{
		OrderID:  req.OrderID,
		Outcomes: make([]domain.MutationOutcome, 0, len(items)),
	}

	applied := 0
	var failure error
	for _, li := range items {
		delta := direction * li.Quantity
		newAvailable, err := s.ledger.Apply(ctx, li.ProductID, li.VariantKey, delta)
		outcome := domain.MutationOutcome{
			ProductID:    li.ProductID,
			VariantKey:   li.VariantKey,
			Quantity:     li.Quantity,
			Succeeded:    err == nil,
			NewAvailable: newAvailable,
			Reason:       err,
		}
		result.Outcomes = append(result.Outcomes, outcome)
		if err != nil {
			failure = err
			break
		}
		applied++
		s.recordCommit(ctx, li, delta, req.OrderID, kind, newAvailable)
	}

	if failure != nil {
		if err := s.compensate(ctx, req.OrderID, items[:applied], direction); err != nil {
			failure = err
		}
		result.Success = false
		result.FailureReason = failure
		result.CompletedAt = time.Now()
		return result, failure
	}

	result.Success = true
	result.CompletedAt = time.Now()
	return result, nil
}

// compensate reverses already-applied line items in reverse order. It runs
// on a context detached from the caller's cancellation: once stock has been
// taken, the undo must be attempted even if the request deadline is gone.
func (s *ReservationService) compensate(ctx context.Context, orderID string, applied []domain.LineItem, direction int) error {
	compCtx := context.WithoutCancel(ctx)

	var failed []string
	for i := len(applied) - 1; i >= 0; i-- {
		li := applied[i]
		delta := -direction * li.Quantity
		newAvailable, err := s.ledger.Apply(compCtx, li.ProductID, li.VariantKey, delta)
		if err != nil {
			failed = append(failed, li.Key())
			s.logger.Error().
				Str("order_id", orderID).
				Str("resource", li.Key()).
				Int("delta", delta).
				Err(err).
				Msg("compensation failed, ledger may be inconsistent with order record")
			continue
		}
		s.recordCommit(compCtx, li, delta, orderID, domain.MovementCompensate, newAvailable)
	}

	if len(failed) > 0 {
		metrics.CompensationFailures.Inc()
		return fmt.Errorf("resources %v: %w", failed, domain.ErrCompensationFailed)
	}
	return nil
}

// recordCommit enqueues the audit movement and updates the availability
// mirror. Both are best-effort side channels of a commit that already
// happened; neither can fail the reservation.
func (s *ReservationService) recordCommit(ctx context.Context, li domain.LineItem, delta int, orderID string, kind domain.MovementKind, newAvailable int) {
	s.movements <- domain.Movement{
		ID:         uuid.NewString(),
		ProductID:  li.ProductID,
		VariantKey: li.VariantKey,
		Delta:      delta,
		OrderID:    orderID,
		Kind:       kind,
		CreatedAt:  time.Now(),
	}

	// A consuming mutation proves the counter is active, so its result can
	// refresh the mirror directly. A replenishing one can land on a disabled
	// counter, which must keep reporting unavailable; drop the entry and let
	// the read path backfill from the ledger, which knows the status.
	if delta < 0 {
		if err := s.cache.SetQuantity(ctx, li.Key(), newAvailable); err != nil {
			s.logger.Debug().Str("resource", li.Key()).Err(err).Msg("mirror refresh failed")
		}
		return
	}
	if err := s.cache.Invalidate(ctx, li.Key()); err != nil {
		s.logger.Debug().Str("resource", li.Key()).Err(err).Msg("mirror invalidation failed")
	}
}

// ClaimOrder marks an order id as seen, returning false when a reservation
// attempt for it was already made. The coordinator itself does not dedupe;
// this guard belongs to the request boundary.
func (s *ReservationService) ClaimOrder(ctx context.Context, orderID string) (bool, error) {
	return s.cache.SetIdempotency(ctx, "reservation:"+orderID)
}

// CreateCounter seeds a new stock counter.
func (s *ReservationService) CreateCounter(ctx context.Context, counter domain.StockCounter) error {
	return s.ledger.CreateCounter(ctx, counter)
}

// SetCounterStatus soft-enables or soft-disables a counter and drops its
// mirror entry so the read path stops serving the old quantity.
func (s *ReservationService) SetCounterStatus(ctx context.Context, productID, variantKey string, status domain.CounterStatus) error {
	if err := s.ledger.SetStatus(ctx, productID, variantKey, status); err != nil {
		return err
	}
	key := domain.ResourceKey(productID, variantKey)
	if err := s.cache.Invalidate(ctx, key); err != nil {
		s.logger.Debug().Str("resource", key).Err(err).Msg("mirror invalidation failed")
	}
	return nil
}

// MovementQueue exposes the audit journal feed drained by the worker pool.
func (s *ReservationService) MovementQueue() <-chan domain.Movement {
	return s.movements
}

// Close stops accepting movements; pending entries remain drainable.
func (s *ReservationService) Close() {
	close(s.movements)
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return metrics.ResultSuccess
	case errors.Is(err, domain.ErrCompensationFailed):
		return metrics.ResultCompensation
	case errors.Is(err, domain.ErrInsufficientStock):
		return metrics.ResultInsufficient
	case errors.Is(err, domain.ErrNotFound):
		return metrics.ResultNotFound
	case errors.Is(err, domain.ErrContentionExceeded):
		return metrics.ResultContention
	default:
		return metrics.ResultError
	}
}
