package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hqtran/inventory-core/internal/core/domain"
	"github.com/hqtran/inventory-core/internal/metrics"
)

const (
	defaultMaxRetries = 5
	defaultTimeout    = 3 * time.Second
)

// MySQLLedger is the authoritative stock ledger. Apply is the lock-protected
// mutator: an optimistic version-CAS loop bounded by maxRetries. The version
// column serializes concurrent writers on the same counter row; losers of a
// race see zero affected rows and re-read.
type MySQLLedger struct {
	db         *sql.DB
	maxRetries int
	timeout    time.Duration
}

func NewMySQLLedger(db *sql.DB, maxRetries int, timeout time.Duration) *MySQLLedger {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &MySQLLedger{db: db, maxRetries: maxRetries, timeout: timeout}
}

func (l *MySQLLedger) Apply(ctx context.Context, productID, variantKey string, delta int) (int, error) {
	if delta == 0 {
		return 0, fmt.Errorf("%w: zero delta", domain.ErrInvalidReservation)
	}

	// Upper bound on wall-clock wait for one mutation, retries included.
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	for attempt := 0; attempt < l.maxRetries; attempt++ {
		if attempt > 0 {
			metrics.MutationRetries.Inc()
		}

		var (
			available int
			version   int
			status    string
		)
		err := l.db.QueryRowContext(ctx, `
			SELECT available, version, status
			FROM stock_counters
			WHERE product_id = ? AND variant_key = ?`,
			productID, variantKey,
		).Scan(&available, &version, &status)
		if errors.Is(err, sql.ErrNoRows) {
			metrics.MutationsTotal.WithLabelValues(metrics.ResultNotFound).Inc()
			return 0, domain.ErrNotFound
		}
		if err != nil {
			return 0, l.mutationError("query counter", err)
		}

		// Disabled counters refuse new consumption but still accept
		// compensating restocks for orders already in flight.
		if status == string(domain.CounterStatusDisabled) && delta < 0 {
			metrics.MutationsTotal.WithLabelValues(metrics.ResultNotFound).Inc()
			return 0, fmt.Errorf("counter %s disabled: %w",
				domain.ResourceKey(productID, variantKey), domain.ErrNotFound)
		}

		next := available + delta
		if next < 0 {
			metrics.MutationsTotal.WithLabelValues(metrics.ResultInsufficient).Inc()
			return 0, domain.ErrInsufficientStock
		}

		result, err := l.db.ExecContext(ctx, `
			UPDATE stock_counters
			SET available = available + ?, version = version + 1, updated_at = NOW()
			WHERE product_id = ? AND variant_key = ? AND version = ?`,
			delta, productID, variantKey, version,
		)
		if err != nil {
			return 0, l.mutationError("update counter", err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return 0, l.mutationError("rows affected", err)
		}
		if rows == 0 {
			// Lost the version race; re-read and try again.
			continue
		}

		metrics.MutationsTotal.WithLabelValues(metrics.ResultSuccess).Inc()
		return next, nil
	}

	metrics.MutationsTotal.WithLabelValues(metrics.ResultContention).Inc()
	return 0, fmt.Errorf("counter %s after %d attempts: %w",
		domain.ResourceKey(productID, variantKey), l.maxRetries, domain.ErrContentionExceeded)
}

// mutationError maps an exhausted wall-clock budget to the contention
// error; everything else surfaces as an infrastructure failure.
func (l *MySQLLedger) mutationError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		metrics.MutationsTotal.WithLabelValues(metrics.ResultContention).Inc()
		return fmt.Errorf("%s: %v: %w", op, err, domain.ErrContentionExceeded)
	}
	metrics.MutationsTotal.WithLabelValues(metrics.ResultError).Inc()
	return fmt.Errorf("%s: %w", op, err)
}

func (l *MySQLLedger) GetCounter(ctx context.Context, productID, variantKey string) (*domain.StockCounter, error) {
	var c domain.StockCounter
	err := l.db.QueryRowContext(ctx, `
		SELECT product_id, variant_key, available, version, status, created_at, updated_at
		FROM stock_counters
		WHERE product_id = ? AND variant_key = ?`,
		productID, variantKey,
	).Scan(&c.ProductID, &c.VariantKey, &c.Available, &c.Version, &c.Status, &c.CreatedAt, &c.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query counter: %w", err)
	}
	return &c, nil
}

func (l *MySQLLedger) CreateCounter(ctx context.Context, counter domain.StockCounter) error {
	if counter.Available < 0 {
		return fmt.Errorf("%w: negative initial stock", domain.ErrInvalidReservation)
	}
	status := counter.Status
	if status == "" {
		status = domain.CounterStatusActive
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO stock_counters (product_id, variant_key, available, version, status, created_at, updated_at)
		VALUES (?, ?, ?, 0, ?, NOW(), NOW())`,
		counter.ProductID, counter.VariantKey, counter.Available, status,
	)
	if err != nil {
		return fmt.Errorf("insert counter: %w", err)
	}
	return nil
}

func (l *MySQLLedger) SetStatus(ctx context.Context, productID, variantKey string, status domain.CounterStatus) error {
	result, err := l.db.ExecContext(ctx, `
		UPDATE stock_counters
		SET status = ?, version = version + 1, updated_at = NOW()
		WHERE product_id = ? AND variant_key = ?`,
		status, productID, variantKey,
	)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (l *MySQLLedger) RecordMovement(ctx context.Context, m domain.Movement) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO stock_movements (id, product_id, variant_key, delta, order_id, kind, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ProductID, m.VariantKey, m.Delta, m.OrderID, m.Kind, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert movement: %w", err)
	}
	return nil
}
