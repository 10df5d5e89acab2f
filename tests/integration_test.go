package tests

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hqtran/inventory-core/internal/adapter/storage"
	"github.com/hqtran/inventory-core/internal/core/domain"
	"github.com/hqtran/inventory-core/internal/core/service"
	"github.com/hqtran/inventory-core/internal/port"
)

type testEnv struct {
	redis   *redis.Client
	mysql   *sql.DB
	cache   *storage.RedisCache
	ledger  *storage.MySQLLedger
	cleanup func()
}

func setupTestEnv(t *testing.T) *testEnv {
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		mysqlDSN = "root:root@tcp(localhost:3306)/inventory?parseTime=true"
	}

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	db, err := sql.Open("mysql", mysqlDSN)
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}
	if err := db.Ping(); err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	return &testEnv{
		redis:  rdb,
		mysql:  db,
		cache:  storage.NewRedisCache(rdb),
		ledger: storage.NewMySQLLedger(db, 30, 5*time.Second),
		cleanup: func() {
			rdb.Close()
			db.Close()
		},
	}
}

func (env *testEnv) seedCounter(t *testing.T, productID string, available int) {
	t.Helper()
	ctx := context.Background()
	env.redis.Del(ctx, "stock:"+domain.ResourceKey(productID, ""))
	env.mysql.ExecContext(ctx, `DELETE FROM stock_movements WHERE product_id = ?`, productID)
	_, err := env.mysql.ExecContext(ctx, `
		INSERT INTO stock_counters (product_id, variant_key, available, version, status, created_at, updated_at)
		VALUES (?, '', ?, 0, 'active', NOW(), NOW())
		ON DUPLICATE KEY UPDATE available = ?, version = 0, status = 'active'`,
		productID, available, available)
	if err != nil {
		t.Fatalf("seed counter: %v", err)
	}
}

func (env *testEnv) counterAvailable(t *testing.T, productID string) int {
	t.Helper()
	var available int
	err := env.mysql.QueryRowContext(context.Background(), `
		SELECT available FROM stock_counters WHERE product_id = ? AND variant_key = ''`,
		productID,
	).Scan(&available)
	if err != nil {
		t.Fatalf("read counter: %v", err)
	}
	return available
}

func journalLoop(queue <-chan domain.Movement, ledger port.StockLedger) {
	for m := range queue {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		ledger.RecordMovement(ctx, m)
		cancel()
	}
}

func TestIntegration_ConcurrentSingleUnitReservations(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()

	ctx := context.Background()
	productID := "itg-drop-item"
	initialStock := 2
	totalRequests := 10

	env.seedCounter(t, productID, initialStock)

	svc := service.NewReservationService(env.ledger, env.cache, zerolog.Nop(), 100)

	var wg sync.WaitGroup
	workerCount := 3
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			journalLoop(svc.MovementQueue(), env.ledger)
		}()
	}

	var successCount, insufficientCount atomic.Int32
	var reserveWg sync.WaitGroup
	for i := 0; i < totalRequests; i++ {
		reserveWg.Add(1)
		go func() {
			defer reserveWg.Done()
			req := domain.ReservationRequest{
				OrderID: uuid.NewString(),
				Items:   []domain.LineItem{{ProductID: productID, Quantity: 1}},
			}
			_, err := svc.Reserve(ctx, req)
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrInsufficientStock):
				insufficientCount.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	reserveWg.Wait()

	svc.Close()
	wg.Wait()

	if successCount.Load() != int32(initialStock) {
		t.Errorf("expected %d successes, got %d", initialStock, successCount.Load())
	}
	if insufficientCount.Load() != int32(totalRequests-initialStock) {
		t.Errorf("expected %d rejections, got %d",
			totalRequests-initialStock, insufficientCount.Load())
	}

	if available := env.counterAvailable(t, productID); available != 0 {
		t.Errorf("expected MySQL available 0, got %d", available)
	}

	// Mirror reflects the drained counter.
	mirrored, _ := env.redis.Get(ctx, "stock:"+domain.ResourceKey(productID, "")).Int()
	if mirrored != 0 {
		t.Errorf("expected mirrored stock 0, got %d", mirrored)
	}

	// One journal entry per successful reservation.
	var movementCount int
	env.mysql.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM stock_movements WHERE product_id = ? AND kind = 'reserve'`,
		productID,
	).Scan(&movementCount)
	if movementCount != initialStock {
		t.Errorf("expected %d reserve movements, got %d", initialStock, movementCount)
	}
}

func TestIntegration_FailedReserveLeavesCountersUnchanged(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()

	ctx := context.Background()
	productA := "itg-product-a"
	productB := "itg-product-b"

	env.seedCounter(t, productA, 5)
	env.seedCounter(t, productB, 0)

	svc := service.NewReservationService(env.ledger, env.cache, zerolog.Nop(), 100)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		journalLoop(svc.MovementQueue(), env.ledger)
	}()

	req := domain.ReservationRequest{
		OrderID: uuid.NewString(),
		Items: []domain.LineItem{
			{ProductID: productA, Quantity: 1},
			{ProductID: productB, Quantity: 1},
		},
	}
	result, err := svc.Reserve(ctx, req)
	if !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got: %v", err)
	}
	if result.Success {
		t.Error("expected failed result")
	}

	svc.Close()
	wg.Wait()

	// Conservation: net effect on both counters is zero.
	if available := env.counterAvailable(t, productA); available != 5 {
		t.Errorf("expected product-a restored to 5, got %d", available)
	}
	if available := env.counterAvailable(t, productB); available != 0 {
		t.Errorf("expected product-b unchanged at 0, got %d", available)
	}

	// The journal shows the decrement and its reversal.
	var reserveCount, compensateCount int
	env.mysql.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM stock_movements WHERE product_id = ? AND kind = 'reserve'`,
		productA).Scan(&reserveCount)
	env.mysql.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM stock_movements WHERE product_id = ? AND kind = 'compensate'`,
		productA).Scan(&compensateCount)
	if reserveCount != 1 || compensateCount != 1 {
		t.Errorf("expected 1 reserve + 1 compensate movement, got %d + %d",
			reserveCount, compensateCount)
	}
}

func TestIntegration_RestockThenReserve(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()

	ctx := context.Background()
	productID := "itg-restock-item"

	env.seedCounter(t, productID, 0)

	svc := service.NewReservationService(env.ledger, env.cache, zerolog.Nop(), 100)
	go func() {
		for range svc.MovementQueue() {
		}
	}()
	defer svc.Close()

	if _, err := svc.Reserve(ctx, domain.ReservationRequest{
		Items: []domain.LineItem{{ProductID: productID, Quantity: 1}},
	}); !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock before restock, got: %v", err)
	}

	if _, err := svc.Restock(ctx, domain.ReservationRequest{
		Items: []domain.LineItem{{ProductID: productID, Quantity: 3}},
	}); err != nil {
		t.Fatalf("restock failed: %v", err)
	}

	if _, err := svc.Reserve(ctx, domain.ReservationRequest{
		Items: []domain.LineItem{{ProductID: productID, Quantity: 2}},
	}); err != nil {
		t.Fatalf("reserve after restock failed: %v", err)
	}

	if available := env.counterAvailable(t, productID); available != 1 {
		t.Errorf("expected available 1, got %d", available)
	}
}

func TestIntegration_IdempotencyGuard(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()

	ctx := context.Background()
	orderID := "itg-order-" + uuid.NewString()

	env.redis.Del(ctx, "reservation:"+orderID)

	svc := service.NewReservationService(env.ledger, env.cache, zerolog.Nop(), 100)
	go func() {
		for range svc.MovementQueue() {
		}
	}()
	defer svc.Close()

	fresh, err := svc.ClaimOrder(ctx, orderID)
	if err != nil || !fresh {
		t.Fatalf("expected first claim to succeed, got fresh=%v err=%v", fresh, err)
	}
	fresh, err = svc.ClaimOrder(ctx, orderID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fresh {
		t.Error("expected second claim to be rejected")
	}
}

func TestIntegration_AvailabilityReflectsLedger(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()

	ctx := context.Background()
	productID := "itg-query-item"

	env.seedCounter(t, productID, 3)

	svc := service.NewReservationService(env.ledger, env.cache, zerolog.Nop(), 100)
	go func() {
		for range svc.MovementQueue() {
		}
	}()
	defer svc.Close()

	avail, err := svc.CheckAvailability(ctx, productID, "", 2)
	if err != nil {
		t.Fatalf("CheckAvailability failed: %v", err)
	}
	if !avail.Available || avail.Quantity != 3 {
		t.Errorf("expected available with quantity 3, got %+v", avail)
	}

	if _, err := svc.Reserve(ctx, domain.ReservationRequest{
		Items: []domain.LineItem{{ProductID: productID, Quantity: 3}},
	}); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}

	avail, err = svc.CheckAvailability(ctx, productID, "", 1)
	if err != nil {
		t.Fatalf("CheckAvailability failed: %v", err)
	}
	if avail.Available || avail.Quantity != 0 {
		t.Errorf("expected drained counter, got %+v", avail)
	}
}
