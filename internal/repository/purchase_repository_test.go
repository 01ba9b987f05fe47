package repository

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/resumeforge/payment-service/internal/domain"
	"github.com/resumeforge/payment-service/pkg/logger"
)

func testLogger() *logger.Logger {
	log := logger.New(logger.FATAL)
	log.SetOutput(io.Discard)
	return log
}

func pendingPurchase(userID, orderID string, plan domain.PlanType) domain.Purchase {
	expires := time.Now().Add(plan.Validity())
	return domain.Purchase{
		ID:                 uuid.New(),
		UserID:             userID,
		PlanType:           plan,
		Amount:             domain.PlanPrice(plan),
		Currency:           domain.CurrencyINR,
		GatewayOrderID:     orderID,
		Status:             domain.PurchaseStatusPending,
		DownloadsRemaining: plan.Downloads(),
		ExpiresAt:          &expires,
	}
}

func TestInMemoryCreateAndGet(t *testing.T) {
	repo := NewInMemoryPurchaseRepository(testLogger())
	ctx := context.Background()

	purchase := pendingPurchase("user-1", "order_1", domain.PlanTypeSingle)
	created, err := repo.Create(ctx, purchase)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if created.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}

	got, err := repo.GetByID(ctx, purchase.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.GatewayOrderID != "order_1" {
		t.Errorf("got order id %s, want order_1", got.GatewayOrderID)
	}

	byOrder, err := repo.GetByGatewayOrderID(ctx, "order_1")
	if err != nil {
		t.Fatalf("GetByGatewayOrderID failed: %v", err)
	}
	if byOrder.ID != purchase.ID {
		t.Errorf("lookup by order id returned %s, want %s", byOrder.ID, purchase.ID)
	}
}

func TestInMemoryCreateDuplicateOrder(t *testing.T) {
	repo := NewInMemoryPurchaseRepository(testLogger())
	ctx := context.Background()

	if _, err := repo.Create(ctx, pendingPurchase("user-1", "order_1", domain.PlanTypeSingle)); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	_, err := repo.Create(ctx, pendingPurchase("user-1", "order_1", domain.PlanTypeSingle))
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("expected ErrDuplicate for reused gateway order id, got %v", err)
	}
}

func TestInMemoryGetByUserAndID(t *testing.T) {
	repo := NewInMemoryPurchaseRepository(testLogger())
	ctx := context.Background()

	purchase := pendingPurchase("user-1", "order_1", domain.PlanTypeSingle)
	if _, err := repo.Create(ctx, purchase); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if _, err := repo.GetByUserAndID(ctx, "user-1", purchase.ID); err != nil {
		t.Errorf("owner lookup failed: %v", err)
	}

	// Чужая покупка неотличима от несуществующей
	if _, err := repo.GetByUserAndID(ctx, "user-2", purchase.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for foreign owner, got %v", err)
	}
}

func TestInMemoryFinalizeCompleted(t *testing.T) {
	repo := NewInMemoryPurchaseRepository(testLogger())
	ctx := context.Background()

	purchase := pendingPurchase("user-1", "order_1", domain.PlanTypeSingle)
	if _, err := repo.Create(ctx, purchase); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	final, transitioned, err := repo.FinalizeCompleted(ctx, purchase.ID, "user-1", "pay_1")
	if err != nil {
		t.Fatalf("FinalizeCompleted failed: %v", err)
	}
	if !transitioned {
		t.Error("expected first finalize to perform the transition")
	}
	if final.Status != domain.PurchaseStatusCompleted || final.GatewayPaymentID != "pay_1" {
		t.Errorf("unexpected final row: status=%s paymentID=%s", final.Status, final.GatewayPaymentID)
	}

	// Повтор: переход не выполняется, возвращается строка победителя
	replay, transitioned, err := repo.FinalizeCompleted(ctx, purchase.ID, "user-1", "pay_other")
	if err != nil {
		t.Fatalf("replayed FinalizeCompleted failed: %v", err)
	}
	if transitioned {
		t.Error("replay must not transition again")
	}
	if replay.GatewayPaymentID != "pay_1" {
		t.Errorf("replay returned payment id %s, want pay_1 from the winning call", replay.GatewayPaymentID)
	}
}

func TestInMemoryFinalizeConcurrent(t *testing.T) {
	repo := NewInMemoryPurchaseRepository(testLogger())
	ctx := context.Background()

	purchase := pendingPurchase("user-1", "order_1", domain.PlanTypeProfessional)
	if _, err := repo.Create(ctx, purchase); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	const callers = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	transitions := 0

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, transitioned, err := repo.FinalizeCompleted(ctx, purchase.ID, "user-1", "pay_1")
			if err != nil {
				t.Errorf("FinalizeCompleted failed: %v", err)
				return
			}
			if transitioned {
				mu.Lock()
				transitions++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if transitions != 1 {
		t.Errorf("expected exactly 1 transition, got %d", transitions)
	}
}

func TestInMemoryFinalizeWrongOwner(t *testing.T) {
	repo := NewInMemoryPurchaseRepository(testLogger())
	ctx := context.Background()

	purchase := pendingPurchase("user-1", "order_1", domain.PlanTypeSingle)
	if _, err := repo.Create(ctx, purchase); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	_, _, err := repo.FinalizeCompleted(ctx, purchase.ID, "user-2", "pay_1")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for foreign owner, got %v", err)
	}
}

func TestInMemoryConsumeDownload(t *testing.T) {
	repo := NewInMemoryPurchaseRepository(testLogger())
	ctx := context.Background()
	now := time.Now()

	purchase := pendingPurchase("user-1", "order_1", domain.PlanTypeSingle)
	if _, err := repo.Create(ctx, purchase); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Pending покупка не download-eligible
	if _, err := repo.ConsumeDownload(ctx, purchase.ID, "user-1", now); !errors.Is(err, ErrNotEligible) {
		t.Errorf("expected ErrNotEligible for pending purchase, got %v", err)
	}

	if _, _, err := repo.FinalizeCompleted(ctx, purchase.ID, "user-1", "pay_1"); err != nil {
		t.Fatalf("FinalizeCompleted failed: %v", err)
	}

	got, err := repo.ConsumeDownload(ctx, purchase.ID, "user-1", now)
	if err != nil {
		t.Fatalf("ConsumeDownload failed: %v", err)
	}
	if got.DownloadsRemaining != 0 {
		t.Errorf("expected 0 downloads remaining, got %d", got.DownloadsRemaining)
	}

	if _, err := repo.ConsumeDownload(ctx, purchase.ID, "user-1", now); !errors.Is(err, ErrNotEligible) {
		t.Errorf("expected ErrNotEligible after quota exhausted, got %v", err)
	}
}

func TestInMemoryConsumeDownloadExpired(t *testing.T) {
	repo := NewInMemoryPurchaseRepository(testLogger())
	ctx := context.Background()

	purchase := pendingPurchase("user-1", "order_1", domain.PlanTypeProfessional)
	if _, err := repo.Create(ctx, purchase); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, _, err := repo.FinalizeCompleted(ctx, purchase.ID, "user-1", "pay_1"); err != nil {
		t.Fatalf("FinalizeCompleted failed: %v", err)
	}

	afterExpiry := time.Now().Add(31 * 24 * time.Hour)
	if _, err := repo.ConsumeDownload(ctx, purchase.ID, "user-1", afterExpiry); !errors.Is(err, ErrNotEligible) {
		t.Errorf("expected ErrNotEligible after expiry, got %v", err)
	}
}

func TestInMemoryGetByUserIDOrder(t *testing.T) {
	repo := NewInMemoryPurchaseRepository(testLogger())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		p := pendingPurchase("user-1", uuid.NewString(), domain.PlanTypeSingle)
		if _, err := repo.Create(ctx, p); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		time.Sleep(time.Millisecond)
	}

	purchases, err := repo.GetByUserID(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetByUserID failed: %v", err)
	}
	if len(purchases) != 3 {
		t.Fatalf("expected 3 purchases, got %d", len(purchases))
	}
	for i := 1; i < len(purchases); i++ {
		if purchases[i].CreatedAt.After(purchases[i-1].CreatedAt) {
			t.Error("purchases are not sorted newest first")
		}
	}
}
