package repository

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/resumeforge/payment-service/internal/domain"
)

func newCachedRepo(t *testing.T) (PurchaseRepository, *InMemoryPurchaseRepository, *RedisCacheRepository) {
	t.Helper()
	log := testLogger()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewRedisCacheRepositoryFromClient(client, log)
	t.Cleanup(func() { _ = cache.Close() })

	primary := NewInMemoryPurchaseRepository(log)
	return NewCachedPurchaseRepository(primary, cache, log), primary, cache
}

func TestCachedRepoReadThrough(t *testing.T) {
	repo, _, cache := newCachedRepo(t)
	ctx := context.Background()

	purchase := pendingPurchase("user-1", "order_1", domain.PlanTypeSingle)
	created, err := repo.Create(ctx, purchase)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Create должен был закешировать строку
	cached, err := cache.GetCachedPurchase(ctx, created.ID.String())
	if err != nil {
		t.Fatalf("GetCachedPurchase failed: %v", err)
	}
	if cached == nil {
		t.Fatal("expected purchase to be cached after create")
	}
	if cached.GatewayOrderID != "order_1" {
		t.Errorf("cached order id %s, want order_1", cached.GatewayOrderID)
	}

	got, err := repo.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.ID != created.ID {
		t.Errorf("got purchase %s, want %s", got.ID, created.ID)
	}
}

func TestCachedRepoFinalizeUpdatesCache(t *testing.T) {
	repo, _, cache := newCachedRepo(t)
	ctx := context.Background()

	purchase := pendingPurchase("user-1", "order_1", domain.PlanTypeSingle)
	created, err := repo.Create(ctx, purchase)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	final, transitioned, err := repo.FinalizeCompleted(ctx, created.ID, "user-1", "pay_1")
	if err != nil {
		t.Fatalf("FinalizeCompleted failed: %v", err)
	}
	if !transitioned {
		t.Fatal("expected finalize to transition")
	}
	if final.Status != domain.PurchaseStatusCompleted {
		t.Fatalf("expected completed, got %s", final.Status)
	}

	// Кеш должен отражать итоговую строку, не устаревший pending
	cached, err := cache.GetCachedPurchase(ctx, created.ID.String())
	if err != nil {
		t.Fatalf("GetCachedPurchase failed: %v", err)
	}
	if cached == nil || cached.Status != domain.PurchaseStatusCompleted {
		t.Errorf("cache holds stale row after finalize: %+v", cached)
	}
}

func TestCachedRepoStaleCacheDoesNotAffectFinalize(t *testing.T) {
	repo, primary, cache := newCachedRepo(t)
	ctx := context.Background()

	purchase := pendingPurchase("user-1", "order_1", domain.PlanTypeSingle)
	created, err := repo.Create(ctx, purchase)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Финализируем напрямую в основном хранилище, кеш остается pending
	if _, _, err := primary.FinalizeCompleted(ctx, created.ID, "user-1", "pay_1"); err != nil {
		t.Fatalf("primary FinalizeCompleted failed: %v", err)
	}

	// Условная запись упирается в основное хранилище: устаревший кеш
	// не дает второго перехода
	_, transitioned, err := repo.FinalizeCompleted(ctx, created.ID, "user-1", "pay_2")
	if err != nil {
		t.Fatalf("FinalizeCompleted failed: %v", err)
	}
	if transitioned {
		t.Error("finalize through stale cache must not transition twice")
	}

	cached, err := cache.GetCachedPurchase(ctx, created.ID.String())
	if err != nil {
		t.Fatalf("GetCachedPurchase failed: %v", err)
	}
	if cached == nil || cached.GatewayPaymentID != "pay_1" {
		t.Errorf("cache not refreshed with winning row: %+v", cached)
	}
}

func TestCachedRepoGetByUserAndIDChecksOwner(t *testing.T) {
	repo, _, _ := newCachedRepo(t)
	ctx := context.Background()

	purchase := pendingPurchase("user-1", "order_1", domain.PlanTypeSingle)
	created, err := repo.Create(ctx, purchase)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Строка закеширована, но кеш не должен отдавать ее чужому владельцу
	if _, err := repo.GetByUserAndID(ctx, "user-2", created.ID); err == nil {
		t.Error("expected error for foreign owner despite cached row")
	}
}

func TestCachedRepoUserListInvalidation(t *testing.T) {
	repo, _, _ := newCachedRepo(t)
	ctx := context.Background()

	first, err := repo.Create(ctx, pendingPurchase("user-1", "order_1", domain.PlanTypeSingle))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Прогреваем кеш списка
	list, err := repo.GetByUserID(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetByUserID failed: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 purchase, got %d", len(list))
	}

	// Вторая покупка инвалидирует кеш списка
	if _, err := repo.Create(ctx, pendingPurchase("user-1", "order_2", domain.PlanTypeProfessional)); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	list, err = repo.GetByUserID(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetByUserID failed: %v", err)
	}
	if len(list) != 2 {
		t.Errorf("expected 2 purchases after invalidation, got %d", len(list))
	}

	// Финализация тоже инвалидирует список
	if _, _, err := repo.FinalizeCompleted(ctx, first.ID, "user-1", "pay_1"); err != nil {
		t.Fatalf("FinalizeCompleted failed: %v", err)
	}
	list, err = repo.GetByUserID(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetByUserID failed: %v", err)
	}
	for _, p := range list {
		if p.ID == first.ID && p.Status != domain.PurchaseStatusCompleted {
			t.Errorf("list returned stale status %s for finalized purchase", p.Status)
		}
	}
}
