package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/resumeforge/payment-service/internal/domain"
	"github.com/resumeforge/payment-service/pkg/logger"
)

// CachedPurchaseRepository реализует PurchaseRepository с кешированием.
// Условные записи (FinalizeCompleted, ConsumeDownload) всегда идут в
// основное хранилище: кеш никогда не участвует в CAS-переходах, он
// только ускоряет чтения и инвалидируется после каждой мутации.
type CachedPurchaseRepository struct {
	repo  PurchaseRepository
	cache *RedisCacheRepository
	log   *logger.Logger
}

// NewCachedPurchaseRepository создает новый репозиторий с кешированием
func NewCachedPurchaseRepository(
	repo PurchaseRepository,
	cache *RedisCacheRepository,
	log *logger.Logger,
) PurchaseRepository {
	return &CachedPurchaseRepository{
		repo:  repo,
		cache: cache,
		log:   log,
	}
}

// Create сохраняет покупку в БД и кеширует ее
func (r *CachedPurchaseRepository) Create(ctx context.Context, purchase domain.Purchase) (domain.Purchase, error) {
	created, err := r.repo.Create(ctx, purchase)
	if err != nil {
		return domain.Purchase{}, err
	}

	if err := r.cache.CachePurchase(ctx, created); err != nil {
		r.log.Warnw("Failed to cache purchase after creation", "error", err, "purchaseID", created.ID)
		// Продолжаем выполнение, несмотря на ошибку кеширования
	}

	if err := r.cache.InvalidateUserPurchasesCache(ctx, created.UserID); err != nil {
		r.log.Warnw("Failed to invalidate user purchases cache", "error", err, "userID", created.UserID)
	}

	return created, nil
}

// GetByID получает покупку по ID (сначала из кеша, потом из БД)
func (r *CachedPurchaseRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Purchase, error) {
	cached, err := r.cache.GetCachedPurchase(ctx, id.String())
	if err == nil && cached != nil {
		return *cached, nil
	}

	purchase, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return domain.Purchase{}, err
	}

	if err := r.cache.CachePurchase(ctx, purchase); err != nil {
		r.log.Warnw("Failed to cache purchase after read", "error", err, "purchaseID", purchase.ID)
	}

	return purchase, nil
}

// GetByUserAndID получает покупку по ID в рамках владельца.
// Кеш используется только после проверки владельца.
func (r *CachedPurchaseRepository) GetByUserAndID(ctx context.Context, userID string, id uuid.UUID) (domain.Purchase, error) {
	cached, err := r.cache.GetCachedPurchase(ctx, id.String())
	if err == nil && cached != nil && cached.UserID == userID {
		return *cached, nil
	}

	purchase, err := r.repo.GetByUserAndID(ctx, userID, id)
	if err != nil {
		return domain.Purchase{}, err
	}

	if err := r.cache.CachePurchase(ctx, purchase); err != nil {
		r.log.Warnw("Failed to cache purchase after read", "error", err, "purchaseID", purchase.ID)
	}

	return purchase, nil
}

// GetByGatewayOrderID идет напрямую в БД: по этому ключу читает только
// вебхук, кешировать его нет смысла
func (r *CachedPurchaseRepository) GetByGatewayOrderID(ctx context.Context, orderID string) (domain.Purchase, error) {
	return r.repo.GetByGatewayOrderID(ctx, orderID)
}

// GetByUserID получает покупки пользователя (сначала из кеша, потом из БД)
func (r *CachedPurchaseRepository) GetByUserID(ctx context.Context, userID string) ([]domain.Purchase, error) {
	cached, err := r.cache.GetCachedUserPurchases(ctx, userID)
	if err == nil && cached != nil {
		return cached, nil
	}

	purchases, err := r.repo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := r.cache.CacheUserPurchases(ctx, userID, purchases); err != nil {
		r.log.Warnw("Failed to cache user purchases", "error", err, "userID", userID)
	}

	return purchases, nil
}

// FinalizeCompleted делегирует условную запись основному хранилищу
// и обновляет кеш итоговой строкой
func (r *CachedPurchaseRepository) FinalizeCompleted(ctx context.Context, id uuid.UUID, userID, gatewayPaymentID string) (domain.Purchase, bool, error) {
	purchase, transitioned, err := r.repo.FinalizeCompleted(ctx, id, userID, gatewayPaymentID)
	if err != nil {
		return domain.Purchase{}, false, err
	}

	if err := r.cache.CachePurchase(ctx, purchase); err != nil {
		r.log.Warnw("Failed to cache purchase after finalize", "error", err, "purchaseID", purchase.ID)
	}
	if err := r.cache.InvalidateUserPurchasesCache(ctx, userID); err != nil {
		r.log.Warnw("Failed to invalidate user purchases cache", "error", err, "userID", userID)
	}

	return purchase, transitioned, nil
}

// ConsumeDownload делегирует условную запись основному хранилищу
// и обновляет кеш итоговой строкой
func (r *CachedPurchaseRepository) ConsumeDownload(ctx context.Context, id uuid.UUID, userID string, now time.Time) (domain.Purchase, error) {
	purchase, err := r.repo.ConsumeDownload(ctx, id, userID, now)
	if err != nil {
		return domain.Purchase{}, err
	}

	if err := r.cache.CachePurchase(ctx, purchase); err != nil {
		r.log.Warnw("Failed to cache purchase after consume", "error", err, "purchaseID", purchase.ID)
	}
	if err := r.cache.InvalidateUserPurchasesCache(ctx, userID); err != nil {
		r.log.Warnw("Failed to invalidate user purchases cache", "error", err, "userID", userID)
	}

	return purchase, nil
}
