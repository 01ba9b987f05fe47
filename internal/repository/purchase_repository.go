package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/resumeforge/payment-service/internal/domain"
	"github.com/resumeforge/payment-service/pkg/logger"
)

// PurchaseRepository интерфейс для работы с покупками.
// FinalizeCompleted и ConsumeDownload выражены как атомарные условные
// записи: переход pending -> completed и списание квоты не должны
// выполняться дважды даже при конкурентных вызовах.
type PurchaseRepository interface {
	Create(ctx context.Context, purchase domain.Purchase) (domain.Purchase, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.Purchase, error)
	GetByUserAndID(ctx context.Context, userID string, id uuid.UUID) (domain.Purchase, error)
	GetByGatewayOrderID(ctx context.Context, orderID string) (domain.Purchase, error)
	GetByUserID(ctx context.Context, userID string) ([]domain.Purchase, error)

	// FinalizeCompleted переводит покупку в completed, только если она
	// все еще pending и принадлежит пользователю. Возвращает итоговую
	// строку и признак того, что переход выполнил именно этот вызов.
	FinalizeCompleted(ctx context.Context, id uuid.UUID, userID, gatewayPaymentID string) (domain.Purchase, bool, error)

	// ConsumeDownload списывает одно скачивание, только если покупка
	// download-eligible. Возвращает ErrNotEligible, если квота
	// исчерпана или срок действия истек.
	ConsumeDownload(ctx context.Context, id uuid.UUID, userID string, now time.Time) (domain.Purchase, error)
}

// InMemoryPurchaseRepository реализация репозитория покупок в памяти
type InMemoryPurchaseRepository struct {
	purchases map[uuid.UUID]domain.Purchase
	byOrderID map[string]uuid.UUID
	mutex     sync.RWMutex
	log       *logger.Logger
}

// NewInMemoryPurchaseRepository создает новый репозиторий покупок в памяти
func NewInMemoryPurchaseRepository(log *logger.Logger) *InMemoryPurchaseRepository {
	return &InMemoryPurchaseRepository{
		purchases: make(map[uuid.UUID]domain.Purchase),
		byOrderID: make(map[string]uuid.UUID),
		log:       log,
	}
}

// Create создает новую покупку
func (r *InMemoryPurchaseRepository) Create(ctx context.Context, purchase domain.Purchase) (domain.Purchase, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	// Ровно одна покупка на заказ шлюза
	if _, exists := r.byOrderID[purchase.GatewayOrderID]; exists {
		return domain.Purchase{}, ErrDuplicate
	}

	purchase.CreatedAt = time.Now()
	purchase.UpdatedAt = purchase.CreatedAt

	r.purchases[purchase.ID] = purchase
	r.byOrderID[purchase.GatewayOrderID] = purchase.ID

	return purchase, nil
}

// GetByID возвращает покупку по ID
func (r *InMemoryPurchaseRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Purchase, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	purchase, exists := r.purchases[id]
	if !exists {
		return domain.Purchase{}, ErrNotFound
	}

	return purchase, nil
}

// GetByUserAndID возвращает покупку по ID в рамках владельца
func (r *InMemoryPurchaseRepository) GetByUserAndID(ctx context.Context, userID string, id uuid.UUID) (domain.Purchase, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	purchase, exists := r.purchases[id]
	if !exists || purchase.UserID != userID {
		// Не раскрываем существование чужих покупок
		return domain.Purchase{}, ErrNotFound
	}

	return purchase, nil
}

// GetByGatewayOrderID возвращает покупку по ID заказа шлюза
func (r *InMemoryPurchaseRepository) GetByGatewayOrderID(ctx context.Context, orderID string) (domain.Purchase, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	id, exists := r.byOrderID[orderID]
	if !exists {
		return domain.Purchase{}, ErrNotFound
	}

	return r.purchases[id], nil
}

// GetByUserID возвращает покупки пользователя, новые первыми
func (r *InMemoryPurchaseRepository) GetByUserID(ctx context.Context, userID string) ([]domain.Purchase, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var purchases []domain.Purchase
	for _, purchase := range r.purchases {
		if purchase.UserID == userID {
			purchases = append(purchases, purchase)
		}
	}

	sort.Slice(purchases, func(i, j int) bool {
		return purchases[i].CreatedAt.After(purchases[j].CreatedAt)
	})

	return purchases, nil
}

// FinalizeCompleted атомарно переводит покупку pending -> completed
func (r *InMemoryPurchaseRepository) FinalizeCompleted(ctx context.Context, id uuid.UUID, userID, gatewayPaymentID string) (domain.Purchase, bool, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	purchase, exists := r.purchases[id]
	if !exists || purchase.UserID != userID {
		return domain.Purchase{}, false, ErrNotFound
	}

	// Условная запись: переход выполняется только из pending
	if purchase.Status != domain.PurchaseStatusPending {
		return purchase, false, nil
	}

	purchase.Status = domain.PurchaseStatusCompleted
	purchase.GatewayPaymentID = gatewayPaymentID
	purchase.UpdatedAt = time.Now()
	r.purchases[id] = purchase

	return purchase, true, nil
}

// ConsumeDownload атомарно списывает одно скачивание
func (r *InMemoryPurchaseRepository) ConsumeDownload(ctx context.Context, id uuid.UUID, userID string, now time.Time) (domain.Purchase, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	purchase, exists := r.purchases[id]
	if !exists || purchase.UserID != userID {
		return domain.Purchase{}, ErrNotFound
	}

	if !purchase.DownloadEligible(now) {
		return domain.Purchase{}, ErrNotEligible
	}

	purchase.DownloadsRemaining--
	purchase.UpdatedAt = time.Now()
	r.purchases[id] = purchase

	return purchase, nil
}
