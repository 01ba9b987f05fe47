package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/resumeforge/payment-service/internal/domain"
	"github.com/resumeforge/payment-service/pkg/logger"
)

const (
	// Префиксы ключей для различных типов данных
	purchaseKeyPrefix      = "purchase:"
	userPurchasesKeyPrefix = "user_purchases:"

	// TTL для кэша
	defaultCacheTTL = 15 * time.Minute
)

// RedisCacheRepository реализует кеширование покупок с использованием Redis
type RedisCacheRepository struct {
	client *redis.Client
	log    *logger.Logger
}

// NewRedisCacheRepository создает новый экземпляр Redis репозитория
func NewRedisCacheRepository(redisAddr, redisPassword string, redisDB int, log *logger.Logger) (*RedisCacheRepository, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: redisPassword,
		DB:       redisDB,
	})

	// Проверяем соединение с Redis
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Errorw("Failed to connect to Redis", "error", err)
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Infow("Connected to Redis successfully", "addr", redisAddr)
	return &RedisCacheRepository{
		client: client,
		log:    log,
	}, nil
}

// NewRedisCacheRepositoryFromClient оборачивает готовый клиент (используется в тестах)
func NewRedisCacheRepositoryFromClient(client *redis.Client, log *logger.Logger) *RedisCacheRepository {
	return &RedisCacheRepository{
		client: client,
		log:    log,
	}
}

// Close закрывает соединение с Redis
func (r *RedisCacheRepository) Close() error {
	return r.client.Close()
}

// CachePurchase кеширует покупку в Redis
func (r *RedisCacheRepository) CachePurchase(ctx context.Context, purchase domain.Purchase) error {
	key := fmt.Sprintf("%s%s", purchaseKeyPrefix, purchase.ID)

	data, err := json.Marshal(purchase)
	if err != nil {
		r.log.Errorw("Failed to marshal purchase for caching", "error", err, "purchaseID", purchase.ID)
		return fmt.Errorf("failed to marshal purchase: %w", err)
	}

	if err := r.client.Set(ctx, key, data, defaultCacheTTL).Err(); err != nil {
		r.log.Errorw("Failed to cache purchase in Redis", "error", err, "purchaseID", purchase.ID)
		return fmt.Errorf("failed to cache purchase: %w", err)
	}

	r.log.Debugw("Purchase cached successfully", "purchaseID", purchase.ID)
	return nil
}

// GetCachedPurchase получает покупку из кеша
func (r *RedisCacheRepository) GetCachedPurchase(ctx context.Context, purchaseID string) (*domain.Purchase, error) {
	key := fmt.Sprintf("%s%s", purchaseKeyPrefix, purchaseID)

	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			// Ключ не найден в кеше
			r.log.Debugw("Purchase not found in cache", "purchaseID", purchaseID)
			return nil, nil
		}
		r.log.Errorw("Error getting purchase from Redis", "error", err, "purchaseID", purchaseID)
		return nil, fmt.Errorf("failed to get purchase from cache: %w", err)
	}

	var purchase domain.Purchase
	if err := json.Unmarshal(data, &purchase); err != nil {
		r.log.Errorw("Failed to unmarshal cached purchase", "error", err, "purchaseID", purchaseID)
		return nil, fmt.Errorf("failed to unmarshal cached purchase: %w", err)
	}

	r.log.Debugw("Purchase retrieved from cache", "purchaseID", purchaseID)
	return &purchase, nil
}

// DeleteCachedPurchase удаляет покупку из кеша
func (r *RedisCacheRepository) DeleteCachedPurchase(ctx context.Context, purchaseID string) error {
	key := fmt.Sprintf("%s%s", purchaseKeyPrefix, purchaseID)

	if err := r.client.Del(ctx, key).Err(); err != nil {
		r.log.Errorw("Failed to delete purchase from cache", "error", err, "purchaseID", purchaseID)
		return fmt.Errorf("failed to delete purchase from cache: %w", err)
	}

	r.log.Debugw("Purchase deleted from cache", "purchaseID", purchaseID)
	return nil
}

// CacheUserPurchases кеширует список покупок пользователя
func (r *RedisCacheRepository) CacheUserPurchases(ctx context.Context, userID string, purchases []domain.Purchase) error {
	key := fmt.Sprintf("%s%s", userPurchasesKeyPrefix, userID)

	data, err := json.Marshal(purchases)
	if err != nil {
		r.log.Errorw("Failed to marshal user purchases for caching", "error", err, "userID", userID)
		return fmt.Errorf("failed to marshal user purchases: %w", err)
	}

	if err := r.client.Set(ctx, key, data, defaultCacheTTL).Err(); err != nil {
		r.log.Errorw("Failed to cache user purchases in Redis", "error", err, "userID", userID)
		return fmt.Errorf("failed to cache user purchases: %w", err)
	}

	r.log.Debugw("User purchases cached successfully", "userID", userID, "count", len(purchases))
	return nil
}

// GetCachedUserPurchases получает список покупок пользователя из кеша
func (r *RedisCacheRepository) GetCachedUserPurchases(ctx context.Context, userID string) ([]domain.Purchase, error) {
	key := fmt.Sprintf("%s%s", userPurchasesKeyPrefix, userID)

	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			r.log.Debugw("User purchases not found in cache", "userID", userID)
			return nil, nil
		}
		r.log.Errorw("Error getting user purchases from Redis", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to get user purchases from cache: %w", err)
	}

	var purchases []domain.Purchase
	if err := json.Unmarshal(data, &purchases); err != nil {
		r.log.Errorw("Failed to unmarshal cached user purchases", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to unmarshal cached user purchases: %w", err)
	}

	r.log.Debugw("User purchases retrieved from cache", "userID", userID, "count", len(purchases))
	return purchases, nil
}

// InvalidateUserPurchasesCache удаляет кеш покупок пользователя
func (r *RedisCacheRepository) InvalidateUserPurchasesCache(ctx context.Context, userID string) error {
	key := fmt.Sprintf("%s%s", userPurchasesKeyPrefix, userID)

	if err := r.client.Del(ctx, key).Err(); err != nil {
		r.log.Errorw("Failed to invalidate user purchases cache", "error", err, "userID", userID)
		return fmt.Errorf("failed to invalidate user purchases cache: %w", err)
	}

	r.log.Debugw("User purchases cache invalidated", "userID", userID)
	return nil
}
