package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/resumeforge/payment-service/internal/domain"
	"github.com/resumeforge/payment-service/internal/repository"
	"github.com/resumeforge/payment-service/pkg/logger"
)

const purchaseColumns = `id, user_id, plan_type, amount, currency, gateway_order_id, gateway_payment_id, status, downloads_remaining, expires_at, created_at, updated_at`

// PostgresPurchaseRepository реализация репозитория покупок через PostgreSQL
type PostgresPurchaseRepository struct {
	db  *pgxpool.Pool
	log *logger.Logger
}

// NewPostgresPurchaseRepository создает новый репозиторий покупок через PostgreSQL
func NewPostgresPurchaseRepository(db *pgxpool.Pool, log *logger.Logger) *PostgresPurchaseRepository {
	return &PostgresPurchaseRepository{
		db:  db,
		log: log,
	}
}

// Create создает новую покупку в статусе pending
func (r *PostgresPurchaseRepository) Create(ctx context.Context, purchase domain.Purchase) (domain.Purchase, error) {
	query := `
		INSERT INTO purchases (` + purchaseColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
		RETURNING created_at, updated_at
	`

	var gatewayPaymentID *string
	if purchase.GatewayPaymentID != "" {
		gatewayPaymentID = &purchase.GatewayPaymentID
	}

	err := r.db.QueryRow(
		ctx,
		query,
		purchase.ID,
		purchase.UserID,
		purchase.PlanType,
		purchase.Amount,
		purchase.Currency,
		purchase.GatewayOrderID,
		gatewayPaymentID,
		purchase.Status,
		purchase.DownloadsRemaining,
		purchase.ExpiresAt,
	).Scan(&purchase.CreatedAt, &purchase.UpdatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			// Нарушение уникальности gateway_order_id
			if pgErr.Code == "23505" {
				return domain.Purchase{}, repository.ErrDuplicate
			}
		}
		return domain.Purchase{}, fmt.Errorf("failed to create purchase: %w", err)
	}

	return purchase, nil
}

// GetByID возвращает покупку по ID
func (r *PostgresPurchaseRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Purchase, error) {
	query := `SELECT ` + purchaseColumns + ` FROM purchases WHERE id = $1`

	purchase, err := scanPurchase(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Purchase{}, repository.ErrNotFound
		}
		return domain.Purchase{}, fmt.Errorf("failed to get purchase: %w", err)
	}

	return purchase, nil
}

// GetByUserAndID возвращает покупку по ID в рамках владельца
func (r *PostgresPurchaseRepository) GetByUserAndID(ctx context.Context, userID string, id uuid.UUID) (domain.Purchase, error) {
	query := `SELECT ` + purchaseColumns + ` FROM purchases WHERE id = $1 AND user_id = $2`

	purchase, err := scanPurchase(r.db.QueryRow(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Purchase{}, repository.ErrNotFound
		}
		return domain.Purchase{}, fmt.Errorf("failed to get purchase for user: %w", err)
	}

	return purchase, nil
}

// GetByGatewayOrderID возвращает покупку по ID заказа шлюза
func (r *PostgresPurchaseRepository) GetByGatewayOrderID(ctx context.Context, orderID string) (domain.Purchase, error) {
	query := `SELECT ` + purchaseColumns + ` FROM purchases WHERE gateway_order_id = $1`

	purchase, err := scanPurchase(r.db.QueryRow(ctx, query, orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Purchase{}, repository.ErrNotFound
		}
		return domain.Purchase{}, fmt.Errorf("failed to get purchase by gateway order: %w", err)
	}

	return purchase, nil
}

// GetByUserID возвращает покупки пользователя, новые первыми
func (r *PostgresPurchaseRepository) GetByUserID(ctx context.Context, userID string) ([]domain.Purchase, error) {
	query := `SELECT ` + purchaseColumns + ` FROM purchases WHERE user_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query purchases: %w", err)
	}
	defer rows.Close()

	var purchases []domain.Purchase
	for rows.Next() {
		purchase, err := scanPurchase(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan purchase: %w", err)
		}
		purchases = append(purchases, purchase)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating purchases: %w", err)
	}

	return purchases, nil
}

// FinalizeCompleted выполняет переход pending -> completed одной условной
// записью. Два конкурентных вызова не могут оба выполнить переход:
// условие status = 'pending' отсекает проигравшего, который затем
// перечитывает строку и возвращает результат победителя.
func (r *PostgresPurchaseRepository) FinalizeCompleted(ctx context.Context, id uuid.UUID, userID, gatewayPaymentID string) (domain.Purchase, bool, error) {
	query := `
		UPDATE purchases
		SET gateway_payment_id = $3, status = 'completed', updated_at = NOW()
		WHERE id = $1 AND user_id = $2 AND status = 'pending'
		RETURNING ` + purchaseColumns + `
	`

	purchase, err := scanPurchase(r.db.QueryRow(ctx, query, id, userID, gatewayPaymentID))
	if err == nil {
		return purchase, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Purchase{}, false, fmt.Errorf("failed to finalize purchase: %w", err)
	}

	// Ноль строк: либо покупки нет, либо конкурентный вызов успел раньше
	existing, err := r.GetByUserAndID(ctx, userID, id)
	if err != nil {
		return domain.Purchase{}, false, err
	}

	return existing, false, nil
}

// ConsumeDownload списывает одно скачивание условной записью: только
// completed, с остатком квоты и не истекшим сроком действия.
func (r *PostgresPurchaseRepository) ConsumeDownload(ctx context.Context, id uuid.UUID, userID string, now time.Time) (domain.Purchase, error) {
	query := `
		UPDATE purchases
		SET downloads_remaining = downloads_remaining - 1, updated_at = NOW()
		WHERE id = $1 AND user_id = $2 AND status = 'completed'
		  AND downloads_remaining > 0
		  AND (expires_at IS NULL OR expires_at > $3)
		RETURNING ` + purchaseColumns + `
	`

	purchase, err := scanPurchase(r.db.QueryRow(ctx, query, id, userID, now))
	if err == nil {
		return purchase, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Purchase{}, fmt.Errorf("failed to consume download: %w", err)
	}

	// Ноль строк: различаем "нет покупки" и "квота/срок не позволяют"
	if _, err := r.GetByUserAndID(ctx, userID, id); err != nil {
		return domain.Purchase{}, err
	}

	return domain.Purchase{}, repository.ErrNotEligible
}

func scanPurchase(row pgx.Row) (domain.Purchase, error) {
	var (
		purchase         domain.Purchase
		gatewayPaymentID *string
	)

	err := row.Scan(
		&purchase.ID,
		&purchase.UserID,
		&purchase.PlanType,
		&purchase.Amount,
		&purchase.Currency,
		&purchase.GatewayOrderID,
		&gatewayPaymentID,
		&purchase.Status,
		&purchase.DownloadsRemaining,
		&purchase.ExpiresAt,
		&purchase.CreatedAt,
		&purchase.UpdatedAt,
	)
	if err != nil {
		return domain.Purchase{}, err
	}

	if gatewayPaymentID != nil {
		purchase.GatewayPaymentID = *gatewayPaymentID
	}

	return purchase, nil
}
