package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/resumeforge/payment-service/internal/domain"
	"github.com/resumeforge/payment-service/internal/gateway/razorpay"
	"github.com/resumeforge/payment-service/internal/kafka"
	"github.com/resumeforge/payment-service/internal/metrics"
	"github.com/resumeforge/payment-service/internal/repository"
	"github.com/resumeforge/payment-service/pkg/logger"
)

// Исходы подтверждения для метрик
const (
	verificationOutcomeCompleted = "completed"
	verificationOutcomeReplayed  = "replayed"
	verificationOutcomeFailed    = "failed"
)

// PurchaseService реализует жизненный цикл покупки: создание заказа,
// идемпотентное подтверждение платежа и списание квоты скачиваний.
type PurchaseService struct {
	repo     repository.PurchaseRepository
	gateway  razorpay.Client
	producer kafka.Producer // может быть nil, если Kafka недоступен
	metrics  metrics.PurchaseMetrics
	log      *logger.Logger
	now      func() time.Time
}

// NewPurchaseService создает новый сервис покупок
func NewPurchaseService(
	repo repository.PurchaseRepository,
	gateway razorpay.Client,
	producer kafka.Producer,
	purchaseMetrics metrics.PurchaseMetrics,
	log *logger.Logger,
) *PurchaseService {
	if producer == nil {
		log.Warnw("Kafka producer is nil, event publishing will be skipped")
	}
	return &PurchaseService{
		repo:     repo,
		gateway:  gateway,
		producer: producer,
		metrics:  purchaseMetrics,
		log:      log,
		now:      time.Now,
	}
}

// CreateOrder открывает заказ в шлюзе и создает pending покупку.
// Каждый успешный вызов создает ровно один заказ и одну строку покупки;
// повторов здесь нет.
func (s *PurchaseService) CreateOrder(ctx context.Context, userID string, req domain.CreateOrderRequest) (domain.CreateOrderResponse, error) {
	if userID == "" {
		return domain.CreateOrderResponse{}, domain.ErrUnauthenticated
	}
	if !req.PlanType.IsValid() {
		return domain.CreateOrderResponse{}, fmt.Errorf("%w: unknown plan type %q", domain.ErrInvalidInput, req.PlanType)
	}
	if req.Amount <= 0 {
		return domain.CreateOrderResponse{}, fmt.Errorf("%w: amount must be positive", domain.ErrInvalidInput)
	}

	now := s.now()

	// Сумма принимается от клиента как есть, расхождение с канонической
	// ценой только логируется (см. DESIGN.md)
	if canonical := domain.PlanPrice(req.PlanType); canonical != req.Amount {
		s.log.Warnw("Client amount differs from canonical plan price",
			"planType", req.PlanType, "amount", req.Amount, "canonical", canonical, "userID", userID)
	}

	expiresAt := now.Add(req.PlanType.Validity())
	amountMinor := domain.MinorUnits(req.Amount)

	order, err := s.gateway.CreateOrder(ctx, razorpay.CreateOrderInput{
		Amount:   amountMinor,
		Currency: domain.CurrencyINR,
		Receipt:  buildReceipt(req.PlanType, now, userID),
		Notes: map[string]interface{}{
			"plan_type":    string(req.PlanType),
			"user_id":      userID,
			"requested_at": now.UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		s.log.Errorw("Failed to create gateway order", "error", err, "userID", userID, "planType", req.PlanType)
		return domain.CreateOrderResponse{}, fmt.Errorf("%w: %v", domain.ErrGateway, err)
	}

	purchase := domain.Purchase{
		ID:                 uuid.New(),
		UserID:             userID,
		PlanType:           req.PlanType,
		Amount:             req.Amount,
		Currency:           domain.CurrencyINR,
		GatewayOrderID:     order.ID,
		Status:             domain.PurchaseStatusPending,
		DownloadsRemaining: req.PlanType.Downloads(),
		ExpiresAt:          &expiresAt,
	}

	created, err := s.repo.Create(ctx, purchase)
	if err != nil {
		// Заказ в шлюзе уже существует и остается сиротой, компенсирующая
		// отмена не выполняется - логируем его ID для ручной сверки
		s.log.Errorw("Failed to persist pending purchase, gateway order is orphaned",
			"error", err, "gatewayOrderID", order.ID, "userID", userID)
		return domain.CreateOrderResponse{}, fmt.Errorf("%w: failed to persist purchase: %v", domain.ErrPersistence, err)
	}

	if s.metrics != nil {
		s.metrics.IncOrderCreated(string(created.PlanType))
		s.metrics.ObservePurchaseAmount(created.Amount, string(created.PlanType))
	}
	if s.producer != nil {
		go s.publishPurchaseEvent(context.WithoutCancel(ctx), kafka.TopicPurchaseCreated, created)
	}

	s.log.Infow("Pending purchase created", "purchaseID", created.ID, "gatewayOrderID", order.ID, "planType", created.PlanType, "userID", userID)

	return domain.CreateOrderResponse{
		OrderID:    order.ID,
		Amount:     amountMinor,
		Currency:   domain.CurrencyINR,
		PurchaseID: created.ID.String(),
	}, nil
}

// VerifyPayment независимо подтверждает платеж у шлюза и финализирует
// покупку ровно один раз. Безопасен для повторных и конкурентных
// вызовов: переход pending -> completed выполняется одной условной
// записью, проигравший вызов возвращает строку победителя.
func (s *PurchaseService) VerifyPayment(ctx context.Context, userID string, req domain.VerifyPaymentRequest) (domain.Purchase, error) {
	if userID == "" {
		return domain.Purchase{}, domain.ErrUnauthenticated
	}

	purchaseID, err := uuid.Parse(req.PurchaseID)
	if err != nil {
		return domain.Purchase{}, fmt.Errorf("%w: invalid purchase id", domain.ErrInvalidInput)
	}

	// Единственный источник истины - server-to-server запрос к шлюзу.
	// Клиентская подпись не участвует в авторизации.
	payment, err := s.fetchPaymentWithRetry(ctx, req.RazorpayPaymentID)
	if err != nil {
		s.recordVerification(verificationOutcomeFailed)
		s.log.Errorw("Payment fetch from gateway failed", "error", err, "paymentID", req.RazorpayPaymentID, "purchaseID", req.PurchaseID)
		return domain.Purchase{}, fmt.Errorf("%w: %v", domain.ErrGateway, err)
	}

	if !payment.Captured() {
		s.recordVerification(verificationOutcomeFailed)
		s.log.Warnw("Gateway did not confirm payment capture", "paymentID", payment.ID, "status", payment.Status, "purchaseID", req.PurchaseID)
		return domain.Purchase{}, fmt.Errorf("%w: payment status is %q", domain.ErrVerificationFailed, payment.Status)
	}

	purchase, err := s.repo.GetByID(ctx, purchaseID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Purchase{}, domain.NewNotFoundError("purchase", req.PurchaseID)
		}
		return domain.Purchase{}, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}

	// Чужая покупка: наружу уходит тот же generic-ответ, что и для
	// несуществующей, чтобы не раскрывать чужие записи
	if purchase.UserID != userID {
		s.log.Warnw("Verification attempted on foreign purchase", "purchaseID", purchase.ID, "ownerID", purchase.UserID, "callerID", userID)
		return domain.Purchase{}, domain.ErrUnauthorized
	}

	// Платеж должен относиться к заказу именно этой покупки
	if payment.OrderID != "" && payment.OrderID != purchase.GatewayOrderID {
		s.recordVerification(verificationOutcomeFailed)
		s.log.Warnw("Payment belongs to a different gateway order", "paymentID", payment.ID, "paymentOrderID", payment.OrderID, "purchaseOrderID", purchase.GatewayOrderID)
		return domain.Purchase{}, fmt.Errorf("%w: payment does not match purchase order", domain.ErrVerificationFailed)
	}

	// Быстрый путь: уже completed, без повторной записи
	if purchase.Status == domain.PurchaseStatusCompleted {
		s.recordVerification(verificationOutcomeReplayed)
		s.log.Infow("Purchase already completed, verification replayed", "purchaseID", purchase.ID)
		return purchase, nil
	}

	return s.finalize(ctx, purchase, payment.ID)
}

// HandlePaymentCaptured финализирует покупку по событию вебхука
// payment.captured. Сходится с клиентским путем подтверждения:
// оба упираются в одну и ту же условную запись.
func (s *PurchaseService) HandlePaymentCaptured(ctx context.Context, gatewayOrderID, gatewayPaymentID string) (domain.Purchase, error) {
	if gatewayOrderID == "" || gatewayPaymentID == "" {
		return domain.Purchase{}, fmt.Errorf("%w: missing order or payment id", domain.ErrInvalidInput)
	}

	purchase, err := s.repo.GetByGatewayOrderID(ctx, gatewayOrderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Purchase{}, domain.NewNotFoundError("purchase", gatewayOrderID)
		}
		return domain.Purchase{}, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}

	if purchase.Status == domain.PurchaseStatusCompleted {
		s.recordVerification(verificationOutcomeReplayed)
		s.log.Infow("Webhook replayed for completed purchase", "purchaseID", purchase.ID, "gatewayOrderID", gatewayOrderID)
		return purchase, nil
	}

	return s.finalize(ctx, purchase, gatewayPaymentID)
}

// finalize выполняет условный переход pending -> completed и разбирает
// исход нулевой записи: конкурентный победитель или реальный сбой
func (s *PurchaseService) finalize(ctx context.Context, purchase domain.Purchase, gatewayPaymentID string) (domain.Purchase, error) {
	final, transitioned, err := s.repo.FinalizeCompleted(ctx, purchase.ID, purchase.UserID, gatewayPaymentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Purchase{}, domain.NewNotFoundError("purchase", purchase.ID.String())
		}
		s.recordVerification(verificationOutcomeFailed)
		return domain.Purchase{}, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}

	if transitioned {
		s.recordVerification(verificationOutcomeCompleted)
		if s.producer != nil {
			go s.publishPurchaseEvent(context.WithoutCancel(ctx), kafka.TopicPurchaseCompleted, final)
		}
		s.log.Infow("Purchase finalized", "purchaseID", final.ID, "gatewayPaymentID", gatewayPaymentID)
		return final, nil
	}

	// Переход выполнил не этот вызов: успех, только если строка
	// действительно completed (конкурентный вызов выиграл гонку)
	if final.Status == domain.PurchaseStatusCompleted {
		s.recordVerification(verificationOutcomeReplayed)
		s.log.Infow("Concurrent verification won the race, returning completed row", "purchaseID", final.ID)
		return final, nil
	}

	s.recordVerification(verificationOutcomeFailed)
	s.log.Errorw("Conditional finalize affected no rows and purchase is still pending", "purchaseID", purchase.ID)
	return domain.Purchase{}, fmt.Errorf("%w: finalize affected no rows", domain.ErrPersistence)
}

// GetPurchase возвращает покупку владельца
func (s *PurchaseService) GetPurchase(ctx context.Context, userID, id string) (domain.Purchase, error) {
	if userID == "" {
		return domain.Purchase{}, domain.ErrUnauthenticated
	}

	purchaseID, err := uuid.Parse(id)
	if err != nil {
		return domain.Purchase{}, fmt.Errorf("%w: invalid purchase id", domain.ErrInvalidInput)
	}

	purchase, err := s.repo.GetByUserAndID(ctx, userID, purchaseID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Purchase{}, domain.NewNotFoundError("purchase", id)
		}
		return domain.Purchase{}, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}

	return purchase, nil
}

// ListPurchases возвращает покупки пользователя, новые первыми
func (s *PurchaseService) ListPurchases(ctx context.Context, userID string) ([]domain.Purchase, error) {
	if userID == "" {
		return nil, domain.ErrUnauthenticated
	}

	purchases, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}

	return purchases, nil
}

// ConsumeDownload списывает одно скачивание с download-eligible покупки
func (s *PurchaseService) ConsumeDownload(ctx context.Context, userID, id string) (domain.Purchase, error) {
	if userID == "" {
		return domain.Purchase{}, domain.ErrUnauthenticated
	}

	purchaseID, err := uuid.Parse(id)
	if err != nil {
		return domain.Purchase{}, fmt.Errorf("%w: invalid purchase id", domain.ErrInvalidInput)
	}

	purchase, err := s.repo.ConsumeDownload(ctx, purchaseID, userID, s.now())
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return domain.Purchase{}, domain.NewNotFoundError("purchase", id)
		case errors.Is(err, repository.ErrNotEligible):
			return domain.Purchase{}, domain.ErrNotEligible
		default:
			return domain.Purchase{}, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
		}
	}

	if s.metrics != nil {
		s.metrics.IncDownloadConsumed(string(purchase.PlanType))
	}

	s.log.Infow("Download consumed", "purchaseID", purchase.ID, "remaining", purchase.DownloadsRemaining)
	return purchase, nil
}

// fetchPaymentWithRetry запрашивает платеж у шлюза с ограниченными
// повторами на транзиентных ошибках
func (s *PurchaseService) fetchPaymentWithRetry(ctx context.Context, paymentID string) (razorpay.Payment, error) {
	var payment razorpay.Payment

	operation := func() error {
		var err error
		payment, err = s.gateway.FetchPayment(ctx, paymentID)
		if err != nil {
			s.log.Warnw("Payment fetch attempt failed, may retry", "error", err, "paymentID", paymentID)
		}
		return err
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 200 * time.Millisecond
	expBackoff.MaxElapsedTime = 10 * time.Second

	if err := backoff.Retry(operation, backoff.WithContext(expBackoff, ctx)); err != nil {
		return razorpay.Payment{}, err
	}

	return payment, nil
}

// publishPurchaseEvent отправляет событие покупки в Kafka; сбой
// публикации не влияет на основной поток
func (s *PurchaseService) publishPurchaseEvent(ctx context.Context, topic string, purchase domain.Purchase) {
	if err := s.producer.PublishPurchaseEvent(ctx, topic, &purchase); err != nil {
		s.log.Errorw("Failed to publish purchase event", "error", err, "topic", topic, "purchaseID", purchase.ID)
	}
}

func (s *PurchaseService) recordVerification(outcome string) {
	if s.metrics != nil {
		s.metrics.IncVerification(outcome)
	}
}

// buildReceipt собирает квази-идемпотентную метку заказа:
// план + таймстемп + короткий ID пользователя
func buildReceipt(plan domain.PlanType, now time.Time, userID string) string {
	short := userID
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("%s_%d_%s", plan, now.Unix(), short)
}
