package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/resumeforge/payment-service/internal/domain"
	"github.com/resumeforge/payment-service/pkg/logger"
)

// PaymentResult содержит идентификаторы, которые шлюз возвращает после успешной оплаты.
type PaymentResult struct {
	PaymentID string
	OrderID   string
	Signature string
}

// WidgetOptions - параметры открытия платежного виджета.
type WidgetOptions struct {
	Key         string
	OrderID     string
	Amount      int64
	Currency    string
	Name        string
	Description string

	// OnPayment вызывается шлюзом после оплаты, до подтверждения на сервере.
	OnPayment func(result PaymentResult)
	// OnDismiss вызывается при закрытии виджета без оплаты.
	OnDismiss func()
	// OnFailure вызывается при отказе платежа на стороне шлюза.
	OnFailure func(reason string)
}

// Widget - загруженный платежный виджет шлюза.
type Widget interface {
	Open(ctx context.Context, opts WidgetOptions) error
}

// WidgetLoader загружает виджет шлюза. Загрузка может не удаться
// (например, при отсутствии сети) и должна допускать повторную попытку.
type WidgetLoader interface {
	Load(ctx context.Context) (Widget, error)
}

// Notifier доводит результат оплаты до пользователя.
type Notifier interface {
	Success(message string)
	Failure(message string)
}

// OrderAPI - клиент платежного сервиса со стороны инициатора заказа.
type OrderAPI interface {
	CreateOrder(ctx context.Context, token string, req domain.CreateOrderRequest) (*domain.CreateOrderResponse, error)
	VerifyPayment(ctx context.Context, token string, req domain.VerifyPaymentRequest) (*domain.VerifyPaymentResponse, error)
}

// Initiator управляет жизненным циклом оплаты: загрузка виджета,
// создание заказа, открытие виджета и серверное подтверждение платежа.
// Успех сообщается только после подтверждения сервером.
type Initiator struct {
	loader   WidgetLoader
	api      OrderAPI
	notifier Notifier
	key      string
	log      *logger.Logger

	mu     sync.Mutex
	widget Widget
}

// NewInitiator создает новый инициатор заказа.
func NewInitiator(loader WidgetLoader, api OrderAPI, notifier Notifier, gatewayKey string, log *logger.Logger) *Initiator {
	return &Initiator{
		loader:   loader,
		api:      api,
		notifier: notifier,
		key:      gatewayKey,
		log:      log,
	}
}

// EnsureLoaded возвращает виджет, загружая его при первом обращении.
// Неудачная загрузка не кешируется: следующий вызов попробует снова.
func (i *Initiator) EnsureLoaded(ctx context.Context) (Widget, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.widget != nil {
		return i.widget, nil
	}

	widget, err := i.loader.Load(ctx)
	if err != nil {
		i.log.Errorw("Failed to load payment widget", "error", err)
		return nil, fmt.Errorf("load payment widget: %w", err)
	}

	i.widget = widget
	return widget, nil
}

// Start запускает полный цикл оплаты выбранного тарифа.
func (i *Initiator) Start(ctx context.Context, token string, planType domain.PlanType) error {
	widget, err := i.EnsureLoaded(ctx)
	if err != nil {
		i.notifier.Failure("Failed to load payment gateway. Please check your connection and try again.")
		return err
	}

	order, err := i.api.CreateOrder(ctx, token, domain.CreateOrderRequest{
		PlanType: planType,
		Amount:   domain.PlanPrice(planType),
	})
	if err != nil {
		i.log.Errorw("Failed to create order", "plan_type", planType, "error", err)
		i.notifier.Failure("Could not start the payment. Please try again later.")
		return err
	}

	opts := WidgetOptions{
		Key:         i.key,
		OrderID:     order.OrderID,
		Amount:      order.Amount,
		Currency:    order.Currency,
		Name:        "ResumeForge",
		Description: planDescription(planType),
		OnPayment: func(result PaymentResult) {
			i.completePayment(ctx, token, order.PurchaseID, result)
		},
		OnDismiss: func() {
			i.log.Infow("Payment widget dismissed", "order_id", order.OrderID)
			i.notifier.Failure("Payment cancelled.")
		},
		OnFailure: func(reason string) {
			i.log.Warnw("Payment failed at gateway", "order_id", order.OrderID, "reason", reason)
			i.notifier.Failure("Payment failed. You have not been charged.")
		},
	}

	if err := widget.Open(ctx, opts); err != nil {
		i.log.Errorw("Failed to open payment widget", "order_id", order.OrderID, "error", err)
		i.notifier.Failure("Could not open the payment window. Please try again.")
		return err
	}

	return nil
}

// completePayment подтверждает платеж на сервере. Пользователь видит успех
// только после положительного ответа сервиса подтверждения.
func (i *Initiator) completePayment(ctx context.Context, token, purchaseID string, result PaymentResult) {
	resp, err := i.api.VerifyPayment(ctx, token, domain.VerifyPaymentRequest{
		RazorpayPaymentID: result.PaymentID,
		RazorpayOrderID:   result.OrderID,
		RazorpaySignature: result.Signature,
		PurchaseID:        purchaseID,
	})
	if err != nil || !resp.Success {
		i.log.Errorw("Payment verification failed", "purchase_id", purchaseID, "error", err)
		i.notifier.Failure("Payment verification failed. If money was deducted, please contact support.")
		return
	}

	i.log.Infow("Payment verified", "purchase_id", purchaseID)
	i.notifier.Success("Payment successful! Your plan is now active.")
}

func planDescription(planType domain.PlanType) string {
	switch planType {
	case domain.PlanTypeProfessional:
		return "Professional plan - 10 resume downloads"
	default:
		return "Single resume download"
	}
}

// HTTPOrderAPI - реализация OrderAPI поверх REST API платежного сервиса.
type HTTPOrderAPI struct {
	baseURL string
	client  *http.Client
	log     *logger.Logger
}

// NewHTTPOrderAPI создает клиент платежного сервиса.
func NewHTTPOrderAPI(baseURL string, log *logger.Logger) *HTTPOrderAPI {
	return &HTTPOrderAPI{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
		log:     log,
	}
}

// CreateOrder создает заказ на оплату.
func (a *HTTPOrderAPI) CreateOrder(ctx context.Context, token string, req domain.CreateOrderRequest) (*domain.CreateOrderResponse, error) {
	var resp domain.CreateOrderResponse
	if err := a.post(ctx, "/api/v1/orders", token, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// VerifyPayment подтверждает платеж на сервере.
func (a *HTTPOrderAPI) VerifyPayment(ctx context.Context, token string, req domain.VerifyPaymentRequest) (*domain.VerifyPaymentResponse, error) {
	var resp domain.VerifyPaymentResponse
	if err := a.post(ctx, "/api/v1/orders/verify", token, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (a *HTTPOrderAPI) post(ctx context.Context, path, token string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	httpResp, err := a.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("call payment service: %w", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK && httpResp.StatusCode != http.StatusCreated {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("payment service: %s", apiErr.Error)
		}
		return fmt.Errorf("payment service: unexpected status %d", httpResp.StatusCode)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
