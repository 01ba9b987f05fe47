package razorpay

import (
	"context"
	"fmt"

	razorpay "github.com/razorpay/razorpay-go"
	"github.com/razorpay/razorpay-go/utils"
	"github.com/resumeforge/payment-service/pkg/logger"
)

// Статусы платежа, которые возвращает Razorpay
const (
	PaymentStatusCreated    = "created"
	PaymentStatusAuthorized = "authorized"
	PaymentStatusCaptured   = "captured"
	PaymentStatusFailed     = "failed"
)

// Order заказ, созданный в Razorpay до сбора платежа
type Order struct {
	ID       string
	Amount   int64 // в пайсах
	Currency string
	Receipt  string
}

// Payment платеж, полученный из Razorpay server-to-server запросом
type Payment struct {
	ID       string
	OrderID  string
	Status   string
	Amount   int64
	Currency string
	Method   string
}

// Captured сообщает, подтвердил ли шлюз списание средств.
// Единственный источник истины для "деньги действительно списаны".
func (p Payment) Captured() bool {
	return p.Status == PaymentStatusCaptured || p.Status == PaymentStatusAuthorized
}

// CreateOrderInput параметры создания заказа
type CreateOrderInput struct {
	Amount   int64 // в пайсах
	Currency string
	Receipt  string
	Notes    map[string]interface{}
}

// Client определяет методы для взаимодействия с Razorpay API.
type Client interface {
	// CreateOrder открывает заказ в Razorpay и возвращает его.
	CreateOrder(ctx context.Context, input CreateOrderInput) (Order, error)

	// FetchPayment запрашивает платеж по ID напрямую у шлюза,
	// не полагаясь на данные, присланные клиентом.
	FetchPayment(ctx context.Context, paymentID string) (Payment, error)

	// VerifyWebhookSignature проверяет HMAC подпись вебхука Razorpay.
	VerifyWebhookSignature(body []byte, signature string) bool

	// KeyID возвращает публичный ключ для клиентского виджета.
	KeyID() string
}

// razorpayClient реализует интерфейс Client поверх SDK.
type razorpayClient struct {
	client        *razorpay.Client
	keyID         string
	webhookSecret string
	log           *logger.Logger
}

// NewClient создает новый экземпляр клиента Razorpay.
func NewClient(keyID, keySecret, webhookSecret string, log *logger.Logger) Client {
	return &razorpayClient{
		client:        razorpay.NewClient(keyID, keySecret),
		keyID:         keyID,
		webhookSecret: webhookSecret,
		log:           log,
	}
}

// KeyID возвращает публичный ключ Razorpay
func (rc *razorpayClient) KeyID() string {
	return rc.keyID
}

// CreateOrder открывает заказ в Razorpay
func (rc *razorpayClient) CreateOrder(ctx context.Context, input CreateOrderInput) (Order, error) {
	// SDK не принимает контекст, поэтому хотя бы проверяем отмену до вызова
	if err := ctx.Err(); err != nil {
		return Order{}, err
	}

	data := map[string]interface{}{
		"amount":   input.Amount,
		"currency": input.Currency,
		"receipt":  input.Receipt,
	}
	if len(input.Notes) > 0 {
		data["notes"] = input.Notes
	}

	body, err := rc.client.Order.Create(data, nil)
	if err != nil {
		rc.log.Errorw("Razorpay order creation failed", "error", err, "receipt", input.Receipt)
		return Order{}, fmt.Errorf("razorpay: failed to create order: %w", err)
	}

	order := Order{
		ID:       stringField(body, "id"),
		Amount:   int64Field(body, "amount"),
		Currency: stringField(body, "currency"),
		Receipt:  stringField(body, "receipt"),
	}
	if order.ID == "" {
		rc.log.Errorw("Razorpay order response has no id", "receipt", input.Receipt)
		return Order{}, fmt.Errorf("razorpay: order response missing id")
	}

	rc.log.Infow("Razorpay order created", "orderID", order.ID, "amount", order.Amount, "currency", order.Currency)
	return order, nil
}

// FetchPayment запрашивает состояние платежа у Razorpay
func (rc *razorpayClient) FetchPayment(ctx context.Context, paymentID string) (Payment, error) {
	if err := ctx.Err(); err != nil {
		return Payment{}, err
	}

	body, err := rc.client.Payment.Fetch(paymentID, nil, nil)
	if err != nil {
		rc.log.Errorw("Razorpay payment fetch failed", "error", err, "paymentID", paymentID)
		return Payment{}, fmt.Errorf("razorpay: failed to fetch payment: %w", err)
	}

	payment := Payment{
		ID:       stringField(body, "id"),
		OrderID:  stringField(body, "order_id"),
		Status:   stringField(body, "status"),
		Amount:   int64Field(body, "amount"),
		Currency: stringField(body, "currency"),
		Method:   stringField(body, "method"),
	}

	rc.log.Debugw("Razorpay payment fetched", "paymentID", payment.ID, "status", payment.Status)
	return payment, nil
}

// VerifyWebhookSignature проверяет подпись вебхука по webhook secret
func (rc *razorpayClient) VerifyWebhookSignature(body []byte, signature string) bool {
	if rc.webhookSecret == "" || signature == "" {
		return false
	}
	return utils.VerifyWebhookSignature(string(body), signature, rc.webhookSecret)
}

// SDK возвращает ответы как map[string]interface{}, числа приходят
// как float64 после разбора JSON
func stringField(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func int64Field(m map[string]interface{}, key string) int64 {
	switch v := m[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	default:
		return 0
	}
}
