package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/resumeforge/payment-service/internal/domain"
	"github.com/resumeforge/payment-service/pkg/logger"
)

const (
	// Ограничение на размер тела запроса вебхука
	maxRequestBodySize = int64(65536)

	eventPaymentCaptured = "payment.captured"
)

// SignatureVerifier проверяет HMAC подпись вебхука шлюза
type SignatureVerifier interface {
	VerifyWebhookSignature(body []byte, signature string) bool
}

// WebhookFinalizer финализирует покупку по событию шлюза
type WebhookFinalizer interface {
	HandlePaymentCaptured(ctx context.Context, gatewayOrderID, gatewayPaymentID string) (domain.Purchase, error)
}

// WebhookHandler обрабатывает входящие вебхуки от Razorpay.
type WebhookHandler struct {
	service  WebhookFinalizer
	verifier SignatureVerifier
	log      *logger.Logger
}

// webhookEvent структура события Razorpay (только нужные поля)
type webhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID      string `json:"id"`
				OrderID string `json:"order_id"`
				Status  string `json:"status"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// NewWebhookHandler создает новый экземпляр WebhookHandler.
func NewWebhookHandler(service WebhookFinalizer, verifier SignatureVerifier, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{
		service:  service,
		verifier: verifier,
		log:      log,
	}
}

// HandleRazorpayWebhook - обработчик для Gin, принимающий вебхуки Razorpay.
func (h *WebhookHandler) HandleRazorpayWebhook(c *gin.Context) {
	ctx := c.Request.Context()

	// Читаем тело один раз, с ограничением размера
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxRequestBodySize)
	payload, err := io.ReadAll(c.Request.Body)
	defer c.Request.Body.Close()

	if err != nil {
		h.log.Errorw("Failed to read webhook request body", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot read request body"})
		return
	}

	// Подпись вебхука обязательна: без нее событие не принимается
	signature := c.GetHeader("X-Razorpay-Signature")
	if signature == "" {
		h.log.Warnw("Missing X-Razorpay-Signature header")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing X-Razorpay-Signature header"})
		return
	}

	if !h.verifier.VerifyWebhookSignature(payload, signature) {
		h.log.Errorw("Webhook signature verification failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Webhook signature verification failed"})
		return
	}

	var event webhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		h.log.Errorw("Failed to parse webhook event", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to parse event data"})
		return
	}

	h.log.Infow("Received verified Razorpay event", "eventType", event.Event)

	// Интересует только payment.captured, остальное подтверждаем без действий
	if event.Event != eventPaymentCaptured {
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	entity := event.Payload.Payment.Entity
	purchase, err := h.service.HandlePaymentCaptured(ctx, entity.OrderID, entity.ID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// Заказ не из этой системы: логируем и не просим повтор
			h.log.Warnw("Webhook for unknown gateway order", "gatewayOrderID", entity.OrderID)
			c.JSON(http.StatusOK, gin.H{"status": "unknown_order"})
			return
		}
		h.log.Errorw("Failed to finalize purchase from webhook", "error", err, "gatewayOrderID", entity.OrderID)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to process event"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "purchase_id": purchase.ID})
}
