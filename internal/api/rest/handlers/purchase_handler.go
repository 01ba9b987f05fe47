package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/resumeforge/payment-service/internal/domain"
	"github.com/resumeforge/payment-service/internal/middleware"
	"github.com/resumeforge/payment-service/pkg/logger"
)

// PurchaseService операции жизненного цикла покупки, нужные HTTP слою
type PurchaseService interface {
	CreateOrder(ctx context.Context, userID string, req domain.CreateOrderRequest) (domain.CreateOrderResponse, error)
	VerifyPayment(ctx context.Context, userID string, req domain.VerifyPaymentRequest) (domain.Purchase, error)
	GetPurchase(ctx context.Context, userID, id string) (domain.Purchase, error)
	ListPurchases(ctx context.Context, userID string) ([]domain.Purchase, error)
	ConsumeDownload(ctx context.Context, userID, id string) (domain.Purchase, error)
}

// PurchaseHandler обработчик для покупок
type PurchaseHandler struct {
	service PurchaseService
	log     *logger.Logger
}

// NewPurchaseHandler создает новый обработчик покупок
func NewPurchaseHandler(service PurchaseService, log *logger.Logger) *PurchaseHandler {
	return &PurchaseHandler{
		service: service,
		log:     log,
	}
}

// CreateOrder создает заказ в шлюзе и pending покупку.
// Контракт сервиса заказов: любой сбой отображается в 400 с сообщением.
func (h *PurchaseHandler) CreateOrder(c *gin.Context) {
	var req domain.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warn("Invalid create order request: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	resp, err := h.service.CreateOrder(c.Request.Context(), middleware.UserID(c), req)
	if err != nil {
		h.log.Errorw("Failed to create order", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": orderErrorMessage(err)})
		return
	}

	h.log.Infow("Order created", "orderID", resp.OrderID, "purchaseID", resp.PurchaseID)
	c.JSON(http.StatusOK, resp)
}

// VerifyPayment подтверждает платеж и финализирует покупку.
// Контракт сервиса подтверждения: 200 {success, purchase} или 400
// {error, details}; эндпоинт безопасен для повторных вызовов.
func (h *PurchaseHandler) VerifyPayment(c *gin.Context) {
	var req domain.VerifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warn("Invalid verify request: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	purchase, err := h.service.VerifyPayment(c.Request.Context(), middleware.UserID(c), req)
	if err != nil {
		h.log.Errorw("Payment verification failed", "error", err, "purchaseID", req.PurchaseID)
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   verifyErrorMessage(err),
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, domain.VerifyPaymentResponse{
		Success:  true,
		Purchase: purchase,
	})
}

// GetPurchase возвращает покупку владельца по ID
func (h *PurchaseHandler) GetPurchase(c *gin.Context) {
	id := c.Param("purchase_id")

	purchase, err := h.service.GetPurchase(c.Request.Context(), middleware.UserID(c), id)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Purchase not found"})
		case errors.Is(err, domain.ErrInvalidInput):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid purchase ID format"})
		default:
			h.log.Errorw("Failed to get purchase", "error", err, "purchaseID", id)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get purchase"})
		}
		return
	}

	c.JSON(http.StatusOK, purchase)
}

// ListPurchases возвращает покупки пользователя
func (h *PurchaseHandler) ListPurchases(c *gin.Context) {
	purchases, err := h.service.ListPurchases(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		h.log.Errorw("Failed to list purchases", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list purchases"})
		return
	}

	if purchases == nil {
		purchases = []domain.Purchase{}
	}
	c.JSON(http.StatusOK, purchases)
}

// ConsumeDownload списывает одно скачивание с покупки
func (h *PurchaseHandler) ConsumeDownload(c *gin.Context) {
	id := c.Param("purchase_id")

	purchase, err := h.service.ConsumeDownload(c.Request.Context(), middleware.UserID(c), id)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Purchase not found"})
		case errors.Is(err, domain.ErrNotEligible):
			c.JSON(http.StatusBadRequest, gin.H{"error": "No downloads remaining or purchase expired"})
		case errors.Is(err, domain.ErrInvalidInput):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid purchase ID format"})
		default:
			h.log.Errorw("Failed to consume download", "error", err, "purchaseID", id)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to consume download"})
		}
		return
	}

	c.JSON(http.StatusOK, purchase)
}

// orderErrorMessage возвращает пользовательское сообщение для сбоя
// создания заказа
func orderErrorMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrUnauthenticated):
		return "Please sign in"
	case errors.Is(err, domain.ErrInvalidInput):
		return "Invalid plan or amount"
	case errors.Is(err, domain.ErrGateway):
		return "Payment failed, please try again"
	default:
		return "Failed to create order"
	}
}

// verifyErrorMessage возвращает пользовательское сообщение для сбоя
// подтверждения. Про списанные деньги при неподтвержденном платеже
// пользователю явно советуют обратиться в поддержку.
func verifyErrorMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrUnauthenticated):
		return "Please sign in"
	case errors.Is(err, domain.ErrVerificationFailed):
		return "Payment was not successful. If money was deducted, please contact support"
	case errors.Is(err, domain.ErrGateway):
		return "Could not verify payment, please try again. If money was deducted, please contact support"
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrUnauthorized):
		return "Purchase not found"
	default:
		return "Payment verification failed"
	}
}
