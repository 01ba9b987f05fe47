package domain

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// PurchaseStatus статус покупки
type PurchaseStatus string

const (
	PurchaseStatusPending   PurchaseStatus = "pending"
	PurchaseStatusCompleted PurchaseStatus = "completed"
)

// PlanType тип тарифного плана
type PlanType string

const (
	PlanTypeSingle       PlanType = "single"
	PlanTypeProfessional PlanType = "professional"
)

// Валюта фиксирована для этого развертывания
const CurrencyINR = "INR"

// Параметры тарифных планов
const (
	SinglePlanDownloads       = 1
	ProfessionalPlanDownloads = 10

	SinglePlanValidity       = 24 * time.Hour
	ProfessionalPlanValidity = 30 * 24 * time.Hour
)

// Канонические цены планов в рупиях. Сумма из запроса клиента
// не сверяется с ними принудительно, расхождение только логируется.
var planPrices = map[PlanType]float64{
	PlanTypeSingle:       5,
	PlanTypeProfessional: 49,
}

// IsValid проверяет, что тип плана известен
func (p PlanType) IsValid() bool {
	return p == PlanTypeSingle || p == PlanTypeProfessional
}

// Downloads возвращает квоту скачиваний для плана
func (p PlanType) Downloads() int {
	if p == PlanTypeProfessional {
		return ProfessionalPlanDownloads
	}
	return SinglePlanDownloads
}

// Validity возвращает срок действия покупки для плана
func (p PlanType) Validity() time.Duration {
	if p == PlanTypeProfessional {
		return ProfessionalPlanValidity
	}
	return SinglePlanValidity
}

// PlanPrice возвращает каноническую цену плана в рупиях
func PlanPrice(p PlanType) float64 {
	return planPrices[p]
}

// MinorUnits переводит сумму в рупиях в пайсы для платежного шлюза
func MinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// Purchase представляет собой запись о покупке (квота скачиваний + срок действия)
type Purchase struct {
	ID                 uuid.UUID      `json:"id"`
	UserID             string         `json:"user_id"`
	PlanType           PlanType       `json:"plan_type"`
	Amount             float64        `json:"amount"`
	Currency           string         `json:"currency"`
	GatewayOrderID     string         `json:"gateway_order_id"`
	GatewayPaymentID   string         `json:"gateway_payment_id,omitempty"`
	Status             PurchaseStatus `json:"status"`
	DownloadsRemaining int            `json:"downloads_remaining"`
	ExpiresAt          *time.Time     `json:"expires_at,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// DownloadEligible проверяет, можно ли списать скачивание с покупки
func (p Purchase) DownloadEligible(now time.Time) bool {
	if p.Status != PurchaseStatusCompleted {
		return false
	}
	if p.DownloadsRemaining <= 0 {
		return false
	}
	if p.ExpiresAt != nil && !p.ExpiresAt.After(now) {
		return false
	}
	return true
}

// CreateOrderRequest запрос на создание заказа
type CreateOrderRequest struct {
	PlanType PlanType `json:"plan_type" binding:"required,oneof=single professional"`
	Amount   float64  `json:"amount" binding:"required,gt=0"`
}

// CreateOrderResponse ответ сервиса заказов
type CreateOrderResponse struct {
	OrderID    string `json:"order_id"`
	Amount     int64  `json:"amount"` // в пайсах
	Currency   string `json:"currency"`
	PurchaseID string `json:"purchase_id"`
}

// VerifyPaymentRequest запрос на подтверждение платежа.
// Имена полей соответствуют callback-у шлюза Razorpay. Подпись
// клиента не используется для авторизации, только как корреляция.
type VerifyPaymentRequest struct {
	RazorpayPaymentID string `json:"razorpay_payment_id" binding:"required"`
	RazorpayOrderID   string `json:"razorpay_order_id" binding:"required"`
	RazorpaySignature string `json:"razorpay_signature"`
	PurchaseID        string `json:"purchase_id" binding:"required,uuid4"`
}

// VerifyPaymentResponse ответ сервиса подтверждения
type VerifyPaymentResponse struct {
	Success  bool     `json:"success"`
	Purchase Purchase `json:"purchase"`
}
