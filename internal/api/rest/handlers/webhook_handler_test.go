package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/resumeforge/payment-service/internal/domain"
)

// stubVerifier принимает только подпись "valid"
type stubVerifier struct{}

func (stubVerifier) VerifyWebhookSignature(body []byte, signature string) bool {
	return signature == "valid"
}

// stubFinalizer записывает последний обработанный вызов
type stubFinalizer struct {
	purchase domain.Purchase
	err      error

	calls       int
	lastOrderID string
	lastPayID   string
}

func (s *stubFinalizer) HandlePaymentCaptured(ctx context.Context, gatewayOrderID, gatewayPaymentID string) (domain.Purchase, error) {
	s.calls++
	s.lastOrderID = gatewayOrderID
	s.lastPayID = gatewayPaymentID
	return s.purchase, s.err
}

func setupWebhookRouter(finalizer *stubFinalizer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	handler := NewWebhookHandler(finalizer, stubVerifier{}, testLogger())
	router := gin.New()
	router.POST("/webhooks/razorpay", handler.HandleRazorpayWebhook)
	return router
}

func postWebhook(router *gin.Engine, body, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/razorpay", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set("X-Razorpay-Signature", signature)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

const capturedEvent = `{
	"event": "payment.captured",
	"payload": {
		"payment": {
			"entity": {
				"id": "pay_1",
				"order_id": "order_1",
				"status": "captured"
			}
		}
	}
}`

func TestWebhookPaymentCaptured(t *testing.T) {
	finalizer := &stubFinalizer{
		purchase: domain.Purchase{
			ID:     uuid.New(),
			Status: domain.PurchaseStatusCompleted,
		},
	}
	router := setupWebhookRouter(finalizer)

	w := postWebhook(router, capturedEvent, "valid")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if finalizer.calls != 1 {
		t.Errorf("expected 1 finalize call, got %d", finalizer.calls)
	}
	if finalizer.lastOrderID != "order_1" || finalizer.lastPayID != "pay_1" {
		t.Errorf("finalizer called with order=%s payment=%s", finalizer.lastOrderID, finalizer.lastPayID)
	}
	if !strings.Contains(w.Body.String(), `"status":"ok"`) {
		t.Errorf("unexpected body: %s", w.Body.String())
	}
}

func TestWebhookMissingSignature(t *testing.T) {
	finalizer := &stubFinalizer{}
	router := setupWebhookRouter(finalizer)

	w := postWebhook(router, capturedEvent, "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without signature, got %d", w.Code)
	}
	if finalizer.calls != 0 {
		t.Error("finalizer must not be called without a signature")
	}
}

func TestWebhookInvalidSignature(t *testing.T) {
	finalizer := &stubFinalizer{}
	router := setupWebhookRouter(finalizer)

	w := postWebhook(router, capturedEvent, "forged")
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for forged signature, got %d", w.Code)
	}
	if finalizer.calls != 0 {
		t.Error("finalizer must not be called with a forged signature")
	}
}

func TestWebhookIgnoresOtherEvents(t *testing.T) {
	finalizer := &stubFinalizer{}
	router := setupWebhookRouter(finalizer)

	w := postWebhook(router, `{"event": "payment.failed"}`, "valid")
	if w.Code != http.StatusOK {
		t.Errorf("expected 200 for ignored event, got %d", w.Code)
	}
	if finalizer.calls != 0 {
		t.Error("finalizer must not be called for other events")
	}
	if !strings.Contains(w.Body.String(), "ignored") {
		t.Errorf("unexpected body: %s", w.Body.String())
	}
}

func TestWebhookUnknownOrder(t *testing.T) {
	finalizer := &stubFinalizer{err: domain.NewNotFoundError("purchase", "order_1")}
	router := setupWebhookRouter(finalizer)

	// Не просим Razorpay повторять доставку для чужого заказа
	w := postWebhook(router, capturedEvent, "valid")
	if w.Code != http.StatusOK {
		t.Errorf("expected 200 for unknown order, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "unknown_order") {
		t.Errorf("unexpected body: %s", w.Body.String())
	}
}

func TestWebhookFinalizeFailure(t *testing.T) {
	finalizer := &stubFinalizer{err: domain.ErrPersistence}
	router := setupWebhookRouter(finalizer)

	w := postWebhook(router, capturedEvent, "valid")
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 so gateway retries delivery, got %d", w.Code)
	}
}

func TestWebhookMalformedBody(t *testing.T) {
	router := setupWebhookRouter(&stubFinalizer{})

	w := postWebhook(router, "{not json", "valid")
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed body, got %d", w.Code)
	}
}
