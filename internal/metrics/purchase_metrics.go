package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/resumeforge/payment-service/pkg/logger"
)

// PurchaseMetrics интерфейс для метрик покупок
type PurchaseMetrics interface {
	IncOrderCreated(planType string)
	IncVerification(outcome string)
	IncDownloadConsumed(planType string)
	ObservePurchaseAmount(amount float64, planType string)
}

type purchaseMetrics struct {
	log               *logger.Logger
	ordersCreated     *prometheus.CounterVec
	verifications     *prometheus.CounterVec
	downloadsConsumed *prometheus.CounterVec
	purchaseAmount    *prometheus.HistogramVec
}

// NewPurchaseMetrics создает новые метрики покупок
func NewPurchaseMetrics(registry *prometheus.Registry, log *logger.Logger) PurchaseMetrics {
	ordersCreated := promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "purchase_orders_created_total",
			Help: "The total number of created gateway orders",
		},
		[]string{"plan_type"},
	)

	verifications := promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "purchase_verifications_total",
			Help: "The total number of verification attempts by outcome",
		},
		[]string{"outcome"},
	)

	downloadsConsumed := promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "purchase_downloads_consumed_total",
			Help: "The total number of consumed downloads",
		},
		[]string{"plan_type"},
	)

	purchaseAmount := promauto.With(registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "purchase_amount_rupees",
			Help:    "Purchase amounts distribution",
			Buckets: prometheus.ExponentialBuckets(5, 2, 6), // 5, 10, 20, 40, 80, 160
		},
		[]string{"plan_type"},
	)

	return &purchaseMetrics{
		log:               log,
		ordersCreated:     ordersCreated,
		verifications:     verifications,
		downloadsConsumed: downloadsConsumed,
		purchaseAmount:    purchaseAmount,
	}
}

// IncOrderCreated увеличивает счетчик созданных заказов
func (m *purchaseMetrics) IncOrderCreated(planType string) {
	m.ordersCreated.WithLabelValues(planType).Inc()
}

// IncVerification увеличивает счетчик попыток подтверждения.
// outcome: completed, replayed, failed
func (m *purchaseMetrics) IncVerification(outcome string) {
	m.verifications.WithLabelValues(outcome).Inc()
}

// IncDownloadConsumed увеличивает счетчик списанных скачиваний
func (m *purchaseMetrics) IncDownloadConsumed(planType string) {
	m.downloadsConsumed.WithLabelValues(planType).Inc()
}

// ObservePurchaseAmount записывает сумму покупки
func (m *purchaseMetrics) ObservePurchaseAmount(amount float64, planType string) {
	m.purchaseAmount.WithLabelValues(planType).Observe(amount)
}
