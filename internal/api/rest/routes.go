package rest

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/resumeforge/payment-service/internal/api/rest/handlers"
	"github.com/resumeforge/payment-service/internal/app"
	"github.com/resumeforge/payment-service/pkg/logger"
)

// SetupRoutes настраивает все маршруты API для Gin роутера
func SetupRoutes(router *gin.Engine, application *app.App, registry *prometheus.Registry, log *logger.Logger) {
	// Промежуточное ПО для всех запросов
	router.Use(application.LoggerMiddleware)
	router.Use(gin.Recovery())

	// Метрики Prometheus
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	// Группа API
	api := router.Group("/api/v1")
	{
		// Публичные маршруты (без аутентификации)
		// Обработчик вебхуков Razorpay
		api.POST("/webhooks/razorpay", application.WebhookHandler.HandleRazorpayWebhook)

		// Здоровье сервиса
		api.GET("/health", handlers.HealthCheck)

		// Защищенные маршруты (требуют аутентификации)
		auth := api.Group("")
		auth.Use(application.AuthMiddleware.RequireAuth())

		// Заказы
		orders := auth.Group("/orders")
		{
			// Создать заказ в шлюзе и pending покупку
			orders.POST("", application.PurchaseHandler.CreateOrder)

			// Подтвердить платеж и финализировать покупку
			orders.POST("/verify", application.PurchaseHandler.VerifyPayment)
		}

		// Покупки
		purchases := auth.Group("/purchases")
		{
			// Список покупок пользователя
			purchases.GET("", application.PurchaseHandler.ListPurchases)

			// Получить покупку по ID
			purchases.GET("/:purchase_id", application.PurchaseHandler.GetPurchase)

			// Списать одно скачивание
			purchases.POST("/:purchase_id/consume", application.PurchaseHandler.ConsumeDownload)
		}
	}

	log.Infow("API routes successfully configured")
}
