package app

import (
	"github.com/gin-gonic/gin"
	"github.com/resumeforge/payment-service/internal/api/rest/handlers"
	"github.com/resumeforge/payment-service/internal/config"
	"github.com/resumeforge/payment-service/internal/gateway/razorpay"
	"github.com/resumeforge/payment-service/internal/middleware"
	"github.com/resumeforge/payment-service/internal/service"
	"github.com/resumeforge/payment-service/pkg/logger"
)

// App представляет собой контейнер для всех компонентов приложения
type App struct {
	Config           *config.Config
	PurchaseService  *service.PurchaseService
	PurchaseHandler  *handlers.PurchaseHandler
	WebhookHandler   *handlers.WebhookHandler
	AuthMiddleware   *middleware.JWTMiddleware
	LoggerMiddleware gin.HandlerFunc
	Logger           *logger.Logger
}

// NewApp создает и инициализирует новый экземпляр приложения
func NewApp(
	cfg *config.Config,
	purchaseService *service.PurchaseService,
	gatewayClient razorpay.Client,
	validator middleware.TokenValidator,
	log *logger.Logger,
) *App {
	// Инициализируем обработчики HTTP
	purchaseHandler := handlers.NewPurchaseHandler(purchaseService, log)
	webhookHandler := handlers.NewWebhookHandler(purchaseService, gatewayClient, log)

	// Инициализируем middleware аутентификации
	authMiddleware := middleware.NewJWTMiddleware(cfg, log, validator)

	// Инициализируем middleware логирования
	loggerMiddleware := middleware.RequestLogger(log)

	return &App{
		Config:           cfg,
		PurchaseService:  purchaseService,
		PurchaseHandler:  purchaseHandler,
		WebhookHandler:   webhookHandler,
		AuthMiddleware:   authMiddleware,
		LoggerMiddleware: loggerMiddleware,
		Logger:           log,
	}
}
