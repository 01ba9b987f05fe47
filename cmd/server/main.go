package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/resumeforge/payment-service/internal/api/rest"
	"github.com/resumeforge/payment-service/internal/app"
	"github.com/resumeforge/payment-service/internal/config"
	"github.com/resumeforge/payment-service/internal/gateway/razorpay"
	"github.com/resumeforge/payment-service/internal/kafka"
	"github.com/resumeforge/payment-service/internal/metrics"
	"github.com/resumeforge/payment-service/internal/middleware"
	"github.com/resumeforge/payment-service/internal/repository"
	"github.com/resumeforge/payment-service/internal/repository/postgres"
	"github.com/resumeforge/payment-service/internal/service"
	"github.com/resumeforge/payment-service/pkg/logger"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Инициализируем логгер
	log := initLogger()

	log.Infow("Payment service starting up...")

	// Загружаем конфигурацию
	cfg, err := config.LoadConfig(".env")
	if err != nil {
		log.Fatalw("Failed to load configuration", "error", err)
	}
	// Проверка наличия секрета JWT
	if cfg.Auth.JWTSecret == "" {
		log.Warnw("JWT Secret is not set!")
	}
	// Проверка наличия ключей Razorpay
	if cfg.Razorpay.KeyID == "" || cfg.Razorpay.KeySecret == "" {
		log.Warnw("Razorpay API keys are not set!")
	}

	// Устанавливаем режим Gin в зависимости от окружения
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Подключаемся к базе данных
	pool, err := postgres.NewConnection(ctx, cfg.Database.DSN, log)
	if err != nil {
		log.Fatalw("Failed to connect to database", "error", err)
	}
	defer pool.Close()
	log.Infow("Database connection established")

	// Инициализируем Redis кеш
	redisCache, err := repository.NewRedisCacheRepository(
		cfg.Redis.Addr,
		cfg.Redis.Password,
		cfg.Redis.DB,
		log,
	)
	if err != nil {
		// Не фатально, но предупреждаем
		log.Warnw("Failed to initialize Redis cache, continuing without caching", "error", err)
	} else {
		log.Infow("Redis cache initialized successfully")
		defer func() {
			if err := redisCache.Close(); err != nil {
				log.Errorw("Error closing Redis connection", "error", err)
			}
		}()
	}

	// Инициализируем базовый репозиторий
	baseRepo := postgres.NewPostgresPurchaseRepository(pool, log)

	// Создаем репозиторий с кешированием, если Redis доступен
	var purchaseRepo repository.PurchaseRepository
	if redisCache != nil {
		purchaseRepo = repository.NewCachedPurchaseRepository(baseRepo, redisCache, log)
		log.Infow("Using cached purchase repository")
	} else {
		purchaseRepo = baseRepo
		log.Infow("Using non-cached purchase repository")
	}

	// Инициализируем клиент Razorpay
	gatewayClient := razorpay.NewClient(cfg.Razorpay.KeyID, cfg.Razorpay.KeySecret, cfg.Razorpay.WebhookSecret, log)

	// Инициализируем Kafka Producer
	kafkaProducer, err := kafka.NewKafkaProducer(cfg.Kafka.Brokers, log)
	if err != nil {
		log.Errorw("Failed to initialize Kafka producer, continuing without event publishing", "error", err)
		kafkaProducer = nil
	} else {
		log.Infow("Kafka producer initialized")
		defer func() {
			if err := kafkaProducer.Close(); err != nil {
				log.Errorw("Error closing Kafka producer", "error", err)
			}
		}()
	}

	// Инициализируем метрики
	registry := prometheus.NewRegistry()
	purchaseMetrics := metrics.NewPurchaseMetrics(registry, log)

	// Инициализируем service layer
	purchaseService := service.NewPurchaseService(purchaseRepo, gatewayClient, kafkaProducer, purchaseMetrics, log)

	// Создаем валидатор токенов
	validator := &middleware.DefaultTokenValidator{
		Secret: []byte(cfg.Auth.JWTSecret),
	}

	// Инициализируем application
	application := app.NewApp(cfg, purchaseService, gatewayClient, validator, log)

	// Настраиваем роутер и сервер
	router := gin.New()
	rest.SetupRoutes(router, application, registry, log)

	server := rest.NewServer(router, cfg, log)

	// Запускаем HTTP сервер в горутине
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("Failed to start HTTP server", "error", err)
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("Shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Server forced to shutdown", "error", err)
	}

	log.Infow("Payment service stopped")
}

func initLogger() *logger.Logger {
	level := logger.INFO
	if os.Getenv("LOG_LEVEL") == "debug" {
		level = logger.DEBUG
	}
	return logger.New(level)
}
