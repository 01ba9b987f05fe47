package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/resumeforge/payment-service/internal/domain"
	"github.com/resumeforge/payment-service/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// Constants for Kafka topics used by the payment service
const (
	TopicPurchaseCreated   = "purchase_created"
	TopicPurchaseCompleted = "purchase_completed"
)

// Producer определяет интерфейс для публикации сообщений в Kafka.
type Producer interface {
	// PublishPurchaseEvent отправляет событие, связанное с покупкой.
	// Ключ сообщения - ID покупки, чтобы события одной покупки
	// попадали в одну партицию и сохраняли порядок.
	PublishPurchaseEvent(ctx context.Context, topic string, purchase *domain.Purchase) error
	// Close закрывает соединение продюсера Kafka.
	Close() error
}

// kafkaProducer реализует интерфейс Producer, используя segmentio/kafka-go.
type kafkaProducer struct {
	writer *kafka.Writer
	log    *logger.Logger
}

// NewKafkaProducer создает и настраивает новый продюсер Kafka.
func NewKafkaProducer(brokers []string, log *logger.Logger) (Producer, error) {
	if len(brokers) == 0 {
		log.Errorw("Kafka brokers list is empty in config, cannot create producer")
		return nil, errors.New("kafka brokers are not configured")
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
	}

	log.Infow("Kafka producer initialized", "brokers", brokers)

	return &kafkaProducer{
		writer: writer,
		log:    log,
	}, nil
}

// PublishPurchaseEvent преобразует покупку в JSON и отправляет в указанный топик Kafka.
func (k *kafkaProducer) PublishPurchaseEvent(ctx context.Context, topic string, purchase *domain.Purchase) error {
	messageKey := []byte(purchase.ID.String())

	messageValue, err := json.Marshal(purchase)
	if err != nil {
		k.log.Errorw("Failed to marshal purchase data to JSON for Kafka", "error", err, "purchaseID", purchase.ID, "topic", topic)
		return fmt.Errorf("kafka: failed to marshal message data: %w", err)
	}

	message := kafka.Message{
		Topic: topic,
		Key:   messageKey,
		Value: messageValue,
		Time:  time.Now(),
	}

	// Таймаут на запись, чтобы избежать зависания
	writeCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	err = k.writer.WriteMessages(writeCtx, message)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			k.log.Errorw("Kafka write timeout exceeded", "error", err, "topic", topic, "purchaseID", purchase.ID)
			return fmt.Errorf("kafka: write timeout: %w", err)
		}
		k.log.Errorw("Failed to write message to Kafka", "error", err, "topic", topic, "purchaseID", purchase.ID)
		return fmt.Errorf("kafka: failed to write message: %w", err)
	}

	k.log.Infow("Successfully published message to Kafka", "topic", topic, "purchaseID", purchase.ID)
	return nil
}

// Close закрывает соединение Kafka Writer.
func (k *kafkaProducer) Close() error {
	k.log.Infow("Closing Kafka producer writer...")
	err := k.writer.Close()
	if err != nil {
		k.log.Errorw("Failed to close Kafka writer", "error", err)
		return fmt.Errorf("kafka: failed to close writer: %w", err)
	}
	k.log.Infow("Kafka producer writer closed successfully")
	return nil
}
