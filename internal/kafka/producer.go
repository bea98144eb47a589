package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"ms-booking/internal/config"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
)

type Producer struct {
	Writer *kafka.Writer
	Topics config.TopicConfig
	Logger *logger.Logger
}

// NewProducer creates a producer that routes each event to its topic.
func NewProducer(brokers []string, topics config.TopicConfig, log *logger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Balancer: &kafka.LeastBytes{},
	}
	return &Producer{Writer: writer, Topics: topics, Logger: log}
}

func (p *Producer) publish(topic, key string, payload any) error {
	msgBytes, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	p.Logger.LogKafka("PUBLISH", topic, fmt.Sprintf("key=%s payload=%s", key, string(msgBytes)))

	return p.Writer.WriteMessages(context.Background(),
		kafka.Message{
			Topic: topic,
			Key:   []byte(key),
			Value: msgBytes,
		},
	)
}

// PublishBookingCreated streams the booking creation event to Kafka
func (p *Producer) PublishBookingCreated(booking models.Booking) error {
	return p.publish(p.Topics.BookingCreated, booking.ID, booking)
}

// PublishStatusChanged streams a lifecycle transition to Kafka
func (p *Producer) PublishStatusChanged(booking models.Booking) error {
	return p.publish(p.Topics.BookingStatus, booking.ID, booking)
}

// PublishSettlementRequested streams a seller's payout request to Kafka
func (p *Producer) PublishSettlementRequested(booking models.Booking) error {
	return p.publish(p.Topics.SettlementRequested, booking.ID, booking)
}

// PublishBookingSettled streams the final payout figures to Kafka
func (p *Producer) PublishBookingSettled(booking models.Booking) error {
	return p.publish(p.Topics.BookingSettled, booking.ID, booking)
}

// PublishReconEntry streams a payment reconciliation record to Kafka so
// downstream finance tooling sees charge/record mismatches immediately.
func (p *Producer) PublishReconEntry(key string, entry any) error {
	return p.publish(p.Topics.PaymentRecon, key, entry)
}

// Close flushes and shuts down the writer.
func (p *Producer) Close() error {
	return p.Writer.Close()
}
