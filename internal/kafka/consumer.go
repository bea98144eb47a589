package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/segmentio/kafka-go"

	"ms-booking/internal/models"
)

type Consumer struct {
	reader *kafka.Reader
}

// NewConsumer creates a new Kafka consumer for the given topic and group
func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{reader: reader}
}

// Start begins consuming booking events from Kafka
func (c *Consumer) Start(handler func(booking models.Booking)) {
	fmt.Println("🔄 Kafka consumer started...")

	for {
		msg, err := c.reader.ReadMessage(context.Background())
		if err != nil {
			log.Printf("❌ Error reading message: %v\n", err)
			continue
		}

		var booking models.Booking
		if err := json.Unmarshal(msg.Value, &booking); err != nil {
			log.Printf("⚠️ Failed to unmarshal message: %v\n", err)
			continue
		}

		log.Printf("📩 Received booking event: ID=%s", booking.ID)
		handler(booking)
	}
}

// Close gracefully shuts down the Kafka reader
func (c *Consumer) Close() error {
	return c.reader.Close()
}
