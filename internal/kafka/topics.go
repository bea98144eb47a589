package kafka

import (
	"log"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"ms-booking/internal/config"
)

// EnsureTopicsExist creates the booking event topics if they don't
// already exist, so a fresh broker works without manual setup.
func EnsureTopicsExist(brokers []string, topics config.TopicConfig) error {
	conn, err := kafka.Dial("tcp", brokers[0])
	if err != nil {
		return err
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return err
	}
	controllerConn, err := kafka.Dial("tcp", controller.Host)
	if err != nil {
		return err
	}
	defer controllerConn.Close()

	for _, topic := range []string{
		topics.BookingCreated,
		topics.BookingStatus,
		topics.SettlementRequested,
		topics.BookingSettled,
		topics.PaymentRecon,
	} {
		topicConfigs := []kafka.TopicConfig{
			{
				Topic:             topic,
				NumPartitions:     1,
				ReplicationFactor: 1,
			},
		}

		err = controllerConn.CreateTopics(topicConfigs...)
		if err != nil {
			if strings.Contains(err.Error(), "already exists") {
				log.Printf("Topic %s already exists", topic)
				continue
			}
			log.Printf("Error creating topic %s: %v", topic, err)
			// Continue trying to create other topics even if one fails
		} else {
			log.Printf("Created topic: %s", topic)
		}
	}

	// Wait a moment for topics to be fully created
	time.Sleep(1 * time.Second)
	return nil
}
