package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/segmentio/kafka-go"
)

// SyncTrigger starts a sync run for one broker connection.
type SyncTrigger interface {
	TriggerSync(ctx context.Context, connectionID int) error
}

// SyncEvent represents a sync request event from Kafka
type SyncEvent struct {
	EventType string        `json:"event_type"`
	Source    string        `json:"source"`
	Timestamp string        `json:"timestamp"`
	Data      SyncEventData `json:"data"`
}

// SyncEventData identifies the connection to synchronize.
type SyncEventData struct {
	ConnectionID int    `json:"connection_id"`
	AccountID    string `json:"account_id,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

// SyncConsumer handles consuming sync request events from Kafka
type SyncConsumer struct {
	reader  *kafka.Reader
	trigger SyncTrigger
}

// NewSyncConsumer creates a new Kafka consumer for sync request events
func NewSyncConsumer(brokers []string, topic, groupID string, trigger SyncTrigger) *SyncConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID + "-sync",
		MinBytes:       10e3, // 10KB
		MaxBytes:       10e6, // 10MB
		MaxWait:        1 * time.Second,
		StartOffset:    kafka.LastOffset,
		CommitInterval: time.Second,
	})

	return &SyncConsumer{
		reader:  reader,
		trigger: trigger,
	}
}

// Start begins consuming messages from Kafka
func (c *SyncConsumer) Start(ctx context.Context) error {
	log.Printf("Starting sync consumer for topic: %s", c.reader.Config().Topic)

	for {
		select {
		case <-ctx.Done():
			log.Println("Sync consumer shutting down...")
			return c.reader.Close()
		default:
			msg, err := c.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil // Context cancelled, normal shutdown
				}
				log.Printf("Error reading sync message: %v", err)
				continue
			}

			if err := c.processMessage(ctx, msg); err != nil {
				log.Printf("Error processing sync message: %v", err)
				// Continue processing other messages
			}
		}
	}
}

// processMessage handles a single Kafka message
func (c *SyncConsumer) processMessage(ctx context.Context, msg kafka.Message) error {
	var event SyncEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("failed to unmarshal sync event: %w", err)
	}

	if event.EventType != "SYNC_REQUESTED" {
		log.Printf("Ignoring event type: %s", event.EventType)
		return nil
	}

	if event.Data.ConnectionID <= 0 {
		return fmt.Errorf("sync event missing connection_id")
	}

	log.Printf("Sync requested for connection %d (reason: %s)",
		event.Data.ConnectionID, event.Data.Reason)

	if err := c.trigger.TriggerSync(ctx, event.Data.ConnectionID); err != nil {
		return fmt.Errorf("failed to trigger sync for connection %d: %w", event.Data.ConnectionID, err)
	}
	return nil
}

// Close closes the Kafka consumer
func (c *SyncConsumer) Close() error {
	return c.reader.Close()
}
