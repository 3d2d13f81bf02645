package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/trogers1052/trade-sync-service/internal/models"
)

// ReplicationEvent notifies the downstream copy-trade system about one newly
// persisted round-trip trade. It carries just enough to construct a scaled
// replica order; replication success is not this service's concern and a
// publish failure never rolls back persistence.
type ReplicationEvent struct {
	EventType string               `json:"event_type"`
	Source    string               `json:"source"`
	Timestamp string               `json:"timestamp"`
	Data      ReplicationEventData `json:"data"`
}

// ReplicationEventData is the replica-order payload.
type ReplicationEventData struct {
	AccountID string `json:"account_id"`
	Symbol    string `json:"symbol"`
	Side      string `json:"side"`
	Quantity  string `json:"quantity"`
	Price     string `json:"price"`
}

// SyncCompletedEvent summarizes one finished sync run.
type SyncCompletedEvent struct {
	EventType string                 `json:"event_type"`
	Source    string                 `json:"source"`
	Timestamp string                 `json:"timestamp"`
	Data      SyncCompletedEventData `json:"data"`
}

// SyncCompletedEventData holds the run counters.
type SyncCompletedEventData struct {
	ConnectionID      int    `json:"connection_id"`
	AccountID         string `json:"account_id"`
	FillsFetched      int    `json:"fills_fetched"`
	TradesInserted    int    `json:"trades_inserted"`
	DuplicatesSkipped int    `json:"duplicates_skipped"`
}

// Producer publishes trade and sync events to Kafka.
type Producer struct {
	writer *kafka.Writer
}

// NewProducer creates a Kafka producer for the given topic.
func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}
	return &Producer{writer: writer}
}

// PublishTradeClosed emits one replication event for a newly inserted trade.
func (p *Producer) PublishTradeClosed(ctx context.Context, trade *models.Trade) error {
	event := ReplicationEvent{
		EventType: "TRADE_CLOSED",
		Source:    "trade-sync-service",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Data: ReplicationEventData{
			AccountID: trade.AccountID,
			Symbol:    trade.Symbol,
			Side:      string(trade.ExitSide()),
			Quantity:  trade.Quantity.String(),
			Price:     trade.AvgExitPrice.String(),
		},
	}
	return p.publish(ctx, trade.AccountID, event)
}

// PublishSyncCompleted emits a summary event after a successful run.
func (p *Producer) PublishSyncCompleted(ctx context.Context, data SyncCompletedEventData) error {
	event := SyncCompletedEvent{
		EventType: "SYNC_COMPLETED",
		Source:    "trade-sync-service",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Data:      data,
	}
	return p.publish(ctx, data.AccountID, event)
}

func (p *Producer) publish(ctx context.Context, key string, event interface{}) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

// Close closes the Kafka writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
