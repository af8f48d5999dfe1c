package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Settlement event types
const (
	OrderPaid           = "order.paid"
	OrderPaymentFailed  = "order.payment_failed"
	OrderRefunded       = "order.refunded"
	OrderStatusChanged  = "order.status_changed"
	PayoutCreated       = "payout.created"
	PayoutStatusChanged = "payout.status_changed"
	ReturnFiled         = "return.filed"
	ReturnDecided       = "return.decided"
)

// Event is one settlement fact published after commit
type Event struct {
	EventID     string      `json:"event_id"`
	Type        string      `json:"type"`
	AggregateID string      `json:"aggregate_id"`
	Data        interface{} `json:"data"`
	Timestamp   time.Time   `json:"timestamp"`
}

// NewEvent stamps a fresh event id and timestamp
func NewEvent(eventType string, aggregateID uuid.UUID, data interface{}) Event {
	return Event{
		EventID:     uuid.New().String(),
		Type:        eventType,
		AggregateID: aggregateID.String(),
		Data:        data,
		Timestamp:   time.Now().UTC(),
	}
}

// Publisher delivers settlement events. Delivery is best-effort; callers log
// and move on when it fails.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

type KafkaPublisher struct {
	writer *kafka.Writer
	logger *zap.Logger
}

func NewKafkaPublisher(brokers []string, topic string, logger *zap.Logger) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}

	return &KafkaPublisher{
		writer: writer,
		logger: logger,
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	eventBytes, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("Failed to marshal settlement event", zap.Error(err))
		return err
	}

	// Keyed by aggregate so one order's events stay in one partition
	msg := kafka.Message{
		Key:   []byte(event.AggregateID),
		Value: eventBytes,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to publish settlement event",
			zap.String("event_id", event.EventID),
			zap.String("type", event.Type),
			zap.Error(err))
		return err
	}

	p.logger.Debug("Settlement event published",
		zap.String("event_id", event.EventID),
		zap.String("type", event.Type),
		zap.String("aggregate_id", event.AggregateID))
	return nil
}

func (p *KafkaPublisher) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}

// NopPublisher drops every event
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

func (NopPublisher) Close() error { return nil }

// Recorder keeps published events in memory
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *Recorder) Close() error { return nil }

// Types returns the recorded event types in publish order
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]string, len(r.events))
	for i, e := range r.events {
		types[i] = e.Type
	}
	return types
}
