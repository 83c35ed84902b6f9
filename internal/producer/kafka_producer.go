package producer

import (
	"context"
	"encoding/json"
	"time"

	"commerce-core/internal/service"

	"github.com/segmentio/kafka-go"
)

type EventProducer struct {
	writer *kafka.Writer
}

func NewEventProducer(brokers []string, topic string) *EventProducer {
	return &EventProducer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireAll,
		},
	}
}

type envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

func (p *EventProducer) publish(ctx context.Context, key, eventType string, payload any) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	value, err := json.Marshal(envelope{Type: eventType, Payload: payload})
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: value,
	})
}

func (p *EventProducer) PublishOrderCreated(ctx context.Context, e service.OrderCreatedEvent) error {
	return p.publish(ctx, e.OrderID.String(), "order.created", e)
}

func (p *EventProducer) PublishOrderCanceled(ctx context.Context, e service.OrderCanceledEvent) error {
	return p.publish(ctx, e.OrderID.String(), "order.canceled", e)
}

func (p *EventProducer) PublishOrderRefunded(ctx context.Context, e service.OrderRefundedEvent) error {
	return p.publish(ctx, e.OrderID.String(), "order.refunded", e)
}

func (p *EventProducer) PublishStockAdjusted(ctx context.Context, e service.StockAdjustedEvent) error {
	return p.publish(ctx, e.StockRecordID.String(), "stock.adjusted", e)
}

func (p *EventProducer) Close() error {
	return p.writer.Close()
}
