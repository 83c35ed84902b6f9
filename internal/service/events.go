package service

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type OrderItemEvent struct {
	StockRecordID uuid.UUID `json:"stock_record_id"`
	SKU           string    `json:"sku"`
	Quantity      int64     `json:"quantity"`
	PriceCents    int64     `json:"price_cents"`
	LineTotal     int64     `json:"line_total_cents"`
}

type OrderCreatedEvent struct {
	TenantID    uuid.UUID        `json:"tenant_id"`
	OrderID     uuid.UUID        `json:"order_id"`
	OrderNumber string           `json:"order_number"`
	CustomerID  uuid.UUID        `json:"customer_id"`
	Items       []OrderItemEvent `json:"items"`
	TotalCents  int64            `json:"total_cents"`
	Currency    string           `json:"currency"`
	CreatedAt   time.Time        `json:"created_at"`
}

type OrderCanceledEvent struct {
	TenantID   uuid.UUID `json:"tenant_id"`
	OrderID    uuid.UUID `json:"order_id"`
	Reason     string    `json:"reason,omitempty"`
	CanceledAt time.Time `json:"canceled_at"`
}

type OrderRefundedEvent struct {
	TenantID   uuid.UUID `json:"tenant_id"`
	OrderID    uuid.UUID `json:"order_id"`
	Reason     string    `json:"reason,omitempty"`
	RefundedAt time.Time `json:"refunded_at"`
}

type StockAdjustedEvent struct {
	TenantID      uuid.UUID `json:"tenant_id"`
	StockRecordID uuid.UUID `json:"stock_record_id"`
	PreviousQty   int64     `json:"previous_qty"`
	NewQty        int64     `json:"new_qty"`
	Reason        string    `json:"reason"`
	AdjustedAt    time.Time `json:"adjusted_at"`
}

type EventBus interface {
	PublishOrderCreated(ctx context.Context, e OrderCreatedEvent) error
	PublishOrderCanceled(ctx context.Context, e OrderCanceledEvent) error
	PublishOrderRefunded(ctx context.Context, e OrderRefundedEvent) error
	PublishStockAdjusted(ctx context.Context, e StockAdjustedEvent) error
}
