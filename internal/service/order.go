package service

import (
	"context"
	"time"

	"commerce-core/internal/models"

	"github.com/google/uuid"
)

type CreateOrderItem struct {
	StockRecordID uuid.UUID
	Quantity      int64
	// Цена, которую видел покупатель; при расхождении с текущей заказ отклоняется
	ExpectedUnitPriceCents int64
}

type CreateOrderInput struct {
	CustomerID     uuid.UUID
	Items          []CreateOrderItem
	CartID         *uuid.UUID
	IdempotencyKey *string

	CurrencyCode  string
	TaxCents      int64
	ShippingCents int64
	DiscountCents int64

	// Суммы, которые клиент показал покупателю; ноль означает «не передано».
	// Ненулевые значения сверяются с пересчитанными до создания заказа.
	SubtotalCents int64
	TotalCents    int64

	ShippingAddress models.Address
	BillingAddress  models.Address
	PaymentMethod   string
}

type OrderListFilter struct {
	CustomerID *uuid.UUID
	Status     *models.OrderStatus
	From       *time.Time
	To         *time.Time
	Limit      int
	Offset     int
}

type OrderService interface {
	CreateOrder(ctx context.Context, in CreateOrderInput) (*models.Order, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	ListOrders(ctx context.Context, f OrderListFilter) ([]models.Order, int64, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, to models.OrderStatus) (*models.Order, error)
	CancelOrder(ctx context.Context, id uuid.UUID, reason *string) (*models.Order, error)
	RefundOrder(ctx context.Context, id uuid.UUID, reason *string) (*models.Order, error)
}
