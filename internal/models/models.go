package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type StockStatus string

const (
	StockStatusInStock    StockStatus = "IN_STOCK"
	StockStatusLowStock   StockStatus = "LOW_STOCK"
	StockStatusOutOfStock StockStatus = "OUT_OF_STOCK"
)

// ComputeStockStatus выводит статус из количества; статус никогда не живёт отдельно от quantity
func ComputeStockStatus(quantity, lowStockThreshold int64) StockStatus {
	switch {
	case quantity <= 0:
		return StockStatusOutOfStock
	case quantity <= lowStockThreshold:
		return StockStatusLowStock
	default:
		return StockStatusInStock
	}
}

type StockRecord struct {
	ID        uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	TenantID  uuid.UUID  `gorm:"type:uuid;not null;index;uniqueIndex:ux_stock_tenant_product_variant"`
	ProductID uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:ux_stock_tenant_product_variant"`
	VariantID *uuid.UUID `gorm:"type:uuid;uniqueIndex:ux_stock_tenant_product_variant"`

	SKU        string `gorm:"type:text;not null;index"`
	Name       string `gorm:"type:text;not null"`
	PriceCents int64  `gorm:"not null;default:0"`
	IsActive   bool   `gorm:"not null;default:true"`

	Quantity          int64       `gorm:"not null;default:0"`
	LowStockThreshold int64       `gorm:"not null;default:0"`
	TrackInventory    bool        `gorm:"not null;default:true"`
	Status            StockStatus `gorm:"type:text;not null;default:'OUT_OF_STOCK';index"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
	UpdatedAt time.Time `gorm:"not null;default:now()"`
}

func (StockRecord) TableName() string { return "stock_records" }

type LedgerReason string

const (
	ReasonRestock          LedgerReason = "restock"
	ReasonSale             LedgerReason = "sale"
	ReasonReturn           LedgerReason = "return"
	ReasonDamage           LedgerReason = "damage"
	ReasonManualAdjustment LedgerReason = "manual_adjustment"
	ReasonOrderCreated     LedgerReason = "order_created"
	ReasonOrderCanceled    LedgerReason = "order_canceled"
	ReasonOrderRefunded    LedgerReason = "order_refunded"
	ReasonReservationUsed  LedgerReason = "reservation_consumed"
)

var ledgerReasons = map[LedgerReason]struct{}{
	ReasonRestock:          {},
	ReasonSale:             {},
	ReasonReturn:           {},
	ReasonDamage:           {},
	ReasonManualAdjustment: {},
	ReasonOrderCreated:     {},
	ReasonOrderCanceled:    {},
	ReasonOrderRefunded:    {},
	ReasonReservationUsed:  {},
}

func (r LedgerReason) Valid() bool {
	_, ok := ledgerReasons[r]
	return ok
}

// StockLedgerEntry — append-only; записи никогда не обновляются и не удаляются
type StockLedgerEntry struct {
	ID            uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Seq           int64     `gorm:"autoIncrement;uniqueIndex"`
	TenantID      uuid.UUID `gorm:"type:uuid;not null;index"`
	StockRecordID uuid.UUID `gorm:"type:uuid;not null;index"`

	PreviousQty int64        `gorm:"not null"`
	NewQty      int64        `gorm:"not null"`
	ChangeQty   int64        `gorm:"not null"`
	Reason      LedgerReason `gorm:"type:text;not null;index"`

	OrderID  *uuid.UUID     `gorm:"type:uuid;index"`
	ActorID  *uuid.UUID     `gorm:"type:uuid"`
	Note     string         `gorm:"type:text"`
	Metadata datatypes.JSON `gorm:"type:jsonb"`

	CreatedAt time.Time `gorm:"not null;default:now();index"`
}

func (StockLedgerEntry) TableName() string { return "stock_ledger_entries" }

type ReservationStatus string

const (
	ReservationActive   ReservationStatus = "ACTIVE"
	ReservationReleased ReservationStatus = "RELEASED"
	ReservationExpired  ReservationStatus = "EXPIRED"
	ReservationConsumed ReservationStatus = "CONSUMED"
)

type Reservation struct {
	ID            uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	TenantID      uuid.UUID `gorm:"type:uuid;not null;index"`
	StockRecordID uuid.UUID `gorm:"type:uuid;not null;index"`

	Quantity int64             `gorm:"not null"`
	CartID   *uuid.UUID        `gorm:"type:uuid;index"`
	Status   ReservationStatus `gorm:"type:text;not null;default:'ACTIVE';index"`

	ExpiresAt time.Time `gorm:"not null;index"`
	Extended  bool      `gorm:"not null;default:false"`

	CreatedAt  time.Time  `gorm:"not null;default:now()"`
	ReleasedAt *time.Time `gorm:"type:timestamptz"`
}

func (Reservation) TableName() string { return "reservations" }

type OrderStatus string

const (
	OrderStatusPending       OrderStatus = "PENDING"
	OrderStatusPaid          OrderStatus = "PAID"
	OrderStatusPaymentFailed OrderStatus = "PAYMENT_FAILED"
	OrderStatusProcessing    OrderStatus = "PROCESSING"
	OrderStatusShipped       OrderStatus = "SHIPPED"
	OrderStatusDelivered     OrderStatus = "DELIVERED"
	OrderStatusCanceled      OrderStatus = "CANCELED"
	OrderStatusRefunded      OrderStatus = "REFUNDED"
)

type OrderPaymentStatus string

const (
	PaymentStatusUnpaid            OrderPaymentStatus = "UNPAID"
	PaymentStatusPaid              OrderPaymentStatus = "PAID"
	PaymentStatusPartiallyRefunded OrderPaymentStatus = "PARTIALLY_REFUNDED"
	PaymentStatusRefunded          OrderPaymentStatus = "REFUNDED"
)

// Address — структурированный снапшот адреса, встраивается в заказ с префиксом колонок
type Address struct {
	Name        string `gorm:"type:text"`
	Line1       string `gorm:"type:text"`
	Line2       string `gorm:"type:text"`
	City        string `gorm:"type:text"`
	Region      string `gorm:"type:text"`
	PostalCode  string `gorm:"type:text"`
	CountryCode string `gorm:"type:char(2)"`
}

type Order struct {
	ID          uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	TenantID    uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:ux_orders_tenant_number"`
	OrderNumber string    `gorm:"type:text;not null;uniqueIndex:ux_orders_tenant_number"`
	CustomerID  uuid.UUID `gorm:"type:uuid;not null;index"`

	Status        OrderStatus        `gorm:"type:text;not null;default:'PENDING';index"`
	PaymentStatus OrderPaymentStatus `gorm:"type:text;not null;default:'UNPAID'"`

	SubtotalCents int64  `gorm:"not null;default:0"`
	TaxCents      int64  `gorm:"not null;default:0"`
	ShippingCents int64  `gorm:"not null;default:0"`
	DiscountCents int64  `gorm:"not null;default:0"`
	TotalCents    int64  `gorm:"not null;default:0"`
	CurrencyCode  string `gorm:"type:char(3);not null"`

	ShippingAddress Address `gorm:"embedded;embeddedPrefix:shipping_"`
	BillingAddress  Address `gorm:"embedded;embeddedPrefix:billing_"`

	PaymentMethod  string  `gorm:"type:text;not null"`
	IdempotencyKey *string `gorm:"type:text"`
	CancelReason   *string `gorm:"type:text"`

	CreatedAt   time.Time  `gorm:"not null;default:now();index"`
	UpdatedAt   time.Time  `gorm:"not null;default:now()"`
	FulfilledAt *time.Time `gorm:"type:timestamptz"`
	CanceledAt  *time.Time `gorm:"type:timestamptz"`

	Items []OrderItem `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
}

func (Order) TableName() string { return "orders" }

// OrderItem — снапшот цены на момент создания заказа, после создания не мутируется
type OrderItem struct {
	ID            uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID       uuid.UUID  `gorm:"type:uuid;not null;index;uniqueIndex:ux_order_items_order_stock"`
	StockRecordID uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:ux_order_items_order_stock"`
	ProductID     uuid.UUID  `gorm:"type:uuid;not null"`
	VariantID     *uuid.UUID `gorm:"type:uuid"`

	SKU            string `gorm:"type:text;not null"`
	Name           string `gorm:"type:text;not null"`
	Quantity       int64  `gorm:"not null"`
	UnitPriceCents int64  `gorm:"not null"`
	LineTotalCents int64  `gorm:"not null"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
}

func (OrderItem) TableName() string { return "order_items" }

// Customer хранит агрегаты по заказам, обновляется в транзакции создания заказа
type Customer struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID uuid.UUID `gorm:"type:uuid;not null;index"`

	OrdersCount        int64      `gorm:"not null;default:0"`
	LifetimeSpendCents int64      `gorm:"not null;default:0"`
	AvgOrderValueCents int64      `gorm:"not null;default:0"`
	LastOrderAt        *time.Time `gorm:"type:timestamptz"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
	UpdatedAt time.Time `gorm:"not null;default:now()"`
}

func (Customer) TableName() string { return "customers" }

type PaymentAttemptStatus string

const (
	PaymentAttemptInitiated   PaymentAttemptStatus = "INITIATED"
	PaymentAttemptAuthorizing PaymentAttemptStatus = "AUTHORIZING"
	PaymentAttemptAuthorized  PaymentAttemptStatus = "AUTHORIZED"
	PaymentAttemptCaptured    PaymentAttemptStatus = "CAPTURED"
	PaymentAttemptFailed      PaymentAttemptStatus = "FAILED"
	PaymentAttemptCanceled    PaymentAttemptStatus = "CANCELED"
)

type PaymentAttempt struct {
	ID       uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	TenantID uuid.UUID `gorm:"type:uuid;not null;index"`
	OrderID  uuid.UUID `gorm:"type:uuid;not null;index"`

	Provider string               `gorm:"type:text;not null"`
	Status   PaymentAttemptStatus `gorm:"type:text;not null;default:'INITIATED';index"`

	AmountCents  int64  `gorm:"not null"`
	CurrencyCode string `gorm:"type:char(3);not null"`

	IdempotencyKey *string `gorm:"type:text"`

	AttemptCount     int32      `gorm:"not null;default:0"`
	LastErrorCode    *string    `gorm:"type:text"`
	LastErrorMessage *string    `gorm:"type:text"`
	NextRetryAt      *time.Time `gorm:"type:timestamptz"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
	UpdatedAt time.Time `gorm:"not null;default:now()"`

	Transactions []PaymentTransaction `gorm:"foreignKey:AttemptID;constraint:OnDelete:CASCADE"`
}

func (PaymentAttempt) TableName() string { return "payment_attempts" }

type PaymentTransactionType string

const (
	PaymentTxAuth    PaymentTransactionType = "AUTH"
	PaymentTxCapture PaymentTransactionType = "CAPTURE"
	PaymentTxRefund  PaymentTransactionType = "REFUND"
	PaymentTxVoid    PaymentTransactionType = "VOID"
)

// PaymentTransaction — упорядоченная, неизменяемая запись шага платежа
type PaymentTransaction struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Seq       int64     `gorm:"autoIncrement;uniqueIndex"`
	AttemptID uuid.UUID `gorm:"type:uuid;not null;index"`

	Type        PaymentTransactionType `gorm:"type:text;not null"`
	AmountCents int64                  `gorm:"not null"`
	ProviderRef string                 `gorm:"type:text"`
	Metadata    datatypes.JSON         `gorm:"type:jsonb"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
}

func (PaymentTransaction) TableName() string { return "payment_transactions" }
