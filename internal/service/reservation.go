package service

import (
	"context"
	"time"

	"commerce-core/internal/models"

	"github.com/google/uuid"
)

type ReserveItem struct {
	StockRecordID uuid.UUID
	Quantity      int64
}

type CreateReservationsInput struct {
	Items      []ReserveItem
	CartID     *uuid.UUID
	TTLMinutes int
}

type ReserveResult struct {
	StockRecordID uuid.UUID  `json:"stock_record_id"`
	ReservationID *uuid.UUID `json:"reservation_id,omitempty"`
	OK            bool       `json:"ok"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	Error         string     `json:"error,omitempty"`
}

type ReserveReport struct {
	Total     int              `json:"total"`
	Succeeded int              `json:"succeeded"`
	Failed    int              `json:"failed"`
	Status    BulkAdjustStatus `json:"status"`
	Results   []ReserveResult  `json:"results"`
}

// ReservationPolicy задаёт пределы TTL, приходит из конфига
type ReservationPolicy struct {
	DefaultTTL   time.Duration
	MaxTTL       time.Duration
	MaxExtension time.Duration
}

type ReservationService interface {
	CreateReservations(ctx context.Context, in CreateReservationsInput) (*ReserveReport, error)
	GetReservation(ctx context.Context, id uuid.UUID) (*models.Reservation, error)
	// ReleaseReservation идемпотентен: true при первом освобождении, false если уже не ACTIVE
	ReleaseReservation(ctx context.Context, id uuid.UUID) (bool, error)
	ReleaseCartReservations(ctx context.Context, cartID uuid.UUID) (int64, error)
	ExtendReservation(ctx context.Context, id uuid.UUID, minutes int) (*models.Reservation, error)
	// ConsumeCartReservations списывает остатки по всем живым резервам корзины
	ConsumeCartReservations(ctx context.Context, cartID uuid.UUID) (int64, error)
}
