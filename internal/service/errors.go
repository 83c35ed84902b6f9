package service

import (
	"errors"
	"fmt"

	"commerce-core/internal/models"

	"github.com/google/uuid"
)

var (
	ErrUnauthorized = errors.New("unauthorized")

	ErrStockNotFound       = errors.New("stock record not found")
	ErrStockInactive       = errors.New("stock record inactive")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrInvalidQuantity     = errors.New("quantity must be > 0")
	ErrInvalidReason       = errors.New("unknown adjustment reason")
	ErrBulkTooLarge        = errors.New("bulk adjustment exceeds max batch size")
	ErrLedgerInconsistency = errors.New("ledger replay does not match stored quantity")

	ErrReservationNotFound    = errors.New("reservation not found")
	ErrReservationNotActive   = errors.New("reservation is not active")
	ErrReservationExpired     = errors.New("reservation expired")
	ErrReservationExtended    = errors.New("reservation already extended")
	ErrReservationBatchLimit  = errors.New("reservation batch exceeds max size")
	ErrCartReservationMissing = errors.New("no active reservations for cart")

	ErrOrderNotFound      = errors.New("order not found")
	ErrEmptyItems         = errors.New("empty items")
	ErrCurrencyMismatch   = errors.New("currency mismatch")
	ErrPriceMismatch      = errors.New("price changed since cart was built")
	ErrTotalsMismatch     = errors.New("submitted totals do not match recomputed totals")
	ErrOrderNumberRetries = errors.New("could not generate unique order number")
	ErrInvalidTransition  = errors.New("invalid status transition")

	ErrPaymentNotFound      = errors.New("payment attempt not found")
	ErrPaymentAmountInvalid = errors.New("payment amount must be > 0")
	ErrRefundExceedsCapture = errors.New("refund exceeds captured amount")
	ErrAttemptTerminal      = errors.New("payment attempt is in terminal state")
)

// InsufficientStockError несёт детали для per-item отчёта BulkAdjust / резервов
type InsufficientStockError struct {
	StockRecordID uuid.UUID
	Requested     int64
	Available     int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock: record %s requested %d available %d",
		e.StockRecordID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

type InvalidTransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid %s transition: %s -> %s", e.Entity, e.From, e.To)
}

func (e *InvalidTransitionError) Is(target error) bool { return target == ErrInvalidTransition }

type PriceMismatchError struct {
	StockRecordID uuid.UUID
	Expected      int64
	Actual        int64
}

func (e *PriceMismatchError) Error() string {
	return fmt.Sprintf("price mismatch: record %s expected %d actual %d",
		e.StockRecordID, e.Expected, e.Actual)
}

func (e *PriceMismatchError) Is(target error) bool { return target == ErrPriceMismatch }

func newInsufficientStock(rec *models.StockRecord, requested, available int64) error {
	return &InsufficientStockError{StockRecordID: rec.ID, Requested: requested, Available: available}
}

type ErrorKind int

const (
	KindValidation ErrorKind = iota
	KindNotFound
	KindConflict
	KindInternal
)

// Kind относит ошибку сервиса к одному из четырёх классов для вызывающего слоя
func Kind(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrInvalidQuantity),
		errors.Is(err, ErrInvalidReason),
		errors.Is(err, ErrEmptyItems),
		errors.Is(err, ErrBulkTooLarge),
		errors.Is(err, ErrReservationBatchLimit),
		errors.Is(err, ErrPaymentAmountInvalid),
		errors.Is(err, ErrCurrencyMismatch),
		errors.Is(err, ErrTotalsMismatch),
		errors.Is(err, ErrUnauthorized):
		return KindValidation
	case errors.Is(err, ErrStockNotFound),
		errors.Is(err, ErrReservationNotFound),
		errors.Is(err, ErrOrderNotFound),
		errors.Is(err, ErrPaymentNotFound),
		errors.Is(err, ErrCartReservationMissing):
		return KindNotFound
	case errors.Is(err, ErrInsufficientStock),
		errors.Is(err, ErrStockInactive),
		errors.Is(err, ErrReservationNotActive),
		errors.Is(err, ErrReservationExpired),
		errors.Is(err, ErrReservationExtended),
		errors.Is(err, ErrPriceMismatch),
		errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrRefundExceedsCapture),
		errors.Is(err, ErrAttemptTerminal):
		return KindConflict
	default:
		return KindInternal
	}
}
