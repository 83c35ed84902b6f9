package service

import (
	"context"
	"errors"
	"time"

	"commerce-core/internal/models"
	"commerce-core/internal/repository"

	"github.com/google/uuid"
)

const maxReservationBatch = 50

type reservationService struct {
	repo   *repository.Repository
	cache  StockCache
	policy ReservationPolicy
	now    func() time.Time
}

func NewReservationService(repo *repository.Repository, cache StockCache, policy ReservationPolicy) ReservationService {
	if policy.DefaultTTL <= 0 {
		policy.DefaultTTL = 15 * time.Minute
	}
	if policy.MaxTTL <= 0 {
		policy.MaxTTL = 60 * time.Minute
	}
	if policy.MaxExtension <= 0 {
		policy.MaxExtension = 15 * time.Minute
	}
	return &reservationService{
		repo:   repo,
		cache:  cache,
		policy: policy,
		now:    time.Now,
	}
}

func (s *reservationService) ttl(minutes int) time.Duration {
	if minutes <= 0 {
		return s.policy.DefaultTTL
	}
	d := time.Duration(minutes) * time.Minute
	if d > s.policy.MaxTTL {
		return s.policy.MaxTTL
	}
	return d
}

// reserveOne держит строку остатка под замком, пока проверяет доступность.
// Доступность = on-hand минус живые резервы; протухшие ACTIVE не считаются.
func (s *reservationService) reserveOne(ctx context.Context, tx *repository.Repository, tenantID uuid.UUID, it ReserveItem, cartID *uuid.UUID, expiresAt, now time.Time) (*models.Reservation, error) {
	if it.Quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	rec, err := tx.Stocks.GetForUpdate(ctx, tenantID, it.StockRecordID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrStockNotFound
	}
	if !rec.IsActive {
		return nil, ErrStockInactive
	}

	if rec.TrackInventory {
		reserved, err := tx.Reservations.SumActiveByStockRecord(ctx, tenantID, rec.ID, now)
		if err != nil {
			return nil, err
		}
		available := rec.Quantity - reserved
		if it.Quantity > available {
			return nil, newInsufficientStock(rec, it.Quantity, available)
		}
	}

	res := &models.Reservation{
		TenantID:      tenantID,
		StockRecordID: rec.ID,
		Quantity:      it.Quantity,
		CartID:        cartID,
		Status:        models.ReservationActive,
		ExpiresAt:     expiresAt,
		CreatedAt:     now,
	}
	if err := tx.Reservations.Create(ctx, res); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *reservationService) CreateReservations(ctx context.Context, in CreateReservationsInput) (*ReserveReport, error) {
	tenantID, err := requireTenant(ctx)
	if err != nil {
		return nil, err
	}
	if len(in.Items) == 0 {
		return nil, ErrEmptyItems
	}
	if len(in.Items) > maxReservationBatch {
		return nil, ErrReservationBatchLimit
	}

	report := &ReserveReport{
		Total:   len(in.Items),
		Results: make([]ReserveResult, 0, len(in.Items)),
	}

	for _, it := range in.Items {
		// позиции независимы: отказ по одной не снимает уже взятые резервы
		now := s.now()
		expiresAt := now.Add(s.ttl(in.TTLMinutes))

		var res *models.Reservation
		err := s.repo.WithTx(func(tx *repository.Repository) error {
			var err error
			res, err = s.reserveOne(ctx, tx, tenantID, it, in.CartID, expiresAt, now)
			return err
		})
		if err != nil {
			report.Failed++
			report.Results = append(report.Results, ReserveResult{
				StockRecordID: it.StockRecordID,
				OK:            false,
				Error:         reserveErrorMessage(err),
			})
			continue
		}
		report.Succeeded++
		report.Results = append(report.Results, ReserveResult{
			StockRecordID: it.StockRecordID,
			ReservationID: &res.ID,
			OK:            true,
			ExpiresAt:     &res.ExpiresAt,
		})
		s.invalidate(ctx, tenantID, it.StockRecordID)
	}

	switch {
	case report.Failed == 0:
		report.Status = BulkAllSuccess
	case report.Succeeded == 0:
		report.Status = BulkAllFailed
	default:
		report.Status = BulkPartial
	}
	return report, nil
}

func reserveErrorMessage(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientStock):
		return "Insufficient stock"
	case errors.Is(err, ErrStockNotFound):
		return "Stock record not found"
	case errors.Is(err, ErrStockInactive):
		return "Stock record inactive"
	case errors.Is(err, ErrInvalidQuantity):
		return "Invalid quantity"
	default:
		return err.Error()
	}
}

func (s *reservationService) GetReservation(ctx context.Context, id uuid.UUID) (*models.Reservation, error) {
	tenantID, err := requireTenant(ctx)
	if err != nil {
		return nil, err
	}
	res, err := s.repo.Reservations.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, ErrReservationNotFound
	}
	return res, nil
}

func (s *reservationService) ReleaseReservation(ctx context.Context, id uuid.UUID) (bool, error) {
	tenantID, err := requireTenant(ctx)
	if err != nil {
		return false, err
	}

	res, err := s.repo.Reservations.Get(ctx, tenantID, id)
	if err != nil {
		return false, err
	}
	if res == nil {
		return false, ErrReservationNotFound
	}

	ok, err := s.repo.Reservations.Release(ctx, tenantID, id, s.now())
	if err != nil {
		return false, err
	}
	if ok {
		s.invalidate(ctx, tenantID, res.StockRecordID)
	}
	return ok, nil
}

func (s *reservationService) ReleaseCartReservations(ctx context.Context, cartID uuid.UUID) (int64, error) {
	tenantID, err := requireTenant(ctx)
	if err != nil {
		return 0, err
	}

	now := s.now()
	active, err := s.repo.Reservations.ListActiveByCart(ctx, tenantID, cartID, now)
	if err != nil {
		return 0, err
	}

	released, err := s.repo.Reservations.ReleaseByCart(ctx, tenantID, cartID, now)
	if err != nil {
		return 0, err
	}
	for _, r := range active {
		s.invalidate(ctx, tenantID, r.StockRecordID)
	}
	return released, nil
}

func (s *reservationService) ExtendReservation(ctx context.Context, id uuid.UUID, minutes int) (*models.Reservation, error) {
	tenantID, err := requireTenant(ctx)
	if err != nil {
		return nil, err
	}
	if minutes <= 0 {
		return nil, ErrInvalidQuantity
	}

	res, err := s.repo.Reservations.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, ErrReservationNotFound
	}

	now := s.now()
	if res.Status != models.ReservationActive {
		return nil, ErrReservationNotActive
	}
	if !res.ExpiresAt.After(now) {
		return nil, ErrReservationExpired
	}
	if res.Extended {
		return nil, ErrReservationExtended
	}

	ext := time.Duration(minutes) * time.Minute
	if ext > s.policy.MaxExtension {
		ext = s.policy.MaxExtension
	}
	newExpiresAt := res.ExpiresAt.Add(ext)

	ok, err := s.repo.Reservations.Extend(ctx, tenantID, id, newExpiresAt, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		// гонка: кто-то успел продлить или освободить раньше
		return nil, ErrReservationExtended
	}

	res.ExpiresAt = newExpiresAt
	res.Extended = true
	return res, nil
}

func (s *reservationService) ConsumeCartReservations(ctx context.Context, cartID uuid.UUID) (int64, error) {
	tenantID, err := requireTenant(ctx)
	if err != nil {
		return 0, err
	}

	var consumed int64
	var touched []uuid.UUID
	now := s.now()

	err = s.repo.WithTx(func(tx *repository.Repository) error {
		active, err := tx.Reservations.ListActiveByCart(ctx, tenantID, cartID, now)
		if err != nil {
			return err
		}
		if len(active) == 0 {
			return ErrCartReservationMissing
		}

		for _, r := range active {
			ok, err := tx.Reservations.Consume(ctx, tenantID, r.ID, now)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			// резерв превращается в фактическое списание
			if _, err := applyAdjustment(ctx, tx, tenantID, AdjustInput{
				StockRecordID: r.StockRecordID,
				Type:          AdjustRemove,
				Quantity:      r.Quantity,
				Reason:        models.ReasonReservationUsed,
			}, actorOrNil(ctx), now); err != nil {
				return err
			}
			consumed++
			touched = append(touched, r.StockRecordID)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, id := range touched {
		s.invalidate(ctx, tenantID, id)
	}
	return consumed, nil
}

func (s *reservationService) invalidate(ctx context.Context, tenantID, stockRecordID uuid.UUID) {
	if s.cache != nil {
		_ = s.cache.InvalidateStock(ctx, tenantID, stockRecordID)
	}
}
