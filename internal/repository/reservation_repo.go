package repository

import (
	"context"
	"errors"
	"time"

	"commerce-core/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ReservationRepo interface {
	Create(ctx context.Context, res *models.Reservation) error
	Get(ctx context.Context, tenantID, id uuid.UUID) (*models.Reservation, error)
	// SumActiveByStockRecord считает только живые резервы: ACTIVE и ещё не истёкшие
	SumActiveByStockRecord(ctx context.Context, tenantID, stockRecordID uuid.UUID, now time.Time) (int64, error)
	// SumActiveExcludingCart — то же, но без резервов указанной корзины
	// (покупатель не конкурирует со своими же резервами при оформлении)
	SumActiveExcludingCart(ctx context.Context, tenantID, stockRecordID uuid.UUID, cartID *uuid.UUID, now time.Time) (int64, error)
	ListActiveByCart(ctx context.Context, tenantID, cartID uuid.UUID, now time.Time) ([]*models.Reservation, error)
	// Release переводит ACTIVE -> RELEASED; false, если резерв уже не ACTIVE или истёк
	Release(ctx context.Context, tenantID, id uuid.UUID, now time.Time) (bool, error)
	ReleaseByCart(ctx context.Context, tenantID, cartID uuid.UUID, now time.Time) (int64, error)
	// Extend продлевает ровно один раз: ACTIVE, не истёк, extended = false
	Extend(ctx context.Context, tenantID, id uuid.UUID, newExpiresAt, now time.Time) (bool, error)
	// Consume переводит ACTIVE -> CONSUMED; false, если резерв не ACTIVE или истёк
	Consume(ctx context.Context, tenantID, id uuid.UUID, now time.Time) (bool, error)
	// ExpireDue помечает протухшие ACTIVE как EXPIRED, возвращает число строк
	ExpireDue(ctx context.Context, now time.Time, limit int) (int64, error)
}

type reservationRepo struct{ db *gorm.DB }

func NewReservationRepo(db *gorm.DB) ReservationRepo { return &reservationRepo{db: db} }

func (r *reservationRepo) Create(ctx context.Context, res *models.Reservation) error {
	return r.db.WithContext(ctx).Create(res).Error
}

func (r *reservationRepo) Get(ctx context.Context, tenantID, id uuid.UUID) (*models.Reservation, error) {
	var res models.Reservation
	err := r.db.WithContext(ctx).First(&res, "id = ? AND tenant_id = ?", id, tenantID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &res, err
}

func (r *reservationRepo) SumActiveByStockRecord(ctx context.Context, tenantID, stockRecordID uuid.UUID, now time.Time) (int64, error) {
	return r.SumActiveExcludingCart(ctx, tenantID, stockRecordID, nil, now)
}

func (r *reservationRepo) SumActiveExcludingCart(ctx context.Context, tenantID, stockRecordID uuid.UUID, cartID *uuid.UUID, now time.Time) (int64, error) {
	q := r.db.WithContext(ctx).Model(&models.Reservation{}).
		Select("COALESCE(SUM(quantity), 0)").
		Where("tenant_id = ? AND stock_record_id = ? AND status = ? AND expires_at > ?",
			tenantID, stockRecordID, models.ReservationActive, now)
	if cartID != nil {
		q = q.Where("cart_id IS DISTINCT FROM ?", *cartID)
	}
	var sum int64
	err := q.Scan(&sum).Error
	return sum, err
}

func (r *reservationRepo) ListActiveByCart(ctx context.Context, tenantID, cartID uuid.UUID, now time.Time) ([]*models.Reservation, error) {
	var list []*models.Reservation
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND cart_id = ? AND status = ? AND expires_at > ?",
			tenantID, cartID, models.ReservationActive, now).
		Order("created_at ASC").
		Find(&list).Error
	return list, err
}

func (r *reservationRepo) Release(ctx context.Context, tenantID, id uuid.UUID, now time.Time) (bool, error) {
	tx := r.db.WithContext(ctx).Exec(`
UPDATE reservations
SET status = @st,
    released_at = @now
WHERE id = @id
  AND tenant_id = @tid
  AND status = @active
  AND expires_at > @now
`, map[string]any{
		"id":     id,
		"tid":    tenantID,
		"st":     models.ReservationReleased,
		"active": models.ReservationActive,
		"now":    now,
	})
	return tx.RowsAffected > 0, tx.Error
}

func (r *reservationRepo) ReleaseByCart(ctx context.Context, tenantID, cartID uuid.UUID, now time.Time) (int64, error) {
	tx := r.db.WithContext(ctx).Exec(`
UPDATE reservations
SET status = @st,
    released_at = @now
WHERE tenant_id = @tid
  AND cart_id = @cart
  AND status = @active
  AND expires_at > @now
`, map[string]any{
		"tid":    tenantID,
		"cart":   cartID,
		"st":     models.ReservationReleased,
		"active": models.ReservationActive,
		"now":    now,
	})
	return tx.RowsAffected, tx.Error
}

func (r *reservationRepo) Extend(ctx context.Context, tenantID, id uuid.UUID, newExpiresAt, now time.Time) (bool, error) {
	tx := r.db.WithContext(ctx).Exec(`
UPDATE reservations
SET expires_at = @exp,
    extended = TRUE
WHERE id = @id
  AND tenant_id = @tid
  AND status = @active
  AND expires_at > @now
  AND extended = FALSE
`, map[string]any{
		"id":     id,
		"tid":    tenantID,
		"exp":    newExpiresAt,
		"active": models.ReservationActive,
		"now":    now,
	})
	return tx.RowsAffected > 0, tx.Error
}

func (r *reservationRepo) Consume(ctx context.Context, tenantID, id uuid.UUID, now time.Time) (bool, error) {
	tx := r.db.WithContext(ctx).Exec(`
UPDATE reservations
SET status = @st,
    released_at = @now
WHERE id = @id
  AND tenant_id = @tid
  AND status = @active
  AND expires_at > @now
`, map[string]any{
		"id":     id,
		"tid":    tenantID,
		"st":     models.ReservationConsumed,
		"active": models.ReservationActive,
		"now":    now,
	})
	return tx.RowsAffected > 0, tx.Error
}

func (r *reservationRepo) ExpireDue(ctx context.Context, now time.Time, limit int) (int64, error) {
	if limit <= 0 {
		limit = 500
	}
	tx := r.db.WithContext(ctx).Exec(`
UPDATE reservations
SET status = @st
WHERE id IN (
    SELECT id FROM reservations
    WHERE status = @active AND expires_at <= @now
    ORDER BY expires_at
    LIMIT @lim
)
`, map[string]any{
		"st":     models.ReservationExpired,
		"active": models.ReservationActive,
		"now":    now,
		"lim":    limit,
	})
	return tx.RowsAffected, tx.Error
}
