package repository

import (
	"context"
	"errors"
	"time"

	"commerce-core/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CustomerRepo interface {
	// Ensure создаёт запись покупателя, если её ещё нет
	Ensure(ctx context.Context, tenantID, customerID uuid.UUID) error
	Get(ctx context.Context, tenantID, customerID uuid.UUID) (*models.Customer, error)
	// ApplyOrderStats атомарно пересчитывает агрегаты после создания заказа
	ApplyOrderStats(ctx context.Context, tenantID, customerID uuid.UUID, orderTotalCents int64, orderedAt time.Time) error
}

type customerRepo struct{ db *gorm.DB }

func NewCustomerRepo(db *gorm.DB) CustomerRepo { return &customerRepo{db: db} }

func (r *customerRepo) Ensure(ctx context.Context, tenantID, customerID uuid.UUID) error {
	c := models.Customer{ID: customerID, TenantID: tenantID}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(&c).Error
}

func (r *customerRepo) Get(ctx context.Context, tenantID, customerID uuid.UUID) (*models.Customer, error) {
	var c models.Customer
	err := r.db.WithContext(ctx).First(&c, "id = ? AND tenant_id = ?", customerID, tenantID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &c, err
}

func (r *customerRepo) ApplyOrderStats(ctx context.Context, tenantID, customerID uuid.UUID, orderTotalCents int64, orderedAt time.Time) error {
	return r.db.WithContext(ctx).Exec(`
UPDATE customers
SET orders_count = orders_count + 1,
    lifetime_spend_cents = lifetime_spend_cents + @total,
    avg_order_value_cents = (lifetime_spend_cents + @total) / (orders_count + 1),
    last_order_at = @at,
    updated_at = now()
WHERE id = @id
  AND tenant_id = @tid
`, map[string]any{
		"id":    customerID,
		"tid":   tenantID,
		"total": orderTotalCents,
		"at":    orderedAt,
	}).Error
}
