package repository

import (
	"context"
	"time"

	"commerce-core/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type LedgerListFilter struct {
	TenantID      uuid.UUID
	StockRecordID *uuid.UUID
	Reason        *models.LedgerReason
	From          *time.Time
	To            *time.Time
	Limit         int
	Offset        int
}

type LedgerRepo interface {
	Append(ctx context.Context, e *models.StockLedgerEntry) error
	List(ctx context.Context, f LedgerListFilter) ([]*models.StockLedgerEntry, int64, error)
	// ListByStockRecord отдаёт всю историю записи в порядке seq — для replay
	ListByStockRecord(ctx context.Context, tenantID, stockRecordID uuid.UUID) ([]*models.StockLedgerEntry, error)
}

type ledgerRepo struct{ db *gorm.DB }

func NewLedgerRepo(db *gorm.DB) LedgerRepo { return &ledgerRepo{db: db} }

func (r *ledgerRepo) Append(ctx context.Context, e *models.StockLedgerEntry) error {
	return r.db.WithContext(ctx).Create(e).Error
}

func (r *ledgerRepo) List(ctx context.Context, f LedgerListFilter) ([]*models.StockLedgerEntry, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.StockLedgerEntry{}).Where("tenant_id = ?", f.TenantID)

	if f.StockRecordID != nil {
		q = q.Where("stock_record_id = ?", *f.StockRecordID)
	}
	if f.Reason != nil {
		q = q.Where("reason = ?", *f.Reason)
	}
	if f.From != nil {
		q = q.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("created_at < ?", *f.To)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	var list []*models.StockLedgerEntry
	err := q.Order("seq DESC").Limit(f.Limit).Offset(f.Offset).Find(&list).Error
	return list, total, err
}

func (r *ledgerRepo) ListByStockRecord(ctx context.Context, tenantID, stockRecordID uuid.UUID) ([]*models.StockLedgerEntry, error) {
	var list []*models.StockLedgerEntry
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND stock_record_id = ?", tenantID, stockRecordID).
		Order("seq ASC").
		Find(&list).Error
	return list, err
}
