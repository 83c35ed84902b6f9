package repository

import (
	"context"
	"errors"

	"commerce-core/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type StockListFilter struct {
	TenantID uuid.UUID
	Status   *models.StockStatus
	Active   *bool
	Limit    int
	Offset   int
}

type StockRepo interface {
	Create(ctx context.Context, s *models.StockRecord) error
	Get(ctx context.Context, tenantID, id uuid.UUID) (*models.StockRecord, error)
	GetBySKU(ctx context.Context, tenantID uuid.UUID, sku string) (*models.StockRecord, error)
	// GetForUpdate берёт строку под SELECT ... FOR UPDATE; вызывать только внутри WithTx
	GetForUpdate(ctx context.Context, tenantID, id uuid.UUID) (*models.StockRecord, error)
	UpdateQuantity(ctx context.Context, id uuid.UUID, quantity int64, status models.StockStatus) error
	List(ctx context.Context, f StockListFilter) ([]*models.StockRecord, int64, error)
}

type stockRepo struct{ db *gorm.DB }

func NewStockRepo(db *gorm.DB) StockRepo { return &stockRepo{db: db} }

func (r *stockRepo) Create(ctx context.Context, s *models.StockRecord) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *stockRepo) Get(ctx context.Context, tenantID, id uuid.UUID) (*models.StockRecord, error) {
	var rec models.StockRecord
	err := r.db.WithContext(ctx).First(&rec, "id = ? AND tenant_id = ?", id, tenantID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &rec, err
}

func (r *stockRepo) GetBySKU(ctx context.Context, tenantID uuid.UUID, sku string) (*models.StockRecord, error) {
	var rec models.StockRecord
	err := r.db.WithContext(ctx).First(&rec, "tenant_id = ? AND sku = ?", tenantID, sku).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &rec, err
}

func (r *stockRepo) GetForUpdate(ctx context.Context, tenantID, id uuid.UUID) (*models.StockRecord, error) {
	var rec models.StockRecord
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&rec, "id = ? AND tenant_id = ?", id, tenantID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &rec, err
}

func (r *stockRepo) UpdateQuantity(ctx context.Context, id uuid.UUID, quantity int64, status models.StockStatus) error {
	return r.db.WithContext(ctx).Exec(`
UPDATE stock_records
SET quantity = @q,
    status = @st,
    updated_at = now()
WHERE id = @id
`, map[string]any{
		"id": id,
		"q":  quantity,
		"st": status,
	}).Error
}

func (r *stockRepo) List(ctx context.Context, f StockListFilter) ([]*models.StockRecord, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.StockRecord{}).Where("tenant_id = ?", f.TenantID)

	if f.Status != nil {
		q = q.Where("status = ?", *f.Status)
	}
	if f.Active != nil {
		q = q.Where("is_active = ?", *f.Active)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	var list []*models.StockRecord
	err := q.Order("created_at DESC").Limit(f.Limit).Offset(f.Offset).Find(&list).Error
	return list, total, err
}
