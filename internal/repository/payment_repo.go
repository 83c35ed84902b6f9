package repository

import (
	"context"
	"errors"
	"time"

	"commerce-core/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PaymentRepo interface {
	CreateAttempt(ctx context.Context, a *models.PaymentAttempt) error
	GetAttempt(ctx context.Context, tenantID, id uuid.UUID) (*models.PaymentAttempt, error)
	GetAttemptByIdempotencyKey(ctx context.Context, tenantID uuid.UUID, key string) (*models.PaymentAttempt, error)
	ListAttemptsByOrder(ctx context.Context, tenantID, orderID uuid.UUID) ([]*models.PaymentAttempt, error)
	// UpdateAttemptStatus — compare-and-set по статусу; false при гонке
	UpdateAttemptStatus(ctx context.Context, id uuid.UUID, from, to models.PaymentAttemptStatus) (bool, error)
	RecordFailure(ctx context.Context, id uuid.UUID, from models.PaymentAttemptStatus, code, msg string, nextRetryAt *time.Time) (bool, error)
	AppendTransaction(ctx context.Context, tx *models.PaymentTransaction) error
	ListTransactions(ctx context.Context, attemptID uuid.UUID) ([]*models.PaymentTransaction, error)
	SumTransactions(ctx context.Context, attemptID uuid.UUID, txType models.PaymentTransactionType) (int64, error)
}

type paymentRepo struct{ db *gorm.DB }

func NewPaymentRepo(db *gorm.DB) PaymentRepo { return &paymentRepo{db: db} }

func (r *paymentRepo) CreateAttempt(ctx context.Context, a *models.PaymentAttempt) error {
	return r.db.WithContext(ctx).Create(a).Error
}

func (r *paymentRepo) GetAttempt(ctx context.Context, tenantID, id uuid.UUID) (*models.PaymentAttempt, error) {
	var a models.PaymentAttempt
	err := r.db.WithContext(ctx).First(&a, "id = ? AND tenant_id = ?", id, tenantID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &a, err
}

func (r *paymentRepo) GetAttemptByIdempotencyKey(ctx context.Context, tenantID uuid.UUID, key string) (*models.PaymentAttempt, error) {
	var a models.PaymentAttempt
	err := r.db.WithContext(ctx).First(&a, "tenant_id = ? AND idempotency_key = ?", tenantID, key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &a, err
}

func (r *paymentRepo) ListAttemptsByOrder(ctx context.Context, tenantID, orderID uuid.UUID) ([]*models.PaymentAttempt, error) {
	var list []*models.PaymentAttempt
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND order_id = ?", tenantID, orderID).
		Order("created_at ASC").
		Find(&list).Error
	return list, err
}

func (r *paymentRepo) UpdateAttemptStatus(ctx context.Context, id uuid.UUID, from, to models.PaymentAttemptStatus) (bool, error) {
	tx := r.db.WithContext(ctx).Exec(`
UPDATE payment_attempts
SET status = @to,
    updated_at = now()
WHERE id = @id
  AND status = @from
`, map[string]any{
		"id":   id,
		"from": from,
		"to":   to,
	})
	return tx.RowsAffected > 0, tx.Error
}

func (r *paymentRepo) RecordFailure(ctx context.Context, id uuid.UUID, from models.PaymentAttemptStatus, code, msg string, nextRetryAt *time.Time) (bool, error) {
	tx := r.db.WithContext(ctx).Exec(`
UPDATE payment_attempts
SET status = @failed,
    attempt_count = attempt_count + 1,
    last_error_code = @code,
    last_error_message = @msg,
    next_retry_at = @retry,
    updated_at = now()
WHERE id = @id
  AND status = @from
`, map[string]any{
		"id":     id,
		"from":   from,
		"failed": models.PaymentAttemptFailed,
		"code":   code,
		"msg":    msg,
		"retry":  nextRetryAt,
	})
	return tx.RowsAffected > 0, tx.Error
}

func (r *paymentRepo) AppendTransaction(ctx context.Context, tx *models.PaymentTransaction) error {
	return r.db.WithContext(ctx).Create(tx).Error
}

func (r *paymentRepo) ListTransactions(ctx context.Context, attemptID uuid.UUID) ([]*models.PaymentTransaction, error) {
	var list []*models.PaymentTransaction
	err := r.db.WithContext(ctx).Where("attempt_id = ?", attemptID).Order("seq ASC").Find(&list).Error
	return list, err
}

func (r *paymentRepo) SumTransactions(ctx context.Context, attemptID uuid.UUID, txType models.PaymentTransactionType) (int64, error) {
	var sum int64
	err := r.db.WithContext(ctx).Model(&models.PaymentTransaction{}).
		Select("COALESCE(SUM(amount_cents), 0)").
		Where("attempt_id = ? AND type = ?", attemptID, txType).
		Scan(&sum).Error
	return sum, err
}
