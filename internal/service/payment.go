package service

import (
	"context"

	"commerce-core/internal/models"

	"github.com/google/uuid"
)

type CreateAttemptInput struct {
	OrderID        uuid.UUID
	Provider       string
	AmountCents    int64
	CurrencyCode   string
	IdempotencyKey *string
}

type RefundInput struct {
	AttemptID   uuid.UUID
	AmountCents int64
	ProviderRef string
	Reason      string
}

type PaymentService interface {
	CreateAttempt(ctx context.Context, in CreateAttemptInput) (*models.PaymentAttempt, error)
	GetAttempt(ctx context.Context, id uuid.UUID) (*models.PaymentAttempt, error)
	ListAttempts(ctx context.Context, orderID uuid.UUID) ([]*models.PaymentAttempt, error)
	ListTransactions(ctx context.Context, attemptID uuid.UUID) ([]*models.PaymentTransaction, error)

	BeginAuthorization(ctx context.Context, id uuid.UUID) (*models.PaymentAttempt, error)
	MarkAuthorized(ctx context.Context, id uuid.UUID, providerRef string) (*models.PaymentAttempt, error)
	Capture(ctx context.Context, id uuid.UUID, providerRef string) (*models.PaymentAttempt, error)
	Refund(ctx context.Context, in RefundInput) (*models.PaymentAttempt, error)
	Void(ctx context.Context, id uuid.UUID, providerRef string) (*models.PaymentAttempt, error)
	Cancel(ctx context.Context, id uuid.UUID) (*models.PaymentAttempt, error)
	MarkFailed(ctx context.Context, id uuid.UUID, code, msg string) (*models.PaymentAttempt, error)
}
