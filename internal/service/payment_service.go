package service

import (
	"context"
	"strings"
	"time"

	"commerce-core/internal/models"
	"commerce-core/internal/repository"

	"github.com/google/uuid"
)

// Переходы попытки платежа. CAPTURED — единственное состояние без выхода в
// FAILED/CANCELED; FAILED -> AUTHORIZING разрешает повторную авторизацию.
var attemptTransitions = map[models.PaymentAttemptStatus]map[models.PaymentAttemptStatus]bool{
	models.PaymentAttemptInitiated: {
		models.PaymentAttemptAuthorizing: true,
		models.PaymentAttemptFailed:      true,
		models.PaymentAttemptCanceled:    true,
	},
	models.PaymentAttemptAuthorizing: {
		models.PaymentAttemptAuthorized: true,
		models.PaymentAttemptFailed:     true,
		models.PaymentAttemptCanceled:   true,
	},
	models.PaymentAttemptAuthorized: {
		models.PaymentAttemptCaptured: true,
		models.PaymentAttemptFailed:   true,
		models.PaymentAttemptCanceled: true,
	},
	models.PaymentAttemptCaptured: {},
	models.PaymentAttemptFailed: {
		models.PaymentAttemptAuthorizing: true,
		models.PaymentAttemptCanceled:    true,
	},
	models.PaymentAttemptCanceled: {},
}

func CanTransitionAttempt(from, to models.PaymentAttemptStatus) bool {
	return attemptTransitions[from][to]
}

const failureRetryBackoff = 5 * time.Minute

type paymentService struct {
	repo *repository.Repository
	now  func() time.Time
}

func NewPaymentService(repo *repository.Repository) PaymentService {
	return &paymentService{repo: repo, now: time.Now}
}

func (s *paymentService) CreateAttempt(ctx context.Context, in CreateAttemptInput) (*models.PaymentAttempt, error) {
	tenantID, err := requireTenant(ctx)
	if err != nil {
		return nil, err
	}
	if in.AmountCents <= 0 {
		return nil, ErrPaymentAmountInvalid
	}
	if in.CurrencyCode == "" {
		in.CurrencyCode = defaultCurrency
	}

	ord, err := s.repo.Orders.GetByID(ctx, tenantID, in.OrderID)
	if err != nil {
		return nil, err
	}
	if ord == nil {
		return nil, ErrOrderNotFound
	}
	if ord.CurrencyCode != in.CurrencyCode {
		return nil, ErrCurrencyMismatch
	}

	if in.IdempotencyKey != nil && *in.IdempotencyKey != "" {
		existing, err := s.repo.Payments.GetAttemptByIdempotencyKey(ctx, tenantID, *in.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
	} else {
		in.IdempotencyKey = nil
	}

	now := s.now()
	attempt := &models.PaymentAttempt{
		TenantID:       tenantID,
		OrderID:        in.OrderID,
		Provider:       strings.TrimSpace(in.Provider),
		Status:         models.PaymentAttemptInitiated,
		AmountCents:    in.AmountCents,
		CurrencyCode:   in.CurrencyCode,
		IdempotencyKey: in.IdempotencyKey,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Payments.CreateAttempt(ctx, attempt); err != nil {
		if in.IdempotencyKey != nil && isUniqueViolation(err) {
			existing, rerr := s.repo.Payments.GetAttemptByIdempotencyKey(ctx, tenantID, *in.IdempotencyKey)
			if rerr == nil && existing != nil {
				return existing, nil
			}
		}
		return nil, err
	}
	return attempt, nil
}

func (s *paymentService) GetAttempt(ctx context.Context, id uuid.UUID) (*models.PaymentAttempt, error) {
	tenantID, err := requireTenant(ctx)
	if err != nil {
		return nil, err
	}
	a, err := s.repo.Payments.GetAttempt(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, ErrPaymentNotFound
	}
	return a, nil
}

func (s *paymentService) ListAttempts(ctx context.Context, orderID uuid.UUID) ([]*models.PaymentAttempt, error) {
	tenantID, err := requireTenant(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.Payments.ListAttemptsByOrder(ctx, tenantID, orderID)
}

func (s *paymentService) ListTransactions(ctx context.Context, attemptID uuid.UUID) ([]*models.PaymentTransaction, error) {
	if _, err := s.GetAttempt(ctx, attemptID); err != nil {
		return nil, err
	}
	return s.repo.Payments.ListTransactions(ctx, attemptID)
}

// transition — CAS-переход попытки с перечитыванием; false у репо значит гонку.
// Принимает репозиторий явно, чтобы работать и внутри WithTx.
func (s *paymentService) transition(ctx context.Context, r *repository.Repository, a *models.PaymentAttempt, to models.PaymentAttemptStatus) error {
	if !CanTransitionAttempt(a.Status, to) {
		if a.Status == models.PaymentAttemptCaptured || a.Status == models.PaymentAttemptCanceled {
			return ErrAttemptTerminal
		}
		return &InvalidTransitionError{Entity: "payment attempt", From: string(a.Status), To: string(to)}
	}
	ok, err := r.Payments.UpdateAttemptStatus(ctx, a.ID, a.Status, to)
	if err != nil {
		return err
	}
	if !ok {
		return &InvalidTransitionError{Entity: "payment attempt", From: string(a.Status), To: string(to)}
	}
	a.Status = to
	return nil
}

func (s *paymentService) BeginAuthorization(ctx context.Context, id uuid.UUID) (*models.PaymentAttempt, error) {
	a, err := s.GetAttempt(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.transition(ctx, s.repo, a, models.PaymentAttemptAuthorizing); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *paymentService) MarkAuthorized(ctx context.Context, id uuid.UUID, providerRef string) (*models.PaymentAttempt, error) {
	a, err := s.GetAttempt(ctx, id)
	if err != nil {
		return nil, err
	}
	// смена статуса и AUTH-транзакция атомарны
	err = s.repo.WithTx(func(tx *repository.Repository) error {
		if err := s.transition(ctx, tx, a, models.PaymentAttemptAuthorized); err != nil {
			return err
		}
		return tx.Payments.AppendTransaction(ctx, &models.PaymentTransaction{
			AttemptID:   a.ID,
			Type:        models.PaymentTxAuth,
			AmountCents: a.AmountCents,
			ProviderRef: providerRef,
			CreatedAt:   s.now(),
		})
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (s *paymentService) Capture(ctx context.Context, id uuid.UUID, providerRef string) (*models.PaymentAttempt, error) {
	tenantID, err := requireTenant(ctx)
	if err != nil {
		return nil, err
	}
	a, err := s.GetAttempt(ctx, id)
	if err != nil {
		return nil, err
	}

	err = s.repo.WithTx(func(tx *repository.Repository) error {
		if !CanTransitionAttempt(a.Status, models.PaymentAttemptCaptured) {
			return &InvalidTransitionError{Entity: "payment attempt", From: string(a.Status), To: string(models.PaymentAttemptCaptured)}
		}
		ok, err := tx.Payments.UpdateAttemptStatus(ctx, a.ID, a.Status, models.PaymentAttemptCaptured)
		if err != nil {
			return err
		}
		if !ok {
			return &InvalidTransitionError{Entity: "payment attempt", From: string(a.Status), To: string(models.PaymentAttemptCaptured)}
		}
		if err := tx.Payments.AppendTransaction(ctx, &models.PaymentTransaction{
			AttemptID:   a.ID,
			Type:        models.PaymentTxCapture,
			AmountCents: a.AmountCents,
			ProviderRef: providerRef,
			CreatedAt:   s.now(),
		}); err != nil {
			return err
		}

		// успешный capture двигает заказ в PAID
		ord, err := tx.Orders.GetByID(ctx, tenantID, a.OrderID)
		if err != nil {
			return err
		}
		if ord != nil && CanTransition(ord.Status, models.OrderStatusPaid) && ord.Status != models.OrderStatusPaid {
			if _, err := tx.Orders.UpdateStatus(ctx, ord.ID, ord.Status, models.OrderStatusPaid, nil); err != nil {
				return err
			}
		}
		if ord != nil {
			if err := tx.Orders.UpdatePaymentStatus(ctx, ord.ID, models.PaymentStatusPaid); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	a.Status = models.PaymentAttemptCaptured
	return a, nil
}

func (s *paymentService) Refund(ctx context.Context, in RefundInput) (*models.PaymentAttempt, error) {
	if in.AmountCents <= 0 {
		return nil, ErrPaymentAmountInvalid
	}

	a, err := s.GetAttempt(ctx, in.AttemptID)
	if err != nil {
		return nil, err
	}
	if a.Status != models.PaymentAttemptCaptured {
		return nil, &InvalidTransitionError{Entity: "payment attempt", From: string(a.Status), To: "REFUND"}
	}

	err = s.repo.WithTx(func(tx *repository.Repository) error {
		captured, err := tx.Payments.SumTransactions(ctx, a.ID, models.PaymentTxCapture)
		if err != nil {
			return err
		}
		refunded, err := tx.Payments.SumTransactions(ctx, a.ID, models.PaymentTxRefund)
		if err != nil {
			return err
		}
		if refunded+in.AmountCents > captured {
			return ErrRefundExceedsCapture
		}

		if err := tx.Payments.AppendTransaction(ctx, &models.PaymentTransaction{
			AttemptID:   a.ID,
			Type:        models.PaymentTxRefund,
			AmountCents: in.AmountCents,
			ProviderRef: in.ProviderRef,
			CreatedAt:   s.now(),
		}); err != nil {
			return err
		}

		ps := models.PaymentStatusPartiallyRefunded
		if refunded+in.AmountCents == captured {
			ps = models.PaymentStatusRefunded
		}
		return tx.Orders.UpdatePaymentStatus(ctx, a.OrderID, ps)
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (s *paymentService) Void(ctx context.Context, id uuid.UUID, providerRef string) (*models.PaymentAttempt, error) {
	a, err := s.GetAttempt(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status != models.PaymentAttemptAuthorized {
		return nil, &InvalidTransitionError{Entity: "payment attempt", From: string(a.Status), To: string(models.PaymentAttemptCanceled)}
	}
	// смена статуса и VOID-транзакция атомарны
	err = s.repo.WithTx(func(tx *repository.Repository) error {
		if err := s.transition(ctx, tx, a, models.PaymentAttemptCanceled); err != nil {
			return err
		}
		return tx.Payments.AppendTransaction(ctx, &models.PaymentTransaction{
			AttemptID:   a.ID,
			Type:        models.PaymentTxVoid,
			AmountCents: a.AmountCents,
			ProviderRef: providerRef,
			CreatedAt:   s.now(),
		})
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (s *paymentService) Cancel(ctx context.Context, id uuid.UUID) (*models.PaymentAttempt, error) {
	a, err := s.GetAttempt(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.transition(ctx, s.repo, a, models.PaymentAttemptCanceled); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *paymentService) MarkFailed(ctx context.Context, id uuid.UUID, code, msg string) (*models.PaymentAttempt, error) {
	tenantID, err := requireTenant(ctx)
	if err != nil {
		return nil, err
	}
	a, err := s.GetAttempt(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransitionAttempt(a.Status, models.PaymentAttemptFailed) {
		if a.Status == models.PaymentAttemptCaptured || a.Status == models.PaymentAttemptCanceled {
			return nil, ErrAttemptTerminal
		}
		return nil, &InvalidTransitionError{Entity: "payment attempt", From: string(a.Status), To: string(models.PaymentAttemptFailed)}
	}

	retryAt := s.now().Add(failureRetryBackoff)
	ok, err := s.repo.Payments.RecordFailure(ctx, a.ID, a.Status, code, msg, &retryAt)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &InvalidTransitionError{Entity: "payment attempt", From: string(a.Status), To: string(models.PaymentAttemptFailed)}
	}

	// первая неудача помечает заказ
	ord, err := s.repo.Orders.GetByID(ctx, tenantID, a.OrderID)
	if err == nil && ord != nil && ord.Status == models.OrderStatusPending {
		_, _ = s.repo.Orders.UpdateStatus(ctx, ord.ID, models.OrderStatusPending, models.OrderStatusPaymentFailed, nil)
	}

	return s.repo.Payments.GetAttempt(ctx, tenantID, a.ID)
}
