package service_test

import (
	"errors"
	"testing"

	"commerce-core/internal/models"
	"commerce-core/internal/service"

	"github.com/google/uuid"
)

func (e *env) mustCreateOrder(t *testing.T, rec *models.StockRecord, qty int64) *models.Order {
	t.Helper()
	ord, err := e.orders.CreateOrder(e.ctx, service.CreateOrderInput{
		CustomerID:    uuid.New(),
		Items:         []service.CreateOrderItem{{StockRecordID: rec.ID, Quantity: qty}},
		PaymentMethod: "card",
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	return ord
}

func TestPayment_CaptureFlow(t *testing.T) {
	e := setupEnv(t)
	rec := e.mustCreateStock(t, "SKU-400", 1000, 10)
	ord := e.mustCreateOrder(t, rec, 2)

	a, err := e.payments.CreateAttempt(e.ctx, service.CreateAttemptInput{
		OrderID:      ord.ID,
		Provider:     "stripe",
		AmountCents:  ord.TotalCents,
		CurrencyCode: "USD",
	})
	if err != nil {
		t.Fatalf("CreateAttempt: %v", err)
	}
	if a.Status != models.PaymentAttemptInitiated {
		t.Fatalf("expected INITIATED, got %s", a.Status)
	}

	if a, err = e.payments.BeginAuthorization(e.ctx, a.ID); err != nil {
		t.Fatalf("BeginAuthorization: %v", err)
	}
	if a, err = e.payments.MarkAuthorized(e.ctx, a.ID, "auth-ref-1"); err != nil {
		t.Fatalf("MarkAuthorized: %v", err)
	}
	if a, err = e.payments.Capture(e.ctx, a.ID, "cap-ref-1"); err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if a.Status != models.PaymentAttemptCaptured {
		t.Fatalf("expected CAPTURED, got %s", a.Status)
	}

	// заказ стал PAID
	ord, err = e.orders.GetOrder(e.ctx, ord.ID)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if ord.Status != models.OrderStatusPaid || ord.PaymentStatus != models.PaymentStatusPaid {
		t.Fatalf("order status mismatch: %s %s", ord.Status, ord.PaymentStatus)
	}

	// AUTH и CAPTURE записаны по порядку
	txs, err := e.payments.ListTransactions(e.ctx, a.ID)
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(txs) != 2 || txs[0].Type != models.PaymentTxAuth || txs[1].Type != models.PaymentTxCapture {
		t.Fatalf("transactions mismatch: %+v", txs)
	}
}

func TestPayment_SkipStates(t *testing.T) {
	e := setupEnv(t)
	rec := e.mustCreateStock(t, "SKU-410", 1000, 10)
	ord := e.mustCreateOrder(t, rec, 1)

	a, err := e.payments.CreateAttempt(e.ctx, service.CreateAttemptInput{
		OrderID: ord.ID, Provider: "stripe", AmountCents: 1000, CurrencyCode: "USD",
	})
	if err != nil {
		t.Fatalf("CreateAttempt: %v", err)
	}

	// INITIATED -> AUTHORIZED минуя AUTHORIZING запрещено
	if _, err := e.payments.MarkAuthorized(e.ctx, a.ID, "x"); !errors.Is(err, service.ErrInvalidTransition) {
		t.Fatalf("expected skip rejected, got %v", err)
	}
	// INITIATED -> CAPTURED тоже
	if _, err := e.payments.Capture(e.ctx, a.ID, "x"); !errors.Is(err, service.ErrInvalidTransition) {
		t.Fatalf("expected capture from INITIATED rejected, got %v", err)
	}

	// отклонённые переходы не оставляют транзакций
	txs, err := e.payments.ListTransactions(e.ctx, a.ID)
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(txs) != 0 {
		t.Fatalf("expected no transactions after rejected transitions, got %d", len(txs))
	}
}

func TestPayment_FailureAndRetry(t *testing.T) {
	e := setupEnv(t)
	rec := e.mustCreateStock(t, "SKU-420", 1000, 10)
	ord := e.mustCreateOrder(t, rec, 1)

	a, err := e.payments.CreateAttempt(e.ctx, service.CreateAttemptInput{
		OrderID: ord.ID, Provider: "stripe", AmountCents: 1000, CurrencyCode: "USD",
	})
	if err != nil {
		t.Fatalf("CreateAttempt: %v", err)
	}
	if _, err = e.payments.BeginAuthorization(e.ctx, a.ID); err != nil {
		t.Fatalf("BeginAuthorization: %v", err)
	}

	a, err = e.payments.MarkFailed(e.ctx, a.ID, "card_declined", "issuer declined")
	if err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	if a.Status != models.PaymentAttemptFailed || a.AttemptCount != 1 {
		t.Fatalf("failure mismatch: %+v", a)
	}
	if a.LastErrorCode == nil || *a.LastErrorCode != "card_declined" || a.NextRetryAt == nil {
		t.Fatalf("error details missing: %+v", a)
	}

	// заказ помечен
	ord, _ = e.orders.GetOrder(e.ctx, ord.ID)
	if ord.Status != models.OrderStatusPaymentFailed {
		t.Fatalf("expected PAYMENT_FAILED, got %s", ord.Status)
	}

	// FAILED -> AUTHORIZING: повторная попытка разрешена
	if a, err = e.payments.BeginAuthorization(e.ctx, a.ID); err != nil {
		t.Fatalf("retry BeginAuthorization: %v", err)
	}
	if a.Status != models.PaymentAttemptAuthorizing {
		t.Fatalf("expected AUTHORIZING, got %s", a.Status)
	}
}

func TestPayment_RefundCap(t *testing.T) {
	e := setupEnv(t)
	rec := e.mustCreateStock(t, "SKU-430", 1000, 10)
	ord := e.mustCreateOrder(t, rec, 5) // $50.00

	a, err := e.payments.CreateAttempt(e.ctx, service.CreateAttemptInput{
		OrderID: ord.ID, Provider: "stripe", AmountCents: 5000, CurrencyCode: "USD",
	})
	if err != nil {
		t.Fatalf("CreateAttempt: %v", err)
	}
	if _, err = e.payments.BeginAuthorization(e.ctx, a.ID); err != nil {
		t.Fatalf("BeginAuthorization: %v", err)
	}
	if _, err = e.payments.MarkAuthorized(e.ctx, a.ID, "auth"); err != nil {
		t.Fatalf("MarkAuthorized: %v", err)
	}
	if _, err = e.payments.Capture(e.ctx, a.ID, "cap"); err != nil {
		t.Fatalf("Capture: %v", err)
	}

	// возврат больше захвата запрещён
	if _, err := e.payments.Refund(e.ctx, service.RefundInput{AttemptID: a.ID, AmountCents: 6000}); !errors.Is(err, service.ErrRefundExceedsCapture) {
		t.Fatalf("expected refund cap, got %v", err)
	}

	// частичный возврат
	if _, err := e.payments.Refund(e.ctx, service.RefundInput{AttemptID: a.ID, AmountCents: 2000}); err != nil {
		t.Fatalf("Refund partial: %v", err)
	}
	ord, _ = e.orders.GetOrder(e.ctx, ord.ID)
	if ord.PaymentStatus != models.PaymentStatusPartiallyRefunded {
		t.Fatalf("expected PARTIALLY_REFUNDED, got %s", ord.PaymentStatus)
	}

	// сумма возвратов не может превысить захват
	if _, err := e.payments.Refund(e.ctx, service.RefundInput{AttemptID: a.ID, AmountCents: 3500}); !errors.Is(err, service.ErrRefundExceedsCapture) {
		t.Fatalf("expected cumulative cap, got %v", err)
	}

	// добиваем остаток — полный возврат
	if _, err := e.payments.Refund(e.ctx, service.RefundInput{AttemptID: a.ID, AmountCents: 3000}); err != nil {
		t.Fatalf("Refund full: %v", err)
	}
	ord, _ = e.orders.GetOrder(e.ctx, ord.ID)
	if ord.PaymentStatus != models.PaymentStatusRefunded {
		t.Fatalf("expected REFUNDED, got %s", ord.PaymentStatus)
	}
}

func TestPayment_TerminalStates(t *testing.T) {
	e := setupEnv(t)
	rec := e.mustCreateStock(t, "SKU-440", 1000, 10)
	ord := e.mustCreateOrder(t, rec, 1)

	a, err := e.payments.CreateAttempt(e.ctx, service.CreateAttemptInput{
		OrderID: ord.ID, Provider: "stripe", AmountCents: 1000, CurrencyCode: "USD",
	})
	if err != nil {
		t.Fatalf("CreateAttempt: %v", err)
	}
	if _, err = e.payments.BeginAuthorization(e.ctx, a.ID); err != nil {
		t.Fatalf("BeginAuthorization: %v", err)
	}
	if _, err = e.payments.MarkAuthorized(e.ctx, a.ID, "auth"); err != nil {
		t.Fatalf("MarkAuthorized: %v", err)
	}
	if _, err = e.payments.Capture(e.ctx, a.ID, "cap"); err != nil {
		t.Fatalf("Capture: %v", err)
	}

	// CAPTURED — терминал для fail/cancel
	if _, err := e.payments.MarkFailed(e.ctx, a.ID, "x", "y"); !errors.Is(err, service.ErrAttemptTerminal) {
		t.Fatalf("expected terminal, got %v", err)
	}
	if _, err := e.payments.Cancel(e.ctx, a.ID); !errors.Is(err, service.ErrAttemptTerminal) {
		t.Fatalf("expected terminal on cancel, got %v", err)
	}
}

func TestPayment_VoidAuthorized(t *testing.T) {
	e := setupEnv(t)
	rec := e.mustCreateStock(t, "SKU-450", 1000, 10)
	ord := e.mustCreateOrder(t, rec, 1)

	a, err := e.payments.CreateAttempt(e.ctx, service.CreateAttemptInput{
		OrderID: ord.ID, Provider: "stripe", AmountCents: 1000, CurrencyCode: "USD",
	})
	if err != nil {
		t.Fatalf("CreateAttempt: %v", err)
	}
	if _, err = e.payments.BeginAuthorization(e.ctx, a.ID); err != nil {
		t.Fatalf("BeginAuthorization: %v", err)
	}
	if _, err = e.payments.MarkAuthorized(e.ctx, a.ID, "auth"); err != nil {
		t.Fatalf("MarkAuthorized: %v", err)
	}

	a, err = e.payments.Void(e.ctx, a.ID, "void-ref")
	if err != nil {
		t.Fatalf("Void: %v", err)
	}
	if a.Status != models.PaymentAttemptCanceled {
		t.Fatalf("expected CANCELED, got %s", a.Status)
	}

	txs, _ := e.payments.ListTransactions(e.ctx, a.ID)
	if len(txs) != 2 || txs[1].Type != models.PaymentTxVoid {
		t.Fatalf("expected VOID transaction, got %+v", txs)
	}
}

func TestPayment_IdempotentCreate(t *testing.T) {
	e := setupEnv(t)
	rec := e.mustCreateStock(t, "SKU-460", 1000, 10)
	ord := e.mustCreateOrder(t, rec, 1)

	key := "pay-xyz"
	in := service.CreateAttemptInput{
		OrderID: ord.ID, Provider: "stripe", AmountCents: 1000, CurrencyCode: "USD",
		IdempotencyKey: &key,
	}
	first, err := e.payments.CreateAttempt(e.ctx, in)
	if err != nil {
		t.Fatalf("CreateAttempt first: %v", err)
	}
	second, err := e.payments.CreateAttempt(e.ctx, in)
	if err != nil {
		t.Fatalf("CreateAttempt second: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected same attempt, got %s and %s", first.ID, second.ID)
	}
}

func TestPayment_CurrencyMustMatchOrder(t *testing.T) {
	e := setupEnv(t)
	rec := e.mustCreateStock(t, "SKU-470", 1000, 10)
	ord := e.mustCreateOrder(t, rec, 1) // USD

	_, err := e.payments.CreateAttempt(e.ctx, service.CreateAttemptInput{
		OrderID: ord.ID, Provider: "stripe", AmountCents: 1000, CurrencyCode: "EUR",
	})
	if !errors.Is(err, service.ErrCurrencyMismatch) {
		t.Fatalf("expected currency mismatch, got %v", err)
	}
}
