package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"commerce-core/internal/models"
	"commerce-core/internal/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/nanorand/nanorand"
)

const (
	defaultCurrency   = "USD"
	maxOrderItems     = 100
	orderNumberTries  = 5
	pgUniqueViolation = "23505"
)

// Допустимые переходы статуса заказа. Повтор текущего статуса — no-op.
// CANCELED -> PENDING возвращает заказ в работу с повторным списанием остатков.
var orderTransitions = map[models.OrderStatus]map[models.OrderStatus]bool{
	models.OrderStatusPending: {
		models.OrderStatusPaid:          true,
		models.OrderStatusPaymentFailed: true,
		models.OrderStatusProcessing:    true,
		models.OrderStatusCanceled:      true,
	},
	models.OrderStatusPaymentFailed: {
		models.OrderStatusPending:  true,
		models.OrderStatusPaid:     true,
		models.OrderStatusCanceled: true,
	},
	models.OrderStatusPaid: {
		models.OrderStatusProcessing: true,
		models.OrderStatusShipped:    true,
		models.OrderStatusCanceled:   true,
		models.OrderStatusRefunded:   true,
	},
	models.OrderStatusProcessing: {
		models.OrderStatusShipped:   true,
		models.OrderStatusDelivered: true,
		models.OrderStatusCanceled:  true,
		models.OrderStatusRefunded:  true,
	},
	models.OrderStatusShipped: {
		models.OrderStatusDelivered: true,
		models.OrderStatusCanceled:  true,
		models.OrderStatusRefunded:  true,
	},
	models.OrderStatusDelivered: {
		models.OrderStatusRefunded: true,
	},
	models.OrderStatusCanceled: {
		models.OrderStatusPending:  true,
		models.OrderStatusRefunded: true,
	},
	models.OrderStatusRefunded: {},
}

// Отмена возвращает остатки только пока товар не уехал со склада;
// SHIPPED -> CANCELED меняет статус без возврата.
var cancelRestocks = map[models.OrderStatus]bool{
	models.OrderStatusPending:       true,
	models.OrderStatusPaymentFailed: true,
	models.OrderStatusPaid:          true,
	models.OrderStatusProcessing:    true,
}

func CanTransition(from, to models.OrderStatus) bool {
	if from == to {
		return true
	}
	return orderTransitions[from][to]
}

type orderService struct {
	repo   *repository.Repository
	cache  StockCache
	events EventBus
	now    func() time.Time
}

func NewOrderService(repo *repository.Repository, cache StockCache, events EventBus) OrderService {
	return &orderService{
		repo:   repo,
		cache:  cache,
		events: events,
		now:    time.Now,
	}
}

func (s *orderService) generateOrderNumber(now time.Time) (string, error) {
	suffix, err := nanorand.Gen(6)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("ORD-%s-%s", now.Format("20060102"), suffix), nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

func isOrderNumberCollision(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) &&
		pgErr.Code == pgUniqueViolation &&
		pgErr.ConstraintName == "ux_orders_tenant_number"
}

func (s *orderService) CreateOrder(ctx context.Context, in CreateOrderInput) (*models.Order, error) {
	tenantID, err := requireTenant(ctx)
	if err != nil {
		return nil, err
	}
	if len(in.Items) == 0 {
		return nil, ErrEmptyItems
	}
	if len(in.Items) > maxOrderItems {
		return nil, ErrBulkTooLarge
	}
	if in.CurrencyCode == "" {
		in.CurrencyCode = defaultCurrency
	}

	// Быстрый путь: ключ уже видели — отдаём существующий заказ
	if in.IdempotencyKey != nil && *in.IdempotencyKey != "" {
		existing, err := s.repo.Orders.GetByIdempotencyKey(ctx, tenantID, *in.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
	} else {
		in.IdempotencyKey = nil
	}

	// коллизия номера откатывает всю транзакцию — повторяем целиком
	var order *models.Order
	for i := 0; ; i++ {
		order, err = s.createOrderTx(ctx, tenantID, in)
		if err == nil {
			break
		}
		if isOrderNumberCollision(err) && i < orderNumberTries-1 {
			continue
		}
		// гонка по ключу идемпотентности: первый писатель победил, читаем его заказ
		if in.IdempotencyKey != nil && isUniqueViolation(err) && !isOrderNumberCollision(err) {
			existing, rerr := s.repo.Orders.GetByIdempotencyKey(ctx, tenantID, *in.IdempotencyKey)
			if rerr == nil && existing != nil {
				return existing, nil
			}
		}
		if isOrderNumberCollision(err) {
			return nil, ErrOrderNumberRetries
		}
		return nil, err
	}

	for _, it := range order.Items {
		s.invalidate(ctx, tenantID, it.StockRecordID)
	}
	if s.events != nil {
		evItems := make([]OrderItemEvent, 0, len(order.Items))
		for _, it := range order.Items {
			evItems = append(evItems, OrderItemEvent{
				StockRecordID: it.StockRecordID,
				SKU:           it.SKU,
				Quantity:      it.Quantity,
				PriceCents:    it.UnitPriceCents,
				LineTotal:     it.LineTotalCents,
			})
		}
		_ = s.events.PublishOrderCreated(ctx, OrderCreatedEvent{
			TenantID:    tenantID,
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			CustomerID:  order.CustomerID,
			Items:       evItems,
			TotalCents:  order.TotalCents,
			Currency:    order.CurrencyCode,
			CreatedAt:   order.CreatedAt,
		})
	}
	return order, nil
}

func (s *orderService) createOrderTx(ctx context.Context, tenantID uuid.UUID, in CreateOrderInput) (*models.Order, error) {
	var order *models.Order
	now := s.now()
	actor := actorOrNil(ctx)

	err := s.repo.WithTx(func(tx *repository.Repository) error {
		var (
			itemsDB  []models.OrderItem
			tracked  []bool
			subtotal int64
		)

		// первый проход только проверяет: до сверки сумм ничего не пишем
		for _, it := range in.Items {
			if it.Quantity <= 0 {
				return ErrInvalidQuantity
			}

			rec, err := tx.Stocks.GetForUpdate(ctx, tenantID, it.StockRecordID)
			if err != nil {
				return err
			}
			if rec == nil {
				return ErrStockNotFound
			}
			if !rec.IsActive {
				return ErrStockInactive
			}
			if it.ExpectedUnitPriceCents > 0 && it.ExpectedUnitPriceCents != rec.PriceCents {
				return &PriceMismatchError{
					StockRecordID: rec.ID,
					Expected:      it.ExpectedUnitPriceCents,
					Actual:        rec.PriceCents,
				}
			}

			if rec.TrackInventory {
				// чужие живые резервы не продаются; свои (по CartID) не мешают
				reserved, err := tx.Reservations.SumActiveExcludingCart(ctx, tenantID, rec.ID, in.CartID, now)
				if err != nil {
					return err
				}
				if available := rec.Quantity - reserved; it.Quantity > available {
					return newInsufficientStock(rec, it.Quantity, available)
				}
			}

			line := it.Quantity * rec.PriceCents
			subtotal += line
			tracked = append(tracked, rec.TrackInventory)
			itemsDB = append(itemsDB, models.OrderItem{
				StockRecordID:  rec.ID,
				ProductID:      rec.ProductID,
				VariantID:      rec.VariantID,
				SKU:            rec.SKU,
				Name:           rec.Name,
				Quantity:       it.Quantity,
				UnitPriceCents: rec.PriceCents,
				LineTotalCents: line,
				CreatedAt:      now,
			})
		}

		total := subtotal + in.TaxCents + in.ShippingCents - in.DiscountCents
		if total < 0 {
			total = 0
		}

		// суммы, которые видел клиент, обязаны сойтись с пересчитанными
		if in.SubtotalCents != 0 && in.SubtotalCents != subtotal {
			return ErrTotalsMismatch
		}
		if in.TotalCents != 0 && in.TotalCents != total {
			return ErrTotalsMismatch
		}

		for i, it := range itemsDB {
			if !tracked[i] {
				continue
			}
			if _, err := applyAdjustment(ctx, tx, tenantID, AdjustInput{
				StockRecordID: it.StockRecordID,
				Type:          AdjustRemove,
				Quantity:      it.Quantity,
				Reason:        models.ReasonOrderCreated,
			}, actor, now); err != nil {
				return err
			}
		}

		order = &models.Order{
			TenantID:        tenantID,
			CustomerID:      in.CustomerID,
			Status:          models.OrderStatusPending,
			PaymentStatus:   models.PaymentStatusUnpaid,
			SubtotalCents:   subtotal,
			TaxCents:        in.TaxCents,
			ShippingCents:   in.ShippingCents,
			DiscountCents:   in.DiscountCents,
			TotalCents:      total,
			CurrencyCode:    in.CurrencyCode,
			ShippingAddress: in.ShippingAddress,
			BillingAddress:  in.BillingAddress,
			PaymentMethod:   in.PaymentMethod,
			IdempotencyKey:  in.IdempotencyKey,
			CreatedAt:       now,
			UpdatedAt:       now,
		}

		num, err := s.generateOrderNumber(now)
		if err != nil {
			return err
		}
		order.OrderNumber = num
		if err := tx.Orders.Create(ctx, order); err != nil {
			return err
		}

		for i := range itemsDB {
			itemsDB[i].OrderID = order.ID
		}
		if err := tx.OrderItems.BulkCreate(ctx, itemsDB); err != nil {
			return err
		}
		order.Items = itemsDB

		// резервы корзины погашаются: списание уже прошло строкой выше
		if in.CartID != nil {
			active, err := tx.Reservations.ListActiveByCart(ctx, tenantID, *in.CartID, now)
			if err != nil {
				return err
			}
			for _, r := range active {
				if _, err := tx.Reservations.Consume(ctx, tenantID, r.ID, now); err != nil {
					return err
				}
			}
		}

		if err := tx.Customers.Ensure(ctx, tenantID, in.CustomerID); err != nil {
			return err
		}
		return tx.Customers.ApplyOrderStats(ctx, tenantID, in.CustomerID, total, now)
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *orderService) GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	tenantID, err := requireTenant(ctx)
	if err != nil {
		return nil, err
	}
	ord, err := s.repo.Orders.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if ord == nil {
		return nil, ErrOrderNotFound
	}
	return ord, nil
}

func (s *orderService) ListOrders(ctx context.Context, f OrderListFilter) ([]models.Order, int64, error) {
	tenantID, err := requireTenant(ctx)
	if err != nil {
		return nil, 0, err
	}

	ordersPtr, total, err := s.repo.Orders.List(ctx, repository.OrderListFilter{
		TenantID:   tenantID,
		CustomerID: f.CustomerID,
		Status:     f.Status,
		From:       f.From,
		To:         f.To,
		Limit:      f.Limit,
		Offset:     f.Offset,
	})
	if err != nil {
		return nil, 0, err
	}

	orders := make([]models.Order, len(ordersPtr))
	for i, o := range ordersPtr {
		orders[i] = *o
	}
	return orders, total, nil
}

func (s *orderService) UpdateStatus(ctx context.Context, id uuid.UUID, to models.OrderStatus) (*models.Order, error) {
	tenantID, err := requireTenant(ctx)
	if err != nil {
		return nil, err
	}

	ord, err := s.repo.Orders.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if ord == nil {
		return nil, ErrOrderNotFound
	}
	if ord.Status == to {
		return ord, nil
	}
	if !CanTransition(ord.Status, to) {
		return nil, &InvalidTransitionError{Entity: "order", From: string(ord.Status), To: string(to)}
	}

	switch to {
	case models.OrderStatusCanceled:
		if cancelRestocks[ord.Status] {
			return s.cancel(ctx, tenantID, ord, nil)
		}
	case models.OrderStatusRefunded:
		return s.refund(ctx, tenantID, ord, nil)
	case models.OrderStatusPending:
		if ord.Status == models.OrderStatusCanceled {
			return s.reactivate(ctx, tenantID, ord)
		}
	}

	now := s.now()
	upd := map[string]any{}
	if to == models.OrderStatusDelivered {
		upd["fulfilled_at"] = now
	}
	if to == models.OrderStatusCanceled {
		upd["canceled_at"] = now
	}
	ok, err := s.repo.Orders.UpdateStatus(ctx, ord.ID, ord.Status, to, upd)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &InvalidTransitionError{Entity: "order", From: string(ord.Status), To: string(to)}
	}
	return s.repo.Orders.GetByID(ctx, tenantID, id)
}

func (s *orderService) CancelOrder(ctx context.Context, id uuid.UUID, reason *string) (*models.Order, error) {
	tenantID, err := requireTenant(ctx)
	if err != nil {
		return nil, err
	}

	ord, err := s.repo.Orders.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if ord == nil {
		return nil, ErrOrderNotFound
	}
	// явная отмена принимается только пока товар не ушёл со склада
	if !cancelRestocks[ord.Status] {
		return nil, &InvalidTransitionError{Entity: "order", From: string(ord.Status), To: string(models.OrderStatusCanceled)}
	}
	return s.cancel(ctx, tenantID, ord, reason)
}

// cancel возвращает списанные остатки и фиксирует причину
func (s *orderService) cancel(ctx context.Context, tenantID uuid.UUID, ord *models.Order, reason *string) (*models.Order, error) {
	now := s.now()
	actor := actorOrNil(ctx)

	err := s.repo.WithTx(func(tx *repository.Repository) error {
		upd := map[string]any{"canceled_at": now}
		if reason != nil {
			upd["cancel_reason"] = sanitizeReason(reason)
		}
		ok, err := tx.Orders.UpdateStatus(ctx, ord.ID, ord.Status, models.OrderStatusCanceled, upd)
		if err != nil {
			return err
		}
		if !ok {
			return &InvalidTransitionError{Entity: "order", From: string(ord.Status), To: string(models.OrderStatusCanceled)}
		}

		return restockOrderItems(ctx, tx, tenantID, ord, models.ReasonOrderCanceled, actor, now)
	})
	if err != nil {
		return nil, err
	}

	for _, it := range ord.Items {
		s.invalidate(ctx, tenantID, it.StockRecordID)
	}
	if s.events != nil {
		_ = s.events.PublishOrderCanceled(ctx, OrderCanceledEvent{
			TenantID:   tenantID,
			OrderID:    ord.ID,
			Reason:     sanitizeReason(reason),
			CanceledAt: now,
		})
	}
	return s.repo.Orders.GetByID(ctx, tenantID, ord.ID)
}

func (s *orderService) RefundOrder(ctx context.Context, id uuid.UUID, reason *string) (*models.Order, error) {
	tenantID, err := requireTenant(ctx)
	if err != nil {
		return nil, err
	}

	ord, err := s.repo.Orders.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if ord == nil {
		return nil, ErrOrderNotFound
	}
	// явный возврат принимается после отгрузки; остальные рёбра графа
	// доступны через UpdateStatus
	if ord.Status != models.OrderStatusShipped && ord.Status != models.OrderStatusDelivered {
		return nil, &InvalidTransitionError{Entity: "order", From: string(ord.Status), To: string(models.OrderStatusRefunded)}
	}
	return s.refund(ctx, tenantID, ord, reason)
}

func (s *orderService) refund(ctx context.Context, tenantID uuid.UUID, ord *models.Order, reason *string) (*models.Order, error) {
	now := s.now()
	actor := actorOrNil(ctx)

	// отменённый заказ уже вернул остатки при отмене — второй раз не возвращаем
	restock := ord.Status != models.OrderStatusCanceled

	err := s.repo.WithTx(func(tx *repository.Repository) error {
		upd := map[string]any{"payment_status": models.PaymentStatusRefunded}
		if reason != nil {
			upd["cancel_reason"] = sanitizeReason(reason)
		}
		ok, err := tx.Orders.UpdateStatus(ctx, ord.ID, ord.Status, models.OrderStatusRefunded, upd)
		if err != nil {
			return err
		}
		if !ok {
			return &InvalidTransitionError{Entity: "order", From: string(ord.Status), To: string(models.OrderStatusRefunded)}
		}
		if !restock {
			return nil
		}
		return restockOrderItems(ctx, tx, tenantID, ord, models.ReasonOrderRefunded, actor, now)
	})
	if err != nil {
		return nil, err
	}

	for _, it := range ord.Items {
		s.invalidate(ctx, tenantID, it.StockRecordID)
	}
	if s.events != nil {
		_ = s.events.PublishOrderRefunded(ctx, OrderRefundedEvent{
			TenantID:   tenantID,
			OrderID:    ord.ID,
			Reason:     sanitizeReason(reason),
			RefundedAt: now,
		})
	}
	return s.repo.Orders.GetByID(ctx, tenantID, ord.ID)
}

// reactivate возвращает отменённый заказ в PENDING с повторным списанием остатков
func (s *orderService) reactivate(ctx context.Context, tenantID uuid.UUID, ord *models.Order) (*models.Order, error) {
	now := s.now()
	actor := actorOrNil(ctx)

	err := s.repo.WithTx(func(tx *repository.Repository) error {
		for _, it := range ord.Items {
			rec, err := tx.Stocks.GetForUpdate(ctx, tenantID, it.StockRecordID)
			if err != nil {
				return err
			}
			if rec == nil {
				return ErrStockNotFound
			}
			if !rec.TrackInventory {
				continue
			}
			reserved, err := tx.Reservations.SumActiveExcludingCart(ctx, tenantID, rec.ID, nil, now)
			if err != nil {
				return err
			}
			if available := rec.Quantity - reserved; it.Quantity > available {
				return newInsufficientStock(rec, it.Quantity, available)
			}
			if _, err := applyAdjustment(ctx, tx, tenantID, AdjustInput{
				StockRecordID: it.StockRecordID,
				Type:          AdjustRemove,
				Quantity:      it.Quantity,
				Reason:        models.ReasonOrderCreated,
				OrderID:       &ord.ID,
			}, actor, now); err != nil {
				return err
			}
		}

		upd := map[string]any{"canceled_at": nil, "cancel_reason": nil}
		ok, err := tx.Orders.UpdateStatus(ctx, ord.ID, models.OrderStatusCanceled, models.OrderStatusPending, upd)
		if err != nil {
			return err
		}
		if !ok {
			return &InvalidTransitionError{Entity: "order", From: string(ord.Status), To: string(models.OrderStatusPending)}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, it := range ord.Items {
		s.invalidate(ctx, tenantID, it.StockRecordID)
	}
	return s.repo.Orders.GetByID(ctx, tenantID, ord.ID)
}

// restockOrderItems возвращает на склад списанные под заказ позиции.
// Удалённые и неотслеживаемые записи пропускаются.
func restockOrderItems(ctx context.Context, tx *repository.Repository, tenantID uuid.UUID, ord *models.Order, reason models.LedgerReason, actor *uuid.UUID, now time.Time) error {
	for _, it := range ord.Items {
		rec, err := tx.Stocks.GetForUpdate(ctx, tenantID, it.StockRecordID)
		if err != nil {
			return err
		}
		if rec == nil || !rec.TrackInventory {
			continue
		}
		if _, err := applyAdjustment(ctx, tx, tenantID, AdjustInput{
			StockRecordID: it.StockRecordID,
			Type:          AdjustAdd,
			Quantity:      it.Quantity,
			Reason:        reason,
			OrderID:       &ord.ID,
		}, actor, now); err != nil {
			return err
		}
	}
	return nil
}

func sanitizeReason(reason *string) string {
	if reason == nil {
		return ""
	}
	r := *reason
	if len(r) > 500 {
		r = r[:500]
	}
	return r
}

func (s *orderService) invalidate(ctx context.Context, tenantID, stockRecordID uuid.UUID) {
	if s.cache != nil {
		_ = s.cache.InvalidateStock(ctx, tenantID, stockRecordID)
	}
}
