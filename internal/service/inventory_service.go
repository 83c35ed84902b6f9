package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"commerce-core/internal/models"
	"commerce-core/internal/repository"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const maxBulkAdjustItems = 1000

// StockCache — снапшот остатков; реализация живёт в internal/cache
type StockCache interface {
	GetStock(ctx context.Context, tenantID, stockRecordID uuid.UUID) (*StockView, bool, error)
	SetStock(ctx context.Context, tenantID uuid.UUID, view *StockView) error
	InvalidateStock(ctx context.Context, tenantID, stockRecordID uuid.UUID) error
}

type inventoryService struct {
	repo   *repository.Repository
	cache  StockCache
	events EventBus
	now    func() time.Time
}

func NewInventoryService(repo *repository.Repository, cache StockCache, events EventBus) InventoryService {
	return &inventoryService{
		repo:   repo,
		cache:  cache,
		events: events,
		now:    time.Now,
	}
}

func (s *inventoryService) CreateStockRecord(ctx context.Context, in CreateStockInput) (*models.StockRecord, error) {
	tenantID, err := requireTenant(ctx)
	if err != nil {
		return nil, err
	}
	if in.Quantity < 0 || in.LowStockThreshold < 0 {
		return nil, ErrInvalidQuantity
	}

	now := s.now()
	rec := &models.StockRecord{
		TenantID:          tenantID,
		ProductID:         in.ProductID,
		VariantID:         in.VariantID,
		SKU:               strings.TrimSpace(in.SKU),
		Name:              strings.TrimSpace(in.Name),
		PriceCents:        in.PriceCents,
		IsActive:          true,
		Quantity:          in.Quantity,
		LowStockThreshold: in.LowStockThreshold,
		TrackInventory:    in.TrackInventory,
		Status:            models.ComputeStockStatus(in.Quantity, in.LowStockThreshold),
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	err = s.repo.WithTx(func(tx *repository.Repository) error {
		if err := tx.Stocks.Create(ctx, rec); err != nil {
			return err
		}
		if in.Quantity == 0 {
			return nil
		}
		// стартовый остаток тоже проходит через журнал
		return tx.Ledger.Append(ctx, &models.StockLedgerEntry{
			TenantID:      tenantID,
			StockRecordID: rec.ID,
			PreviousQty:   0,
			NewQty:        in.Quantity,
			ChangeQty:     in.Quantity,
			Reason:        models.ReasonRestock,
			ActorID:       actorOrNil(ctx),
			Note:          "initial stock",
			CreatedAt:     now,
		})
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// applyAdjustment — ядро движка корректировок; вызывается только внутри WithTx.
// Строка блокируется FOR UPDATE, запись в журнал идёт в той же транзакции.
func applyAdjustment(ctx context.Context, tx *repository.Repository, tenantID uuid.UUID, in AdjustInput, actorID *uuid.UUID, now time.Time) (*models.StockRecord, error) {
	if !in.Reason.Valid() {
		return nil, ErrInvalidReason
	}
	switch in.Type {
	case AdjustAdd, AdjustRemove:
		if in.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
	case AdjustSet:
		if in.Quantity < 0 {
			return nil, ErrInvalidQuantity
		}
	default:
		return nil, ErrInvalidQuantity
	}

	id := in.StockRecordID
	if id == uuid.Nil {
		if in.SKU == "" {
			return nil, ErrStockNotFound
		}
		bySKU, err := tx.Stocks.GetBySKU(ctx, tenantID, in.SKU)
		if err != nil {
			return nil, err
		}
		if bySKU == nil {
			return nil, ErrStockNotFound
		}
		id = bySKU.ID
	}

	rec, err := tx.Stocks.GetForUpdate(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrStockNotFound
	}

	prev := rec.Quantity
	var newQty int64
	switch in.Type {
	case AdjustAdd:
		newQty = prev + in.Quantity
	case AdjustRemove:
		newQty = prev - in.Quantity
		if newQty < 0 {
			return nil, newInsufficientStock(rec, in.Quantity, prev)
		}
	case AdjustSet:
		newQty = in.Quantity
	}

	if newQty == prev {
		return rec, nil
	}

	status := models.ComputeStockStatus(newQty, rec.LowStockThreshold)
	if err := tx.Stocks.UpdateQuantity(ctx, rec.ID, newQty, status); err != nil {
		return nil, err
	}

	var meta datatypes.JSON
	if len(in.Metadata) > 0 {
		b, err := json.Marshal(in.Metadata)
		if err != nil {
			return nil, err
		}
		meta = datatypes.JSON(b)
	}

	entry := &models.StockLedgerEntry{
		TenantID:      tenantID,
		StockRecordID: rec.ID,
		PreviousQty:   prev,
		NewQty:        newQty,
		ChangeQty:     newQty - prev,
		Reason:        in.Reason,
		OrderID:       in.OrderID,
		ActorID:       actorID,
		Note:          strings.TrimSpace(in.Note),
		Metadata:      meta,
		CreatedAt:     now,
	}
	if err := tx.Ledger.Append(ctx, entry); err != nil {
		return nil, err
	}

	rec.Quantity = newQty
	rec.Status = status
	rec.UpdatedAt = now
	return rec, nil
}

func (s *inventoryService) AdjustStock(ctx context.Context, in AdjustInput) (*models.StockRecord, error) {
	tenantID, err := requireTenant(ctx)
	if err != nil {
		return nil, err
	}

	var rec *models.StockRecord
	now := s.now()
	err = s.repo.WithTx(func(tx *repository.Repository) error {
		rec, err = applyAdjustment(ctx, tx, tenantID, in, actorOrNil(ctx), now)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, tenantID, rec.ID)
	if s.events != nil {
		_ = s.events.PublishStockAdjusted(ctx, StockAdjustedEvent{
			TenantID:      tenantID,
			StockRecordID: rec.ID,
			NewQty:        rec.Quantity,
			Reason:        string(in.Reason),
			AdjustedAt:    now,
		})
	}
	return rec, nil
}

func (s *inventoryService) BulkAdjust(ctx context.Context, items []AdjustInput) (*BulkAdjustReport, error) {
	tenantID, err := requireTenant(ctx)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrEmptyItems
	}
	if len(items) > maxBulkAdjustItems {
		return nil, ErrBulkTooLarge
	}

	report := &BulkAdjustReport{
		Total:   len(items),
		Results: make([]BulkAdjustResult, 0, len(items)),
	}

	actor := actorOrNil(ctx)
	for _, in := range items {
		// каждая позиция — своя транзакция: сбой одной не откатывает остальные
		var rec *models.StockRecord
		now := s.now()
		err := s.repo.WithTx(func(tx *repository.Repository) error {
			var err error
			rec, err = applyAdjustment(ctx, tx, tenantID, in, actor, now)
			return err
		})
		if err != nil {
			report.Failed++
			report.Results = append(report.Results, BulkAdjustResult{
				StockRecordID: in.StockRecordID,
				SKU:           in.SKU,
				OK:            false,
				Error:         bulkErrorMessage(err),
			})
			continue
		}
		report.Succeeded++
		report.Results = append(report.Results, BulkAdjustResult{
			StockRecordID: rec.ID,
			SKU:           in.SKU,
			OK:            true,
			NewQty:        rec.Quantity,
		})
		s.invalidate(ctx, tenantID, rec.ID)
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

func bulkErrorMessage(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientStock):
		return "Insufficient stock"
	case errors.Is(err, ErrStockNotFound):
		return "Stock record not found"
	case errors.Is(err, ErrInvalidQuantity):
		return "Invalid quantity"
	case errors.Is(err, ErrInvalidReason):
		return "Unknown adjustment reason"
	default:
		return err.Error()
	}
}

func (s *inventoryService) GetStock(ctx context.Context, stockRecordID uuid.UUID) (*StockView, error) {
	tenantID, err := requireTenant(ctx)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if view, ok, err := s.cache.GetStock(ctx, tenantID, stockRecordID); err == nil && ok {
			return view, nil
		}
	}

	rec, err := s.repo.Stocks.Get(ctx, tenantID, stockRecordID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrStockNotFound
	}

	reserved, err := s.repo.Reservations.SumActiveByStockRecord(ctx, tenantID, rec.ID, s.now())
	if err != nil {
		return nil, err
	}

	view := &StockView{
		Record:      rec,
		ReservedQty: reserved,
		Available:   rec.Quantity - reserved,
	}
	if !rec.TrackInventory {
		view.Available = rec.Quantity
	}

	if s.cache != nil {
		_ = s.cache.SetStock(ctx, tenantID, view)
	}
	return view, nil
}

func (s *inventoryService) ListLedger(ctx context.Context, f LedgerFilter) ([]*models.StockLedgerEntry, int64, error) {
	tenantID, err := requireTenant(ctx)
	if err != nil {
		return nil, 0, err
	}
	return s.repo.Ledger.List(ctx, repository.LedgerListFilter{
		TenantID:      tenantID,
		StockRecordID: f.StockRecordID,
		Reason:        f.Reason,
		From:          f.From,
		To:            f.To,
		Limit:         f.Limit,
		Offset:        f.Offset,
	})
}

func (s *inventoryService) ReplayLedger(ctx context.Context, stockRecordID uuid.UUID) (*ReplayResult, error) {
	tenantID, err := requireTenant(ctx)
	if err != nil {
		return nil, err
	}

	rec, err := s.repo.Stocks.Get(ctx, tenantID, stockRecordID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrStockNotFound
	}

	entries, err := s.repo.Ledger.ListByStockRecord(ctx, tenantID, stockRecordID)
	if err != nil {
		return nil, err
	}

	res := &ReplayResult{
		StockRecordID: stockRecordID,
		Entries:       len(entries),
		StoredQty:     rec.Quantity,
	}

	var qty int64
	for i, e := range entries {
		if e.NewQty-e.PreviousQty != e.ChangeQty {
			return res, ErrLedgerInconsistency
		}
		if i > 0 && e.PreviousQty != entries[i-1].NewQty {
			return res, ErrLedgerInconsistency
		}
		qty = e.NewQty
	}

	res.ReplayedQty = qty
	res.Consistent = qty == rec.Quantity
	if !res.Consistent {
		return res, ErrLedgerInconsistency
	}
	return res, nil
}

func (s *inventoryService) invalidate(ctx context.Context, tenantID, stockRecordID uuid.UUID) {
	if s.cache != nil {
		_ = s.cache.InvalidateStock(ctx, tenantID, stockRecordID)
	}
}
