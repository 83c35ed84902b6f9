package service

import (
	"context"
	"time"

	"commerce-core/internal/models"

	"github.com/google/uuid"
)

type AdjustmentType string

const (
	AdjustAdd    AdjustmentType = "ADD"
	AdjustRemove AdjustmentType = "REMOVE"
	AdjustSet    AdjustmentType = "SET"
)

type CreateStockInput struct {
	ProductID         uuid.UUID
	VariantID         *uuid.UUID
	SKU               string
	Name              string
	PriceCents        int64
	Quantity          int64
	LowStockThreshold int64
	TrackInventory    bool
}

// AdjustInput адресует запись либо по StockRecordID, либо по SKU
type AdjustInput struct {
	StockRecordID uuid.UUID
	SKU           string
	Type          AdjustmentType
	Quantity      int64
	Reason        models.LedgerReason
	OrderID       *uuid.UUID
	Note          string
	Metadata      map[string]any
}

type BulkAdjustStatus string

const (
	BulkAllSuccess BulkAdjustStatus = "all_success"
	BulkPartial    BulkAdjustStatus = "partial"
	BulkAllFailed  BulkAdjustStatus = "all_failed"
)

type BulkAdjustResult struct {
	StockRecordID uuid.UUID `json:"stock_record_id"`
	SKU           string    `json:"sku,omitempty"`
	OK            bool      `json:"ok"`
	NewQty        int64     `json:"new_qty,omitempty"`
	Error         string    `json:"error,omitempty"`
}

type BulkAdjustReport struct {
	Total     int                `json:"total"`
	Succeeded int                `json:"succeeded"`
	Failed    int                `json:"failed"`
	Status    BulkAdjustStatus   `json:"status"`
	Results   []BulkAdjustResult `json:"results"`
}

type StockView struct {
	Record      *models.StockRecord
	ReservedQty int64
	Available   int64
}

type LedgerFilter struct {
	StockRecordID *uuid.UUID
	Reason        *models.LedgerReason
	From          *time.Time
	To            *time.Time
	Limit         int
	Offset        int
}

type ReplayResult struct {
	StockRecordID uuid.UUID
	Entries       int
	ReplayedQty   int64
	StoredQty     int64
	Consistent    bool
}

type InventoryService interface {
	CreateStockRecord(ctx context.Context, in CreateStockInput) (*models.StockRecord, error)
	AdjustStock(ctx context.Context, in AdjustInput) (*models.StockRecord, error)
	BulkAdjust(ctx context.Context, items []AdjustInput) (*BulkAdjustReport, error)
	GetStock(ctx context.Context, stockRecordID uuid.UUID) (*StockView, error)
	ListLedger(ctx context.Context, f LedgerFilter) ([]*models.StockLedgerEntry, int64, error)
	ReplayLedger(ctx context.Context, stockRecordID uuid.UUID) (*ReplayResult, error)
}
