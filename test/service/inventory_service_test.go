package service_test

import (
	"errors"
	"testing"
	"time"

	"commerce-core/internal/models"
	"commerce-core/internal/service"
)

func TestAdjustStock_LedgerReplay(t *testing.T) {
	e := setupEnv(t)
	rec := e.mustCreateStock(t, "SKU-100", 1000, 10)

	steps := []service.AdjustInput{
		{StockRecordID: rec.ID, Type: service.AdjustAdd, Quantity: 5, Reason: models.ReasonRestock},
		{StockRecordID: rec.ID, Type: service.AdjustRemove, Quantity: 7, Reason: models.ReasonSale},
		{StockRecordID: rec.ID, Type: service.AdjustSet, Quantity: 20, Reason: models.ReasonManualAdjustment},
		{StockRecordID: rec.ID, Type: service.AdjustRemove, Quantity: 4, Reason: models.ReasonDamage},
	}
	for i, in := range steps {
		if _, err := e.inventory.AdjustStock(e.ctx, in); err != nil {
			t.Fatalf("AdjustStock step %d: %v", i, err)
		}
	}

	// 10 +5 -7 =8, set 20, -4 = 16
	view, err := e.inventory.GetStock(e.ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetStock: %v", err)
	}
	if view.Record.Quantity != 16 {
		t.Fatalf("expected quantity 16, got %d", view.Record.Quantity)
	}

	res, err := e.inventory.ReplayLedger(e.ctx, rec.ID)
	if err != nil {
		t.Fatalf("ReplayLedger: %v", err)
	}
	if !res.Consistent || res.ReplayedQty != 16 {
		t.Fatalf("replay mismatch: %+v", res)
	}
	// стартовый остаток + 4 корректировки
	if res.Entries != 5 {
		t.Fatalf("expected 5 ledger entries, got %d", res.Entries)
	}
}

func TestAdjustStock_CannotGoNegative(t *testing.T) {
	e := setupEnv(t)
	rec := e.mustCreateStock(t, "SKU-101", 1000, 3)

	_, err := e.inventory.AdjustStock(e.ctx, service.AdjustInput{
		StockRecordID: rec.ID,
		Type:          service.AdjustRemove,
		Quantity:      5,
		Reason:        models.ReasonSale,
	})
	if !errors.Is(err, service.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}

	var insuff *service.InsufficientStockError
	if !errors.As(err, &insuff) {
		t.Fatalf("expected typed error, got %T", err)
	}
	if insuff.Requested != 5 || insuff.Available != 3 {
		t.Fatalf("details mismatch: %+v", insuff)
	}

	// количество не тронуто, лишних записей в журнале нет
	view, _ := e.inventory.GetStock(e.ctx, rec.ID)
	if view.Record.Quantity != 3 {
		t.Fatalf("quantity changed after failed adjustment: %d", view.Record.Quantity)
	}
}

func TestAdjustStock_StatusFollowsQuantity(t *testing.T) {
	e := setupEnv(t)
	rec := e.mustCreateStock(t, "SKU-102", 1000, 10)

	cases := []struct {
		set  int64
		want models.StockStatus
	}{
		{2, models.StockStatusLowStock},
		{0, models.StockStatusOutOfStock},
		{10, models.StockStatusInStock},
	}
	for _, c := range cases {
		got, err := e.inventory.AdjustStock(e.ctx, service.AdjustInput{
			StockRecordID: rec.ID,
			Type:          service.AdjustSet,
			Quantity:      c.set,
			Reason:        models.ReasonManualAdjustment,
		})
		if err != nil {
			t.Fatalf("AdjustStock set %d: %v", c.set, err)
		}
		if got.Status != c.want {
			t.Fatalf("set %d: expected %s, got %s", c.set, c.want, got.Status)
		}
	}
}

func TestBulkAdjust_PartialFailure(t *testing.T) {
	e := setupEnv(t)
	a := e.mustCreateStock(t, "SKU-110", 1000, 10)
	b := e.mustCreateStock(t, "SKU-111", 1000, 10)
	c := e.mustCreateStock(t, "SKU-112", 1000, 2)

	report, err := e.inventory.BulkAdjust(e.ctx, []service.AdjustInput{
		{StockRecordID: a.ID, Type: service.AdjustAdd, Quantity: 5, Reason: models.ReasonRestock},
		{StockRecordID: b.ID, Type: service.AdjustRemove, Quantity: 3, Reason: models.ReasonSale},
		{StockRecordID: c.ID, Type: service.AdjustRemove, Quantity: 5, Reason: models.ReasonSale},
	})
	if err != nil {
		t.Fatalf("BulkAdjust: %v", err)
	}

	if report.Total != 3 || report.Succeeded != 2 || report.Failed != 1 {
		t.Fatalf("report mismatch: %+v", report)
	}
	if report.Status != service.BulkPartial {
		t.Fatalf("expected partial, got %s", report.Status)
	}
	last := report.Results[2]
	if last.OK || last.Error != "Insufficient stock" {
		t.Fatalf("expected insufficient stock failure, got %+v", last)
	}

	// успешные позиции применены, провальная — нет
	va, _ := e.inventory.GetStock(e.ctx, a.ID)
	vb, _ := e.inventory.GetStock(e.ctx, b.ID)
	vc, _ := e.inventory.GetStock(e.ctx, c.ID)
	if va.Record.Quantity != 15 || vb.Record.Quantity != 7 || vc.Record.Quantity != 2 {
		t.Fatalf("quantities mismatch: %d %d %d", va.Record.Quantity, vb.Record.Quantity, vc.Record.Quantity)
	}
}

func TestBulkAdjust_ResolveBySKU(t *testing.T) {
	e := setupEnv(t)
	rec := e.mustCreateStock(t, "SKU-115", 1000, 10)

	report, err := e.inventory.BulkAdjust(e.ctx, []service.AdjustInput{
		{SKU: "SKU-115", Type: service.AdjustAdd, Quantity: 5, Reason: models.ReasonRestock},
		{SKU: "SKU-MISSING", Type: service.AdjustAdd, Quantity: 1, Reason: models.ReasonRestock},
	})
	if err != nil {
		t.Fatalf("BulkAdjust: %v", err)
	}

	if report.Succeeded != 1 || report.Failed != 1 {
		t.Fatalf("report mismatch: %+v", report)
	}
	if report.Results[0].StockRecordID != rec.ID || report.Results[0].NewQty != 15 {
		t.Fatalf("sku resolution mismatch: %+v", report.Results[0])
	}
	if report.Results[1].Error != "Stock record not found" {
		t.Fatalf("expected not found for unknown sku, got %+v", report.Results[1])
	}
}

func TestBulkAdjust_TooLarge(t *testing.T) {
	e := setupEnv(t)
	rec := e.mustCreateStock(t, "SKU-120", 1000, 10)

	items := make([]service.AdjustInput, 1001)
	for i := range items {
		items[i] = service.AdjustInput{StockRecordID: rec.ID, Type: service.AdjustAdd, Quantity: 1, Reason: models.ReasonRestock}
	}
	if _, err := e.inventory.BulkAdjust(e.ctx, items); !errors.Is(err, service.ErrBulkTooLarge) {
		t.Fatalf("expected batch limit error, got %v", err)
	}
}

func TestGetStock_AvailabilityExcludesExpired(t *testing.T) {
	e := setupEnv(t)
	rec := e.mustCreateStock(t, "SKU-130", 1000, 10)

	// живой резерв уменьшает доступность
	if _, err := e.reservations.CreateReservations(e.ctx, service.CreateReservationsInput{
		Items: []service.ReserveItem{{StockRecordID: rec.ID, Quantity: 4}},
	}); err != nil {
		t.Fatalf("CreateReservations: %v", err)
	}

	// протухший ACTIVE вставляем напрямую: он не должен считаться
	if err := e.repos.Reservations.Create(e.ctx, &models.Reservation{
		TenantID:      e.tenantID,
		StockRecordID: rec.ID,
		Quantity:      5,
		Status:        models.ReservationActive,
		ExpiresAt:     time.Now().Add(-time.Minute),
	}); err != nil {
		t.Fatalf("insert expired reservation: %v", err)
	}

	view, err := e.inventory.GetStock(e.ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetStock: %v", err)
	}
	if view.ReservedQty != 4 || view.Available != 6 {
		t.Fatalf("availability mismatch: reserved=%d available=%d", view.ReservedQty, view.Available)
	}
}

func TestListLedger_FilterByReason(t *testing.T) {
	e := setupEnv(t)
	rec := e.mustCreateStock(t, "SKU-140", 1000, 10)

	for _, in := range []service.AdjustInput{
		{StockRecordID: rec.ID, Type: service.AdjustAdd, Quantity: 1, Reason: models.ReasonRestock},
		{StockRecordID: rec.ID, Type: service.AdjustRemove, Quantity: 2, Reason: models.ReasonSale},
		{StockRecordID: rec.ID, Type: service.AdjustRemove, Quantity: 1, Reason: models.ReasonDamage},
	} {
		if _, err := e.inventory.AdjustStock(e.ctx, in); err != nil {
			t.Fatalf("AdjustStock: %v", err)
		}
	}

	reason := models.ReasonSale
	entries, total, err := e.inventory.ListLedger(e.ctx, service.LedgerFilter{
		StockRecordID: &rec.ID,
		Reason:        &reason,
	})
	if err != nil {
		t.Fatalf("ListLedger: %v", err)
	}
	if total != 1 || len(entries) != 1 || entries[0].ChangeQty != -2 {
		t.Fatalf("filter mismatch: total=%d entries=%+v", total, entries)
	}
}
