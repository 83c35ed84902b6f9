package service_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"commerce-core/internal/models"
	"commerce-core/internal/service"

	"github.com/google/uuid"
)

func TestCreateReservations_NoOversell(t *testing.T) {
	e := setupEnv(t)
	rec := e.mustCreateStock(t, "SKU-200", 1000, 5)

	first, err := e.reservations.CreateReservations(e.ctx, service.CreateReservationsInput{
		Items: []service.ReserveItem{{StockRecordID: rec.ID, Quantity: 3}},
	})
	if err != nil {
		t.Fatalf("CreateReservations: %v", err)
	}
	if first.Succeeded != 1 {
		t.Fatalf("expected first reservation ok: %+v", first)
	}

	// осталось доступно 2, просим 3
	second, err := e.reservations.CreateReservations(e.ctx, service.CreateReservationsInput{
		Items: []service.ReserveItem{{StockRecordID: rec.ID, Quantity: 3}},
	})
	if err != nil {
		t.Fatalf("CreateReservations second: %v", err)
	}
	if second.Failed != 1 || second.Results[0].Error != "Insufficient stock" {
		t.Fatalf("expected oversell rejected: %+v", second)
	}

	// on-hand не изменился: резерв не списывает
	view, _ := e.inventory.GetStock(e.ctx, rec.ID)
	if view.Record.Quantity != 5 || view.Available != 2 {
		t.Fatalf("expected qty 5 available 2, got qty %d available %d", view.Record.Quantity, view.Available)
	}
}

func TestCreateReservations_Concurrent(t *testing.T) {
	e := setupEnv(t)
	rec := e.mustCreateStock(t, "SKU-201", 1000, 5)

	const workers = 10
	var wg sync.WaitGroup
	results := make([]bool, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			report, err := e.reservations.CreateReservations(e.ctx, service.CreateReservationsInput{
				Items: []service.ReserveItem{{StockRecordID: rec.ID, Quantity: 1}},
			})
			if err == nil && report.Succeeded == 1 {
				results[i] = true
			}
		}(i)
	}
	wg.Wait()

	var won int
	for _, ok := range results {
		if ok {
			won++
		}
	}
	if won != 5 {
		t.Fatalf("expected exactly 5 reservations to win, got %d", won)
	}

	view, _ := e.inventory.GetStock(e.ctx, rec.ID)
	if view.Available != 0 {
		t.Fatalf("expected 0 available, got %d", view.Available)
	}
}

func TestReleaseReservation_Idempotent(t *testing.T) {
	e := setupEnv(t)
	rec := e.mustCreateStock(t, "SKU-210", 1000, 5)

	report, err := e.reservations.CreateReservations(e.ctx, service.CreateReservationsInput{
		Items: []service.ReserveItem{{StockRecordID: rec.ID, Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("CreateReservations: %v", err)
	}
	resID := *report.Results[0].ReservationID

	ok, err := e.reservations.ReleaseReservation(e.ctx, resID)
	if err != nil {
		t.Fatalf("ReleaseReservation: %v", err)
	}
	if !ok {
		t.Fatal("expected first release true")
	}

	ok, err = e.reservations.ReleaseReservation(e.ctx, resID)
	if err != nil {
		t.Fatalf("ReleaseReservation second: %v", err)
	}
	if ok {
		t.Fatal("expected second release false")
	}

	view, _ := e.inventory.GetStock(e.ctx, rec.ID)
	if view.Available != 5 {
		t.Fatalf("expected availability restored to 5, got %d", view.Available)
	}
}

func TestExtendReservation_OnceAndClamped(t *testing.T) {
	e := setupEnv(t)
	rec := e.mustCreateStock(t, "SKU-220", 1000, 5)

	report, err := e.reservations.CreateReservations(e.ctx, service.CreateReservationsInput{
		Items:      []service.ReserveItem{{StockRecordID: rec.ID, Quantity: 1}},
		TTLMinutes: 10,
	})
	if err != nil {
		t.Fatalf("CreateReservations: %v", err)
	}
	resID := *report.Results[0].ReservationID
	before := *report.Results[0].ExpiresAt

	// просим час, политика режет до 15 минут
	res, err := e.reservations.ExtendReservation(e.ctx, resID, 60)
	if err != nil {
		t.Fatalf("ExtendReservation: %v", err)
	}
	got := res.ExpiresAt.Sub(before)
	if got != 15*time.Minute {
		t.Fatalf("expected extension clamped to 15m, got %v", got)
	}

	if _, err := e.reservations.ExtendReservation(e.ctx, resID, 5); !errors.Is(err, service.ErrReservationExtended) {
		t.Fatalf("expected second extension rejected, got %v", err)
	}
}

func TestReleaseCartReservations(t *testing.T) {
	e := setupEnv(t)
	a := e.mustCreateStock(t, "SKU-230", 1000, 5)
	b := e.mustCreateStock(t, "SKU-231", 1000, 5)
	cartID := uuid.New()

	if _, err := e.reservations.CreateReservations(e.ctx, service.CreateReservationsInput{
		Items: []service.ReserveItem{
			{StockRecordID: a.ID, Quantity: 2},
			{StockRecordID: b.ID, Quantity: 3},
		},
		CartID: &cartID,
	}); err != nil {
		t.Fatalf("CreateReservations: %v", err)
	}

	released, err := e.reservations.ReleaseCartReservations(e.ctx, cartID)
	if err != nil {
		t.Fatalf("ReleaseCartReservations: %v", err)
	}
	if released != 2 {
		t.Fatalf("expected 2 released, got %d", released)
	}

	va, _ := e.inventory.GetStock(e.ctx, a.ID)
	vb, _ := e.inventory.GetStock(e.ctx, b.ID)
	if va.Available != 5 || vb.Available != 5 {
		t.Fatalf("availability not restored: %d %d", va.Available, vb.Available)
	}
}

func TestConsumeCartReservations(t *testing.T) {
	e := setupEnv(t)
	rec := e.mustCreateStock(t, "SKU-240", 1000, 5)
	cartID := uuid.New()

	if _, err := e.reservations.CreateReservations(e.ctx, service.CreateReservationsInput{
		Items:  []service.ReserveItem{{StockRecordID: rec.ID, Quantity: 2}},
		CartID: &cartID,
	}); err != nil {
		t.Fatalf("CreateReservations: %v", err)
	}

	consumed, err := e.reservations.ConsumeCartReservations(e.ctx, cartID)
	if err != nil {
		t.Fatalf("ConsumeCartReservations: %v", err)
	}
	if consumed != 1 {
		t.Fatalf("expected 1 consumed, got %d", consumed)
	}

	// резерв погашен, остаток списан
	view, _ := e.inventory.GetStock(e.ctx, rec.ID)
	if view.Record.Quantity != 3 || view.Available != 3 {
		t.Fatalf("expected qty 3 available 3, got qty %d available %d", view.Record.Quantity, view.Available)
	}

	reason := models.ReasonReservationUsed
	entries, total, err := e.inventory.ListLedger(e.ctx, service.LedgerFilter{
		StockRecordID: &rec.ID,
		Reason:        &reason,
	})
	if err != nil {
		t.Fatalf("ListLedger: %v", err)
	}
	if total != 1 || entries[0].ChangeQty != -2 {
		t.Fatalf("expected consumption ledger entry, got total=%d", total)
	}

	// повторное потребление пустой корзины
	if _, err := e.reservations.ConsumeCartReservations(e.ctx, cartID); !errors.Is(err, service.ErrCartReservationMissing) {
		t.Fatalf("expected missing cart reservations, got %v", err)
	}
}

func TestSweeper_MarksExpired(t *testing.T) {
	e := setupEnv(t)
	rec := e.mustCreateStock(t, "SKU-250", 1000, 5)

	if err := e.repos.Reservations.Create(e.ctx, &models.Reservation{
		TenantID:      e.tenantID,
		StockRecordID: rec.ID,
		Quantity:      2,
		Status:        models.ReservationActive,
		ExpiresAt:     time.Now().Add(-time.Minute),
	}); err != nil {
		t.Fatalf("insert expired reservation: %v", err)
	}

	n, err := e.repos.Reservations.ExpireDue(e.ctx, time.Now(), 100)
	if err != nil {
		t.Fatalf("ExpireDue: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 swept, got %d", n)
	}
}
