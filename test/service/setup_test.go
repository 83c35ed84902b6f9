package service_test

import (
	"context"
	"testing"
	"time"

	"commerce-core/internal/migrate"
	"commerce-core/internal/models"
	"commerce-core/internal/repository"
	"commerce-core/internal/service"
	"commerce-core/pkg/testutil"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type env struct {
	repos        *repository.Repository
	inventory    service.InventoryService
	reservations service.ReservationService
	orders       service.OrderService
	payments     service.PaymentService

	tenantID uuid.UUID
	ctx      context.Context
}

func setupEnv(t *testing.T) *env {
	t.Helper()
	db := testutil.SetupTestPostgres(t)
	if err := migrate.MigrateCommerceDB(context.Background(), db, zap.NewNop(), migrate.DefaultMigrateOptions()); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	repos := repository.New(db)
	tenantID := uuid.New()

	return &env{
		repos:     repos,
		inventory: service.NewInventoryService(repos, nil, nil),
		reservations: service.NewReservationService(repos, nil, service.ReservationPolicy{
			DefaultTTL:   15 * time.Minute,
			MaxTTL:       60 * time.Minute,
			MaxExtension: 15 * time.Minute,
		}),
		orders:   service.NewOrderService(repos, nil, nil),
		payments: service.NewPaymentService(repos),
		tenantID: tenantID,
		ctx:      service.WithTenantID(context.Background(), tenantID),
	}
}

func (e *env) mustCreateStock(t *testing.T, sku string, priceCents, qty int64) *models.StockRecord {
	t.Helper()
	rec, err := e.inventory.CreateStockRecord(e.ctx, service.CreateStockInput{
		ProductID:         uuid.New(),
		SKU:               sku,
		Name:              "Item " + sku,
		PriceCents:        priceCents,
		Quantity:          qty,
		LowStockThreshold: 2,
		TrackInventory:    true,
	})
	if err != nil {
		t.Fatalf("CreateStockRecord %s: %v", sku, err)
	}
	return rec
}
