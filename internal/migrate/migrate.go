package migrate

import (
	"context"

	"commerce-core/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type MigrateOptions struct {
	CreateExtensions       bool // pgcrypto
	CreateChecks           bool // CHECK-constraint'ы
	CreateIndexes          bool // индексы и UNIQUE
	CreateFKsViaSQL        bool // FK через Exec после AutoMigrate
	CreateUpdatedAtTrigger bool // триггеры updated_at
	CreateLedgerGuard      bool // запрет UPDATE/DELETE по журналу
}

func DefaultMigrateOptions() MigrateOptions {
	return MigrateOptions{
		CreateExtensions:       true,
		CreateChecks:           true,
		CreateIndexes:          true,
		CreateFKsViaSQL:        true,
		CreateUpdatedAtTrigger: true,
		CreateLedgerGuard:      true,
	}
}

func MigrateCommerceDB(ctx context.Context, db *gorm.DB, log *zap.Logger, opt MigrateOptions) error {
	log.Info("Начало миграции базы commerce-core")

	// Расширения
	if opt.CreateExtensions {
		log.Info("Создание расширений PostgreSQL")
		if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS pgcrypto`).Error; err != nil {
			log.Error("pgcrypto error", zap.Error(err))
			return err
		}
		log.Info("Расширения созданы")
	}

	// Таблицы
	log.Info("Создание таблиц: stock_records, stock_ledger_entries, reservations, orders, order_items, customers, payment_attempts, payment_transactions")
	if err := db.AutoMigrate(
		&models.StockRecord{},
		&models.StockLedgerEntry{},
		&models.Reservation{},
		&models.Order{},
		&models.OrderItem{},
		&models.Customer{},
		&models.PaymentAttempt{},
		&models.PaymentTransaction{},
	); err != nil {
		log.Error("AutoMigrate error", zap.Error(err))
		return err
	}
	log.Info("Таблицы созданы")

	// Триггеры updated_at
	if opt.CreateUpdatedAtTrigger {
		log.Info("Создание триггеров updated_at")
		if err := db.Exec(`
CREATE OR REPLACE FUNCTION set_updated_at() RETURNS trigger AS $$
BEGIN NEW.updated_at = now(); RETURN NEW; END; $$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS trg_stock_records_updated ON stock_records;
CREATE TRIGGER trg_stock_records_updated BEFORE UPDATE ON stock_records
FOR EACH ROW EXECUTE FUNCTION set_updated_at();

DROP TRIGGER IF EXISTS trg_orders_updated ON orders;
CREATE TRIGGER trg_orders_updated BEFORE UPDATE ON orders
FOR EACH ROW EXECUTE FUNCTION set_updated_at();

DROP TRIGGER IF EXISTS trg_customers_updated ON customers;
CREATE TRIGGER trg_customers_updated BEFORE UPDATE ON customers
FOR EACH ROW EXECUTE FUNCTION set_updated_at();

DROP TRIGGER IF EXISTS trg_payment_attempts_updated ON payment_attempts;
CREATE TRIGGER trg_payment_attempts_updated BEFORE UPDATE ON payment_attempts
FOR EACH ROW EXECUTE FUNCTION set_updated_at();
`).Error; err != nil {
			log.Error("triggers error", zap.Error(err))
			return err
		}
		log.Info("Триггеры созданы")
	}

	// Журнал — только вставка
	if opt.CreateLedgerGuard {
		log.Info("Создание защиты журнала от изменения")
		if err := db.Exec(`
CREATE OR REPLACE FUNCTION forbid_ledger_mutation() RETURNS trigger AS $$
BEGIN RAISE EXCEPTION 'stock_ledger_entries is append-only'; END; $$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS trg_ledger_no_update ON stock_ledger_entries;
CREATE TRIGGER trg_ledger_no_update BEFORE UPDATE OR DELETE ON stock_ledger_entries
FOR EACH ROW EXECUTE FUNCTION forbid_ledger_mutation();
`).Error; err != nil {
			log.Error("ledger guard error", zap.Error(err))
			return err
		}
		log.Info("Защита журнала создана")
	}

	// CHECK-и
	if opt.CreateChecks {
		log.Info("Создание CHECK-ограничений")

		if err := db.Exec(`
ALTER TABLE stock_records
	DROP CONSTRAINT IF EXISTS chk_stock_quantity_non_negative,
	ADD CONSTRAINT chk_stock_quantity_non_negative
	CHECK (quantity >= 0 AND low_stock_threshold >= 0 AND price_cents >= 0);
`).Error; err != nil {
			log.Error("chk stock_records", zap.Error(err))
			return err
		}

		if err := db.Exec(`
ALTER TABLE stock_ledger_entries
	DROP CONSTRAINT IF EXISTS chk_ledger_change_consistent,
	ADD CONSTRAINT chk_ledger_change_consistent
	CHECK (new_qty - previous_qty = change_qty AND new_qty >= 0);
`).Error; err != nil {
			log.Error("chk ledger", zap.Error(err))
			return err
		}

		if err := db.Exec(`
ALTER TABLE reservations
	DROP CONSTRAINT IF EXISTS chk_reservations_quantity_gt_zero,
	ADD CONSTRAINT chk_reservations_quantity_gt_zero
	CHECK (quantity > 0);
`).Error; err != nil {
			log.Error("chk reservations.qty", zap.Error(err))
			return err
		}

		if err := db.Exec(`
ALTER TABLE reservations
	DROP CONSTRAINT IF EXISTS chk_reservations_status_allowed,
	ADD CONSTRAINT chk_reservations_status_allowed
	CHECK (status IN ('ACTIVE','RELEASED','EXPIRED','CONSUMED'));
`).Error; err != nil {
			log.Error("chk reservations.status", zap.Error(err))
			return err
		}

		if err := db.Exec(`
ALTER TABLE orders
	DROP CONSTRAINT IF EXISTS chk_orders_status_allowed,
	ADD CONSTRAINT chk_orders_status_allowed
	CHECK (status IN ('PENDING','PAID','PAYMENT_FAILED','PROCESSING','SHIPPED','DELIVERED','CANCELED','REFUNDED'));
`).Error; err != nil {
			log.Error("chk orders.status", zap.Error(err))
			return err
		}

		if err := db.Exec(`
ALTER TABLE orders
	DROP CONSTRAINT IF EXISTS chk_orders_totals_non_negative,
	ADD CONSTRAINT chk_orders_totals_non_negative
	CHECK (subtotal_cents >= 0 AND tax_cents >= 0 AND shipping_cents >= 0 AND discount_cents >= 0 AND total_cents >= 0);
`).Error; err != nil {
			log.Error("chk orders.totals", zap.Error(err))
			return err
		}

		if err := db.Exec(`
ALTER TABLE order_items
	DROP CONSTRAINT IF EXISTS chk_order_items_quantity_gt_zero,
	ADD CONSTRAINT chk_order_items_quantity_gt_zero
	CHECK (quantity > 0 AND unit_price_cents >= 0 AND line_total_cents >= 0);
`).Error; err != nil {
			log.Error("chk order_items", zap.Error(err))
			return err
		}

		if err := db.Exec(`
ALTER TABLE payment_attempts
	DROP CONSTRAINT IF EXISTS chk_payment_attempts_status_allowed,
	ADD CONSTRAINT chk_payment_attempts_status_allowed
	CHECK (status IN ('INITIATED','AUTHORIZING','AUTHORIZED','CAPTURED','FAILED','CANCELED'));
`).Error; err != nil {
			log.Error("chk payment_attempts.status", zap.Error(err))
			return err
		}

		if err := db.Exec(`
ALTER TABLE payment_transactions
	DROP CONSTRAINT IF EXISTS chk_payment_tx_amount_gt_zero,
	ADD CONSTRAINT chk_payment_tx_amount_gt_zero
	CHECK (amount_cents > 0 AND type IN ('AUTH','CAPTURE','REFUND','VOID'));
`).Error; err != nil {
			log.Error("chk payment_transactions", zap.Error(err))
			return err
		}

		log.Info("CHECK-и созданы")
	}

	// Индексы и уникальности
	if opt.CreateIndexes {
		log.Info("Создание индексов и уникальностей")

		// Ключ идемпотентности заказа: частичный уникальный индекс,
		// первый писатель выигрывает гонку
		if err := db.Exec(`
CREATE UNIQUE INDEX IF NOT EXISTS ux_orders_tenant_idem
ON orders (tenant_id, idempotency_key)
WHERE idempotency_key IS NOT NULL;
`).Error; err != nil {
			log.Error("ux orders idem", zap.Error(err))
			return err
		}

		if err := db.Exec(`
CREATE UNIQUE INDEX IF NOT EXISTS ux_payment_attempts_tenant_idem
ON payment_attempts (tenant_id, idempotency_key)
WHERE idempotency_key IS NOT NULL;
`).Error; err != nil {
			log.Error("ux payment idem", zap.Error(err))
			return err
		}

		// Живые резервы: частичный индекс под сумму доступности и sweeper
		if err := db.Exec(`
CREATE INDEX IF NOT EXISTS ix_reservations_active_stock
ON reservations (tenant_id, stock_record_id, expires_at)
WHERE status = 'ACTIVE';
`).Error; err != nil {
			log.Error("ix reservations active", zap.Error(err))
			return err
		}

		if err := db.Exec(`
CREATE INDEX IF NOT EXISTS ix_ledger_stock_seq
ON stock_ledger_entries (tenant_id, stock_record_id, seq);
`).Error; err != nil {
			log.Error("ix ledger stock_seq", zap.Error(err))
			return err
		}

		if err := db.Exec(`
CREATE INDEX IF NOT EXISTS ix_orders_tenant_created
ON orders (tenant_id, created_at DESC);
`).Error; err != nil {
			log.Error("ix orders tenant_created", zap.Error(err))
			return err
		}

		log.Info("Индексы созданы")
	}

	// Внешние ключи
	if opt.CreateFKsViaSQL {
		log.Info("Создание внешних ключей")

		if err := db.Exec(`
ALTER TABLE stock_ledger_entries
  DROP CONSTRAINT IF EXISTS fk_ledger_stock_record,
  ADD CONSTRAINT fk_ledger_stock_record
    FOREIGN KEY (stock_record_id) REFERENCES stock_records(id) ON DELETE RESTRICT;
`).Error; err != nil {
			log.Error("fk ledger.stock_record_id", zap.Error(err))
			return err
		}

		if err := db.Exec(`
ALTER TABLE reservations
  DROP CONSTRAINT IF EXISTS fk_reservations_stock_record,
  ADD CONSTRAINT fk_reservations_stock_record
    FOREIGN KEY (stock_record_id) REFERENCES stock_records(id) ON DELETE RESTRICT;
`).Error; err != nil {
			log.Error("fk reservations.stock_record_id", zap.Error(err))
			return err
		}

		if err := db.Exec(`
ALTER TABLE order_items
  DROP CONSTRAINT IF EXISTS fk_order_items_order,
  ADD CONSTRAINT fk_order_items_order
    FOREIGN KEY (order_id) REFERENCES orders(id) ON DELETE CASCADE;
`).Error; err != nil {
			log.Error("fk order_items.order_id", zap.Error(err))
			return err
		}

		if err := db.Exec(`
ALTER TABLE payment_attempts
  DROP CONSTRAINT IF EXISTS fk_payment_attempts_order,
  ADD CONSTRAINT fk_payment_attempts_order
    FOREIGN KEY (order_id) REFERENCES orders(id) ON DELETE RESTRICT;
`).Error; err != nil {
			log.Error("fk payment_attempts.order_id", zap.Error(err))
			return err
		}

		if err := db.Exec(`
ALTER TABLE payment_transactions
  DROP CONSTRAINT IF EXISTS fk_payment_tx_attempt,
  ADD CONSTRAINT fk_payment_tx_attempt
    FOREIGN KEY (attempt_id) REFERENCES payment_attempts(id) ON DELETE CASCADE;
`).Error; err != nil {
			log.Error("fk payment_transactions.attempt_id", zap.Error(err))
			return err
		}

		log.Info("Внешние ключи созданы")
	}

	log.Info("Миграция базы commerce-core успешно завершена")
	return nil
}
