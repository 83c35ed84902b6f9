package repository

import "gorm.io/gorm"

type Repository struct {
	DB           *gorm.DB
	Stocks       StockRepo
	Ledger       LedgerRepo
	Reservations ReservationRepo
	Orders       OrderRepo
	OrderItems   OrderItemRepo
	Customers    CustomerRepo
	Payments     PaymentRepo
}

func buildRepository(db *gorm.DB) *Repository {
	return &Repository{
		DB:           db,
		Stocks:       NewStockRepo(db),
		Ledger:       NewLedgerRepo(db),
		Reservations: NewReservationRepo(db),
		Orders:       NewOrderRepo(db),
		OrderItems:   NewOrderItemRepo(db),
		Customers:    NewCustomerRepo(db),
		Payments:     NewPaymentRepo(db),
	}
}

func New(db *gorm.DB) *Repository { return buildRepository(db) }

// Глобальная транзакция на весь набор репо
func (r *Repository) WithTx(fn func(tx *Repository) error) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		return fn(buildRepository(tx))
	})
}
