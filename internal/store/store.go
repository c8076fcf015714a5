// Package store is the single persistence boundary for the booking and
// lifecycle services. Two implementations exist: Memory for tests and
// single-node demos, Postgres for production. Business logic never branches
// on which one it holds.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/oasismarkets/go-pickup-orders/internal/orders"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrInsufficientStock is returned by DecrementStock when the guarded
	// decrement would take stock negative.
	ErrInsufficientStock = errors.New("insufficient stock")
)

type ProductFilter struct {
	Query      string
	Category   string
	ActiveOnly bool
}

type Store interface {
	// WithTx runs fn inside one transaction: every store call made with the
	// context fn receives joins that transaction, and any error rolls the
	// whole thing back. Nested calls join the ambient transaction.
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error

	CreateProduct(ctx context.Context, p *orders.Product) error
	GetProduct(ctx context.Context, id string) (*orders.Product, error)
	GetProductsByIDs(ctx context.Context, ids []string) (map[string]*orders.Product, error)
	ListProducts(ctx context.Context, f ProductFilter) ([]orders.Product, error)
	UpdateProduct(ctx context.Context, p *orders.Product) error
	SetProductStock(ctx context.Context, id string, qty float64) (*orders.Product, error)
	// DecrementStock fails with ErrInsufficientStock instead of going negative.
	DecrementStock(ctx context.Context, id string, amount float64) error
	RestoreStock(ctx context.Context, id string, amount float64) error

	// SlotBookingCounts aggregates live (non-cancelled, non-refunded) orders
	// per slot start within [from, to). Keys are pickup.Key values.
	SlotBookingCounts(ctx context.Context, from, to time.Time) (map[string]int, error)
	// SlotBookingCount is the authoritative single-slot count used inside
	// the booking transaction.
	SlotBookingCount(ctx context.Context, slotStart time.Time) (int, error)
	UnavailableSlots(ctx context.Context, from, to time.Time) (map[string]bool, error)
	SetSlotUnavailable(ctx context.Context, slotStart time.Time, unavailable bool) error
	// GetDayRange returns (nil, nil) when no override exists for the date.
	GetDayRange(ctx context.Context, date string) (*orders.DayRange, error)
	UpsertDayRange(ctx context.Context, r orders.DayRange) error

	// NextDailySequence atomically increments-or-inserts the per-date counter.
	NextDailySequence(ctx context.Context, date string) (int, error)

	InsertOrder(ctx context.Context, o *orders.Order) error
	InsertOrderItems(ctx context.Context, items []orders.OrderItem) error
	GetOrder(ctx context.Context, id string) (*orders.Order, error)
	GetOrderByLookup(ctx context.Context, orderNumber, phone string) (*orders.Order, error)
	ListOrders(ctx context.Context, status *orders.Status) ([]orders.Order, error)
	UpdateOrder(ctx context.Context, o *orders.Order) error
	SetPaymentStatusByIntent(ctx context.Context, intentID string, ps orders.PaymentStatus) error
	ListOrderItems(ctx context.Context, orderID string) ([]orders.OrderItem, error)
	UpdateOrderItemFinal(ctx context.Context, itemID string, finalQty *int, finalWeightLb *float64, lineSubtotalCents int) error

	AppendRefund(ctx context.Context, r *orders.Refund) error
	// RefundedCents sums the append-only refund ledger for one order.
	RefundedCents(ctx context.Context, orderID string) (int, error)

	SaveReceipt(ctx context.Context, orderID, key string) error
	// GetReceiptKey returns "" when no receipt has been stored.
	GetReceiptKey(ctx context.Context, orderID string) (string, error)
}
