package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oasismarkets/go-pickup-orders/internal/orders"
	"github.com/oasismarkets/go-pickup-orders/internal/pickup"
)

func seedMemory(t *testing.T) *Memory {
	t.Helper()
	m := NewMemory()
	require.NoError(t, m.CreateProduct(context.Background(), &orders.Product{
		ID: "p1", Name: "Honeycrisp Apples", Category: "produce",
		Unit: orders.UnitEach, PriceCents: 500, StockQuantity: 10, Active: true,
	}))
	return m
}

func TestWithTxRollsBackOnError(t *testing.T) {
	m := seedMemory(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := m.WithTx(ctx, func(ctx context.Context) error {
		require.NoError(t, m.InsertOrder(ctx, &orders.Order{ID: "o1", OrderNumber: "OM-20260211-0001"}))
		require.NoError(t, m.DecrementStock(ctx, "p1", 4))
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = m.GetOrder(ctx, "o1")
	assert.ErrorIs(t, err, ErrNotFound)
	p, err := m.GetProduct(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 10.0, p.StockQuantity)
}

func TestWithTxCommitsAndNests(t *testing.T) {
	m := seedMemory(t)
	ctx := context.Background()

	err := m.WithTx(ctx, func(ctx context.Context) error {
		// nested call joins the ambient transaction instead of deadlocking
		return m.WithTx(ctx, func(ctx context.Context) error {
			return m.DecrementStock(ctx, "p1", 4)
		})
	})
	require.NoError(t, err)
	p, err := m.GetProduct(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 6.0, p.StockQuantity)
}

func TestDecrementStockGuard(t *testing.T) {
	m := seedMemory(t)
	ctx := context.Background()

	assert.ErrorIs(t, m.DecrementStock(ctx, "p1", 11), ErrInsufficientStock)
	require.NoError(t, m.DecrementStock(ctx, "p1", 10))
	p, err := m.GetProduct(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 0.0, p.StockQuantity)
}

func TestNextDailySequencePerDate(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	for want := 1; want <= 3; want++ {
		got, err := m.NextDailySequence(ctx, "2026-02-11")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	got, err := m.NextDailySequence(ctx, "2026-02-12")
	require.NoError(t, err)
	assert.Equal(t, 1, got)
}

func TestSlotBookingCountsSkipTerminalOrders(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	slot := time.Date(2026, 2, 11, 16, 0, 0, 0, time.UTC)

	insert := func(id string, status orders.Status) {
		require.NoError(t, m.InsertOrder(ctx, &orders.Order{
			ID: id, OrderNumber: "OM-20260211-" + id, SlotStart: slot, Status: status,
		}))
	}
	insert("a", orders.StatusPlaced)
	insert("b", orders.StatusReady)
	insert("c", orders.StatusCancelled)
	insert("d", orders.StatusRefunded)

	n, err := m.SlotBookingCount(ctx, slot)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	counts, err := m.SlotBookingCounts(ctx, slot.Add(-time.Hour), slot.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, map[string]int{pickup.Key(slot): 2}, counts)
}

func TestGetOrderByLookupMatchesNumberAndPhone(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.InsertOrder(ctx, &orders.Order{
		ID: "o1", OrderNumber: "OM-20260211-0001", CustomerPhone: "5125550134",
	}))

	o, err := m.GetOrderByLookup(ctx, "OM-20260211-0001", "5125550134")
	require.NoError(t, err)
	assert.Equal(t, "o1", o.ID)

	_, err = m.GetOrderByLookup(ctx, "OM-20260211-0001", "9999999999")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRefundLedgerSums(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.AppendRefund(ctx, &orders.Refund{OrderID: "o1", AmountCents: 300}))
	require.NoError(t, m.AppendRefund(ctx, &orders.Refund{OrderID: "o1", AmountCents: 200}))
	require.NoError(t, m.AppendRefund(ctx, &orders.Refund{OrderID: "o2", AmountCents: 999}))

	total, err := m.RefundedCents(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, 500, total)
}

func TestListProductsFilter(t *testing.T) {
	m := seedMemory(t)
	ctx := context.Background()
	require.NoError(t, m.CreateProduct(ctx, &orders.Product{
		ID: "p2", Name: "Seasonal Pie", Category: "bakery",
		Unit: orders.UnitEach, PriceCents: 1800, Active: false,
	}))

	ps, err := m.ListProducts(ctx, ProductFilter{ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, ps, 1)
	assert.Equal(t, "p1", ps[0].ID)

	ps, err = m.ListProducts(ctx, ProductFilter{Query: "pie"})
	require.NoError(t, err)
	require.Len(t, ps, 1)
	assert.Equal(t, "p2", ps[0].ID)
}
