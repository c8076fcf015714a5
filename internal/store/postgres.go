package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oasismarkets/go-pickup-orders/internal/orders"
	"github.com/oasismarkets/go-pickup-orders/internal/pickup"
)

// Postgres implements Store on a pgx pool. WithTx stashes the open pgx.Tx
// in the context so every method transparently runs against the transaction
// when one is ambient; see internal/postgres/schema.sql for the schema.
type Postgres struct {
	DB *pgxpool.Pool
}

var _ Store = (*Postgres)(nil)

type pgTxKey struct{}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (p *Postgres) q(ctx context.Context) querier {
	if tx, ok := ctx.Value(pgTxKey{}).(pgx.Tx); ok {
		return tx
	}
	return p.DB
}

func (p *Postgres) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(pgTxKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}
	tx, err := p.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(context.WithValue(ctx, pgTxKey{}, tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

const productColumns = `id, name, category, unit, price_cents, stock_quantity, active, created_at, updated_at`

func scanProduct(row pgx.Row) (*orders.Product, error) {
	var pr orders.Product
	err := row.Scan(&pr.ID, &pr.Name, &pr.Category, &pr.Unit, &pr.PriceCents,
		&pr.StockQuantity, &pr.Active, &pr.CreatedAt, &pr.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &pr, nil
}

func (p *Postgres) CreateProduct(ctx context.Context, pr *orders.Product) error {
	if pr.ID == "" {
		pr.ID = uuid.NewString()
	}
	row := p.q(ctx).QueryRow(ctx, `
		INSERT INTO products (id, name, category, unit, price_cents, stock_quantity, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		pr.ID, pr.Name, pr.Category, pr.Unit, pr.PriceCents, pr.StockQuantity, pr.Active)
	return row.Scan(&pr.CreatedAt, &pr.UpdatedAt)
}

func (p *Postgres) GetProduct(ctx context.Context, id string) (*orders.Product, error) {
	return scanProduct(p.q(ctx).QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`, id))
}

func (p *Postgres) GetProductsByIDs(ctx context.Context, ids []string) (map[string]*orders.Product, error) {
	if len(ids) == 0 {
		return map[string]*orders.Product{}, nil
	}
	rows, err := p.q(ctx).Query(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]*orders.Product, len(ids))
	for rows.Next() {
		var pr orders.Product
		if err := rows.Scan(&pr.ID, &pr.Name, &pr.Category, &pr.Unit, &pr.PriceCents,
			&pr.StockQuantity, &pr.Active, &pr.CreatedAt, &pr.UpdatedAt); err != nil {
			return nil, err
		}
		cp := pr
		out[pr.ID] = &cp
	}
	return out, rows.Err()
}

func (p *Postgres) ListProducts(ctx context.Context, f ProductFilter) ([]orders.Product, error) {
	var (
		conds []string
		args  []any
	)
	if f.ActiveOnly {
		conds = append(conds, "active")
	}
	if f.Category != "" {
		args = append(args, f.Category)
		conds = append(conds, fmt.Sprintf("category = $%d", len(args)))
	}
	if f.Query != "" {
		args = append(args, "%"+f.Query+"%")
		conds = append(conds, fmt.Sprintf("name ILIKE $%d", len(args)))
	}
	sql := `SELECT ` + productColumns + ` FROM products`
	if len(conds) > 0 {
		sql += " WHERE " + strings.Join(conds, " AND ")
	}
	sql += " ORDER BY name"

	rows, err := p.q(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []orders.Product
	for rows.Next() {
		var pr orders.Product
		if err := rows.Scan(&pr.ID, &pr.Name, &pr.Category, &pr.Unit, &pr.PriceCents,
			&pr.StockQuantity, &pr.Active, &pr.CreatedAt, &pr.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, pr)
	}
	return out, rows.Err()
}

func (p *Postgres) UpdateProduct(ctx context.Context, pr *orders.Product) error {
	ct, err := p.q(ctx).Exec(ctx, `
		UPDATE products
		SET name = $2, category = $3, unit = $4, price_cents = $5,
		    stock_quantity = $6, active = $7, updated_at = NOW()
		WHERE id = $1`,
		pr.ID, pr.Name, pr.Category, pr.Unit, pr.PriceCents, pr.StockQuantity, pr.Active)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) SetProductStock(ctx context.Context, id string, qty float64) (*orders.Product, error) {
	return scanProduct(p.q(ctx).QueryRow(ctx, `
		UPDATE products
		SET stock_quantity = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+productColumns, id, qty))
}

// DecrementStock is guarded: the row is only touched while enough stock
// remains, so the reservation can never drive stock negative.
func (p *Postgres) DecrementStock(ctx context.Context, id string, amount float64) error {
	ct, err := p.q(ctx).Exec(ctx, `
		UPDATE products
		SET stock_quantity = stock_quantity - $2, updated_at = NOW()
		WHERE id = $1 AND stock_quantity >= $2`, id, amount)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrInsufficientStock
	}
	return nil
}

func (p *Postgres) RestoreStock(ctx context.Context, id string, amount float64) error {
	ct, err := p.q(ctx).Exec(ctx, `
		UPDATE products
		SET stock_quantity = stock_quantity + $2, updated_at = NOW()
		WHERE id = $1`, id, amount)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Slot capacity is an aggregate over live order rows, not a locked counter.
func (p *Postgres) SlotBookingCounts(ctx context.Context, from, to time.Time) (map[string]int, error) {
	rows, err := p.q(ctx).Query(ctx, `
		SELECT pickup_slot_start, COUNT(*)::int
		FROM orders
		WHERE pickup_slot_start >= $1 AND pickup_slot_start < $2
		  AND status NOT IN ('cancelled', 'refunded')
		GROUP BY pickup_slot_start`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var start time.Time
		var n int
		if err := rows.Scan(&start, &n); err != nil {
			return nil, err
		}
		counts[pickup.Key(start)] = n
	}
	return counts, rows.Err()
}

func (p *Postgres) SlotBookingCount(ctx context.Context, slotStart time.Time) (int, error) {
	var n int
	err := p.q(ctx).QueryRow(ctx, `
		SELECT COUNT(*)::int
		FROM orders
		WHERE pickup_slot_start = $1
		  AND status NOT IN ('cancelled', 'refunded')`, slotStart).Scan(&n)
	return n, err
}

func (p *Postgres) UnavailableSlots(ctx context.Context, from, to time.Time) (map[string]bool, error) {
	rows, err := p.q(ctx).Query(ctx, `
		SELECT slot_start FROM unavailable_slots
		WHERE slot_start >= $1 AND slot_start < $2`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var start time.Time
		if err := rows.Scan(&start); err != nil {
			return nil, err
		}
		out[pickup.Key(start)] = true
	}
	return out, rows.Err()
}

func (p *Postgres) SetSlotUnavailable(ctx context.Context, slotStart time.Time, unavailable bool) error {
	if unavailable {
		_, err := p.q(ctx).Exec(ctx, `
			INSERT INTO unavailable_slots (slot_start)
			VALUES ($1)
			ON CONFLICT (slot_start) DO NOTHING`, slotStart)
		return err
	}
	_, err := p.q(ctx).Exec(ctx,
		`DELETE FROM unavailable_slots WHERE slot_start = $1`, slotStart)
	return err
}

func (p *Postgres) GetDayRange(ctx context.Context, date string) (*orders.DayRange, error) {
	var r orders.DayRange
	err := p.q(ctx).QueryRow(ctx, `
		SELECT service_date::text, open_hour, close_hour
		FROM pickup_day_ranges
		WHERE service_date = $1::date`, date).Scan(&r.Date, &r.OpenHour, &r.CloseHour)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (p *Postgres) UpsertDayRange(ctx context.Context, r orders.DayRange) error {
	_, err := p.q(ctx).Exec(ctx, `
		INSERT INTO pickup_day_ranges (service_date, open_hour, close_hour)
		VALUES ($1::date, $2, $3)
		ON CONFLICT (service_date)
		DO UPDATE SET open_hour = EXCLUDED.open_hour, close_hour = EXCLUDED.close_hour`,
		r.Date, r.OpenHour, r.CloseHour)
	return err
}

func (p *Postgres) NextDailySequence(ctx context.Context, date string) (int, error) {
	var seq int
	err := p.q(ctx).QueryRow(ctx, `
		INSERT INTO order_sequence (order_date, seq)
		VALUES ($1::date, 1)
		ON CONFLICT (order_date)
		DO UPDATE SET seq = order_sequence.seq + 1
		RETURNING seq`, date).Scan(&seq)
	return seq, err
}

const orderColumns = `id, order_number, customer_name, customer_phone,
	requested_slot_start, requested_slot_end, pickup_slot_start, pickup_slot_end,
	estimated_pickup_start, estimated_pickup_end, total_delay_minutes,
	status, payment_status,
	estimated_subtotal_cents, estimated_tax_cents, estimated_total_cents,
	final_subtotal_cents, final_tax_cents, final_total_cents,
	payment_intent_id, payment_client_secret, payment_provider,
	created_at, updated_at`

func scanOrder(row pgx.Row) (*orders.Order, error) {
	var o orders.Order
	err := row.Scan(&o.ID, &o.OrderNumber, &o.CustomerName, &o.CustomerPhone,
		&o.RequestedSlotStart, &o.RequestedSlotEnd, &o.SlotStart, &o.SlotEnd,
		&o.EstimatedPickupStart, &o.EstimatedPickupEnd, &o.TotalDelayMinutes,
		&o.Status, &o.PaymentStatus,
		&o.EstimatedSubtotalCents, &o.EstimatedTaxCents, &o.EstimatedTotalCents,
		&o.FinalSubtotalCents, &o.FinalTaxCents, &o.FinalTotalCents,
		&o.PaymentIntentID, &o.PaymentClientSecret, &o.PaymentProvider,
		&o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (p *Postgres) InsertOrder(ctx context.Context, o *orders.Order) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	row := p.q(ctx).QueryRow(ctx, `
		INSERT INTO orders (
			id, order_number, customer_name, customer_phone,
			requested_slot_start, requested_slot_end, pickup_slot_start, pickup_slot_end,
			estimated_pickup_start, estimated_pickup_end, total_delay_minutes,
			status, payment_status,
			estimated_subtotal_cents, estimated_tax_cents, estimated_total_cents,
			payment_intent_id, payment_client_secret, payment_provider
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
		RETURNING created_at, updated_at`,
		o.ID, o.OrderNumber, o.CustomerName, o.CustomerPhone,
		o.RequestedSlotStart, o.RequestedSlotEnd, o.SlotStart, o.SlotEnd,
		o.EstimatedPickupStart, o.EstimatedPickupEnd, o.TotalDelayMinutes,
		o.Status, o.PaymentStatus,
		o.EstimatedSubtotalCents, o.EstimatedTaxCents, o.EstimatedTotalCents,
		o.PaymentIntentID, o.PaymentClientSecret, o.PaymentProvider)
	return row.Scan(&o.CreatedAt, &o.UpdatedAt)
}

func (p *Postgres) InsertOrderItems(ctx context.Context, items []orders.OrderItem) error {
	for i := range items {
		it := &items[i]
		if it.ID == "" {
			it.ID = uuid.NewString()
		}
		_, err := p.q(ctx).Exec(ctx, `
			INSERT INTO order_items (
				id, order_id, product_id,
				product_name_snapshot, product_unit_snapshot, product_price_cents_snapshot,
				estimated_quantity, estimated_weight_lb, estimated_line_subtotal_cents
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			it.ID, it.OrderID, it.Product.ProductID,
			it.Product.Name, it.Product.Unit, it.Product.PriceCents,
			it.EstimatedQuantity, it.EstimatedWeightLb, it.EstimatedLineSubtotalCents)
		if err != nil {
			return err
		}
	}
	return nil
}

func (p *Postgres) GetOrder(ctx context.Context, id string) (*orders.Order, error) {
	return scanOrder(p.q(ctx).QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
}

func (p *Postgres) GetOrderByLookup(ctx context.Context, orderNumber, phone string) (*orders.Order, error) {
	return scanOrder(p.q(ctx).QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE order_number = $1 AND customer_phone = $2`,
		orderNumber, phone))
}

func (p *Postgres) ListOrders(ctx context.Context, status *orders.Status) ([]orders.Order, error) {
	sql := `SELECT ` + orderColumns + ` FROM orders`
	var args []any
	if status != nil {
		sql += ` WHERE status = $1`
		args = append(args, *status)
	}
	sql += ` ORDER BY created_at DESC`

	rows, err := p.q(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []orders.Order
	for rows.Next() {
		var o orders.Order
		if err := rows.Scan(&o.ID, &o.OrderNumber, &o.CustomerName, &o.CustomerPhone,
			&o.RequestedSlotStart, &o.RequestedSlotEnd, &o.SlotStart, &o.SlotEnd,
			&o.EstimatedPickupStart, &o.EstimatedPickupEnd, &o.TotalDelayMinutes,
			&o.Status, &o.PaymentStatus,
			&o.EstimatedSubtotalCents, &o.EstimatedTaxCents, &o.EstimatedTotalCents,
			&o.FinalSubtotalCents, &o.FinalTaxCents, &o.FinalTotalCents,
			&o.PaymentIntentID, &o.PaymentClientSecret, &o.PaymentProvider,
			&o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (p *Postgres) UpdateOrder(ctx context.Context, o *orders.Order) error {
	ct, err := p.q(ctx).Exec(ctx, `
		UPDATE orders
		SET pickup_slot_start = $2, pickup_slot_end = $3,
		    estimated_pickup_start = $4, estimated_pickup_end = $5,
		    total_delay_minutes = $6, status = $7, payment_status = $8,
		    final_subtotal_cents = $9, final_tax_cents = $10, final_total_cents = $11,
		    updated_at = NOW()
		WHERE id = $1`,
		o.ID, o.SlotStart, o.SlotEnd,
		o.EstimatedPickupStart, o.EstimatedPickupEnd,
		o.TotalDelayMinutes, o.Status, o.PaymentStatus,
		o.FinalSubtotalCents, o.FinalTaxCents, o.FinalTotalCents)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) SetPaymentStatusByIntent(ctx context.Context, intentID string, ps orders.PaymentStatus) error {
	ct, err := p.q(ctx).Exec(ctx, `
		UPDATE orders
		SET payment_status = $2, updated_at = NOW()
		WHERE payment_intent_id = $1`, intentID, ps)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) ListOrderItems(ctx context.Context, orderID string) ([]orders.OrderItem, error) {
	rows, err := p.q(ctx).Query(ctx, `
		SELECT id, order_id, product_id,
		       product_name_snapshot, product_unit_snapshot, product_price_cents_snapshot,
		       estimated_quantity, estimated_weight_lb, estimated_line_subtotal_cents,
		       final_quantity, final_weight_lb, final_line_subtotal_cents
		FROM order_items
		WHERE order_id = $1
		ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []orders.OrderItem
	for rows.Next() {
		var it orders.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.Product.ProductID,
			&it.Product.Name, &it.Product.Unit, &it.Product.PriceCents,
			&it.EstimatedQuantity, &it.EstimatedWeightLb, &it.EstimatedLineSubtotalCents,
			&it.FinalQuantity, &it.FinalWeightLb, &it.FinalLineSubtotalCents); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (p *Postgres) UpdateOrderItemFinal(ctx context.Context, itemID string, finalQty *int, finalWeightLb *float64, lineSubtotalCents int) error {
	ct, err := p.q(ctx).Exec(ctx, `
		UPDATE order_items
		SET final_quantity = $2, final_weight_lb = $3, final_line_subtotal_cents = $4
		WHERE id = $1`, itemID, finalQty, finalWeightLb, lineSubtotalCents)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) AppendRefund(ctx context.Context, r *orders.Refund) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	row := p.q(ctx).QueryRow(ctx, `
		INSERT INTO refunds (id, order_id, amount_cents, reason, provider_ref)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		r.ID, r.OrderID, r.AmountCents, r.Reason, r.ProviderRef)
	return row.Scan(&r.CreatedAt)
}

func (p *Postgres) RefundedCents(ctx context.Context, orderID string) (int, error) {
	var total int
	err := p.q(ctx).QueryRow(ctx, `
		SELECT COALESCE(SUM(amount_cents), 0)::int
		FROM refunds
		WHERE order_id = $1`, orderID).Scan(&total)
	return total, err
}

func (p *Postgres) SaveReceipt(ctx context.Context, orderID, key string) error {
	_, err := p.q(ctx).Exec(ctx, `
		INSERT INTO receipts (order_id, receipt_key)
		VALUES ($1, $2)
		ON CONFLICT (order_id)
		DO UPDATE SET receipt_key = EXCLUDED.receipt_key, created_at = NOW()`,
		orderID, key)
	return err
}

func (p *Postgres) GetReceiptKey(ctx context.Context, orderID string) (string, error) {
	var key string
	err := p.q(ctx).QueryRow(ctx,
		`SELECT receipt_key FROM receipts WHERE order_id = $1`, orderID).Scan(&key)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return key, err
}
