package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oasismarkets/go-pickup-orders/internal/orders"
	"github.com/oasismarkets/go-pickup-orders/internal/pickup"
)

// Memory is the in-process Store used by tests and demo deployments. A
// single RWMutex emulates the transaction boundary: WithTx takes the write
// lock for its whole scope and marks the context so nested calls skip their
// own locking.
type Memory struct {
	mu sync.RWMutex

	products     map[string]orders.Product
	ordersByID   map[string]orders.Order
	itemsByOrder map[string][]orders.OrderItem
	refunds      []orders.Refund
	receipts     map[string]string
	dayRanges    map[string]orders.DayRange
	unavailable  map[string]bool
	sequences    map[string]int

	now func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		products:     make(map[string]orders.Product),
		ordersByID:   make(map[string]orders.Order),
		itemsByOrder: make(map[string][]orders.OrderItem),
		receipts:     make(map[string]string),
		dayRanges:    make(map[string]orders.DayRange),
		unavailable:  make(map[string]bool),
		sequences:    make(map[string]int),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

var _ Store = (*Memory)(nil)

type txKey struct{}

func inTx(ctx context.Context) bool {
	v, _ := ctx.Value(txKey{}).(bool)
	return v
}

func (m *Memory) rlock(ctx context.Context) func() {
	if inTx(ctx) {
		return func() {}
	}
	m.mu.RLock()
	return m.mu.RUnlock
}

func (m *Memory) wlock(ctx context.Context) func() {
	if inTx(ctx) {
		return func() {}
	}
	m.mu.Lock()
	return m.mu.Unlock
}

// WithTx holds the write lock for the duration of fn. A snapshot taken at
// entry is restored when fn errors, so a failed transaction leaves no
// partial state behind.
func (m *Memory) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if inTx(ctx) {
		return fn(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type memSnapshot struct {
	products     map[string]orders.Product
	ordersByID   map[string]orders.Order
	itemsByOrder map[string][]orders.OrderItem
	refunds      []orders.Refund
	receipts     map[string]string
	dayRanges    map[string]orders.DayRange
	unavailable  map[string]bool
	sequences    map[string]int
}

func (m *Memory) snapshot() memSnapshot {
	s := memSnapshot{
		products:     make(map[string]orders.Product, len(m.products)),
		ordersByID:   make(map[string]orders.Order, len(m.ordersByID)),
		itemsByOrder: make(map[string][]orders.OrderItem, len(m.itemsByOrder)),
		refunds:      append([]orders.Refund(nil), m.refunds...),
		receipts:     make(map[string]string, len(m.receipts)),
		dayRanges:    make(map[string]orders.DayRange, len(m.dayRanges)),
		unavailable:  make(map[string]bool, len(m.unavailable)),
		sequences:    make(map[string]int, len(m.sequences)),
	}
	for k, v := range m.products {
		s.products[k] = v
	}
	for k, v := range m.ordersByID {
		s.ordersByID[k] = v
	}
	for k, v := range m.itemsByOrder {
		s.itemsByOrder[k] = append([]orders.OrderItem(nil), v...)
	}
	for k, v := range m.receipts {
		s.receipts[k] = v
	}
	for k, v := range m.dayRanges {
		s.dayRanges[k] = v
	}
	for k, v := range m.unavailable {
		s.unavailable[k] = v
	}
	for k, v := range m.sequences {
		s.sequences[k] = v
	}
	return s
}

func (m *Memory) restore(s memSnapshot) {
	m.products = s.products
	m.ordersByID = s.ordersByID
	m.itemsByOrder = s.itemsByOrder
	m.refunds = s.refunds
	m.receipts = s.receipts
	m.dayRanges = s.dayRanges
	m.unavailable = s.unavailable
	m.sequences = s.sequences
}

func (m *Memory) CreateProduct(ctx context.Context, p *orders.Product) error {
	unlock := m.wlock(ctx)
	defer unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.CreatedAt = m.now()
	p.UpdatedAt = p.CreatedAt
	m.products[p.ID] = *p
	return nil
}

func (m *Memory) GetProduct(ctx context.Context, id string) (*orders.Product, error) {
	unlock := m.rlock(ctx)
	defer unlock()
	p, ok := m.products[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := p
	return &cp, nil
}

func (m *Memory) GetProductsByIDs(ctx context.Context, ids []string) (map[string]*orders.Product, error) {
	unlock := m.rlock(ctx)
	defer unlock()
	out := make(map[string]*orders.Product, len(ids))
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			cp := p
			out[id] = &cp
		}
	}
	return out, nil
}

func (m *Memory) ListProducts(ctx context.Context, f ProductFilter) ([]orders.Product, error) {
	unlock := m.rlock(ctx)
	defer unlock()
	out := make([]orders.Product, 0)
	for _, p := range m.products {
		if f.ActiveOnly && !p.Active {
			continue
		}
		if f.Category != "" && p.Category != f.Category {
			continue
		}
		if f.Query != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(f.Query)) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) UpdateProduct(ctx context.Context, p *orders.Product) error {
	unlock := m.wlock(ctx)
	defer unlock()
	cur, ok := m.products[p.ID]
	if !ok {
		return ErrNotFound
	}
	p.CreatedAt = cur.CreatedAt
	p.UpdatedAt = m.now()
	m.products[p.ID] = *p
	return nil
}

func (m *Memory) SetProductStock(ctx context.Context, id string, qty float64) (*orders.Product, error) {
	unlock := m.wlock(ctx)
	defer unlock()
	p, ok := m.products[id]
	if !ok {
		return nil, ErrNotFound
	}
	p.StockQuantity = qty
	p.UpdatedAt = m.now()
	m.products[id] = p
	cp := p
	return &cp, nil
}

func (m *Memory) DecrementStock(ctx context.Context, id string, amount float64) error {
	unlock := m.wlock(ctx)
	defer unlock()
	p, ok := m.products[id]
	if !ok {
		return ErrNotFound
	}
	if p.StockQuantity < amount {
		return ErrInsufficientStock
	}
	p.StockQuantity -= amount
	p.UpdatedAt = m.now()
	m.products[id] = p
	return nil
}

func (m *Memory) RestoreStock(ctx context.Context, id string, amount float64) error {
	unlock := m.wlock(ctx)
	defer unlock()
	p, ok := m.products[id]
	if !ok {
		return ErrNotFound
	}
	p.StockQuantity += amount
	p.UpdatedAt = m.now()
	m.products[id] = p
	return nil
}

func liveStatus(s orders.Status) bool {
	return s != orders.StatusCancelled && s != orders.StatusRefunded
}

func (m *Memory) SlotBookingCounts(ctx context.Context, from, to time.Time) (map[string]int, error) {
	unlock := m.rlock(ctx)
	defer unlock()
	counts := make(map[string]int)
	for _, o := range m.ordersByID {
		if !liveStatus(o.Status) {
			continue
		}
		if o.SlotStart.Before(from) || !o.SlotStart.Before(to) {
			continue
		}
		counts[pickup.Key(o.SlotStart)]++
	}
	return counts, nil
}

func (m *Memory) SlotBookingCount(ctx context.Context, slotStart time.Time) (int, error) {
	unlock := m.rlock(ctx)
	defer unlock()
	key := pickup.Key(slotStart)
	n := 0
	for _, o := range m.ordersByID {
		if liveStatus(o.Status) && pickup.Key(o.SlotStart) == key {
			n++
		}
	}
	return n, nil
}

func (m *Memory) UnavailableSlots(ctx context.Context, from, to time.Time) (map[string]bool, error) {
	unlock := m.rlock(ctx)
	defer unlock()
	out := make(map[string]bool)
	for key, blocked := range m.unavailable {
		if !blocked {
			continue
		}
		t, err := time.Parse(time.RFC3339, key)
		if err != nil {
			continue
		}
		if t.Before(from) || !t.Before(to) {
			continue
		}
		out[key] = true
	}
	return out, nil
}

func (m *Memory) SetSlotUnavailable(ctx context.Context, slotStart time.Time, unavailable bool) error {
	unlock := m.wlock(ctx)
	defer unlock()
	key := pickup.Key(slotStart)
	if unavailable {
		m.unavailable[key] = true
	} else {
		delete(m.unavailable, key)
	}
	return nil
}

func (m *Memory) GetDayRange(ctx context.Context, date string) (*orders.DayRange, error) {
	unlock := m.rlock(ctx)
	defer unlock()
	r, ok := m.dayRanges[date]
	if !ok {
		return nil, nil
	}
	cp := r
	return &cp, nil
}

func (m *Memory) UpsertDayRange(ctx context.Context, r orders.DayRange) error {
	unlock := m.wlock(ctx)
	defer unlock()
	m.dayRanges[r.Date] = r
	return nil
}

func (m *Memory) NextDailySequence(ctx context.Context, date string) (int, error) {
	unlock := m.wlock(ctx)
	defer unlock()
	m.sequences[date]++
	return m.sequences[date], nil
}

func cloneOrder(o orders.Order) orders.Order {
	o.FinalSubtotalCents = cloneInt(o.FinalSubtotalCents)
	o.FinalTaxCents = cloneInt(o.FinalTaxCents)
	o.FinalTotalCents = cloneInt(o.FinalTotalCents)
	return o
}

func cloneItem(it orders.OrderItem) orders.OrderItem {
	it.EstimatedQuantity = cloneInt(it.EstimatedQuantity)
	it.FinalQuantity = cloneInt(it.FinalQuantity)
	it.EstimatedWeightLb = cloneFloat(it.EstimatedWeightLb)
	it.FinalWeightLb = cloneFloat(it.FinalWeightLb)
	it.FinalLineSubtotalCents = cloneInt(it.FinalLineSubtotalCents)
	return it
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func (m *Memory) InsertOrder(ctx context.Context, o *orders.Order) error {
	unlock := m.wlock(ctx)
	defer unlock()
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	o.CreatedAt = m.now()
	o.UpdatedAt = o.CreatedAt
	m.ordersByID[o.ID] = cloneOrder(*o)
	return nil
}

func (m *Memory) InsertOrderItems(ctx context.Context, items []orders.OrderItem) error {
	unlock := m.wlock(ctx)
	defer unlock()
	for i := range items {
		if items[i].ID == "" {
			items[i].ID = uuid.NewString()
		}
		m.itemsByOrder[items[i].OrderID] = append(m.itemsByOrder[items[i].OrderID], cloneItem(items[i]))
	}
	return nil
}

func (m *Memory) GetOrder(ctx context.Context, id string) (*orders.Order, error) {
	unlock := m.rlock(ctx)
	defer unlock()
	o, ok := m.ordersByID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := cloneOrder(o)
	return &cp, nil
}

func (m *Memory) GetOrderByLookup(ctx context.Context, orderNumber, phone string) (*orders.Order, error) {
	unlock := m.rlock(ctx)
	defer unlock()
	for _, o := range m.ordersByID {
		if o.OrderNumber == orderNumber && o.CustomerPhone == phone {
			cp := cloneOrder(o)
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) ListOrders(ctx context.Context, status *orders.Status) ([]orders.Order, error) {
	unlock := m.rlock(ctx)
	defer unlock()
	out := make([]orders.Order, 0, len(m.ordersByID))
	for _, o := range m.ordersByID {
		if status != nil && o.Status != *status {
			continue
		}
		out = append(out, cloneOrder(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) UpdateOrder(ctx context.Context, o *orders.Order) error {
	unlock := m.wlock(ctx)
	defer unlock()
	cur, ok := m.ordersByID[o.ID]
	if !ok {
		return ErrNotFound
	}
	o.CreatedAt = cur.CreatedAt
	o.UpdatedAt = m.now()
	m.ordersByID[o.ID] = cloneOrder(*o)
	return nil
}

func (m *Memory) SetPaymentStatusByIntent(ctx context.Context, intentID string, ps orders.PaymentStatus) error {
	unlock := m.wlock(ctx)
	defer unlock()
	for id, o := range m.ordersByID {
		if o.PaymentIntentID == intentID {
			o.PaymentStatus = ps
			o.UpdatedAt = m.now()
			m.ordersByID[id] = o
			return nil
		}
	}
	return ErrNotFound
}

func (m *Memory) ListOrderItems(ctx context.Context, orderID string) ([]orders.OrderItem, error) {
	unlock := m.rlock(ctx)
	defer unlock()
	items := m.itemsByOrder[orderID]
	out := make([]orders.OrderItem, 0, len(items))
	for _, it := range items {
		out = append(out, cloneItem(it))
	}
	return out, nil
}

func (m *Memory) UpdateOrderItemFinal(ctx context.Context, itemID string, finalQty *int, finalWeightLb *float64, lineSubtotalCents int) error {
	unlock := m.wlock(ctx)
	defer unlock()
	for orderID, items := range m.itemsByOrder {
		for i, it := range items {
			if it.ID != itemID {
				continue
			}
			it.FinalQuantity = cloneInt(finalQty)
			it.FinalWeightLb = cloneFloat(finalWeightLb)
			sub := lineSubtotalCents
			it.FinalLineSubtotalCents = &sub
			m.itemsByOrder[orderID][i] = it
			return nil
		}
	}
	return ErrNotFound
}

func (m *Memory) AppendRefund(ctx context.Context, r *orders.Refund) error {
	unlock := m.wlock(ctx)
	defer unlock()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.CreatedAt = m.now()
	m.refunds = append(m.refunds, *r)
	return nil
}

func (m *Memory) RefundedCents(ctx context.Context, orderID string) (int, error) {
	unlock := m.rlock(ctx)
	defer unlock()
	total := 0
	for _, r := range m.refunds {
		if r.OrderID == orderID {
			total += r.AmountCents
		}
	}
	return total, nil
}

func (m *Memory) SaveReceipt(ctx context.Context, orderID, key string) error {
	unlock := m.wlock(ctx)
	defer unlock()
	m.receipts[orderID] = key
	return nil
}

func (m *Memory) GetReceiptKey(ctx context.Context, orderID string) (string, error) {
	unlock := m.rlock(ctx)
	defer unlock()
	return m.receipts[orderID], nil
}
