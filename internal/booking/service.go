// Package booking owns slot inspection and the order-creation transaction:
// optimistic slot validation, price/stock pre-checks, then an atomic
// re-check + sequence + payment intent + order/items insert + stock
// reservation. Nothing is ever partially persisted.
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/oasismarkets/go-pickup-orders/internal/kafka"
	"github.com/oasismarkets/go-pickup-orders/internal/money"
	"github.com/oasismarkets/go-pickup-orders/internal/orders"
	"github.com/oasismarkets/go-pickup-orders/internal/payment"
	"github.com/oasismarkets/go-pickup-orders/internal/pickup"
	"github.com/oasismarkets/go-pickup-orders/internal/store"
)

var (
	ErrValidation         = errors.New("invalid request")
	ErrInvalidSlot        = errors.New("invalid pickup slot")
	ErrSlotFull           = errors.New("pickup slot is full")
	ErrProductUnavailable = errors.New("product unavailable")
	// ErrDateNotEditable guards day-range and slot-block writes: only today
	// and tomorrow (store-local) are operator-mutable.
	ErrDateNotEditable = errors.New("date must be today or tomorrow")
	ErrPaymentProvider = errors.New("payment provider failure")
)

type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

type SlotConfig struct {
	Location        *time.Location
	OpenHour        int
	CloseHour       int
	Capacity        int
	LeadTimeMinutes int
}

type Service struct {
	Store       store.Store
	Payments    payment.Provider
	Events      Publisher // nil disables event publishing
	Slots       SlotConfig
	TaxRateBps  int
	Currency    string
	ServiceName string
	Log         zerolog.Logger
	Now         func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// dayConfig merges the default store hours with the per-day override and
// the blocked-slot set for one service date.
func (s *Service) dayConfig(ctx context.Context, date string) (pickup.DayConfig, error) {
	cfg := pickup.DayConfig{
		Location:        s.Slots.Location,
		OpenHour:        s.Slots.OpenHour,
		CloseHour:       s.Slots.CloseHour,
		Capacity:        s.Slots.Capacity,
		LeadTimeMinutes: s.Slots.LeadTimeMinutes,
	}

	override, err := s.Store.GetDayRange(ctx, date)
	if err != nil {
		return pickup.DayConfig{}, err
	}
	if override != nil {
		cfg.OpenHour = override.OpenHour
		cfg.CloseHour = override.CloseHour
	}

	from, to, err := pickup.DayBounds(date, s.Slots.Location)
	if err != nil {
		return pickup.DayConfig{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	cfg.Unavailable, err = s.Store.UnavailableSlots(ctx, from, to)
	if err != nil {
		return pickup.DayConfig{}, err
	}
	return cfg, nil
}

// SlotsForDate derives the slot list for one service date. Shopper callers
// get the lead-time-filtered view; operators pass includePastCutoff.
func (s *Service) SlotsForDate(ctx context.Context, date string, includePastCutoff bool) ([]pickup.Slot, error) {
	cfg, err := s.dayConfig(ctx, date)
	if err != nil {
		return nil, err
	}
	from, to, err := pickup.DayBounds(date, s.Slots.Location)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	counts, err := s.Store.SlotBookingCounts(ctx, from, to)
	if err != nil {
		return nil, err
	}
	slots, err := pickup.Generate(date, cfg, counts, s.now(), includePastCutoff)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return slots, nil
}

type AdminDay struct {
	Date      string        `json:"date"`
	OpenHour  int           `json:"open_hour"`
	CloseHour int           `json:"close_hour"`
	Slots     []pickup.Slot `json:"slots"`
}

// editableDates are the operator-mutable service dates: today and tomorrow
// in the store timezone.
func (s *Service) editableDates() []string {
	now := s.now().In(s.Slots.Location)
	return []string{
		now.Format("2006-01-02"),
		now.AddDate(0, 0, 1).Format("2006-01-02"),
	}
}

// AdminDays lists today's and tomorrow's full slot state, unfiltered by
// lead time so operators can block past-cutoff slots.
func (s *Service) AdminDays(ctx context.Context) ([]AdminDay, error) {
	var days []AdminDay
	for _, date := range s.editableDates() {
		cfg, err := s.dayConfig(ctx, date)
		if err != nil {
			return nil, err
		}
		slots, err := s.SlotsForDate(ctx, date, true)
		if err != nil {
			return nil, err
		}
		days = append(days, AdminDay{
			Date:      date,
			OpenHour:  cfg.OpenHour,
			CloseHour: cfg.CloseHour,
			Slots:     slots,
		})
	}
	return days, nil
}

func (s *Service) dateEditable(date string) bool {
	for _, d := range s.editableDates() {
		if d == date {
			return true
		}
	}
	return false
}

// SetDayRange overrides open/close hours for today or tomorrow. A range
// that closes at or before it opens is rejected here so the slot generator
// never sees it.
func (s *Service) SetDayRange(ctx context.Context, date string, openHour, closeHour int) error {
	if _, _, err := pickup.DayBounds(date, s.Slots.Location); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if !s.dateEditable(date) {
		return ErrDateNotEditable
	}
	if openHour < 0 || closeHour > 24 || closeHour <= openHour {
		return fmt.Errorf("%w: close hour must be after open hour", ErrValidation)
	}
	return s.Store.UpsertDayRange(ctx, orders.DayRange{
		Date:      date,
		OpenHour:  openHour,
		CloseHour: closeHour,
	})
}

// SetSlotUnavailable blocks or unblocks a slot for booking. Existing orders
// on a blocked slot keep their booking.
func (s *Service) SetSlotUnavailable(ctx context.Context, slotStart time.Time, unavailable bool) error {
	date := pickup.DayKey(slotStart, s.Slots.Location)
	if !s.dateEditable(date) {
		return ErrDateNotEditable
	}
	return s.Store.SetSlotUnavailable(ctx, slotStart, unavailable)
}

type LineInput struct {
	ProductID         string   `json:"product_id"`
	Quantity          int      `json:"quantity"`
	EstimatedWeightLb *float64 `json:"estimated_weight_lb,omitempty"`
}

type CreateOrderInput struct {
	CustomerName  string      `json:"customer_name"`
	CustomerPhone string      `json:"customer_phone"`
	SlotStart     time.Time   `json:"pickup_slot_start"`
	Items         []LineInput `json:"items"`
}

type CreateOrderResult struct {
	OrderID             string        `json:"order_id"`
	OrderNumber         string        `json:"order_number"`
	PaymentClientSecret string        `json:"payment_client_secret"`
	EstimatedTotalCents int           `json:"estimated_total_cents"`
	Status              orders.Status `json:"status"`
}

// estimatedLine is one priced line with the stock amount it reserves.
type estimatedLine struct {
	product  *orders.Product
	qty      *int
	weightLb *float64
	subtotal int
	reserve  float64
}

func buildEstimatedLine(p *orders.Product, in LineInput) (estimatedLine, error) {
	if p.Unit == orders.UnitLb {
		weight := float64(in.Quantity)
		if in.EstimatedWeightLb != nil {
			weight = *in.EstimatedWeightLb
		}
		if weight <= 0 {
			return estimatedLine{}, fmt.Errorf("%w: weight must be positive for %s", ErrValidation, p.Name)
		}
		return estimatedLine{
			product:  p,
			weightLb: &weight,
			subtotal: money.LineSubtotalCents(p.PriceCents, weight),
			reserve:  weight,
		}, nil
	}

	if in.Quantity <= 0 {
		return estimatedLine{}, fmt.Errorf("%w: quantity must be positive for %s", ErrValidation, p.Name)
	}
	qty := in.Quantity
	return estimatedLine{
		product:  p,
		qty:      &qty,
		subtotal: money.LineSubtotalCents(p.PriceCents, float64(qty)),
		reserve:  float64(qty),
	}, nil
}

// CreateOrder books a pickup slot and creates the order with its line
// items, stock reservation and payment intent in one transaction.
//
// The slot check runs twice: once against a point-in-time read to fail
// fast, and again inside the transaction where the aggregate count is
// authoritative. Two concurrent requests for the last seat serialize at the
// database; the loser aborts with ErrSlotFull and no side effects.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (*CreateOrderResult, error) {
	if in.CustomerName == "" || in.CustomerPhone == "" || len(in.Items) == 0 {
		return nil, fmt.Errorf("%w: customer name, phone and items are required", ErrValidation)
	}

	slotDate := pickup.DayKey(in.SlotStart, s.Slots.Location)
	slots, err := s.SlotsForDate(ctx, slotDate, false)
	if err != nil {
		return nil, err
	}

	var selected *pickup.Slot
	wantKey := pickup.Key(in.SlotStart)
	for i := range slots {
		if pickup.Key(slots[i].Start) == wantKey {
			selected = &slots[i]
			break
		}
	}
	if selected == nil {
		return nil, ErrInvalidSlot
	}
	if selected.Available <= 0 {
		return nil, ErrSlotFull
	}

	ids := make([]string, 0, len(in.Items))
	for _, item := range in.Items {
		ids = append(ids, item.ProductID)
	}
	products, err := s.Store.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	lines := make([]estimatedLine, 0, len(in.Items))
	subtotal := 0
	for _, item := range in.Items {
		p, ok := products[item.ProductID]
		if !ok || !p.Active {
			return nil, fmt.Errorf("%w: %s", ErrProductUnavailable, item.ProductID)
		}
		line, err := buildEstimatedLine(p, item)
		if err != nil {
			return nil, err
		}
		// optimistic stock pre-check; the guarded decrement in the
		// transaction is authoritative
		if p.StockQuantity < line.reserve {
			return nil, fmt.Errorf("%w: %s", store.ErrInsufficientStock, p.Name)
		}
		lines = append(lines, line)
		subtotal += line.subtotal
	}
	totals := money.BuildTotals(subtotal, s.TaxRateBps)

	phone := orders.NormalizePhone(in.CustomerPhone)
	var created orders.Order

	err = s.Store.WithTx(ctx, func(ctx context.Context) error {
		booked, err := s.Store.SlotBookingCount(ctx, selected.Start)
		if err != nil {
			return err
		}
		if booked >= s.Slots.Capacity {
			return ErrSlotFull
		}

		seq, err := s.Store.NextDailySequence(ctx, slotDate)
		if err != nil {
			return err
		}
		orderID := uuid.NewString()
		orderNumber := orders.BuildOrderNumber(selected.Start, seq)

		intent, err := s.Payments.CreateIntent(ctx, payment.IntentRequest{
			OrderID:       orderID,
			OrderNumber:   orderNumber,
			AmountCents:   totals.TotalCents,
			Currency:      s.Currency,
			CustomerName:  in.CustomerName,
			CustomerPhone: phone,
		})
		if err != nil {
			return fmt.Errorf("%w: create intent: %v", ErrPaymentProvider, err)
		}

		created = orders.Order{
			ID:                     orderID,
			OrderNumber:            orderNumber,
			CustomerName:           in.CustomerName,
			CustomerPhone:          phone,
			RequestedSlotStart:     selected.Start,
			RequestedSlotEnd:       selected.End,
			SlotStart:              selected.Start,
			SlotEnd:                selected.End,
			EstimatedPickupStart:   selected.Start,
			EstimatedPickupEnd:     selected.End,
			Status:                 orders.StatusPlaced,
			PaymentStatus:          orders.PaymentPending,
			EstimatedSubtotalCents: totals.SubtotalCents,
			EstimatedTaxCents:      totals.TaxCents,
			EstimatedTotalCents:    totals.TotalCents,
			PaymentIntentID:        intent.ID,
			PaymentClientSecret:    intent.ClientSecret,
			PaymentProvider:        s.Payments.Name(),
		}
		if err := s.Store.InsertOrder(ctx, &created); err != nil {
			return err
		}

		items := make([]orders.OrderItem, 0, len(lines))
		for _, line := range lines {
			items = append(items, orders.OrderItem{
				OrderID: orderID,
				Product: orders.ProductSnapshot{
					ProductID:  line.product.ID,
					Name:       line.product.Name,
					Unit:       line.product.Unit,
					PriceCents: line.product.PriceCents,
				},
				EstimatedQuantity:          line.qty,
				EstimatedWeightLb:          line.weightLb,
				EstimatedLineSubtotalCents: line.subtotal,
			})
		}
		if err := s.Store.InsertOrderItems(ctx, items); err != nil {
			return err
		}

		for _, line := range lines {
			if err := s.Store.DecrementStock(ctx, line.product.ID, line.reserve); err != nil {
				return fmt.Errorf("%w: %s", err, line.product.Name)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publishPlaced(&created)
	s.Log.Info().
		Str("order_id", created.ID).
		Str("order_number", created.OrderNumber).
		Int("total_cents", created.EstimatedTotalCents).
		Msg("order placed")

	return &CreateOrderResult{
		OrderID:             created.ID,
		OrderNumber:         created.OrderNumber,
		PaymentClientSecret: created.PaymentClientSecret,
		EstimatedTotalCents: created.EstimatedTotalCents,
		Status:              created.Status,
	}, nil
}

func (s *Service) publishPlaced(o *orders.Order) {
	if s.Events == nil {
		return
	}
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventOrderPlaced,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      s.ServiceName,
		CorrelationID: o.ID,
		Payload: kafkax.MustMarshal(orders.OrderPlacedPayload{
			OrderID:             o.ID,
			OrderNumber:         o.OrderNumber,
			SlotStart:           o.SlotStart,
			EstimatedTotalCents: o.EstimatedTotalCents,
		}),
	}
	s.Events.Publish(orders.PartitionKey(o.ID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventOrderPlaced)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
