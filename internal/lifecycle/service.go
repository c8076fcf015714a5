// Package lifecycle drives everything that happens to an order after it is
// placed: status moves, delays, weight reconciliation, refunds and fulfillment.
// Every mutation runs inside one store transaction so a rejected guard leaves
// the order untouched.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/oasismarkets/go-pickup-orders/internal/booking"
	kafkax "github.com/oasismarkets/go-pickup-orders/internal/kafka"
	"github.com/oasismarkets/go-pickup-orders/internal/money"
	"github.com/oasismarkets/go-pickup-orders/internal/orders"
	"github.com/oasismarkets/go-pickup-orders/internal/payment"
	"github.com/oasismarkets/go-pickup-orders/internal/receipt"
	"github.com/oasismarkets/go-pickup-orders/internal/store"
)

var (
	ErrTerminalState   = errors.New("order is in a terminal state")
	ErrInvalidDelay    = errors.New("unsupported delay duration")
	ErrNoPaymentIntent = errors.New("order has no payment intent")
	ErrNothingToRefund = errors.New("nothing left to refund")
	ErrPaymentProvider = errors.New("payment provider failure")
	ErrNoReceipt       = errors.New("no receipt on file")
)

type Service struct {
	Store       store.Store
	Payments    payment.Provider
	Receipts    receipt.Storage
	Events      booking.Publisher // nil disables event publishing
	TaxRateBps  int
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

// ChangeStatus applies one transition from the status table. Moving a live
// order to cancelled releases its stock reservation in the same transaction;
// a repeated cancel is a no-op and must not release twice.
func (s *Service) ChangeStatus(ctx context.Context, orderID string, to orders.Status) (*orders.Order, error) {
	if !to.Valid() {
		return nil, fmt.Errorf("unknown status %q", to)
	}

	var updated *orders.Order
	err := s.Store.WithTx(ctx, func(ctx context.Context) error {
		o, err := s.Store.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if err := orders.CheckTransition(o.Status, to); err != nil {
			return err
		}
		from := o.Status
		if from == to {
			updated = o
			return nil
		}

		if to == orders.StatusCancelled {
			if err := s.restoreStock(ctx, orderID); err != nil {
				return err
			}
		}
		o.Status = to
		if err := s.Store.UpdateOrder(ctx, o); err != nil {
			return err
		}
		updated = o
		s.publish(orders.EventStatusChanged, o.ID, orders.StatusChangedPayload{
			OrderID: o.ID,
			From:    from,
			To:      to,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Service) restoreStock(ctx context.Context, orderID string) error {
	items, err := s.Store.ListOrderItems(ctx, orderID)
	if err != nil {
		return err
	}
	for i := range items {
		amount := items[i].ReservedAmount()
		if amount <= 0 {
			continue
		}
		if err := s.Store.RestoreStock(ctx, items[i].Product.ProductID, amount); err != nil {
			return err
		}
	}
	return nil
}

// Delay pushes the order's expected pickup out. Short delays (10/30) shift
// expectations only; 60 moves the physical slot one hour, 90 moves it two.
// Delays accumulate: the estimated window is always the originally requested
// start plus every delay applied so far.
func (s *Service) Delay(ctx context.Context, orderID string, delayMinutes int) (*orders.Order, error) {
	if !orders.AllowedDelayMinutes[delayMinutes] {
		return nil, fmt.Errorf("%w: %d minutes", ErrInvalidDelay, delayMinutes)
	}

	var updated *orders.Order
	err := s.Store.WithTx(ctx, func(ctx context.Context) error {
		o, err := s.Store.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if o.Status.Terminal() {
			return ErrTerminalState
		}
		if err := orders.CheckTransition(o.Status, orders.StatusDelayed); err != nil {
			return err
		}

		if shift := orders.SlotShiftHours(delayMinutes); shift > 0 {
			d := time.Duration(shift) * time.Hour
			o.SlotStart = o.SlotStart.Add(d)
			o.SlotEnd = o.SlotEnd.Add(d)
		}
		o.TotalDelayMinutes += delayMinutes
		o.EstimatedPickupStart = o.RequestedSlotStart.Add(time.Duration(o.TotalDelayMinutes) * time.Minute)
		o.EstimatedPickupEnd = o.EstimatedPickupStart.Add(time.Hour)
		o.Status = orders.StatusDelayed

		if err := s.Store.UpdateOrder(ctx, o); err != nil {
			return err
		}
		updated = o
		s.publish(orders.EventOrderDelayed, o.ID, orders.OrderDelayedPayload{
			OrderID:           o.ID,
			DelayMinutes:      delayMinutes,
			TotalDelayMinutes: o.TotalDelayMinutes,
			SlotStart:         o.SlotStart,
			EstimatedStart:    o.EstimatedPickupStart,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// FinalLine carries the weighed/picked amount for one order item. A nil
// amount keeps the estimate.
type FinalLine struct {
	ItemID        string   `json:"item_id"`
	FinalQuantity *int     `json:"final_quantity,omitempty"`
	FinalWeightLb *float64 `json:"final_weight_lb,omitempty"`
}

// Finalize reconciles estimated amounts against what was actually picked and
// weighed, reprices every line from its snapshot price, and adjusts the
// stock reservation by the delta. Running it again replaces the previous
// final amounts.
func (s *Service) Finalize(ctx context.Context, orderID string, lines []FinalLine) (*orders.Order, error) {
	byItem := make(map[string]FinalLine, len(lines))
	for _, l := range lines {
		byItem[l.ItemID] = l
	}

	var updated *orders.Order
	err := s.Store.WithTx(ctx, func(ctx context.Context) error {
		o, err := s.Store.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if o.Status.Terminal() {
			return ErrTerminalState
		}

		items, err := s.Store.ListOrderItems(ctx, orderID)
		if err != nil {
			return err
		}

		subtotal := 0
		for i := range items {
			it := &items[i]
			prevReserved := it.ReservedAmount()

			var finalQty *int
			var finalWeight *float64
			if it.Product.Unit == orders.UnitLb {
				w := 0.0
				if it.EstimatedWeightLb != nil {
					w = *it.EstimatedWeightLb
				}
				if l, ok := byItem[it.ID]; ok && l.FinalWeightLb != nil {
					w = *l.FinalWeightLb
				} else if it.FinalWeightLb != nil {
					w = *it.FinalWeightLb
				}
				if w < 0 {
					return fmt.Errorf("%w: negative weight for %s", booking.ErrValidation, it.Product.Name)
				}
				finalWeight = &w
			} else {
				q := 0
				if it.EstimatedQuantity != nil {
					q = *it.EstimatedQuantity
				}
				if l, ok := byItem[it.ID]; ok && l.FinalQuantity != nil {
					q = *l.FinalQuantity
				} else if it.FinalQuantity != nil {
					q = *it.FinalQuantity
				}
				if q < 0 {
					return fmt.Errorf("%w: negative quantity for %s", booking.ErrValidation, it.Product.Name)
				}
				finalQty = &q
			}

			var amount float64
			if finalWeight != nil {
				amount = *finalWeight
			} else {
				amount = float64(*finalQty)
			}
			lineSubtotal := money.LineSubtotalCents(it.Product.PriceCents, amount)
			if err := s.Store.UpdateOrderItemFinal(ctx, it.ID, finalQty, finalWeight, lineSubtotal); err != nil {
				return err
			}
			subtotal += lineSubtotal

			// keep the reservation aligned with the reconciled amount
			switch delta := amount - prevReserved; {
			case delta > 0:
				if err := s.Store.DecrementStock(ctx, it.Product.ProductID, delta); err != nil {
					return fmt.Errorf("%w: %s", err, it.Product.Name)
				}
			case delta < 0:
				if err := s.Store.RestoreStock(ctx, it.Product.ProductID, -delta); err != nil {
					return err
				}
			}
		}

		totals := money.BuildTotals(subtotal, s.TaxRateBps)
		o.FinalSubtotalCents = &totals.SubtotalCents
		o.FinalTaxCents = &totals.TaxCents
		o.FinalTotalCents = &totals.TotalCents
		if err := s.Store.UpdateOrder(ctx, o); err != nil {
			return err
		}
		updated = o
		s.publish(orders.EventOrderFinalized, o.ID, orders.OrderFinalizedPayload{
			OrderID:         o.ID,
			FinalTotalCents: totals.TotalCents,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Refund issues a partial or full refund through the payment provider and
// records it in the append-only ledger. amountCents <= 0 means "whatever is
// left". The refundable remainder is derived from the ledger sum, never from
// a counter, so concurrent refunds cannot over-refund.
func (s *Service) Refund(ctx context.Context, orderID string, amountCents int, reason string) (*orders.Refund, error) {
	var created *orders.Refund
	err := s.Store.WithTx(ctx, func(ctx context.Context) error {
		o, err := s.Store.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if o.PaymentIntentID == "" {
			return ErrNoPaymentIntent
		}

		paid := o.PaidTotalCents()
		already, err := s.Store.RefundedCents(ctx, orderID)
		if err != nil {
			return err
		}
		requested := amountCents
		if requested <= 0 {
			requested = paid - already
		}
		amount := money.ClampRefund(requested, already, paid)
		if amount <= 0 {
			return ErrNothingToRefund
		}

		res, err := s.Payments.Refund(ctx, o.PaymentIntentID, amount, reason)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrPaymentProvider, err)
		}

		r := &orders.Refund{
			ID:          uuid.NewString(),
			OrderID:     orderID,
			AmountCents: amount,
			Reason:      reason,
			ProviderRef: res.ID,
			CreatedAt:   s.now().UTC(),
		}
		if err := s.Store.AppendRefund(ctx, r); err != nil {
			return err
		}

		total := already + amount
		if total >= paid {
			o.PaymentStatus = orders.PaymentFullyRefunded
			if orders.CanTransition(o.Status, orders.StatusRefunded) {
				o.Status = orders.StatusRefunded
			}
		} else {
			o.PaymentStatus = orders.PaymentPartiallyRefunded
		}
		if err := s.Store.UpdateOrder(ctx, o); err != nil {
			return err
		}
		created = r
		s.publish(orders.EventOrderRefunded, o.ID, orders.OrderRefundedPayload{
			OrderID:            o.ID,
			AmountCents:        amount,
			TotalRefundedCents: total,
			PaymentStatus:      o.PaymentStatus,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.Log.Info().
		Str("order_id", orderID).
		Int("amount_cents", created.AmountCents).
		Msg("refund recorded")
	return created, nil
}

type FulfillResult struct {
	Order      *orders.Order `json:"order"`
	ReceiptKey string        `json:"receipt_key"`
	ReceiptURL string        `json:"receipt_url"`
}

// Fulfill hands the order over: if it was never finalized the estimates
// become the final amounts, the status moves to fulfilled, and an ESC/POS
// receipt is rendered and stored. Fulfilling twice returns the existing
// receipt.
func (s *Service) Fulfill(ctx context.Context, orderID string) (*FulfillResult, error) {
	var (
		out       FulfillResult
		renderKey string
		renderDoc []byte
	)
	err := s.Store.WithTx(ctx, func(ctx context.Context) error {
		o, err := s.Store.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if err := orders.CheckTransition(o.Status, orders.StatusFulfilled); err != nil {
			return err
		}
		items, err := s.Store.ListOrderItems(ctx, orderID)
		if err != nil {
			return err
		}

		if o.Status == orders.StatusFulfilled {
			key, err := s.Store.GetReceiptKey(ctx, orderID)
			if err != nil {
				return err
			}
			if key != "" {
				u, err := s.Receipts.SignedURL(key)
				if err != nil {
					return err
				}
				out = FulfillResult{Order: o, ReceiptKey: key, ReceiptURL: u}
				return nil
			}
		}

		if o.FinalTotalCents == nil {
			for i := range items {
				it := &items[i]
				if it.FinalQuantity != nil || it.FinalWeightLb != nil {
					continue
				}
				if err := s.Store.UpdateOrderItemFinal(ctx, it.ID,
					it.EstimatedQuantity, it.EstimatedWeightLb, it.EstimatedLineSubtotalCents); err != nil {
					return err
				}
				it.FinalQuantity = it.EstimatedQuantity
				it.FinalWeightLb = it.EstimatedWeightLb
				sub := it.EstimatedLineSubtotalCents
				it.FinalLineSubtotalCents = &sub
			}
			sub := o.EstimatedSubtotalCents
			tax := o.EstimatedTaxCents
			total := o.EstimatedTotalCents
			o.FinalSubtotalCents = &sub
			o.FinalTaxCents = &tax
			o.FinalTotalCents = &total
		}

		o.Status = orders.StatusFulfilled
		if err := s.Store.UpdateOrder(ctx, o); err != nil {
			return err
		}

		renderKey = receipt.Key(o.OrderNumber)
		renderDoc = receipt.BuildEscPos(o, items)
		if err := s.Store.SaveReceipt(ctx, orderID, renderKey); err != nil {
			return err
		}
		out = FulfillResult{Order: o, ReceiptKey: renderKey}
		s.publish(orders.EventOrderFulfilled, o.ID, orders.OrderFulfilledPayload{
			OrderID:    o.ID,
			ReceiptKey: renderKey,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	if renderDoc != nil {
		if err := s.Receipts.Put(ctx, renderKey, renderDoc); err != nil {
			return nil, fmt.Errorf("store receipt: %w", err)
		}
		u, err := s.Receipts.SignedURL(renderKey)
		if err != nil {
			return nil, err
		}
		out.ReceiptURL = u
	}
	return &out, nil
}

// Receipt fetches the stored ESC/POS document for a fulfilled order.
func (s *Service) Receipt(ctx context.Context, orderID string) ([]byte, error) {
	key, err := s.Store.GetReceiptKey(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if key == "" {
		return nil, ErrNoReceipt
	}
	return s.Receipts.Get(ctx, key)
}

// MarkPaid flips the payment status when the provider confirms the intent
// succeeded. Unknown intents are ignored so webhook retries for foreign
// events stay harmless.
func (s *Service) MarkPaid(ctx context.Context, paymentIntentID string) error {
	err := s.Store.SetPaymentStatusByIntent(ctx, paymentIntentID, orders.PaymentPaidEstimated)
	if errors.Is(err, store.ErrNotFound) {
		s.Log.Warn().Str("payment_intent_id", paymentIntentID).Msg("webhook for unknown intent")
		return nil
	}
	return err
}

func (s *Service) publish(eventType, orderID string, payload any) {
	if s.Events == nil {
		return
	}
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      s.ServiceName,
		CorrelationID: orderID,
		Payload:       kafkax.MustMarshal(payload),
	}
	s.Events.Publish(orders.PartitionKey(orderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
