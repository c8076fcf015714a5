package orders

import (
	"encoding/json"
	"time"
)

const (
	EventOrderPlaced    = "OrderPlaced"
	EventStatusChanged  = "OrderStatusChanged"
	EventOrderDelayed   = "OrderDelayed"
	EventOrderFinalized = "OrderFinalized"
	EventOrderRefunded  = "OrderRefunded"
	EventOrderFulfilled = "OrderFulfilled"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id
	Payload       json.RawMessage `json:"payload"`
}

type OrderPlacedPayload struct {
	OrderID             string    `json:"order_id"`
	OrderNumber         string    `json:"order_number"`
	SlotStart           time.Time `json:"pickup_slot_start"`
	EstimatedTotalCents int       `json:"estimated_total_cents"`
}

type StatusChangedPayload struct {
	OrderID string `json:"order_id"`
	From    Status `json:"from"`
	To      Status `json:"to"`
}

type OrderDelayedPayload struct {
	OrderID           string    `json:"order_id"`
	DelayMinutes      int       `json:"delay_minutes"`
	TotalDelayMinutes int       `json:"total_delay_minutes"`
	SlotStart         time.Time `json:"pickup_slot_start"`
	EstimatedStart    time.Time `json:"estimated_pickup_start"`
}

type OrderFinalizedPayload struct {
	OrderID         string `json:"order_id"`
	FinalTotalCents int    `json:"final_total_cents"`
}

type OrderRefundedPayload struct {
	OrderID            string        `json:"order_id"`
	AmountCents        int           `json:"amount_cents"`
	TotalRefundedCents int           `json:"total_refunded_cents"`
	PaymentStatus      PaymentStatus `json:"payment_status"`
}

type OrderFulfilledPayload struct {
	OrderID    string `json:"order_id"`
	ReceiptKey string `json:"receipt_key"`
}
