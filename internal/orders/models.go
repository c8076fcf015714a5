package orders

import "time"

type Unit string

const (
	UnitEach Unit = "each"
	UnitLb   Unit = "lb"
)

type PaymentStatus string

const (
	PaymentPending           PaymentStatus = "pending"
	PaymentPaidEstimated     PaymentStatus = "paid_estimated"
	PaymentPartiallyRefunded PaymentStatus = "partially_refunded"
	PaymentFullyRefunded     PaymentStatus = "fully_refunded"
)

type Product struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Category      string    `json:"category"`
	Unit          Unit      `json:"unit"`
	PriceCents    int       `json:"price_cents"`
	StockQuantity float64   `json:"stock_quantity"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ProductSnapshot is the catalog data frozen onto an order item at booking
// time. Later catalog edits must never alter historical orders, so items
// embed this value instead of dereferencing the product row.
type ProductSnapshot struct {
	ProductID  string `json:"product_id"`
	Name       string `json:"product_name"`
	Unit       Unit   `json:"product_unit"`
	PriceCents int    `json:"product_price_cents"`
}

type Order struct {
	ID            string `json:"id"`
	OrderNumber   string `json:"order_number"`
	CustomerName  string `json:"customer_name"`
	CustomerPhone string `json:"customer_phone"`

	// What the customer originally chose. Immutable.
	RequestedSlotStart time.Time `json:"requested_slot_start"`
	RequestedSlotEnd   time.Time `json:"requested_slot_end"`
	// The physical slot, shifted by 60/90-minute delays.
	SlotStart time.Time `json:"pickup_slot_start"`
	SlotEnd   time.Time `json:"pickup_slot_end"`
	// Customer-facing expectation: requested start + cumulative delay.
	EstimatedPickupStart time.Time `json:"estimated_pickup_start"`
	EstimatedPickupEnd   time.Time `json:"estimated_pickup_end"`
	TotalDelayMinutes    int       `json:"total_delay_minutes"`

	Status        Status        `json:"status"`
	PaymentStatus PaymentStatus `json:"payment_status"`

	EstimatedSubtotalCents int `json:"estimated_subtotal_cents"`
	EstimatedTaxCents      int `json:"estimated_tax_cents"`
	EstimatedTotalCents    int `json:"estimated_total_cents"`
	// Final fields are all nil or all set, populated at finalize time.
	FinalSubtotalCents *int `json:"final_subtotal_cents"`
	FinalTaxCents      *int `json:"final_tax_cents"`
	FinalTotalCents    *int `json:"final_total_cents"`

	PaymentIntentID     string `json:"payment_intent_id,omitempty"`
	PaymentClientSecret string `json:"-"`
	PaymentProvider     string `json:"payment_provider,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PaidTotalCents is what refunds clamp against: the final total once the
// order was reconciled, the estimate before that.
func (o *Order) PaidTotalCents() int {
	if o.FinalTotalCents != nil {
		return *o.FinalTotalCents
	}
	return o.EstimatedTotalCents
}

type OrderItem struct {
	ID      string `json:"id"`
	OrderID string `json:"order_id"`
	Product ProductSnapshot

	// Exactly one of quantity/weight is set, chosen by the unit snapshot.
	EstimatedQuantity          *int     `json:"estimated_quantity"`
	EstimatedWeightLb          *float64 `json:"estimated_weight_lb"`
	EstimatedLineSubtotalCents int      `json:"estimated_line_subtotal_cents"`

	FinalQuantity          *int     `json:"final_quantity"`
	FinalWeightLb          *float64 `json:"final_weight_lb"`
	FinalLineSubtotalCents *int     `json:"final_line_subtotal_cents"`
}

// ReservedAmount is the stock units held by this item: the final amount when
// reconciled, the estimate otherwise.
func (it *OrderItem) ReservedAmount() float64 {
	switch {
	case it.FinalQuantity != nil:
		return float64(*it.FinalQuantity)
	case it.FinalWeightLb != nil:
		return *it.FinalWeightLb
	case it.EstimatedQuantity != nil:
		return float64(*it.EstimatedQuantity)
	case it.EstimatedWeightLb != nil:
		return *it.EstimatedWeightLb
	}
	return 0
}

// Refund is one row of the append-only refund ledger. Total refunded is
// always derived by summing these rows, never kept as a counter on Order.
type Refund struct {
	ID          string    `json:"id"`
	OrderID     string    `json:"order_id"`
	AmountCents int       `json:"amount_cents"`
	Reason      string    `json:"reason"`
	ProviderRef string    `json:"provider_ref"`
	CreatedAt   time.Time `json:"created_at"`
}

// DayRange overrides the default open/close hours for one service date.
type DayRange struct {
	Date      string `json:"date"`
	OpenHour  int    `json:"open_hour"`
	CloseHour int    `json:"close_hour"`
}
