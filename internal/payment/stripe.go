package payment

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"github.com/stripe/stripe-go/v78/webhook"
)

type stripeIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type stripeRefundAPI interface {
	New(params *stripe.RefundParams) (*stripe.Refund, error)
}

// Stripe implements Provider on the Stripe API. The intent and refund
// clients are interfaces so tests can inject fakes without network access.
type Stripe struct {
	intents       stripeIntentAPI
	refunds       stripeRefundAPI
	webhookSecret string
}

var _ Provider = (*Stripe)(nil)

func NewStripe(apiKey, webhookSecret string) (*Stripe, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("stripe: api key is required")
	}
	sc := client.New(apiKey, nil)
	return &Stripe{
		intents:       sc.PaymentIntents,
		refunds:       sc.Refunds,
		webhookSecret: webhookSecret,
	}, nil
}

func (s *Stripe) Name() string { return "stripe" }

func (s *Stripe) CreateIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(int64(req.AmountCents)),
		Currency: stripe.String(req.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.AddMetadata("order_id", req.OrderID)
	params.AddMetadata("order_number", req.OrderNumber)
	params.AddMetadata("customer_name", req.CustomerName)
	params.AddMetadata("customer_phone", req.CustomerPhone)

	pi, err := s.intents.New(params)
	if err != nil {
		return Intent{}, err
	}
	if pi.ClientSecret == "" {
		return Intent{}, errors.New("stripe: payment intent has no client_secret")
	}
	return Intent{ID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

func (s *Stripe) Refund(ctx context.Context, intentID string, amountCents int, reason string) (RefundResult, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(intentID),
		Amount:        stripe.Int64(int64(amountCents)),
	}
	params.Context = ctx
	params.AddMetadata("reason", reason)

	re, err := s.refunds.New(params)
	if err != nil {
		return RefundResult{}, err
	}
	return RefundResult{ID: re.ID, AmountCents: int(re.Amount)}, nil
}

func (s *Stripe) HandleWebhook(payload []byte, signature string) (WebhookResult, error) {
	if signature == "" {
		return WebhookResult{}, errors.New("stripe: missing signature header")
	}
	event, err := webhook.ConstructEvent(payload, signature, s.webhookSecret)
	if err != nil {
		return WebhookResult{}, err
	}

	if event.Type != "payment_intent.succeeded" {
		return WebhookResult{Type: WebhookIgnored, EventID: event.ID}, nil
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return WebhookResult{}, err
	}
	return WebhookResult{Type: WebhookPaymentSucceeded, EventID: event.ID, PaymentIntentID: pi.ID}, nil
}
