// Package payment wraps the external payment collaborator. The engine only
// needs intent creation, refunds and the succeeded-webhook signal; provider
// internals stay opaque behind Provider.
package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

type IntentRequest struct {
	OrderID       string
	OrderNumber   string
	AmountCents   int
	Currency      string
	CustomerName  string
	CustomerPhone string
}

type Intent struct {
	ID           string
	ClientSecret string
}

type RefundResult struct {
	ID          string
	AmountCents int
}

const (
	WebhookPaymentSucceeded = "payment_succeeded"
	WebhookIgnored          = "ignored"
)

type WebhookResult struct {
	Type            string
	EventID         string
	PaymentIntentID string
}

type Provider interface {
	Name() string
	CreateIntent(ctx context.Context, req IntentRequest) (Intent, error)
	Refund(ctx context.Context, intentID string, amountCents int, reason string) (RefundResult, error)
	HandleWebhook(payload []byte, signature string) (WebhookResult, error)
}

// Mock is the development/test provider. Identifiers are deterministic so
// tests can assert against them.
type Mock struct{}

var _ Provider = (*Mock)(nil)

func (Mock) Name() string { return "mock" }

func (Mock) CreateIntent(_ context.Context, req IntentRequest) (Intent, error) {
	return Intent{
		ID:           "pi_mock_" + strings.ReplaceAll(req.OrderID, "-", ""),
		ClientSecret: "pi_mock_secret_" + req.OrderNumber,
	}, nil
}

func (Mock) Refund(_ context.Context, intentID string, amountCents int, _ string) (RefundResult, error) {
	return RefundResult{
		ID:          "re_mock_" + intentID,
		AmountCents: amountCents,
	}, nil
}

// HandleWebhook accepts an unsigned Stripe-shaped event body so the full
// webhook path is exercisable in development.
func (Mock) HandleWebhook(payload []byte, _ string) (WebhookResult, error) {
	if len(payload) == 0 {
		return WebhookResult{}, fmt.Errorf("empty webhook payload")
	}
	var ev struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		Data struct {
			Object struct {
				ID string `json:"id"`
			} `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &ev); err != nil {
		return WebhookResult{}, fmt.Errorf("decode webhook payload: %w", err)
	}
	if ev.Type != "payment_intent.succeeded" {
		return WebhookResult{Type: WebhookIgnored, EventID: ev.ID}, nil
	}
	return WebhookResult{Type: WebhookPaymentSucceeded, EventID: ev.ID, PaymentIntentID: ev.Data.Object.ID}, nil
}
