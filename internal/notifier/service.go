// Package notifier consumes order events and keeps the redis status cache
// warm, so shopper status polls are served without touching postgres.
package notifier

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/oasismarkets/go-pickup-orders/internal/kafka"
	"github.com/oasismarkets/go-pickup-orders/internal/orders"
	"github.com/oasismarkets/go-pickup-orders/internal/redisx"
)

const consumerName = "notifier"

// StatusCache is the value stored under order_status:{id}. Fields the event
// stream has not reported yet stay empty.
type StatusCache struct {
	Status            orders.Status        `json:"status,omitempty"`
	PaymentStatus     orders.PaymentStatus `json:"payment_status,omitempty"`
	TotalDelayMinutes int                  `json:"total_delay_minutes,omitempty"`
}

type Service struct {
	Redis *redis.Client
	Log   zerolog.Logger
}

// Handle processes one event message. A nil return commits the offset, so
// malformed payloads are logged and skipped rather than redelivered forever.
func (s *Service) Handle(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		s.Log.Warn().Err(err).Str("topic", m.Topic).Msg("undecodable event dropped")
		return nil
	}

	dedupKey := fmt.Sprintf(redisx.KeyDedup, consumerName, env.EventID)
	fresh, err := s.Redis.SetNX(ctx, dedupKey, 1, redisx.TTLDedup).Result()
	if err != nil {
		return fmt.Errorf("dedup check: %w", err)
	}
	if !fresh {
		return nil
	}

	switch env.EventType {
	case orders.EventOrderPlaced:
		p, err := kafkax.UnwrapPayload[orders.OrderPlacedPayload](env.Payload)
		if err != nil {
			return s.drop(env, err)
		}
		return s.cache(ctx, p.OrderID, func(c *StatusCache) {
			c.Status = orders.StatusPlaced
			c.PaymentStatus = orders.PaymentPending
		})
	case orders.EventStatusChanged:
		p, err := kafkax.UnwrapPayload[orders.StatusChangedPayload](env.Payload)
		if err != nil {
			return s.drop(env, err)
		}
		return s.cache(ctx, p.OrderID, func(c *StatusCache) {
			c.Status = p.To
		})
	case orders.EventOrderDelayed:
		p, err := kafkax.UnwrapPayload[orders.OrderDelayedPayload](env.Payload)
		if err != nil {
			return s.drop(env, err)
		}
		return s.cache(ctx, p.OrderID, func(c *StatusCache) {
			c.Status = orders.StatusDelayed
			c.TotalDelayMinutes = p.TotalDelayMinutes
		})
	case orders.EventOrderRefunded:
		p, err := kafkax.UnwrapPayload[orders.OrderRefundedPayload](env.Payload)
		if err != nil {
			return s.drop(env, err)
		}
		return s.cache(ctx, p.OrderID, func(c *StatusCache) {
			c.PaymentStatus = p.PaymentStatus
			if p.PaymentStatus == orders.PaymentFullyRefunded {
				c.Status = orders.StatusRefunded
			}
		})
	case orders.EventOrderFulfilled:
		p, err := kafkax.UnwrapPayload[orders.OrderFulfilledPayload](env.Payload)
		if err != nil {
			return s.drop(env, err)
		}
		return s.cache(ctx, p.OrderID, func(c *StatusCache) {
			c.Status = orders.StatusFulfilled
		})
	default:
		return nil
	}
}

func (s *Service) drop(env orders.Envelope, err error) error {
	s.Log.Warn().Err(err).Str("event_type", env.EventType).Str("event_id", env.EventID).Msg("bad payload dropped")
	return nil
}

// cache read-modify-writes the status entry so one event never erases
// fields written by another.
func (s *Service) cache(ctx context.Context, orderID string, apply func(*StatusCache)) error {
	key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)

	var entry StatusCache
	raw, err := s.Redis.Get(ctx, key).Bytes()
	switch {
	case err == redis.Nil:
	case err != nil:
		return fmt.Errorf("read status cache: %w", err)
	default:
		_ = json.Unmarshal(raw, &entry)
	}
	apply(&entry)

	if err := s.Redis.Set(ctx, key, kafkax.MustMarshal(entry), redisx.TTLStatusCache).Err(); err != nil {
		return fmt.Errorf("write status cache: %w", err)
	}
	s.Log.Debug().Str("order_id", orderID).Str("status", string(entry.Status)).Msg("status cache updated")
	return nil
}
