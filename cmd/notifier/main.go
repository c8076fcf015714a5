package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/oasismarkets/go-pickup-orders/internal/config"
	kafkax "github.com/oasismarkets/go-pickup-orders/internal/kafka"
	"github.com/oasismarkets/go-pickup-orders/internal/notifier"
	"github.com/oasismarkets/go-pickup-orders/internal/orders"
	"github.com/oasismarkets/go-pickup-orders/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := zerolog.New(os.Stdout).With().Timestamp().Str("service", cfg.ServiceName+"-notifier").Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	svc := &notifier.Service{Redis: rdb, Log: log}

	group := getenv("NOTIFIER_GROUP", "notifier-svc")
	workers := getint("NOTIFIER_WORKERS", 4)

	topics := []string{
		orders.TopicOrderPlaced,
		orders.TopicStatusChanged,
		orders.TopicOrderDelayed,
		orders.TopicOrderFinalized,
		orders.TopicOrderRefunded,
		orders.TopicOrderFulfilled,
	}
	for _, topic := range topics {
		cons := kafkax.NewConsumer(cfg.KafkaBrokers, group, topic, workers)
		go func(topic string) {
			log.Info().Str("group", group).Str("topic", topic).Int("workers", workers).Msg("consumer started")
			if err := cons.Start(ctx, svc.Handle); err != nil {
				log.Error().Err(err).Str("topic", topic).Msg("consumer exit")
				cancel()
			}
		}(topic)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down")
	cancel()
	time.Sleep(500 * time.Millisecond)
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}
