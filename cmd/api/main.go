package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/oasismarkets/go-pickup-orders/internal/booking"
	"github.com/oasismarkets/go-pickup-orders/internal/config"
	"github.com/oasismarkets/go-pickup-orders/internal/httpx"
	kafkax "github.com/oasismarkets/go-pickup-orders/internal/kafka"
	"github.com/oasismarkets/go-pickup-orders/internal/lifecycle"
	"github.com/oasismarkets/go-pickup-orders/internal/orders"
	"github.com/oasismarkets/go-pickup-orders/internal/payment"
	"github.com/oasismarkets/go-pickup-orders/internal/postgres"
	"github.com/oasismarkets/go-pickup-orders/internal/receipt"
	"github.com/oasismarkets/go-pickup-orders/internal/redisx"
	"github.com/oasismarkets/go-pickup-orders/internal/store"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := zerolog.New(os.Stdout).With().Timestamp().Str("service", cfg.ServiceName).Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loc, err := time.LoadLocation(cfg.StoreTimezone)
	if err != nil {
		log.Fatal().Err(err).Str("tz", cfg.StoreTimezone).Msg("bad store timezone")
	}

	// Store
	var st store.Store
	switch cfg.StoreBackend {
	case "memory":
		st = store.NewMemory()
		log.Warn().Msg("using in-memory store, data is not persisted")
	default:
		db, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("db connect")
		}
		defer db.Close()
		st = &store.Postgres{DB: db}
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Payment provider
	var provider payment.Provider
	switch cfg.PaymentProvider {
	case "stripe":
		provider, err = payment.NewStripe(cfg.StripeSecretKey, cfg.StripeWebhookSecret)
		if err != nil {
			log.Fatal().Err(err).Msg("stripe init")
		}
	default:
		provider = payment.Mock{}
	}

	// Receipt storage
	storage, err := receipt.NewLocalStorage(cfg.ReceiptDir, cfg.PublicBaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("receipt storage")
	}

	// Kafka producers, one per topic, fronted by the event-type router
	topics := map[string]string{
		orders.EventOrderPlaced:    orders.TopicOrderPlaced,
		orders.EventStatusChanged:  orders.TopicStatusChanged,
		orders.EventOrderDelayed:   orders.TopicOrderDelayed,
		orders.EventOrderFinalized: orders.TopicOrderFinalized,
		orders.EventOrderRefunded:  orders.TopicOrderRefunded,
		orders.EventOrderFulfilled: orders.TopicOrderFulfilled,
	}
	routes := make(map[string]*kafkax.Producer, len(topics))
	for eventType, topic := range topics {
		p := kafkax.NewProducer(cfg.KafkaBrokers, topic, 1024)
		p.Start(ctx)
		routes[eventType] = p
	}
	events := &kafkax.Router{Routes: routes}

	// Services
	book := &booking.Service{
		Store:    st,
		Payments: provider,
		Events:   events,
		Slots: booking.SlotConfig{
			Location:        loc,
			OpenHour:        cfg.OpenHour,
			CloseHour:       cfg.CloseHour,
			Capacity:        cfg.SlotCapacity,
			LeadTimeMinutes: cfg.LeadTimeMinutes,
		},
		TaxRateBps:  cfg.TaxRateBps,
		Currency:    cfg.Currency,
		ServiceName: cfg.ServiceName,
		Log:         log.With().Str("component", "booking").Logger(),
	}
	life := &lifecycle.Service{
		Store:       st,
		Payments:    provider,
		Receipts:    storage,
		Events:      events,
		TaxRateBps:  cfg.TaxRateBps,
		ServiceName: cfg.ServiceName,
		Log:         log.With().Str("component", "lifecycle").Logger(),
	}

	// Router & handlers
	router := httpx.NewRouter(log)
	(&httpx.ShopperHandler{Booking: book, Store: st, Redis: rdb, Receipts: storage, Log: log}).Register(router)
	(&httpx.AdminHandler{Booking: book, Lifecycle: life, Store: st, Log: log}).Register(router)
	(&httpx.WebhookHandler{Payments: provider, Lifecycle: life, Redis: rdb, Log: log}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("http listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info().Msg("shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = srv.Shutdown(shutdownCtx)
	events.Close()
	cancel()
	events.WaitClosed()
}
