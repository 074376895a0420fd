package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ryanfigueredo/mercadito-sub000/internal/checkout"
	"github.com/ryanfigueredo/mercadito-sub000/internal/config"
	"github.com/ryanfigueredo/mercadito-sub000/internal/effects"
	"github.com/ryanfigueredo/mercadito-sub000/internal/middleware"
	"github.com/ryanfigueredo/mercadito-sub000/internal/payment"
	"github.com/ryanfigueredo/mercadito-sub000/internal/queue"
	"github.com/ryanfigueredo/mercadito-sub000/internal/reconcile"
	"github.com/ryanfigueredo/mercadito-sub000/internal/router"
	"github.com/ryanfigueredo/mercadito-sub000/internal/shipping"
	"github.com/ryanfigueredo/mercadito-sub000/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	rd "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

func serveCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the sale relay and the inventory consumer",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, newLogger(cfg.LogLevel))
		},
	}
}

func serve(ctx context.Context, cfg config.AppConfig, logger *slog.Logger) error {
	slog.SetDefault(logger)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	rdb := rd.NewClient(&rd.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		// Redis backed features degrade, the API still serves.
		logger.Warn("redis_unreachable", "addr", cfg.RedisAddr, "err", err)
	}

	products := store.NewProductStore(db)
	orders := store.NewOrderStore(db)
	notifications := store.NewNotificationStore(db)

	providers := payment.NewRegistry(
		payment.NewMercadoPago(payment.MercadoPagoConfig{
			AccessToken:     cfg.MercadoPagoAccessToken,
			WebhookToken:    cfg.MercadoPagoWebhookToken,
			BaseURL:         cfg.MercadoPagoBaseURL,
			NotificationURL: cfg.PublicBaseURL + "/api/webhooks/" + payment.MercadoPagoName,
			Timeout:         cfg.ProviderTimeout,
		}),
		payment.NewPagarme(payment.PagarmeConfig{
			SecretKey:       cfg.PagarmeSecretKey,
			BaseURL:         cfg.PagarmeBaseURL,
			WebhookUser:     cfg.PagarmeWebhookUser,
			WebhookPassword: cfg.PagarmeWebhookPassword,
			Timeout:         cfg.ProviderTimeout,
		}),
	)

	calc, err := shipping.NewCalculator(cfg.ShippingTiers)
	if err != nil {
		return err
	}
	geocoder := shipping.NewCachedGeocoder(
		shipping.NewHTTPGeocoder(cfg.GeocoderBaseURL, cfg.ProviderTimeout),
		rdb, cfg.GeocodeCacheTTL, logger)
	quoter := shipping.NewQuoter(geocoder, calc, shipping.Point{Lat: cfg.ShippingOriginLat, Lng: cfg.ShippingOriginLng})

	instance := "mercadito-" + uuid.NewString()[:8]
	dispatcher := effects.NewDispatcher(effects.Options{
		Products:      products,
		Notifications: notifications,
		Sales:         queue.NewSaleOutbox(rdb, cfg.SaleStream),
		Redis:         rdb,
		Owner:         instance,
		Logger:        logger,
	})
	engine := reconcile.NewEngine(orders, dispatcher, logger)
	checkoutSvc := checkout.NewService(checkout.Deps{
		Products:  products,
		Orders:    orders,
		Quoter:    quoter,
		Providers: providers,
		Events:    engine,
		Redis:     rdb,
		Logger:    logger,
	}, checkout.Config{
		ProviderTimeout: cfg.ProviderTimeout,
		RetryAttempts:   cfg.ProviderRetryAttempts,
		RetryBackoff:    cfg.ProviderRetryBackoff,
		StateTTL:        cfg.CheckoutStateTTL,
	})

	var wg sync.WaitGroup

	producer := queue.NewProducer(cfg.KafkaBrokers, cfg.KafkaSaleTopic)
	defer producer.Close()
	consumerName := cfg.SaleStreamConsumer
	if consumerName == "" {
		consumerName = instance
	}
	relay := queue.NewRelay(rdb, producer, cfg.SaleStream, cfg.SaleStreamGroup, consumerName, logger)
	wg.Add(1)
	go func() {
		defer wg.Done()
		relay.Run(ctx)
	}()

	inventory := queue.NewInventoryConsumer(cfg.KafkaBrokers, cfg.KafkaInventoryTopic, cfg.KafkaGroupID,
		queue.NewInventorySync(products, rdb, instance, logger), logger)
	defer inventory.Close()
	wg.Add(1)
	go func() {
		defer wg.Done()
		inventory.Run(ctx)
	}()

	gin.SetMode(ginMode())
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(logger))
	router.Setup(r, router.Deps{
		DB:            db,
		Redis:         rdb,
		Products:      products,
		Orders:        orders,
		Notifications: notifications,
		Engine:        engine,
		Checkout:      checkoutSvc,
		Providers:     providers,
		Quoter:        quoter,
		Logger:        logger,
	}, cfg)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http_listening", "addr", cfg.HTTPAddr, "instance", instance)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			runErr = fmt.Errorf("http server: %w", err)
		}
	}

	logger.Info("shutting_down")
	cancel()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http_shutdown_failed", "err", err)
	}
	wg.Wait()
	logger.Info("stopped")
	return runErr
}

func ginMode() string {
	if m := os.Getenv(gin.EnvGinMode); m != "" {
		return m
	}
	return gin.ReleaseMode
}
