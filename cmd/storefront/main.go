package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fjod/go_storefront/internal/cache"
	"github.com/fjod/go_storefront/internal/cartstore"
	"github.com/fjod/go_storefront/internal/catalog"
	"github.com/fjod/go_storefront/internal/config"
	"github.com/fjod/go_storefront/internal/consumer"
	httpapi "github.com/fjod/go_storefront/internal/http"
	"github.com/fjod/go_storefront/internal/logger"
	"github.com/fjod/go_storefront/internal/notify"
	"github.com/fjod/go_storefront/internal/payment"
	"github.com/fjod/go_storefront/internal/publisher"
	"github.com/fjod/go_storefront/internal/repository"
	"github.com/fjod/go_storefront/internal/service"
	"github.com/fjod/go_storefront/internal/telemetry"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg := config.Load()
	log := logger.Init(cfg.ServiceName)
	log.Info("storefront starting...")

	if err := run(cfg, log); err != nil {
		log.Error("storefront stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("storefront stopped")
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx := context.Background()
	var wg sync.WaitGroup

	shutdownTelemetry, err := telemetry.Init(ctx, cfg.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			log.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	// Catalog
	products, err := catalog.NewRepository(cfg.CatalogDBPath)
	if err != nil {
		return err
	}
	defer products.Close()
	if err := products.RunMigrations(cfg.CatalogMigration); err != nil {
		return err
	}

	// Orders and outbox
	creds := &repository.Credentials{
		Host:              cfg.DB.Host,
		Port:              cfg.DB.Port,
		User:              cfg.DB.User,
		Password:          cfg.DB.Password,
		DBName:            cfg.DB.DBName,
		MigrationsDirPath: cfg.DB.MigrationsDirPath,
	}
	repo, err := repository.NewRepository(creds)
	if err != nil {
		return err
	}
	defer repo.Close()
	if err := repo.RunMigrations(creds); err != nil {
		return err
	}
	log.Info("database migrations completed")

	// Carts and wishlists
	mongoCtx, cancelMongo := context.WithTimeout(ctx, 15*time.Second)
	defer cancelMongo()
	mongoDB, err := cartstore.ConnectMongoDB(mongoCtx, cfg.MongoURI, cfg.MongoDBName)
	if err != nil {
		return err
	}
	defer func() {
		if err := mongoDB.Client().Disconnect(context.Background()); err != nil {
			log.Warn("mongo disconnect failed", "error", err)
		}
	}()
	store := cartstore.NewMongoStore(mongoDB)
	if err := store.CreateIndexes(mongoCtx); err != nil {
		return err
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Warn("redis unavailable, cart reads will fall through to mongo", "error", err)
	}

	// Payments
	gateway := payment.NewStripeGateway(cfg.StripeSecretKey, nil)
	verifier := payment.NewStripeWebhookVerifier(cfg.StripeWebhookSecret)

	// Email
	var transport notify.Transport = notify.LogTransport{}
	if cfg.SendGridAPIKey != "" {
		transport = notify.NewSendGridTransport(cfg.SendGridAPIKey, "")
	} else {
		log.Warn("SENDGRID_API_KEY not set, emails will only be logged")
	}
	dispatcher := notify.NewDispatcher(transport, notify.StoreInfo{
		Name:         cfg.StoreName,
		SupportEmail: cfg.SupportEmail,
		URL:          cfg.StoreURL,
		From:         cfg.EmailFrom,
	}, repo)

	// Services
	carts := service.NewCartService(store, cache.NewRedisCache(redisClient), products)
	wishlists := service.NewWishlistService(store, products)
	intake := service.NewOrderIntake(repo, repo, service.NewPriceResolver(products))
	checkout := service.NewCheckoutService(intake, repo, gateway, store)
	reconciler := service.NewReconciler(verifier, repo)
	orders := service.NewOrderService(repo)
	emails := service.NewEmailService(repo, dispatcher)

	// Outbox delivery
	notifications := consumer.NewNotificationHandler(repo, repo, dispatcher)
	cleaner := consumer.NewCartCleaner(carts)

	bgCtx, cancelBackground := context.WithCancel(ctx)
	defer cancelBackground()

	var sink publisher.Sink
	var consumers []*consumer.Consumer
	if len(cfg.KafkaBrokers) > 0 {
		sink = publisher.NewKafkaSink(publisher.TopicOrderEvents, cfg.KafkaBrokers...)
		consumers = append(consumers,
			consumer.NewConsumer(notifications, publisher.TopicOrderEvents, "storefront-notifications", cfg.KafkaBrokers...),
			consumer.NewConsumer(cleaner, publisher.TopicOrderEvents, "storefront-cart-cleaner", cfg.KafkaBrokers...),
		)
		log.Info("publishing order events to kafka", "brokers", cfg.KafkaBrokers)
	} else {
		sink = publisher.NewLocalSink(notifications, cleaner)
		log.Warn("KAFKA_BROKERS not set, delivering order events in-process")
	}

	for _, c := range consumers {
		wg.Add(1)
		go func(c *consumer.Consumer) {
			defer wg.Done()
			c.Run(bgCtx)
		}(c)
	}

	poller := publisher.NewOutboxPoller(repo, sink)
	wg.Add(1)
	go func() {
		defer wg.Done()
		poller.Run(bgCtx)
	}()

	// HTTP
	router := httpapi.NewRouter(httpapi.RouterConfig{
		JWTSecret:      []byte(cfg.JWTSecret),
		AllowedOrigins: cfg.CORSAllowedOrigins,
		RequestTimeout: cfg.RequestTimeout,
	}, httpapi.Handlers{
		Cart:     httpapi.NewCartHandler(carts, cfg.RequestTimeout),
		Wishlist: httpapi.NewWishlistHandler(wishlists, cfg.RequestTimeout),
		Products: httpapi.NewProductHandler(products, cfg.RequestTimeout),
		Checkout: httpapi.NewCheckoutHandler(checkout, reconciler, cfg.RequestTimeout),
		Orders:   httpapi.NewOrdersHandler(orders, emails, cfg.RequestTimeout),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      http.MaxBytesHandler(router, cfg.MaxRequestBodySize),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("storefront listening", "port", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
	case err = <-serverErr:
		log.Error("http server failed", "error", err)
	}

	log.Info("shutting down storefront...")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelShutdown()

	if e := srv.Shutdown(shutdownCtx); e != nil {
		log.Warn("http server forced to shutdown", "error", e)
	}

	cancelBackground()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Info("background workers stopped cleanly")
	case <-shutdownCtx.Done():
		log.Warn("background workers didn't stop in time")
	}

	for _, c := range consumers {
		c.Close()
	}
	if e := sink.Close(); e != nil {
		log.Warn("failed to close event sink", "error", e)
	}
	return err
}
