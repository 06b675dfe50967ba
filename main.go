// main.go
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"telehealth-core/cmd"
	"telehealth-core/internal/data/repository"
	"telehealth-core/internal/usecase"
	"telehealth-core/internal/wire"
	"telehealth-core/pkg/cache"
	"telehealth-core/pkg/database"
	"telehealth-core/pkg/gateway"
	"telehealth-core/pkg/metrics"
	"telehealth-core/pkg/mq"
	"telehealth-core/pkg/utils"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	config, err := utils.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := utils.InitLogger(config.App.Name, config.App.LogPath, config.App.Debug)
	if err != nil {
		log.Printf("Failed to init logger: %v. Using standard log.", err)
		logger, _ = zap.NewProduction()
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting application",
		zap.String("app", config.App.Name),
		zap.String("port", config.App.Port),
		zap.Bool("debug", config.App.Debug),
	)

	if config.Paystack.SecretKey == "" {
		logger.Fatal("PAYSTACK_SECRET_KEY is required")
	}

	if config.Database.MigrateOnStart {
		if err := cmd.Migrate(config.Database, logger); err != nil {
			logger.Fatal("Failed to migrate database", zap.Error(err))
		}
	}

	db, err := database.InitDB(config.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("Database connected successfully")

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	deps := usecase.Deps{
		Repo:    repository.NewRepository(db, logger),
		Tx:      repository.NewTransactor(db, logger),
		Gateway: gateway.NewPaystackClient(gateway.Config{
			BaseURL:   config.Paystack.BaseURL,
			SecretKey: config.Paystack.SecretKey,
			Timeout:   config.Paystack.Timeout,
		}, m, logger),
		Metrics: m,
		Config:  config,
	}

	// Redis is optional; without it every slot query is computed.
	if config.Redis.Addr != "" {
		rdb, err := cache.InitRedis(config.Redis)
		if err != nil {
			logger.Warn("Redis unavailable, slot cache disabled", zap.Error(err))
		} else {
			defer func() { _ = rdb.Close() }()
			deps.SlotCache = cache.NewSlotCache(rdb, config.Redis.SlotCacheTTL)
			logger.Info("Redis connected", zap.String("addr", config.Redis.Addr))
		}
	}

	// RabbitMQ is optional; without it notifications are only logged and
	// order payments are not forwarded.
	notifier := usecase.NewLogNotifier(logger)
	if config.RabbitMQ.URL != "" {
		pub, err := mq.NewPublisher(config.RabbitMQ.URL, config.RabbitMQ.Exchange)
		if err != nil {
			logger.Warn("RabbitMQ unavailable, falling back to log notifier", zap.Error(err))
		} else {
			defer func() { _ = pub.Close() }()
			notifier = usecase.NewBrokerNotifier(pub)
			deps.Orders = pub
			logger.Info("RabbitMQ connected", zap.String("exchange", config.RabbitMQ.Exchange))
		}
	}
	dispatcher := usecase.NewNotificationDispatcher(notifier, 5*time.Second, logger)
	deps.Notifier = dispatcher

	app := wire.Wiring(deps, db, registry, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return cmd.APIServer(gctx, app.Router, config.App.Port, config.App.ShutdownTimeout, logger)
	})
	if config.Sweeper.Enabled {
		g.Go(func() error {
			app.Service.Sweeper.Start(gctx)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("Application stopped with error", zap.Error(err))
	}

	dispatcher.Wait()
	logger.Info("Application stopped")
}
