package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"content-distributor/domain/dto"
	"content-distributor/domain/model"
	"content-distributor/domain/repository"
	"content-distributor/infrastructure/cache"
	"content-distributor/infrastructure/clients/publisher"
	"content-distributor/infrastructure/configuration"
	"content-distributor/infrastructure/kafka"
	"content-distributor/infrastructure/logger"
	"content-distributor/infrastructure/metrics"
	"content-distributor/infrastructure/oauth"
	"content-distributor/infrastructure/persistence"
	"content-distributor/infrastructure/pubsub"
	"content-distributor/infrastructure/realtime"
	"content-distributor/infrastructure/scheduler"
	"content-distributor/infrastructure/servicebus"
	"content-distributor/infrastructure/utils"
	httpHandler "content-distributor/interfaces/http"
	"content-distributor/server"
	"content-distributor/usecase"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

func recoverPanic() {
	if err := recover(); err != nil {
		logger.GetLogger().WithField("error", err).Error("Application panic recovered")
	}
}

func main() {
	defer recoverPanic()

	issueFor := flag.String("issue-token", "", "print an API token for this user id and exit")
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "lifetime of a token printed by -issue-token")
	tokenRole := flag.String("token-role", "", "role claim of a token printed by -issue-token (admin may publish to official accounts)")
	flag.Parse()

	// OS env keeps precedence over both files
	loaded := configuration.LoadEnvFromFile("config.env", ".env")
	if len(loaded) > 0 {
		logger.GetLogger().WithField("files", loaded).Info("Env files loaded")
		configuration.Reload()
	}
	cfg := configuration.C

	if *issueFor != "" {
		token, err := utils.GenerateToken(*issueFor, *issueFor, *tokenRole, cfg.App.SecretKey, *tokenTTL)
		if err != nil {
			logger.GetLogger().WithField("error", err).Error("Cannot issue token")
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfg); err != nil {
		logger.GetLogger().WithField("error", err).Error("Server returned an error")
		os.Exit(2)
	}
	logger.GetLogger().Info("Application stopped")
}

func run(ctx context.Context, cfg configuration.Config) error {
	g, ctx := errgroup.WithContext(ctx)

	recordDb, err := persistence.NewPostgreSQLDB(cfg.Database.Psql)
	if err != nil {
		return fmt.Errorf("publish record database: %w", err)
	}
	defer recordDb.Close()
	if err := persistence.EnsureSchema(recordDb); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	accountRepository, closeAccounts, err := InitiateAccounts(recordDb, cfg.Database)
	if err != nil {
		return err
	}
	defer closeAccounts()

	mongoDb, err := persistence.NewMongoDb(ctx, cfg.Database.Mongo)
	if err != nil {
		return fmt.Errorf("content database: %w", err)
	}
	defer func() { _ = mongoDb.Client().Disconnect(context.Background()) }()
	contentRepository := persistence.NewContentRepository(mongoDb)
	recordRepository := persistence.NewPublishRecordRepository(recordDb)
	auditRepository := InitiateAudit(recordDb, cfg.Database.Audit)

	redisClient, err := cache.NewCache(ctx,
		fmt.Sprintf("%s:%s", cfg.RedisClient.Host, cfg.RedisClient.Port),
		cfg.RedisClient.Username,
		cfg.RedisClient.Password,
		cfg.RedisClient.DB,
	)
	if err != nil {
		if cfg.Scheduler.Queue == "redis" {
			return fmt.Errorf("redis task queue: %w", err)
		}
		logger.GetLogger().WithField("error", err).Warn("Redis not available - refresh locks and account reconnect disabled")
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	oauthClients := oauth.ClientsFromConfig(cfg.OAuth)
	tokenOpts := []oauth.Option{oauth.WithMargin(cfg.Distribution.TokenRefreshMargin), oauth.WithObserver(m)}
	if redisClient != nil {
		tokenOpts = append(tokenOpts, oauth.WithLocker(cache.NewRedisLocker(redisClient, cfg.Scheduler.KeyPrefix+":lock")))
	}
	tokens := oauth.NewTokenManager(accountRepository, oauthClients, tokenOpts...)

	publishers, err := publisher.Build(publisher.Settings{
		SiteBaseURL: cfg.Distribution.SiteBaseURL,
		Platforms:   cfg.Platforms,
		Bot: publisher.BotAPISpec{
			Token:     cfg.Telegram.BotToken,
			ChannelID: cfg.Telegram.ChannelID,
			APIURL:    cfg.Telegram.APIURL,
		},
	}, publisher.Deps{Records: recordRepository, Tokens: tokens})
	if err != nil {
		return fmt.Errorf("build publishers: %w", err)
	}
	logger.GetLogger().WithField("platforms", publishers.Platforms()).Info("Publishers ready")

	sched := scheduler.New(InitiateQueue(cfg.Scheduler, redisClient), scheduler.Config{
		Workers: map[scheduler.Lane]int{
			scheduler.LaneDefault: cfg.Scheduler.DefaultWorkers,
			scheduler.LaneLow:     cfg.Scheduler.LowWorkers,
		},
		PollInterval: cfg.Scheduler.PollInterval,
	}, scheduler.WithObserver(m))

	hub := realtime.NewPublishHub()
	sinks := []usecase.StatusSink{usecase.StatusSinkFunc(func(_ context.Context, evt dto.PublishStatusEvent) error {
		hub.Broadcast(evt)
		return nil
	})}
	if notifier := InitiateNotifier(ctx, cfg.ServiceBus); notifier != nil {
		defer func() { _ = notifier.Close(context.Background()) }()
		sinks = append(sinks, notifier)
	}

	metricsUsecase := usecase.NewMetricsUsecase(recordRepository, accountRepository, publishers, sched, usecase.MetricsConfig{
		Cooldown: cfg.Distribution.MetricsCooldown,
		Window:   cfg.Distribution.MetricsSweepWindow,
	}, usecase.WithMetricsObserver(m))
	publishUsecase := usecase.NewPublishUsecase(contentRepository, accountRepository, recordRepository, auditRepository, publishers, metricsUsecase,
		usecase.PublishConfig{
			MaxAttempts: cfg.Distribution.PublishMaxAttempts,
			Backoff:     cfg.Distribution.PublishBackoff,
			Timeouts:    platformTimeouts(cfg.Platforms),
			StuckAfter:  cfg.Distribution.StuckAfter,
		},
		usecase.WithStatusSinks(sinks...),
		usecase.WithPublishObserver(m),
	)
	for _, class := range []scheduler.TaskClass{publishUsecase.TaskClass(), metricsUsecase.TaskClass()} {
		if err := sched.Register(class); err != nil {
			return err
		}
	}

	_, telegram := publishers.Get(model.PlatformTelegram)
	distributionOpts := []usecase.DistributionOption{usecase.WithTelegram(telegram), usecase.WithDistributionObserver(m)}
	if auditRepository != nil {
		distributionOpts = append(distributionOpts, usecase.WithAuditLog(auditRepository))
	}
	distributionUsecase := usecase.NewDistributionUsecase(contentRepository, accountRepository, recordRepository, sched,
		usecase.NewStaggerTable(cfg.Distribution.Stagger, cfg.Distribution.DefaultDelay), distributionOpts...)

	var accountOAuthHandler httpHandler.IAccountOAuthHandler
	if redisClient != nil && len(oauthClients) > 0 {
		accountUsecase := usecase.NewAccountUsecase(accountRepository, oauthClients, cache.NewRedisStateStore(redisClient, cfg.Scheduler.KeyPrefix+":oauth-state"))
		accountOAuthHandler = httpHandler.NewAccountOAuthHandler(accountUsecase)
	}

	checks := map[string]httpHandler.Check{
		"postgres": recordDb.PingContext,
		"mongo":    func(ctx context.Context) error { return mongoDb.Client().Ping(ctx, nil) },
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	router := server.InitiateRouter(server.RouterDeps{
		SecretKey:      cfg.App.SecretKey,
		AllowedOrigins: cfg.App.AllowedOrigins,
		Distribution:   httpHandler.NewDistributionHandler(distributionUsecase, publishers.Platforms()),
		Health:         httpHandler.NewHealthHandler(checks),
		AccountOAuth:   accountOAuthHandler,
		Stream:         hub.Serve,
		Metrics:        m.Handler(),
		MetricsHandler: m.GinMiddleware(),
	})

	cron := scheduler.NewCron()
	if err := cron.Add("metrics_sweep", cfg.Distribution.MetricsSweepSpec, func(ctx context.Context) {
		if _, err := metricsUsecase.Sweep(ctx); err != nil {
			logger.GetLogger().WithField("error", err).Error("metrics sweep failed")
		}
	}); err != nil {
		return err
	}
	if err := cron.Add("stuck_report", cfg.Distribution.StuckReportSpec, func(ctx context.Context) {
		if _, err := publishUsecase.ReportStuck(ctx); err != nil {
			logger.GetLogger().WithField("error", err).Error("stuck report failed")
		}
	}); err != nil {
		return err
	}

	g.Go(func() error { return sched.Run(ctx) })
	g.Go(func() error { return cron.Run(ctx) })

	if cfg.Pubsub.ProjectID != "" && cfg.Pubsub.SubscriptionID != "" {
		pubSubClient, err := pubsub.NewPubSub(ctx, cfg.Pubsub.ProjectID)
		if err != nil {
			logger.GetLogger().WithField("error", err).Warn("Pub/Sub not available - content ready subscription disabled")
		} else {
			defer pubSubClient.Close()
			subscriber := pubsub.NewContentSubscriber(pubSubClient, cfg.Pubsub.SubscriptionID)
			g.Go(func() error { return subscriber.Run(ctx, distributionUsecase.HandleContentReady) })
		}
	}
	if len(cfg.Kafka.Brokers) > 0 && cfg.Kafka.Topic != "" {
		consumer := kafka.NewContentConsumer(cfg.Kafka)
		defer consumer.Close()
		g.Go(func() error { return consumer.Run(ctx, distributionUsecase.HandleContentReady) })
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.Go(func() error {
		logger.GetLogger().WithFields(map[string]interface{}{"port": cfg.App.Port, "tls": cfg.App.TLSEnabled}).Info("Starting application")
		var err error
		if cfg.App.TLSEnabled && cfg.App.TLSCertFile != "" && cfg.App.TLSKeyFile != "" {
			err = httpServer.ListenAndServeTLS(cfg.App.TLSCertFile, cfg.App.TLSKeyFile)
		} else {
			if cfg.App.TLSEnabled {
				logger.GetLogger().Error("TLS enabled but cert or key path empty; falling back to HTTP")
			}
			err = httpServer.ListenAndServe()
		}
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.GetLogger().Info("Application shutdown requested")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// InitiateAccounts picks the account store: MSSQL in production or when
// DB_VENDOR=mssql, otherwise the PostgreSQL pool shared with publish records.
func InitiateAccounts(psql *sql.DB, cfg configuration.Database) (repository.IAccount, func(), error) {
	env := os.Getenv("ENV")
	if os.Getenv("DB_VENDOR") != "mssql" && env != "production" && env != "prod" {
		return persistence.NewAccountRepository(psql), func() {}, nil
	}
	mssql, err := persistence.NewMSSQLDB(cfg.Mssql)
	if err != nil {
		return nil, nil, fmt.Errorf("account database (mssql): %w", err)
	}
	if err := persistence.EnsureAccountSchemaMSSQL(mssql); err != nil {
		_ = mssql.Close()
		return nil, nil, fmt.Errorf("ensure mssql account schema: %w", err)
	}
	return persistence.NewAccountRepositoryMSSQL(mssql), func() { _ = mssql.Close() }, nil
}

// InitiateAudit returns nil when the audit log cannot be opened; publishing carries on without it.
func InitiateAudit(psql *sql.DB, cfg configuration.AuditDb) repository.IPublishAudit {
	var (
		auditDb *gorm.DB
		err     error
	)
	if cfg.DSN == "" {
		auditDb, err = persistence.NewAuditDBFromConn(psql)
	} else {
		auditDb, err = persistence.NewAuditDB(cfg.Dialect, cfg.DSN)
	}
	if err != nil {
		logger.GetLogger().WithField("error", err).Warn("Publish audit log not available")
		return nil
	}
	return persistence.NewPublishAuditRepository(auditDb)
}

// InitiateQueue picks the task queue. Only the redis queue keeps pending
// publish and retry tasks across a restart.
func InitiateQueue(cfg configuration.Scheduler, client *redis.Client) scheduler.Queue {
	if cfg.Queue == "redis" && client != nil {
		return scheduler.NewRedisQueue(client, cfg.KeyPrefix+":tasks")
	}
	logger.GetLogger().WithField("queue", cfg.Queue).Warn("Using in-memory task queue - scheduled publishes and retries are lost on restart")
	return scheduler.NewMemoryQueue()
}

// InitiateNotifier returns nil when Service Bus is not configured or unreachable.
func InitiateNotifier(ctx context.Context, cfg configuration.ServiceBus) servicebus.IStatusNotifier {
	if cfg.Namespace == "" || cfg.Queue == "" {
		return nil
	}
	client, err := servicebus.NewServiceBus(ctx, cfg.Namespace)
	if err != nil {
		logger.GetLogger().WithField("error", err).Warn("Azure Service Bus not available - status notifications disabled")
		return nil
	}
	notifier, err := servicebus.NewStatusNotifier(client, cfg.Queue)
	if err != nil {
		logger.GetLogger().WithField("error", err).Warn("Azure Service Bus sender failed - status notifications disabled")
		return nil
	}
	return notifier
}

func platformTimeouts(platforms map[string]configuration.Platform) map[string]time.Duration {
	out := make(map[string]time.Duration, len(platforms))
	for name, p := range platforms {
		if p.Timeout > 0 {
			out[model.NormalizePlatform(name)] = p.Timeout
		}
	}
	return out
}
