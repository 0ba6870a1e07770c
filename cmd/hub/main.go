// Command hub runs the Vertex integration hub and the Insight report
// scheduler behind one HTTP surface.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/ataiva-software/vertex-sub003/internal/api"
	"github.com/ataiva-software/vertex-sub003/internal/auth"
	"github.com/ataiva-software/vertex-sub003/internal/cache"
	"github.com/ataiva-software/vertex-sub003/internal/config"
	domainnotification "github.com/ataiva-software/vertex-sub003/internal/domain/notification"
	domainreport "github.com/ataiva-software/vertex-sub003/internal/domain/report"
	domainwebhook "github.com/ataiva-software/vertex-sub003/internal/domain/webhook"
	"github.com/ataiva-software/vertex-sub003/internal/hub"
	"github.com/ataiva-software/vertex-sub003/internal/hub/connector"
	"github.com/ataiva-software/vertex-sub003/internal/hub/events"
	"github.com/ataiva-software/vertex-sub003/internal/hub/integration"
	"github.com/ataiva-software/vertex-sub003/internal/hub/notification"
	"github.com/ataiva-software/vertex-sub003/internal/hub/webhook"
	"github.com/ataiva-software/vertex-sub003/internal/insight/reports"
	"github.com/ataiva-software/vertex-sub003/internal/secrets"
	"github.com/ataiva-software/vertex-sub003/internal/storage"
	"github.com/ataiva-software/vertex-sub003/internal/storage/memory"
	"github.com/ataiva-software/vertex-sub003/internal/storage/postgres"
	"github.com/ataiva-software/vertex-sub003/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log := logger.New("hub", cfg.LogLevel, cfg.LogFormat)
	log.WithField("env", string(cfg.Env)).Info("starting vertex hub")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Persistence: postgres when DATABASE_URL is set, in-memory otherwise.
	var store storage.Store
	if cfg.DatabaseURL != "" {
		pg, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.WithError(err).Fatal("open database")
		}
		defer pg.Close()
		store = pg
		log.Info("using postgres store")
	} else {
		store = memory.New()
		log.Warn("DATABASE_URL not set; using in-memory store")
	}

	// Tier-2 cache is optional.
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		defer redisClient.Close()
	}
	policy := cache.DefaultPolicy()
	if cfg.CachePolicyPath != "" {
		loaded, err := cache.LoadPolicy(cfg.CachePolicyPath)
		if err != nil {
			log.WithError(err).Fatal("load cache policy")
		}
		policy = loaded
	}
	twoTier := cache.New(cache.Config{
		Enabled:   cfg.CacheEnabled,
		LocalSize: cfg.CacheTier1Size,
		LocalTTL:  cfg.CacheTier1TTL,
		RemoteTTL: cfg.CacheTier2TTL,
		Policy:    policy,
	}, redisClient, log)

	// Subsystems.
	engine := integration.New(integration.Config{
		Store:     store,
		Registry:  connector.DefaultRegistry(),
		Resolver:  secrets.EnvResolver{},
		Logger:    log,
		IdleTTL:   cfg.ConnectorIdleTTL,
		MaxCached: cfg.ConnectorCacheMax,
		Timeout:   cfg.WebhookTimeout,
	})
	defer engine.Stop()

	webhookSvc := webhook.NewService(store, domainwebhook.RetryPolicy{
		Base:        cfg.WebhookRetryBase,
		Cap:         cfg.WebhookRetryCap,
		MaxAttempts: cfg.WebhookMaxAttempts,
		Jitter:      cfg.WebhookJitter,
	}, log)

	webhookWorker := webhook.NewWorker(webhookSvc, store, webhook.WorkerConfig{
		Workers:        cfg.WebhookWorkers,
		Timeout:        cfg.WebhookTimeout,
		PerWebhookRate: cfg.WebhookRateLimit,
	}, log)

	notificationSvc := notification.NewService(store, log)
	transports := notification.Transports{
		domainnotification.ChannelEmail: notification.NewSMTPTransport(notification.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			From:     cfg.SMTPFrom,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
		}),
		domainnotification.ChannelChat: notification.NewChatTransport(notification.GatewayConfig{
			Endpoint: cfg.ChatGatewayURL,
			Token:    cfg.ChatGatewayToken,
		}, cfg.NotifyChannelTimeout),
		domainnotification.ChannelSMS: notification.NewSMSTransport(notification.GatewayConfig{
			Endpoint: cfg.SMSGatewayURL,
			Token:    cfg.SMSGatewayToken,
		}, cfg.NotifyChannelTimeout),
		domainnotification.ChannelPush: notification.NewPushTransport(notification.GatewayConfig{
			Endpoint: cfg.PushGatewayURL,
			Token:    cfg.PushGatewayToken,
		}, cfg.NotifyChannelTimeout),
		domainnotification.ChannelCustom: notification.NewCustomTransport(cfg.NotifyChannelTimeout),
	}
	dispatcher := notification.NewDispatcher(notificationSvc, store, transports, notification.DispatcherConfig{
		WorkersPerChannel: cfg.NotifyWorkersPerChannel,
		ChannelTimeout:    cfg.NotifyChannelTimeout,
		RetryCap:          cfg.NotifyRetryCap,
	}, log)

	broker := events.NewBroker(store, webhookSvc, events.Config{
		QueueDepth:   cfg.BrokerQueueDepth,
		PublishBlock: cfg.BrokerPublishBlock,
	}, log)

	reportSvc := reports.NewService(store, log)
	generator := reports.NewGenerator(cfg.ReportOutputDir)

	var h *hub.Hub
	scheduler := reports.NewScheduler(reportSvc, store, generator,
		reports.NotifierFunc(func(ctx context.Context, rep domainreport.Report, ex domainreport.Execution) {
			h.ReportGenerated(ctx, rep, ex)
		}),
		broker,
		reports.SchedulerConfig{
			Workers: cfg.ReportWorkers,
			Grace:   cfg.ReportGrace,
		}, log)

	h = hub.New(store, engine, webhookSvc, notificationSvc, broker, reportSvc, scheduler, log)

	// Background loops.
	if err := broker.Start(ctx); err != nil {
		log.WithError(err).Fatal("start event broker")
	}
	webhookWorker.Start(ctx)
	dispatcher.Start(ctx)
	scheduler.Start(ctx)

	// HTTP surface.
	tokens := auth.NewManager(cfg.JWTSecret, cfg.JWTExpiry)
	handler := api.NewServer(h, tokens, twoTier, cfg, log)
	srv := api.NewHTTPServer(handler, listenAddr(cfg))

	go func() {
		log.WithField("addr", srv.Addr).Info("http server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("http server failed")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	scheduler.Stop()
	dispatcher.Stop()
	webhookWorker.Stop()
	broker.Stop()
	log.Info("shutdown complete")
}

func listenAddr(cfg *config.Config) string {
	return ":" + strconv.Itoa(cfg.HTTPPort)
}
