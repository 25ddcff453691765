package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/hibiken/asynq"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"cropwatch/auth"
	"cropwatch/internal/alerts"
	"cropwatch/internal/compare"
	"cropwatch/internal/config"
	"cropwatch/internal/dashboard"
	"cropwatch/internal/db"
	"cropwatch/internal/history"
	"cropwatch/internal/logging"
	"cropwatch/internal/models"
	"cropwatch/internal/mqtt"
	"cropwatch/internal/realtime"
	"cropwatch/internal/redis"
	"cropwatch/internal/refcache"
	"cropwatch/internal/reports"
	"cropwatch/internal/scheduler"
	"cropwatch/internal/taskqueue"
	"cropwatch/internal/telemetry"
	"cropwatch/internal/web"
	"cropwatch/internal/web/api"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Log.Level, cfg.Log.Format, cfg.App.Name)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("cropwatch exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbConn, err := db.NewDB(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to DB: %w", err)
	}
	defer dbConn.Close()

	redisClient, err := redis.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	defer redisClient.Close()

	var mqttClient paho.Client
	if cfg.MQTT.Broker != "" {
		mqttClient, err = mqtt.NewMQTTClient(cfg.MQTT, logger.Named("mqtt"))
		if err != nil {
			return fmt.Errorf("failed to connect to MQTT: %w", err)
		}
		defer mqttClient.Disconnect(250)
	}

	refs := refcache.New(dbConn, cfg.Cache.Size, cfg.Cache.TTL,
		refcache.WithKVStore(redis.NewRedisKVStore(redisClient)),
		refcache.WithLogger(logger.Named("refcache")))
	normalizer := telemetry.NewNormalizer()

	dash := dashboard.NewService(dbConn, refs, normalizer, logger.Named("dashboard"))
	hist := history.NewService(dbConn, refs, normalizer, logger.Named("history"))
	cmp := compare.NewService(dbConn, refs, normalizer, logger.Named("compare"))

	// Task queue: alert evaluation per merged change, report generation per
	// schedule firing.
	redisOpt := asynq.RedisClientOpt{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}
	queue := taskqueue.NewClient(redisOpt, logger.Named("taskqueue"))
	defer queue.Close()

	workers := taskqueue.NewServer(redisOpt, cfg.Workers.Concurrency, logger.Named("workers"))
	evaluator := alerts.NewEvaluator(dbConn, alertPublisher(mqttClient, cfg.MQTT.QoS, logger), logger.Named("alerts"))
	workers.HandleAlerts(func(ctx context.Context, d models.Device) error {
		_, err := evaluator.Evaluate(ctx, d)
		return err
	})
	workers.HandleReports(reports.NewGenerator(dbConn, hist, logger.Named("reports")).Generate)
	if err := workers.Start(); err != nil {
		return err
	}
	defer workers.Shutdown()

	sched := scheduler.NewScheduler(dbConn, queue, logger.Named("scheduler"))
	if err := sched.LoadSchedules(ctx); err != nil {
		logger.Warn("failed to load report schedules", zap.Error(err))
	}
	if err := sched.Start(cfg.Reports.Refresh); err != nil {
		return err
	}
	defer sched.Stop()

	// Live merge. The process-wide collection only tracks what has changed
	// since start; each websocket session keeps its own scoped view.
	merger := realtime.NewMerger(realtime.NewCollection(nil), refs, normalizer,
		realtime.WithBufferSize(cfg.Realtime.BufferSize),
		realtime.WithLogger(logger.Named("realtime")))
	merger.OnChange(func(ctx context.Context, ch realtime.Change) {
		if err := queue.EnqueueAlertEvaluation(ctx, ch.Device); err != nil {
			logger.Warn("failed to enqueue alert evaluation", zap.String("dev_eui", ch.Device.ID), zap.Error(err))
		}
	})

	source, err := changeSource(cfg, dbConn, mqttClient, logger)
	if err != nil {
		return err
	}
	unsubscribe, err := merger.StartDeviceRealtime(ctx, source)
	if err != nil {
		return fmt.Errorf("failed to start realtime: %w", err)
	}
	defer unsubscribe()

	if cfg.MDNS.Enabled {
		conn, err := startMDNSServer(cfg.MDNS.LocalName, logger.Named("mdns"))
		if err != nil {
			logger.Warn("failed to start mDNS server", zap.Error(err))
		} else {
			defer conn.Close()
		}
	}

	server := web.NewWebServer(web.Dependencies{
		Auth:      auth.NewAuthModule(cfg.JWT.Secret),
		Dashboard: dash,
		History:   hist,
		Compare:   cmp,
		Feed:      merger,
		Scope:     dbConn,
		Health: map[string]api.Pinger{
			"postgres": dbConn,
			"redis":    redisPinger{redisClient},
		},
	}, logger).Server(cfg.App.Port)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", zap.Error(err))
	}
	logger.Info("Shutdown complete")
	return nil
}

func changeSource(cfg *config.Config, dbConn *db.DB, client paho.Client, logger *zap.Logger) (realtime.Source, error) {
	switch cfg.Realtime.Source {
	case "postgres":
		return db.NewListener(dbConn, cfg.Realtime.Channel, logger.Named("listener")), nil
	case "mqtt":
		if client == nil {
			return nil, errors.New("mqtt realtime source needs a broker")
		}
		return mqtt.NewSource(client, cfg.Realtime.Topic, cfg.MQTT.QoS, logger.Named("mqtt-source")), nil
	}
	return nil, fmt.Errorf("unknown realtime source %q", cfg.Realtime.Source)
}

func alertPublisher(client paho.Client, qos byte, logger *zap.Logger) alerts.Publisher {
	if client == nil {
		return logPublisher{logger.Named("alerts")}
	}
	return mqtt.NewPublisher(client, qos)
}

// logPublisher stands in for MQTT when no broker is configured.
type logPublisher struct{ logger *zap.Logger }

func (p logPublisher) Publish(_ context.Context, topic string, payload []byte) error {
	p.logger.Info("alert notification", zap.String("topic", topic), zap.ByteString("payload", payload))
	return nil
}

type redisPinger struct{ client *goredis.Client }

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}
