package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"medease-realtime/common/database"
	mqttcommon "medease-realtime/common/mqtt"
	rediscommon "medease-realtime/common/redis"
	"medease-realtime/internal/aggregator"
	"medease-realtime/internal/alert"
	"medease-realtime/internal/config"
	"medease-realtime/internal/feed"
	httpapi "medease-realtime/internal/http"
	"medease-realtime/internal/realtime"
	"medease-realtime/internal/repository"
	"medease-realtime/internal/storage"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Components 组装 HTTP / websocket 层所需的依赖
type Components struct {
	Store  repository.Store
	Feed   feed.Feed
	Alerts alert.Sink
	Cache  *aggregator.CacheManager   // 可为 nil
	Ledger *aggregator.ReminderLedger // 可为 nil
	Blobs  httpapi.BlobStore          // nil 时不注册文档接口
	Checks map[string]httpapi.Pinger
}

// App 实时聚合服务
type App struct {
	config   *config.Config
	logger   *zap.Logger
	registry *aggregator.Registry
	hub      *realtime.Hub
	handler  http.Handler
	server   *Server

	db          *sql.DB
	redisClient *redis.Client
	mqttClient  *mqttcommon.Client
}

// NewApp 连接外部依赖并组装服务
func NewApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	var (
		c   = Components{Checks: make(map[string]httpapi.Pinger)}
		app = &App{config: cfg, logger: logger}
		err error
	)
	fail := func(err error) (*App, error) {
		app.closeClients()
		return nil, err
	}

	// Redis：stream 模式必需，listen 模式下仅用于快照缓存
	redisClient := rediscommon.NewRedisClient(&cfg.Redis)
	if err := rediscommon.Ping(ctx, redisClient); err != nil {
		if cfg.Feed.Mode == config.FeedModeStream {
			_ = rediscommon.Close(redisClient)
			return fail(fmt.Errorf("failed to connect to redis: %w", err))
		}
		logger.Warn("Redis unavailable, snapshot cache disabled", zap.Error(err))
		_ = rediscommon.Close(redisClient)
	} else {
		app.redisClient = redisClient
		c.Checks["redis"] = func(ctx context.Context) error { return rediscommon.Ping(ctx, redisClient) }
	}

	switch cfg.StoreBackend {
	case config.StoreBackendSupabase:
		client, err := repository.NewSupabaseClient(cfg.Supabase.URL, cfg.Supabase.ServiceKey)
		if err != nil {
			return fail(fmt.Errorf("failed to create supabase client: %w", err))
		}
		c.Store = repository.NewSupabaseStore(client, logger)
	default:
		app.db, err = database.NewPostgresDB(ctx, &cfg.Database)
		if err != nil {
			return fail(fmt.Errorf("failed to connect to database: %w", err))
		}
		c.Store = repository.NewPostgresStore(app.db, logger)
		db := app.db
		c.Checks["database"] = db.PingContext
	}

	switch cfg.Feed.Mode {
	case config.FeedModeStream:
		c.Feed = feed.NewStreamFeed(app.redisClient, feed.StreamFeedOptions{
			Prefix:    cfg.Feed.StreamPrefix,
			MaxLen:    cfg.Feed.StreamMaxLen,
			BatchSize: cfg.Feed.BatchSize,
			Block:     cfg.Feed.Block,
		}, logger)
	default:
		c.Feed = feed.NewPGFeed(cfg.Database.GetDSN(), cfg.Feed.MinReconnect, cfg.Feed.MaxReconnect, logger)
	}

	sinks := alert.MultiSink{alert.NewLogSink(logger)}
	if cfg.Alert.MQTTEnabled {
		app.mqttClient, err = mqttcommon.NewClient(&cfg.MQTT, logger)
		if err != nil {
			return fail(fmt.Errorf("failed to connect to mqtt: %w", err))
		}
		sinks = append(sinks, alert.NewMQTTSink(app.mqttClient, cfg.Alert.TopicPrefix, cfg.MQTT.QoS))
	}
	c.Alerts = sinks

	// 服药标记：有 Redis 时跨实例共享，否则只在本进程内保留到当天结束
	if app.redisClient != nil {
		kv := aggregator.NewRedisKVStore(app.redisClient)
		c.Ledger = aggregator.NewReminderLedger(kv, logger)
		if cfg.Aggregator.SnapshotCacheTTL > 0 {
			c.Cache = aggregator.NewCacheManager(kv, cfg.Aggregator.SnapshotCacheTTL, logger)
		}
	} else {
		c.Ledger = aggregator.NewReminderLedger(aggregator.NewMemoryKVStore(), logger)
	}

	if cfg.Supabase.URL != "" && cfg.Supabase.ServiceKey != "" {
		c.Blobs = storage.NewClient(cfg.Supabase.StorageURL(), cfg.Supabase.ServiceKey, cfg.Supabase.Bucket, logger)
	} else {
		logger.Info("Supabase storage not configured, document routes disabled")
	}

	app.assemble(c)
	return app, nil
}

// NewAppWithComponents 使用现成依赖组装（不持有任何外部连接）
func NewAppWithComponents(cfg *config.Config, logger *zap.Logger, c Components) *App {
	app := &App{config: cfg, logger: logger}
	app.assemble(c)
	return app
}

// SessionOptions 配置 → 会话参数
func SessionOptions(cfg *config.Config) aggregator.Options {
	return aggregator.Options{
		MoodLogLimit:      cfg.Aggregator.MoodLogLimit,
		NotificationLimit: cfg.Aggregator.NotificationLimit,
		Backoff: aggregator.BackoffPolicy{
			Initial:     cfg.Aggregator.BackoffInitial,
			Max:         cfg.Aggregator.BackoffMax,
			MaxAttempts: cfg.Aggregator.MaxAttempts,
			Jitter:      0.2,
		},
		Location: cfg.Location(),
	}
}

func (a *App) assemble(c Components) {
	deps := aggregator.Deps{
		Reader: c.Store,
		Feed:   c.Feed,
		Alerts: c.Alerts,
		Cache:  c.Cache,
		Ledger: c.Ledger,
		Logger: a.logger,
	}
	a.registry = aggregator.NewRegistry(deps, SessionOptions(a.config), a.config.Aggregator.SessionIdleTimeout, a.logger)
	a.hub = realtime.NewHub(a.logger)
	bridge := NewSessionBridge(a.registry, a.hub, a.logger)

	router := httpapi.NewRouter(a.logger)
	router.RegisterDashboardRoutes(httpapi.NewDashboardHandler(a.registry, a.logger))
	router.RegisterRecordRoutes(httpapi.NewRecordsHandler(c.Store, a.logger))
	if c.Blobs != nil {
		router.RegisterDocumentRoutes(httpapi.NewDocumentsHandler(c.Store, c.Blobs, a.logger))
	}
	router.RegisterHealthRoutes(httpapi.NewHealthHandler(c.Checks))
	router.Mount("/ws", realtime.NewHandler(a.hub, bridge, a.logger))

	a.handler = router
	a.server = NewServer(a.config.HTTP.Addr, router, a.logger)
}

// Handler 路由（测试用）
func (a *App) Handler() http.Handler { return a.handler }

// Registry 会话表
func (a *App) Registry() *aggregator.Registry { return a.registry }

// Hub websocket hub
func (a *App) Hub() *realtime.Hub { return a.hub }

// Start 启动 HTTP 服务，阻塞直到 Stop
func (a *App) Start(ctx context.Context) error {
	a.logger.Info("Starting medease-realtime service",
		zap.String("store_backend", a.config.StoreBackend),
		zap.String("feed_mode", a.config.Feed.Mode),
		zap.String("timezone", a.config.Aggregator.Timezone),
	)
	return a.server.Start()
}

// Stop 先停 HTTP，再关闭会话与外部连接
func (a *App) Stop(ctx context.Context) error {
	var errs []error
	if err := a.server.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http server: %w", err))
	}
	if err := a.registry.Close(); err != nil {
		errs = append(errs, fmt.Errorf("sessions: %w", err))
	}
	if err := a.closeClients(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *App) closeClients() error {
	var errs []error
	if a.mqttClient != nil {
		a.mqttClient.Disconnect()
		a.mqttClient = nil
	}
	if a.redisClient != nil {
		if err := rediscommon.Close(a.redisClient); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
		a.redisClient = nil
	}
	if a.db != nil {
		if err := database.Close(a.db); err != nil {
			errs = append(errs, fmt.Errorf("database: %w", err))
		}
		a.db = nil
	}
	return errors.Join(errs...)
}
