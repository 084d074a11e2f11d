package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
	_ "time/tzdata"

	"medease-realtime/common/config"

	"github.com/joho/godotenv"
)

// 变更流模式
const (
	FeedModeListen = "listen" // 直接 LISTEN Postgres 通知
	FeedModeStream = "stream" // 从 Redis Streams 读取（由 relay 写入）
)

// 存储后端
const (
	StoreBackendPostgres = "postgres"
	StoreBackendSupabase = "supabase"
)

// Config 实时聚合服务配置
type Config struct {
	Database config.DatabaseConfig
	Redis    config.RedisConfig
	MQTT     config.MQTTConfig
	Supabase config.SupabaseConfig

	HTTP struct {
		Addr            string
		ShutdownTimeout time.Duration
	}

	// StoreBackend postgres 或 supabase
	StoreBackend string

	Feed struct {
		Mode         string // listen 或 stream
		StreamPrefix string // Redis stream 名前缀，如 "medease:changes"
		StreamMaxLen int64
		BatchSize    int64
		Block        time.Duration
		MinReconnect time.Duration // pq.Listener 重连间隔
		MaxReconnect time.Duration
	}

	Aggregator struct {
		MoodLogLimit      int
		NotificationLimit int

		// 重订阅退避
		BackoffInitial time.Duration
		BackoffMax     time.Duration
		MaxAttempts    int

		SessionIdleTimeout time.Duration
		Timezone           string

		// 快照缓存（Redis），TTL 为 0 时不写缓存
		SnapshotCacheTTL time.Duration
	}

	Alert struct {
		MQTTEnabled bool
		TopicPrefix string
	}

	Log struct {
		Level  string
		Format string
		File   string
	}
}

// Load 加载配置（存在 .env 时先加载）
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "medease")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 20)
	cfg.Database.MaxIdle = getEnvInt("DB_MAX_IDLE", 0)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)
	cfg.Redis.PoolSize = getEnvInt("REDIS_POOL_SIZE", 0)

	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "medease-realtime")
	cfg.MQTT.QoS = 1
	cfg.MQTT.LoadFromEnv("MQTT")

	cfg.Supabase.Bucket = "medical-documents"
	cfg.Supabase.LoadFromEnv("SUPABASE")

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")
	cfg.HTTP.ShutdownTimeout = getEnvDuration("HTTP_SHUTDOWN_TIMEOUT", 10*time.Second)

	cfg.StoreBackend = getEnv("STORE_BACKEND", StoreBackendPostgres)

	cfg.Feed.Mode = getEnv("FEED_MODE", FeedModeListen)
	cfg.Feed.StreamPrefix = getEnv("FEED_STREAM_PREFIX", "medease:changes")
	cfg.Feed.StreamMaxLen = int64(getEnvInt("FEED_STREAM_MAXLEN", 10000))
	cfg.Feed.BatchSize = int64(getEnvInt("FEED_BATCH_SIZE", 10))
	cfg.Feed.Block = getEnvDuration("FEED_BLOCK", time.Second)
	cfg.Feed.MinReconnect = getEnvDuration("FEED_MIN_RECONNECT", 10*time.Second)
	cfg.Feed.MaxReconnect = getEnvDuration("FEED_MAX_RECONNECT", time.Minute)

	cfg.Aggregator.MoodLogLimit = getEnvInt("MOOD_LOG_LIMIT", 10)
	cfg.Aggregator.NotificationLimit = getEnvInt("NOTIFICATION_LIMIT", 50)
	cfg.Aggregator.BackoffInitial = getEnvDuration("RECONNECT_BACKOFF_INITIAL", time.Second)
	cfg.Aggregator.BackoffMax = getEnvDuration("RECONNECT_BACKOFF_MAX", 30*time.Second)
	cfg.Aggregator.MaxAttempts = getEnvInt("RECONNECT_MAX_ATTEMPTS", 5)
	cfg.Aggregator.SessionIdleTimeout = getEnvDuration("SESSION_IDLE_TIMEOUT", 2*time.Minute)
	cfg.Aggregator.Timezone = getEnv("DASHBOARD_TIMEZONE", "UTC")
	cfg.Aggregator.SnapshotCacheTTL = getEnvDuration("SNAPSHOT_CACHE_TTL", 24*time.Hour)

	cfg.Alert.MQTTEnabled = getEnv("ALERT_MQTT_ENABLED", "false") == "true"
	cfg.Alert.TopicPrefix = getEnv("ALERT_TOPIC_PREFIX", "medease/alerts")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")
	cfg.Log.File = getEnv("LOG_FILE", "")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验枚举类配置
func (c *Config) Validate() error {
	switch c.Feed.Mode {
	case FeedModeListen, FeedModeStream:
	default:
		return fmt.Errorf("invalid FEED_MODE %q (want %s or %s)", c.Feed.Mode, FeedModeListen, FeedModeStream)
	}
	switch c.StoreBackend {
	case StoreBackendPostgres:
	case StoreBackendSupabase:
		if c.Supabase.URL == "" || c.Supabase.ServiceKey == "" {
			return fmt.Errorf("STORE_BACKEND=supabase requires SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY")
		}
	default:
		return fmt.Errorf("invalid STORE_BACKEND %q", c.StoreBackend)
	}
	if _, err := time.LoadLocation(c.Aggregator.Timezone); err != nil {
		return fmt.Errorf("invalid DASHBOARD_TIMEZONE %q: %w", c.Aggregator.Timezone, err)
	}
	return nil
}

// Location 仪表盘“今天”所在时区
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Aggregator.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil && v >= 0 {
		return v
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil && v >= 0 {
		return v
	}
	return defaultValue
}
