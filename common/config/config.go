package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
)

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int // 0 使用 go-redis 默认值
}

// MQTTConfig MQTT配置（仅用于告警发布）
type MQTTConfig struct {
	Broker   string
	ClientID string // 实例会追加随机后缀，多副本不会互踢
	Username string
	Password string
	QoS      byte
}

// SupabaseConfig 托管后端（PostgREST + Storage）配置
type SupabaseConfig struct {
	URL        string
	ServiceKey string
	Bucket     string
}

// GetDSN 获取数据库连接字符串（key=value 形式，lib/pq 与 pq.Listener 通用）
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// LoadFromEnv 读取 <prefix>_HOST / _PORT / _USER / _PASSWORD / _NAME / _SSLMODE / _MAX_CONNS / _MAX_IDLE
func (c *DatabaseConfig) LoadFromEnv(prefix string) {
	setString(&c.Host, prefix+"_HOST")
	setInt(&c.Port, prefix+"_PORT")
	setString(&c.User, prefix+"_USER")
	setString(&c.Password, prefix+"_PASSWORD")
	setString(&c.Database, prefix+"_NAME")
	setString(&c.SSLMode, prefix+"_SSLMODE")
	setInt(&c.MaxConns, prefix+"_MAX_CONNS")
	setInt(&c.MaxIdle, prefix+"_MAX_IDLE")
}

// LoadFromEnv 读取 <prefix>_ADDR / _PASSWORD / _DB / _POOL_SIZE
func (c *RedisConfig) LoadFromEnv(prefix string) {
	setString(&c.Addr, prefix+"_ADDR")
	setString(&c.Password, prefix+"_PASSWORD")
	setInt(&c.DB, prefix+"_DB")
	setInt(&c.PoolSize, prefix+"_POOL_SIZE")
}

// LoadFromEnv 读取 <prefix>_BROKER / _CLIENT_ID / _USERNAME / _PASSWORD / _QOS（0-2，其他值忽略）
func (c *MQTTConfig) LoadFromEnv(prefix string) {
	setString(&c.Broker, prefix+"_BROKER")
	setString(&c.ClientID, prefix+"_CLIENT_ID")
	setString(&c.Username, prefix+"_USERNAME")
	setString(&c.Password, prefix+"_PASSWORD")
	if v, err := strconv.Atoi(os.Getenv(prefix + "_QOS")); err == nil && v >= 0 && v <= 2 {
		c.QoS = byte(v)
	}
}

// LoadFromEnv 读取 <prefix>_URL / _SERVICE_ROLE_KEY / _BUCKET
func (c *SupabaseConfig) LoadFromEnv(prefix string) {
	setString(&c.URL, prefix+"_URL")
	setString(&c.ServiceKey, prefix+"_SERVICE_ROLE_KEY")
	setString(&c.Bucket, prefix+"_BUCKET")
}

// RestURL PostgREST 入口
func (c *SupabaseConfig) RestURL() string {
	return joinURL(c.URL, "rest/v1")
}

// StorageURL Storage API 入口
func (c *SupabaseConfig) StorageURL() string {
	return joinURL(c.URL, "storage/v1")
}

func joinURL(base, p string) string {
	u, err := url.Parse(base)
	if err != nil || base == "" {
		return base
	}
	return u.JoinPath(p).String()
}

// 环境变量为空或无法解析时保留原值
func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		*dst = v
	}
}
