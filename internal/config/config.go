package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store backends
const (
	BackendPostgres  = "postgres"
	BackendPostgREST = "postgrest"
	BackendMemory    = "memory"
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

// GetDSN 获取 lib/pq 连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// PostgRESTConfig 托管数据库服务的 REST 查询接口
type PostgRESTConfig struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// MQTTConfig 名册变更通知
type MQTTConfig struct {
	Enabled     bool
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	QoS         byte
}

// Config iuran-data 配置
type Config struct {
	HTTP struct {
		Addr string
	}
	StoreBackend string
	Database     DatabaseConfig
	PostgREST    PostgRESTConfig
	Redis        RedisConfig
	MQTT         MQTTConfig
	Events       struct {
		Stream       string
		StreamMaxLen int64
	}
	Stats struct {
		CacheEnabled bool
		CacheTTL     time.Duration
	}
	Export struct {
		Dir string
	}
	Log struct {
		Level  string
		Format string
	}
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")

	cfg.StoreBackend = strings.ToLower(getEnv("STORE_BACKEND", BackendPostgres))
	switch cfg.StoreBackend {
	case BackendPostgres, BackendPostgREST, BackendMemory:
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = parseInt(getEnv("DB_PORT", "5432"), 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "iuran")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = parseInt(getEnv("DB_MAX_CONNS", "10"), 10)
	cfg.Database.MaxIdle = parseInt(getEnv("DB_MAX_IDLE", "5"), 5)

	cfg.PostgREST.URL = getEnv("POSTGREST_URL", "")
	cfg.PostgREST.APIKey = getEnv("POSTGREST_API_KEY", "")
	cfg.PostgREST.Timeout = parseDuration(getEnv("POSTGREST_TIMEOUT", "15s"), 15*time.Second)
	if cfg.StoreBackend == BackendPostgREST && cfg.PostgREST.URL == "" {
		return nil, fmt.Errorf("POSTGREST_URL is required when STORE_BACKEND=%s", BackendPostgREST)
	}

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = parseInt(getEnv("REDIS_DB", "0"), 0)

	// Redis Streams 事件流，空字符串表示不写
	cfg.Events.Stream = getEnv("EVENTS_STREAM", "")
	cfg.Events.StreamMaxLen = int64(parseInt(getEnv("EVENTS_STREAM_MAXLEN", "10000"), 10000))

	cfg.Stats.CacheEnabled = getEnv("STATS_CACHE_ENABLED", "false") == "true"
	cfg.Stats.CacheTTL = parseDuration(getEnv("STATS_CACHE_TTL", "30s"), 30*time.Second)

	// MQTT 默认禁用
	cfg.MQTT.Enabled = getEnv("MQTT_ENABLED", "false") == "true"
	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "iuran-data")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.TopicPrefix = getEnv("MQTT_TOPIC_PREFIX", "iuran/roster")
	cfg.MQTT.QoS = byte(parseInt(getEnv("MQTT_QOS", "1"), 1))

	cfg.Export.Dir = getEnv("EXPORT_DIR", ".")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return def
	}
	return d
}
