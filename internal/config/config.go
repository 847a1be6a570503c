package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMongo    = "mongo"
)

type Config struct {
	AppHost   string
	HTTPPort  string
	AppEnv    string
	LogLevel  string
	LogFormat string

	// StoreDriver selects the backing store for municipalities and tickets: postgres or mongo.
	StoreDriver string
	// RequestTimeout bounds every store call made on behalf of a request.
	RequestTimeout time.Duration

	DB struct {
		Host     string
		Port     string
		User     string
		Password string
		Database string
		SSLMode  string
	}

	Mongo struct {
		URI      string
		Database string
	}

	// Redis caches tenant resolutions when Addr is set.
	Redis struct {
		Addr     string
		Password string
		DB       int
		TTL      time.Duration
	}

	// KafkaBrokers and KafkaTopicTicket enable ticket.created / ticket.assigned events.
	KafkaBrokers     []string
	KafkaTopicTicket string

	// NotificationServiceURL receives POST /send on assignment; empty disables notifications.
	NotificationServiceURL string
	NotifyQueueSize        int
}

func Load() (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load("../.env")

	cfg := &Config{
		AppHost:                getEnv("APP_HOST", "0.0.0.0"),
		HTTPPort:               firstEnv("APP_PORT", "HTTP_PORT", "8098"),
		AppEnv:                 getEnv("APP_ENV", "development"),
		LogLevel:               getEnv("LOG_LEVEL", "info"),
		LogFormat:              getEnv("LOG_FORMAT", "json"),
		StoreDriver:            strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres)),
		KafkaBrokers:           ParseList(getEnv("KAFKA_BROKERS", "")),
		KafkaTopicTicket:       getEnv("KAFKA_TOPIC_TICKET", "cityfix.tickets"),
		NotificationServiceURL: strings.TrimRight(getEnv("NOTIFICATION_SERVICE_URL", ""), "/"),
	}
	var err error
	if cfg.RequestTimeout, err = getDuration("REQUEST_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.NotifyQueueSize, err = getInt("NOTIFY_QUEUE_SIZE", 256); err != nil {
		return nil, err
	}

	cfg.DB.Host = getEnv("DB_HOST", "localhost")
	cfg.DB.Port = getEnv("DB_PORT", "5432")
	cfg.DB.User = getEnv("DB_USER", "postgres")
	cfg.DB.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.DB.Database = getEnv("DB_DATABASE", "cityfix")
	cfg.DB.SSLMode = getEnv("DB_SSLMODE", "disable")

	cfg.Mongo.URI = getEnv("MONGO_URI", "mongodb://localhost:27017")
	cfg.Mongo.Database = getEnv("MONGO_DATABASE", "cityfix")

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	if cfg.Redis.DB, err = getInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.Redis.TTL, err = getDuration("GEO_CACHE_TTL", 10*time.Minute); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreDriverPostgres:
		if c.DB.Host == "" || c.DB.Database == "" {
			return errors.New("config: DB_HOST and DB_DATABASE are required")
		}
		if c.AppEnv == "production" && c.DB.Password == "" {
			return errors.New("config: in production DB_PASSWORD is required")
		}
	case StoreDriverMongo:
		if c.Mongo.URI == "" || c.Mongo.Database == "" {
			return errors.New("config: MONGO_URI and MONGO_DATABASE are required")
		}
	default:
		return fmt.Errorf("config: unknown STORE_DRIVER %q (want postgres or mongo)", c.StoreDriver)
	}
	if c.RequestTimeout <= 0 {
		return errors.New("config: REQUEST_TIMEOUT must be positive")
	}
	if c.NotifyQueueSize <= 0 {
		return errors.New("config: NOTIFY_QUEUE_SIZE must be positive")
	}
	return nil
}

func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.Database, c.DB.SSLMode)
}

func (c *Config) DatabaseURL() string {
	pass := url.QueryEscape(c.DB.Password)
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DB.User, pass, c.DB.Host, c.DB.Port, c.DB.Database, c.DB.SSLMode)
}

func (c *Config) Addr() string {
	return c.AppHost + ":" + c.HTTPPort
}

// ParseList splits "host1:9092,host2:9092" into its non-empty parts.
func ParseList(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func firstEnv(keysAndDef ...string) string {
	if len(keysAndDef) == 0 {
		return ""
	}
	def := keysAndDef[len(keysAndDef)-1]
	for _, k := range keysAndDef[:len(keysAndDef)-1] {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return d, nil
}
