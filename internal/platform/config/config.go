package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	pkgstrings "nexops/pkg/platform/strings"
)

// Feed drivers.
const (
	FeedMemory   = "memory"
	FeedPGNotify = "pgnotify"
	FeedKafka    = "kafka"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	ShutdownTimeout time.Duration
}

type PostgresConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type KafkaConfig struct {
	Brokers        []string
	Topic          string
	Partitions     int32
	OutboxInterval time.Duration
	OutboxBatch    int
}

// Enabled reports whether any broker is configured.
func (k KafkaConfig) Enabled() bool { return len(k.Brokers) > 0 }

// Engine tunes the anomaly session.
type Engine struct {
	FeedDriver     string
	FeedQueueSize  int
	WriteTimeout   time.Duration
	KPIRefresh     time.Duration
	ScanLock       bool
	ScanLockTTL    time.Duration
	AuditDetection bool
}

type Config struct {
	Server   Server
	Postgres PostgresConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Engine   Engine
	LogLevel string
}

// Load reads an optional .env file, then the environment.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}
	cfg := FromEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	return Config{
		Server: Server{
			Addr:            envString("NEXOPS_ADDR", ":8080"),
			ShutdownTimeout: envDuration("NEXOPS_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Postgres: PostgresConfig{
			DSN:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:        envList("KAFKA_BROKERS"),
			Topic:          envString("KAFKA_CHANGES_TOPIC", "nexops.changes"),
			Partitions:     int32(envInt("KAFKA_CHANGES_PARTITIONS", 3)),
			OutboxInterval: envDuration("OUTBOX_POLL_INTERVAL", time.Second),
			OutboxBatch:    envInt("OUTBOX_BATCH_SIZE", 100),
		},
		Engine: Engine{
			FeedDriver:     envString("FEED_DRIVER", FeedMemory),
			FeedQueueSize:  envInt("FEED_QUEUE_SIZE", 32),
			WriteTimeout:   envDuration("MUTATION_WRITE_TIMEOUT", 10*time.Second),
			KPIRefresh:     envDuration("KPI_REFRESH_INTERVAL", 60*time.Second),
			ScanLock:       envBool("DETECTION_SCAN_LOCK", false),
			ScanLockTTL:    envDuration("DETECTION_SCAN_LOCK_TTL", 30*time.Second),
			AuditDetection: envBool("DETECTION_AUDIT", false),
		},
		LogLevel: envString("LOG_LEVEL", "info"),
	}
}

// Validate rejects combinations the server cannot start with.
func (c Config) Validate() error {
	switch c.Engine.FeedDriver {
	case FeedMemory:
	case FeedPGNotify:
		if c.Postgres.DSN == "" {
			return errors.New("FEED_DRIVER=pgnotify requires DATABASE_URL")
		}
	case FeedKafka:
		if !c.Kafka.Enabled() {
			return errors.New("FEED_DRIVER=kafka requires KAFKA_BROKERS")
		}
		if c.Postgres.DSN == "" {
			return errors.New("FEED_DRIVER=kafka requires DATABASE_URL for the outbox")
		}
	default:
		return fmt.Errorf("unknown FEED_DRIVER %q", c.Engine.FeedDriver)
	}
	if c.Engine.ScanLock && c.Redis.URL == "" {
		return errors.New("DETECTION_SCAN_LOCK requires REDIS_URL")
	}
	return nil
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func envList(key string) []string {
	return pkgstrings.SplitList(os.Getenv(key), ",")
}
