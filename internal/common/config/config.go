package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type ServiceConfig struct {
	Name string
	Port string
}

type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// URL is the DSN in URL form, which golang-migrate expects.
func (c DatabaseConfig) URL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Brokers []string
	GroupID string
}

// BankConfig points at the third-party bank the withdrawal executor calls.
type BankConfig struct {
	BaseURL string
	Timeout time.Duration
}

// WithdrawalConfig tunes the dispatcher loops and the executor pool.
type WithdrawalConfig struct {
	MaxRetries        int
	DueScanInterval   time.Duration
	RetryScanInterval time.Duration
	Workers           int
	QueueSize         int
}

type OutboxConfig struct {
	PublishInterval time.Duration
}

type Config struct {
	Service    ServiceConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Kafka      KafkaConfig
	Bank       BankConfig
	Withdrawal WithdrawalConfig
	Outbox     OutboxConfig
}

// Load builds the configuration for the named service from environment
// variables. Callers are expected to have loaded a .env file beforehand if
// they want one (godotenv in cmd/).
func Load(service string) (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Name: service,
			Port: getEnv("SERVICE_PORT", "8080"),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "postgres"),
			DBName:          getEnv("DB_NAME", "walletledger"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers: strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
			GroupID: getEnv("KAFKA_GROUP_ID", service),
		},
		Bank: BankConfig{
			BaseURL: getEnv("BANK_BASE_URL", "http://localhost:8010"),
			Timeout: time.Duration(getEnvAsInt("BANK_TIMEOUT_SECONDS", 10)) * time.Second,
		},
		Withdrawal: WithdrawalConfig{
			MaxRetries:        getEnvAsInt("WITHDRAWAL_MAX_RETRIES", 3),
			DueScanInterval:   getEnvAsDuration("DUE_SCAN_INTERVAL", 10*time.Second),
			RetryScanInterval: getEnvAsDuration("RETRY_SCAN_INTERVAL", time.Minute),
			Workers:           getEnvAsInt("EXECUTOR_WORKERS", 4),
			QueueSize:         getEnvAsInt("EXECUTOR_QUEUE_SIZE", 256),
		},
		Outbox: OutboxConfig{
			PublishInterval: getEnvAsDuration("OUTBOX_PUBLISH_INTERVAL", 5*time.Second),
		},
	}

	if cfg.Bank.BaseURL == "" {
		return nil, fmt.Errorf("BANK_BASE_URL must not be empty")
	}
	if cfg.Withdrawal.Workers < 1 {
		return nil, fmt.Errorf("EXECUTOR_WORKERS must be at least 1")
	}
	if cfg.Withdrawal.MaxRetries < 0 {
		return nil, fmt.Errorf("WITHDRAWAL_MAX_RETRIES must not be negative")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr != "" {
		if duration, err := time.ParseDuration(valueStr); err == nil {
			return duration
		}
	}
	return defaultValue
}
