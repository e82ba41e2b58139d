package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("api")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Service.Name != "api" {
		t.Errorf("Expected service name api, got %s", cfg.Service.Name)
	}
	if cfg.Database.Host == "" || cfg.Database.Port == "" {
		t.Error("Expected database defaults to be populated")
	}
	if cfg.Withdrawal.MaxRetries != 3 {
		t.Errorf("Expected default max retries 3, got %d", cfg.Withdrawal.MaxRetries)
	}
	if cfg.Withdrawal.Workers < 1 {
		t.Errorf("Expected at least 1 worker, got %d", cfg.Withdrawal.Workers)
	}
	if cfg.Bank.Timeout != 10*time.Second {
		t.Errorf("Expected default bank timeout 10s, got %s", cfg.Bank.Timeout)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("BANK_BASE_URL", "http://bank.internal:9000")
	t.Setenv("BANK_TIMEOUT_SECONDS", "3")
	t.Setenv("WITHDRAWAL_MAX_RETRIES", "5")
	t.Setenv("DUE_SCAN_INTERVAL", "2s")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load("api")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Database.Host != "db.internal" {
		t.Errorf("Expected DB_HOST override, got %s", cfg.Database.Host)
	}
	if cfg.Bank.BaseURL != "http://bank.internal:9000" {
		t.Errorf("Expected BANK_BASE_URL override, got %s", cfg.Bank.BaseURL)
	}
	if cfg.Bank.Timeout != 3*time.Second {
		t.Errorf("Expected bank timeout 3s, got %s", cfg.Bank.Timeout)
	}
	if cfg.Withdrawal.MaxRetries != 5 {
		t.Errorf("Expected max retries 5, got %d", cfg.Withdrawal.MaxRetries)
	}
	if cfg.Withdrawal.DueScanInterval != 2*time.Second {
		t.Errorf("Expected due scan interval 2s, got %s", cfg.Withdrawal.DueScanInterval)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Errorf("Expected two kafka brokers, got %v", cfg.Kafka.Brokers)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("EXECUTOR_WORKERS", "0")
	if _, err := Load("api"); err == nil {
		t.Error("Expected error for zero workers")
	}
}

func TestDatabaseURLForms(t *testing.T) {
	cfg := DatabaseConfig{
		Host: "localhost", Port: "5432", User: "u", Password: "p",
		DBName: "d", SSLMode: "disable",
	}

	wantDSN := "host=localhost port=5432 user=u password=p dbname=d sslmode=disable"
	if got := cfg.DSN(); got != wantDSN {
		t.Errorf("DSN() = %q, want %q", got, wantDSN)
	}

	wantURL := "postgres://u:p@localhost:5432/d?sslmode=disable"
	if got := cfg.URL(); got != wantURL {
		t.Errorf("URL() = %q, want %q", got, wantURL)
	}
}
