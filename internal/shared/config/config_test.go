package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Expected port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Delivery.Mode != "simulated" {
		t.Errorf("Expected simulated delivery, got %s", cfg.Delivery.Mode)
	}
	if cfg.Referral.Directory != "memory" {
		t.Errorf("Expected memory directory, got %s", cfg.Referral.Directory)
	}
	if cfg.Delivery.Timeout != 30*time.Second {
		t.Errorf("Expected 30s delivery timeout, got %s", cfg.Delivery.Timeout)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("REFERRAL_TIMEOUT", "750ms")
	t.Setenv("SCHEDULER_CALLS_PER_SEC", "0.5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", cfg.Server.Port)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Errorf("Unexpected brokers: %v", cfg.Kafka.Brokers)
	}
	if cfg.Referral.Timeout != 750*time.Millisecond {
		t.Errorf("Expected 750ms referral timeout, got %s", cfg.Referral.Timeout)
	}
	if cfg.Scheduler.CallsPerSec != 0.5 {
		t.Errorf("Expected 0.5 calls/sec, got %v", cfg.Scheduler.CallsPerSec)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"Unknown delivery mode", "DELIVERY_MODE", "carrier-pigeon"},
		{"Unknown directory", "REFERRAL_DIRECTORY", "yellow-pages"},
		{"Negative delivery timeout", "DELIVERY_TIMEOUT", "-1s"},
		{"Zero call rate", "SCHEDULER_CALLS_PER_SEC", "0"},
		{"Negative signal timeout", "RISK_SIGNAL_TIMEOUT", "-1s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Error("Expected error but got none")
			}
		})
	}
}
