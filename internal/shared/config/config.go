package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Risk      RiskConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	KurrentDB KurrentDBConfig
	Auth      AuthConfig
	Delivery  DeliveryConfig
	Referral  ReferralConfig
	Scheduler SchedulerConfig
	RateLimit RateLimitConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode,
	)
}

// RiskConfig bounds signal source lookups.
type RiskConfig struct {
	SignalTimeout time.Duration
}

// RedisConfig configures the risk signal cache.
type RedisConfig struct {
	Enabled   bool
	Addr      string
	Password  string
	DB        int
	SignalTTL time.Duration
}

// KafkaConfig configures the signal update consumer and the call log publisher.
type KafkaConfig struct {
	Enabled      bool
	Brokers      []string
	SignalTopic  string
	CallLogTopic string
	GroupID      string
}

// KurrentDBConfig holds configuration for KurrentDB (EventStoreDB).
type KurrentDBConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Insecure bool
	Username string
	Password string
}

type AuthConfig struct {
	JWTSecret string
	Issuer    string
}

// DeliveryConfig selects the audio delivery backend.
type DeliveryConfig struct {
	// Mode: "simulated" or "tts"
	Mode           string
	TTSURL         string
	TTSAPIKey      string
	PublicAudioURL string
	AudioDir       string
	Timeout        time.Duration
	DefaultPersona string
}

// ReferralConfig selects the facility directory and bounds lookups.
type ReferralConfig struct {
	// Directory: "memory", "postgres" or "his"
	Directory string
	Timeout   time.Duration
	HIS       HISConfig
}

// HISConfig points at a hospital information system facility registry on SQL Server.
type HISConfig struct {
	Host          string
	Port          int
	Database      string
	User          string
	Password      string
	Encrypt       bool
	FacilityTable string
}

type SchedulerConfig struct {
	Enabled     bool
	Interval    time.Duration
	CallsPerSec float64
	Burst       int
}

type RateLimitConfig struct {
	RequestsPerSecond int
	Burst             int
}

type LogConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnvInt("SERVER_PORT", 8080),
			Env:  getEnv("ENV", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "outreach"),
			Password: getEnv("DB_PASSWORD", "outreach"),
			Database: getEnv("DB_NAME", "outreach"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Risk: RiskConfig{
			SignalTimeout: getEnvDuration("RISK_SIGNAL_TIMEOUT", 5*time.Second),
		},
		Redis: RedisConfig{
			Enabled:   getEnvBool("REDIS_ENABLED", false),
			Addr:      getEnv("REDIS_ADDR", "localhost:6379"),
			Password:  getEnv("REDIS_PASSWORD", ""),
			DB:        getEnvInt("REDIS_DB", 0),
			SignalTTL: getEnvDuration("REDIS_SIGNAL_TTL", time.Hour),
		},
		Kafka: KafkaConfig{
			Enabled:      getEnvBool("KAFKA_ENABLED", false),
			Brokers:      getEnvSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
			SignalTopic:  getEnv("KAFKA_TOPIC_SIGNALS", "outreach.risk-signals"),
			CallLogTopic: getEnv("KAFKA_TOPIC_CALL_LOGS", "outreach.call-logs"),
			GroupID:      getEnv("KAFKA_GROUP_ID", "outreach-core"),
		},
		KurrentDB: KurrentDBConfig{
			Enabled:  getEnvBool("KURRENTDB_ENABLED", false),
			Host:     getEnv("KURRENTDB_HOST", "localhost"),
			Port:     getEnvInt("KURRENTDB_PORT", 2113),
			Insecure: getEnvBool("KURRENTDB_INSECURE", true),
			Username: getEnv("KURRENTDB_USERNAME", ""),
			Password: getEnv("KURRENTDB_PASSWORD", ""),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", "dev-secret-change-in-prod"),
			Issuer:    getEnv("JWT_ISSUER", "outreach"),
		},
		Delivery: DeliveryConfig{
			Mode:           getEnv("DELIVERY_MODE", "simulated"),
			TTSURL:         getEnv("TTS_URL", "https://yarngpt.ai/api/v1/tts"),
			TTSAPIKey:      getEnv("TTS_API_KEY", ""),
			PublicAudioURL: getEnv("PUBLIC_AUDIO_URL", "http://localhost:8080/audio"),
			AudioDir:       getEnv("AUDIO_DIR", "audio"),
			Timeout:        getEnvDuration("DELIVERY_TIMEOUT", 30*time.Second),
			DefaultPersona: getEnv("DEFAULT_PERSONA", "Idera"),
		},
		Referral: ReferralConfig{
			Directory: getEnv("REFERRAL_DIRECTORY", "memory"),
			Timeout:   getEnvDuration("REFERRAL_TIMEOUT", 5*time.Second),
			HIS: HISConfig{
				Host:          getEnv("HIS_HOST", "localhost"),
				Port:          getEnvInt("HIS_PORT", 1433),
				Database:      getEnv("HIS_DATABASE", "his"),
				User:          getEnv("HIS_USER", "sa"),
				Password:      getEnv("HIS_PASSWORD", ""),
				Encrypt:       getEnvBool("HIS_ENCRYPT", false),
				FacilityTable: getEnv("HIS_FACILITY_TABLE", "dbo.Facilities"),
			},
		},
		Scheduler: SchedulerConfig{
			Enabled:     getEnvBool("SCHEDULER_ENABLED", false),
			Interval:    getEnvDuration("SCHEDULER_INTERVAL", time.Hour),
			CallsPerSec: getEnvFloat("SCHEDULER_CALLS_PER_SEC", 2),
			Burst:       getEnvInt("SCHEDULER_BURST", 5),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: getEnvInt("RATE_LIMIT_RPS", 20),
			Burst:             getEnvInt("RATE_LIMIT_BURST", 40),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	switch c.Delivery.Mode {
	case "simulated", "tts":
	default:
		return fmt.Errorf("unknown delivery mode %q", c.Delivery.Mode)
	}
	switch c.Referral.Directory {
	case "memory", "postgres", "his":
	default:
		return fmt.Errorf("unknown referral directory %q", c.Referral.Directory)
	}
	if c.Delivery.Timeout <= 0 {
		return fmt.Errorf("delivery timeout must be positive")
	}
	if c.Risk.SignalTimeout <= 0 {
		return fmt.Errorf("risk signal timeout must be positive")
	}
	if c.Referral.Timeout <= 0 {
		return fmt.Errorf("referral timeout must be positive")
	}
	if c.Scheduler.Enabled && c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler interval must be positive")
	}
	if c.Scheduler.CallsPerSec <= 0 {
		return fmt.Errorf("scheduler call rate must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var result []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
