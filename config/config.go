package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Server configuration
	Port        string
	Environment string

	// MySQL configuration
	MySQLDSN string

	// Redis configuration
	RedisURL string

	// Raffle pool configuration
	PoolSize int
	AutoInit bool
	Currency string

	// Payment gateway configuration
	PaymentProvider string
	PaymentTimeout  time.Duration
	FalconPay       FalconPayConfig

	// Reservation sweeper configuration.
	// A TTL of zero disables the sweeper: a reservation stranded by a crash
	// between allocation and payment resolution stays reserved.
	ReservationTTL time.Duration
	SweepInterval  time.Duration

	// Abuse throttle configuration
	ThrottleMaxFailures int
	ThrottleWindow      time.Duration
	ThrottleBlockTTL    time.Duration

	// Admin access
	AdminTokenHash string

	// Monitoring
	EnableMetrics bool
	MetricsPort   string
}

type FalconPayConfig struct {
	BaseURL    string
	PartnerID  string
	ClientID   string
	ClientKey  string
	HMACKey    string
	MerchantID string
}

func LoadConfig() *Config {
	return &Config{
		// Server
		Port:        getEnv("PORT", "8090"),
		Environment: getEnv("ENVIRONMENT", "development"),

		// MySQL
		MySQLDSN: getEnv("MYSQL_DSN", "raffle:raffle@tcp(localhost:3306)/raffle?parseTime=true"),

		// Redis
		RedisURL: getEnv("REDIS_URL", "localhost:6379"),

		// Pool
		PoolSize: getEnvAsInt("RAFFLE_POOL_SIZE", 100),
		AutoInit: getEnvAsBool("RAFFLE_AUTO_INIT", false),
		Currency: getEnv("RAFFLE_CURRENCY", "USD"),

		// Payment
		PaymentProvider: getEnv("PAYMENT_PROVIDER", "sandbox"),
		PaymentTimeout:  getEnvAsDuration("PAYMENT_TIMEOUT", "15s"),
		FalconPay: FalconPayConfig{
			BaseURL:    getEnv("FALCONPAY_BASE_URL", ""),
			PartnerID:  getEnv("FALCONPAY_PARTNER_ID", ""),
			ClientID:   getEnv("FALCONPAY_CLIENT_ID", ""),
			ClientKey:  getEnv("FALCONPAY_CLIENT_KEY", ""),
			HMACKey:    getEnv("FALCONPAY_HMAC_KEY", ""),
			MerchantID: getEnv("FALCONPAY_MERCHANT_ID", ""),
		},

		// Sweeper
		ReservationTTL: getEnvAsDuration("RESERVATION_TTL", "0s"),
		SweepInterval:  getEnvAsDuration("SWEEP_INTERVAL", "1m"),

		// Throttle
		ThrottleMaxFailures: getEnvAsInt("THROTTLE_MAX_FAILURES", 5),
		ThrottleWindow:      getEnvAsDuration("THROTTLE_WINDOW", "10m"),
		ThrottleBlockTTL:    getEnvAsDuration("THROTTLE_BLOCK_TTL", "1h"),

		// Admin
		AdminTokenHash: getEnv("ADMIN_TOKEN_HASH", ""),

		// Monitoring
		EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),
		MetricsPort:   getEnv("METRICS_PORT", "9090"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
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

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	// If parsing fails, try to parse default value
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
