package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config carries every tunable of the pipeline. All numeric thresholds are
// defaults to be tuned, not contracts.
type Config struct {
	DatabaseURL string
	RedisURL    string
	MetricsPort string

	MaxConcurrentFetches int
	RetryMaxAttempts     int
	RetryBackoffBase     time.Duration
	RetryBackoffCap      time.Duration
	CycleTimeout         time.Duration
	ScrapeInterval       time.Duration
	RetailerMinDelay     time.Duration

	VarianceRejectPct       float64
	PromoMinProducts        int
	PromoDeviationPct       float64
	PromoWindow             time.Duration
	CrossRetailerSpreadMult float64

	CircuitBreakerThreshold float64
	CircuitBreakerWindow    int

	// Recurring promotional banner amounts, in pence. A scraped price equal
	// to one of these is treated with extra suspicion by the promo filter.
	KnownPromoAmounts []int64

	ChromiumPath string
}

func Load() *Config {
	_ = godotenv.Load("../../.env")
	_ = godotenv.Load()
	return &Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),
		MetricsPort: getEnv("METRICS_PORT", "9090"),

		MaxConcurrentFetches: getEnvInt("MAX_CONCURRENT_FETCHES", 4),
		RetryMaxAttempts:     getEnvInt("RETRY_MAX_ATTEMPTS", 3),
		RetryBackoffBase:     getEnvSeconds("RETRY_BACKOFF_BASE_S", 2),
		RetryBackoffCap:      getEnvSeconds("RETRY_BACKOFF_CAP_S", 30),
		CycleTimeout:         getEnvSeconds("CYCLE_TIMEOUT_S", 900),
		ScrapeInterval:       getEnvSeconds("SCRAPE_INTERVAL_S", 3600),
		RetailerMinDelay:     getEnvSeconds("RETAILER_MIN_DELAY_S", 2),

		VarianceRejectPct:       getEnvFloat("VARIANCE_REJECT_PCT", 50),
		PromoMinProducts:        getEnvInt("PROMO_MIN_PRODUCTS", 3),
		PromoDeviationPct:       getEnvFloat("PROMO_DEVIATION_PCT", 30),
		PromoWindow:             time.Duration(getEnvInt("PROMO_WINDOW_H", 24)) * time.Hour,
		CrossRetailerSpreadMult: getEnvFloat("CROSS_RETAILER_SPREAD_MULT", 2),

		CircuitBreakerThreshold: getEnvFloat("CIRCUIT_BREAKER_THRESHOLD", 0.3),
		CircuitBreakerWindow:    getEnvInt("CIRCUIT_BREAKER_WINDOW", 20),

		// Common promotional thresholds seen across retailers ("£700 off
		// orders", "Save £200", ...), in pence.
		KnownPromoAmounts: []int64{70000, 50000, 20000, 10000},

		ChromiumPath: getEnv("CHROMIUM_PATH", "chromium"),
	}
}

func getEnv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func getEnvInt(k string, d int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return d
}

func getEnvFloat(k string, d float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return d
}

func getEnvSeconds(k string, d int) time.Duration {
	return time.Duration(getEnvInt(k, d)) * time.Second
}
