package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	ServiceName string
	LogLevel    string
	Portal      PortalConfig
	RabbitMQ    RabbitMQConfig
	Metrics     MetricsConfig
	Anomaly     AnomalyConfig
}

// PortalConfig holds web portal credentials and client settings
type PortalConfig struct {
	Username  string
	Password  string
	URL       string
	Timeout   time.Duration
	TimeZone  string
	Days      int
	CABundle  string
	RateLimit float64
	RateBurst int
}

// RabbitMQConfig holds RabbitMQ export settings. An empty URL disables export.
type RabbitMQConfig struct {
	URL              string
	IngestExchange   string
	IngestRoutingKey string
}

// MetricsConfig holds Prometheus push gateway settings
type MetricsConfig struct {
	PushgatewayURL string
	JobName        string
}

// AnomalyConfig holds anomaly detection settings
type AnomalyConfig struct {
	SpikeThreshold            float64
	MinDataPointsForDetection int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		ServiceName: getEnv("SERVICE_NAME", "sngraz"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Portal: PortalConfig{
			Username:  getEnv("SNGRAZ_USERNAME", ""),
			Password:  getEnv("SNGRAZ_PASSWORD", ""),
			URL:       getEnv("SNGRAZ_API_URL", "https://webportal.stromnetz-graz.at/api/"),
			Timeout:   time.Duration(getEnvAsInt("SNGRAZ_TIMEOUT_SECONDS", 10)) * time.Second,
			TimeZone:  getEnv("SNGRAZ_TIME_ZONE", "Europe/Vienna"),
			Days:      getEnvAsInt("SNGRAZ_DAYS", 1),
			CABundle:  getEnv("SNGRAZ_CA_BUNDLE", ""),
			RateLimit: getEnvAsFloat("SNGRAZ_RATE_LIMIT", 0),
			RateBurst: getEnvAsInt("SNGRAZ_RATE_BURST", 1),
		},
		RabbitMQ: RabbitMQConfig{
			URL:              getEnv("RABBITMQ_URL", ""),
			IngestExchange:   getEnv("RABBITMQ_INGEST_EXCHANGE", "energy-metering.ingest.exchange"),
			IngestRoutingKey: getEnv("RABBITMQ_INGEST_ROUTING_KEY", "meter.reading.raw"),
		},
		Metrics: MetricsConfig{
			PushgatewayURL: getEnv("PUSHGATEWAY_URL", ""),
			JobName:        getEnv("PUSHGATEWAY_JOB", "sngraz"),
		},
		Anomaly: AnomalyConfig{
			SpikeThreshold:            getEnvAsFloat("ANOMALY_SPIKE_THRESHOLD", 3.0),
			MinDataPointsForDetection: getEnvAsInt("ANOMALY_MIN_DATA_POINTS", 3),
		},
	}

	// Validate required fields
	if cfg.Portal.Username == "" {
		return nil, fmt.Errorf("SNGRAZ_USERNAME is required but not set in environment variables")
	}
	if cfg.Portal.Password == "" {
		return nil, fmt.Errorf("SNGRAZ_PASSWORD is required but not set in environment variables")
	}
	if cfg.Portal.Days < 1 {
		return nil, fmt.Errorf("SNGRAZ_DAYS must be at least 1, got %d", cfg.Portal.Days)
	}

	return cfg, nil
}

// Location resolves the configured time zone.
func (c PortalConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("invalid SNGRAZ_TIME_ZONE %q: %w", c.TimeZone, err)
	}
	return loc, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}
