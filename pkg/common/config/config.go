package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Server
	ServerPort     string
	ServerHost     string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxRequestBody int64

	// Database
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Kafka
	KafkaBrokers []string
	KafkaGroupID string

	// Ingestion pipeline
	IngestionEMRTopic  string
	IngestionDLQTopic  string
	IngestionStatusTTL time.Duration
	PipelineWorkers    int
	CleaningConfigPath string
	TerminologyPath    string
	DLPRulesPath       string
	StatsCacheTTL      time.Duration

	// External EMR system (OpenMRS-compatible REST)
	EMRBaseURL      string
	EMRTokenURL     string
	EMRClientID     string
	EMRClientSecret string
	EMRScopes       []string
	EMRTimeout      time.Duration
	EMRMaxRetries   int

	// Submission consumer
	SubmissionTopic       string
	SubmissionGroupID     string
	SubmissionMaxAttempts int

	// OIDC
	OIDCIssuer       string
	OIDCClientID     string
	OIDCClientSecret string

	// Gateway specific
	IngestionBaseURL      string
	GatewayRequestTimeout time.Duration
	GatewayRateLimitRPS   int
	GatewayRateLimitBurst int
}

func Load() *Config {
	return &Config{
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		ServerHost:     getEnv("SERVER_HOST", "0.0.0.0"),
		ReadTimeout:    getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:   getDuration("WRITE_TIMEOUT", 30*time.Second),
		MaxRequestBody: int64(getIntEnv("MAX_REQUEST_BODY_BYTES", 16*1024*1024)),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "tm2health"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "tm2health123"),
		PostgresDB:       getEnv("POSTGRES_DB", "tm2health"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		KafkaBrokers: getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
		KafkaGroupID: getEnv("KAFKA_GROUP_ID", "tm2health-platform"),

		IngestionEMRTopic:  getEnv("INGESTION_EMR_TOPIC", "emr-batches"),
		IngestionDLQTopic:  getEnv("INGESTION_DLQ_TOPIC", "emr-batches-dlq"),
		IngestionStatusTTL: getDuration("INGESTION_STATUS_TTL", 30*24*time.Hour),
		PipelineWorkers:    getIntEnv("PIPELINE_WORKERS", 4),
		CleaningConfigPath: getEnv("CLEANING_CONFIG_PATH", ""),
		TerminologyPath:    getEnv("TERMINOLOGY_PATH", ""),
		DLPRulesPath:       getEnv("DLP_RULES_PATH", ""),
		StatsCacheTTL:      getDuration("STATS_CACHE_TTL", 24*time.Hour),

		EMRBaseURL:      getEnv("EMR_BASE_URL", "http://localhost:8090/openmrs/ws/rest/v1"),
		EMRTokenURL:     getEnv("EMR_TOKEN_URL", ""),
		EMRClientID:     getEnv("EMR_CLIENT_ID", ""),
		EMRClientSecret: getEnv("EMR_CLIENT_SECRET", ""),
		EMRScopes:       getStringSliceEnv("EMR_SCOPES", []string{"emr.write"}),
		EMRTimeout:      getDuration("EMR_TIMEOUT", 15*time.Second),
		EMRMaxRetries:   getIntEnv("EMR_MAX_RETRIES", 3),

		SubmissionTopic:       getEnv("SUBMISSION_TOPIC", "emr-batches"),
		SubmissionGroupID:     getEnv("SUBMISSION_GROUP_ID", "submission-service"),
		SubmissionMaxAttempts: getIntEnv("SUBMISSION_MAX_ATTEMPTS", 5),

		OIDCIssuer:       getEnv("OIDC_ISSUER", ""),
		OIDCClientID:     getEnv("OIDC_CLIENT_ID", ""),
		OIDCClientSecret: getEnv("OIDC_CLIENT_SECRET", ""),

		IngestionBaseURL:      getEnv("INGESTION_BASE_URL", "http://localhost:8081"),
		GatewayRequestTimeout: getDuration("GATEWAY_REQUEST_TIMEOUT", 60*time.Second),
		GatewayRateLimitRPS:   getIntEnv("GATEWAY_RATE_LIMIT_RPS", 50),
		GatewayRateLimitBurst: getIntEnv("GATEWAY_RATE_LIMIT_BURST", 100),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getStringSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
