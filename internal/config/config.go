package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the video threat detection server.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	AWS       AWSConfig
	Analysis  AnalysisConfig
	Realtime  RealtimeConfig
	Breaker   BreakerConfig
	EventAuth EventAuthConfig
}

type ServerConfig struct {
	Port          int
	Env           string
	LogLevel      string
	MigrationsDir string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type AWSConfig struct {
	Region             string
	SNSTopicARN        string
	RekognitionRoleARN string
	ThreatAlertTopic   string
	ResultsBucket      string
	CallTimeout        time.Duration
}

type AnalysisConfig struct {
	MinConfidence  float64
	CrowdThreshold int
}

type RealtimeConfig struct {
	Transport         string
	WebsocketEndpoint string
	DeliveryTimeout   time.Duration
	FanoutConcurrency int
	ConnectRatePerMin int
}

type BreakerConfig struct {
	FailureThreshold int
	OpenTimeout      time.Duration
}

type EventAuthConfig struct {
	// TokenHash is the bcrypt hash of the bearer token event routes require.
	// Empty disables the check.
	TokenHash string
}

const (
	TransportWebsocket  = "websocket"
	TransportAPIGateway = "apigateway"
)

var validTransports = map[string]bool{
	TransportWebsocket:  true,
	TransportAPIGateway: true,
}

var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:          envInt("VTD_PORT", 8080),
			Env:           envString("VTD_ENV", "development"),
			LogLevel:      strings.ToLower(envString("LOG_LEVEL", "info")),
			MigrationsDir: envString("MIGRATIONS_DIR", "migrations"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		AWS: AWSConfig{
			Region:             envString("AWS_REGION", "us-east-1"),
			SNSTopicARN:        os.Getenv("SNS_TOPIC_ARN"),
			RekognitionRoleARN: os.Getenv("REKOGNITION_ROLE_ARN"),
			ThreatAlertTopic:   os.Getenv("THREAT_ALERT_TOPIC"),
			ResultsBucket:      os.Getenv("RESULTS_BUCKET"),
			CallTimeout:        envDuration("AWS_CALL_TIMEOUT", 30*time.Second),
		},
		Analysis: AnalysisConfig{
			MinConfidence:  envFloat("MIN_CONFIDENCE", 80),
			CrowdThreshold: envInt("CROWD_THRESHOLD", 5),
		},
		Realtime: RealtimeConfig{
			Transport:         strings.ToLower(envString("REALTIME_TRANSPORT", TransportWebsocket)),
			WebsocketEndpoint: os.Getenv("WEBSOCKET_ENDPOINT"),
			DeliveryTimeout:   envDuration("DELIVERY_TIMEOUT", 5*time.Second),
			FanoutConcurrency: envInt("FANOUT_CONCURRENCY", 32),
			ConnectRatePerMin: envInt("WS_CONNECT_RATE_PER_MIN", 30),
		},
		Breaker: BreakerConfig{
			FailureThreshold: envInt("BREAKER_FAILURE_THRESHOLD", 5),
			OpenTimeout:      envDuration("BREAKER_OPEN_TIMEOUT", 30*time.Second),
		},
		EventAuth: EventAuthConfig{
			TokenHash: os.Getenv("EVENTS_TOKEN_HASH"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// SlogLevel returns the configured log level.
func (c *Config) SlogLevel() slog.Level {
	return logLevels[c.Server.LogLevel]
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if _, ok := logLevels[c.Server.LogLevel]; !ok {
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error; got %q", c.Server.LogLevel)
	}

	if c.AWS.SNSTopicARN == "" {
		return fmt.Errorf("SNS_TOPIC_ARN is required")
	}
	if c.AWS.RekognitionRoleARN == "" {
		return fmt.Errorf("REKOGNITION_ROLE_ARN is required")
	}
	if c.AWS.ThreatAlertTopic == "" {
		return fmt.Errorf("THREAT_ALERT_TOPIC is required")
	}
	if c.AWS.ResultsBucket == "" {
		return fmt.Errorf("RESULTS_BUCKET is required")
	}
	if c.AWS.CallTimeout <= 0 {
		return fmt.Errorf("AWS_CALL_TIMEOUT must be positive, got %s", c.AWS.CallTimeout)
	}

	if c.Analysis.MinConfidence <= 0 || c.Analysis.MinConfidence > 100 {
		return fmt.Errorf("MIN_CONFIDENCE must be in (0, 100], got %v", c.Analysis.MinConfidence)
	}
	if c.Analysis.CrowdThreshold < 1 {
		return fmt.Errorf("CROWD_THRESHOLD must be at least 1, got %d", c.Analysis.CrowdThreshold)
	}

	if !validTransports[c.Realtime.Transport] {
		return fmt.Errorf("REALTIME_TRANSPORT must be one of websocket, apigateway; got %q", c.Realtime.Transport)
	}
	if c.Realtime.Transport == TransportAPIGateway {
		if c.Realtime.WebsocketEndpoint == "" {
			return fmt.Errorf("WEBSOCKET_ENDPOINT is required when REALTIME_TRANSPORT is apigateway")
		}
		if !strings.HasPrefix(c.Realtime.WebsocketEndpoint, "https://") {
			return fmt.Errorf("WEBSOCKET_ENDPOINT must start with https://, got %q", c.Realtime.WebsocketEndpoint)
		}
	}
	if c.Realtime.FanoutConcurrency < 1 {
		return fmt.Errorf("FANOUT_CONCURRENCY must be at least 1, got %d", c.Realtime.FanoutConcurrency)
	}

	if c.Breaker.FailureThreshold < 1 {
		return fmt.Errorf("BREAKER_FAILURE_THRESHOLD must be at least 1, got %d", c.Breaker.FailureThreshold)
	}

	if c.EventAuth.TokenHash != "" && !strings.HasPrefix(c.EventAuth.TokenHash, "$2") {
		return fmt.Errorf("EVENTS_TOKEN_HASH must be a bcrypt hash")
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
