package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	ServerPort   string        `mapstructure:"SERVER_PORT"`
	DatabaseURL  string        `mapstructure:"DATABASE_URL"`
	JWTSecret    string        `mapstructure:"JWT_SECRET"`
	JWTTTL       time.Duration `mapstructure:"JWT_TTL"`
	ClientOrigin string        `mapstructure:"CLIENT_ORIGIN"`
	LogLevel     string        `mapstructure:"LOG_LEVEL"`
	LogFormat    string        `mapstructure:"LOG_FORMAT"`

	StripeAPIKey    string `mapstructure:"STRIPE_API_KEY"`
	PaymentCurrency string `mapstructure:"PAYMENT_CURRENCY"`

	AWSRegion       string `mapstructure:"AWS_REGION"`
	SESFromAddress  string `mapstructure:"SES_FROM_ADDRESS"`
	AdminEmail      string `mapstructure:"ADMIN_EMAIL"`
	NotifyWorkers   int    `mapstructure:"NOTIFY_WORKERS"`
	NotifyQueueSize int    `mapstructure:"NOTIFY_QUEUE_SIZE"`

	MatchingURL          string        `mapstructure:"MATCHING_URL"`
	MatchingAPIKey       string        `mapstructure:"MATCHING_API_KEY"`
	MatchingTokenURL     string        `mapstructure:"MATCHING_TOKEN_URL"`
	MatchingClientID     string        `mapstructure:"MATCHING_CLIENT_ID"`
	MatchingClientSecret string        `mapstructure:"MATCHING_CLIENT_SECRET"`
	MatchingTimeout      time.Duration `mapstructure:"MATCHING_TIMEOUT"`

	Assignment AssignmentConfig `mapstructure:",squash"`

	MQTTBrokerURL   string `mapstructure:"MQTT_BROKER_URL"`
	MQTTClientID    string `mapstructure:"MQTT_CLIENT_ID"`
	MQTTTopicPrefix string `mapstructure:"MQTT_TOPIC_PREFIX"`
}

// AssignmentConfig tunes the coordinator.
type AssignmentConfig struct {
	MinRating          float64       `mapstructure:"ASSIGN_MIN_RATING"`
	MaxDistanceKm      float64       `mapstructure:"ASSIGN_MAX_DISTANCE_KM"`
	TopN               int           `mapstructure:"ASSIGN_TOP_N"`
	ResponseTimeout    time.Duration `mapstructure:"ASSIGN_RESPONSE_TIMEOUT"`
	SweepInterval      time.Duration `mapstructure:"ASSIGN_SWEEP_INTERVAL"`
	AutoAssignOnCreate bool          `mapstructure:"AUTO_ASSIGN_ON_CREATE"`
	BulkConcurrency    int           `mapstructure:"BULK_CONCURRENCY"`
}

// DefaultAssignment returns the coordinator defaults.
func DefaultAssignment() AssignmentConfig {
	return AssignmentConfig{
		MinRating:          3.0,
		MaxDistanceKm:      50,
		TopN:               1,
		ResponseTimeout:    5 * time.Minute,
		SweepInterval:      30 * time.Second,
		AutoAssignOnCreate: true,
		BulkConcurrency:    4,
	}
}

func setDefaults(v *viper.Viper) {
	a := DefaultAssignment()
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_TTL", "24h")
	v.SetDefault("CLIENT_ORIGIN", "http://localhost:5173")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("STRIPE_API_KEY", "")
	v.SetDefault("PAYMENT_CURRENCY", "eur")
	v.SetDefault("AWS_REGION", "eu-west-3")
	v.SetDefault("SES_FROM_ADDRESS", "")
	v.SetDefault("ADMIN_EMAIL", "")
	v.SetDefault("NOTIFY_WORKERS", 2)
	v.SetDefault("NOTIFY_QUEUE_SIZE", 256)
	v.SetDefault("MATCHING_URL", "")
	v.SetDefault("MATCHING_API_KEY", "")
	v.SetDefault("MATCHING_TOKEN_URL", "")
	v.SetDefault("MATCHING_CLIENT_ID", "")
	v.SetDefault("MATCHING_CLIENT_SECRET", "")
	v.SetDefault("MATCHING_TIMEOUT", "10s")
	v.SetDefault("ASSIGN_MIN_RATING", a.MinRating)
	v.SetDefault("ASSIGN_MAX_DISTANCE_KM", a.MaxDistanceKm)
	v.SetDefault("ASSIGN_TOP_N", a.TopN)
	v.SetDefault("ASSIGN_RESPONSE_TIMEOUT", a.ResponseTimeout.String())
	v.SetDefault("ASSIGN_SWEEP_INTERVAL", a.SweepInterval.String())
	v.SetDefault("AUTO_ASSIGN_ON_CREATE", a.AutoAssignOnCreate)
	v.SetDefault("BULK_CONCURRENCY", a.BulkConcurrency)
	v.SetDefault("MQTT_BROKER_URL", "")
	v.SetDefault("MQTT_CLIENT_ID", "family-booking")
	v.SetDefault("MQTT_TOPIC_PREFIX", "family-booking")
}

// LoadConfig reads <path>/.env and the environment. Every key has a default,
// so environment variables override the file even when it is absent.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName(".env")
	v.SetConfigType("env")
	setDefaults(v)
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config.LoadConfig: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config.LoadConfig: %w", err)
	}
	return &cfg, nil
}

// Validate checks the settings the server cannot run without.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.JWTTTL <= 0 {
		return errors.New("JWT_TTL must be positive")
	}
	if c.Assignment.ResponseTimeout <= 0 {
		return errors.New("ASSIGN_RESPONSE_TIMEOUT must be positive")
	}
	if c.Assignment.SweepInterval <= 0 {
		return errors.New("ASSIGN_SWEEP_INTERVAL must be positive")
	}
	if c.Assignment.TopN < 1 {
		return errors.New("ASSIGN_TOP_N must be at least 1")
	}
	if c.Assignment.MinRating < 0 || c.Assignment.MinRating > 5 {
		return errors.New("ASSIGN_MIN_RATING must be between 0 and 5")
	}
	return nil
}
