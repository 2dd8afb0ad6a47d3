package config

import (
	"fmt"
	"os"
	"strconv"
)

// StoreBackend selects the persistence implementation
type StoreBackend string

const (
	BackendMemory   StoreBackend = "memory"
	BackendDynamoDB StoreBackend = "dynamodb"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	ServerAddress string
	Environment   string

	// AWS settings
	AWSRegion    string
	TableName    string
	EventBusName string

	// Persistence backend
	StoreBackend StoreBackend

	// Auth settings (empty secret disables auth)
	JWTSecret string
	JWTIssuer string

	// Observability
	LogLevel      string
	EnableMetrics bool
	EnableEvents  bool
	MetricsPrefix string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		ServerAddress: getEnv("SERVER_ADDRESS", ":8080"),
		Environment:   getEnv("ENVIRONMENT", "development"),
		AWSRegion:     getEnv("AWS_REGION", "us-east-1"),
		TableName:     getEnv("TABLE_NAME", "mindscape"),
		EventBusName:  getEnv("EVENT_BUS_NAME", "mindscape-events"),
		StoreBackend:  StoreBackend(getEnv("STORE_BACKEND", string(BackendMemory))),
		JWTSecret:     getEnv("JWT_SECRET", ""),
		JWTIssuer:     getEnv("JWT_ISSUER", "mindscape"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		EnableMetrics: getEnvBool("ENABLE_METRICS", false),
		EnableEvents:  getEnvBool("ENABLE_EVENTS", false),
		MetricsPrefix: getEnv("METRICS_PREFIX", "Mindscape"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreBackend {
	case BackendMemory, BackendDynamoDB:
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q (want memory or dynamodb)", c.StoreBackend)
	}
	if c.StoreBackend == BackendDynamoDB && c.TableName == "" {
		return fmt.Errorf("TABLE_NAME is required with the dynamodb backend")
	}
	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
