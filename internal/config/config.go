// Package config provides configuration management for the braidd node.
// It handles loading configuration from environment variables with sensible defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/braidnet/braidd/internal/chain"
)

// Config holds the global configuration for the braidd node
type Config struct {
	// Service identification
	ServiceName string
	Version     string
	Environment string

	// Network selection
	Network string

	// Coordination
	CoordinationEnabled bool
	WorkCap             int
	StalenessWindow     time.Duration

	// Registered miner identities as account=payout-address pairs
	Miners []chain.Miner

	// In-process miner runtime
	InProcMinerEnabled bool
	SimTxPerPayload    int

	// External services
	EngineRPCURL  string
	EngineZMQAddr string
	ExecRPCURL    string

	// Kafka configuration
	EventsEnabled bool
	KafkaBrokers  []string

	// Storage
	StoreEnabled     bool
	PostgresHost     string
	PostgresPort     int
	PostgresDatabase string
	PostgresUser     string
	PostgresPassword string
	PostgresSSLMode  string
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	InfluxURL        string
	InfluxToken      string
	InfluxOrg        string
	InfluxBucket     string

	// Logging
	LogLevel  string
	LogFormat string
}

// Load loads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	miners, err := parseMiners(getEnvSlice("MINERS", nil))
	if err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	cfg := &Config{
		// Service defaults
		ServiceName: getEnv("SERVICE_NAME", "braidd"),
		Version:     getEnv("VERSION", "dev"),
		Environment: getEnv("ENVIRONMENT", "development"),

		// Network defaults
		Network: getEnv("NETWORK", "mainnet"),

		// Coordination defaults
		CoordinationEnabled: getEnvBool("COORDINATION_ENABLED", true),
		WorkCap:             getEnvInt("WORK_CAP", 2500),
		StalenessWindow:     getEnvDuration("STALENESS_WINDOW", 5*time.Minute),

		Miners: miners,

		// In-process miner defaults
		InProcMinerEnabled: getEnvBool("INPROC_MINER_ENABLED", false),
		SimTxPerPayload:    getEnvInt("SIM_TX_PER_PAYLOAD", 10),

		// External service defaults
		EngineRPCURL:  getEnv("ENGINE_RPC_URL", "http://localhost:1848"),
		EngineZMQAddr: getEnv("ENGINE_ZMQ_ADDR", "tcp://localhost:28845"),
		ExecRPCURL:    getEnv("EXEC_RPC_URL", "http://localhost:1850"),

		// Kafka defaults
		EventsEnabled: getEnvBool("EVENTS_ENABLED", true),
		KafkaBrokers:  getEnvSlice("KAFKA_BROKERS", []string{"localhost:9092"}),

		// Storage defaults
		StoreEnabled:     getEnvBool("STORE_ENABLED", true),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnvInt("POSTGRES_PORT", 5432),
		PostgresDatabase: getEnv("POSTGRES_DB", "braidd"),
		PostgresUser:     getEnv("POSTGRES_USER", "braidd"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", ""),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		RedisAddr:        getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		RedisDB:          getEnvInt("REDIS_DB", 0),
		InfluxURL:        getEnv("INFLUX_URL", "http://localhost:8086"),
		InfluxToken:      getEnv("INFLUX_TOKEN", ""),
		InfluxOrg:        getEnv("INFLUX_ORG", "braidd"),
		InfluxBucket:     getEnv("INFLUX_BUCKET", "coordination"),

		// Logging defaults
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Params resolves the configured network to its chain parameters.
func (c *Config) Params() (*chain.Params, error) {
	return chain.ParamsForNetwork(c.Network)
}

// validate performs basic validation of configuration values
func (c *Config) validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("SERVICE_NAME cannot be empty")
	}

	params, err := chain.ParamsForNetwork(c.Network)
	if err != nil {
		return fmt.Errorf("NETWORK is invalid: %w", err)
	}

	if c.WorkCap <= 0 {
		return fmt.Errorf("WORK_CAP must be positive")
	}

	if c.StalenessWindow <= 0 {
		return fmt.Errorf("STALENESS_WINDOW must be positive")
	}

	if len(c.Miners) == 0 {
		return fmt.Errorf("MINERS cannot be empty")
	}

	if c.InProcMinerEnabled && !c.CoordinationEnabled {
		return fmt.Errorf("INPROC_MINER_ENABLED requires COORDINATION_ENABLED")
	}

	if !params.Simulated() {
		if c.EngineRPCURL == "" {
			return fmt.Errorf("ENGINE_RPC_URL cannot be empty on network %s", c.Network)
		}
		if c.EngineZMQAddr == "" {
			return fmt.Errorf("ENGINE_ZMQ_ADDR cannot be empty on network %s", c.Network)
		}
		if c.ExecRPCURL == "" {
			return fmt.Errorf("EXEC_RPC_URL cannot be empty on network %s", c.Network)
		}
	}

	if c.EventsEnabled && len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS cannot be empty when events are enabled")
	}

	return nil
}

// parseMiners parses account=payout-address pairs.
func parseMiners(specs []string) ([]chain.Miner, error) {
	miners := make([]chain.Miner, 0, len(specs))
	seen := make(map[string]bool, len(specs))

	for _, spec := range specs {
		account, payout, ok := strings.Cut(spec, "=")
		if !ok || account == "" || payout == "" {
			return nil, fmt.Errorf("MINERS entry %q is not an account=payout-address pair", spec)
		}
		if seen[account] {
			return nil, fmt.Errorf("MINERS contains duplicate account %q", account)
		}
		seen[account] = true
		miners = append(miners, chain.Miner{Account: account, PayoutAddress: payout})
	}
	return miners, nil
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
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
