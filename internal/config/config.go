package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"

	"github.com/core-coin/solvere/internal/activity"
	"github.com/core-coin/solvere/internal/chains"
	"github.com/core-coin/solvere/internal/presign"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Development bool
	// API configuration
	APIPort int
	// Database configuration
	DBDriver         string
	PostgresUser     string
	PostgresPassword string
	PostgresHost     string
	PostgresPort     int
	PostgresDB       string
	SQLitePath       string

	// Blockchain configuration
	ChainIDs       []int64
	RPCURLs        map[int64]string
	BundlerURLs    map[int64]string
	Deployments    map[int64]chains.Deployment
	AccountAddress string
	// OwnerPrivateKey signs every operation of the account.
	OwnerPrivateKey string
	BundlerRPS      float64

	// Payments configuration
	RelayURL             string
	PresignBatchSize     int
	ReconcileStrategy    string
	ReconcileInterval    time.Duration
	ReconcileConcurrency int

	// SMTP configuration
	SMTPHost            string
	SMTPPort            int
	SMTPAlternativePort int
	SMTPUser            string
	SMTPPassword        string
	SMTPSender          string
	NotifyEmail         string

	// Notification configuration
	TelegramBotToken string
	TelegramChatID   string
}

// LoadConfig loads the configuration from environment variables
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads the environment without validating, so flags can be applied first.
func Load() *Config {
	cfg := &Config{
		Development:      getEnvAsBool("DEVELOPMENT", false),
		DBDriver:         getEnv("DB_DRIVER", DriverPostgres),
		PostgresUser:     getEnv("POSTGRES_USER", "postgres"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "password"),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnvAsInt("POSTGRES_PORT", 5432),
		PostgresDB:       getEnv("POSTGRES_DB", "solvere"),
		SQLitePath:       getEnv("SQLITE_PATH", "solvere.db"),

		ChainIDs:        getEnvAsInt64List("CHAIN_IDS", []int64{chains.BaseGoerli}),
		AccountAddress:  getEnv("ACCOUNT_ADDRESS", ""),
		OwnerPrivateKey: getEnv("OWNER_PRIVATE_KEY", ""),
		BundlerRPS:      getEnvAsFloat("BUNDLER_RPS", 10),

		RelayURL:             getEnv("RELAY_URL", ""),
		PresignBatchSize:     getEnvAsInt("PRESIGN_BATCH_SIZE", presign.DefaultBatchSize),
		ReconcileStrategy:    getEnv("RECONCILE_STRATEGY", activity.StrategyProbing),
		ReconcileInterval:    getEnvAsDuration("RECONCILE_INTERVAL", 5*time.Minute),
		ReconcileConcurrency: getEnvAsInt("RECONCILE_CONCURRENCY", activity.DefaultConcurrency),

		TelegramBotToken:    getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:      getEnv("TELEGRAM_CHAT_ID", ""),
		SMTPHost:            getEnv("SMTP_HOST", ""),
		SMTPPort:            getEnvAsInt("SMTP_PORT", 587),
		SMTPAlternativePort: getEnvAsInt("SMTP_ALTERNATIVE_PORT", 465),
		SMTPUser:            getEnv("SMTP_USER", ""),
		SMTPPassword:        getEnv("SMTP_PASSWORD", ""),
		SMTPSender:          getEnv("SMTP_SENDER", ""),
		NotifyEmail:         getEnv("NOTIFY_EMAIL", ""),

		APIPort: getEnvAsInt("API_PORT", 6532),
	}
	cfg.LoadChains()
	return cfg
}

// LoadChains reads the per-chain keys of every chain in ChainIDs.
func (c *Config) LoadChains() {
	c.RPCURLs = make(map[int64]string, len(c.ChainIDs))
	c.BundlerURLs = make(map[int64]string, len(c.ChainIDs))
	c.Deployments = make(map[int64]chains.Deployment, len(c.ChainIDs))
	for _, id := range c.ChainIDs {
		c.RPCURLs[id] = getEnv(fmt.Sprintf("RPC_URL_%d", id), "")
		c.BundlerURLs[id] = getEnv(fmt.Sprintf("BUNDLER_URL_%d", id), c.RPCURLs[id])
		c.Deployments[id] = chains.Deployment{
			ValidatorAddress: common.HexToAddress(getEnv(fmt.Sprintf("VALIDATOR_ADDRESS_%d", id), "")),
			ExecutorAddress:  common.HexToAddress(getEnv(fmt.Sprintf("EXECUTOR_ADDRESS_%d", id), "")),
		}
	}
}

// Validate checks that all required configuration fields are properly set
func (c *Config) Validate() error {
	if c.AccountAddress == "" {
		return fmt.Errorf("ACCOUNT_ADDRESS is required")
	}
	if !common.IsHexAddress(c.AccountAddress) {
		return fmt.Errorf("invalid ACCOUNT_ADDRESS format: %q", c.AccountAddress)
	}
	if c.OwnerPrivateKey == "" {
		return fmt.Errorf("OWNER_PRIVATE_KEY is required")
	}
	if c.RelayURL == "" {
		return fmt.Errorf("RELAY_URL is required")
	}

	if len(c.ChainIDs) == 0 {
		return fmt.Errorf("CHAIN_IDS is required")
	}
	for _, id := range c.ChainIDs {
		if _, ok := chains.Defaults(id); !ok {
			return fmt.Errorf("chain %d is not supported", id)
		}
		if c.RPCURLs[id] == "" {
			return fmt.Errorf("RPC_URL_%d is required", id)
		}
		if c.BundlerURLs[id] == "" {
			return fmt.Errorf("BUNDLER_URL_%d is required", id)
		}
		if c.Deployments[id].ValidatorAddress == (common.Address{}) {
			return fmt.Errorf("VALIDATOR_ADDRESS_%d is required", id)
		}
	}

	switch c.DBDriver {
	case DriverPostgres:
		if c.PostgresDB == "" {
			return fmt.Errorf("POSTGRES_DB is required")
		}
		if c.PostgresHost == "" {
			return fmt.Errorf("POSTGRES_HOST is required")
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required")
		}
	default:
		return fmt.Errorf("unknown DB_DRIVER %q", c.DBDriver)
	}

	switch c.ReconcileStrategy {
	case activity.StrategyProbing, activity.StrategyBatch:
	default:
		return fmt.Errorf("unknown RECONCILE_STRATEGY %q", c.ReconcileStrategy)
	}
	if c.PresignBatchSize <= 0 {
		return fmt.Errorf("PRESIGN_BATCH_SIZE must be positive")
	}
	if c.ReconcileInterval <= 0 {
		return fmt.Errorf("RECONCILE_INTERVAL must be positive")
	}

	return nil
}

// Helper functions to read environment variables
func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(name string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.Atoi(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsFloat(name string, defaultValue float64) float64 {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsBool(name string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.ParseBool(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsDuration(name string, defaultValue time.Duration) time.Duration {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := time.ParseDuration(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

// getEnvAsInt64List parses a comma separated list. Any bad entry falls back
// to the default.
func getEnvAsInt64List(name string, defaultValue []int64) []int64 {
	valueStr, exists := os.LookupEnv(name)
	if !exists {
		return defaultValue
	}
	var out []int64
	for _, part := range strings.Split(valueStr, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		value, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return defaultValue
		}
		out = append(out, value)
	}
	return out
}
