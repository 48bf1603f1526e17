package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/stellar/go/network"
	"gopkg.in/yaml.v3"

	"marketplace/internal/retry"
)

// Store drivers
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	// Log level: debug, info, warn or error
	LogLevel string `yaml:"log_level"`

	// HTTP API port
	APIPort int `yaml:"api_port"`

	// Account store: memory, sqlite or postgres
	StoreDriver string `yaml:"store_driver"`
	DatabaseURL string `yaml:"database_url"`
	SQLitePath  string `yaml:"sqlite_path"`

	// Network passphrase the program ids are derived from
	NetworkPassphrase string `yaml:"network_passphrase"`

	// Optional suffix separating deployments on one network
	ProgramSeed string `yaml:"program_seed"`

	// Lamports a wallet must keep after paying
	MinReserveLamports uint64 `yaml:"min_reserve_lamports"`

	// Rent price of account storage
	LamportsPerByteYear uint64 `yaml:"lamports_per_byte_year"`

	// Pipeline workers (0 = from CPU count) and submission buffer
	PipelineWorkers int `yaml:"pipeline_workers"`
	PipelineBuffer  int `yaml:"pipeline_buffer"`

	// Receipt journal directory, empty disables the journal
	JournalDir string `yaml:"journal_dir"`

	// Expose POST /airdrop (development only)
	AirdropEnabled bool `yaml:"airdrop_enabled"`

	Retry retry.Config `yaml:"retry"`
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		LogLevel:            "info",
		APIPort:             8080,
		StoreDriver:         DriverSQLite,
		SQLitePath:          "data/accounts.db",
		NetworkPassphrase:   network.TestNetworkPassphrase,
		LamportsPerByteYear: 3480,
		PipelineBuffer:      256,
		JournalDir:          "data/journal",
		Retry:               retry.DefaultConfig(),
	}
}

// Load reads .env (if present), then the YAML file named by CONFIG_FILE
// (if set), then environment overrides
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", c.LogLevel))
	c.APIPort = getEnvAsInt("API_PORT", c.APIPort)
	c.StoreDriver = strings.ToLower(getEnv("STORE_DRIVER", c.StoreDriver))
	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)
	c.SQLitePath = getEnv("SQLITE_PATH", c.SQLitePath)
	c.NetworkPassphrase = getEnv("NETWORK_PASSPHRASE", c.NetworkPassphrase)
	c.ProgramSeed = getEnv("PROGRAM_SEED", c.ProgramSeed)
	c.MinReserveLamports = getEnvAsUint64("MIN_RESERVE_LAMPORTS", c.MinReserveLamports)
	c.LamportsPerByteYear = getEnvAsUint64("LAMPORTS_PER_BYTE_YEAR", c.LamportsPerByteYear)
	c.PipelineWorkers = getEnvAsInt("PIPELINE_WORKERS", c.PipelineWorkers)
	c.PipelineBuffer = getEnvAsInt("PIPELINE_BUFFER", c.PipelineBuffer)
	c.JournalDir = getEnv("JOURNAL_DIR", c.JournalDir)
	c.AirdropEnabled = getEnvAsBool("AIRDROP_ENABLED", c.AirdropEnabled)

	c.Retry.Enabled = getEnvAsBool("RETRY_ENABLED", c.Retry.Enabled)
	c.Retry.MaxRetries = getEnvAsInt("RETRY_MAX_RETRIES", c.Retry.MaxRetries)
	c.Retry.InitialDelay = getEnvAsSeconds("RETRY_INITIAL_DELAY_SEC", c.Retry.InitialDelay)
	c.Retry.MaxDelay = getEnvAsSeconds("RETRY_MAX_DELAY_SEC", c.Retry.MaxDelay)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL %q is not one of debug, info, warn, error", c.LogLevel)
	}
	if c.APIPort <= 0 || c.APIPort > 65535 {
		return fmt.Errorf("API_PORT %d is out of range", c.APIPort)
	}
	switch c.StoreDriver {
	case DriverMemory:
	case DriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite store")
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	default:
		return fmt.Errorf("STORE_DRIVER %q is not one of memory, sqlite, postgres", c.StoreDriver)
	}
	if c.NetworkPassphrase == "" {
		return fmt.Errorf("NETWORK_PASSPHRASE is required")
	}
	if c.LamportsPerByteYear == 0 {
		return fmt.Errorf("LAMPORTS_PER_BYTE_YEAR must be positive")
	}
	if c.PipelineWorkers < 0 {
		return fmt.Errorf("PIPELINE_WORKERS must not be negative")
	}
	if c.PipelineBuffer <= 0 {
		return fmt.Errorf("PIPELINE_BUFFER must be positive")
	}
	if c.Retry.Enabled && (c.Retry.MaxRetries < 0 || c.Retry.InitialDelay <= 0 || c.Retry.MaxDelay < c.Retry.InitialDelay) {
		return fmt.Errorf("retry settings are inconsistent: %+v", c.Retry)
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	val, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultVal
	}
	return val
}

func getEnvAsInt(key string, defaultVal int) int {
	val, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultVal
	}
	return val
}

func getEnvAsUint64(key string, defaultVal uint64) uint64 {
	val, err := strconv.ParseUint(os.Getenv(key), 10, 64)
	if err != nil {
		return defaultVal
	}
	return val
}

func getEnvAsSeconds(key string, defaultVal time.Duration) time.Duration {
	val, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultVal
	}
	return time.Duration(val) * time.Second
}
