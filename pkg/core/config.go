// Package core provides the shared types, errors, and configuration for the
// villager memory lifecycle engine.
package core

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Default values applied when a setting is missing. Components fall back to
// these rather than failing, so the engine stays usable in isolated testing
// where no configuration is available.
const (
	// DefaultRetentionDays is the standard retention window in logical days.
	DefaultRetentionDays int64 = 30

	// DefaultMaxRecordAgeDays is the absolute record age ceiling used by
	// emergency cleanup.
	DefaultMaxRecordAgeDays int64 = 90

	// DefaultPerAgentCap is the per-agent record cap.
	DefaultPerAgentCap = 100

	// DefaultGlobalCap is the global record cap across all agents.
	DefaultGlobalCap = 10000

	// DefaultMaxBackups is the number of snapshots kept on disk.
	DefaultMaxBackups = 10

	// DefaultBackupHour is the wall-clock hour (0-23) daily backups run at.
	DefaultBackupHour = 3
)

// Default scheduler intervals for the background maintenance tasks.
const (
	DefaultExpiryInterval   = 1 * time.Hour
	DefaultOptimizeInterval = 6 * time.Hour
	DefaultBackupInterval   = 24 * time.Hour
	DefaultHealthInterval   = 1 * time.Hour
)

// Config contains the complete configuration for the memory engine.
//
// It includes settings for:
//   - Record store backend (file, sqlite, postgres, mysql)
//   - Response generator provider (for conversation processing)
//   - Retention and optimization thresholds
//   - Backup schedule and retention
//   - Health checks and the optional store read cache
//
// Example:
//
//	config := &core.Config{
//	    Store: core.StoreConfig{
//	        Provider: "sqlite",
//	        Config: map[string]interface{}{
//	            "db_path": "./memories.db",
//	        },
//	    },
//	    Responder: core.ResponderConfig{
//	        Provider: "openai",
//	        APIKey:   "sk-...",
//	        Model:    "gpt-4",
//	    },
//	}
type Config struct {
	// Store contains record store backend configuration.
	Store StoreConfig `json:"store" yaml:"store"`

	// Responder contains response generator provider configuration.
	Responder ResponderConfig `json:"responder" yaml:"responder"`

	// Retention contains the retention windows used by expiry cleanup.
	Retention RetentionConfig `json:"retention" yaml:"retention"`

	// Optimizer contains usage optimization thresholds.
	Optimizer OptimizerConfig `json:"optimizer" yaml:"optimizer"`

	// Backup contains snapshot schedule and retention settings.
	Backup BackupConfig `json:"backup" yaml:"backup"`

	// Health contains health check settings.
	Health HealthConfig `json:"health" yaml:"health"`

	// Cache contains the optional store read cache settings.
	Cache CacheConfig `json:"cache,omitempty" yaml:"cache,omitempty"`
}

// StoreConfig contains configuration for the record store backend.
//
// Supported providers: file, sqlite, postgres, mysql
type StoreConfig struct {
	// Provider is the record store provider name (file, sqlite, postgres, mysql).
	Provider string `json:"provider" yaml:"provider"`

	// Config contains provider-specific configuration.
	// For file: root_dir
	// For SQLite: db_path, table_name
	// For PostgreSQL: host, port, user, password, db_name, table_name, ssl_mode
	// For MySQL: host, port, user, password, db_name, table_name
	Config map[string]interface{} `json:"config" yaml:"config"`
}

// ResponderConfig contains configuration for the response generator provider.
//
// Supported providers: openai, ollama
type ResponderConfig struct {
	// Provider is the generator provider name (openai, ollama).
	Provider string `json:"provider" yaml:"provider"`

	// APIKey is the API key for the provider.
	APIKey string `json:"api_key" yaml:"api_key"`

	// Model is the model name to use (e.g., "gpt-4", "llama3.1:70b").
	Model string `json:"model" yaml:"model"`

	// BaseURL is the base URL for the API (optional, provider default if empty).
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
}

// RetentionConfig contains the retention windows used by expiry cleanup.
type RetentionConfig struct {
	// RetentionDays is the standard retention window in logical days.
	// Records older than this are removed by the hourly expiry sweep.
	RetentionDays int64 `json:"retention_days" yaml:"retention_days"`

	// MaxRecordAgeDays is the absolute age ceiling in logical days.
	// Emergency cleanup removes anything older regardless of RetentionDays.
	MaxRecordAgeDays int64 `json:"max_record_age_days" yaml:"max_record_age_days"`
}

// OptimizerConfig contains usage optimization thresholds.
//
// The aggressive-strategy thresholds ship with sensible defaults but are
// deliberately configurable rather than hard-coded.
type OptimizerConfig struct {
	// PerAgentCap is the maximum records kept per agent under standard
	// optimization. Default: 100.
	PerAgentCap int `json:"per_agent_cap" yaml:"per_agent_cap"`

	// GlobalCap is the maximum records across all agents before aggressive
	// optimization engages. Default: 10000.
	GlobalCap int `json:"global_cap" yaml:"global_cap"`

	// AggressiveTrimThreshold is the record count above which a store is
	// trimmed to AggressiveTrimTarget during aggressive optimization.
	// Default: 50.
	AggressiveTrimThreshold int `json:"aggressive_trim_threshold" yaml:"aggressive_trim_threshold"`

	// AggressiveTrimTarget is the record count a heavy store is trimmed to
	// during aggressive optimization. Default: 30.
	AggressiveTrimTarget int `json:"aggressive_trim_target" yaml:"aggressive_trim_target"`

	// ModerateBandLow is the record count at or above which a store gets a
	// halved retention window during aggressive optimization. Default: 20.
	ModerateBandLow int `json:"moderate_band_low" yaml:"moderate_band_low"`

	// MinHalvedRetentionDays is the floor for the halved retention window.
	// Default: 7.
	MinHalvedRetentionDays int64 `json:"min_halved_retention_days" yaml:"min_halved_retention_days"`

	// Interval is how often the optimization sweep runs. Default: 6h.
	Interval time.Duration `json:"interval,omitempty" yaml:"interval,omitempty"`
}

// BackupConfig contains snapshot schedule and retention settings.
type BackupConfig struct {
	// Dir is the directory snapshots are written to.
	Dir string `json:"dir" yaml:"dir"`

	// Hour is the wall-clock hour (0-23) daily backups run at. Default: 3.
	Hour int `json:"hour" yaml:"hour"`

	// MaxBackups is the number of snapshots kept; older snapshots are
	// deleted after each backup. Default: 10.
	MaxBackups int `json:"max_backups" yaml:"max_backups"`
}

// HealthConfig contains health check settings.
type HealthConfig struct {
	// Interval is how often the health check runs. Default: 1h.
	Interval time.Duration `json:"interval,omitempty" yaml:"interval,omitempty"`
}

// CacheConfig contains settings for the optional store read cache.
type CacheConfig struct {
	// Enabled turns the ristretto read cache on.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// TTL is how long a cached store stays valid. Default: 5m.
	TTL time.Duration `json:"ttl,omitempty" yaml:"ttl,omitempty"`

	// MaxStores is the maximum number of agent stores held in the cache.
	// Default: 1024.
	MaxStores int64 `json:"max_stores,omitempty" yaml:"max_stores,omitempty"`
}

// LoadConfigFromEnv loads configuration from environment variables.
//
// The function:
//  1. Searches for .env or .env.example files (up to 5 directory levels up)
//  2. Loads environment variables from the found file
//  3. Parses environment variables into a Config struct
//
// Supported environment variables:
//   - STORE_PROVIDER (file, sqlite, postgres, mysql)
//   - FILE_STORE_DIR, SQLITE_PATH, SQLITE_TABLE
//   - POSTGRES_HOST, POSTGRES_PORT, POSTGRES_USER, POSTGRES_PASSWORD, etc.
//   - MYSQL_HOST, MYSQL_PORT, MYSQL_USER, MYSQL_PASSWORD, etc.
//   - RESPONDER_PROVIDER, RESPONDER_API_KEY, RESPONDER_MODEL, RESPONDER_BASE_URL
//   - RETENTION_DAYS, MAX_RECORD_AGE_DAYS
//   - PER_AGENT_CAP, GLOBAL_CAP
//   - BACKUP_DIR, BACKUP_HOUR, MAX_BACKUPS
//
// Returns a Config instance with defaults applied, or an error if loading fails.
func LoadConfigFromEnv() (*Config, error) {
	envPath, found := FindEnvFile()
	if found {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	provider := getEnvOrDefault("STORE_PROVIDER", "file")

	storeConfig := make(map[string]interface{})
	switch provider {
	case "file":
		storeConfig = map[string]interface{}{
			"root_dir": getEnvOrDefault("FILE_STORE_DIR", "./villager_memories"),
		}
	case "sqlite":
		storeConfig = map[string]interface{}{
			"db_path":    getEnvOrDefault("SQLITE_PATH", "./villager_memories.db"),
			"table_name": getEnvOrDefault("SQLITE_TABLE", "agent_stores"),
		}
	case "postgres":
		port, _ := strconv.Atoi(getEnvOrDefault("POSTGRES_PORT", "5432"))
		storeConfig = map[string]interface{}{
			"host":       getEnvOrDefault("POSTGRES_HOST", "localhost"),
			"port":       port,
			"user":       getEnvOrDefault("POSTGRES_USER", "postgres"),
			"password":   os.Getenv("POSTGRES_PASSWORD"),
			"db_name":    getEnvOrDefault("POSTGRES_DATABASE", "villagemem"),
			"table_name": getEnvOrDefault("POSTGRES_TABLE", "agent_stores"),
			"ssl_mode":   getEnvOrDefault("POSTGRES_SSLMODE", "disable"),
		}
	case "mysql":
		port, _ := strconv.Atoi(getEnvOrDefault("MYSQL_PORT", "3306"))
		storeConfig = map[string]interface{}{
			"host":       getEnvOrDefault("MYSQL_HOST", "127.0.0.1"),
			"port":       port,
			"user":       getEnvOrDefault("MYSQL_USER", "root"),
			"password":   os.Getenv("MYSQL_PASSWORD"),
			"db_name":    getEnvOrDefault("MYSQL_DATABASE", "villagemem"),
			"table_name": getEnvOrDefault("MYSQL_TABLE", "agent_stores"),
		}
	}

	responderProvider := getEnvOrDefault("RESPONDER_PROVIDER", "openai")
	var responderBaseURL string
	var defaultModel string
	switch responderProvider {
	case "ollama":
		responderBaseURL = os.Getenv("OLLAMA_BASE_URL")
		if responderBaseURL == "" {
			responderBaseURL = "http://localhost:11434"
		}
		defaultModel = "llama3.1:70b"
	default:
		responderBaseURL = os.Getenv("RESPONDER_BASE_URL")
		defaultModel = "gpt-4"
	}

	retentionDays, _ := strconv.ParseInt(getEnvOrDefault("RETENTION_DAYS", "30"), 10, 64)
	maxAgeDays, _ := strconv.ParseInt(getEnvOrDefault("MAX_RECORD_AGE_DAYS", "90"), 10, 64)
	perAgentCap, _ := strconv.Atoi(getEnvOrDefault("PER_AGENT_CAP", "100"))
	globalCap, _ := strconv.Atoi(getEnvOrDefault("GLOBAL_CAP", "10000"))
	backupHour, _ := strconv.Atoi(getEnvOrDefault("BACKUP_HOUR", "3"))
	maxBackups, _ := strconv.Atoi(getEnvOrDefault("MAX_BACKUPS", "10"))

	config := &Config{
		Store: StoreConfig{
			Provider: provider,
			Config:   storeConfig,
		},
		Responder: ResponderConfig{
			Provider: responderProvider,
			APIKey:   os.Getenv("RESPONDER_API_KEY"),
			Model:    getEnvOrDefault("RESPONDER_MODEL", defaultModel),
			BaseURL:  responderBaseURL,
		},
		Retention: RetentionConfig{
			RetentionDays:    retentionDays,
			MaxRecordAgeDays: maxAgeDays,
		},
		Optimizer: OptimizerConfig{
			PerAgentCap: perAgentCap,
			GlobalCap:   globalCap,
		},
		Backup: BackupConfig{
			Dir:        getEnvOrDefault("BACKUP_DIR", "./villager_backups"),
			Hour:       backupHour,
			MaxBackups: maxBackups,
		},
	}

	if os.Getenv("STORE_CACHE_ENABLED") == "true" {
		config.Cache = CacheConfig{Enabled: true}
	}

	config.ApplyDefaults()
	return config, nil
}

// LoadConfigFromEnvFile loads configuration from a specific .env file.
//
// Parameters:
//   - envPath: Path to the .env file
//
// Returns a Config instance, or an error if loading fails.
func LoadConfigFromEnvFile(envPath string) (*Config, error) {
	if err := godotenv.Load(envPath); err != nil {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}
	return LoadConfigFromEnv()
}

// LoadConfigFromJSON loads configuration from a JSON file.
//
// Parameters:
//   - path: Path to the JSON configuration file
//
// Returns a Config instance with defaults applied, or an error if loading
// or parsing fails.
func LoadConfigFromJSON(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewEngineError("LoadConfigFromJSON", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, NewEngineError("LoadConfigFromJSON", err)
	}

	config.ApplyDefaults()
	return &config, nil
}

// LoadConfigFromYAML loads configuration from a YAML file.
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns a Config instance with defaults applied, or an error if loading
// or parsing fails.
func LoadConfigFromYAML(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewEngineError("LoadConfigFromYAML", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, NewEngineError("LoadConfigFromYAML", err)
	}

	config.ApplyDefaults()
	return &config, nil
}

// ApplyDefaults fills in zero-valued settings with the documented defaults.
//
// Components never fail on missing configuration; the defaults here keep the
// engine usable when only a partial configuration is supplied.
func (c *Config) ApplyDefaults() {
	if c.Retention.RetentionDays <= 0 {
		c.Retention.RetentionDays = DefaultRetentionDays
	}
	if c.Retention.MaxRecordAgeDays <= 0 {
		c.Retention.MaxRecordAgeDays = DefaultMaxRecordAgeDays
	}
	if c.Optimizer.PerAgentCap <= 0 {
		c.Optimizer.PerAgentCap = DefaultPerAgentCap
	}
	if c.Optimizer.GlobalCap <= 0 {
		c.Optimizer.GlobalCap = DefaultGlobalCap
	}
	if c.Optimizer.AggressiveTrimThreshold <= 0 {
		c.Optimizer.AggressiveTrimThreshold = 50
	}
	if c.Optimizer.AggressiveTrimTarget <= 0 {
		c.Optimizer.AggressiveTrimTarget = 30
	}
	if c.Optimizer.ModerateBandLow <= 0 {
		c.Optimizer.ModerateBandLow = 20
	}
	if c.Optimizer.MinHalvedRetentionDays <= 0 {
		c.Optimizer.MinHalvedRetentionDays = 7
	}
	if c.Optimizer.Interval <= 0 {
		c.Optimizer.Interval = DefaultOptimizeInterval
	}
	if c.Backup.Hour < 0 || c.Backup.Hour > 23 {
		c.Backup.Hour = DefaultBackupHour
	}
	if c.Backup.MaxBackups <= 0 {
		c.Backup.MaxBackups = DefaultMaxBackups
	}
	if c.Backup.Dir == "" {
		c.Backup.Dir = "./villager_backups"
	}
	if c.Health.Interval <= 0 {
		c.Health.Interval = DefaultHealthInterval
	}
	if c.Cache.Enabled {
		if c.Cache.TTL <= 0 {
			c.Cache.TTL = 5 * time.Minute
		}
		if c.Cache.MaxStores <= 0 {
			c.Cache.MaxStores = 1024
		}
	}
}

// Validate validates the configuration.
//
// Checks that all required fields are set:
//   - Store provider must be specified
//   - Aggressive trim target must not exceed the trim threshold
//
// Returns an error if validation fails, nil otherwise.
func (c *Config) Validate() error {
	if c.Store.Provider == "" {
		return NewEngineError("Validate", ErrInvalidConfig)
	}
	if c.Optimizer.AggressiveTrimTarget > 0 && c.Optimizer.AggressiveTrimThreshold > 0 &&
		c.Optimizer.AggressiveTrimTarget > c.Optimizer.AggressiveTrimThreshold {
		return NewEngineError("Validate", ErrInvalidConfig)
	}
	return nil
}

// getEnvOrDefault gets an environment variable or returns the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// FindEnvFile searches for .env or .env.example files.
//
// The search:
//  1. Checks the current directory
//  2. Searches up to 5 directory levels up
//  3. Returns the first .env or .env.example file found
//
// Returns:
//   - path: Path to the found file (empty if not found)
//   - found: True if a file was found, false otherwise
func FindEnvFile() (string, bool) {
	if _, err := os.Stat(".env"); err == nil {
		return ".env", true
	}
	if _, err := os.Stat(".env.example"); err == nil {
		return ".env.example", true
	}

	dir, _ := os.Getwd()
	for i := 0; i < 5; i++ {
		envPath := filepath.Join(dir, ".env")
		envExamplePath := filepath.Join(dir, ".env.example")

		if _, err := os.Stat(envPath); err == nil {
			return envPath, true
		}
		if _, err := os.Stat(envExamplePath); err == nil {
			return envExamplePath, true
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", false
}
