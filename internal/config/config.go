package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/ethereum-phunks/phunk-indexer/internal/domain"
)

// BaseConfig holds base configuration
type BaseConfig struct {
	Debug     bool   `mapstructure:"debug"`
	SentryDSN string `mapstructure:"sentry_dsn"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// NATSConfig holds NATS JetStream configuration. Publishing is disabled when
// URL is empty.
type NATSConfig struct {
	URL            string        `mapstructure:"url"`
	StreamName     string        `mapstructure:"stream_name"`
	MaxReconnects  int           `mapstructure:"max_reconnects"`
	ReconnectWait  time.Duration `mapstructure:"reconnect_wait"`
	ConnectionName string        `mapstructure:"connection_name"`
}

// ChainConfig holds per-chain ingestion configuration
type ChainConfig struct {
	Enabled bool         `mapstructure:"enabled"`
	RPCURL  string       `mapstructure:"rpc_url"`
	ChainID domain.Chain `mapstructure:"chain_id"`
	// StartBlock is where indexing begins on an empty database
	StartBlock uint64 `mapstructure:"start_block"`
	// PollInterval is how long to wait when the head has been reached
	PollInterval time.Duration `mapstructure:"poll_interval"`
	// RedeliverWindow is how many already-committed trailing blocks are
	// re-delivered after a restart
	RedeliverWindow uint64 `mapstructure:"redeliver_window"`
	// MarketplaceAddresses classify transfers to them as sales
	MarketplaceAddresses []string `mapstructure:"marketplace_addresses"`
	// BurnAddresses classify transfers to them as burns
	BurnAddresses []string `mapstructure:"burn_addresses"`
	// OracleURL is the consensus verification endpoint base URL
	OracleURL string `mapstructure:"oracle_url"`
}

// ConsensusConfig holds consensus oracle client configuration
type ConsensusConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// NotificationConfig holds chat webhook configuration. Dispatch is disabled
// when WebhookURL is empty.
type NotificationConfig struct {
	WebhookURL string        `mapstructure:"webhook_url"`
	MaxRetries uint64        `mapstructure:"max_retries"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`  // in seconds
	WriteTimeout int    `mapstructure:"write_timeout"` // in seconds
	IdleTimeout  int    `mapstructure:"idle_timeout"`  // in seconds
}

// WorkerConfig holds worker pool configuration
type WorkerConfig struct {
	WorkerPoolSize  int `mapstructure:"pool_size"`
	WorkerQueueSize int `mapstructure:"queue_size"`
}

// IndexerConfig holds configuration for the indexer binary
type IndexerConfig struct {
	BaseConfig      `mapstructure:",squash"`
	Worker          WorkerConfig       `mapstructure:"worker"`
	Database        DatabaseConfig     `mapstructure:"database"`
	NATS            NATSConfig         `mapstructure:"nats"`
	Ethereum        ChainConfig        `mapstructure:"ethereum"`
	Sepolia         ChainConfig        `mapstructure:"sepolia"`
	Consensus       ConsensusConfig    `mapstructure:"consensus"`
	Notification    NotificationConfig `mapstructure:"notification"`
	CuratedListPath string             `mapstructure:"curated_list_path"`
	ShaMappingPath  string             `mapstructure:"sha_mapping_path"`
}

// APIConfig holds configuration for the API server
type APIConfig struct {
	BaseConfig `mapstructure:",squash"`
	Server     ServerConfig   `mapstructure:"server"`
	Database   DatabaseConfig `mapstructure:"database"`
}

// LoadIndexerConfig loads configuration for the indexer binary
func LoadIndexerConfig(configFile string, envPath string) (*IndexerConfig, error) {
	v := configureViper("indexer", configFile, envPath)

	// Set defaults
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("nats.max_reconnects", 10)
	v.SetDefault("nats.reconnect_wait", "2s")
	v.SetDefault("nats.stream_name", "PHUNK_EVENTS")
	v.SetDefault("ethereum.enabled", true)
	v.SetDefault("ethereum.chain_id", "eip155:1")
	v.SetDefault("ethereum.poll_interval", "12s")
	v.SetDefault("ethereum.redeliver_window", 12)
	v.SetDefault("sepolia.enabled", false)
	v.SetDefault("sepolia.chain_id", "eip155:11155111")
	v.SetDefault("sepolia.poll_interval", "12s")
	v.SetDefault("sepolia.redeliver_window", 12)
	v.SetDefault("consensus.enabled", true)
	v.SetDefault("consensus.timeout", "10s")
	v.SetDefault("notification.max_retries", 3)
	v.SetDefault("notification.timeout", "10s")
	v.SetDefault("worker.pool_size", 20)
	v.SetDefault("worker.queue_size", 2048)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			// Config file not found, use environment variables
		} else {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config IndexerConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

// LoadAPIConfig loads configuration for the API server
func LoadAPIConfig(configFile string, envPath string) (*APIConfig, error) {
	v := configureViper("api", configFile, envPath)

	// Set defaults
	v.SetDefault("debug", false)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 10)
	v.SetDefault("server.idle_timeout", 120)
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			// Config file not found, use environment variables
		} else {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config APIConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

// configureViper returns a viper instance with the config file and environment variables set
func configureViper(service string, configFile string, envPath string) *viper.Viper {
	v := viper.New()

	// Load environment variables
	loadEnv(envPath, service)

	// Set config file
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		// Search for config.yaml in multiple locations:
		// 1. Current directory
		v.AddConfigPath(".")
		// 2. Service-specific directory (e.g., cmd/indexer/, cmd/api/)
		v.AddConfigPath(fmt.Sprintf("cmd/%s/", service))
		// 3. Config directory
		v.AddConfigPath("config/")
	}

	// Set environment variables
	v.SetEnvPrefix("PHUNK_INDEXER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicitly bind all environment variables
	bindAllEnvVars(v)
	return v
}

// bindAllEnvVars explicitly binds all possible environment variables
// This is required for viper to map env vars to config struct fields when no config file exists
func bindAllEnvVars(v *viper.Viper) {
	keys := []string{
		"debug",
		"sentry_dsn",
		// Database
		"database.host",
		"database.port",
		"database.user",
		"database.password",
		"database.dbname",
		"database.sslmode",
		"database.max_open_conns",
		"database.max_idle_conns",
		"database.conn_max_lifetime",
		"database.conn_max_idle_time",
		// NATS
		"nats.url",
		"nats.stream_name",
		"nats.max_reconnects",
		"nats.reconnect_wait",
		"nats.connection_name",
		// Chains
		"ethereum.enabled",
		"ethereum.rpc_url",
		"ethereum.chain_id",
		"ethereum.start_block",
		"ethereum.poll_interval",
		"ethereum.redeliver_window",
		"ethereum.marketplace_addresses",
		"ethereum.burn_addresses",
		"ethereum.oracle_url",
		"sepolia.enabled",
		"sepolia.rpc_url",
		"sepolia.chain_id",
		"sepolia.start_block",
		"sepolia.poll_interval",
		"sepolia.redeliver_window",
		"sepolia.marketplace_addresses",
		"sepolia.burn_addresses",
		"sepolia.oracle_url",
		// Consensus
		"consensus.enabled",
		"consensus.timeout",
		// Notification
		"notification.webhook_url",
		"notification.max_retries",
		"notification.timeout",
		// Server
		"server.host",
		"server.port",
		"server.read_timeout",
		"server.write_timeout",
		"server.idle_timeout",
		// Worker
		"worker.pool_size",
		"worker.queue_size",
		// Paths
		"curated_list_path",
		"sha_mapping_path",
	}

	for _, key := range keys {
		_ = v.BindEnv(key)
	}
}

// loadEnv loads environment variables from the config directory
func loadEnv(envPath string, service string) {
	// Always try shared base first, then local, then optional per-service local.
	envFiles := []string{".env", ".env.local"}
	if service != "" {
		envFiles = append(envFiles, ".env."+service+".local")
	}

	// Default to config directory
	if envPath == "" {
		envPath = "config/"
	}

	for _, envFile := range envFiles {
		candidate := filepath.Join(envPath, envFile)
		_ = godotenv.Overload(candidate) // Overload lets later files override earlier ones
	}
}

// ChdirRepoRoot changes the current working directory to the repository root
func ChdirRepoRoot() {
	cwd, _ := os.Getwd()
	for range 5 {
		if _, err := os.Stat(filepath.Join(cwd, "config")); err == nil {
			_ = os.Chdir(cwd)
			return
		}
		cwd = filepath.Dir(cwd)
	}
}

// DSN returns the database connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}
