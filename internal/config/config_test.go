package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadIndexerConfig(t *testing.T) {
	tests := []struct {
		name        string
		configFile  string
		expectError bool
		validate    func(*testing.T, *IndexerConfig)
	}{
		{
			name: "valid config file",
			configFile: `
debug: true
sentry_dsn: "https://sentry.example.com"
curated_list_path: "config/curated.json"
sha_mapping_path: "config/shas.json"
worker:
  pool_size: 10
  queue_size: 500
database:
  host: localhost
  port: 5432
  user: testuser
  password: testpass
  dbname: testdb
  sslmode: require
nats:
  url: "nats://localhost:4222"
  stream_name: "TEST_STREAM"
  max_reconnects: 5
  reconnect_wait: "5s"
  connection_name: "test-connection"
ethereum:
  rpc_url: "http://localhost:8545"
  chain_id: "eip155:1"
  start_block: 17478950
  redeliver_window: 24
  marketplace_addresses: ["0xd3418772623be1a3cc6b6d45cb46420cedd9154a"]
  burn_addresses: ["0x000000000000000000000000000000000000dead"]
  oracle_url: "https://api.ethscriptions.com/api"
sepolia:
  enabled: true
  rpc_url: "http://localhost:8546"
  start_block: 100
notification:
  webhook_url: "https://chat.example.com/hook"
  max_retries: 5
`,
			expectError: false,
			validate: func(t *testing.T, cfg *IndexerConfig) {
				assert.True(t, cfg.Debug)
				assert.Equal(t, "https://sentry.example.com", cfg.SentryDSN)
				assert.Equal(t, "config/curated.json", cfg.CuratedListPath)
				assert.Equal(t, "config/shas.json", cfg.ShaMappingPath)
				assert.Equal(t, 10, cfg.Worker.WorkerPoolSize)
				assert.Equal(t, 500, cfg.Worker.WorkerQueueSize)
				assert.Equal(t, "localhost", cfg.Database.Host)
				assert.Equal(t, "testuser", cfg.Database.User)
				assert.Equal(t, "require", cfg.Database.SSLMode)
				assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
				assert.Equal(t, "TEST_STREAM", cfg.NATS.StreamName)
				assert.True(t, cfg.Ethereum.Enabled)
				assert.Equal(t, "eip155:1", string(cfg.Ethereum.ChainID))
				assert.Equal(t, uint64(17478950), cfg.Ethereum.StartBlock)
				assert.Equal(t, uint64(24), cfg.Ethereum.RedeliverWindow)
				assert.Equal(t, []string{"0xd3418772623be1a3cc6b6d45cb46420cedd9154a"}, cfg.Ethereum.MarketplaceAddresses)
				assert.Equal(t, "https://api.ethscriptions.com/api", cfg.Ethereum.OracleURL)
				assert.True(t, cfg.Sepolia.Enabled)
				assert.Equal(t, "eip155:11155111", string(cfg.Sepolia.ChainID))
				assert.Equal(t, "https://chat.example.com/hook", cfg.Notification.WebhookURL)
				assert.Equal(t, uint64(5), cfg.Notification.MaxRetries)
			},
		},
		{
			name: "config with defaults",
			configFile: `
database:
  host: localhost
  user: testuser
  password: testpass
  dbname: testdb
ethereum:
  rpc_url: "http://localhost:8545"
`,
			expectError: false,
			validate: func(t *testing.T, cfg *IndexerConfig) {
				// Check defaults
				assert.Equal(t, 5432, cfg.Database.Port)
				assert.Equal(t, "disable", cfg.Database.SSLMode)
				assert.Equal(t, 10, cfg.NATS.MaxReconnects)
				assert.Equal(t, "2s", cfg.NATS.ReconnectWait.String())
				assert.Equal(t, "PHUNK_EVENTS", cfg.NATS.StreamName)
				assert.True(t, cfg.Ethereum.Enabled)
				assert.Equal(t, "eip155:1", string(cfg.Ethereum.ChainID))
				assert.Equal(t, "12s", cfg.Ethereum.PollInterval.String())
				assert.Equal(t, uint64(12), cfg.Ethereum.RedeliverWindow)
				assert.False(t, cfg.Sepolia.Enabled)
				assert.True(t, cfg.Consensus.Enabled)
				assert.Equal(t, "10s", cfg.Consensus.Timeout.String())
				assert.Equal(t, uint64(3), cfg.Notification.MaxRetries)
				assert.Equal(t, 20, cfg.Worker.WorkerPoolSize)
				assert.Equal(t, 2048, cfg.Worker.WorkerQueueSize)
			},
		},
		{
			name: "invalid yaml",
			configFile: `
				database:
				  host: localhost
				  port: invalid
			`,
			expectError: true,
			validate:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			configFile := filepath.Join(tmpDir, "config.yaml")
			err := os.WriteFile(configFile, []byte(tt.configFile), 0600)
			require.NoError(t, err)

			cfg, err := LoadIndexerConfig(configFile, "")

			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, cfg)
			} else {
				require.NoError(t, err)
				require.NotNil(t, cfg)
				if tt.validate != nil {
					tt.validate(t, cfg)
				}
			}
		})
	}
}

func TestLoadAPIConfig(t *testing.T) {
	tests := []struct {
		name        string
		configFile  string
		expectError bool
		validate    func(*testing.T, *APIConfig)
	}{
		{
			name: "valid config file",
			configFile: `
debug: true
server:
  host: "127.0.0.1"
  port: 9090
  read_timeout: 30
database:
  host: localhost
  user: testuser
  password: testpass
  dbname: testdb
`,
			expectError: false,
			validate: func(t *testing.T, cfg *APIConfig) {
				assert.True(t, cfg.Debug)
				assert.Equal(t, "127.0.0.1", cfg.Server.Host)
				assert.Equal(t, 9090, cfg.Server.Port)
				assert.Equal(t, 30, cfg.Server.ReadTimeout)
			},
		},
		{
			name:        "server defaults",
			configFile:  `debug: false`,
			expectError: false,
			validate: func(t *testing.T, cfg *APIConfig) {
				assert.Equal(t, "0.0.0.0", cfg.Server.Host)
				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, 10, cfg.Server.ReadTimeout)
				assert.Equal(t, 10, cfg.Server.WriteTimeout)
				assert.Equal(t, 120, cfg.Server.IdleTimeout)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			configFile := filepath.Join(tmpDir, "config.yaml")
			err := os.WriteFile(configFile, []byte(tt.configFile), 0600)
			require.NoError(t, err)

			cfg, err := LoadAPIConfig(configFile, "")

			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, cfg)
			} else {
				require.NoError(t, err)
				require.NotNil(t, cfg)
				if tt.validate != nil {
					tt.validate(t, cfg)
				}
			}
		})
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "db.internal",
		Port:     5433,
		User:     "phunk",
		Password: "secret",
		DBName:   "phunks",
		SSLMode:  "require",
	}
	assert.Equal(t,
		"host=db.internal port=5433 user=phunk password=secret dbname=phunks sslmode=require",
		cfg.DSN())
}
