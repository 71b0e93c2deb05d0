package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/ethereum-phunks/phunk-indexer/internal/adapter"
	"github.com/ethereum-phunks/phunk-indexer/internal/chain"
	"github.com/ethereum-phunks/phunk-indexer/internal/classify"
	"github.com/ethereum-phunks/phunk-indexer/internal/config"
	"github.com/ethereum-phunks/phunk-indexer/internal/consensus"
	"github.com/ethereum-phunks/phunk-indexer/internal/curated"
	"github.com/ethereum-phunks/phunk-indexer/internal/domain"
	"github.com/ethereum-phunks/phunk-indexer/internal/ingest"
	"github.com/ethereum-phunks/phunk-indexer/internal/logger"
	"github.com/ethereum-phunks/phunk-indexer/internal/messaging"
	"github.com/ethereum-phunks/phunk-indexer/internal/normalize"
	"github.com/ethereum-phunks/phunk-indexer/internal/notify"
	"github.com/ethereum-phunks/phunk-indexer/internal/providers/jetstream"
	"github.com/ethereum-phunks/phunk-indexer/internal/store"
)

var (
	configFile = flag.String("config", "", "Path to configuration file")
	envPath    = flag.String("env", "config/", "Path to environment files")
)

// chainOwners adapts the store to the normalizer's owner lookup for one chain
type chainOwners struct {
	store store.Store
	chain domain.Chain
}

func (o *chainOwners) GetOwner(ctx context.Context, hashID string) (string, error) {
	return o.store.GetOwner(ctx, o.chain, hashID)
}

func main() {
	flag.Parse()

	// Load configuration
	config.ChdirRepoRoot()
	cfg, err := config.LoadIndexerConfig(*configFile, *envPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize logger with sentry integration
	err = logger.Initialize(logger.Config{
		Debug:     cfg.Debug,
		SentryDSN: cfg.SentryDSN,
		Tags: map[string]string{
			"service": "phunk-indexer",
		},
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Flush(2 * time.Second)
	logger.InfoCtx(ctx, "Starting Phunk Indexer")

	// Connect to database
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{})
	if err != nil {
		logger.FatalCtx(ctx, "Failed to connect to database", zap.Error(err))
	}
	if err := store.ConfigureConnectionPool(db, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime, cfg.Database.ConnMaxIdleTime); err != nil {
		logger.FatalCtx(ctx, "Failed to configure connection pool", zap.Error(err))
	}
	if err := store.Migrate(db); err != nil {
		logger.FatalCtx(ctx, "Failed to migrate database", zap.Error(err))
	}
	logger.InfoCtx(ctx, "Connected to database")

	dataStore := store.NewPGStore(db)

	// Initialize adapters
	clockAdapter := adapter.NewClock()
	jsonAdapter := adapter.NewJSON()
	fs := adapter.NewFileSystem()
	httpClient := adapter.NewHTTPClient(cfg.Consensus.Timeout, time.Minute)

	// Load the curated allow-list
	var curatedRegistry curated.Registry
	if cfg.CuratedListPath != "" {
		curatedRegistry, err = curated.NewLoader(fs, jsonAdapter).Load(cfg.CuratedListPath)
		if err != nil {
			logger.FatalCtx(ctx, "Failed to load curated list",
				zap.Error(err), zap.String("path", cfg.CuratedListPath))
		}
		logger.InfoCtx(ctx, "Loaded curated list",
			zap.String("path", cfg.CuratedListPath), zap.Int("entries", curatedRegistry.Size()))
	} else {
		logger.WarnCtx(ctx, "Curated list path not configured, no phunk will be marked curated")
	}

	// Load the sha -> phunk number mapping
	if cfg.ShaMappingPath != "" {
		data, err := fs.ReadFile(cfg.ShaMappingPath)
		if err != nil {
			logger.FatalCtx(ctx, "Failed to read sha mapping",
				zap.Error(err), zap.String("path", cfg.ShaMappingPath))
		}
		var mapping map[string]uint64
		if err := jsonAdapter.Unmarshal(data, &mapping); err != nil {
			logger.FatalCtx(ctx, "Failed to parse sha mapping", zap.Error(err))
		}
		if err := dataStore.LoadShaMapping(ctx, mapping); err != nil {
			logger.FatalCtx(ctx, "Failed to load sha mapping", zap.Error(err))
		}
		logger.InfoCtx(ctx, "Loaded sha mapping", zap.Int("entries", len(mapping)))
	}

	// Optional JetStream fan-out
	var publisher messaging.Publisher = messaging.NopPublisher{}
	if cfg.NATS.URL != "" {
		publisher, err = jetstream.NewPublisher(jetstream.Config{
			URL:            cfg.NATS.URL,
			StreamName:     cfg.NATS.StreamName,
			MaxReconnects:  cfg.NATS.MaxReconnects,
			ReconnectWait:  cfg.NATS.ReconnectWait,
			ConnectionName: cfg.NATS.ConnectionName,
		}, adapter.NewNatsJetStream(), jsonAdapter)
		if err != nil {
			logger.FatalCtx(ctx, "Failed to connect to NATS", zap.Error(err))
		}
		logger.InfoCtx(ctx, "Connected to NATS", zap.String("url", cfg.NATS.URL))
	}
	defer publisher.Close()

	// Chat webhook dispatcher
	dispatcher := notify.NewDispatcher(
		adapter.NewHTTPClient(cfg.Notification.Timeout, time.Minute),
		jsonAdapter,
		notify.Config{
			WebhookURL: cfg.Notification.WebhookURL,
			MaxRetries: cfg.Notification.MaxRetries,
		})
	defer dispatcher.Stop()

	classifier := classify.NewClassifier()
	ethDialer := adapter.NewEthClientDialer()

	errCh := make(chan error, 2)
	var sources []chain.Source
	var workers []ingest.Worker

	for _, chainCfg := range []config.ChainConfig{cfg.Ethereum, cfg.Sepolia} {
		if !chainCfg.Enabled {
			continue
		}

		client, err := ethDialer.Dial(ctx, chainCfg.RPCURL)
		if err != nil {
			logger.FatalCtx(ctx, "Failed to dial Ethereum RPC",
				zap.Error(err), zap.String("chain", string(chainCfg.ChainID)))
		}

		source := chain.NewSource(client, chain.Config{
			ChainID:         chainCfg.ChainID,
			StartBlock:      chainCfg.StartBlock,
			PollInterval:    chainCfg.PollInterval,
			RedeliverWindow: chainCfg.RedeliverWindow,
		}, clockAdapter)
		sources = append(sources, source)

		normalizer := normalize.NewNormalizer(normalize.Config{
			MarketplaceAddresses: chainCfg.MarketplaceAddresses,
			BurnAddresses:        chainCfg.BurnAddresses,
		}, &chainOwners{store: dataStore, chain: chainCfg.ChainID})

		var verifier consensus.Verifier
		if cfg.Consensus.Enabled && chainCfg.OracleURL != "" {
			verifier = consensus.NewVerifier(httpClient, dataStore, chainCfg.OracleURL)
		}

		worker := ingest.NewWorker(
			ingest.Config{
				ChainID:   chainCfg.ChainID,
				PoolSize:  cfg.Worker.WorkerPoolSize,
				QueueSize: cfg.Worker.WorkerQueueSize,
			},
			source,
			classifier,
			normalizer,
			dataStore,
			curatedRegistry,
			verifier,
			dispatcher,
			publisher,
		)
		workers = append(workers, worker)

		go func(chainCfg config.ChainConfig) {
			cursor, err := dataStore.GetBlockCursor(ctx, chainCfg.ChainID)
			if err != nil {
				errCh <- fmt.Errorf("failed to get block cursor for %s: %w", chainCfg.ChainID, err)
				return
			}

			start := source.ResolveStart(cursor)
			if err := source.Run(ctx, start, worker.HandleBlock); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("chain %s stopped: %w", chainCfg.ChainID, err)
			}
		}(chainCfg)
	}

	if len(sources) == 0 {
		logger.FatalCtx(ctx, "No chain enabled")
	}

	// Wait for interrupt signal or a fatal chain error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.InfoCtx(ctx, "Received shutdown signal", zap.String("signal", sig.String()))
	case err := <-errCh:
		logger.ErrorCtx(ctx, err, zap.String("component", "indexer"))
	}
	cancel()

	for _, source := range sources {
		source.Close()
	}
	for _, worker := range workers {
		worker.Stop()
	}

	logger.Info("Phunk indexer stopped")
}
