// Package main implements braidd, the multi-chain mining-coordination node.
// It keeps a warm payload cache against the advancing cut frontier, issues
// proof-of-work work to miners, and settles accepted solutions against the
// chain-state engine.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/braidnet/braidd/internal/chainstate"
	"github.com/braidnet/braidd/internal/config"
	"github.com/braidnet/braidd/internal/coordinator"
	"github.com/braidnet/braidd/internal/events"
	"github.com/braidnet/braidd/internal/execution"
	"github.com/braidnet/braidd/internal/miner"
	"github.com/braidnet/braidd/internal/store"
	"github.com/braidnet/braidd/internal/store/influx"
	"github.com/braidnet/braidd/internal/store/postgres"
	"github.com/braidnet/braidd/internal/store/redis"
	"github.com/braidnet/braidd/pkg/log"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := log.New(cfg.ServiceName, cfg.Version, cfg.LogLevel, cfg.LogFormat)

	params, err := cfg.Params()
	if err != nil {
		logger.WithError(err).Error("failed to resolve network params")
		os.Exit(1)
	}

	if !cfg.CoordinationEnabled {
		logger.Info("mining coordination disabled, nothing to run")
		return
	}

	logger.Info("starting braidd",
		"version", cfg.Version,
		"network", params.Name,
		"chains", params.ChainCount,
		"simulated", params.Simulated(),
		"work_cap", cfg.WorkCap,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect storage
	var storeManager *store.Manager
	if cfg.StoreEnabled {
		storeManager, err = store.NewManager(&store.Config{
			Postgres: &postgres.Config{
				Host:         cfg.PostgresHost,
				Port:         cfg.PostgresPort,
				Database:     cfg.PostgresDatabase,
				User:         cfg.PostgresUser,
				Password:     cfg.PostgresPassword,
				SSLMode:      cfg.PostgresSSLMode,
				MaxOpenConns: 25,
				MaxIdleConns: 5,
				MaxLifetime:  5 * time.Minute,
			},
			Redis: &redis.Config{
				Addr:         cfg.RedisAddr,
				Password:     cfg.RedisPassword,
				DB:           cfg.RedisDB,
				PoolSize:     10,
				MinIdleConns: 2,
				MaxRetries:   3,
				DialTimeout:  5 * time.Second,
				ReadTimeout:  3 * time.Second,
				WriteTimeout: 3 * time.Second,
			},
			Influx: &influx.Config{
				URL:    cfg.InfluxURL,
				Token:  cfg.InfluxToken,
				Org:    cfg.InfluxOrg,
				Bucket: cfg.InfluxBucket,
			},
		})
		if err != nil {
			logger.WithError(err).Error("failed to connect storage")
			os.Exit(1)
		}
		defer func() {
			if err := storeManager.Close(); err != nil {
				logger.WithError(err).Error("failed to close storage")
			}
		}()
		storeManager.StartPeriodicTasks(ctx)
		logger.Info("connected storage")
	}

	// Connect Kafka
	var eventsClient *events.Client
	if cfg.EventsEnabled {
		eventsClient = events.NewClient(cfg.KafkaBrokers, logger)
		defer func() {
			if err := eventsClient.Close(); err != nil {
				logger.WithError(err).Error("failed to close Kafka client")
			}
		}()
	}

	// Assemble the chain-state view and the payload builder. Simulated
	// networks run self-contained; everything else follows the external
	// chain-state engine and execution service.
	var (
		tracker  *chainstate.Tracker
		extender miner.ChainExtender
		builder  coordinator.PayloadBuilder
		tasks    []coordinator.Task
	)
	if params.Simulated() {
		tracker = chainstate.NewTracker(params.GenesisCut(), logger)
		extender = chainstate.NewLocalEngine(tracker, logger)
		builder = execution.NewSimulatedBuilder(cfg.SimTxPerPayload)
	} else {
		engineClient := chainstate.NewEngineClient(cfg.EngineRPCURL)

		bootCtx, bootCancel := context.WithTimeout(ctx, 30*time.Second)
		initial, err := engineClient.GetCut(bootCtx)
		bootCancel()
		if err != nil {
			logger.WithError(err).Error("failed to fetch initial cut from engine")
			os.Exit(1)
		}
		logger.Info("fetched initial cut", "chains", len(initial))

		tracker = chainstate.NewTracker(initial, logger)
		extender = engineClient
		builder = execution.NewClient(cfg.ExecRPCURL)

		notifier, err := chainstate.NewNotifier(cfg.EngineZMQAddr, tracker, logger)
		if err != nil {
			logger.WithError(err).Error("failed to create cut notifier")
			os.Exit(1)
		}
		if err := notifier.Connect(); err != nil {
			logger.WithError(err).Error("failed to connect cut notifier")
			os.Exit(1)
		}
		defer func() {
			if err := notifier.Close(); err != nil {
				logger.WithError(err).Error("failed to close cut notifier")
			}
		}()
		tasks = append(tasks, notifier.Listen)
	}

	// Create the coordination facade
	coord, err := coordinator.New(&coordinator.Config{
		Logger:          logger,
		Cuts:            tracker,
		Builder:         builder,
		Miners:          cfg.Miners,
		WorkCap:         cfg.WorkCap,
		StalenessWindow: cfg.StalenessWindow,
		Events:          eventsClient,
		Store:           storeManager,
	})
	if err != nil {
		logger.WithError(err).Error("failed to create coordinator")
		os.Exit(1)
	}

	// Enable the in-process miner runtime
	if cfg.InProcMinerEnabled {
		inproc, err := miner.New(&miner.Config{
			Logger:   logger,
			Params:   params,
			Miners:   cfg.Miners,
			Source:   coord,
			Extender: extender,
			Cuts:     tracker,
		})
		if err != nil {
			logger.WithError(err).Error("failed to create miner runtime")
			os.Exit(1)
		}
		tasks = append(tasks, inproc.Run)
	}

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("shutdown signal received", "signal", sig.String())
		cancel()
	}()

	// Run the coordination group until a fatal fault or shutdown
	if err := coord.Run(ctx, tasks...); err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Error("coordination group failed")
		os.Exit(1)
	}

	logger.Info("braidd stopped")
}
