// Package store provides unified persistence for the braidd node: the
// PostgreSQL solve journal, the Redis cut snapshot mirror, and InfluxDB
// metrics behind one manager.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/braidnet/braidd/internal/chain"
	"github.com/braidnet/braidd/internal/store/influx"
	"github.com/braidnet/braidd/internal/store/postgres"
	"github.com/braidnet/braidd/internal/store/redis"
	"github.com/braidnet/braidd/pkg/circuit"
	"github.com/braidnet/braidd/pkg/errors"
	"github.com/braidnet/braidd/pkg/retry"
)

// Manager coordinates persistence across PostgreSQL, Redis, and InfluxDB
type Manager struct {
	Postgres *postgres.Client
	Redis    *redis.Client
	Influx   *influx.Client

	// Repositories
	Solves *postgres.SolveRepository

	// Error handling
	circuitBreaker *circuit.Breaker
	retryConfig    *retry.Config
}

// Config holds configuration for all storage systems
type Config struct {
	Postgres *postgres.Config
	Redis    *redis.Config
	Influx   *influx.Config
}

// NewManager creates a new store manager with all connections
func NewManager(cfg *Config) (*Manager, error) {
	pgClient, err := postgres.NewClient(cfg.Postgres)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeDatabase, "postgres_connection",
			"failed to connect to PostgreSQL database")
	}

	redisClient, err := redis.NewClient(cfg.Redis)
	if err != nil {
		if closeErr := pgClient.Close(); closeErr != nil {
			origErr := errors.Wrap(err, errors.ErrorTypeDatabase, "redis_connection",
				"failed to connect to Redis database")
			return nil, origErr.WithContext("postgres_cleanup_error", closeErr.Error())
		}
		return nil, errors.Wrap(err, errors.ErrorTypeDatabase, "redis_connection",
			"failed to connect to Redis database")
	}

	influxClient, err := influx.NewClient(cfg.Influx)
	if err != nil {
		var closeErrs []error
		if closeErr := pgClient.Close(); closeErr != nil {
			closeErrs = append(closeErrs, closeErr)
		}
		if closeErr := redisClient.Close(); closeErr != nil {
			closeErrs = append(closeErrs, closeErr)
		}

		origErr := errors.Wrap(err, errors.ErrorTypeDatabase, "influx_connection",
			"failed to connect to InfluxDB database")

		if len(closeErrs) > 0 {
			return nil, origErr.WithContext("cleanup_errors", fmt.Sprintf("%v", closeErrs))
		}
		return nil, origErr
	}

	cbConfig := &circuit.Config{
		MaxFailures:     3,
		SuccessRequired: 2,
		Timeout:         30 * time.Second,
		ResetTimeout:    60 * time.Second,
	}

	return &Manager{
		Postgres:       pgClient,
		Redis:          redisClient,
		Influx:         influxClient,
		Solves:         postgres.NewSolveRepository(pgClient.DB()),
		circuitBreaker: circuit.New(cbConfig),
		retryConfig:    retry.DatabaseConfig(),
	}, nil
}

// Close closes all storage connections
func (m *Manager) Close() error {
	var errs []error

	if err := m.Postgres.Close(); err != nil {
		errs = append(errs, fmt.Errorf("PostgreSQL close error: %w", err))
	}

	if err := m.Redis.Close(); err != nil {
		errs = append(errs, fmt.Errorf("redis close error: %w", err))
	}

	m.Influx.Close()

	if len(errs) > 0 {
		return fmt.Errorf("store close errors: %v", errs)
	}

	return nil
}

// Health checks the health of all storage connections
func (m *Manager) Health(ctx context.Context) error {
	if err := m.Postgres.Health(ctx); err != nil {
		return fmt.Errorf("PostgreSQL health check failed: %w", err)
	}

	if err := m.Redis.Health(ctx); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}

	if err := m.Influx.Health(ctx); err != nil {
		return fmt.Errorf("InfluxDB health check failed: %w", err)
	}

	return nil
}

// High-level operations that coordinate across stores

// RecordSolve journals an accepted solution in PostgreSQL and mirrors a
// solve metric into InfluxDB and the Redis solve counter.
func (m *Manager) RecordSolve(ctx context.Context, solve *postgres.Solve) error {
	return m.circuitBreaker.Execute(ctx, func() error {
		return retry.Do(ctx, m.retryConfig, func() error {
			// The journal row is the critical write.
			if err := m.Solves.CreateSolve(ctx, solve); err != nil {
				return errors.Wrap(err, errors.ErrorTypeDatabase, "record_solve",
					"failed to journal solve in PostgreSQL").
					WithContext("work_hash", solve.WorkHash).
					WithContext("chain_id", solve.ChainID).
					WithContext("height", solve.Height)
			}

			// Metrics and counters are best effort.
			m.Influx.WriteSolveMetric(uint32(solve.ChainID), uint64(solve.Height),
				solve.MinerAccount, solve.SolvedAt.Sub(solve.IssuedAt))

			key := fmt.Sprintf("solves:%s", solve.MinerAccount)
			if _, err := m.Redis.IncrementCounter(ctx, key, 24*time.Hour); err != nil {
				redisErr := errors.Wrap(err, errors.ErrorTypeDatabase, "redis_solve_counter",
					"failed to bump solve counter in Redis (non-critical)")
				redisErr.Retryable = false
				fmt.Printf("Warning: %v\n", redisErr)
			}

			return nil
		})
	})
}

// RecordStats writes the pruner's statistics tick to InfluxDB and keeps the
// rolling rejection counter in Redis.
func (m *Manager) RecordStats(ctx context.Context, active, pruned int, rejected uint64, avgTxCount float64) error {
	m.Influx.WriteCoordinatorStats(active, pruned, rejected, avgTxCount)

	if rejected > 0 {
		if _, err := m.Redis.AddCounter(ctx, "rejected_work", int64(rejected), 24*time.Hour); err != nil {
			return errors.Wrap(err, errors.ErrorTypeDatabase, "redis_rejection_counter",
				"failed to bump rejection counter in Redis")
		}
	}

	return nil
}

// RecordRefresh writes a refresh metric for one cut advance to InfluxDB.
func (m *Manager) RecordRefresh(advancedChains, refreshedPayloads int, elapsed time.Duration) {
	m.Influx.WriteRefreshMetric(advancedChains, refreshedPayloads, elapsed)
}

// cutTipSnapshot is the per-chain entry of the cut mirror kept in Redis.
type cutTipSnapshot struct {
	Height       uint64    `json:"height"`
	BlockHash    string    `json:"block_hash"`
	PayloadHash  string    `json:"payload_hash"`
	CreationTime time.Time `json:"creation_time"`
}

// RecordCutSnapshot mirrors the latest cut frontier into Redis for read-only
// consumers such as explorers and dashboards.
func (m *Manager) RecordCutSnapshot(ctx context.Context, cut chain.Cut) error {
	snapshot := make(map[string]cutTipSnapshot, len(cut))
	for id, header := range cut {
		snapshot[fmt.Sprintf("%d", uint32(id))] = cutTipSnapshot{
			Height:       header.Height,
			BlockHash:    header.BlockHash().String(),
			PayloadHash:  header.PayloadHash.String(),
			CreationTime: header.CreationTime,
		}
	}

	if err := m.Redis.SetCutSnapshot(ctx, snapshot); err != nil {
		return errors.Wrap(err, errors.ErrorTypeDatabase, "record_cut_snapshot",
			"failed to mirror cut snapshot to Redis")
	}

	return nil
}

// StartPeriodicTasks starts background tasks for storage maintenance
func (m *Manager) StartPeriodicTasks(ctx context.Context) {
	// Flush InfluxDB writes every 10 seconds
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Influx.Flush()
			}
		}
	}()
}
