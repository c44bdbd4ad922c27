// Package log provides structured logging utilities for the braidd node.
// It wraps the standard library's slog package with additional convenience methods.
package log

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Logger wraps slog.Logger with additional context and convenience methods
type Logger struct {
	*slog.Logger
	service string
	version string
}

// New creates a new logger with the specified configuration
func New(service, version, level, format string) *Logger {
	var handler slog.Handler

	// Parse log level
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn", "warning":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     logLevel,
		AddSource: logLevel == slog.LevelDebug,
	}

	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	// Create base logger with service context
	baseLogger := slog.New(handler).With(
		"service", service,
		"version", version,
	)

	return &Logger{
		Logger:  baseLogger,
		service: service,
		version: version,
	}
}

// WithContext returns a logger with additional context fields
func (l *Logger) WithContext(ctx context.Context) *Logger {
	logger := l.Logger

	if reqID := ctx.Value("request_id"); reqID != nil {
		logger = logger.With("request_id", reqID)
	}

	return &Logger{
		Logger:  logger,
		service: l.service,
		version: l.version,
	}
}

// WithFields returns a logger with additional fields
func (l *Logger) WithFields(fields ...any) *Logger {
	return &Logger{
		Logger:  l.With(fields...),
		service: l.service,
		version: l.version,
	}
}

// WithComponent returns a logger with a component field
func (l *Logger) WithComponent(component string) *Logger {
	return l.WithFields("component", component)
}

// WithMiner returns a logger with miner-specific fields
func (l *Logger) WithMiner(account string) *Logger {
	return l.WithFields("miner_account", account)
}

// WithChain returns a logger with a chain field
func (l *Logger) WithChain(chainID uint32) *Logger {
	return l.WithFields("chain_id", chainID)
}

// WithWork returns a logger with work-specific fields
func (l *Logger) WithWork(workHash string, height uint64) *Logger {
	return l.WithFields("work_hash", workHash, "block_height", height)
}

// WithError returns a logger with error context
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.WithFields("error", err.Error())
}

// Mining-coordination logging helpers

// LogWorkIssued logs a unit of work handed to a miner
func (l *Logger) LogWorkIssued(workHash, minerAccount string, chainID uint32, height uint64) {
	l.Info("work issued",
		"work_hash", workHash,
		"miner_account", minerAccount,
		"chain_id", chainID,
		"block_height", height,
	)
}

// LogSolve logs an accepted solution for outstanding work
func (l *Logger) LogSolve(workHash, minerAccount string, chainID uint32, height uint64, outstanding time.Duration) {
	l.Info("work solved",
		"work_hash", workHash,
		"miner_account", minerAccount,
		"chain_id", chainID,
		"block_height", height,
		"outstanding_ms", float64(outstanding.Microseconds())/1000,
	)
}

// LogCutAdvance logs an observed cut frontier advance
func (l *Logger) LogCutAdvance(advanced []uint32, refreshed int, elapsed time.Duration) {
	l.Info("cut advanced",
		"advanced_chains", advanced,
		"payloads_refreshed", refreshed,
		"refresh_ms", float64(elapsed.Microseconds())/1000,
	)
}

// LogCoordinatorStats logs the periodic coordination statistics record
func (l *Logger) LogCoordinatorStats(active, pruned int, rejected uint64, avgTxCount float64) {
	l.Info("coordinator statistics",
		"active_work", active,
		"pruned_work", pruned,
		"rejected_requests", rejected,
		"avg_tx_count", avgTxCount,
	)
}

// LogExtension logs the outcome of a chain extension attempt
func (l *Logger) LogExtension(chainID uint32, height uint64, blockHash, status string) {
	l.Info("chain extension",
		"chain_id", chainID,
		"block_height", height,
		"block_hash", blockHash,
		"status", status,
	)
}
