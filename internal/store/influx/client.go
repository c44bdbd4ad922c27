// Package influx provides InfluxDB time-series metrics for the braidd node.
// It records coordination statistics, solve events, and refresh timings.
package influx

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Client wraps InfluxDB operations for time-series metrics
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	queryAPI api.QueryAPI
	bucket   string
	org      string
}

// Config holds InfluxDB connection configuration
type Config struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// NewClient creates a new InfluxDB client
func NewClient(cfg *Config) (*Client, error) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	health, err := client.Health(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to check InfluxDB health: %w", err)
	}

	if health.Status != "pass" {
		msg := ""
		if health.Message != nil {
			msg = *health.Message
		}
		return nil, fmt.Errorf("InfluxDB health check failed: %s", msg)
	}

	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)
	queryAPI := client.QueryAPI(cfg.Org)

	return &Client{
		client:   client,
		writeAPI: writeAPI,
		queryAPI: queryAPI,
		bucket:   cfg.Bucket,
		org:      cfg.Org,
	}, nil
}

// Close closes the InfluxDB connection
func (c *Client) Close() {
	c.writeAPI.Flush()
	c.client.Close()
}

// Health checks InfluxDB connectivity
func (c *Client) Health(ctx context.Context) error {
	health, err := c.client.Health(ctx)
	if err != nil {
		return fmt.Errorf("failed to check health: %w", err)
	}

	if health.Status != "pass" {
		msg := ""
		if health.Message != nil {
			msg = *health.Message
		}
		return fmt.Errorf("health check failed: %s", msg)
	}

	return nil
}

// Coordination metrics

// WriteCoordinatorStats writes the periodic coordination statistics tick
func (c *Client) WriteCoordinatorStats(active, pruned int, rejected uint64, avgTxCount float64) {
	fields := map[string]interface{}{
		"active_work":   active,
		"pruned_work":   pruned,
		"rejected_work": int64(rejected),
		"avg_tx_count":  avgTxCount,
	}

	point := write.NewPoint("coordinator_stats", map[string]string{}, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WriteSolveMetric writes a solve event metric
func (c *Client) WriteSolveMetric(chainID uint32, height uint64, minerAccount string, outstanding time.Duration) {
	tags := map[string]string{
		"chain_id":      fmt.Sprintf("%d", chainID),
		"miner_account": minerAccount,
	}

	fields := map[string]interface{}{
		"height":         int64(height),
		"outstanding_ms": float64(outstanding.Microseconds()) / 1000,
		"count":          1,
	}

	point := write.NewPoint("solves", tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WriteRefreshMetric writes a payload cache refresh timing
func (c *Client) WriteRefreshMetric(advancedChains, refreshedPayloads int, elapsed time.Duration) {
	fields := map[string]interface{}{
		"advanced_chains":    advancedChains,
		"refreshed_payloads": refreshedPayloads,
		"refresh_ms":         float64(elapsed.Microseconds()) / 1000,
	}

	point := write.NewPoint("cache_refresh", map[string]string{}, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// Query methods

// GetSolveRate retrieves the solve count over a time window
func (c *Client) GetSolveRate(ctx context.Context, duration time.Duration) (int64, error) {
	query := fmt.Sprintf(`
		from(bucket: "%s")
		|> range(start: -%s)
		|> filter(fn: (r) => r._measurement == "solves")
		|> filter(fn: (r) => r._field == "count")
		|> group()
		|> sum()
	`, c.bucket, duration.String())

	result, err := c.queryAPI.Query(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to query solve rate: %w", err)
	}
	defer func() {
		_ = result.Close()
	}()

	if result.Next() {
		record := result.Record()
		if count, ok := record.Value().(int64); ok {
			return count, nil
		}
	}

	if result.Err() != nil {
		return 0, fmt.Errorf("error reading query result: %w", result.Err())
	}

	return 0, nil
}

// Flush forces a write of all pending points
func (c *Client) Flush() {
	c.writeAPI.Flush()
}
