package sdk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/loadpulse/loadpulse/pkg/downsample"
	"github.com/loadpulse/loadpulse/pkg/pipeline"
	"github.com/loadpulse/loadpulse/pkg/sdk/batch"
	"github.com/loadpulse/loadpulse/pkg/sdk/transport"
)

// Config holds client configuration.
type Config struct {
	// Endpoint is the collector root URL, e.g. "http://localhost:8080".
	Endpoint string `json:"endpoint"`

	// Run names the run this producer reports into.
	Run string `json:"run"`

	// APIKey is sent as a bearer token when set. HTTP transport only.
	APIKey string `json:"api_key"`

	// UseWebsocket streams envelopes over the push socket instead of
	// posting them individually.
	UseWebsocket bool `json:"use_websocket"`

	FlushEvery   time.Duration `json:"flush_every"`
	MaxBatchSize int           `json:"max_batch_size"`
}

const (
	defaultEndpoint   = "http://localhost:8080"
	defaultFlushEvery = 5 * time.Second
	defaultMaxBatch   = 100
)

// Client reports measurement points to a collector and queries series
// back from it.
type Client struct {
	config    Config
	transport transport.Transport
	batcher   *batch.Batcher
	http      *http.Client
}

// New creates a client. Call Start before recording.
func New(cfg Config) (*Client, error) {
	if cfg.Run == "" {
		return nil, fmt.Errorf("run name is required")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoint
	}
	if cfg.FlushEvery <= 0 {
		cfg.FlushEvery = defaultFlushEvery
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = defaultMaxBatch
	}

	var (
		t   transport.Transport
		err error
	)
	if cfg.UseWebsocket {
		t, err = transport.NewWS(cfg.Endpoint, cfg.Run)
	} else {
		t, err = transport.NewHTTP(cfg.Endpoint, cfg.Run, cfg.APIKey)
	}
	if err != nil {
		return nil, fmt.Errorf("create transport: %w", err)
	}

	return &Client{
		config:    cfg,
		transport: t,
		batcher: batch.New(t, batch.Config{
			MaxBatchSize: cfg.MaxBatchSize,
			FlushEvery:   cfg.FlushEvery,
		}),
		http: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// Start launches the background flush loop.
func (c *Client) Start(ctx context.Context) {
	c.batcher.Start(ctx)
}

// Observe records one request observation with the current timestamp.
func (c *Client) Observe(responseTimeMs float64, status int, succeeded bool) {
	c.Record(pipeline.RawPoint{
		Timestamp:    time.Now().UnixMilli(),
		ResponseTime: responseTimeMs,
		Status:       status,
		Success:      succeeded,
	})
}

// Record buffers one raw point for delivery.
func (c *Client) Record(p pipeline.RawPoint) {
	c.batcher.Add(pipeline.PushEnvelope{DataPoint: &p})
}

// RecordMetrics buffers an aggregate rollup for delivery.
func (c *Client) RecordMetrics(m pipeline.RawMetrics) {
	c.batcher.Add(pipeline.PushEnvelope{Metrics: &m})
}

// Flush forces delivery of everything buffered.
func (c *Client) Flush(ctx context.Context) error {
	return c.batcher.Flush(ctx)
}

// Series fetches the downsampled series for a run. maxPoints and strategy
// are optional; zero values defer to the collector's defaults.
func (c *Client) Series(ctx context.Context, run string, maxPoints int, strategy downsample.Strategy) (*downsample.Result, error) {
	u, err := url.Parse(c.config.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	u.Path = "/v1/series"
	q := u.Query()
	q.Set("run", run)
	if maxPoints > 0 {
		q.Set("maxPoints", strconv.Itoa(maxPoints))
	}
	if strategy != "" {
		q.Set("strategy", string(strategy))
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch series: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("series request failed with status %d", resp.StatusCode)
	}

	var result downsample.Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode series: %w", err)
	}
	return &result, nil
}

// Close drains the batch buffer and shuts the transport down.
func (c *Client) Close() error {
	flushErr := c.batcher.Stop()
	closeErr := c.transport.Close()
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}
