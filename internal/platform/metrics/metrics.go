// Package metrics emits service metrics to a DogStatsD agent.
package metrics

import (
	"fmt"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"

	"github.com/pesio-ai/be-visitor-gatepass/internal/platform/logger"
)

const (
	HTTPRequestCount     = "http_request_count"
	HTTPRequestLatency   = "http_request_latency"
	RequestTransition    = "visitor_request_transition"
	NotificationDispatch = "notification_dispatch_count"
	LedgerBackfill       = "ledger_backfill_count"
)

const (
	TagMethod  = "method"
	TagRoute   = "route"
	TagStatus  = "status"
	TagFrom    = "from"
	TagTo      = "to"
	TagOutcome = "outcome"
	TagEvent   = "event"
)

// Config controls client construction.
type Config struct {
	Enabled      bool
	Address      string
	SamplingRate float64
	Service      string
	Environment  string
}

// Recorder is safe for concurrent use.
type Recorder struct {
	client statsd.ClientInterface
	rate   float64
	log    *logger.Logger
}

// New creates a Recorder. A disabled config yields a no-op client.
func New(cfg Config, log *logger.Logger) (*Recorder, error) {
	if !cfg.Enabled {
		return NewNoop(), nil
	}

	client, err := statsd.New(cfg.Address,
		statsd.WithNamespace("gatepass."),
		statsd.WithTags([]string{
			Tag("service", cfg.Service),
			Tag("env", cfg.Environment),
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("statsd client: %w", err)
	}

	rate := cfg.SamplingRate
	if rate <= 0 || rate > 1 {
		rate = 1
	}
	log.Info().Str("address", cfg.Address).Float64("sampling_rate", rate).Msg("Metrics client initialized")
	return &Recorder{client: client, rate: rate, log: log}, nil
}

// NewNoop returns a Recorder that discards every metric.
func NewNoop() *Recorder {
	return &Recorder{client: &statsd.NoOpClient{}, rate: 1, log: logger.Nop()}
}

// Count increases a counter by value.
func (r *Recorder) Count(name string, value int64, tags ...string) {
	if err := r.client.Count(name, value, tags, r.rate); err != nil {
		r.log.Warn().Err(err).Str("metric", name).Msg("statsd count failed")
	}
}

// Incr increases a counter by one.
func (r *Recorder) Incr(name string, tags ...string) {
	r.Count(name, 1, tags...)
}

// Timing records a duration.
func (r *Recorder) Timing(name string, value time.Duration, tags ...string) {
	if err := r.client.Timing(name, value, tags, r.rate); err != nil {
		r.log.Warn().Err(err).Str("metric", name).Msg("statsd timing failed")
	}
}

// Close flushes buffered metrics.
func (r *Recorder) Close() error {
	return r.client.Close()
}

// Tag formats a key:value statsd tag.
func Tag(key, value string) string {
	return key + ":" + value
}
