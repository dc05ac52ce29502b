package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/idan5353/video-threat-detection/internal/metrics"
	"github.com/idan5353/video-threat-detection/internal/registry"
)

const (
	// DefaultDeliveryTimeout bounds a single delivery.
	DefaultDeliveryTimeout = 5 * time.Second
	// DefaultConcurrency caps in-flight deliveries per broadcast.
	DefaultConcurrency = 32
)

// FanoutResult counts the outcome of one broadcast.
type FanoutResult struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Fanout delivers a payload to every registered connection. A failed
// delivery never affects the others; the failed connection is deregistered.
type Fanout struct {
	registry  registry.Registry
	deliverer Deliverer
	timeout   time.Duration
	limit     int
	metrics   *metrics.Metrics
}

func NewFanout(reg registry.Registry, d Deliverer, timeout time.Duration, m *metrics.Metrics) *Fanout {
	if timeout <= 0 {
		timeout = DefaultDeliveryTimeout
	}
	if m == nil {
		m = metrics.Discard()
	}
	return &Fanout{registry: reg, deliverer: d, timeout: timeout, limit: DefaultConcurrency, metrics: m}
}

// WithConcurrency sets how many deliveries may run at once. Values below 1
// keep the default.
func (f *Fanout) WithConcurrency(n int) *Fanout {
	if n > 0 {
		f.limit = n
	}
	return f
}

// Broadcast sends payload to every connection, at most f.limit at a time.
// Deliveries never return an error to the group, so one failure does not
// stop the rest. An empty registry is a successful no-op. Only a failure to
// list connections is an error.
func (f *Fanout) Broadcast(ctx context.Context, payload []byte) (FanoutResult, error) {
	conns, err := f.registry.List(ctx)
	if err != nil {
		return FanoutResult{}, fmt.Errorf("listing connections: %w", err)
	}

	res := FanoutResult{Total: len(conns)}
	if len(conns) == 0 {
		return res, nil
	}

	var (
		mu     sync.Mutex
		failed []string
		g      errgroup.Group
	)
	g.SetLimit(f.limit)
	for _, c := range conns {
		id := c.ConnectionID
		g.Go(func() error {
			dctx, cancel := context.WithTimeout(ctx, f.timeout)
			err := f.deliverer.Deliver(dctx, id, payload)
			cancel()

			f.metrics.ObserveDelivery(err == nil)
			if err != nil {
				slog.Warn("realtime delivery failed", "connection_id", id, "error", err)
				mu.Lock()
				failed = append(failed, id)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, id := range failed {
		if err := f.registry.Deregister(ctx, id); err != nil {
			slog.Error("deregister failed connection", "connection_id", id, "error", err)
			continue
		}
		f.metrics.ConnectionsRemoved.Inc()
	}

	res.Failed = len(failed)
	res.Succeeded = res.Total - res.Failed
	return res, nil
}
