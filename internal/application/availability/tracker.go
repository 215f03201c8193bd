// Package availability tracks whether the remote store is configured and reachable.
package availability

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rifas-api/internal/domain"
	"github.com/rifas-api/internal/pkg/logger"
	"github.com/rifas-api/internal/pkg/metrics"
)

// Pinger checks store reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Tracker answers Ready() from the last observed store outcome. Every store
// call reports back through Track, and Run probes on an interval.
type Tracker struct {
	configured bool
	endpoint   string
	pinger     Pinger
	online     atomic.Bool
	log        *logger.Logger
	metrics    *metrics.Raffle
}

// NewTracker starts online when a store is configured; the first probe or
// store call corrects that.
func NewTracker(configured bool, endpoint string, pinger Pinger, log *logger.Logger, m *metrics.Raffle) *Tracker {
	if log == nil {
		log = logger.Nop()
	}
	t := &Tracker{configured: configured, endpoint: endpoint, pinger: pinger, log: log, metrics: m}
	t.online.Store(configured && pinger != nil)
	m.SetStoreReady(t.Ready())
	return t
}

func (t *Tracker) Ready() bool {
	return t.configured && t.online.Load()
}

// Track records the outcome of a store call and returns err unchanged.
// Only unreachable-store failures flip the tracker offline; a call the
// caller abandoned leaves the state as it was.
func (t *Tracker) Track(err error) error {
	switch {
	case err == nil:
		t.set(true)
	case errors.Is(err, domain.ErrStoreUnavailable):
		t.set(false)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
	default:
		t.set(true)
	}
	return err
}

// Probe pings the store once and updates the state.
func (t *Tracker) Probe(ctx context.Context) bool {
	if !t.configured || t.pinger == nil {
		return false
	}
	err := t.pinger.Ping(ctx)
	if err != nil && ctx.Err() != nil {
		return t.Ready()
	}
	if err != nil {
		t.log.Warn(ctx, "store probe failed", err)
		t.set(false)
		return false
	}
	t.set(true)
	return true
}

// Run probes every interval until ctx is cancelled.
func (t *Tracker) Run(ctx context.Context, interval time.Duration) {
	if !t.configured || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			probeCtx, cancel := context.WithTimeout(ctx, interval/2)
			t.Probe(probeCtx)
			cancel()
		}
	}
}

func (t *Tracker) Status() domain.SystemStatus {
	return domain.SystemStatus{
		Ready:           t.Ready(),
		Online:          t.online.Load(),
		StoreConfigured: t.configured,
		StoreEndpoint:   t.endpoint,
	}
}

func (t *Tracker) set(online bool) {
	if !t.configured {
		return
	}
	prev := t.online.Swap(online)
	if prev != online {
		if online {
			t.log.Info(context.Background(), "store back online")
		} else {
			t.log.Warn(context.Background(), "store went offline", nil)
		}
		t.metrics.SetStoreReady(online)
	}
}
