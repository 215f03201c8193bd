package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Raffle records counters for the reservation and redemption flows.
// A nil *Raffle is valid and records nothing.
type Raffle struct {
	committed     prometheus.Counter
	conflicts     prometheus.Counter
	redemptions   *prometheus.CounterVec
	notifications *prometheus.CounterVec
	storeReady    prometheus.Gauge
}

// NewRaffle registers the raffle metrics on the provided registerer.
func NewRaffle(reg prometheus.Registerer) *Raffle {
	if reg == nil {
		return nil
	}
	m := &Raffle{
		committed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "raffle_reservations_committed_total",
			Help: "Raffle numbers committed to the store.",
		}),
		conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "raffle_reservation_conflicts_total",
			Help: "Requested numbers rejected because another participant held them.",
		}),
		redemptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "raffle_link_redemptions_total",
			Help: "Custom link redemption attempts by outcome.",
		}, []string{"outcome"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "raffle_notifications_total",
			Help: "Admin notifications appended by type.",
		}, []string{"type"}),
		storeReady: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "raffle_store_ready",
			Help: "1 when the remote store is configured and reachable.",
		}),
	}
	reg.MustRegister(m.committed, m.conflicts, m.redemptions, m.notifications, m.storeReady)
	return m
}

func (m *Raffle) AddCommitted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.committed.Add(float64(n))
}

func (m *Raffle) AddConflicts(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.conflicts.Add(float64(n))
}

func (m *Raffle) IncRedemption(outcome string) {
	if m == nil {
		return
	}
	m.redemptions.WithLabelValues(outcome).Inc()
}

func (m *Raffle) IncNotification(kind string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(kind).Inc()
}

func (m *Raffle) SetStoreReady(ready bool) {
	if m == nil {
		return
	}
	if ready {
		m.storeReady.Set(1)
		return
	}
	m.storeReady.Set(0)
}
