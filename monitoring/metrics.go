package monitoring

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"raffle-system/internal/store"
	"raffle-system/models"
)

var (
	poolTickets = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "raffle_pool_tickets",
			Help: "Current number of tickets per state",
		},
		[]string{"state"},
	)

	entries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raffle_entries_total",
			Help: "Raffle entries by outcome",
		},
		[]string{"outcome"},
	)

	authorizeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "payment_authorize_duration_seconds",
			Help:    "Duration of payment gateway authorize calls",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		},
	)
)

// TrackEntry counts one finished raffle entry by outcome.
func TrackEntry(outcome string) {
	entries.WithLabelValues(outcome).Inc()
}

// ObserveAuthorizeDuration records one gateway authorize round-trip.
func ObserveAuthorizeDuration(d time.Duration) {
	authorizeDuration.Observe(d.Seconds())
}

type Monitor struct {
	store *store.TicketStore
}

func NewMonitor(ticketStore *store.TicketStore) *Monitor {
	return &Monitor{store: ticketStore}
}

// Collect refreshes the pool gauges every 30 seconds until ctx is done.
func (m *Monitor) Collect(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			summary, err := m.store.Summary(ctx)
			if err != nil {
				slog.Error("collect pool metrics", "error", err)
				continue
			}
			poolTickets.WithLabelValues(string(models.StateAvailable)).Set(float64(summary.Available))
			poolTickets.WithLabelValues(string(models.StateReserved)).Set(float64(summary.Reserved))
			poolTickets.WithLabelValues(string(models.StateSold)).Set(float64(summary.Sold))
		}
	}
}
