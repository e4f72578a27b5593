package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the identity module.
// Tracks lifecycle event counts and critical path durations.
type Metrics struct {
	IdentitiesCreated  prometheus.Counter
	NonceCollisions    prometheus.Counter
	OwnershipTransfers prometheus.Counter
	AuthzDenials       prometheus.Counter
	CreateDuration     prometheus.Histogram
	LookupDuration     prometheus.Histogram
	MutationDuration   prometheus.Histogram
}

// New creates a new Metrics instance with all identity module metrics registered.
func New() *Metrics {
	return &Metrics{
		IdentitiesCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "veris_identities_created_total",
			Help: "Total number of identities created",
		}),
		NonceCollisions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "veris_identity_nonce_collisions_total",
			Help: "Total number of creations rejected because the derived identifier was occupied",
		}),
		OwnershipTransfers: promauto.NewCounter(prometheus.CounterOpts{
			Name: "veris_identity_ownership_transfers_total",
			Help: "Total number of completed ownership handshakes",
		}),
		AuthzDenials: promauto.NewCounter(prometheus.CounterOpts{
			Name: "veris_identity_authz_denials_total",
			Help: "Total number of owner-gated operations rejected for lack of ownership",
		}),
		CreateDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "veris_identity_create_duration_seconds",
			Help:    "Duration of identity creation including membership grants",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		LookupDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "veris_identity_lookup_duration_seconds",
			Help:    "Duration of identifier and anchor lookups (read critical path)",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		MutationDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "veris_identity_mutation_duration_seconds",
			Help:    "Duration of owner-gated mutations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// IncrementCreated records a successful identity creation.
func (m *Metrics) IncrementCreated() {
	m.IdentitiesCreated.Inc()
}

// IncrementNonceCollision records a creation rejected on an occupied slot.
func (m *Metrics) IncrementNonceCollision() {
	m.NonceCollisions.Inc()
}

// IncrementOwnershipTransfer records a completed handshake.
func (m *Metrics) IncrementOwnershipTransfer() {
	m.OwnershipTransfers.Inc()
}

// IncrementAuthzDenial records an owner-gate rejection.
func (m *Metrics) IncrementAuthzDenial() {
	m.AuthzDenials.Inc()
}

// ObserveCreate records the duration of a create operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveCreate(start time.Time) {
	m.CreateDuration.Observe(time.Since(start).Seconds())
}

// ObserveLookup records the duration of a lookup operation.
func (m *Metrics) ObserveLookup(start time.Time) {
	m.LookupDuration.Observe(time.Since(start).Seconds())
}

// ObserveMutation records the duration of an owner-gated mutation.
func (m *Metrics) ObserveMutation(start time.Time) {
	m.MutationDuration.Observe(time.Since(start).Seconds())
}
