package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	IdentitiesRegistered prometheus.Counter
	VotesCast            prometheus.Counter
	VotesRejected        *prometheus.CounterVec
	ApplicationsDecided  *prometheus.CounterVec
	CastVoteDuration     prometheus.Histogram
	AuditEventsQueued    prometheus.Counter
	AuditEventsRelayed   prometheus.Counter
	AuditEventsDropped   prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		IdentitiesRegistered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ballotgate_identities_registered_total",
			Help: "Total number of identities registered.",
		}),
		VotesCast: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ballotgate_votes_cast_total",
			Help: "Total number of votes recorded on the ledger.",
		}),
		VotesRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ballotgate_votes_rejected_total",
			Help: "Votes rejected before recording, by reason.",
		}, []string{"reason"}),
		ApplicationsDecided: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ballotgate_candidacy_decisions_total",
			Help: "Candidacy applications decided, by outcome.",
		}, []string{"outcome"}),
		CastVoteDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "ballotgate_cast_vote_duration_seconds",
			Help:    "End-to-end latency of vote casting.",
			Buckets: prometheus.DefBuckets,
		}),
		AuditEventsQueued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ballotgate_audit_events_queued_total",
			Help: "Audit mirror events appended to the outbox.",
		}),
		AuditEventsRelayed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ballotgate_audit_events_relayed_total",
			Help: "Audit mirror events delivered to the external ledger.",
		}),
		AuditEventsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ballotgate_audit_events_dropped_total",
			Help: "Audit mirror events that could not be queued.",
		}),
	}
}
