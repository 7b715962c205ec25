package device

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains the prometheus counters of the command pipeline.
//
// A nil *Metrics is valid and records nothing, so metrics stay optional for
// library use.
type Metrics struct {
	// CommandsDispatched counts commands handed to an executor, including resends.
	CommandsDispatched prometheus.Counter
	// RepliesAccepted counts replies classified as acknowledged.
	RepliesAccepted prometheus.Counter
	// ChecksumRetries counts checksum-retry signals that triggered a resend.
	ChecksumRetries prometheus.Counter
	// RunawayTrips counts devices whose checksum window tripped the runaway flag.
	RunawayTrips prometheus.Counter
	// RepliesUnrecognized counts replies classified as neither acknowledged nor retryable.
	RepliesUnrecognized prometheus.Counter
	// InvalidTransitions counts rejected lifecycle events.
	InvalidTransitions prometheus.Counter
}

// NewMetrics creates Metrics registered on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		CommandsDispatched: factory.NewCounter(prometheus.CounterOpts{
			Name: "fabdrive_commands_dispatched_total",
			Help: "Commands handed to an executor, including resends.",
		}),
		RepliesAccepted: factory.NewCounter(prometheus.CounterOpts{
			Name: "fabdrive_replies_accepted_total",
			Help: "Replies classified as acknowledged.",
		}),
		ChecksumRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "fabdrive_checksum_retries_total",
			Help: "Checksum-retry signals that triggered a resend.",
		}),
		RunawayTrips: factory.NewCounter(prometheus.CounterOpts{
			Name: "fabdrive_checksum_runaway_trips_total",
			Help: "Checksum windows that tripped the sticky runaway flag.",
		}),
		RepliesUnrecognized: factory.NewCounter(prometheus.CounterOpts{
			Name: "fabdrive_replies_unrecognized_total",
			Help: "Replies classified as neither acknowledged nor retryable.",
		}),
		InvalidTransitions: factory.NewCounter(prometheus.CounterOpts{
			Name: "fabdrive_invalid_transitions_total",
			Help: "Rejected device lifecycle events.",
		}),
	}
}

func (m *Metrics) incCommandsDispatched() {
	if m != nil {
		m.CommandsDispatched.Inc()
	}
}

func (m *Metrics) incRepliesAccepted() {
	if m != nil {
		m.RepliesAccepted.Inc()
	}
}

func (m *Metrics) incChecksumRetries() {
	if m != nil {
		m.ChecksumRetries.Inc()
	}
}

func (m *Metrics) incRunawayTrips() {
	if m != nil {
		m.RunawayTrips.Inc()
	}
}

func (m *Metrics) incRepliesUnrecognized() {
	if m != nil {
		m.RepliesUnrecognized.Inc()
	}
}

func (m *Metrics) incInvalidTransitions() {
	if m != nil {
		m.InvalidTransitions.Inc()
	}
}
