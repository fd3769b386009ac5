// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/BaSui01/agentswarm/event"
)

// Collector exposes swarm lifecycle metrics. It subscribes to the event bus,
// so services emit metrics without knowing Prometheus exists.
type Collector struct {
	capabilityRegistrations *prometheus.CounterVec
	providerChanges         *prometheus.CounterVec
	advertisements          *prometheus.CounterVec
	inquiries               *prometheus.CounterVec
	recruitmentStages       *prometheus.CounterVec
	contractTransitions     *prometheus.CounterVec
	votingsClosed           *prometheus.CounterVec
	breakdownDecisions      *prometheus.CounterVec
	breakdownScore          prometheus.Histogram

	logger *zap.Logger
}

// NewCollector registers the swarm metric vectors under the given namespace.
func NewCollector(namespace string, registerer prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)

	return &Collector{
		capabilityRegistrations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "capability_registrations_total",
				Help:      "Total number of capability registrations",
			},
			[]string{"new"},
		),
		providerChanges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_changes_total",
				Help:      "Total provider additions and removals",
			},
			[]string{"change"},
		),
		advertisements: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "advertisements_total",
				Help:      "Total advertisement lifecycle events",
			},
			[]string{"event"},
		),
		inquiries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "inquiries_total",
				Help:      "Total inquiry lifecycle events",
			},
			[]string{"event"},
		),
		recruitmentStages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "recruitment_stage_transitions_total",
				Help:      "Total recruitment stage transitions",
			},
			[]string{"stage"},
		),
		contractTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "contract_transitions_total",
				Help:      "Total team contract status transitions",
			},
			[]string{"to"},
		),
		votingsClosed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "votings_closed_total",
				Help:      "Total votings closed, by close reason",
			},
			[]string{"reason"},
		),
		breakdownDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "breakdown_decisions_total",
				Help:      "Total breakdown approval decisions",
			},
			[]string{"decision"},
		),
		breakdownScore: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "breakdown_overall_score",
				Help:      "Overall quality score of approved breakdowns",
				Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
			},
		),
		logger: logger.With(zap.String("component", "metrics")),
	}
}

// Observe attaches the collector to the event bus.
func (c *Collector) Observe(bus *event.Bus) {
	bus.CapabilityRegistered.Subscribe(func(e event.CapabilityEvent) {
		c.capabilityRegistrations.WithLabelValues(boolLabel(e.New)).Inc()
	})
	bus.ProviderAdded.Subscribe(func(e event.CapabilityEvent) {
		c.providerChanges.WithLabelValues("added").Inc()
	})
	bus.ProviderRemoved.Subscribe(func(e event.CapabilityEvent) {
		c.providerChanges.WithLabelValues("removed").Inc()
	})
	bus.AdvertisementCreated.Subscribe(func(e event.AdvertisementEvent) {
		c.advertisements.WithLabelValues("created").Inc()
	})
	bus.AdvertisementUpdated.Subscribe(func(e event.AdvertisementEvent) {
		c.advertisements.WithLabelValues("updated").Inc()
	})
	bus.AdvertisementExpired.Subscribe(func(e event.AdvertisementEvent) {
		c.advertisements.WithLabelValues("expired").Inc()
	})
	bus.InquiryCreated.Subscribe(func(e event.InquiryEvent) {
		c.inquiries.WithLabelValues("created").Inc()
	})
	bus.InquiryExpired.Subscribe(func(e event.InquiryEvent) {
		c.inquiries.WithLabelValues("expired").Inc()
	})
	bus.RecruitmentAdvanced.Subscribe(func(e event.RecruitmentEvent) {
		c.recruitmentStages.WithLabelValues(e.Stage).Inc()
	})
	bus.ContractStatusChanged.Subscribe(func(e event.ContractEvent) {
		c.contractTransitions.WithLabelValues(e.To).Inc()
	})
	bus.VotingClosed.Subscribe(func(e event.VotingEvent) {
		c.votingsClosed.WithLabelValues(e.Reason).Inc()
	})
	bus.BreakdownDecided.Subscribe(func(e event.BreakdownEvent) {
		decision := "rejected"
		if e.Approved {
			decision = "approved"
			c.breakdownScore.Observe(e.OverallScore)
		}
		c.breakdownDecisions.WithLabelValues(decision).Inc()
	})
	c.logger.Debug("metrics collector attached to event bus")
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
