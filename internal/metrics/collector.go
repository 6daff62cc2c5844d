// Package metrics exposes Prometheus counters and histograms for the
// assistant. A nil *Collector is valid and records nothing.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Action outcomes.
const (
	OutcomeSuccess  = "success"
	OutcomeNotFound = "not_found"
	OutcomeUnknown  = "unknown"
	OutcomeError    = "error"
)

type Collector struct {
	turnsTotal       *prometheus.CounterVec
	turnDuration     *prometheus.HistogramVec
	lifeEventsTotal  *prometheus.CounterVec
	proactiveTotal   *prometheus.CounterVec
	actionsTotal     *prometheus.CounterVec
	processingErrors *prometheus.CounterVec
	requestsTotal    *prometheus.CounterVec
}

// NewCollector registers the assistant metrics with reg. A nil reg creates
// unregistered metrics, which is convenient in tests.
func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		turnsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "turns_total",
				Help:      "Dialogue turns processed, by intent and response type",
			},
			[]string{"intent", "type"},
		),
		turnDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "turn_duration_seconds",
				Help:      "Time to process one dialogue turn",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"type"},
		),
		lifeEventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "life_events_total",
				Help:      "Life events detected or reported",
			},
			[]string{"event"},
		),
		proactiveTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "proactive_suggestions_total",
				Help:      "Proactive suggestions emitted, by rule",
			},
			[]string{"rule"},
		),
		actionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "actions_total",
				Help:      "Dispatched actions, by name and outcome",
			},
			[]string{"action", "outcome"},
		),
		processingErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "processing_errors_total",
				Help:      "Turns that failed and were answered with an apology",
			},
			[]string{"stage"},
		),
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Transport requests, by route and status",
			},
			[]string{"route", "status"},
		),
	}
}

func (c *Collector) ObserveTurn(intent, responseType string, d time.Duration) {
	if c == nil {
		return
	}
	if intent == "" {
		intent = "none"
	}
	c.turnsTotal.WithLabelValues(intent, responseType).Inc()
	c.turnDuration.WithLabelValues(responseType).Observe(d.Seconds())
}

func (c *Collector) LifeEvent(event string) {
	if c == nil || event == "" {
		return
	}
	c.lifeEventsTotal.WithLabelValues(event).Inc()
}

func (c *Collector) ProactiveSuggestion(rule string) {
	if c == nil {
		return
	}
	c.proactiveTotal.WithLabelValues(rule).Inc()
}

func (c *Collector) Action(action, outcome string) {
	if c == nil {
		return
	}
	c.actionsTotal.WithLabelValues(action, outcome).Inc()
}

func (c *Collector) ProcessingError(stage string) {
	if c == nil {
		return
	}
	c.processingErrors.WithLabelValues(stage).Inc()
}

func (c *Collector) Request(route string, status int) {
	if c == nil {
		return
	}
	c.requestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
}
