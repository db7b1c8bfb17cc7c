// Package metrics exposes round coordination metrics to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "mpc"
	subsystem = "round"

	outcomeRejected = "rejected"
)

// Service 轮次指标
type Service struct {
	gatherer prometheus.Gatherer

	started   *prometheus.CounterVec
	completed *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	inFlight  *prometheus.GaugeVec
	messages  *prometheus.CounterVec
	discarded *prometheus.CounterVec
}

// New registers the round metrics on reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Service {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	return &Service{
		gatherer: gatherer,
		started: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "rounds_started_total",
			Help:      "Rounds admitted to the ledger, including those whose start message never reached the bus",
		}, []string{"kind"}),
		completed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "rounds_completed_total",
			Help:      "Rounds that produced an outcome, by outcome type",
		}, []string{"kind", "outcome"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "round_duration_seconds",
			Help:      "Time from round creation to terminal outcome",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 16),
		}, []string{"kind", "outcome"}),
		inFlight: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "rounds_in_flight",
			Help:      "Admitted rounds that have not reached a terminal outcome",
		}, []string{"kind"}),
		messages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "participant_messages_total",
			Help:      "Participant reports accepted into a round",
		}, []string{"kind", "result_type"}),
		discarded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "discarded_messages_total",
			Help:      "Participant messages dropped without touching any round",
		}, []string{"kind", "reason"}),
	}
}

// Handler serves the metrics gathered from the registry passed to New.
func (s *Service) Handler() http.Handler {
	if s == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})
}

// RoundStarted 记录轮次开始
func (s *Service) RoundStarted(kind string) {
	if s == nil {
		return
	}
	s.started.WithLabelValues(kind).Inc()
	s.inFlight.WithLabelValues(kind).Inc()
}

// RoundFinished 记录轮次结束及耗时
func (s *Service) RoundFinished(kind string, outcome string, duration time.Duration) {
	if s == nil {
		return
	}
	s.completed.WithLabelValues(kind, outcome).Inc()
	s.duration.WithLabelValues(kind, outcome).Observe(duration.Seconds())
	// rejected rounds were never started
	if outcome != outcomeRejected {
		s.inFlight.WithLabelValues(kind).Dec()
	}
}

// ResultReceived 记录收到的参与方结果
func (s *Service) ResultReceived(kind string, resultType string) {
	if s == nil {
		return
	}
	s.messages.WithLabelValues(kind, resultType).Inc()
}

// MessageDiscarded 记录被丢弃的消息
func (s *Service) MessageDiscarded(kind string, reason string) {
	if s == nil {
		return
	}
	s.discarded.WithLabelValues(kind, reason).Inc()
}
