package runtime

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type procedureMetrics struct {
	callsTotal      *prometheus.CounterVec
	callDuration    *prometheus.HistogramVec
	inFlight        *prometheus.GaugeVec
	eventsPublished *prometheus.CounterVec
}

func newProcedureMetrics(registerer prometheus.Registerer) (*procedureMetrics, error) {
	m := &procedureMetrics{
		callsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crudflow",
			Subsystem: "rpc",
			Name:      "calls_total",
			Help:      "Procedure calls by outcome category.",
		}, []string{"procedure", "transport", "outcome"}),
		callDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "crudflow",
			Subsystem: "rpc",
			Name:      "call_duration_seconds",
			Help:      "Procedure call latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"procedure"}),
		inFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "crudflow",
			Subsystem: "rpc",
			Name:      "calls_in_flight",
			Help:      "Procedure calls currently executing.",
		}, []string{"procedure"}),
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crudflow",
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Change events published by topic and outcome.",
		}, []string{"topic", "outcome"}),
	}

	var err error
	if m.callsTotal, err = register(registerer, m.callsTotal); err != nil {
		return nil, err
	}
	if m.callDuration, err = register(registerer, m.callDuration); err != nil {
		return nil, err
	}
	if m.inFlight, err = register(registerer, m.inFlight); err != nil {
		return nil, err
	}
	if m.eventsPublished, err = register(registerer, m.eventsPublished); err != nil {
		return nil, err
	}
	return m, nil
}

// register returns the already registered collector when an identical one
// exists, so several services can share a registry.
func register[C prometheus.Collector](registerer prometheus.Registerer, c C) (C, error) {
	if err := registerer.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (m *procedureMetrics) callStarted(procedure string) {
	if m == nil {
		return
	}
	m.inFlight.WithLabelValues(procedure).Inc()
}

func (m *procedureMetrics) callFinished(procedure, transport string, category ErrorCategory, duration time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if category != ErrorCategoryNone {
		outcome = string(category)
	}
	m.inFlight.WithLabelValues(procedure).Dec()
	m.callsTotal.WithLabelValues(procedure, transport, outcome).Inc()
	m.callDuration.WithLabelValues(procedure).Observe(duration.Seconds())
}

func (m *procedureMetrics) eventPublished(topic string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.eventsPublished.WithLabelValues(topic, outcome).Inc()
}

func (s *Service) registerMetricsEndpoint() {
	if !s.Conf.MetricsEnabled || s.Conf.MetricsPort <= 0 {
		return
	}
	s.RegisterHTTPHandler(s.Conf.MetricsPort, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
}
