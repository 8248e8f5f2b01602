package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"jobreg/pkg/logx"
)

// PrometheusSink implements Sink with Prometheus collectors.
type PrometheusSink struct {
	log logx.Logger

	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec

	firesTotal   *prometheus.CounterVec
	fireDuration prometheus.Histogram
	skipsTotal   *prometheus.CounterVec

	triggers prometheus.Gauge
}

// NewPrometheusSink registers all collectors with reg.
// Registration failures are logged and otherwise ignored.
func NewPrometheusSink(reg prometheus.Registerer, log logx.Logger) *PrometheusSink {
	s := &PrometheusSink{log: log}

	s.operationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "jobreg_registry_operations_total",
		Help: "Total number of registry operations by operation and outcome.",
	}, []string{"op", "outcome"})
	s.operationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "jobreg_registry_operation_duration_seconds",
		Help:    "Duration of registry operations in seconds, including engine calls.",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"op"})

	s.firesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "jobreg_engine_fires_total",
		Help: "Total number of job executions started by triggers, by outcome.",
	}, []string{"outcome"})
	s.fireDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "jobreg_engine_fire_duration_seconds",
		Help:    "Job execution duration in seconds.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
	})
	s.skipsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "jobreg_engine_fire_skips_total",
		Help: "Total number of trigger fires that did not run a job, by reason.",
	}, []string{"reason"})

	s.triggers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "jobreg_engine_triggers",
		Help: "Number of triggers currently known to the engine.",
	})

	s.register(reg, s.operationsTotal, "jobreg_registry_operations_total")
	s.register(reg, s.operationDuration, "jobreg_registry_operation_duration_seconds")
	s.register(reg, s.firesTotal, "jobreg_engine_fires_total")
	s.register(reg, s.fireDuration, "jobreg_engine_fire_duration_seconds")
	s.register(reg, s.skipsTotal, "jobreg_engine_fire_skips_total")
	s.register(reg, s.triggers, "jobreg_engine_triggers")
	return s
}

func (s *PrometheusSink) register(reg prometheus.Registerer, c prometheus.Collector, name string) {
	if err := reg.Register(c); err != nil {
		s.log.Warn("metrics: register collector failed", logx.String("collector", name), logx.Err(err))
	}
}

func (s *PrometheusSink) OperationCompleted(op, outcome string, d time.Duration) {
	s.operationsTotal.WithLabelValues(op, outcome).Inc()
	s.operationDuration.WithLabelValues(op).Observe(d.Seconds())
}

func (s *PrometheusSink) TriggerFired(outcome string, d time.Duration) {
	s.firesTotal.WithLabelValues(outcome).Inc()
	s.fireDuration.Observe(d.Seconds())
}

func (s *PrometheusSink) FireSkipped(reason string) {
	s.skipsTotal.WithLabelValues(reason).Inc()
}

func (s *PrometheusSink) TriggersScheduled(n int) {
	s.triggers.Set(float64(n))
}
