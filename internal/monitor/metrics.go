package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the grading system.
type Metrics struct {
	Registry *prometheus.Registry

	GradingsTotal    *prometheus.CounterVec
	GradingDuration  *prometheus.HistogramVec
	ActiveGradings   prometheus.Gauge
	SandboxExecs     *prometheus.CounterVec
	SandboxExecTime  *prometheus.HistogramVec
	PoolContainers   prometheus.GaugeFunc
	AttemptsTotal    *prometheus.CounterVec
	ParsedTestCases  prometheus.Histogram
	SubmissionSaves  *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics using a dedicated
// registry. poolSize reports the number of running sandbox containers.
func NewMetrics(poolSize func() float64) *Metrics {
	reg := prometheus.NewRegistry()
	if poolSize == nil {
		poolSize = func() float64 { return 0 }
	}

	m := &Metrics{
		Registry: reg,

		GradingsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "grader",
				Name:      "gradings_total",
				Help:      "Total number of grading runs by build tool and outcome.",
			},
			[]string{"tool", "status"},
		),
		GradingDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "grader",
				Name:      "grading_duration_seconds",
				Help:      "End-to-end grading run duration.",
				Buckets:   []float64{1, 5, 10, 30, 60, 120, 180, 300},
			},
			[]string{"tool"},
		),
		ActiveGradings: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "grader",
				Name:      "active_gradings",
				Help:      "Grading runs currently in flight.",
			},
		),
		SandboxExecs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "grader",
				Name:      "sandbox_execs_total",
				Help:      "Sandbox command executions by build tool and termination.",
			},
			[]string{"tool", "termination"},
		),
		SandboxExecTime: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "grader",
				Name:      "sandbox_exec_duration_seconds",
				Help:      "Wall-clock duration of sandbox test commands.",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 180},
			},
			[]string{"tool"},
		),
		PoolContainers: prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: "grader",
				Name:      "pool_containers",
				Help:      "Sandbox containers currently registered as running.",
			},
			poolSize,
		),
		AttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "grader",
				Name:      "attempts_total",
				Help:      "Timed-assessment operations by kind and outcome.",
			},
			[]string{"op", "outcome"},
		),
		ParsedTestCases: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "grader",
				Name:      "parsed_test_cases",
				Help:      "Test cases parsed per grading run.",
				Buckets:   []float64{0, 1, 5, 10, 25, 50, 100},
			},
		),
		SubmissionSaves: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "grader",
				Name:      "submission_saves_total",
				Help:      "Submission persistence attempts by result.",
			},
			[]string{"result"},
		),
	}

	reg.MustRegister(
		m.GradingsTotal,
		m.GradingDuration,
		m.ActiveGradings,
		m.SandboxExecs,
		m.SandboxExecTime,
		m.PoolContainers,
		m.AttemptsTotal,
		m.ParsedTestCases,
		m.SubmissionSaves,
	)

	return m
}
