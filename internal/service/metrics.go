package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	registry *prometheus.Registry
	runs     *prometheus.CounterVec
	duration prometheus.Histogram
	busy     prometheus.Counter
	inFlight prometheus.Gauge
}

func newMetrics() *metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)
	return &metrics{
		registry: reg,
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rendercheck",
			Name:      "runs_total",
			Help:      "Verification runs by outcome kind (OK for success).",
		}, []string{"kind"}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "rendercheck",
			Name:      "run_duration_seconds",
			Help:      "Wall time of verification runs, launch to release.",
			Buckets:   []float64{0.5, 1, 2, 3, 5, 8, 13, 21, 34, 55},
		}),
		busy: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "rendercheck",
			Name:      "busy_rejections_total",
			Help:      "Verification requests rejected because a run was in flight.",
		}),
		inFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "rendercheck",
			Name:      "runs_in_flight",
			Help:      "1 while a verification run holds the browser.",
		}),
	}
}
