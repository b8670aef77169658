package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type prometheusObserver struct {
	onlineGauge prometheus.Gauge
	pushCounter prometheus.Counter
	pushLatency prometheus.Histogram
}

var (
	onlineGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tiergate_online_clients",
		Help: "Number of connected stream clients",
	})
	pushCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tiergate_push_total",
		Help: "Total number of gate change pushes",
	})
	pushLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tiergate_push_latency_seconds",
		Help:    "Latency from mutation commit to stream push",
		Buckets: prometheus.DefBuckets,
	})
	// EvalCounter tracks resolved gate decisions by outcome.
	EvalCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tiergate_evaluations_total",
		Help: "Total number of gate evaluations",
	}, []string{"outcome"})
)

func NewPrometheusObserver() HubObserver {
	return &prometheusObserver{
		onlineGauge: onlineGauge,
		pushCounter: pushCounter,
		pushLatency: pushLatency,
	}
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func (p *prometheusObserver) IncOnline() {
	p.onlineGauge.Inc()
}

func (p *prometheusObserver) DecOnline() {
	p.onlineGauge.Dec()
}

func (p *prometheusObserver) RecordPush() {
	p.pushCounter.Inc()
}

func (p *prometheusObserver) ObservePushLatency(duration float64) {
	p.pushLatency.Observe(duration)
}
