package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	metricsRegistry = prometheus.NewRegistry()

	httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "roomie_http_requests_total",
		Help: "HTTP requests by route, method and status.",
	}, []string{"route", "method", "status"})

	httpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "roomie_http_request_duration_seconds",
		Help:    "HTTP request latency by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method"})

	messagesSentTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "roomie_messages_sent_total",
		Help: "Messages persisted.",
	})

	interestTogglesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "roomie_interest_toggles_total",
		Help: "Interest toggles by resulting action.",
	}, []string{"action"})

	wsClientsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "roomie_ws_clients_active",
		Help: "Open websocket connections.",
	})
)

func init() {
	metricsRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		httpRequestsTotal,
		httpRequestDuration,
		messagesSentTotal,
		interestTogglesTotal,
		wsClientsActive,
	)
}
