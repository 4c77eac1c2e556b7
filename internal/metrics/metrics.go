// Package metrics declares the domain Prometheus collectors. HTTP request
// metrics live in the middleware package.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LiveSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sparklink_live_subscribers",
			Help: "Number of open live message streams on this instance",
		},
	)

	// result: delivered, offline, dropped
	LivePushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sparklink_live_pushes_total",
			Help: "Live message pushes by outcome",
		},
		[]string{"result"},
	)

	// result: ok, retry, failed
	JobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sparklink_jobs_processed_total",
			Help: "Background job executions by job name and outcome",
		},
		[]string{"name", "result"},
	)

	// result: ok, rejected, error
	MediaUploads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sparklink_media_uploads_total",
			Help: "Media uploads by upload context and outcome",
		},
		[]string{"context", "result"},
	)
)
