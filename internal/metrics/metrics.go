package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	UploadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "imgc",
		Name:      "uploads_total",
		Help:      "Uploads by outcome: created, rejected or failed.",
	}, []string{"outcome"})
	UploadFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "imgc",
		Name:      "upload_failures_total",
		Help:      "Failed uploads by pipeline stage.",
	}, []string{"stage"})
	PipelineDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "imgc",
		Name:      "pipeline_duration_seconds",
		Help:      "Wall time of one pipeline execution, both derivatives included.",
		Buckets:   prometheus.DefBuckets,
	})
	FullDerivativeBytes = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "imgc",
		Name:      "full_derivative_bytes",
		Help:      "Encoded size of the stored full-tier derivative.",
		Buckets:   prometheus.ExponentialBuckets(8<<10, 2, 10),
	})
	TokensIssued = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "imgc",
		Name:      "tokens_issued_total",
		Help:      "Download grants issued.",
	})
	DownloadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "imgc",
		Name:      "downloads_total",
		Help:      "Proxied downloads by source: cache or store.",
	}, []string{"source"})
	OrphanCleanups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "imgc",
		Name:      "orphan_cleanups_total",
		Help:      "Janitor outcomes for orphaned derivatives: deleted or dropped.",
	}, []string{"result"})
)

// Init registers collectors; call once from app bootstrap.
func Init() {
	prometheus.MustRegister(
		UploadsTotal,
		UploadFailures,
		PipelineDuration,
		FullDerivativeBytes,
		TokensIssued,
		DownloadsTotal,
		OrphanCleanups,
	)
}

// Handler serves the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
