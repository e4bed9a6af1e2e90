package server

import (
	"time"

	"github.com/MeKo-Tech/coincount/internal/pipeline"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "coincount"

// Count sources used as label values.
const (
	sourceURL       = "url"
	sourceUpload    = "upload"
	sourceBatch     = "batch"
	sourceWebSocket = "websocket"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by method, path and status code.",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "endpoint"})

	countRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "count_requests_total",
		Help:      "Counting requests by source and outcome.",
	}, []string{"source", "status"})

	countProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "processing_duration_seconds",
		Help:      "Wall time of one counting request, decode to annotated image.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 11),
	}, []string{"source"})

	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "stage_duration_seconds",
		Help:      "Time spent in each counting stage.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	}, []string{"stage"})

	objectsCounted = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "objects_per_image",
		Help:      "Objects accepted per image.",
		Buckets:   []float64{0, 1, 2, 5, 10, 20, 50, 100},
	}, []string{"source"})

	regionsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "regions_rejected_total",
		Help:      "Traced regions that did not become objects, by reason.",
	}, []string{"reason"})

	rateLimitHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "rate_limit_hits_total",
		Help:      "Requests refused by the limiter, by limit type.",
	}, []string{"type"})

	uploadSizeBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "upload_size_bytes",
		Help:      "Size of uploaded images.",
		Buckets:   prometheus.ExponentialBuckets(16*1024, 4, 7),
	})

	websocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: "websocket",
		Name:      "active_connections",
		Help:      "Open websocket connections.",
	})

	websocketMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "websocket",
		Name:      "messages_total",
		Help:      "Websocket messages by direction (sent, received).",
	}, []string{"direction"})
)

// observeCount records a successful count together with its stage timings
// and the reasons regions were dropped.
func observeCount(source string, res *pipeline.CountResult, d time.Duration) {
	countRequestsTotal.WithLabelValues(source, "success").Inc()
	countProcessingDuration.WithLabelValues(source).Observe(d.Seconds())
	objectsCounted.WithLabelValues(source).Observe(float64(res.ObjectCount))

	p := res.Processing
	for stage, ns := range map[string]int64{
		"decode":       p.DecodeNs,
		"segmentation": p.SegmentationNs,
		"contours":     p.ContoursNs,
		"classify":     p.ClassifyNs,
		"annotate":     p.AnnotateNs,
	} {
		if ns > 0 {
			stageDuration.WithLabelValues(stage).Observe(time.Duration(ns).Seconds())
		}
	}

	st := res.Stats
	for reason, n := range map[string]int{
		"too_small":           st.TooSmall,
		"too_large":           st.TooLarge,
		"insufficient_points": st.InsufficientPoints,
		"degenerate":          st.Degenerate,
	} {
		if n > 0 {
			regionsRejected.WithLabelValues(reason).Add(float64(n))
		}
	}
}

// observeFailure records a counting request that ended in an error.
func observeFailure(source string) {
	countRequestsTotal.WithLabelValues(source, "error").Inc()
}
