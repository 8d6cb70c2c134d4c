package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	GateOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "geoattend",
		Name:      "gate_outcomes_total",
		Help:      "Attendance attempts by event type and outcome (committed or rejection kind)",
	}, []string{"type", "outcome"})

	GateDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "geoattend",
		Name:      "gate_stage_duration_seconds",
		Help:      "Duration of attendance gate stages",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
	}, []string{"stage"})

	FaceDistance = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "geoattend",
		Name:      "face_distance",
		Help:      "Descriptor distance of identity checks that reached comparison",
		Buckets:   []float64{0.05, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.8, 1.0},
	})

	ClockReadings = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "geoattend",
		Name:      "clock_readings_total",
		Help:      "Clock readings by the source that answered",
	}, []string{"source"})

	ClockFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "geoattend",
		Name:      "clock_fallbacks_total",
		Help:      "Readings taken from the untrusted local clock after every source failed",
	})

	ClockSkewEvents = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "geoattend",
		Name:      "clock_skew_events_total",
		Help:      "Readings where local time drifted beyond the allowed skew",
	})

	EnrollmentJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "geoattend",
		Name:      "enrollment_jobs_total",
		Help:      "Face enrollment jobs processed by result",
	}, []string{"result"})

	QueuePublishFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "geoattend",
		Name:      "queue_publish_failures_total",
		Help:      "Messages that could not be published",
	}, []string{"type"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "geoattend",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "geoattend",
		Name:      "ws_connections",
		Help:      "Number of active live-feed WebSocket connections",
	})
)
