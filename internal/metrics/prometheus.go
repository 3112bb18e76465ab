package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the ingestion core.
type Metrics struct {
	// Frame metrics
	FramesReceived  prometheus.Counter
	FramesSent      prometheus.Counter
	MalformedFrames prometheus.Counter

	// Connection metrics
	ActiveConnections prometheus.Gauge

	// Session metrics
	ActiveSessions  prometheus.Gauge
	SessionsOpened  prometheus.Counter
	SessionsDone    prometheus.Counter
	SessionsExpired prometheus.Counter
	SessionsAborted prometheus.Counter
	SessionDuration prometheus.Histogram

	// Arbiter metrics
	UtterancesEnqueued   prometheus.Counter
	UtterancesSuperseded prometheus.Counter
	UtterancesDropped    prometheus.Counter
	QueueDepth           prometheus.Gauge

	// Pipeline metrics
	TranscriptionDuration prometheus.Histogram
	TranscriptionFailures prometheus.Counter
	ReasoningDuration     prometheus.Histogram
	ReasoningFailures     prometheus.Counter
	SynthesisDuration     prometheus.Histogram
	SynthesisFailures     prometheus.Counter
	CycleLatency          prometheus.Histogram
	EmptyTranscripts      prometheus.Counter

	// Dispatch metrics
	ResponsesDispatched prometheus.Counter
	ResponsesDropped    prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		FramesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "exo_frames_received_total",
			Help: "Total number of protocol frames received from satellites",
		}),
		FramesSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "exo_frames_sent_total",
			Help: "Total number of protocol frames written to satellites",
		}),
		MalformedFrames: promauto.NewCounter(prometheus.CounterOpts{
			Name: "exo_malformed_frames_total",
			Help: "Total number of frames rejected by the codec or sequencing rules",
		}),

		ActiveConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "exo_active_connections",
			Help: "Current number of connected satellites",
		}),

		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "exo_active_sessions",
			Help: "Current number of accumulating capture sessions",
		}),
		SessionsOpened: promauto.NewCounter(prometheus.CounterOpts{
			Name: "exo_sessions_opened_total",
			Help: "Total number of capture sessions opened",
		}),
		SessionsDone: promauto.NewCounter(prometheus.CounterOpts{
			Name: "exo_sessions_completed_total",
			Help: "Total number of sessions completed into an utterance",
		}),
		SessionsExpired: promauto.NewCounter(prometheus.CounterOpts{
			Name: "exo_sessions_expired_total",
			Help: "Total number of sessions force-terminated by the idle sweep",
		}),
		SessionsAborted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "exo_sessions_aborted_total",
			Help: "Total number of sessions abandoned on transport or protocol errors",
		}),
		SessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "exo_session_duration_seconds",
			Help:    "Wall-clock duration of capture sessions",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10), // 250ms to ~2 minutes
		}),

		UtterancesEnqueued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "exo_utterances_enqueued_total",
			Help: "Total number of utterances submitted to the arbiter",
		}),
		UtterancesSuperseded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "exo_utterances_superseded_total",
			Help: "Total number of queued utterances replaced by a newer one from the same room",
		}),
		UtterancesDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "exo_utterances_dropped_total",
			Help: "Total number of utterances dropped because the queue was full",
		}),
		QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "exo_utterance_queue_depth",
			Help: "Current number of utterances waiting for processing",
		}),

		TranscriptionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "exo_transcription_duration_seconds",
			Help:    "Duration of transcription collaborator calls",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~51s
		}),
		TranscriptionFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "exo_transcription_failures_total",
			Help: "Total number of failed transcription collaborator calls",
		}),
		ReasoningDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "exo_reasoning_duration_seconds",
			Help:    "Duration of reasoning collaborator calls",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		ReasoningFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "exo_reasoning_failures_total",
			Help: "Total number of failed reasoning collaborator calls",
		}),
		SynthesisDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "exo_synthesis_duration_seconds",
			Help:    "Duration of synthesis collaborator calls",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		SynthesisFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "exo_synthesis_failures_total",
			Help: "Total number of failed synthesis collaborator calls",
		}),
		CycleLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "exo_cycle_latency_seconds",
			Help:    "End-to-end latency from utterance receipt to response dispatch",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~2 minutes
		}),
		EmptyTranscripts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "exo_empty_transcripts_total",
			Help: "Total number of cycles dropped silently on empty or low-confidence transcripts",
		}),

		ResponsesDispatched: promauto.NewCounter(prometheus.CounterOpts{
			Name: "exo_responses_dispatched_total",
			Help: "Total number of response-audio frames delivered to satellites",
		}),
		ResponsesDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "exo_responses_dropped_total",
			Help: "Total number of responses dropped because the room was not connected",
		}),

		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "exo_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "exo_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "exo_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error.
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	if m == nil {
		return
	}
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
