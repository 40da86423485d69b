package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session metrics
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "speech_gateway_active_sessions",
		Help: "Number of active avatar sessions",
	})

	totalSessions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "speech_gateway_sessions_total",
		Help: "Total number of avatar sessions",
	})

	turnsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "speech_gateway_turns_total",
		Help: "Total number of conversation turns started",
	})

	// Synthesis metrics
	synthesisRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "speech_gateway_synthesis_requests_total",
		Help: "Total number of synthesis requests per engine",
	}, []string{"engine", "status"})

	synthesisLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "speech_gateway_synthesis_latency_seconds",
		Help:    "Synthesis latency per engine in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
	}, []string{"engine"})

	utteranceFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "speech_gateway_utterance_failures_total",
		Help: "Utterances dropped because every engine failed",
	})

	// Segmentation metrics
	chunksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "speech_gateway_chunks_total",
		Help: "Total number of text chunks emitted by the segmenter",
	})

	// Delivery metrics
	framesDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "speech_gateway_frames_delivered_total",
		Help: "Audio frames delivered to the rendering consumer",
	})

	framesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "speech_gateway_frames_dropped_total",
		Help: "Audio frames dropped because the delivery buffer was full",
	})

	audioBytesOut = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "speech_gateway_audio_bytes_total",
		Help: "Total audio bytes delivered, by wire encoding",
	}, []string{"encoding"})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "speech_gateway_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})
)

// RecordSessionStart records a new avatar session.
func RecordSessionStart() {
	activeSessions.Inc()
	totalSessions.Inc()
}

// RecordSessionEnd records a closed avatar session.
func RecordSessionEnd() {
	activeSessions.Dec()
}

// RecordTurn records the start of a conversation turn.
func RecordTurn() {
	turnsTotal.Inc()
}

// RecordSynthesis records one engine attempt with its outcome.
func RecordSynthesis(engine string, success bool, latency time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	synthesisRequests.WithLabelValues(engine, status).Inc()
	synthesisLatency.WithLabelValues(engine).Observe(latency.Seconds())
}

// RecordUtteranceFailure records an utterance dropped after both
// engines failed.
func RecordUtteranceFailure() {
	utteranceFailures.Inc()
}

// RecordChunk records a chunk emitted by the segmenter.
func RecordChunk() {
	chunksTotal.Inc()
}

// RecordFrameDelivered records one frame handed to the consumer.
func RecordFrameDelivered() {
	framesDelivered.Inc()
}

// RecordFrameDropped records one frame dropped on a full buffer.
func RecordFrameDropped() {
	framesDropped.Inc()
}

// RecordAudioBytes records delivered audio payload bytes.
func RecordAudioBytes(encoding string, n int) {
	audioBytesOut.WithLabelValues(encoding).Add(float64(n))
}

// RecordError records an error by type and component.
func RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}
