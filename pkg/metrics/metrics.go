// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// LLMRequestsTotal tracks calls made to the model provider.
	LLMRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_requests_total",
			Help: "Total requests sent to the model provider",
		},
		[]string{"operation", "outcome"},
	)

	// PollAttempts tracks how many status checks a poll needed.
	PollAttempts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "poll_attempts",
			Help:    "Status checks issued per poll",
			Buckets: []float64{1, 2, 3, 5, 8, 13, 20, 30, 60},
		},
	)

	// PollOutcomesTotal tracks the terminal result of each poll.
	PollOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poll_outcomes_total",
			Help: "Poll results by terminal status",
		},
		[]string{"status"},
	)

	// ExtractionsTotal tracks recommendation extraction results.
	ExtractionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "extractions_total",
			Help: "Recommendation extractions by outcome",
		},
		[]string{"outcome"},
	)

	// RelayTokensTotal tracks tokens forwarded to chat clients.
	RelayTokensTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_tokens_total",
			Help: "Chat tokens forwarded downstream",
		},
	)

	// ChatStreamDuration tracks chat streaming response duration.
	ChatStreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_stream_duration_seconds",
			Help:    "Chat streaming response duration",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 45, 60, 90, 120},
		},
		[]string{"status"},
	)

	// ChatStreamsActive tracks open chat streams.
	ChatStreamsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_streams_active",
			Help: "Number of active chat streams",
		},
	)

	// EventsPublishedTotal tracks lifecycle events written to NATS.
	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_published_total",
			Help: "Lifecycle events published",
		},
		[]string{"type", "outcome"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordLLMRequest records the outcome of one provider call.
func RecordLLMRequest(operation string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	LLMRequestsTotal.WithLabelValues(operation, outcome).Inc()
}

// RecordPoll records metrics for a finished poll.
func RecordPoll(status string, attempts int) {
	PollAttempts.Observe(float64(attempts))
	PollOutcomesTotal.WithLabelValues(status).Inc()
}

// RecordChatStream records metrics for a finished chat stream.
func RecordChatStream(status string, duration float64, tokens int) {
	ChatStreamDuration.WithLabelValues(status).Observe(duration)
	RelayTokensTotal.Add(float64(tokens))
}

// IncrementChatStreams increments the active chat stream count.
func IncrementChatStreams() {
	ChatStreamsActive.Inc()
}

// DecrementChatStreams decrements the active chat stream count.
func DecrementChatStreams() {
	ChatStreamsActive.Dec()
}
