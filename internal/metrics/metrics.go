// Package metrics provides the Prometheus collectors exported by the server.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "bpmn_voice"

// Metrics holds every collector used by the voice session and storage layers
type Metrics struct {
	toolCallsTotal      *prometheus.CounterVec
	toolCallDuration    *prometheus.HistogramVec
	audioFramesTotal    *prometheus.CounterVec
	connectionStates    *prometheus.CounterVec
	persistFailures     prometheus.Counter
	turnsCompletedTotal prometheus.Counter
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		toolCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tool_calls_total",
				Help:      "Total number of tool calls executed against the diagram",
			},
			[]string{"tool", "status"}, // status: success, error
		),
		toolCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "tool_call_duration_seconds",
				Help:      "Duration of tool calls in seconds",
				Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25},
			},
			[]string{"tool"},
		),
		audioFramesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "audio_frames_total",
				Help:      "Total number of audio frames by direction",
			},
			[]string{"direction"}, // direction: sent, dropped, received
		),
		connectionStates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "connection_state_transitions_total",
				Help:      "Total number of live session state transitions by target state",
			},
			[]string{"state"},
		),
		persistFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "persist_failures_total",
				Help:      "Total number of session set writes that failed",
			},
		),
		turnsCompletedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "turns_completed_total",
				Help:      "Total number of completed conversation turns",
			},
		),
	}

	reg.MustRegister(
		m.toolCallsTotal,
		m.toolCallDuration,
		m.audioFramesTotal,
		m.connectionStates,
		m.persistFailures,
		m.turnsCompletedTotal,
	)
	return m
}

// NewNop creates collectors registered with a private registry
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}

// RecordToolCall records one dispatched tool call
func (m *Metrics) RecordToolCall(tool string, success bool, took time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	m.toolCallsTotal.WithLabelValues(tool, status).Inc()
	m.toolCallDuration.WithLabelValues(tool).Observe(took.Seconds())
}

// AudioFrameSent counts an outbound microphone frame
func (m *Metrics) AudioFrameSent() {
	m.audioFramesTotal.WithLabelValues("sent").Inc()
}

// AudioFrameDropped counts a microphone frame dropped because the outbound slot was busy
func (m *Metrics) AudioFrameDropped() {
	m.audioFramesTotal.WithLabelValues("dropped").Inc()
}

// AudioFrameReceived counts an inbound model audio frame
func (m *Metrics) AudioFrameReceived() {
	m.audioFramesTotal.WithLabelValues("received").Inc()
}

// ConnectionState counts a transition into state
func (m *Metrics) ConnectionState(state string) {
	m.connectionStates.WithLabelValues(state).Inc()
}

// PersistFailed counts a failed session set write
func (m *Metrics) PersistFailed() {
	m.persistFailures.Inc()
}

// TurnCompleted counts a finished conversation turn
func (m *Metrics) TurnCompleted() {
	m.turnsCompletedTotal.Inc()
}
