package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce          sync.Once
	httpRequestsTotal     *prometheus.CounterVec
	httpLatencySeconds    *prometheus.HistogramVec
	chatMessagesTotal     *prometheus.CounterVec
	chatEventsPublished   *prometheus.CounterVec
	chatListenerPanics    prometheus.Counter
	chatListenersActive   prometheus.Gauge
	chatDeliveryRetries   prometheus.Counter
	chatStatusTransitions *prometheus.CounterVec
	relayEventsTotal      *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the chat core and its HTTP harness.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_http_requests_total",
			Help: "Total number of chat API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chat_http_latency_seconds",
			Help:    "Latency distribution for chat API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		chatMessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_messages_total",
			Help: "Messages appended to conversations, by origin.",
		}, []string{"origin"})

		chatEventsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_events_published_total",
			Help: "Events published on the chat event bus, by type.",
		}, []string{"type"})

		chatListenerPanics = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chat_listener_panics_total",
			Help: "Listener callbacks that panicked while handling an event.",
		})

		chatListenersActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chat_listeners_active",
			Help: "Listeners currently subscribed to the chat event bus.",
		})

		chatDeliveryRetries = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chat_delivery_retries_total",
			Help: "Retries performed after transient delivery failures.",
		})

		chatStatusTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_status_transitions_total",
			Help: "Message status transitions applied by the lifecycle engine.",
		}, []string{"status"})

		relayEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_relay_events_total",
			Help: "Events exchanged with the broker relay.",
		}, []string{"broker", "direction"})

		prometheus.MustRegister(
			httpRequestsTotal,
			httpLatencySeconds,
			chatMessagesTotal,
			chatEventsPublished,
			chatListenerPanics,
			chatListenersActive,
			chatDeliveryRetries,
			chatStatusTransitions,
			relayEventsTotal,
		)
	})
}

// HTTPRequests exposes the counter for chat API requests.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the latency histogram for chat API requests.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// ChatMessages counts appended messages labelled by origin (local, simulated, relay).
func ChatMessages() *prometheus.CounterVec {
	RegisterMetrics()
	return chatMessagesTotal
}

// EventsPublished counts bus publications by event type.
func EventsPublished() *prometheus.CounterVec {
	RegisterMetrics()
	return chatEventsPublished
}

// ListenerPanics counts recovered listener panics.
func ListenerPanics() prometheus.Counter {
	RegisterMetrics()
	return chatListenerPanics
}

// ListenersActive tracks subscribed listeners.
func ListenersActive() prometheus.Gauge {
	RegisterMetrics()
	return chatListenersActive
}

// DeliveryRetries counts send retries.
func DeliveryRetries() prometheus.Counter {
	RegisterMetrics()
	return chatDeliveryRetries
}

// StatusTransitions counts lifecycle transitions by target status.
func StatusTransitions() *prometheus.CounterVec {
	RegisterMetrics()
	return chatStatusTransitions
}

// RelayEvents counts broker traffic by broker and direction.
func RelayEvents() *prometheus.CounterVec {
	RegisterMetrics()
	return relayEventsTotal
}
