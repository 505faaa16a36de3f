package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	OnlineConns = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_online_conns",
		Help: "Current bound websocket connections.",
	})

	HandshakeRejects = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_handshake_rejects_total",
		Help: "Connections accepted then closed during authentication, by close code.",
	}, []string{"code"})

	InboundFrames = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_inbound_frames_total",
		Help: "Inbound websocket frames by type and outcome.",
	}, []string{"type", "result"})

	PublishedEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_published_events_total",
		Help: "Events queued for fan-out, by event type.",
	}, []string{"type"})

	ShardQueueFull = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_shard_queue_full_total",
		Help: "Events dropped because the push shard queue was full.",
	})

	DeliveryDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_delivery_dropped_total",
		Help: "Per-subscriber deliveries dropped (write queue full or connection closed).",
	})

	NotifyJobs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_notify_jobs_total",
		Help: "Offline notification jobs by outcome.",
	}, []string{"result"})
)

var registerOnce sync.Once

// Register adds all collectors to the default registry. Safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			OnlineConns, HandshakeRejects,
			InboundFrames, PublishedEvents,
			ShardQueueFull, DeliveryDropped,
			NotifyJobs,
		)
	})
}
