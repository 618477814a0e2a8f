package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "collab"

// Collectors 网关的全部指标；nil 接收者上的方法都是空操作，测试可以不传
type Collectors struct {
	Registry *prometheus.Registry

	Connections       prometheus.Gauge
	Rooms             prometheus.Gauge
	EventsPublished   *prometheus.CounterVec // type, origin
	DeliveriesFailed  prometheus.Counter
	TypingSuppressed  prometheus.Counter
	FanoutRelayed     prometheus.Counter
	FanoutDuplicates  prometheus.Counter
	JoinsDenied       *prometheus.CounterVec // reason
	HandshakeRejected prometheus.Counter
	HandlerPanics     prometheus.Counter
}

func New() *Collectors {
	c := &Collectors{
		Registry: prometheus.NewRegistry(),
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "connections",
			Help: "Live socket connections on this instance.",
		}),
		Rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "rooms",
			Help: "Rooms with at least one local subscriber.",
		}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "events_published_total",
			Help: "Events delivered to local room subscribers.",
		}, []string{"type", "origin"}),
		DeliveriesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "deliveries_failed_total",
			Help: "Per-subscriber delivery failures.",
		}),
		TypingSuppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "typing_suppressed_total",
			Help: "typing:start signals dropped by the cooldown.",
		}),
		FanoutRelayed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "fanout_relayed_total",
			Help: "Events received from other instances and replayed locally.",
		}),
		FanoutDuplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "fanout_duplicates_total",
			Help: "Backbone messages dropped as own echo or duplicate.",
		}),
		JoinsDenied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "joins_denied_total",
			Help: "Room joins refused by authorization.",
		}, []string{"reason"}),
		HandshakeRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "handshake_rejected_total",
			Help: "Socket handshakes refused as unauthenticated.",
		}),
		HandlerPanics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "handler_panics_total",
			Help: "Panics recovered inside event handlers.",
		}),
	}
	c.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.Connections, c.Rooms, c.EventsPublished, c.DeliveriesFailed, c.TypingSuppressed,
		c.FanoutRelayed, c.FanoutDuplicates, c.JoinsDenied, c.HandshakeRejected, c.HandlerPanics,
	)
	return c
}

func (c *Collectors) ConnOpened() {
	if c != nil {
		c.Connections.Inc()
	}
}

func (c *Collectors) ConnClosed() {
	if c != nil {
		c.Connections.Dec()
	}
}

func (c *Collectors) SetRooms(n int) {
	if c != nil {
		c.Rooms.Set(float64(n))
	}
}

func (c *Collectors) Published(eventType, origin string) {
	if c != nil {
		c.EventsPublished.WithLabelValues(eventType, origin).Inc()
	}
}

func (c *Collectors) DeliveryFailed() {
	if c != nil {
		c.DeliveriesFailed.Inc()
	}
}

func (c *Collectors) Suppressed() {
	if c != nil {
		c.TypingSuppressed.Inc()
	}
}

func (c *Collectors) Relayed() {
	if c != nil {
		c.FanoutRelayed.Inc()
	}
}

func (c *Collectors) Duplicate() {
	if c != nil {
		c.FanoutDuplicates.Inc()
	}
}

func (c *Collectors) JoinDenied(reason string) {
	if c != nil {
		c.JoinsDenied.WithLabelValues(reason).Inc()
	}
}

func (c *Collectors) Rejected() {
	if c != nil {
		c.HandshakeRejected.Inc()
	}
}

func (c *Collectors) Panicked() {
	if c != nil {
		c.HandlerPanics.Inc()
	}
}
