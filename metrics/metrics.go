package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the chat collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Sessions   prometheus.Gauge
	Rooms      prometheus.Gauge
	Deliveries prometheus.Counter
	Dropped    prometheus.Counter
	Appended   *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chat_realtime_sessions",
			Help: "Connected realtime sessions.",
		}),
		Rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chat_realtime_rooms",
			Help: "Rooms with at least one joined session.",
		}),
		Deliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chat_realtime_deliveries_total",
			Help: "Events enqueued to sessions by room fan-out.",
		}),
		Dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chat_realtime_dropped_total",
			Help: "Fan-out events that could not be enqueued to a session.",
		}),
		Appended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_messages_appended_total",
			Help: "Messages durably appended, by kind.",
		}, []string{"kind"}),
	}
	if reg != nil {
		reg.MustRegister(m.Sessions, m.Rooms, m.Deliveries, m.Dropped, m.Appended)
	}
	return m
}

func (m *Metrics) SessionOpened() {
	if m != nil {
		m.Sessions.Inc()
	}
}

func (m *Metrics) SessionClosed() {
	if m != nil {
		m.Sessions.Dec()
	}
}

func (m *Metrics) SetRooms(n int) {
	if m != nil {
		m.Rooms.Set(float64(n))
	}
}

func (m *Metrics) Delivered(n int) {
	if m != nil && n > 0 {
		m.Deliveries.Add(float64(n))
	}
}

func (m *Metrics) Drop(n int) {
	if m != nil && n > 0 {
		m.Dropped.Add(float64(n))
	}
}

func (m *Metrics) MessageAppended(kind string) {
	if m != nil {
		m.Appended.WithLabelValues(kind).Inc()
	}
}
