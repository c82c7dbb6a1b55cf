// Package metrics — счётчики хаба и загрузок для Prometheus. Реестр свой на процесс;
// методы безопасны на nil-получателе, поэтому хаб и тесты могут работать без метрик.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	reg *prometheus.Registry

	connections     prometheus.Gauge
	rooms           prometheus.Gauge
	published       *prometheus.CounterVec
	delivered       *prometheus.CounterVec
	slowClients     prometheus.Counter
	uploadsRejected prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tavern_ws_connections",
			Help: "Open push-channel connections.",
		}),
		rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tavern_rooms",
			Help: "Channels with at least one joined connection.",
		}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tavern_events_published_total",
			Help: "Domain events accepted by the hub.",
		}, []string{"kind"}),
		delivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tavern_events_delivered_total",
			Help: "Events queued to individual connections.",
		}, []string{"kind"}),
		slowClients: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tavern_slow_clients_total",
			Help: "Connections closed because their send queue overflowed.",
		}),
		uploadsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tavern_uploads_rejected_total",
			Help: "Uploads rejected for exceeding the size limit.",
		}),
	}
	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.connections, m.rooms, m.published, m.delivered, m.slowClients, m.uploadsRejected,
	)
	return m
}

// Handler отдаёт /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func (m *Metrics) ConnOpened() {
	if m != nil {
		m.connections.Inc()
	}
}

func (m *Metrics) ConnClosed() {
	if m != nil {
		m.connections.Dec()
	}
}

func (m *Metrics) RoomOpened() {
	if m != nil {
		m.rooms.Inc()
	}
}

func (m *Metrics) RoomClosed() {
	if m != nil {
		m.rooms.Dec()
	}
}

func (m *Metrics) Published(kind string) {
	if m != nil {
		m.published.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) Delivered(kind string) {
	if m != nil {
		m.delivered.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) SlowClient() {
	if m != nil {
		m.slowClients.Inc()
	}
}

func (m *Metrics) UploadRejected() {
	if m != nil {
		m.uploadsRejected.Inc()
	}
}
