package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

type AppMetrics struct {
	FramesReceived *prometheus.CounterVec // labels: result=ok|unmatched|invalid
	FramesSent     prometheus.Counter
	BytesReceived  prometheus.Counter
	StatePublished *prometheus.CounterVec // labels: device, result=ok|error|disconnected
}

func NewAppMetrics(reg prometheus.Registerer) *AppMetrics {
	m := &AppMetrics{
		FramesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rs485_frames_received_total",
			Help: "Frames received from the bus.",
		}, []string{"result"}),
		FramesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rs485_frames_sent_total",
			Help: "Frames written to the bus.",
		}),
		BytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rs485_bytes_received_total",
			Help: "Bytes read from the bus.",
		}),
		StatePublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mqtt_state_published_total",
			Help: "Appliance states published to MQTT.",
		}, []string{"device", "result"}),
	}
	reg.MustRegister(m.FramesReceived, m.FramesSent, m.BytesReceived, m.StatePublished)
	return m
}
