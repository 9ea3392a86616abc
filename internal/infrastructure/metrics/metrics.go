package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/davinci-bridge/internal/fireplace"
)

const namespace = "davinci"

// Source is the coordinator surface the exporter reads from.
type Source interface {
	State() fireplace.State
	Diagnostics() fireplace.Diagnostics
	Subscribe(fn func()) fireplace.ObserverID
	Unsubscribe(id fireplace.ObserverID)
}

// Exporter publishes fireplace state and connection counters on a private
// Prometheus registry.
type Exporter struct {
	registry *prometheus.Registry
	deviceID string

	connected *prometheus.GaugeVec
	power     *prometheus.GaugeVec
	level     *prometheus.GaugeVec
	ledColor  *prometheus.GaugeVec
}

// New creates an exporter for deviceID with Go runtime and process
// collectors registered.
func New(deviceID string) *Exporter {
	e := &Exporter{
		registry: prometheus.NewRegistry(),
		deviceID: deviceID,
		connected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected",
			Help:      "1 while the fireplace session is up, 0 otherwise",
		}, []string{"device"}),
		power: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "power",
			Help:      "Subsystem on/off status (1=on, 0=off)",
		}, []string{"device", "subsystem"}),
		level: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "level_percent",
			Help:      "Lamp level or heat fan speed on the 0-100 scale",
		}, []string{"device", "subsystem"}),
		ledColor: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "led_channel",
			Help:      "Accent LED channel value (0-255)",
		}, []string{"device", "channel"}),
	}

	e.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		e.connected,
		e.power,
		e.level,
		e.ledColor,
	)
	return e
}

// Registry returns the exporter's registry.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// Attach registers counters read straight from src and keeps the state
// gauges current through a state observer. The returned function detaches
// the observer.
func (e *Exporter) Attach(src Source) func() {
	diag := func() fireplace.Diagnostics { return src.Diagnostics() }
	labels := prometheus.Labels{"device": e.deviceID}

	e.registry.MustRegister(
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace, Name: "commands_sent_total",
			Help: "Commands written to the fireplace", ConstLabels: labels,
		}, func() float64 { return float64(diag().CommandsSent) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace, Name: "commands_dropped_total",
			Help: "Commands dropped because the queue was full", ConstLabels: labels,
		}, func() float64 { return float64(diag().CommandsDropped) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace, Name: "connects_total",
			Help: "Successful fireplace connections", ConstLabels: labels,
		}, func() float64 { return float64(diag().Connects) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace, Name: "parse_errors_total",
			Help: "Inbound values that failed to parse", ConstLabels: labels,
		}, func() float64 { return float64(diag().ParseErrors) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Name: "queue_depth",
			Help: "Commands waiting to be sent", ConstLabels: labels,
		}, func() float64 { return float64(diag().QueueSize) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Name: "reconnect_attempts",
			Help: "Consecutive failed connection attempts", ConstLabels: labels,
		}, func() float64 { return float64(diag().ReconnectAttempts) }),
	)

	e.Update(src.State())
	id := src.Subscribe(func() { e.Update(src.State()) })
	return func() { src.Unsubscribe(id) }
}

// Update sets the state gauges from a snapshot.
func (e *Exporter) Update(s fireplace.State) {
	e.connected.WithLabelValues(e.deviceID).Set(boolValue(s.Connected))

	e.power.WithLabelValues(e.deviceID, "lamp").Set(boolValue(s.LampOn))
	e.power.WithLabelValues(e.deviceID, "led").Set(boolValue(s.LEDOn))
	e.power.WithLabelValues(e.deviceID, "flame").Set(boolValue(s.FlameOn))
	e.power.WithLabelValues(e.deviceID, "fan").Set(boolValue(s.FanOn))

	e.level.WithLabelValues(e.deviceID, "lamp").Set(float64(s.LampLevel))
	e.level.WithLabelValues(e.deviceID, "fan").Set(float64(s.FanSpeed))

	e.ledColor.WithLabelValues(e.deviceID, "red").Set(float64(s.LEDColor.Red))
	e.ledColor.WithLabelValues(e.deviceID, "green").Set(float64(s.LEDColor.Green))
	e.ledColor.WithLabelValues(e.deviceID, "blue").Set(float64(s.LEDColor.Blue))
	e.ledColor.WithLabelValues(e.deviceID, "white").Set(float64(s.LEDColor.White))
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
