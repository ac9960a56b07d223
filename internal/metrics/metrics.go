// Package metrics exposes dispatch counters for Prometheus
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/thereceipt/label-dispatch/internal/printer"
)

const namespace = "label_dispatch"

// Metrics owns a private registry so several instances can coexist in tests
type Metrics struct {
	registry *prometheus.Registry

	Dispatches       *prometheus.CounterVec
	BytesSent        *prometheus.CounterVec
	BytesReceived    *prometheus.CounterVec
	DispatchDuration *prometheus.HistogramVec
	UsbDevices       prometheus.Gauge
	UsbDeviceEvents  *prometheus.CounterVec
}

// New creates and registers the dispatch metrics along with the Go runtime
// and process collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		Dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatches_total",
			Help:      "Dispatches by transport and outcome",
		}, []string{"transport", "outcome"}),

		BytesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_sent_total",
			Help:      "Bytes written to printers",
		}, []string{"transport"}),

		BytesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_received_total",
			Help:      "Response bytes read back from printers",
		}, []string{"transport"}),

		DispatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Time spent in one dispatch",
			Buckets:   prometheus.DefBuckets,
		}, []string{"transport"}),

		UsbDevices: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "usb_devices",
			Help:      "USB devices currently attached",
		}),

		UsbDeviceEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "usb_device_events_total",
			Help:      "USB attach and detach events",
		}, []string{"kind"}),
	}

	m.registry.MustRegister(
		m.Dispatches,
		m.BytesSent,
		m.BytesReceived,
		m.DispatchDuration,
		m.UsbDevices,
		m.UsbDeviceEvents,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveDispatch records one dispatch event
func (m *Metrics) ObserveDispatch(ev printer.Event) {
	transport := ev.Transport.String()

	outcome := "success"
	if !ev.Result.Success {
		outcome = "failure"
	}

	m.Dispatches.WithLabelValues(transport, outcome).Inc()
	m.BytesSent.WithLabelValues(transport).Add(float64(ev.Result.BytesSent))
	m.BytesReceived.WithLabelValues(transport).Add(float64(ev.Result.BytesReceived))
	m.DispatchDuration.WithLabelValues(transport).Observe(ev.Duration.Seconds())
}

// ObserveDevice records a USB attach or detach
func (m *Metrics) ObserveDevice(ev printer.DeviceEvent) {
	if ev.Attached {
		m.UsbDevices.Inc()
		m.UsbDeviceEvents.WithLabelValues("attach").Inc()
		return
	}
	m.UsbDevices.Dec()
	m.UsbDeviceEvents.WithLabelValues("detach").Inc()
}

// SetUsbDevices sets the attached device count, e.g. after the first scan
func (m *Metrics) SetUsbDevices(n int) {
	m.UsbDevices.Set(float64(n))
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
