package printer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DeviceEvent reports a USB device arriving or leaving
type DeviceEvent struct {
	Attached bool      `json:"attached"`
	Device   UsbDevice `json:"device"`
}

// Monitor polls a UsbEnumerator and reports attach and detach changes. It
// only observes; dispatches always enumerate afresh.
type Monitor struct {
	devices  UsbEnumerator
	interval time.Duration
	log      logrus.FieldLogger

	mu       sync.Mutex
	handlers []func(DeviceEvent)
	previous map[string]UsbDevice

	cancel context.CancelFunc
	done   chan struct{}
}

// NewMonitor creates a device monitor polling every interval
func NewMonitor(devices UsbEnumerator, interval time.Duration, log logrus.FieldLogger) *Monitor {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Monitor{
		devices:  devices,
		interval: interval,
		log:      log,
		previous: make(map[string]UsbDevice),
	}
}

// OnChange registers fn to receive device events
func (m *Monitor) OnChange(fn func(DeviceEvent)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, fn)
}

// Start takes an initial snapshot and begins polling until ctx is done or
// Stop is called. Devices present at start are not reported.
func (m *Monitor) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})

	if devices, err := m.devices.Devices(); err == nil {
		m.mu.Lock()
		m.previous = indexDevices(devices)
		m.mu.Unlock()
	}

	go func() {
		defer close(m.done)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Poll()
			}
		}
	}()
}

// Stop ends polling and waits for the poll loop to exit
func (m *Monitor) Stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
}

// Len returns the number of devices seen by the last poll
func (m *Monitor) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.previous)
}

// Poll enumerates once and emits the differences from the previous poll
func (m *Monitor) Poll() []DeviceEvent {
	devices, err := m.devices.Devices()
	if err != nil && len(devices) == 0 {
		m.log.WithError(err).Warn("USB device poll failed")
		return nil
	}

	current := indexDevices(devices)

	m.mu.Lock()
	var events []DeviceEvent
	for key, dev := range current {
		if _, ok := m.previous[key]; !ok {
			events = append(events, DeviceEvent{Attached: true, Device: dev})
		}
	}
	for key, dev := range m.previous {
		if _, ok := current[key]; !ok {
			events = append(events, DeviceEvent{Attached: false, Device: dev})
		}
	}
	m.previous = current
	handlers := m.handlers
	m.mu.Unlock()

	for _, ev := range events {
		m.log.WithFields(logrus.Fields{
			"vendor":   fmt.Sprintf("%04x", ev.Device.VendorID),
			"product":  fmt.Sprintf("%04x", ev.Device.ProductID),
			"serial":   ev.Device.SerialNumber,
			"attached": ev.Attached,
		}).Info("USB device changed")
		for _, fn := range handlers {
			fn(ev)
		}
	}
	return events
}

func indexDevices(devices []UsbDevice) map[string]UsbDevice {
	index := make(map[string]UsbDevice, len(devices))
	for _, dev := range devices {
		index[deviceKey(dev)] = dev
	}
	return index
}

func deviceKey(dev UsbDevice) string {
	return fmt.Sprintf("%04x:%04x:%s:%s", dev.VendorID, dev.ProductID, dev.SerialNumber, dev.Path)
}
