// Package printer dispatches printer command streams over USB, serial,
// parallel and TCP transports and reports a uniform Result.
package printer

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Event describes one completed dispatch
type Event struct {
	Transport CommunicationType
	Target    string
	Copies    int
	Result    Result
	StartedAt time.Time
	Duration  time.Duration
}

// Dispatcher is the single entry point for sending commands to a printer. It
// holds no per-dispatch state and is safe for concurrent use.
type Dispatcher struct {
	serial   *SerialTransport
	parallel *ParallelTransport
	network  *NetworkTransport
	usb      *UsbTransport
	raw      *RawQueueTransport
	log      logrus.FieldLogger

	mu        sync.RWMutex
	observers []func(Event)
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithLogger sets the logger passed to the default transports
func WithLogger(log logrus.FieldLogger) Option {
	return func(d *Dispatcher) { d.log = log }
}

// WithUsbTransport replaces the USB transport
func WithUsbTransport(t *UsbTransport) Option {
	return func(d *Dispatcher) { d.usb = t }
}

// WithSerialTransport replaces the serial transport
func WithSerialTransport(t *SerialTransport) Option {
	return func(d *Dispatcher) { d.serial = t }
}

// WithParallelTransport replaces the parallel transport
func WithParallelTransport(t *ParallelTransport) Option {
	return func(d *Dispatcher) { d.parallel = t }
}

// WithNetworkTransport replaces the network transport
func WithNetworkTransport(t *NetworkTransport) Option {
	return func(d *Dispatcher) { d.network = t }
}

// WithRawQueueTransport replaces the print queue transport used for Driver profiles
func WithRawQueueTransport(t *RawQueueTransport) Option {
	return func(d *Dispatcher) { d.raw = t }
}

// NewDispatcher creates a dispatcher with the platform transports
func NewDispatcher(opts ...Option) *Dispatcher {
	d := &Dispatcher{log: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(d)
	}

	if d.serial == nil {
		d.serial = NewSerialTransport(d.log)
	}
	if d.parallel == nil {
		d.parallel = NewParallelTransport(d.log)
	}
	if d.network == nil {
		d.network = NewNetworkTransport(d.log)
	}
	if d.usb == nil {
		d.usb = NewUsbTransport(d.log)
	}
	if d.raw == nil {
		d.raw = NewRawQueueTransport(d.log)
	}
	return d
}

// Observe registers fn to be called after every dispatch
func (d *Dispatcher) Observe(fn func(Event)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.observers = append(d.observers, fn)
}

// UsbDevices lists attached USB devices with the USB transport's enumerator
func (d *Dispatcher) UsbDevices() ([]UsbDevice, error) {
	return d.usb.Devices.Devices()
}

// RawQueue returns the print queue transport
func (d *Dispatcher) RawQueue() *RawQueueTransport {
	return d.raw
}

// Dispatch sends commands to the printer described by profile. Transport
// failures are reported in the Result; the returned error is non-nil only when
// the profile names a communication type no transport handles.
func (d *Dispatcher) Dispatch(commands string, profile ConnectionProfile, waitForResponse bool) (*Result, error) {
	if commands == "" {
		return failure(ErrNoCommand), nil
	}

	started := time.Now()
	var result *Result

	switch profile.CommunicationType {
	case CommunicationNetwork:
		result = d.network.Send(commands, profile, waitForResponse)
	case CommunicationSerial:
		result = d.serial.Send(commands, profile)
	case CommunicationParallel:
		result = d.parallel.send(commands, profile.ParallelPortName, profile.CopyCount(), profile.Encoding)
	case CommunicationUSB:
		result = d.usb.send(commands, profile.PrinterName, profile.CopyCount(), waitForResponse, profile.Encoding)
	case CommunicationDriver:
		result = d.raw.sendCopies(commands, profile)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCommunicationType, profile.CommunicationType)
	}

	d.notify(Event{
		Transport: profile.CommunicationType,
		Target:    profile.Target(),
		Copies:    profile.CopyCount(),
		Result:    *result,
		StartedAt: started,
		Duration:  time.Since(started),
	})
	return result, nil
}

func (d *Dispatcher) notify(ev Event) {
	d.mu.RLock()
	observers := d.observers
	d.mu.RUnlock()

	for _, fn := range observers {
		fn(ev)
	}
}
