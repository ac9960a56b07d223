package printer

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// recorder is an in-memory device handle
type recorder struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool
	// err fails every write after the first failAfter ones
	err       error
	failAfter int
	writes    int
}

func (r *recorder) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil && r.writes >= r.failAfter {
		return 0, r.err
	}
	r.writes++
	return r.buf.Write(p)
}

func (r *recorder) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *recorder) Read(p []byte) (int, error) {
	return 0, io.EOF
}

func (r *recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *recorder) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf.String()
}

type fakeEnumerator struct {
	mu      sync.Mutex
	devices []UsbDevice
	err     error
}

func (f *fakeEnumerator) Devices() ([]UsbDevice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]UsbDevice(nil), f.devices...), f.err
}

func (f *fakeEnumerator) set(devices ...UsbDevice) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.devices = devices
}

type fakeRegistry struct {
	entries []PortEntry
	err     error
}

func (f fakeRegistry) Entries() ([]PortEntry, error) {
	return f.entries, f.err
}

type fakeOpener struct {
	writer  io.WriteCloser
	reader  io.ReadCloser
	readErr error
	opened  []string
}

func (f *fakeOpener) OpenWrite(path string) (io.WriteCloser, error) {
	f.opened = append(f.opened, path)
	if f.writer == nil {
		return nil, errors.New("access denied")
	}
	return f.writer, nil
}

func (f *fakeOpener) OpenRead(path string) (io.ReadCloser, error) {
	if f.readErr != nil || f.reader == nil {
		return nil, errors.New("access denied")
	}
	return f.reader, nil
}

const (
	zebraPath     = `\\?\usb#vid_0a5f&pid_00ab#jjk011718#{a5dcbf10-6530-11d2-901f-00c04fb951ed}`
	zebraPortKey  = `##?#USB#VID_0A5F&PID_00AB#JJK011718#{28d78fad-5a12-11d1-ae5b-0000f803a8c2}`
	zebraQueue    = "ZDesigner GK420d"
	zebraPortName = "USB003"
)

func zebraDevice() UsbDevice {
	return UsbDevice{VendorID: 0x0A5F, ProductID: 0x00AB, Path: zebraPath}
}

// newTestUsbTransport wires a transport that finds the zebra device at USB003
func newTestUsbTransport(opener *fakeOpener) *UsbTransport {
	return &UsbTransport{
		VendorID:    ZebraVendorID,
		ReadTimeout: 100 * time.Millisecond,
		Devices:     &fakeEnumerator{devices: []UsbDevice{zebraDevice()}},
		Ports:       fakeRegistry{entries: []PortEntry{{Key: zebraPortKey, PortNumber: 3}}},
		Queues:      QueueMap{zebraQueue: zebraPortName},
		Handles:     opener,
		Log:         testLogger(),
	}
}

// blockingHandle behaves like a synchronous device handle: Read blocks until
// released and Close waits for an in-flight Read to return.
type blockingHandle struct {
	started     chan struct{}
	release     chan struct{}
	done        chan struct{}
	startOnce   sync.Once
	releaseOnce sync.Once
	doneOnce    sync.Once
	closed      atomic.Bool
}

func newBlockingHandle() *blockingHandle {
	return &blockingHandle{
		started: make(chan struct{}),
		release: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func (h *blockingHandle) Read(p []byte) (int, error) {
	h.startOnce.Do(func() { close(h.started) })
	<-h.release
	h.doneOnce.Do(func() { close(h.done) })
	return 0, errors.New("operation aborted")
}

func (h *blockingHandle) Close() error {
	select {
	case <-h.started:
		<-h.done
	default:
	}
	h.closed.Store(true)
	return nil
}

func (h *blockingHandle) unblock() {
	h.releaseOnce.Do(func() { close(h.release) })
}

// cancellableHandle adds the read cancellation Windows handles provide
type cancellableHandle struct {
	*blockingHandle
}

func (h cancellableHandle) CancelRead() error {
	h.unblock()
	return nil
}
