package printer

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultUsbReadTimeout bounds the wait for a USB printer response
const DefaultUsbReadTimeout = 1000 * time.Millisecond

const usbLineTerminator = "\r\n"

// UsbTransport resolves a USB printer by its installed queue name, writes the
// command stream to the raw device and optionally reads the response back.
type UsbTransport struct {
	VendorID    uint16
	ReadTimeout time.Duration

	Devices UsbEnumerator
	Ports   PortRegistry
	Queues  QueueLister
	Handles HandleOpener

	Log logrus.FieldLogger
}

// NewUsbTransport creates a USB transport with the platform providers
func NewUsbTransport(log logrus.FieldLogger) *UsbTransport {
	return &UsbTransport{
		VendorID:    ZebraVendorID,
		ReadTimeout: DefaultUsbReadTimeout,
		Devices:     GousbEnumerator{},
		Ports:       defaultPortRegistry(),
		Queues:      defaultQueueLister(),
		Handles:     defaultHandleOpener(),
		Log:         log,
	}
}

// Send writes commands copies times to the USB printer installed as printerName
func (t *UsbTransport) Send(commands, printerName string, copies int, waitForResponse bool) *Result {
	return t.send(commands, printerName, copies, waitForResponse, "")
}

func (t *UsbTransport) send(commands, printerName string, copies int, waitForResponse bool, charset string) *Result {
	if printerName == "" {
		return failure(ErrPrinterNameEmpty)
	}
	if commands == "" {
		return failure(ErrNoCommand)
	}
	if copies < 1 {
		copies = 1
	}

	data, err := encodeCommands(commands, charset, charsetASCII)
	if err != nil {
		return failure(err)
	}

	log := t.Log.WithFields(logrus.Fields{
		"transport": "usb",
		"printer":   printerName,
	})

	entries, err := t.Ports.Entries()
	if err != nil {
		if errors.Is(err, ErrRegistryAccess) {
			return failure(err)
		}
		return failure(wrapError(ErrRegistryAccess, err))
	}

	devices, err := t.Devices.Devices()
	if err != nil {
		log.WithError(err).Warn("USB enumeration incomplete")
	}

	queues, err := t.Queues.Queues()
	if err != nil {
		return failuref(ErrNoUSBPrinter, "list print queues: %v", err)
	}

	candidates := MatchUsbPrinters(devices, t.VendorID, entries, queues, printerName)

	var writer io.WriteCloser
	var reader *onceCloser
	for _, dev := range candidates {
		w, werr := t.Handles.OpenWrite(dev.Path)
		r, rerr := t.Handles.OpenRead(dev.Path)
		if werr == nil || rerr == nil {
			log = log.WithFields(logrus.Fields{"path": dev.Path, "port": dev.PortName})
			if werr == nil {
				writer = &onceCloser{Closer: w, w: w}
			}
			if rerr == nil {
				reader = &onceCloser{Closer: r, r: r}
			}
			break
		}
		log.WithField("path", dev.Path).WithError(werr).Debug("cannot open USB device")
	}

	if reader != nil {
		defer reader.Close()
	}
	if writer == nil {
		return failuref(ErrNoUSBPrinter, "write error")
	}
	defer writer.Close()

	// each copy goes out as one line, the terminator is not counted as sent
	line := append(append(make([]byte, 0, len(data)+len(usbLineTerminator)), data...), usbLineTerminator...)

	result := &Result{}
	for i := 0; i < copies; i++ {
		n, err := writer.Write(line)
		result.BytesSent += int64(min(n, len(data)))
		if err != nil {
			res := failuref(ErrWriteFailed, "%v", err)
			res.BytesSent = result.BytesSent
			return res
		}
	}
	result.Success = true

	if waitForResponse {
		if reader == nil {
			result.Message = wrapError(ErrNoUSBPrinter, errors.New("read error")).Error()
			return result
		}
		t.readBack(reader, result)
	}

	log.WithFields(logrus.Fields{
		"bytes":    result.BytesSent,
		"received": result.BytesReceived,
		"success":  result.Success,
	}).Debug("usb dispatch complete")
	return result
}

type readOutcome struct {
	message string
	bytes   int64
	err     error
}

// readBack runs the blocking read on a goroutine and joins it against the read
// timeout. On timeout the pending read is cancelled where the handle allows
// it, the handle is closed off the caller's path and the late outcome is
// discarded.
func (t *UsbTransport) readBack(reader *onceCloser, result *Result) {
	timeout := t.ReadTimeout
	if timeout <= 0 {
		timeout = DefaultUsbReadTimeout
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	done := make(chan readOutcome, 1)
	go func() {
		done <- readLines(ctx, reader)
	}()

	select {
	case out := <-done:
		result.BytesReceived = out.bytes
		if out.err != nil {
			result.Success = false
			result.Err = out.err
			result.Message = out.err.Error()
			return
		}
		result.Message = out.message
	case <-ctx.Done():
		if err := reader.CancelRead(); err != nil {
			t.Log.WithError(err).Debug("cancel USB read failed")
		}
		reader.closeDetached()
		result.Success = false
		result.Err = ErrReadTimeout
		result.Message = ErrReadTimeout.Error()
	}
}

// readLines reads until end of stream, terminating each line with "\r"
func readLines(ctx context.Context, reader io.ReadCloser) readOutcome {
	var sb strings.Builder
	br := bufio.NewReader(reader)

	for ctx.Err() == nil {
		line, err := br.ReadString('\n')
		if line != "" {
			sb.WriteString(strings.TrimRight(line, "\r\n"))
			sb.WriteString("\r")
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			reader.Close()
			return readOutcome{bytes: int64(sb.Len()), err: wrapError(ErrReadFailed, err)}
		}
	}

	return readOutcome{message: sb.String(), bytes: int64(sb.Len())}
}

// readCanceler is implemented by handles whose blocking Read has to be
// cancelled before Close returns, such as synchronous Windows device handles.
type readCanceler interface {
	CancelRead() error
}

// onceCloser lets the timeout path and the deferred cleanup both close a
// handle. Only the first Close reaches the handle; later calls return at once.
type onceCloser struct {
	io.Closer
	w      io.Writer
	r      io.Reader
	closed atomic.Bool
}

func (c *onceCloser) Write(p []byte) (int, error) { return c.w.Write(p) }
func (c *onceCloser) Read(p []byte) (int, error)  { return c.r.Read(p) }

// CancelRead aborts a pending Read when the wrapped handle supports it
func (c *onceCloser) CancelRead() error {
	if rc, ok := c.r.(readCanceler); ok {
		return rc.CancelRead()
	}
	return nil
}

// closeDetached claims the close and runs it off the caller's goroutine.
// Without cancellation a Close can wait for the pending read.
func (c *onceCloser) closeDetached() {
	if c.closed.CompareAndSwap(false, true) {
		go c.Closer.Close()
	}
}

func (c *onceCloser) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.Closer.Close()
}
