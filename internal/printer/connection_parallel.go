package printer

import (
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

const parallelPortPrefix = "LPT"

// ParallelTransport writes command streams to a raw LPT device
type ParallelTransport struct {
	open func(portName string) (io.WriteCloser, error)
	log  logrus.FieldLogger
}

// NewParallelTransport creates a parallel transport using the platform device opener
func NewParallelTransport(log logrus.FieldLogger) *ParallelTransport {
	return &ParallelTransport{
		open: openParallelPort,
		log:  log,
	}
}

func isParallelPortName(name string) bool {
	return len(name) >= len(parallelPortPrefix) &&
		strings.EqualFold(name[:len(parallelPortPrefix)], parallelPortPrefix)
}

// Send writes commands copies times to portName
func (t *ParallelTransport) Send(commands, portName string, copies int) *Result {
	return t.send(commands, portName, copies, "")
}

func (t *ParallelTransport) send(commands, portName string, copies int, charset string) *Result {
	if !isParallelPortName(portName) {
		return failure(ErrInvalidParallelPort)
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

	port, err := t.open(portName)
	if err != nil {
		t.log.WithField("port", portName).WithError(err).Debug("parallel open failed")
		return failure(ErrConnectionFailed)
	}
	defer port.Close()

	result := &Result{}
	for i := 0; i < copies; i++ {
		n, err := port.Write(data)
		result.BytesSent += int64(n)
		if err != nil {
			res := failuref(ErrWriteFailed, "%v", err)
			res.BytesSent = result.BytesSent
			return res
		}
	}

	result.Success = true
	t.log.WithFields(logrus.Fields{
		"transport": "parallel",
		"port":      portName,
		"bytes":     result.BytesSent,
	}).Debug("parallel dispatch complete")
	return result
}
