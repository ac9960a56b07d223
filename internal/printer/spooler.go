package printer

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

const rawDocumentName = "Label print document"

// SpoolError carries the OS error code of a failed print queue submission
type SpoolError struct {
	Code int
}

func (e *SpoolError) Error() string {
	return fmt.Sprintf("error occurred during printing: %d", e.Code)
}

// RawQueueTransport submits print-ready payloads straight to an OS print queue
// by name, bypassing device discovery
type RawQueueTransport struct {
	spool func(queue, document string, data []byte) (int, error)
	log   logrus.FieldLogger
}

// NewRawQueueTransport creates a transport using the platform spooler
func NewRawQueueTransport(log logrus.FieldLogger) *RawQueueTransport {
	return &RawQueueTransport{
		spool: spoolRaw,
		log:   log,
	}
}

// SendBytes writes data as one RAW document to printerName
func (t *RawQueueTransport) SendBytes(printerName string, data []byte) *Result {
	if printerName == "" {
		return failure(ErrPrinterNameEmpty)
	}

	n, err := t.spool(printerName, rawDocumentName, data)
	if err != nil {
		t.log.WithFields(logrus.Fields{
			"transport": "driver",
			"queue":     printerName,
		}).WithError(err).Debug("raw queue submission failed")
		res := failure(err)
		res.BytesSent = int64(n)
		return res
	}

	return &Result{Success: true, BytesSent: int64(len(data))}
}

// SendFile writes the contents of path to printerName
func (t *RawQueueTransport) SendFile(printerName, path string) *Result {
	data, err := os.ReadFile(path)
	if err != nil {
		return failure(err)
	}
	return t.SendBytes(printerName, data)
}

// SendString writes s, ANSI encoded, to printerName
func (t *RawQueueTransport) SendString(printerName, s string) *Result {
	return t.SendBytes(printerName, asciiBytes(s))
}

func (t *RawQueueTransport) sendCopies(commands string, profile ConnectionProfile) *Result {
	if commands == "" {
		return failure(ErrNoCommand)
	}
	data, err := encodeCommands(commands, profile.Encoding, charsetASCII)
	if err != nil {
		return failure(err)
	}

	payload := make([]byte, 0, len(data)*profile.CopyCount())
	for i := 0; i < profile.CopyCount(); i++ {
		payload = append(payload, data...)
	}
	return t.SendBytes(profile.PrinterName, payload)
}
