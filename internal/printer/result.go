package printer

import (
	"errors"
	"fmt"
)

// Errors reported by the transports. They are carried in Result.Err and
// wrapped with details in Result.Message.
var (
	ErrNoCommand                    = errors.New("no command to execute")
	ErrPrinterNameEmpty             = errors.New("printer name is empty")
	ErrInvalidSerialSettings        = errors.New("invalid serial port settings")
	ErrInvalidStopBits              = errors.New("invalid stop bits")
	ErrInvalidParallelPort          = errors.New("invalid parallel port name")
	ErrMissingNetworkTarget         = errors.New("no address or port")
	ErrConnectionFailed             = errors.New("connection failed")
	ErrNoUSBPrinter                 = errors.New("no USB printer found")
	ErrRegistryAccess               = errors.New("cannot access registry key")
	ErrReadTimeout                  = errors.New("read request timed out")
	ErrReadFailed                   = errors.New("error reading printer response")
	ErrWriteFailed                  = errors.New("print error")
	ErrUnsupportedEncoding          = errors.New("unsupported encoding")
	ErrUnsupportedCommunicationType = errors.New("unsupported communication type")
)

// Result is the outcome of one dispatch
type Result struct {
	Success bool `json:"success"`
	// Message holds the error text, or the printer response when one was requested
	Message       string `json:"message,omitempty"`
	BytesSent     int64  `json:"bytes_sent"`
	BytesReceived int64  `json:"bytes_received,omitempty"`

	Err error `json:"-"`
}

// MegabytesSent converts BytesSent to MiB
func (r *Result) MegabytesSent() float64 {
	return float64(r.BytesSent) / (1 << 20)
}

func failure(err error) *Result {
	return &Result{
		Message: err.Error(),
		Err:     err,
	}
}

func failuref(kind error, format string, args ...interface{}) *Result {
	return failure(fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...)))
}

func wrapError(kind, err error) error {
	return fmt.Errorf("%w: %v", kind, err)
}
