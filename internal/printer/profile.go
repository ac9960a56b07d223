package printer

import (
	"fmt"
	"strings"
	"time"
)

// CommunicationType selects the transport used for a dispatch
type CommunicationType int

const (
	CommunicationUSB CommunicationType = iota
	CommunicationSerial
	CommunicationParallel
	CommunicationNetwork
	CommunicationDriver
	CommunicationStream
)

var communicationNames = map[CommunicationType]string{
	CommunicationUSB:      "usb",
	CommunicationSerial:   "serial",
	CommunicationParallel: "parallel",
	CommunicationNetwork:  "network",
	CommunicationDriver:   "driver",
	CommunicationStream:   "stream",
}

func (c CommunicationType) String() string {
	if name, ok := communicationNames[c]; ok {
		return name
	}
	return fmt.Sprintf("communication(%d)", int(c))
}

// MarshalText implements encoding.TextMarshaler
func (c CommunicationType) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (c *CommunicationType) UnmarshalText(text []byte) error {
	parsed, err := ParseCommunicationType(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseCommunicationType parses a transport name such as "usb" or "network"
func ParseCommunicationType(s string) (CommunicationType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for c, name := range communicationNames {
		if name == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedCommunicationType, s)
}

// Parity of a serial line
type Parity int

const (
	ParityNone Parity = iota
	ParityOdd
	ParityEven
	ParityMark
	ParitySpace
)

var parityNames = []string{"none", "odd", "even", "mark", "space"}

func (p Parity) String() string {
	if int(p) >= 0 && int(p) < len(parityNames) {
		return parityNames[p]
	}
	return fmt.Sprintf("parity(%d)", int(p))
}

func (p Parity) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Parity) UnmarshalText(text []byte) error {
	i, err := lookupName(parityNames, string(text), "parity")
	if err != nil {
		return err
	}
	*p = Parity(i)
	return nil
}

// StopBits of a serial line. StopBitsNone is a sentinel that is never valid for
// a real port.
type StopBits int

const (
	StopBitsNone StopBits = iota
	StopBitsOne
	StopBitsTwo
	StopBitsOnePointFive
)

var stopBitsNames = []string{"none", "1", "2", "1.5"}

func (s StopBits) String() string {
	if int(s) >= 0 && int(s) < len(stopBitsNames) {
		return stopBitsNames[s]
	}
	return fmt.Sprintf("stopbits(%d)", int(s))
}

func (s StopBits) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *StopBits) UnmarshalText(text []byte) error {
	i, err := lookupName(stopBitsNames, string(text), "stop bits")
	if err != nil {
		return err
	}
	*s = StopBits(i)
	return nil
}

// FlowControl is the handshake mode of a serial line
type FlowControl int

const (
	FlowNone FlowControl = iota
	FlowXOnXOff
	FlowRequestToSend
	FlowRequestToSendXOnXOff
)

var flowControlNames = []string{"none", "xonxoff", "rts", "rts-xonxoff"}

func (f FlowControl) String() string {
	if int(f) >= 0 && int(f) < len(flowControlNames) {
		return flowControlNames[f]
	}
	return fmt.Sprintf("flow(%d)", int(f))
}

func (f FlowControl) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

func (f *FlowControl) UnmarshalText(text []byte) error {
	i, err := lookupName(flowControlNames, string(text), "flow control")
	if err != nil {
		return err
	}
	*f = FlowControl(i)
	return nil
}

func lookupName(names []string, s, what string) (int, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range names {
		if name == s {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown %s: %q", what, s)
}

// Defaults applied by DefaultProfile
const (
	DefaultNetworkPort      = 9100
	DefaultNetworkTimeoutMs = 1500
	DefaultSerialPortName   = "COM1"
	DefaultSerialBaudRate   = 9600
	DefaultSerialDataBits   = 8
	DefaultParallelPortName = "LPT1"
)

// ConnectionProfile describes one printer target. Only the fields of the
// declared CommunicationType are meaningful for a dispatch.
type ConnectionProfile struct {
	CommunicationType CommunicationType `json:"communication_type"`
	Copies            int               `json:"copies"`

	// PrinterName is the OS print queue name (USB and Driver)
	PrinterName string `json:"printer_name,omitempty"`

	NetworkAddress   string `json:"network_address,omitempty"`
	NetworkPort      int    `json:"network_port,omitempty"`
	NetworkTimeoutMs int    `json:"network_timeout_ms,omitempty"`

	SerialPortName    string      `json:"serial_port_name,omitempty"`
	SerialBaudRate    int         `json:"serial_baud_rate,omitempty"`
	SerialDataBits    int         `json:"serial_data_bits,omitempty"`
	SerialParity      Parity      `json:"serial_parity"`
	SerialStopBits    StopBits    `json:"serial_stop_bits"`
	SerialFlowControl FlowControl `json:"serial_flow_control"`

	ParallelPortName string `json:"parallel_port_name,omitempty"`

	// Encoding is an optional IANA charset for the command stream. Empty means
	// the transport default (UTF-8 for network/serial, ASCII for USB/parallel).
	Encoding string `json:"encoding,omitempty"`
}

// DefaultProfile returns a USB profile with every other field set to the usual
// printer defaults.
func DefaultProfile() ConnectionProfile {
	return ConnectionProfile{
		CommunicationType: CommunicationUSB,
		Copies:            1,
		NetworkTimeoutMs:  DefaultNetworkTimeoutMs,
		SerialPortName:    DefaultSerialPortName,
		SerialBaudRate:    DefaultSerialBaudRate,
		SerialDataBits:    DefaultSerialDataBits,
		SerialParity:      ParityNone,
		SerialStopBits:    StopBitsOne,
		SerialFlowControl: FlowXOnXOff,
		ParallelPortName:  DefaultParallelPortName,
	}
}

// NewUSBProfile targets the USB printer installed under printerName
func NewUSBProfile(printerName string) ConnectionProfile {
	p := DefaultProfile()
	p.PrinterName = printerName
	return p
}

// NewDriverProfile targets the OS print queue printerName with raw documents
func NewDriverProfile(printerName string) ConnectionProfile {
	p := DefaultProfile()
	p.CommunicationType = CommunicationDriver
	p.PrinterName = printerName
	return p
}

// NewNetworkProfile targets a TCP printer. Port 0 selects 9100.
func NewNetworkProfile(address string, port int) ConnectionProfile {
	if port == 0 {
		port = DefaultNetworkPort
	}
	p := DefaultProfile()
	p.CommunicationType = CommunicationNetwork
	p.NetworkAddress = address
	p.NetworkPort = port
	return p
}

// NewParallelProfile targets an LPT port
func NewParallelProfile(portName string, copies int) ConnectionProfile {
	p := DefaultProfile()
	p.CommunicationType = CommunicationParallel
	p.ParallelPortName = portName
	p.Copies = copies
	return p
}

// NewSerialProfile targets an RS-232 port
func NewSerialProfile(portName string, baudRate int, stopBits StopBits, dataBits int, flow FlowControl, parity Parity) ConnectionProfile {
	p := DefaultProfile()
	p.CommunicationType = CommunicationSerial
	p.SerialPortName = portName
	p.SerialBaudRate = baudRate
	p.SerialStopBits = stopBits
	p.SerialDataBits = dataBits
	p.SerialFlowControl = flow
	p.SerialParity = parity
	return p
}

// CopyCount returns the number of transmissions, at least one
func (p ConnectionProfile) CopyCount() int {
	if p.Copies < 1 {
		return 1
	}
	return p.Copies
}

// NetworkTimeout is the dial and first-read bound. Values < 1 ms use
// DefaultNetworkTimeoutMs.
func (p ConnectionProfile) NetworkTimeout() time.Duration {
	ms := p.NetworkTimeoutMs
	if ms < 1 {
		ms = DefaultNetworkTimeoutMs
	}
	return time.Duration(ms) * time.Millisecond
}

// Target describes the destination for logs and events
func (p ConnectionProfile) Target() string {
	switch p.CommunicationType {
	case CommunicationUSB, CommunicationDriver:
		return p.PrinterName
	case CommunicationSerial:
		return p.SerialPortName
	case CommunicationParallel:
		return p.ParallelPortName
	case CommunicationNetwork:
		return fmt.Sprintf("%s:%d", p.NetworkAddress, p.NetworkPort)
	}
	return ""
}

// Validate checks the fields required by the declared communication type
func (p ConnectionProfile) Validate() error {
	switch p.CommunicationType {
	case CommunicationUSB, CommunicationDriver:
		if p.PrinterName == "" {
			return ErrPrinterNameEmpty
		}
	case CommunicationSerial:
		if p.SerialPortName == "" || p.SerialBaudRate < 0 || p.SerialDataBits < 0 {
			return ErrInvalidSerialSettings
		}
		if p.SerialStopBits == StopBitsNone {
			return ErrInvalidStopBits
		}
	case CommunicationParallel:
		if !isParallelPortName(p.ParallelPortName) {
			return ErrInvalidParallelPort
		}
	case CommunicationNetwork:
		if p.NetworkAddress == "" || p.NetworkPort <= 0 {
			return ErrMissingNetworkTarget
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedCommunicationType, p.CommunicationType)
	}
	return nil
}
