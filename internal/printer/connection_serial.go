package printer

import (
	"io"

	"github.com/sirupsen/logrus"
	"github.com/tarm/serial"
)

// SerialTransport writes command streams to an RS-232 port
type SerialTransport struct {
	open func(*serial.Config) (io.ReadWriteCloser, error)
	log  logrus.FieldLogger
}

// NewSerialTransport creates a serial transport backed by tarm/serial
func NewSerialTransport(log logrus.FieldLogger) *SerialTransport {
	return &SerialTransport{
		open: openSerialPort,
		log:  log,
	}
}

func openSerialPort(config *serial.Config) (io.ReadWriteCloser, error) {
	return serial.OpenPort(config)
}

// Send writes commands profile.Copies times to the configured port
func (t *SerialTransport) Send(commands string, profile ConnectionProfile) *Result {
	if commands == "" {
		return failure(ErrNoCommand)
	}
	if profile.SerialPortName == "" || profile.SerialBaudRate < 0 || profile.SerialDataBits < 0 {
		return failure(ErrInvalidSerialSettings)
	}
	if profile.SerialStopBits == StopBitsNone {
		return failure(ErrInvalidStopBits)
	}

	data, err := encodeCommands(commands, profile.Encoding, charsetUTF8)
	if err != nil {
		return failure(err)
	}

	log := t.log.WithFields(logrus.Fields{
		"transport": "serial",
		"port":      profile.SerialPortName,
		"baud":      profile.SerialBaudRate,
	})
	if profile.SerialFlowControl != FlowNone {
		log.Debugf("flow control %s is left to the port driver", profile.SerialFlowControl)
	}

	port, err := t.open(serialConfig(profile))
	if err != nil {
		return failuref(ErrConnectionFailed, "%v", err)
	}
	defer port.Close()

	result := &Result{}
	for i := 0; i < profile.CopyCount(); i++ {
		n, err := port.Write(data)
		result.BytesSent += int64(n)
		if err != nil {
			res := failuref(ErrWriteFailed, "%v", err)
			res.BytesSent = result.BytesSent
			return res
		}
	}

	result.Success = true
	log.WithField("bytes", result.BytesSent).Debug("serial dispatch complete")
	return result
}

func serialConfig(profile ConnectionProfile) *serial.Config {
	baud := profile.SerialBaudRate
	if baud == 0 {
		baud = DefaultSerialBaudRate
	}
	size := profile.SerialDataBits
	if size == 0 {
		size = DefaultSerialDataBits
	}

	config := &serial.Config{
		Name: profile.SerialPortName,
		Baud: baud,
		Size: byte(size),
	}

	switch profile.SerialParity {
	case ParityOdd:
		config.Parity = serial.ParityOdd
	case ParityEven:
		config.Parity = serial.ParityEven
	case ParityMark:
		config.Parity = serial.ParityMark
	case ParitySpace:
		config.Parity = serial.ParitySpace
	default:
		config.Parity = serial.ParityNone
	}

	switch profile.SerialStopBits {
	case StopBitsTwo:
		config.StopBits = serial.Stop2
	case StopBitsOnePointFive:
		config.StopBits = serial.Stop1Half
	default:
		config.StopBits = serial.Stop1
	}

	return config
}
