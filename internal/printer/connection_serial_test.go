package printer

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tarm/serial"
)

func newTestSerialTransport(port *recorder, openErr error) (*SerialTransport, *[]*serial.Config) {
	var configs []*serial.Config
	return &SerialTransport{
		open: func(c *serial.Config) (io.ReadWriteCloser, error) {
			configs = append(configs, c)
			if openErr != nil {
				return nil, openErr
			}
			return port, nil
		},
		log: testLogger(),
	}, &configs
}

func TestSerialSend(t *testing.T) {
	port := &recorder{}
	transport, configs := newTestSerialTransport(port, nil)

	profile := NewSerialProfile("COM3", 19200, StopBitsOne, 8, FlowNone, ParityEven)
	profile.Copies = 2
	result := transport.Send("^XA^FDHi^XZ", profile)

	require.True(t, result.Success, result.Message)
	assert.EqualValues(t, 22, result.BytesSent)
	assert.Equal(t, "^XA^FDHi^XZ^XA^FDHi^XZ", port.String())
	assert.True(t, port.closed)

	require.Len(t, *configs, 1)
	config := (*configs)[0]
	assert.Equal(t, "COM3", config.Name)
	assert.Equal(t, 19200, config.Baud)
	assert.Equal(t, serial.ParityEven, config.Parity)
	assert.Equal(t, serial.Stop1, config.StopBits)
}

func TestSerialSend_StopBitsNone(t *testing.T) {
	transport, configs := newTestSerialTransport(&recorder{}, nil)

	profile := NewSerialProfile("COM1", 9600, StopBitsNone, 8, FlowXOnXOff, ParityNone)
	result := transport.Send("^XA^XZ", profile)

	assert.False(t, result.Success)
	assert.ErrorIs(t, result.Err, ErrInvalidStopBits)
	assert.Equal(t, "invalid stop bits", result.Message)
	assert.Empty(t, *configs, "port must not be opened")
}

func TestSerialSend_InvalidSettings(t *testing.T) {
	transport, configs := newTestSerialTransport(&recorder{}, nil)

	result := transport.Send("^XA^XZ", NewSerialProfile("", 9600, StopBitsOne, 8, FlowNone, ParityNone))
	assert.ErrorIs(t, result.Err, ErrInvalidSerialSettings)

	result = transport.Send("^XA^XZ", NewSerialProfile("COM1", -1, StopBitsOne, 8, FlowNone, ParityNone))
	assert.ErrorIs(t, result.Err, ErrInvalidSerialSettings)

	assert.Empty(t, *configs)
}

func TestSerialSend_OpenFailure(t *testing.T) {
	transport, _ := newTestSerialTransport(nil, errors.New("port busy"))

	result := transport.Send("^XA^XZ", NewSerialProfile("COM1", 9600, StopBitsOne, 8, FlowNone, ParityNone))

	assert.False(t, result.Success)
	assert.ErrorIs(t, result.Err, ErrConnectionFailed)
	assert.Contains(t, result.Message, "port busy")
}

func TestSerialSend_WriteFailure(t *testing.T) {
	port := &recorder{err: errors.New("device removed")}
	transport, _ := newTestSerialTransport(port, nil)

	result := transport.Send("^XA^XZ", NewSerialProfile("COM1", 9600, StopBitsOne, 8, FlowNone, ParityNone))

	assert.False(t, result.Success)
	assert.ErrorIs(t, result.Err, ErrWriteFailed)
	assert.True(t, port.closed)
}

func TestSerialConfig_Defaults(t *testing.T) {
	profile := NewSerialProfile("/dev/ttyUSB0", 0, StopBitsTwo, 0, FlowNone, ParityMark)
	config := serialConfig(profile)

	assert.Equal(t, DefaultSerialBaudRate, config.Baud)
	assert.EqualValues(t, DefaultSerialDataBits, config.Size)
	assert.Equal(t, serial.Stop2, config.StopBits)
	assert.Equal(t, serial.ParityMark, config.Parity)
}
