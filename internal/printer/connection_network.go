package printer

import (
	"bytes"
	"errors"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// drainWindow is how long a response read waits for more bytes once the
// printer has started answering. Silence for this long means nothing more is
// buffered.
const drainWindow = 50 * time.Millisecond

// NetworkTransport writes command streams to a raw TCP printer port
type NetworkTransport struct {
	dial func(network, address string, timeout time.Duration) (net.Conn, error)
	log  logrus.FieldLogger
}

// NewNetworkTransport creates a TCP transport
func NewNetworkTransport(log logrus.FieldLogger) *NetworkTransport {
	return &NetworkTransport{
		dial: net.DialTimeout,
		log:  log,
	}
}

// Send writes commands profile.Copies times over one connection and, when
// waitForResponse is set, drains what the printer sends back.
func (t *NetworkTransport) Send(commands string, profile ConnectionProfile, waitForResponse bool) *Result {
	if commands == "" {
		return failure(ErrNoCommand)
	}
	if profile.NetworkAddress == "" || profile.NetworkPort <= 0 {
		return failure(ErrMissingNetworkTarget)
	}

	data, err := encodeCommands(commands, profile.Encoding, charsetUTF8)
	if err != nil {
		return failure(err)
	}

	timeout := profile.NetworkTimeout()
	address := net.JoinHostPort(profile.NetworkAddress, strconv.Itoa(profile.NetworkPort))
	log := t.log.WithFields(logrus.Fields{
		"transport": "network",
		"address":   address,
	})

	conn, err := t.dial("tcp", address, timeout)
	if err != nil {
		return failuref(ErrConnectionFailed, "%v", err)
	}
	defer shutdown(conn)

	result := &Result{}
	for i := 0; i < profile.CopyCount(); i++ {
		n, err := conn.Write(data)
		result.BytesSent += int64(n)
		if err != nil {
			res := failuref(ErrWriteFailed, "%v", err)
			res.BytesSent = result.BytesSent
			return res
		}
	}

	if waitForResponse {
		response, err := readResponse(conn, timeout)
		result.BytesReceived = int64(len(response))
		if err != nil {
			res := failure(err)
			res.BytesSent = result.BytesSent
			res.BytesReceived = result.BytesReceived
			return res
		}
		result.Message = string(response)
	}

	result.Success = true
	log.WithFields(logrus.Fields{
		"bytes":    result.BytesSent,
		"received": result.BytesReceived,
	}).Debug("network dispatch complete")
	return result
}

// readResponse blocks for the first chunk (bounded by firstWait when set) and
// then keeps reading until the peer closes, sends nothing, or goes quiet.
func readResponse(conn net.Conn, firstWait time.Duration) ([]byte, error) {
	var response bytes.Buffer
	buf := make([]byte, 1024)
	first := true

	for {
		switch {
		case !first:
			conn.SetReadDeadline(time.Now().Add(drainWindow))
		case firstWait > 0:
			conn.SetReadDeadline(time.Now().Add(firstWait))
		}

		n, err := conn.Read(buf)
		response.Write(buf[:n])

		if err != nil {
			if errors.Is(err, io.EOF) {
				return response.Bytes(), nil
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				if first {
					return response.Bytes(), ErrReadTimeout
				}
				return response.Bytes(), nil
			}
			return response.Bytes(), wrapError(ErrReadFailed, err)
		}
		if n == 0 {
			return response.Bytes(), nil
		}
		first = false
	}
}

func shutdown(conn net.Conn) {
	if tcp, ok := conn.(*net.TCPConn); ok {
		tcp.CloseWrite()
	}
	conn.Close()
}
