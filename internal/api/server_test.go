package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thereceipt/label-dispatch/internal/notify"
	"github.com/thereceipt/label-dispatch/internal/printer"
	"github.com/thereceipt/label-dispatch/internal/registry"
)

type staticDevices []printer.UsbDevice

func (s staticDevices) Devices() ([]printer.UsbDevice, error) { return s, nil }

type noPorts struct{}

func (noPorts) Entries() ([]printer.PortEntry, error) { return nil, nil }

type staticHistory []notify.Message

func (h staticHistory) History(ctx context.Context, n int64) ([]notify.Message, error) {
	return h, nil
}

func newTestServer(t *testing.T, opts ...Option) *Server {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)

	usb := &printer.UsbTransport{
		VendorID: printer.ZebraVendorID,
		Devices:  staticDevices{{VendorID: 0x0A5F, ProductID: 0x00AB, SerialNumber: "JJK1", Path: "/dev/usb/lp0"}},
		Ports:    noPorts{},
		Queues:   printer.QueueMap{"ZDesigner": "USB001"},
		Log:      log,
	}
	dispatcher := printer.NewDispatcher(printer.WithLogger(log), printer.WithUsbTransport(usb))

	reg, err := registry.New(filepath.Join(t.TempDir(), "profiles.json"), log)
	require.NoError(t, err)

	s := NewServer(dispatcher, reg, log, opts...)
	s.serialPorts = func() ([]printer.SerialPort, error) {
		return []printer.SerialPort{{Name: "COM4"}}, nil
	}
	return s
}

// listenPrinter reads want bytes from each connection and answers with reply
func listenPrinter(t *testing.T, want int, reply string) (printer.ConnectionProfile, <-chan string) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	received := make(chan string, 8)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			buf := make([]byte, want)
			n, _ := io.ReadFull(conn, buf)
			received <- string(buf[:n])
			if reply != "" {
				conn.Write([]byte(reply))
			}
			conn.Close()
		}
	}()

	host, port, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)
	return printer.NewNetworkProfile(host, p), received
}

func do(t *testing.T, s *Server, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var decoded map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &decoded)
	return rec, decoded
}

func TestHealth(t *testing.T) {
	rec, body := do(t, newTestServer(t), "GET", "/health", nil)
	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestProfilesCRUD(t *testing.T) {
	s := newTestServer(t)

	rec, body := do(t, s, "POST", "/profiles", map[string]interface{}{
		"name":    "dock",
		"profile": printer.NewNetworkProfile("10.0.0.7", 9100),
	})
	require.Equal(t, 200, rec.Code, rec.Body.String())
	id := body["profile_id"].(string)

	rec, body = do(t, s, "GET", "/profiles/dock", nil)
	require.Equal(t, 200, rec.Code)
	assert.Equal(t, id, body["id"])

	rec, _ = do(t, s, "PUT", "/profiles/"+id, printer.NewNetworkProfile("10.0.0.8", 9100))
	require.Equal(t, 200, rec.Code, rec.Body.String())

	rec, _ = do(t, s, "POST", "/profiles/"+id+"/name", map[string]string{"name": "yard"})
	require.Equal(t, 200, rec.Code)

	rec, body = do(t, s, "GET", "/profiles", nil)
	require.Equal(t, 200, rec.Code)
	profiles := body["profiles"].([]interface{})
	require.Len(t, profiles, 1)
	entry := profiles[0].(map[string]interface{})
	assert.Equal(t, "yard", entry["name"])
	assert.Equal(t, "10.0.0.8", entry["profile"].(map[string]interface{})["network_address"])

	rec, _ = do(t, s, "DELETE", "/profiles/"+id, nil)
	assert.Equal(t, 200, rec.Code)
	rec, _ = do(t, s, "DELETE", "/profiles/"+id, nil)
	assert.Equal(t, 404, rec.Code)
}

func TestAddProfile_Invalid(t *testing.T) {
	s := newTestServer(t)

	rec, body := do(t, s, "POST", "/profiles", map[string]interface{}{
		"profile": printer.NewSerialProfile("COM1", 9600, printer.StopBitsNone, 8, printer.FlowNone, printer.ParityNone),
	})
	assert.Equal(t, 400, rec.Code)
	assert.Equal(t, "invalid stop bits", body["error"])

	rec, _ = do(t, s, "POST", "/profiles", map[string]interface{}{
		"profile": map[string]interface{}{"communication_type": "carrier-pigeon"},
	})
	assert.Equal(t, 400, rec.Code)
}

func TestDispatch_InlineProfile(t *testing.T) {
	s := newTestServer(t)
	profile, received := listenPrinter(t, 3, "OK\r\n")

	rec, body := do(t, s, "POST", "/dispatch", map[string]interface{}{
		"profile":           profile,
		"commands":          "~HS",
		"wait_for_response": true,
	})

	require.Equal(t, 200, rec.Code, rec.Body.String())
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "OK\r\n", body["message"])
	assert.EqualValues(t, 3, body["bytes_sent"])
	assert.Equal(t, "~HS", <-received)
}

func TestDispatch_SavedProfileCopies(t *testing.T) {
	s := newTestServer(t)
	profile, received := listenPrinter(t, 18, "")
	id := s.registry.Register(profile, "dock")

	rec, body := do(t, s, "POST", "/dispatch", map[string]interface{}{
		"profile_id": id,
		"commands":   "^XA^XZ",
		"copies":     3,
	})

	require.Equal(t, 200, rec.Code, rec.Body.String())
	assert.EqualValues(t, 18, body["bytes_sent"])
	assert.Equal(t, "^XA^XZ^XA^XZ^XA^XZ", <-received)
}

func TestDispatch_Failures(t *testing.T) {
	s := newTestServer(t)

	rec, body := do(t, s, "POST", "/dispatch", map[string]interface{}{
		"profile":  printer.NewNetworkProfile("127.0.0.1", 9100),
		"commands": "",
	})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "no command to execute", body["message"])

	rec, body = do(t, s, "POST", "/dispatch", map[string]interface{}{
		"profile":  printer.ConnectionProfile{CommunicationType: printer.CommunicationStream},
		"commands": "^XA^XZ",
	})
	assert.Equal(t, 400, rec.Code)
	assert.Contains(t, body["error"], "unsupported communication type")

	rec, _ = do(t, s, "POST", "/dispatch", map[string]interface{}{
		"profile_id": "missing",
		"commands":   "^XA^XZ",
	})
	assert.Equal(t, 404, rec.Code)

	rec, _ = do(t, s, "POST", "/dispatch", map[string]interface{}{"commands": "^XA^XZ"})
	assert.Equal(t, 400, rec.Code)
}

func TestMemory(t *testing.T) {
	s := newTestServer(t)
	profile, _ := listenPrinter(t, len("^XA^HWE:^XZ"), "- DIR E:*.*\r\n-   4096 bytes free\r\n")
	id := s.registry.Register(profile, "")

	rec, body := do(t, s, "GET", "/memory/"+id+"?type=E", nil)

	require.Equal(t, 200, rec.Code, rec.Body.String())
	assert.EqualValues(t, 4096, body["free_bytes"])

	rec, _ = do(t, s, "GET", "/memory/"+id+"?type=X", nil)
	assert.Equal(t, 400, rec.Code)
}

func TestDiscovery(t *testing.T) {
	s := newTestServer(t)

	rec, body := do(t, s, "GET", "/devices/usb", nil)
	require.Equal(t, 200, rec.Code)
	assert.Len(t, body["devices"], 1)

	rec, body = do(t, s, "GET", "/ports/serial", nil)
	require.Equal(t, 200, rec.Code)
	assert.Len(t, body["ports"], 1)

	rec, body = do(t, s, "GET", "/queues", nil)
	require.Equal(t, 200, rec.Code)
	assert.Len(t, body["queues"], 1)
}

func TestSerialPorts_Error(t *testing.T) {
	s := newTestServer(t)
	s.serialPorts = func() ([]printer.SerialPort, error) { return nil, errors.New("enumeration failed") }

	rec, body := do(t, s, "GET", "/ports/serial", nil)
	assert.Equal(t, 500, rec.Code)
	assert.Equal(t, "enumeration failed", body["error"])
}

func TestRaw_Validation(t *testing.T) {
	s := newTestServer(t)

	rec, _ := do(t, s, "POST", "/raw", map[string]string{})
	assert.Equal(t, 400, rec.Code)

	rec, _ = do(t, s, "POST", "/raw", map[string]string{"printer_name": "Zebra"})
	assert.Equal(t, 400, rec.Code)
}

func TestCommand(t *testing.T) {
	s := newTestServer(t)

	rec, body := do(t, s, "POST", "/command", map[string]string{"command": "profile add-usb ZDesigner --name=front"})
	require.Equal(t, 200, rec.Code, rec.Body.String())
	assert.NotEmpty(t, body["profile_id"])

	rec, body = do(t, s, "POST", "/command", map[string]string{"command": "bogus"})
	assert.Equal(t, 400, rec.Code)
	assert.Contains(t, body["error"], "unknown command")

	rec, _ = do(t, s, "POST", "/command", map[string]string{})
	assert.Equal(t, 400, rec.Code)
}

func TestMetricsAndEvents(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "label_dispatch_dispatches_total 0\n")
	})
	history := staticHistory{{Kind: "dispatch", Target: "LPT1"}}
	s := newTestServer(t, WithMetrics(metrics), WithHistory(history))

	rec, _ := do(t, s, "GET", "/metrics", nil)
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "label_dispatch_dispatches_total")

	rec, body := do(t, s, "GET", "/events?limit=5", nil)
	require.Equal(t, 200, rec.Code)
	assert.Len(t, body["events"], 1)
}

func TestCORSPreflight(t *testing.T) {
	rec, _ := do(t, newTestServer(t), "OPTIONS", "/dispatch", nil)
	assert.Equal(t, 204, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func dialWS(t *testing.T, s *Server) *websocket.Conn {
	t.Helper()

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return s.Hub().Len() == 1 }, time.Second, 10*time.Millisecond)
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn, event string) WSMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var msg WSMessage
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Event == event {
			return msg
		}
	}
}

func TestWebSocket_Dispatch(t *testing.T) {
	s := newTestServer(t)
	profile, received := listenPrinter(t, 6, "")
	conn := dialWS(t, s)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"event": EventDispatch,
		"data":  map[string]interface{}{"profile": profile, "commands": "^XA^XZ"},
	}))

	msg := readEvent(t, conn, EventResponse)
	assert.Equal(t, true, msg.Data["success"])
	assert.EqualValues(t, 6, msg.Data["bytes_sent"])
	assert.Equal(t, "^XA^XZ", <-received)
}

func TestWebSocket_Broadcasts(t *testing.T) {
	s := newTestServer(t)
	conn := dialWS(t, s)

	s.BroadcastDevice(printer.DeviceEvent{Attached: true, Device: printer.UsbDevice{VendorID: 0x0A5F, Path: "/dev/usb/lp0"}})
	msg := readEvent(t, conn, EventUsbAttached)
	assert.Equal(t, "/dev/usb/lp0", msg.Data["path"])

	_, err := s.dispatcher.Dispatch("^XA^XZ", printer.NewParallelProfile("COM1", 1), false)
	require.NoError(t, err)
	msg = readEvent(t, conn, EventDispatchResult)
	assert.Equal(t, "parallel", msg.Data["transport"])
	assert.Equal(t, false, msg.Data["success"])
}

func TestWebSocket_UnknownEvent(t *testing.T) {
	s := newTestServer(t)
	conn := dialWS(t, s)

	require.NoError(t, conn.WriteJSON(WSMessage{Event: "print", Data: map[string]interface{}{}}))

	msg := readEvent(t, conn, EventError)
	assert.Equal(t, "unknown event: print", msg.Data["error"])
}

func TestShutdownClosesClients(t *testing.T) {
	s := newTestServer(t)
	conn := dialWS(t, s)

	require.NoError(t, s.Shutdown(context.Background()))
	assert.Equal(t, 0, s.Hub().Len())

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}
