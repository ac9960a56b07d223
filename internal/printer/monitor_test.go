package printer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitor_Poll(t *testing.T) {
	enum := &fakeEnumerator{devices: []UsbDevice{zebraDevice()}}
	m := NewMonitor(enum, time.Hour, testLogger())

	var seen []DeviceEvent
	m.OnChange(func(ev DeviceEvent) { seen = append(seen, ev) })

	events := m.Poll()
	require.Len(t, events, 1)
	assert.True(t, events[0].Attached)

	assert.Empty(t, m.Poll())

	enum.set()
	events = m.Poll()
	require.Len(t, events, 1)
	assert.False(t, events[0].Attached)
	assert.Equal(t, zebraPath, events[0].Device.Path)

	assert.Len(t, seen, 2)
}

func TestMonitor_StartSkipsInitialDevices(t *testing.T) {
	enum := &fakeEnumerator{devices: []UsbDevice{zebraDevice()}}
	m := NewMonitor(enum, 10*time.Millisecond, testLogger())

	events := make(chan DeviceEvent, 4)
	m.OnChange(func(ev DeviceEvent) { events <- ev })

	m.Start(context.Background())
	defer m.Stop()
	assert.Equal(t, 1, m.Len())

	other := UsbDevice{VendorID: 0x0A5F, ProductID: 0x0100, SerialNumber: "B2", Path: "/dev/usb/lp1"}
	enum.set(zebraDevice(), other)

	select {
	case ev := <-events:
		assert.True(t, ev.Attached)
		assert.Equal(t, "/dev/usb/lp1", ev.Device.Path)
	case <-time.After(time.Second):
		t.Fatal("no attach event")
	}
}
