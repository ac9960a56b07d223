//go:build !windows

package printer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/gousb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSysfs lays out one usblp printer: bus 1 port 4, interface 1-4:1.0, lp2
func fakeSysfs(t *testing.T) {
	t.Helper()
	root := t.TempDir()

	devices := filepath.Join(root, "devices")
	parent := filepath.Join(devices, "1-4")
	iface := filepath.Join(parent, "1-4:1.0")
	require.NoError(t, os.MkdirAll(filepath.Join(iface, "usbmisc", "lp2"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(parent, "idVendor"), []byte("0a5f\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(parent, "idProduct"), []byte("00ab\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(parent, "serial"), []byte("JJK011718\n"), 0o644))

	class := filepath.Join(root, "class", "usbmisc", "lp2")
	require.NoError(t, os.MkdirAll(class, 0o755))
	require.NoError(t, os.Symlink(iface, filepath.Join(class, "device")))

	oldDevices, oldClass := sysUsbDevices, sysUsbmisc
	sysUsbDevices, sysUsbmisc = devices, filepath.Dir(class)
	t.Cleanup(func() { sysUsbDevices, sysUsbmisc = oldDevices, oldClass })
}

func TestSysfsPorts(t *testing.T) {
	fakeSysfs(t)

	entries, err := sysfsPorts{}.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "USB#VID_0A5F&PID_00AB#JJK011718", entries[0].Key)
	assert.Equal(t, 3, entries[0].PortNumber)

	dev := UsbDevice{VendorID: 0x0A5F, ProductID: 0x00AB, SerialNumber: "JJK011718"}
	port, ok := ResolvePortName(dev, entries)
	assert.True(t, ok)
	assert.Equal(t, "USB003", port)
}

func TestSysfsPorts_NoClass(t *testing.T) {
	old := sysUsbmisc
	sysUsbmisc = filepath.Join(t.TempDir(), "missing")
	defer func() { sysUsbmisc = old }()

	entries, err := sysfsPorts{}.Entries()
	assert.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDevicePath(t *testing.T) {
	fakeSysfs(t)

	assert.Equal(t, "/dev/usb/lp2", devicePath(&gousb.DeviceDesc{Bus: 1, Path: []int{4}}, "JJK011718"))
	assert.Empty(t, devicePath(&gousb.DeviceDesc{Bus: 2, Path: []int{1}}, ""))
	assert.Empty(t, devicePath(&gousb.DeviceDesc{Bus: 1}, ""))
}
