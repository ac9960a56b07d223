package printer

import (
	"fmt"
	"io"
	"strings"
)

// ZebraVendorID is the USB vendor matched when no other vendor is configured
const ZebraVendorID uint16 = 0x0A5F

// UsbDevice is one attached USB device as seen during a single dispatch.
// Values are never cached between dispatches.
type UsbDevice struct {
	VendorID     uint16 `json:"vendor_id"`
	ProductID    uint16 `json:"product_id"`
	SerialNumber string `json:"serial_number,omitempty"`
	Path         string `json:"path"`
	// PortName is the logical port ("USB001") once cross-referenced
	PortName string `json:"port_name,omitempty"`
}

// PortEntry is one key of the OS port-class registry and the port number
// recorded under it
type PortEntry struct {
	Key        string
	PortNumber int
}

// PrintQueue is an installed printer and the port it is bound to
type PrintQueue struct {
	Name     string `json:"name"`
	PortName string `json:"port_name"`
}

// UsbEnumerator lists attached USB devices
type UsbEnumerator interface {
	Devices() ([]UsbDevice, error)
}

// PortRegistry lists the port-class registry entries. Errors are fatal for a
// USB dispatch.
type PortRegistry interface {
	Entries() ([]PortEntry, error)
}

// QueueLister lists installed print queues
type QueueLister interface {
	Queues() ([]PrintQueue, error)
}

// HandleOpener opens raw device handles on a device path
type HandleOpener interface {
	OpenWrite(path string) (io.WriteCloser, error)
	OpenRead(path string) (io.ReadCloser, error)
}

// QueueMap is a QueueLister backed by a fixed printer name to port mapping
type QueueMap map[string]string

// Queues implements QueueLister
func (m QueueMap) Queues() ([]PrintQueue, error) {
	queues := make([]PrintQueue, 0, len(m))
	for name, port := range m {
		queues = append(queues, PrintQueue{Name: name, PortName: port})
	}
	return queues, nil
}

// SerialFromPath extracts the serial number segment that follows
// "&PID_xxxx#" in a device interface path, e.g.
// \\?\usb#vid_0a5f&pid_00ab#jjk011718#{a5dcbf10-...}. It returns "" when the
// path does not carry one.
func SerialFromPath(path string, productID uint16) string {
	upper := strings.ToUpper(path)
	marker := fmt.Sprintf("&PID_%04X#", productID)

	start := strings.Index(upper, marker)
	if start < 0 {
		return ""
	}
	start += len(marker)

	end := strings.Index(upper[start:], "#")
	if end < 0 {
		return upper[start:]
	}
	return upper[start : start+end]
}

// PortKeyFragment is the part of a port registry key identifying a device
func PortKeyFragment(vendorID, productID uint16, serial string) string {
	return fmt.Sprintf("VID_%04X&PID_%04X#%s", vendorID, productID, strings.ToUpper(serial))
}

// LogicalPortName formats a registry port number as "USB001"
func LogicalPortName(portNumber int) string {
	return fmt.Sprintf("USB%03d", portNumber)
}

// ResolvePortName finds the logical port of dev in the registry entries
func ResolvePortName(dev UsbDevice, entries []PortEntry) (string, bool) {
	serial := SerialFromPath(dev.Path, dev.ProductID)
	if serial == "" {
		serial = dev.SerialNumber
	}
	if serial == "" {
		return "", false
	}

	fragment := PortKeyFragment(dev.VendorID, dev.ProductID, serial)
	for _, entry := range entries {
		if strings.Contains(strings.ToUpper(entry.Key), fragment) {
			return LogicalPortName(entry.PortNumber), true
		}
	}
	return "", false
}

func hasVendor(dev UsbDevice, vendorID uint16) bool {
	if dev.VendorID == vendorID {
		return true
	}
	return strings.Contains(strings.ToUpper(dev.Path), fmt.Sprintf("VID_%04X", vendorID))
}

// MatchUsbPrinters returns, in enumeration order, the devices of vendorID
// whose logical port is the port of the print queue named printerName. It has
// no side effects.
func MatchUsbPrinters(devices []UsbDevice, vendorID uint16, entries []PortEntry, queues []PrintQueue, printerName string) []UsbDevice {
	var queuePort string
	found := false
	for _, q := range queues {
		if q.Name == printerName {
			queuePort = q.PortName
			found = true
			break
		}
	}
	if !found {
		return nil
	}

	var matches []UsbDevice
	for _, dev := range devices {
		if !hasVendor(dev, vendorID) {
			continue
		}
		port, ok := ResolvePortName(dev, entries)
		if !ok || !strings.EqualFold(port, queuePort) {
			continue
		}
		dev.PortName = port
		matches = append(matches, dev)
	}
	return matches
}
