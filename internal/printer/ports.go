package printer

import (
	"sort"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// SerialPort is one serial port present on the system
type SerialPort struct {
	Name         string `json:"name"`
	IsUSB        bool   `json:"is_usb"`
	VendorID     string `json:"vendor_id,omitempty"`
	ProductID    string `json:"product_id,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`
}

// ListSerialPorts returns the serial ports of the system sorted by name.
// USB adapters carry their vendor and product when the OS reports them.
func ListSerialPorts() ([]SerialPort, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err == nil && len(details) > 0 {
		ports := make([]SerialPort, 0, len(details))
		for _, d := range details {
			ports = append(ports, SerialPort{
				Name:         d.Name,
				IsUSB:        d.IsUSB,
				VendorID:     d.VID,
				ProductID:    d.PID,
				SerialNumber: d.SerialNumber,
			})
		}
		sort.Slice(ports, func(i, j int) bool { return ports[i].Name < ports[j].Name })
		return ports, nil
	}

	names, err := serial.GetPortsList()
	if err != nil {
		return nil, err
	}
	sort.Strings(names)

	ports := make([]SerialPort, len(names))
	for i, name := range names {
		ports[i] = SerialPort{Name: name}
	}
	return ports, nil
}
