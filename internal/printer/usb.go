package printer

import (
	"fmt"

	"github.com/google/gousb"
)

// GousbEnumerator lists attached USB devices through libusb
type GousbEnumerator struct{}

// Devices opens every attached device long enough to read its serial number
// and resolve the path used for raw I/O.
func (GousbEnumerator) Devices() ([]UsbDevice, error) {
	ctx := gousb.NewContext()
	defer ctx.Close()

	// OpenDevices reports devices it could not open in err but still returns
	// the ones it did
	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return true
	})

	devices := make([]UsbDevice, 0, len(devs))
	for _, dev := range devs {
		serial, _ := dev.SerialNumber()
		devices = append(devices, UsbDevice{
			VendorID:     uint16(dev.Desc.Vendor),
			ProductID:    uint16(dev.Desc.Product),
			SerialNumber: serial,
			Path:         devicePath(dev.Desc, serial),
		})
		dev.Close()
	}

	if err != nil {
		return devices, fmt.Errorf("failed to enumerate USB devices: %w", err)
	}
	return devices, nil
}
