//go:build !windows

package printer

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/google/gousb"
)

var (
	sysUsbDevices = "/sys/bus/usb/devices"
	sysUsbmisc    = "/sys/class/usbmisc"
)

// devicePath resolves the usblp character device bound to the device, e.g.
// bus 1 port path [1 4] -> /sys/bus/usb/devices/1-1.4:1.0/usbmisc/lp0 ->
// /dev/usb/lp0. Devices without a usblp binding get an empty path.
func devicePath(desc *gousb.DeviceDesc, serial string) string {
	if len(desc.Path) == 0 {
		return ""
	}
	ports := make([]string, len(desc.Path))
	for i, p := range desc.Path {
		ports[i] = strconv.Itoa(p)
	}
	name := fmt.Sprintf("%d-%s", desc.Bus, strings.Join(ports, "."))

	matches, _ := filepath.Glob(filepath.Join(sysUsbDevices, name+":*", "usbmisc", "lp*"))
	if len(matches) == 0 {
		return ""
	}
	sort.Strings(matches)
	return filepath.Join("/dev/usb", filepath.Base(matches[0]))
}

type sysfsPorts struct{}

func defaultPortRegistry() PortRegistry { return sysfsPorts{} }

// Entries builds port registry keys from the usblp class: lpN is port N+1,
// keyed by the parent device's vendor/product/serial like the Windows
// port-class keys.
func (sysfsPorts) Entries() ([]PortEntry, error) {
	if _, err := os.Stat(sysUsbmisc); os.IsNotExist(err) {
		return nil, nil
	} else if err != nil {
		return nil, wrapError(ErrRegistryAccess, err)
	}

	classes, err := filepath.Glob(filepath.Join(sysUsbmisc, "lp*"))
	if err != nil {
		return nil, wrapError(ErrRegistryAccess, err)
	}

	var entries []PortEntry
	for _, class := range classes {
		index, err := strconv.Atoi(strings.TrimPrefix(filepath.Base(class), "lp"))
		if err != nil {
			continue
		}
		iface, err := filepath.EvalSymlinks(filepath.Join(class, "device"))
		if err != nil {
			continue
		}
		parent := filepath.Dir(iface)

		vendor, err1 := strconv.ParseUint(readTrim(filepath.Join(parent, "idVendor")), 16, 16)
		product, err2 := strconv.ParseUint(readTrim(filepath.Join(parent, "idProduct")), 16, 16)
		serial := readTrim(filepath.Join(parent, "serial"))
		if err1 != nil || err2 != nil || serial == "" {
			continue
		}

		entries = append(entries, PortEntry{
			Key:        "USB#" + PortKeyFragment(uint16(vendor), uint16(product), serial),
			PortNumber: index + 1,
		})
	}
	return entries, nil
}

func readTrim(path string) string {
	b, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

// Without a spooler registry the queue to port bindings come from
// configuration; see QueueMap.
func defaultQueueLister() QueueLister { return QueueMap{} }

type fileOpener struct{}

func defaultHandleOpener() HandleOpener { return fileOpener{} }

func (fileOpener) OpenWrite(path string) (io.WriteCloser, error) {
	return os.OpenFile(path, os.O_WRONLY, 0)
}

func (fileOpener) OpenRead(path string) (io.ReadCloser, error) {
	return os.Open(path)
}
