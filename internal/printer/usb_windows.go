//go:build windows

package printer

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/gousb"
	"golang.org/x/sys/windows"
	"golang.org/x/sys/windows/registry"
)

const (
	// GUID_DEVINTERFACE_USB_DEVICE
	usbDeviceInterfaceGUID = "{a5dcbf10-6530-11d2-901f-00c04fb951ed}"
	// Port-class device interfaces; each subkey records a "Port Number"
	portDeviceClassesKey = `SYSTEM\CurrentControlSet\Control\DeviceClasses\{28d78fad-5a12-11d1-ae5b-0000f803a8c2}`
	printersKey          = `SYSTEM\CurrentControlSet\Control\Print\Printers`
)

func devicePath(desc *gousb.DeviceDesc, serial string) string {
	return fmt.Sprintf(`\\?\usb#vid_%04x&pid_%04x#%s#%s`,
		uint16(desc.Vendor), uint16(desc.Product), strings.ToLower(serial), usbDeviceInterfaceGUID)
}

type registryPorts struct{}

func defaultPortRegistry() PortRegistry { return registryPorts{} }

// Entries reads the port-class subtree. A missing or unreadable root key is
// reported as ErrRegistryAccess.
func (registryPorts) Entries() ([]PortEntry, error) {
	root, err := registry.OpenKey(registry.LOCAL_MACHINE, portDeviceClassesKey, registry.ENUMERATE_SUB_KEYS)
	if err != nil {
		return nil, wrapError(ErrRegistryAccess, err)
	}
	defer root.Close()

	names, err := root.ReadSubKeyNames(-1)
	if err != nil {
		return nil, wrapError(ErrRegistryAccess, err)
	}

	entries := make([]PortEntry, 0, len(names))
	for _, name := range names {
		params, err := registry.OpenKey(root, name+`\#\Device Parameters`, registry.QUERY_VALUE)
		if err != nil {
			continue
		}
		port, _, err := params.GetIntegerValue("Port Number")
		params.Close()
		if err != nil {
			continue
		}
		entries = append(entries, PortEntry{Key: name, PortNumber: int(port)})
	}
	return entries, nil
}

type registryQueues struct{}

func defaultQueueLister() QueueLister { return registryQueues{} }

// Queues lists local printers and the port each one prints to
func (registryQueues) Queues() ([]PrintQueue, error) {
	root, err := registry.OpenKey(registry.LOCAL_MACHINE, printersKey, registry.ENUMERATE_SUB_KEYS)
	if err != nil {
		return nil, err
	}
	defer root.Close()

	names, err := root.ReadSubKeyNames(-1)
	if err != nil {
		return nil, err
	}

	queues := make([]PrintQueue, 0, len(names))
	for _, name := range names {
		k, err := registry.OpenKey(root, name, registry.QUERY_VALUE)
		if err != nil {
			continue
		}
		port, _, err := k.GetStringValue("Port")
		k.Close()
		if err != nil && !errors.Is(err, registry.ErrNotExist) {
			continue
		}
		queues = append(queues, PrintQueue{Name: name, PortName: port})
	}
	return queues, nil
}

type createFileOpener struct{}

func defaultHandleOpener() HandleOpener { return createFileOpener{} }

func (createFileOpener) OpenWrite(path string) (io.WriteCloser, error) {
	h, err := openDeviceHandle(path, windows.GENERIC_WRITE, windows.FILE_SHARE_WRITE)
	if err != nil {
		return nil, err
	}
	return h, nil
}

func (createFileOpener) OpenRead(path string) (io.ReadCloser, error) {
	h, err := openDeviceHandle(path, windows.GENERIC_READ, windows.FILE_SHARE_READ)
	if err != nil {
		return nil, err
	}
	return h, nil
}

// deviceHandle is a synchronous CreateFile handle. Closing it waits for a
// pending ReadFile, so reads are cancelled with CancelIoEx first.
type deviceHandle struct {
	*os.File
	handle windows.Handle
}

func (h *deviceHandle) CancelRead() error {
	return windows.CancelIoEx(h.handle, nil)
}

func openDeviceHandle(path string, access, share uint32) (*deviceHandle, error) {
	name, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return nil, err
	}
	handle, err := windows.CreateFile(
		name,
		access,
		share,
		nil,
		windows.OPEN_ALWAYS,
		windows.FILE_FLAG_SEQUENTIAL_SCAN|windows.FILE_ATTRIBUTE_NORMAL,
		0,
	)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &deviceHandle{File: os.NewFile(uintptr(handle), path), handle: handle}, nil
}
