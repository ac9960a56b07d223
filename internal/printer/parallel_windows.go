//go:build windows

package printer

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/windows"
)

// openParallelPort opens an existing LPT device with no sharing
func openParallelPort(portName string) (io.WriteCloser, error) {
	name, err := windows.UTF16PtrFromString(portName)
	if err != nil {
		return nil, err
	}

	handle, err := windows.CreateFile(
		name,
		windows.GENERIC_READ|windows.GENERIC_WRITE,
		0,
		nil,
		windows.OPEN_EXISTING,
		0,
		0,
	)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", portName, err)
	}

	return os.NewFile(uintptr(handle), portName), nil
}
