//go:build unix

package printer

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// parallelDevicePath maps LPT1 to /dev/lp0, LPT2 to /dev/lp1 and so on
func parallelDevicePath(portName string) string {
	n, err := strconv.Atoi(portName[len(parallelPortPrefix):])
	if err != nil || n < 1 {
		return "/dev/" + strings.ToLower(portName)
	}
	return fmt.Sprintf("/dev/lp%d", n-1)
}

// openParallelPort opens an existing device read-write and takes an exclusive
// lock so a second dispatch to the same port fails instead of interleaving.
func openParallelPort(portName string) (io.WriteCloser, error) {
	path := parallelDevicePath(portName)

	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NOCTTY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	if err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}

	return os.NewFile(uintptr(fd), path), nil
}
