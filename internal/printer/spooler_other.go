//go:build !windows

package printer

import (
	"bytes"
	"errors"
	"os/exec"
)

// spoolRaw hands the payload to CUPS unfiltered
func spoolRaw(queue, document string, data []byte) (int, error) {
	cmd := exec.Command("lp", "-d", queue, "-t", document, "-o", "raw")
	cmd.Stdin = bytes.NewReader(data)

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return 0, &SpoolError{Code: exitErr.ExitCode()}
		}
		return 0, &SpoolError{Code: -1}
	}
	return len(data), nil
}
