package printer

import (
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// MemoryType is the storage device letter of a label printer
type MemoryType byte

const (
	MemoryCompactFlash MemoryType = 'A'
	MemoryCard         MemoryType = 'B'
	MemoryFlash        MemoryType = 'E'
	MemoryDRAM         MemoryType = 'R'
)

// ErrMemoryNotReported is returned when the directory listing carries no free
// space line
var ErrMemoryNotReported = errors.New("printer did not report free memory")

var freeMemoryPattern = regexp.MustCompile(`-\s+(\d+) bytes free`)

func (m MemoryType) String() string {
	return string(rune(m))
}

// ParseMemoryType accepts a device letter such as "E" or "e:"
func ParseMemoryType(s string) (MemoryType, error) {
	s = strings.TrimSuffix(strings.ToUpper(strings.TrimSpace(s)), ":")
	if len(s) == 1 {
		switch m := MemoryType(s[0]); m {
		case MemoryCompactFlash, MemoryCard, MemoryFlash, MemoryDRAM:
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown memory type: %q", s)
}

func directoryCommand(memory MemoryType) string {
	return fmt.Sprintf("^XA^HW%c:^XZ", byte(memory))
}

// ListMemory asks the printer for the directory of memory and returns the
// listing text.
func (d *Dispatcher) ListMemory(profile ConnectionProfile, memory MemoryType) (string, error) {
	result, err := d.Dispatch(directoryCommand(memory), profile, true)
	if err != nil {
		return "", err
	}
	if !result.Success {
		return "", result.Err
	}
	return result.Message, nil
}

// FreeMemory returns the free bytes of memory as reported in its directory
// listing
func (d *Dispatcher) FreeMemory(profile ConnectionProfile, memory MemoryType) (int64, error) {
	listing, err := d.ListMemory(profile, memory)
	if err != nil {
		return -1, err
	}
	return ParseFreeMemory(listing)
}

// ParseFreeMemory extracts N from the "- N bytes free" line of a listing
func ParseFreeMemory(listing string) (int64, error) {
	match := freeMemoryPattern.FindStringSubmatch(listing)
	if match == nil {
		return -1, ErrMemoryNotReported
	}
	free, err := strconv.ParseInt(match[1], 10, 64)
	if err != nil {
		return -1, fmt.Errorf("parse free memory %q: %w", match[1], err)
	}
	return free, nil
}

// UploadFont stores a TrueType font on the printer under name. When
// waitForResponse is set the directory of memory is requested afterwards so
// the Result message confirms the upload.
func (d *Dispatcher) UploadFont(font []byte, name string, memory MemoryType, profile ConnectionProfile, waitForResponse bool) (*Result, error) {
	commands := fmt.Sprintf("~DU%c:%s.FNT,%d,%s", byte(memory), name, len(font), strings.ToUpper(hex.EncodeToString(font)))
	if waitForResponse {
		commands += directoryCommand(memory)
	}
	return d.Dispatch(commands, profile, waitForResponse)
}

// InstalledPrinters lists the print queues known to the USB transport
func (d *Dispatcher) InstalledPrinters() ([]PrintQueue, error) {
	return d.usb.Queues.Queues()
}
