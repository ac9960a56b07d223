//go:build windows

package printer

import (
	"errors"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	winspool = windows.NewLazySystemDLL("winspool.drv")

	procOpenPrinter      = winspool.NewProc("OpenPrinterW")
	procClosePrinter     = winspool.NewProc("ClosePrinter")
	procStartDocPrinter  = winspool.NewProc("StartDocPrinterW")
	procEndDocPrinter    = winspool.NewProc("EndDocPrinter")
	procStartPagePrinter = winspool.NewProc("StartPagePrinter")
	procEndPagePrinter   = winspool.NewProc("EndPagePrinter")
	procWritePrinter     = winspool.NewProc("WritePrinter")
)

type docInfo1 struct {
	docName    *uint16
	outputFile *uint16
	datatype   *uint16
}

func spoolRaw(queue, document string, data []byte) (int, error) {
	name, err := windows.UTF16PtrFromString(queue)
	if err != nil {
		return 0, err
	}

	var handle windows.Handle
	if r, _, e := procOpenPrinter.Call(uintptr(unsafe.Pointer(name)), uintptr(unsafe.Pointer(&handle)), 0); r == 0 {
		return 0, spoolError(e)
	}
	defer procClosePrinter.Call(uintptr(handle))

	docName, _ := windows.UTF16PtrFromString(document)
	datatype, _ := windows.UTF16PtrFromString("RAW")
	info := docInfo1{docName: docName, datatype: datatype}

	if r, _, e := procStartDocPrinter.Call(uintptr(handle), 1, uintptr(unsafe.Pointer(&info))); r == 0 {
		return 0, spoolError(e)
	}
	defer procEndDocPrinter.Call(uintptr(handle))

	if r, _, e := procStartPagePrinter.Call(uintptr(handle)); r == 0 {
		return 0, spoolError(e)
	}
	defer procEndPagePrinter.Call(uintptr(handle))

	if len(data) == 0 {
		return 0, nil
	}

	var written uint32
	r, _, e := procWritePrinter.Call(
		uintptr(handle),
		uintptr(unsafe.Pointer(&data[0])),
		uintptr(len(data)),
		uintptr(unsafe.Pointer(&written)),
	)
	if r == 0 {
		return int(written), spoolError(e)
	}
	return int(written), nil
}

func spoolError(err error) error {
	var errno windows.Errno
	if errors.As(err, &errno) {
		return &SpoolError{Code: int(errno)}
	}
	return &SpoolError{Code: -1}
}
