package printer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type spoolCall struct {
	queue    string
	document string
	data     []byte
}

func newTestRawQueue(err error) (*RawQueueTransport, *[]spoolCall) {
	var calls []spoolCall
	return &RawQueueTransport{
		spool: func(queue, document string, data []byte) (int, error) {
			calls = append(calls, spoolCall{queue, document, data})
			if err != nil {
				return 0, err
			}
			return len(data), nil
		},
		log: testLogger(),
	}, &calls
}

func TestRawQueue_SendBytes(t *testing.T) {
	transport, calls := newTestRawQueue(nil)

	result := transport.SendBytes("Zebra ZT410", []byte{0x1B, 0x40})

	require.True(t, result.Success)
	assert.EqualValues(t, 2, result.BytesSent)
	require.Len(t, *calls, 1)
	assert.Equal(t, "Zebra ZT410", (*calls)[0].queue)
	assert.Equal(t, "Label print document", (*calls)[0].document)
}

func TestRawQueue_SpoolError(t *testing.T) {
	transport, _ := newTestRawQueue(&SpoolError{Code: 1801})

	result := transport.SendString("Missing", "^XA^XZ")

	assert.False(t, result.Success)
	assert.Equal(t, "error occurred during printing: 1801", result.Message)
	var spoolErr *SpoolError
	require.ErrorAs(t, result.Err, &spoolErr)
	assert.Equal(t, 1801, spoolErr.Code)
}

func TestRawQueue_SendFile(t *testing.T) {
	transport, calls := newTestRawQueue(nil)
	path := filepath.Join(t.TempDir(), "label.prn")
	require.NoError(t, os.WriteFile(path, []byte("^XA^FDfile^FS^XZ"), 0o600))

	result := transport.SendFile("Zebra", path)

	require.True(t, result.Success)
	assert.Equal(t, "^XA^FDfile^FS^XZ", string((*calls)[0].data))

	result = transport.SendFile("Zebra", filepath.Join(t.TempDir(), "missing.prn"))
	assert.False(t, result.Success)
}

func TestRawQueue_EmptyName(t *testing.T) {
	transport, calls := newTestRawQueue(nil)

	result := transport.SendBytes("", []byte("x"))

	assert.ErrorIs(t, result.Err, ErrPrinterNameEmpty)
	assert.Empty(t, *calls)
}
