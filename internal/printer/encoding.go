package printer

import (
	"fmt"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
)

type defaultCharset int

const (
	charsetUTF8 defaultCharset = iota
	charsetASCII
)

// encodeCommands converts the command text to the bytes put on the wire.
// A named charset wins over the transport default; characters it cannot
// represent become its substitute byte, as '?' does for the ASCII default.
func encodeCommands(commands, charset string, fallback defaultCharset) ([]byte, error) {
	if charset != "" {
		enc, err := ianaindex.IANA.Encoding(charset)
		if err != nil || enc == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedEncoding, charset)
		}
		data, err := encoding.ReplaceUnsupported(enc.NewEncoder()).Bytes([]byte(commands))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrUnsupportedEncoding, charset, err)
		}
		return data, nil
	}

	if fallback == charsetASCII {
		return asciiBytes(commands), nil
	}
	return []byte(commands), nil
}

func asciiBytes(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		if r > 0x7F {
			out = append(out, '?')
			continue
		}
		out = append(out, byte(r))
	}
	return out
}
