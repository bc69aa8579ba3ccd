package scpi

import (
	"fmt"
	"strconv"
)

// BadBlockError describes a malformed IEEE 488.2 definite-length block.
// Declared and Actual are only meaningful when the header parsed but the
// payload length did not agree with it.
type BadBlockError struct {
	Declared int
	Actual   int
	Reason   string
}

func (e *BadBlockError) Error() string {
	if e.Reason != "" {
		return "malformed block: " + e.Reason
	}
	return fmt.Sprintf("malformed block: header declared %d bytes, got %d", e.Declared, e.Actual)
}

// EncodeBlock frames data as a definite-length block, #<n><len><data>
func EncodeBlock(data []byte) []byte {
	lenS := strconv.Itoa(len(data))
	out := make([]byte, 0, len(data)+len(lenS)+2)
	out = append(out, '#')
	out = append(out, byte('0'+len(lenS)))
	out = append(out, lenS...)
	out = append(out, data...)
	return out
}

// DecodeBlock unframes a definite-length block, returning the payload.
// The input must be exactly one block; trailing terminators should be
// stripped by the caller.  This is the only place block framing is
// interpreted.
func DecodeBlock(raw []byte) ([]byte, error) {
	if len(raw) < 2 {
		return nil, &BadBlockError{Reason: fmt.Sprintf("block too short to contain a header (%d bytes)", len(raw))}
	}
	if raw[0] != '#' {
		return nil, &BadBlockError{Reason: fmt.Sprintf("block did not begin with #, got %q", raw[0])}
	}
	ndigits := int(raw[1] - '0')
	if ndigits < 1 || ndigits > 9 {
		return nil, &BadBlockError{Reason: fmt.Sprintf("invalid digit count %q in block header", raw[1])}
	}
	hdrLen := 2 + ndigits
	if len(raw) < hdrLen {
		return nil, &BadBlockError{Reason: "block truncated inside header"}
	}
	nbytes := 0
	for _, c := range raw[2:hdrLen] {
		if c < '0' || c > '9' {
			return nil, &BadBlockError{Reason: fmt.Sprintf("non-numeric byte %q in block length", c)}
		}
		nbytes = nbytes*10 + int(c-'0')
	}
	if len(raw)-hdrLen != nbytes {
		return nil, &BadBlockError{Declared: nbytes, Actual: len(raw) - hdrLen}
	}
	return raw[hdrLen : hdrLen+nbytes], nil
}
