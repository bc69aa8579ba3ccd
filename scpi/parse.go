package scpi

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// OverRange is the IEEE 488.2 "value not available" sentinel.  Instruments
// report it (or its negation) for measurements that cannot be made, e.g. the
// frequency of a flat line.
const OverRange = 9.9e37

// ErrUnavailable is returned when the instrument answered a measurement
// query with the over-range sentinel instead of a real value
var ErrUnavailable = fmt.Errorf("measurement unavailable: signal not found or out of range")

// ParseFloat converts an instrument reply to a float, mapping the
// over-range sentinel to ErrUnavailable
func ParseFloat(resp string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(resp), 64)
	if err != nil {
		return 0, fmt.Errorf("malformed response %q: %w", resp, err)
	}
	if math.Abs(f) >= OverRange {
		return 0, ErrUnavailable
	}
	return f, nil
}

// ParseBool converts an instrument reply to a bool.  Instruments answer
// boolean queries with 1/0, and some echo the ON/OFF mnemonics.
func ParseBool(resp string) (bool, error) {
	switch strings.ToUpper(strings.TrimSpace(resp)) {
	case "1", "ON":
		return true, nil
	case "0", "OFF":
		return false, nil
	}
	return false, fmt.Errorf("malformed response %q: not a boolean token", resp)
}

// ParseSystemError parses a SYSTem:ERRor? reply into a code and message.
// Both reply dialects are understood:
//
//	+0,"No error"        (legacy, explicit sign)
//	0,"No error"         (modern)
//	-113,"Undefined header"
func ParseSystemError(resp string) (int, string, error) {
	resp = strings.TrimSpace(resp)
	idx := strings.Index(resp, ",")
	if idx < 0 {
		return 0, "", fmt.Errorf("malformed response %q: no comma in error queue reply", resp)
	}
	codeS := strings.TrimPrefix(resp[:idx], "+")
	code, err := strconv.Atoi(codeS)
	if err != nil {
		return 0, "", fmt.Errorf("malformed response %q: %w", resp, err)
	}
	msg := strings.Trim(resp[idx+1:], `"`)
	return code, msg, nil
}
