package scpi

import "fmt"

// InstrumentError is an entry from the instrument's error queue.  Cmd, when
// known, is the command that provoked it.
type InstrumentError struct {
	Code    int
	Message string
	Cmd     string
}

func (e *InstrumentError) Error() string {
	if e.Cmd != "" {
		return fmt.Sprintf("instrument error %d after %q: %s", e.Code, e.Cmd, e.Message)
	}
	return fmt.Sprintf("instrument error %d: %s", e.Code, e.Message)
}
