package keysight

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind enumerates the classes of signal source a scope can address
type Kind int

// the kinds of channel
const (
	Analog Kind = iota
	Digital
	Pod
	PodAll
	Function
	WaveMemory
	Histogram
	Bus
	Differential
	CommonMode
)

func (k Kind) String() string {
	switch k {
	case Analog:
		return "analog"
	case Digital:
		return "digital"
	case Pod:
		return "pod"
	case PodAll:
		return "pod-all"
	case Function:
		return "function"
	case WaveMemory:
		return "waveform memory"
	case Histogram:
		return "histogram"
	case Bus:
		return "bus"
	case Differential:
		return "differential"
	case CommonMode:
		return "common mode"
	}
	return "unknown"
}

// Channel identifies a signal source on the scope.  Index is 1-based and
// unused for kinds that have only one instance (PodAll, Histogram).
type Channel struct {
	Kind  Kind
	Index int
}

// String returns the SCPI mnemonic for the channel, e.g. CHAN1, POD2, PODALL
func (c Channel) String() string {
	switch c.Kind {
	case Analog:
		return "CHAN" + strconv.Itoa(c.Index)
	case Digital:
		return "DIG" + strconv.Itoa(c.Index)
	case Pod:
		return "POD" + strconv.Itoa(c.Index)
	case PodAll:
		return "PODALL"
	case Function:
		return "FUNC" + strconv.Itoa(c.Index)
	case WaveMemory:
		return "WMEM" + strconv.Itoa(c.Index)
	case Histogram:
		return "HIST"
	case Bus:
		return "BUS" + strconv.Itoa(c.Index)
	case Differential:
		return "DIFF" + strconv.Itoa(c.Index)
	case CommonMode:
		return "COMM" + strconv.Itoa(c.Index)
	}
	return ""
}

// InvalidChannelError indicates a channel string that could not be parsed,
// or one that names a source the connected model does not have
type InvalidChannelError struct {
	Input  string
	Reason string
}

func (e *InvalidChannelError) Error() string {
	return fmt.Sprintf("invalid channel %q: %s", e.Input, e.Reason)
}

// prefixes maps mnemonic roots to kinds.  Longer roots are listed before
// their substrings so PODALL wins over POD, etc.
var prefixes = []struct {
	root    string
	kind    Kind
	indexed bool
}{
	{"PODALL", PodAll, false},
	{"POD", Pod, true},
	{"CHANNEL", Analog, true},
	{"CHAN", Analog, true},
	{"DIGITAL", Digital, true},
	{"DIG", Digital, true},
	{"FUNCTION", Function, true},
	{"FUNC", Function, true},
	{"WMEMORY", WaveMemory, true},
	{"WMEM", WaveMemory, true},
	{"HISTOGRAM", Histogram, false},
	{"HIST", Histogram, false},
	{"BUS", Bus, true},
	{"DIFFERENTIAL", Differential, true},
	{"DIFF", Differential, true},
	{"COMMONMODE", CommonMode, true},
	{"COMM", CommonMode, true},
}

// ParseChannel converts a user-supplied channel string to a Channel.
// Bare integers are analog channels ("1" == "CHAN1"); mnemonics accept both
// the short and long SCPI forms, case insensitively.  Parsing does not
// consult the connected model; use Profile.Validate for that.
func ParseChannel(s string) (Channel, error) {
	orig := s
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return Channel{}, &InvalidChannelError{Input: orig, Reason: "empty"}
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n < 1 {
			return Channel{}, &InvalidChannelError{Input: orig, Reason: "channel numbers begin at 1"}
		}
		return Channel{Kind: Analog, Index: n}, nil
	}
	for _, p := range prefixes {
		if !strings.HasPrefix(s, p.root) {
			continue
		}
		rest := s[len(p.root):]
		if !p.indexed {
			if rest != "" {
				return Channel{}, &InvalidChannelError{Input: orig, Reason: p.root + " does not take an index"}
			}
			return Channel{Kind: p.kind}, nil
		}
		min := 1
		if p.kind == Digital {
			// digital channels are zero-based: D0..D15
			min = 0
		}
		n, err := strconv.Atoi(rest)
		if err != nil || n < min {
			return Channel{}, &InvalidChannelError{Input: orig, Reason: "expected an index after " + p.root}
		}
		return Channel{Kind: p.kind, Index: n}, nil
	}
	return Channel{}, &InvalidChannelError{Input: orig, Reason: "unrecognized source mnemonic"}
}

// parseChannels parses and validates a list of channel strings against the
// profile.  Either every entry is good, or an error is returned and none of
// them should be acted on.
func parseChannels(p Profile, inputs []string) ([]Channel, error) {
	chans := make([]Channel, len(inputs))
	for i, in := range inputs {
		c, err := ParseChannel(in)
		if err != nil {
			return nil, err
		}
		if err := p.Validate(c); err != nil {
			return nil, err
		}
		chans[i] = c
	}
	return chans, nil
}
