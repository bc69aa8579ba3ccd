package keysight

import (
	"fmt"
	"log"
	"strings"
)

// Profile captures the vocabulary differences between scope families: which
// sources exist, how many of each, label length limits, and which dialect of
// a few commands the firmware speaks.
type Profile struct {
	// Family is a human-readable family name, e.g. "InfiniiVision 3000 X"
	Family string

	// Analog is the number of analog input channels
	Analog int

	// Pods is the number of digital pods (0 for scopes without MSO inputs)
	Pods int

	// PodAll reports whether the PODALL source exists
	PodAll bool

	// MaxFunc is the highest FUNCtion number, 0 if none
	MaxFunc int

	// MaxWMem is the highest waveform memory number, 0 if none
	MaxWMem int

	// MaxBus is the highest serial bus number, 0 if none
	MaxBus int

	// Histogram reports whether the HISTogram source exists
	Histogram bool

	// Diff reports whether DIFFerential and COMMonmode sources exist
	Diff bool

	// LabelLimit is the maximum channel label length the firmware accepts
	LabelLimit int

	// Legacy selects the InfiniiVision command dialect (annotation via
	// DISPlay:ANNotation, hardcopy via PNG,COLor, bare BLANk for all)
	Legacy bool

	// ErrorQuery is the form of the error queue query this family answers
	ErrorQuery string

	// AutoscalePlacement reports whether the firmware supports
	// AUToscale:PLACement for separating traces vertically
	AutoscalePlacement bool
}

// Validate checks that the channel names a source present on this model
func (p Profile) Validate(c Channel) error {
	bad := func(reason string, args ...interface{}) error {
		return &InvalidChannelError{Input: c.String(), Reason: fmt.Sprintf(reason, args...)}
	}
	switch c.Kind {
	case Analog:
		if c.Index > p.Analog {
			return bad("%s has %d analog channels", p.Family, p.Analog)
		}
	case Digital:
		if p.Pods == 0 {
			return bad("%s has no digital channels", p.Family)
		}
		if c.Index > p.Pods*8-1 {
			return bad("digital channels on %s end at D%d", p.Family, p.Pods*8-1)
		}
	case Pod:
		if c.Index > p.Pods {
			return bad("%s has %d digital pods", p.Family, p.Pods)
		}
	case PodAll:
		if !p.PodAll {
			return bad("%s does not support PODALL", p.Family)
		}
	case Function:
		if c.Index > p.MaxFunc {
			return bad("%s supports functions 1..%d", p.Family, p.MaxFunc)
		}
	case WaveMemory:
		if c.Index > p.MaxWMem {
			return bad("%s has waveform memories 1..%d", p.Family, p.MaxWMem)
		}
	case Bus:
		if c.Index > p.MaxBus {
			return bad("%s has serial buses 1..%d", p.Family, p.MaxBus)
		}
	case Histogram:
		if !p.Histogram {
			return bad("%s does not support the histogram source", p.Family)
		}
	case Differential, CommonMode:
		if !p.Diff {
			return bad("%s does not support differential sources", p.Family)
		}
		if c.Index > p.Analog {
			return bad("%s has %d analog channels", p.Family, p.Analog)
		}
	}
	return nil
}

// generic is the fallback vocabulary for models we do not recognize:
// four analog channels and the lowest common denominator of everything else
var generic = Profile{
	Family:     "generic",
	Analog:     4,
	MaxFunc:    4,
	MaxWMem:    2,
	LabelLimit: 10,
	Legacy:     true,
	ErrorQuery: "SYSTem:ERRor?",
}

// DetectProfile maps a *IDN? reply to the profile for that model.  Unknown
// models get the generic profile; a warning is logged since command dialect
// guesses may be wrong.
func DetectProfile(idn string) Profile {
	fields := strings.Split(idn, ",")
	model := ""
	if len(fields) >= 2 {
		model = strings.ToUpper(strings.TrimSpace(fields[1]))
	}
	switch {
	case strings.Contains(model, "MXR") || strings.Contains(model, "EXR"):
		return Profile{
			Family:             "Infiniium MXR/EXR",
			Analog:             modelChannels(model),
			Pods:               2,
			PodAll:             true,
			MaxFunc:            16,
			MaxWMem:            8,
			MaxBus:             4,
			Histogram:          true,
			Diff:               true,
			LabelLimit:         16,
			ErrorQuery:         "SYSTem:ERRor? STRing",
			AutoscalePlacement: true,
		}
	case strings.Contains(model, "UXR"):
		return Profile{
			Family:     "Infiniium UXR",
			Analog:     4,
			MaxFunc:    16,
			MaxWMem:    8,
			Histogram:  true,
			Diff:       true,
			LabelLimit: 16,
			ErrorQuery: "SYSTem:ERRor? STRing",
		}
	case strings.Contains(model, "SO-X 3") || strings.Contains(model, "SO-X 2") ||
		strings.Contains(model, "SO-X 4") || strings.Contains(model, "SO-X 6"):
		pods := 0
		if strings.HasPrefix(model, "MSO") {
			pods = 2
		}
		return Profile{
			Family:     "InfiniiVision X",
			Analog:     modelChannels(model),
			Pods:       pods,
			MaxFunc:    4,
			MaxWMem:    2,
			MaxBus:     2,
			LabelLimit: 10,
			Legacy:     true,
			ErrorQuery: "SYSTem:ERRor?",
		}
	}
	log.Printf("keysight: model %q not recognized, using generic command set; some operations may fail", model)
	return generic
}

// modelChannels extracts the analog channel count encoded in the last digit
// of a model number; MXR058A has 8 channels, MSO-X 3012A has 2, most have 4
func modelChannels(model string) int {
	for i := len(model) - 1; i >= 0; i-- {
		c := model[i]
		if c < '0' || c > '9' {
			continue
		}
		switch c {
		case '2':
			return 2
		case '8':
			return 8
		}
		return 4
	}
	return 4
}
