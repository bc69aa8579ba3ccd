package keysight

import (
	"encoding/binary"
	"strings"

	"github.jpl.nasa.gov/bdube/oscope/oscilloscope"
)

// AcquireWaveform digitizes the given channels and downloads their data,
// returning a waveform with everything needed to convert to volts and
// seconds.  Channel validation is all-or-nothing.
func (s *Scope) AcquireWaveform(channels ...string) (*oscilloscope.Waveform, error) {
	chans, err := parseChannels(s.Profile, channels)
	if err != nil {
		return nil, err
	}
	if len(chans) == 0 {
		ch, err := s.Channel()
		if err != nil {
			return nil, err
		}
		chans = []Channel{ch}
	}
	err = s.write(":WAVeform:FORMat WORD")
	if err != nil {
		return nil, err
	}
	err = s.write(":WAVeform:BYTeorder LSBFirst")
	if err != nil {
		return nil, err
	}
	srcs := make([]string, len(chans))
	for i, c := range chans {
		srcs[i] = c.String()
	}
	// DIGitize blocks the instrument until the acquisition completes, so
	// the data queries below see a consistent record
	err = s.write(":DIGitize " + strings.Join(srcs, ","))
	if err != nil {
		return nil, err
	}
	ret := &oscilloscope.Waveform{Traces: make(map[string]oscilloscope.Trace, len(chans))}
	ret.DT, err = s.queryFloat(":WAVeform:XINCrement?")
	if err != nil {
		return nil, err
	}
	ret.XOrigin, err = s.queryFloat(":WAVeform:XORigin?")
	if err != nil {
		return nil, err
	}
	for _, src := range srcs {
		err = s.write(":WAVeform:SOURce " + src)
		if err != nil {
			return nil, err
		}
		yorigin, err := s.queryFloat(":WAVeform:YORigin?")
		if err != nil {
			return nil, err
		}
		yinc, err := s.queryFloat(":WAVeform:YINCrement?")
		if err != nil {
			return nil, err
		}
		yref, err := s.queryFloat(":WAVeform:YREFerence?")
		if err != nil {
			return nil, err
		}
		buf, err := s.tx.QueryBlock(":WAVeform:DATA?")
		if err != nil {
			return nil, err
		}
		data := make([]int16, len(buf)/2)
		for i := range data {
			data[i] = int16(binary.LittleEndian.Uint16(buf[2*i:]))
		}
		ret.Traces[src] = oscilloscope.Trace{
			Data:      data,
			Scale:     yinc,
			Offset:    yorigin,
			Reference: yref,
		}
	}
	return ret, nil
}
