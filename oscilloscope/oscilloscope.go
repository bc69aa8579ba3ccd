// Package oscilloscope provides type definitions for data captured from
// oscilloscopes
package oscilloscope

import (
	"bufio"
	"encoding/csv"
	"io"
	"sort"
	"strconv"
)

// Trace is one channel's worth of digitized samples plus the coefficients
// needed to convert them to physical units.  Data holds the raw ADC codes;
// physical value = (code - Reference) * Scale + Offset.
type Trace struct {
	// Data is the raw sample buffer as it came off the wire
	Data []int16

	// Scale is the size of one ADC code in volts
	Scale float64

	// Offset is the vertical offset in volts
	Offset float64

	// Reference is the ADC code corresponding to zero volts
	Reference float64
}

// Physical converts the raw samples to volts
func (t Trace) Physical() []float64 {
	ret := make([]float64, len(t.Data))
	for i, v := range t.Data {
		ret[i] = (float64(v)-t.Reference)*t.Scale + t.Offset
	}
	return ret
}

// Waveform is a single acquisition, possibly spanning several channels.
// All traces share the time base.
type Waveform struct {
	// DT is the temporal sample spacing in seconds
	DT float64 `json:"dt"`

	// XOrigin is the time of the first sample relative to the trigger
	XOrigin float64 `json:"xOrigin"`

	// Traces holds the per-channel data, keyed by channel name
	Traces map[string]Trace `json:"-"`
}

// channelNames returns the trace keys in a stable order
func (w *Waveform) channelNames() []string {
	names := make([]string, 0, len(w.Traces))
	for k := range w.Traces {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// EncodeCSV converts the waveform to physical units and writes it as CSV,
// one row per sample with a leading time column
func (w *Waveform) EncodeCSV(dst io.Writer) error {
	names := w.channelNames()
	data := make([][]float64, len(names))
	for i, name := range names {
		data[i] = w.Traces[name].Physical()
	}
	buf := bufio.NewWriter(dst)
	cw := csv.NewWriter(buf)
	header := append([]string{"time"}, names...)
	if err := cw.Write(header); err != nil {
		return err
	}
	nsamples := 0
	if len(data) > 0 {
		nsamples = len(data[0])
	}
	row := make([]string, len(header))
	for i := 0; i < nsamples; i++ {
		row[0] = strconv.FormatFloat(w.XOrigin+float64(i)*w.DT, 'G', -1, 64)
		for j := range data {
			row[j+1] = strconv.FormatFloat(data[j][i], 'G', -1, 64)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	return buf.Flush()
}
