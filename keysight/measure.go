package keysight

import (
	"fmt"
	"strconv"
	"strings"

	"github.jpl.nasa.gov/bdube/oscope/scpi"
)

// measure performs a measurement of fn on the selected channel.  para, if
// non-empty, is the parameter list that precedes the source.  When install
// is true, statistics accumulation is enabled and the measurement is added
// to the instrument's display before it is queried.
func (s *Scope) measure(fn, para string, install bool) (float64, error) {
	ch, err := s.Channel()
	if err != nil {
		return 0, err
	}
	args := ch.String()
	if para != "" {
		args = para + "," + args
	}
	if install {
		if err := s.enableStatistics(); err != nil {
			return 0, err
		}
		if err := s.write(fmt.Sprintf(":MEASure:%s %s", fn, args)); err != nil {
			return 0, err
		}
	}
	resp, err := s.tx.Query(fmt.Sprintf(":MEASure:%s? %s", fn, args))
	if err != nil {
		return 0, err
	}
	return scpi.ParseFloat(resp)
}

// enableStatistics turns on statistics accumulation for installed
// measurements, in the family's dialect
func (s *Scope) enableStatistics() error {
	if s.Profile.Legacy {
		return s.write(":MEASure:STATistics:DISPlay ON")
	}
	return s.write(":MEASure:STATistics ON")
}

// MeasureVoltAverage measures the average voltage over the displayed
// waveform of the selected channel
func (s *Scope) MeasureVoltAverage(install bool) (float64, error) {
	return s.measure("VAVerage", "DISPlay", install)
}

// MeasureVoltRMS measures the DC RMS voltage over the displayed waveform
// of the selected channel
func (s *Scope) MeasureVoltRMS(install bool) (float64, error) {
	return s.measure("VRMS", "DISPlay,DC", install)
}

// MeasureVPP measures the peak-to-peak voltage of the selected channel
func (s *Scope) MeasureVPP(install bool) (float64, error) {
	return s.measure("VPP", "", install)
}

// MeasureVMax measures the maximum voltage of the selected channel
func (s *Scope) MeasureVMax(install bool) (float64, error) {
	return s.measure("VMAX", "", install)
}

// MeasureVMin measures the minimum voltage of the selected channel
func (s *Scope) MeasureVMin(install bool) (float64, error) {
	return s.measure("VMIN", "", install)
}

// MeasureVTop measures the voltage of the waveform's flat top
func (s *Scope) MeasureVTop(install bool) (float64, error) {
	return s.measure("VTOP", "", install)
}

// MeasureVBase measures the voltage of the waveform's flat base
func (s *Scope) MeasureVBase(install bool) (float64, error) {
	return s.measure("VBASe", "", install)
}

// MeasureVAmplitude measures VTop - VBase of the selected channel
func (s *Scope) MeasureVAmplitude(install bool) (float64, error) {
	return s.measure("VAMPlitude", "", install)
}

// MeasureFrequency measures the frequency of the selected channel in Hz
func (s *Scope) MeasureFrequency(install bool) (float64, error) {
	return s.measure("FREQuency", "", install)
}

// MeasurePeriod measures the period of the selected channel in seconds
func (s *Scope) MeasurePeriod(install bool) (float64, error) {
	return s.measure("PERiod", "", install)
}

// MeasurePosPulseWidth measures the width of the positive pulse
func (s *Scope) MeasurePosPulseWidth(install bool) (float64, error) {
	return s.measure("PWIDth", "", install)
}

// MeasureNegPulseWidth measures the width of the negative pulse
func (s *Scope) MeasureNegPulseWidth(install bool) (float64, error) {
	return s.measure("NWIDth", "", install)
}

// MeasureRiseTime measures the 10-90% rise time of the selected channel
func (s *Scope) MeasureRiseTime(install bool) (float64, error) {
	return s.measure("RISetime", "", install)
}

// MeasureFallTime measures the 90-10% fall time of the selected channel
func (s *Scope) MeasureFallTime(install bool) (float64, error) {
	return s.measure("FALLtime", "", install)
}

// MeasureDutyCycle measures the positive duty cycle in percent
func (s *Scope) MeasureDutyCycle(install bool) (float64, error) {
	return s.measure("DUTYcycle", "", install)
}

// MeasureOvershoot measures the overshoot in percent of amplitude
func (s *Scope) MeasureOvershoot(install bool) (float64, error) {
	return s.measure("OVERshoot", "", install)
}

// MeasurePreshoot measures the preshoot in percent of amplitude
func (s *Scope) MeasurePreshoot(install bool) (float64, error) {
	return s.measure("PREShoot", "", install)
}

// Statistic is one row of the instrument's accumulated measurement
// statistics
type Statistic struct {
	Label   string  `json:"label"`
	Current float64 `json:"current"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Mean    float64 `json:"mean"`
	StdDev  float64 `json:"stdDev"`
	Count   int     `json:"count"`
}

// statColumns is the shape of a MEASure:RESults? row when full statistics
// are displayed: label, current, min, max, mean, stddev, count
const statColumns = 7

// Statistics returns the accumulated statistics of all installed
// measurements.  Measurements are installed by passing install=true to the
// Measure* methods.
func (s *Scope) Statistics() ([]Statistic, error) {
	if err := s.enableStatistics(); err != nil {
		return nil, err
	}
	resp, err := s.tx.Query(":MEASure:RESults?")
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(resp) == "" {
		return nil, nil
	}
	fields := strings.Split(resp, ",")
	if len(fields)%statColumns != 0 {
		return nil, fmt.Errorf("malformed response: statistics reply had %d fields, not a multiple of %d", len(fields), statColumns)
	}
	stats := make([]Statistic, 0, len(fields)/statColumns)
	for i := 0; i < len(fields); i += statColumns {
		row := fields[i : i+statColumns]
		nums := make([]float64, 5)
		for j := 0; j < 5; j++ {
			nums[j], err = strconv.ParseFloat(strings.TrimSpace(row[j+1]), 64)
			if err != nil {
				return nil, fmt.Errorf("malformed response in statistics row %q: %w", row, err)
			}
		}
		count, err := strconv.ParseFloat(strings.TrimSpace(row[6]), 64)
		if err != nil {
			return nil, fmt.Errorf("malformed response in statistics row %q: %w", row, err)
		}
		stats = append(stats, Statistic{
			Label:   strings.TrimSpace(row[0]),
			Current: nums[0],
			Min:     nums[1],
			Max:     nums[2],
			Mean:    nums[3],
			StdDev:  nums[4],
			Count:   int(count),
		})
	}
	return stats, nil
}

// ClearStatistics resets the statistics accumulators without removing the
// installed measurements
func (s *Scope) ClearStatistics() error {
	return s.write(":MEASure:STATistics:RESet")
}
