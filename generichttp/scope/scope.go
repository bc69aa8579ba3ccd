// Package scope exposes control of oscilloscopes over HTTP
package scope

import (
	"encoding/json"
	"fmt"
	"go/types"
	"io"
	"io/ioutil"
	"net/http"
	"sort"
	"strings"

	"goji.io/pat"

	"github.jpl.nasa.gov/bdube/oscope/generichttp"
	"github.jpl.nasa.gov/bdube/oscope/keysight"
	"github.jpl.nasa.gov/bdube/oscope/oscilloscope"
	"github.jpl.nasa.gov/bdube/oscope/server"
)

// Controller is the surface of an oscilloscope session exposed over HTTP.
// *keysight.Scope satisfies it.
type Controller interface {
	measurer

	Identify() string

	SetChannel(string) error
	Channel() (keysight.Channel, error)

	Run() error
	Stop() error
	Single() error

	EnableOutput(...string) error
	DisableOutput(...string) error
	DisableAllOutputs() error
	GetOutput(string) (bool, error)

	SetLabel(string) error
	ClearLabels() error
	Annotate(text, color string) error
	ClearAnnotation() error

	Hardcopy() ([]byte, error)
	SaveSetup() ([]byte, error)
	LoadSetup([]byte) error
	Autoscale(...string) error

	Statistics() ([]keysight.Statistic, error)
	ClearStatistics() error

	AcquireWaveform(...string) (*oscilloscope.Waveform, error)

	Raw(string) (string, error)
}

// measurement is a keyed dispatch over the Measure* methods; the bool is
// the install flag
type measurement func(Controller, bool) (float64, error)

var measurements = map[string]measurement{
	"volt-average":    func(c Controller, i bool) (float64, error) { return c.MeasureVoltAverage(i) },
	"volt-rms":        func(c Controller, i bool) (float64, error) { return c.MeasureVoltRMS(i) },
	"vpp":             func(c Controller, i bool) (float64, error) { return c.MeasureVPP(i) },
	"vmax":            func(c Controller, i bool) (float64, error) { return c.MeasureVMax(i) },
	"vmin":            func(c Controller, i bool) (float64, error) { return c.MeasureVMin(i) },
	"vtop":            func(c Controller, i bool) (float64, error) { return c.MeasureVTop(i) },
	"vbase":           func(c Controller, i bool) (float64, error) { return c.MeasureVBase(i) },
	"vamplitude":      func(c Controller, i bool) (float64, error) { return c.MeasureVAmplitude(i) },
	"frequency":       func(c Controller, i bool) (float64, error) { return c.MeasureFrequency(i) },
	"period":          func(c Controller, i bool) (float64, error) { return c.MeasurePeriod(i) },
	"pos-pulse-width": func(c Controller, i bool) (float64, error) { return c.MeasurePosPulseWidth(i) },
	"neg-pulse-width": func(c Controller, i bool) (float64, error) { return c.MeasureNegPulseWidth(i) },
	"rise-time":       func(c Controller, i bool) (float64, error) { return c.MeasureRiseTime(i) },
	"fall-time":       func(c Controller, i bool) (float64, error) { return c.MeasureFallTime(i) },
	"duty-cycle":      func(c Controller, i bool) (float64, error) { return c.MeasureDutyCycle(i) },
	"overshoot":       func(c Controller, i bool) (float64, error) { return c.MeasureOvershoot(i) },
	"preshoot":        func(c Controller, i bool) (float64, error) { return c.MeasurePreshoot(i) },
}

// measurer is the measurement subset of *keysight.Scope
type measurer interface {
	MeasureVoltAverage(bool) (float64, error)
	MeasureVoltRMS(bool) (float64, error)
	MeasureVPP(bool) (float64, error)
	MeasureVMax(bool) (float64, error)
	MeasureVMin(bool) (float64, error)
	MeasureVTop(bool) (float64, error)
	MeasureVBase(bool) (float64, error)
	MeasureVAmplitude(bool) (float64, error)
	MeasureFrequency(bool) (float64, error)
	MeasurePeriod(bool) (float64, error)
	MeasurePosPulseWidth(bool) (float64, error)
	MeasureNegPulseWidth(bool) (float64, error)
	MeasureRiseTime(bool) (float64, error)
	MeasureFallTime(bool) (float64, error)
	MeasureDutyCycle(bool) (float64, error)
	MeasureOvershoot(bool) (float64, error)
	MeasurePreshoot(bool) (float64, error)
}

// Measurements lists the measurement names the HTTP interface understands
func Measurements() []string {
	out := make([]string, 0, len(measurements))
	for k := range measurements {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Measure runs the measurement with the given name against c.  The names
// are those returned by Measurements.
func Measure(c Controller, name string, install bool) (float64, error) {
	meas, ok := measurements[name]
	if !ok {
		return 0, fmt.Errorf("unknown measurement %q, choose from %v", name, Measurements())
	}
	return meas(c, install)
}

// HTTPScope wraps a Controller in an HTTP route table
type HTTPScope struct {
	Scope Controller

	RouteTable server.RouteTable
}

// NewHTTPScope returns an HTTPScope with the full route table populated
func NewHTTPScope(c Controller) HTTPScope {
	h := HTTPScope{Scope: c}
	rt := server.RouteTable{
		pat.Get("/idn"):     generichttp.GetString(func() (string, error) { return c.Identify(), nil }),
		pat.Get("/channel"): h.GetChannel,
		pat.Post("/channel"): generichttp.SetString(func(s string) error {
			return c.SetChannel(s)
		}),
		pat.Get("/measurement/:meas"): h.Measure,

		pat.Post("/run"):    generichttp.Do(c.Run),
		pat.Post("/stop"):   generichttp.Do(c.Stop),
		pat.Post("/single"): generichttp.Do(c.Single),

		pat.Get("/output/:chan"):  h.GetOutput,
		pat.Post("/output/:chan"): h.SetOutput,
		pat.Post("/blank-all"):    generichttp.Do(c.DisableAllOutputs),

		pat.Post("/label"):            generichttp.SetString(c.SetLabel),
		pat.Post("/clear-labels"):     generichttp.Do(c.ClearLabels),
		pat.Post("/annotation"):       h.Annotate,
		pat.Post("/clear-annotation"): generichttp.Do(c.ClearAnnotation),

		pat.Get("/screenshot"): h.Screenshot,
		pat.Get("/setup"):      h.GetSetup,
		pat.Post("/setup"):     h.SetSetup,
		pat.Post("/autoscale"): h.Autoscale,

		pat.Get("/statistics"):        h.Statistics,
		pat.Post("/clear-statistics"): generichttp.Do(c.ClearStatistics),

		pat.Get("/waveform"): h.Waveform,
	}
	h.RouteTable = rt
	return h
}

// RT satisfies server.HTTPer
func (h HTTPScope) RT() server.RouteTable {
	return h.RouteTable
}

// GetChannel returns the selected channel as {'str': 'CHAN1'}
func (h HTTPScope) GetChannel(w http.ResponseWriter, r *http.Request) {
	ch, err := h.Scope.Channel()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	hp := server.HumanPayload{T: types.String, String: ch.String()}
	hp.EncodeAndRespond(w, r)
}

// Measure runs the measurement named in the URL on the selected channel.
// ?install=true adds it to the instrument's display first.
func (h HTTPScope) Measure(w http.ResponseWriter, r *http.Request) {
	name := pat.Param(r, "meas")
	meas, ok := measurements[name]
	if !ok {
		http.Error(w, fmt.Sprintf("unknown measurement %q, choose from %v", name, Measurements()), http.StatusNotFound)
		return
	}
	install := r.URL.Query().Get("install") == "true"
	f, err := meas(h.Scope, install)
	if err != nil {
		status := http.StatusInternalServerError
		if err == keysight.ErrUnavailable {
			// the instrument is fine, the signal just is not there
			status = http.StatusUnprocessableEntity
		}
		http.Error(w, err.Error(), status)
		return
	}
	hp := server.HumanPayload{T: types.Float64, Float: f}
	hp.EncodeAndRespond(w, r)
}

// Annotate puts text on the display from json {'text': ..., 'color': ...};
// color optionally names a channel whose display color the text takes
func (h HTTPScope) Annotate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text  string `json:"text"`
		Color string `json:"color"`
	}
	err := json.NewDecoder(r.Body).Decode(&body)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.Scope.Annotate(body.Text, body.Color); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// GetOutput returns whether the channel in the URL is displayed
func (h HTTPScope) GetOutput(w http.ResponseWriter, r *http.Request) {
	on, err := h.Scope.GetOutput(pat.Param(r, "chan"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	hp := server.HumanPayload{T: types.Bool, Bool: on}
	hp.EncodeAndRespond(w, r)
}

// SetOutput turns display of the channel in the URL on or off from
// json {'bool': value}
func (h HTTPScope) SetOutput(w http.ResponseWriter, r *http.Request) {
	b := server.BoolT{}
	err := json.NewDecoder(r.Body).Decode(&b)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ch := pat.Param(r, "chan")
	if b.Bool {
		err = h.Scope.EnableOutput(ch)
	} else {
		err = h.Scope.DisableOutput(ch)
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Screenshot returns a PNG of the instrument's display
func (h HTTPScope) Screenshot(w http.ResponseWriter, r *http.Request) {
	img, err := h.Scope.Hardcopy()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(img)
}

// GetSetup returns the instrument's configuration as an opaque blob
func (h HTTPScope) GetSetup(w http.ResponseWriter, r *http.Request) {
	blob, err := h.Scope.SaveSetup()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	w.Write(blob)
}

// SetSetup restores a configuration blob previously fetched from GetSetup
func (h HTTPScope) SetSetup(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	blob, err := ioutil.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if len(blob) == 0 {
		http.Error(w, "empty setup payload", http.StatusBadRequest)
		return
	}
	if err := h.Scope.LoadSetup(blob); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Autoscale autoscales the channels given as json {'str': 'CHAN1,CHAN2'},
// or everything if the body is empty
func (h HTTPScope) Autoscale(w http.ResponseWriter, r *http.Request) {
	s := server.StrT{}
	// an empty body is allowed, a malformed one is not
	err := json.NewDecoder(r.Body).Decode(&s)
	defer r.Body.Close()
	if err != nil && err != io.EOF {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var chans []string
	if s.Str != "" {
		chans = strings.Split(s.Str, ",")
	}
	if err := h.Scope.Autoscale(chans...); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Statistics returns the accumulated measurement statistics as JSON
func (h HTTPScope) Statistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Scope.Statistics()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// Waveform acquires a waveform from the channels in ?chan=CHAN1,CHAN2 and
// streams it in the format given by ?fmt= (csv, the default, or fits)
func (h HTTPScope) Waveform(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var chans []string
	if s := q.Get("chan"); s != "" {
		chans = strings.Split(s, ",")
	}
	wav, err := h.Scope.AcquireWaveform(chans...)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	switch q.Get("fmt") {
	case "", "csv":
		w.Header().Set("Content-Type", "text/csv")
		err = wav.EncodeCSV(w)
	case "fits":
		w.Header().Set("Content-Type", "application/fits")
		err = wav.EncodeFITS(w)
	default:
		http.Error(w, fmt.Sprintf("unknown format %q, choose csv or fits", q.Get("fmt")), http.StatusBadRequest)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
