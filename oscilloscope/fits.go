package oscilloscope

import (
	"io"

	"github.com/astrogo/fitsio"
)

// EncodeFITS writes the waveform to w as a FITS file.  The image is 2D,
// one row per channel, samples along the fast axis in physical units.
// Channel names and the time base are recorded in the header.
func (w *Waveform) EncodeFITS(dst io.Writer) error {
	names := w.channelNames()
	data := make([][]float64, len(names))
	nsamples := 0
	for i, name := range names {
		data[i] = w.Traces[name].Physical()
		if len(data[i]) > nsamples {
			nsamples = len(data[i])
		}
	}
	fits, err := fitsio.Create(dst)
	if err != nil {
		return err
	}
	defer fits.Close()
	im := fitsio.NewImage(-64, []int{nsamples, len(names)})
	defer im.Close()
	cards := []fitsio.Card{
		{Name: "DT", Value: w.DT, Comment: "sample spacing, seconds"},
		{Name: "XORIGIN", Value: w.XOrigin, Comment: "time of first sample, seconds"},
	}
	for i, name := range names {
		cards = append(cards, fitsio.Card{
			Name:    "CHAN" + itoa(i),
			Value:   name,
			Comment: "source of row " + itoa(i),
		})
	}
	err = im.Header().Append(cards...)
	if err != nil {
		return err
	}
	buf := make([]float64, nsamples*len(names))
	for i := range data {
		copy(buf[i*nsamples:], data[i])
	}
	err = im.Write(buf)
	if err != nil {
		return err
	}
	return fits.Write(im)
}

func itoa(i int) string {
	// single digit is always enough; scopes top out at 8 analog channels
	return string(rune('0' + i))
}
