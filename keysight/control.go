package keysight

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Run starts continuous acquisition
func (s *Scope) Run() error {
	return s.write(":RUN")
}

// Stop halts acquisition
func (s *Scope) Stop() error {
	return s.write(":STOP")
}

// Single arms the scope for a single acquisition
func (s *Scope) Single() error {
	return s.write(":SINGle")
}

// EnableOutput turns on the display of the given channels.  All channel
// strings are validated before anything is sent; an invalid entry means
// none of them are acted on.
func (s *Scope) EnableOutput(channels ...string) error {
	chans, err := parseChannels(s.Profile, channels)
	if err != nil {
		return err
	}
	for _, c := range chans {
		if err := s.write(":VIEW " + c.String()); err != nil {
			return err
		}
	}
	return nil
}

// DisableOutput turns off the display of the given channels, with the same
// all-or-nothing validation as EnableOutput
func (s *Scope) DisableOutput(channels ...string) error {
	chans, err := parseChannels(s.Profile, channels)
	if err != nil {
		return err
	}
	for _, c := range chans {
		if err := s.write(":BLANk " + c.String()); err != nil {
			return err
		}
	}
	return nil
}

// DisableAllOutputs blanks every displayed source
func (s *Scope) DisableAllOutputs() error {
	if s.Profile.Legacy {
		// bare BLANk blanks everything on InfiniiVision
		return s.write(":BLANk")
	}
	return s.write(":BLANk ALL")
}

// GetOutput reports whether the given channel is displayed
func (s *Scope) GetOutput(channel string) (bool, error) {
	c, err := ParseChannel(channel)
	if err != nil {
		return false, err
	}
	if err := s.Profile.Validate(c); err != nil {
		return false, err
	}
	return s.queryBool(":STATus? " + c.String())
}

// SetLabel sets the on-screen label of the selected channel and turns label
// display on.  Labels longer than the firmware's limit are rejected here
// rather than truncated by the instrument.
func (s *Scope) SetLabel(label string) error {
	ch, err := s.Channel()
	if err != nil {
		return err
	}
	if n := utf8.RuneCountInString(label); n > s.Profile.LabelLimit {
		return fmt.Errorf("label %q is %d characters, %s allows at most %d",
			label, n, s.Profile.Family, s.Profile.LabelLimit)
	}
	if strings.ContainsAny(label, `"`+"\n\r") {
		return fmt.Errorf("label %q contains characters the instrument cannot display", label)
	}
	err = s.write(fmt.Sprintf(`:%s:LABel "%s"`, ch.String(), label))
	if err != nil {
		return err
	}
	return s.write(":DISPlay:LABel ON")
}

// ClearLabels turns off label display for all channels
func (s *Scope) ClearLabels() error {
	return s.write(":DISPlay:LABel OFF")
}

// Annotate puts text on the instrument's display.  color, if non-empty,
// names the channel whose display color the annotation takes, so the text
// visually associates with a trace.
func (s *Scope) Annotate(text, color string) error {
	if strings.ContainsAny(text, `"`+"\n\r") {
		return fmt.Errorf("annotation %q contains characters the instrument cannot display", text)
	}
	var colorTok string
	if color != "" {
		c, err := ParseChannel(color)
		if err != nil {
			return err
		}
		if err := s.Profile.Validate(c); err != nil {
			return err
		}
		colorTok = c.String()
	}
	if s.Profile.Legacy {
		err := s.write(fmt.Sprintf(`:DISPlay:ANNotation:TEXT "%s"`, text))
		if err != nil {
			return err
		}
		if colorTok != "" {
			err = s.write(":DISPlay:ANNotation:COLor " + colorTok)
			if err != nil {
				return err
			}
		}
		return s.write(":DISPlay:ANNotation ON")
	}
	// Infiniium uses bookmarks for free text; they are pinned to a source
	// rather than colored
	if colorTok != "" {
		return s.write(fmt.Sprintf(`:DISPlay:BOOKmark1:SET %s,"%s"`, colorTok, text))
	}
	return s.write(fmt.Sprintf(`:DISPlay:BOOKmark1:SET NONE,"%s"`, text))
}

// ClearAnnotation removes the annotation from the display
func (s *Scope) ClearAnnotation() error {
	if s.Profile.Legacy {
		return s.write(":DISPlay:ANNotation OFF")
	}
	return s.write(":DISPlay:BOOKmark1:DELete")
}

// Hardcopy captures the instrument's screen as a PNG image
func (s *Scope) Hardcopy() ([]byte, error) {
	if s.Profile.Legacy {
		// screenshots come out with a white background for printing
		// unless ink saver is defeated first
		if err := s.write(":HARDcopy:INKSaver OFF"); err != nil {
			return nil, err
		}
		return s.tx.QueryBlock(":DISPlay:DATA? PNG,COLor")
	}
	return s.tx.QueryBlock(":DISPlay:DATA? PNG,SCReen,ON,NORMal")
}

// SaveSetup reads back the instrument's configuration as an opaque blob
// that can later be restored with LoadSetup
func (s *Scope) SaveSetup() ([]byte, error) {
	return s.tx.QueryBlock(":SYSTem:SETup?")
}

// LoadSetup restores a configuration previously read with SaveSetup
func (s *Scope) LoadSetup(setup []byte) error {
	if err := s.tx.WriteBlock(":SYSTem:SETup", setup); err != nil {
		return err
	}
	return s.checkError(":SYSTem:SETup")
}

// Autoscale autoscales the given channels, or everything if none are
// given.  Channel validation is all-or-nothing; nothing is sent unless
// every entry is valid.
func (s *Scope) Autoscale(channels ...string) error {
	chans, err := parseChannels(s.Profile, channels)
	if err != nil {
		return err
	}
	if s.Profile.AutoscalePlacement {
		// stack the traces instead of piling them on top of each other
		if err := s.write(":AUToscale:PLACement SEParate"); err != nil {
			return err
		}
	}
	if len(chans) == 0 {
		return s.write(":AUToscale")
	}
	srcs := make([]string, len(chans))
	for i, c := range chans {
		srcs[i] = c.String()
	}
	return s.write(":AUToscale " + strings.Join(srcs, ","))
}
