/*Package keysight provides a remote control interface to Keysight
oscilloscopes over their SCPI remote interfaces.

A Scope session wraps a Transport (TCP, serial, or USBTMC via the scpi
package) and adds the model-specific vocabulary: which channels exist,
which dialect of annotation/hardcopy/autoscale commands the firmware
speaks, and how long labels may be.  All validation happens host-side
before anything touches the wire; a command that would be rejected by
the instrument for a reason we can see in advance is never sent.

State-changing commands are followed by exactly one error queue check,
so firmware rejections surface as errors on the call that caused them
rather than polluting the next query.
*/
package keysight

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tarm/serial"

	"github.jpl.nasa.gov/bdube/oscope/comm"
	"github.jpl.nasa.gov/bdube/oscope/scpi"
)

// ErrNoChannel is returned by operations that act on the selected channel
// when no channel has been selected
var ErrNoChannel = fmt.Errorf("no channel selected, use SetChannel first")

// ErrUnavailable is the measurement-unavailable sentinel, see scpi.ParseFloat
var ErrUnavailable = scpi.ErrUnavailable

// Transport is the communication surface a Scope needs.  *scpi.SCPI
// satisfies it; tests substitute an in-memory fake.
type Transport interface {
	Write(cmds ...string) error
	Query(cmd string) (string, error)
	QueryBlock(cmd string) ([]byte, error)
	WriteBlock(cmd string, data []byte) error
	Raw(cmd string) (string, error)
	Close() error
}

// Scope is a session with a Keysight oscilloscope
type Scope struct {
	tx Transport

	// Profile is the vocabulary of the connected model
	Profile Profile

	// IDN is the raw identification string from the instrument
	IDN string

	current *Channel
}

// NewScope connects to a scope at addr over TCP and identifies it
func NewScope(addr string) (*Scope, error) {
	return Connect(scpi.NewTCP(addr))
}

// NewScopeSerial connects to a scope over the serial port described by
// port and baud, and identifies it
func NewScopeSerial(port string, baud int) (*Scope, error) {
	conf := &serial.Config{Name: port, Baud: baud, ReadTimeout: 5 * time.Second}
	return Connect(scpi.New(comm.SerialConnMaker(conf)))
}

// Connect identifies the instrument on tx and returns a session speaking
// its dialect.  The status registers are cleared so stale errors from a
// previous session do not masquerade as ours.
func Connect(tx Transport) (*Scope, error) {
	idn, err := tx.Query("*IDN?")
	if err != nil {
		return nil, fmt.Errorf("identifying instrument: %w", err)
	}
	s := &Scope{tx: tx, IDN: idn, Profile: DetectProfile(idn)}
	err = tx.Write("*CLS")
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Close releases the connection to the scope
func (s *Scope) Close() error {
	return s.tx.Close()
}

// Identify returns the instrument's identification string
func (s *Scope) Identify() string {
	return s.IDN
}

// Reset restores the instrument to its power-on defaults
func (s *Scope) Reset() error {
	return s.tx.Write("*RST")
}

// ClearStatus clears the instrument's status registers and error queue
func (s *Scope) ClearStatus() error {
	return s.tx.Write("*CLS")
}

// Lock disables the instrument's front panel so nobody turns a knob
// mid-acquisition
func (s *Scope) Lock() error {
	return s.write(":SYSTem:LOCK ON")
}

// Unlock returns the instrument's front panel to local control
func (s *Scope) Unlock() error {
	return s.write(":SYSTem:LOCK OFF")
}

// Raw sends a raw SCPI string, returning a reply if it was a query.
// No validation or error queue check is performed; this is an escape
// hatch for commands the session does not model.
func (s *Scope) Raw(cmd string) (string, error) {
	return s.tx.Raw(cmd)
}

// SetChannel selects the channel that subsequent single-channel operations
// act on.  The selection is host-side session state; nothing is sent to
// the instrument.
func (s *Scope) SetChannel(channel string) error {
	c, err := ParseChannel(channel)
	if err != nil {
		return err
	}
	if err := s.Profile.Validate(c); err != nil {
		return err
	}
	s.current = &c
	return nil
}

// Channel returns the currently selected channel
func (s *Scope) Channel() (Channel, error) {
	if s.current == nil {
		return Channel{}, ErrNoChannel
	}
	return *s.current, nil
}

// write sends a state-changing command and then checks the error queue
// once, attributing any entry found to cmd
func (s *Scope) write(cmd string) error {
	if err := s.tx.Write(cmd); err != nil {
		return err
	}
	return s.checkError(cmd)
}

// checkError pops one entry from the instrument's error queue
func (s *Scope) checkError(cmd string) error {
	resp, err := s.tx.Query(s.Profile.ErrorQuery)
	if err != nil {
		return err
	}
	code, msg, err := scpi.ParseSystemError(resp)
	if err != nil {
		return err
	}
	if code == 0 {
		return nil
	}
	return &scpi.InstrumentError{Code: code, Message: msg, Cmd: cmd}
}

// queryFloat runs a query whose reply is a scale factor or similar exact
// number; the over-range sentinel is not expected and not special-cased
func (s *Scope) queryFloat(cmd string) (float64, error) {
	resp, err := s.tx.Query(cmd)
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(resp), 64)
	if err != nil {
		return 0, fmt.Errorf("malformed response %q to %s: %w", resp, cmd, err)
	}
	return f, nil
}

// queryBool runs a query whose reply is a boolean token
func (s *Scope) queryBool(cmd string) (bool, error) {
	resp, err := s.tx.Query(cmd)
	if err != nil {
		return false, err
	}
	return scpi.ParseBool(resp)
}
