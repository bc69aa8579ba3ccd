// Package scpi provides primitives for working with devices that
// have SCPI interfaces
package scpi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.jpl.nasa.gov/bdube/oscope/comm"
)

const (
	timeout = 5 * time.Second

	// rxChunk is the read granularity.  One jumbo ethernet frame; large
	// replies (blocks) loop until the framing says they are complete.
	rxChunk = 9000
)

// SCPI is a type for encapsulating SCPI communication.  The zero value is
// not usable; create one with New or NewTCP.
type SCPI struct {
	Pool *comm.Pool

	// Limiter, if non-nil, paces commands.  Some instruments drop or
	// misorder messages when they arrive faster than the firmware polls
	// its input buffer; this is the moral equivalent of the "wait N
	// seconds after each command" knob on vendor libraries.
	Limiter *rate.Limiter
}

// NewTCP returns an SCPI communicator speaking to addr over TCP,
// with a single pooled connection
func NewTCP(addr string) *SCPI {
	maker := comm.BackingOffTCPConnMaker(addr, 3*time.Second)
	return New(maker)
}

// New returns an SCPI communicator over any transport maker (TCP, serial,
// USBTMC) with a single pooled connection
func New(maker comm.CreationFunc) *SCPI {
	return &SCPI{Pool: comm.NewPool(1, time.Hour, maker)}
}

// SetPace inserts a minimum delay between consecutive commands.
// A zero duration removes pacing.
func (s *SCPI) SetPace(d time.Duration) {
	if d == 0 {
		s.Limiter = nil
		return
	}
	s.Limiter = rate.NewLimiter(rate.Every(d), 1)
}

func (s *SCPI) pace() {
	if s.Limiter != nil {
		s.Limiter.Wait(context.Background())
	}
}

// Write sends a command (or several, joined by spaces) to the device
func (s *SCPI) Write(cmds ...string) error {
	s.pace()
	conn, err := s.Pool.Get()
	if err != nil {
		return err
	}
	defer func() { s.Pool.ReturnWithError(conn, err) }()
	var wrap io.ReadWriter
	wrap = comm.NewTerminator(conn, '\n', '\n')
	wrap, err = comm.NewTimeout(wrap, timeout)
	if err != nil {
		return err
	}
	_, err = io.WriteString(wrap, strings.Join(cmds, " "))
	return err
}

// Query sends a command to the device and returns the raw reply with the
// line terminator stripped
func (s *SCPI) Query(cmd string) (string, error) {
	s.pace()
	var resp []byte
	conn, err := s.Pool.Get()
	if err != nil {
		return "", err
	}
	defer func() { s.Pool.ReturnWithError(conn, err) }()
	var wrap io.ReadWriter
	wrap = comm.NewTerminator(conn, '\n', '\n')
	wrap, err = comm.NewTimeout(wrap, timeout)
	if err != nil {
		return "", err
	}
	_, err = io.WriteString(wrap, cmd)
	if err != nil {
		return "", err
	}
	resp, err = readToTerminator(wrap, '\n')
	if err != nil {
		return "", err
	}
	return string(trimEOL(resp)), nil
}

// QueryBlock sends a command to the device and decodes the IEEE 488.2
// definite-length block reply, returning the payload bytes
func (s *SCPI) QueryBlock(cmd string) ([]byte, error) {
	s.pace()
	var ret []byte
	conn, err := s.Pool.Get()
	if err != nil {
		return ret, err
	}
	defer func() { s.Pool.ReturnWithError(conn, err) }()
	var wrap io.ReadWriter
	wrap = comm.NewTerminator(conn, '\n', '\n')
	wrap, err = comm.NewTimeout(wrap, timeout)
	if err != nil {
		return ret, err
	}
	_, err = io.WriteString(wrap, cmd)
	if err != nil {
		return ret, err
	}
	ret, err = readBlock(wrap)
	return ret, err
}

// WriteBlock sends a command followed by a definite-length block payload,
// e.g. for loading an instrument setup
func (s *SCPI) WriteBlock(cmd string, data []byte) error {
	s.pace()
	conn, err := s.Pool.Get()
	if err != nil {
		return err
	}
	defer func() { s.Pool.ReturnWithError(conn, err) }()
	var wrap io.ReadWriter
	wrap, err = comm.NewTimeout(conn, timeout)
	if err != nil {
		return err
	}
	buf := make([]byte, 0, len(cmd)+len(data)+16)
	buf = append(buf, cmd...)
	buf = append(buf, ' ')
	buf = append(buf, EncodeBlock(data)...)
	buf = append(buf, '\n')
	_, err = wrap.Write(buf)
	return err
}

// Raw sends a command to the device and returns a response if it was a
// query, else a blank string
func (s *SCPI) Raw(str string) (string, error) {
	if strings.Contains(str, "?") {
		return s.Query(str)
	}
	return "", s.Write(str)
}

// Close releases the pooled connections to the device
func (s *SCPI) Close() error {
	return s.Pool.Close()
}

// PopError gets a single error from the queue on the device.
// nil is returned when the queue is empty ("no error").
func (s *SCPI) PopError() error {
	resp, err := s.Query("SYSTem:ERRor?")
	if err != nil {
		return err
	}
	code, msg, err := ParseSystemError(resp)
	if err != nil {
		return err
	}
	if code == 0 {
		return nil
	}
	return &InstrumentError{Code: code, Message: msg}
}

// AllErrors drains the error queue on the device and returns the contents
// as a list.  The queue on the instrument is finite (tens of entries) so
// the drain is bounded.
func (s *SCPI) AllErrors() []error {
	const maxQueue = 30
	var errs []error
	for i := 0; i < maxQueue; i++ {
		err := s.PopError()
		if err == nil {
			break
		}
		errs = append(errs, err)
		if _, ok := err.(*InstrumentError); !ok {
			// communication failure, not an entry; stop digging
			break
		}
	}
	return errs
}

// readToTerminator accumulates reads until term is seen, returning
// everything up to and including it
func readToTerminator(r io.Reader, term byte) ([]byte, error) {
	var out []byte
	buf := make([]byte, rxChunk)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			out = append(out, buf[:n]...)
			if idx := bytes.IndexByte(out, term); idx >= 0 {
				return out[:idx+1], nil
			}
		}
		if err != nil {
			return out, err
		}
	}
}

// readBlock reads a definite-length block from r, looping until the byte
// count promised by the header has arrived
func readBlock(r io.Reader) ([]byte, error) {
	var out []byte
	buf := make([]byte, rxChunk)
	// first read must at least give us the start of the header.  readers
	// may return data and an error in the same call, so errors only count
	// when the bytes in hand are still short.
	for len(out) < 2 {
		n, err := r.Read(buf)
		if n > 0 {
			out = append(out, buf[:n]...)
		}
		if err != nil && len(out) < 2 {
			return nil, fmt.Errorf("reading block header: %w", err)
		}
	}
	if out[0] != '#' {
		return nil, &BadBlockError{Reason: fmt.Sprintf("block did not begin with #, got %q", out[0])}
	}
	ndigits := int(out[1] - '0')
	if ndigits < 1 || ndigits > 9 {
		return nil, &BadBlockError{Reason: fmt.Sprintf("invalid digit count %q in block header", out[1])}
	}
	hdrLen := 2 + ndigits
	for len(out) < hdrLen {
		n, err := r.Read(buf)
		if n > 0 {
			out = append(out, buf[:n]...)
		}
		if err != nil && len(out) < hdrLen {
			return nil, fmt.Errorf("reading block header: %w", err)
		}
	}
	nbytes := 0
	for _, c := range out[2:hdrLen] {
		if c < '0' || c > '9' {
			return nil, &BadBlockError{Reason: fmt.Sprintf("non-numeric byte %q in block length", c)}
		}
		nbytes = nbytes*10 + int(c-'0')
	}
	total := hdrLen + nbytes
	for len(out) < total {
		n, err := r.Read(buf)
		if n > 0 {
			out = append(out, buf[:n]...)
		}
		if err != nil && len(out) < total {
			return nil, &BadBlockError{Declared: nbytes, Actual: len(out) - hdrLen,
				Reason: fmt.Sprintf("stream ended early: %v", err)}
		}
	}
	// re-validate via the single decode point; anything past total is the
	// line terminator and is discarded
	return DecodeBlock(out[:total])
}

func trimEOL(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}
