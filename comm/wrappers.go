package comm

import (
	"io"
	"time"
)

// Terminator wraps a ReadWriter, appending the Tx terminator to each write
// if the caller did not include it.  Reads are passed through untouched;
// consumers strip the Rx terminator themselves since some replies (binary
// blocks) must not be trimmed blindly.
type Terminator struct {
	rw     io.ReadWriter
	tx, rx byte
}

// NewTerminator wraps rw with the given Tx and Rx termination bytes
func NewTerminator(rw io.ReadWriter, tx, rx byte) *Terminator {
	return &Terminator{rw: rw, tx: tx, rx: rx}
}

func (t *Terminator) Write(p []byte) (int, error) {
	if len(p) == 0 || p[len(p)-1] != t.tx {
		p = append(p, t.tx)
	}
	n, err := t.rw.Write(p)
	if n == len(p) {
		// do not count the terminator we added against the caller
		n--
	}
	return n, err
}

func (t *Terminator) Read(p []byte) (int, error) {
	return t.rw.Read(p)
}

// Rx returns the receive terminator byte
func (t *Terminator) Rx() byte {
	return t.rx
}

// deadliner is the subset of net.Conn used to implement I/O timeouts
type deadliner interface {
	SetReadDeadline(time.Time) error
	SetWriteDeadline(time.Time) error
}

type timeoutRW struct {
	rw      io.ReadWriter
	d       deadliner
	timeout time.Duration
}

// NewTimeout wraps rw such that every Read and Write carries a fresh
// deadline.  If the underlying type does not support deadlines (e.g. a
// serial port with its own timeout, or an in-memory pipe in tests), rw is
// returned unchanged.
func NewTimeout(rw io.ReadWriter, timeout time.Duration) (io.ReadWriter, error) {
	// Terminator hides the underlying conn; look through it
	base := rw
	if t, ok := rw.(*Terminator); ok {
		base = t.rw
	}
	d, ok := base.(deadliner)
	if !ok {
		return rw, nil
	}
	return &timeoutRW{rw: rw, d: d, timeout: timeout}, nil
}

func (t *timeoutRW) Read(p []byte) (int, error) {
	err := t.d.SetReadDeadline(time.Now().Add(t.timeout))
	if err != nil {
		return 0, err
	}
	return t.rw.Read(p)
}

func (t *timeoutRW) Write(p []byte) (int, error) {
	err := t.d.SetWriteDeadline(time.Now().Add(t.timeout))
	if err != nil {
		return 0, err
	}
	return t.rw.Write(p)
}
