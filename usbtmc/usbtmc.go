/*Package usbtmc implements bulk transfers for USB Test and Measurement
Class devices, presenting them as an io.ReadWriteCloser so they can sit
behind a connection pool the same way a TCP socket does.

Only the DEV_DEP_MSG subset of the class is implemented: each Write is one
complete device-dependent message, and each Read issues a request and
returns the payload of the response.  Multi-transfer messages larger than
the negotiated buffer are reassembled by the caller's read loop via the EOM
bit handling here.
*/
package usbtmc

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/google/gousb"
)

const (
	reserved = 0x00

	// msgDevDepOut and msgDevDepInReq are the MsgID values from the class
	// specification, tables 3 and 4
	msgDevDepOut   = 0x01
	msgDevDepInReq = 0x02

	headerSize = 12
	alignment  = 4

	// bufSize is the transfer size requested from the device per read
	bufSize = 1024 * 64
)

// bTagGen generates the per-transfer tag bytes.  Tags must be nonzero and
// should increment with each transfer.
type bTagGen struct {
	sync.Mutex
	value byte
}

func (b *bTagGen) next() byte {
	b.Lock()
	defer b.Unlock()
	b.value++
	if b.value == 0 {
		b.value = 1
	}
	return b.value
}

// encBulkOutHeader frames a device-dependent message out transfer
func encBulkOutHeader(tag byte, datalen int) [headerSize]byte {
	var out [headerSize]byte
	out[0] = msgDevDepOut
	out[1] = tag
	out[2] = tag ^ 0xff
	out[3] = reserved
	binary.LittleEndian.PutUint32(out[4:8], uint32(datalen))
	out[8] = 0x01 // EOM: each Write is a complete message
	return out
}

// encBulkInHeader frames a request for a device-dependent message in
// transfer of up to bufsize bytes, terminated by term
func encBulkInHeader(tag byte, bufsize int, term byte) [headerSize]byte {
	var out [headerSize]byte
	out[0] = msgDevDepInReq
	out[1] = tag
	out[2] = tag ^ 0xff
	out[3] = reserved
	binary.LittleEndian.PutUint32(out[4:8], uint32(bufsize))
	out[8] = 0x02 // termination character enabled
	out[9] = term
	return out
}

// decBulkInHeader validates a device-dependent message in response header
// and returns the transfer size it declares.  The response echoes the
// DEV_DEP_MSG_IN MsgID of the request it answers.
func decBulkInHeader(buf []byte) (int, error) {
	if len(buf) < headerSize {
		return 0, fmt.Errorf("received %d bytes, need at least %d to form a header", len(buf), headerSize)
	}
	if buf[0] != msgDevDepInReq {
		return 0, fmt.Errorf("unexpected MsgID %#x in response", buf[0])
	}
	return int(binary.LittleEndian.Uint32(buf[4:8])), nil
}

// Device is a USBTMC instrument open for bulk transfers
type Device struct {
	tagger bTagGen
	in     *gousb.InEndpoint
	out    *gousb.OutEndpoint
	device *gousb.Device
	iface  *gousb.Interface
	closer func()

	// pending holds payload bytes received but not yet consumed by Read
	pending []byte
}

// Open opens the USBTMC device with the given vendor and product ID
func Open(vid, pid uint16) (*Device, error) {
	d := &Device{}
	var err error
	ctx := gousb.NewContext()
	d.device, err = ctx.OpenDeviceWithVIDPID(gousb.ID(vid), gousb.ID(pid))
	if err != nil {
		return nil, err
	}
	if d.device == nil {
		return nil, fmt.Errorf("no USB device with VID:PID %04x:%04x", vid, pid)
	}
	err = d.device.SetAutoDetach(true)
	if err != nil {
		return nil, err
	}
	d.iface, d.closer, err = d.device.DefaultInterface()
	if err != nil {
		return nil, err
	}
	d.in, err = d.iface.InEndpoint(2)
	if err != nil {
		d.closer()
		return nil, err
	}
	d.out, err = d.iface.OutEndpoint(2)
	if err != nil {
		d.closer()
		return nil, err
	}
	return d, nil
}

// ConnMaker returns a connection maker for the device, suitable for use
// with a comm.Pool
func ConnMaker(vid, pid uint16) func() (io.ReadWriteCloser, error) {
	return func() (io.ReadWriteCloser, error) {
		return Open(vid, pid)
	}
}

// Write sends p to the instrument as one complete message
func (d *Device) Write(p []byte) (int, error) {
	hdr := encBulkOutHeader(d.tagger.next(), len(p))
	buf := make([]byte, 0, headerSize+len(p)+alignment)
	buf = append(buf, hdr[:]...)
	buf = append(buf, p...)
	// transfers are padded to 4-byte alignment; the pad bytes do not count
	// toward the transfer size in the header
	if residual := len(buf) % alignment; residual > 0 {
		buf = append(buf, make([]byte, alignment-residual)...)
	}
	_, err := d.out.Write(buf)
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

// Read fills p with payload bytes from the instrument, requesting a new
// transfer when nothing is buffered from the last one
func (d *Device) Read(p []byte) (int, error) {
	if len(d.pending) == 0 {
		if err := d.fill(); err != nil {
			return 0, err
		}
	}
	n := copy(p, d.pending)
	d.pending = d.pending[n:]
	return n, nil
}

// fill requests one transfer from the instrument and buffers its payload
func (d *Device) fill() error {
	hdr := encBulkInHeader(d.tagger.next(), bufSize, '\n')
	_, err := d.out.Write(hdr[:])
	if err != nil {
		return err
	}
	buf := make([]byte, bufSize+headerSize)
	n, err := d.in.Read(buf)
	if err != nil {
		return err
	}
	transferSize, err := decBulkInHeader(buf[:n])
	if err != nil {
		return err
	}
	avail := n - headerSize
	if transferSize < avail {
		avail = transferSize
	}
	d.pending = buf[headerSize : headerSize+avail]
	return nil
}

// Close releases the interface and closes the device
func (d *Device) Close() error {
	d.closer()
	return d.device.Close()
}
