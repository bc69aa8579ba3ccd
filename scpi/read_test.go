package scpi

import (
	"io"
	"testing"
)

// eofReader yields all of its data in a single call with io.EOF attached
// to the same call, which the io.Reader contract permits
type eofReader struct {
	data []byte
	done bool
}

func (r *eofReader) Read(p []byte) (int, error) {
	if r.done {
		return 0, io.EOF
	}
	r.done = true
	return copy(p, r.data), io.EOF
}

func TestReadBlockToleratesDataWithEOF(t *testing.T) {
	payload := []byte("abcdef")
	got, err := readBlock(&eofReader{data: EncodeBlock(payload)})
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(payload) {
		t.Errorf("got %q, want %q", got, payload)
	}
}

func TestReadBlockTruncatedStillFails(t *testing.T) {
	framed := EncodeBlock([]byte("abcdef"))
	if _, err := readBlock(&eofReader{data: framed[:len(framed)-2]}); err == nil {
		t.Error("truncated block should be an error")
	}
}

func TestReadToTerminatorToleratesDataWithEOF(t *testing.T) {
	got, err := readToTerminator(&eofReader{data: []byte("+1.5E+00\n")}, '\n')
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "+1.5E+00\n" {
		t.Errorf("got %q", got)
	}
}
