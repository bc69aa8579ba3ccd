package scpi

import (
	"bytes"
	"testing"
)

func TestDecodeBlockRoundTrip(t *testing.T) {
	payload := []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0x00}
	framed := EncodeBlock(payload)
	got, err := DecodeBlock(framed)
	if err != nil {
		t.Fatal("decode failed:", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("payload mangled: got % x want % x", got, payload)
	}
}

func TestDecodeBlockHeaderFormat(t *testing.T) {
	framed := EncodeBlock(make([]byte, 1000))
	if want := "#41000"; string(framed[:6]) != want {
		t.Errorf("header is %q, want %q", framed[:6], want)
	}
}

func TestDecodeBlockLengthMismatch(t *testing.T) {
	// header declares 10 bytes, only 5 present
	raw := append([]byte("#210"), []byte("abcde")...)
	_, err := DecodeBlock(raw)
	bbe, ok := err.(*BadBlockError)
	if !ok {
		t.Fatalf("expected *BadBlockError, got %T (%v)", err, err)
	}
	if bbe.Declared != 10 || bbe.Actual != 5 {
		t.Errorf("declared/actual = %d/%d, want 10/5", bbe.Declared, bbe.Actual)
	}
}

func TestDecodeBlockRejectsGarbage(t *testing.T) {
	cases := []struct {
		label string
		raw   []byte
	}{
		{"no hash", []byte("412345")},
		{"zero digit count", []byte("#012345")},
		{"letter digit count", []byte("#x12345")},
		{"letter in length", []byte("#2a5hello")},
		{"empty", nil},
		{"hash only", []byte("#")},
	}
	for _, tc := range cases {
		t.Run(tc.label, func(t *testing.T) {
			_, err := DecodeBlock(tc.raw)
			if err == nil {
				t.Errorf("decode of %q should have failed", tc.raw)
			}
		})
	}
}
