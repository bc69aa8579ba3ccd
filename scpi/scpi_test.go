package scpi_test

import (
	"bufio"
	"bytes"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.jpl.nasa.gov/bdube/oscope/scpi"
)

// fakeInstrument serves canned replies, keyed by the command line received
func fakeInstrument(t *testing.T, replies map[string]string) string {
	ln, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		t.Fatal("could not listen, test aborted:", err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				rd := bufio.NewReader(c)
				for {
					line, err := rd.ReadString('\n')
					if err != nil {
						return
					}
					line = strings.TrimRight(line, "\r\n")
					if resp, ok := replies[line]; ok {
						io.WriteString(c, resp)
					}
				}
			}(conn)
		}
	}()
	return ln.Addr().String()
}

func TestQueryStripsTerminator(t *testing.T) {
	addr := fakeInstrument(t, map[string]string{
		"*IDN?": "KEYSIGHT TECHNOLOGIES,MSO-X 3054A,MY0001,07.50\r\n",
	})
	s := scpi.NewTCP(addr)
	defer s.Close()
	resp, err := s.Query("*IDN?")
	if err != nil {
		t.Fatal(err)
	}
	if strings.ContainsAny(resp, "\r\n") {
		t.Errorf("terminator not stripped: %q", resp)
	}
	if !strings.HasPrefix(resp, "KEYSIGHT") {
		t.Errorf("unexpected reply %q", resp)
	}
}

func TestQueryBlockReassemblesFragments(t *testing.T) {
	payload := bytes.Repeat([]byte{0xAB}, 4096)
	framed := append(scpi.EncodeBlock(payload), '\n')
	ln, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		t.Fatal("could not listen, test aborted:", err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		rd := bufio.NewReader(conn)
		rd.ReadString('\n')
		// dribble the block out in small pieces to exercise reassembly
		for i := 0; i < len(framed); i += 100 {
			end := i + 100
			if end > len(framed) {
				end = len(framed)
			}
			conn.Write(framed[i:end])
			time.Sleep(time.Millisecond)
		}
	}()
	s := scpi.NewTCP(ln.Addr().String())
	defer s.Close()
	got, err := s.QueryBlock("HARDcopy?")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("payload corrupted: %d bytes, want %d", len(got), len(payload))
	}
}

func TestPopErrorEmptyQueueIsNil(t *testing.T) {
	addr := fakeInstrument(t, map[string]string{
		"SYSTem:ERRor?": "+0,\"No error\"\n",
	})
	s := scpi.NewTCP(addr)
	defer s.Close()
	if err := s.PopError(); err != nil {
		t.Errorf("empty queue should yield nil, got %v", err)
	}
}

func TestPopErrorSurfacesEntry(t *testing.T) {
	addr := fakeInstrument(t, map[string]string{
		"SYSTem:ERRor?": "-113,\"Undefined header\"\n",
	})
	s := scpi.NewTCP(addr)
	defer s.Close()
	err := s.PopError()
	ie, ok := err.(*scpi.InstrumentError)
	if !ok {
		t.Fatalf("expected *InstrumentError, got %T (%v)", err, err)
	}
	if ie.Code != -113 || ie.Message != "Undefined header" {
		t.Errorf("got (%d, %q)", ie.Code, ie.Message)
	}
}

func TestRawRoutesQueriesAndWrites(t *testing.T) {
	addr := fakeInstrument(t, map[string]string{
		"*OPC?": "1\n",
	})
	s := scpi.NewTCP(addr)
	defer s.Close()
	resp, err := s.Raw("*OPC?")
	if err != nil {
		t.Fatal(err)
	}
	if resp != "1" {
		t.Errorf("got %q, want 1", resp)
	}
	resp, err = s.Raw("*CLS")
	if err != nil {
		t.Fatal(err)
	}
	if resp != "" {
		t.Errorf("bare command should yield empty reply, got %q", resp)
	}
}
