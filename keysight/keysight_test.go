package keysight

import (
	"fmt"
	"strings"
	"testing"
)

// mockTx is an in-memory Transport that serves canned replies and records
// everything sent to it
type mockTx struct {
	writes  []string
	queries []string
	replies map[string]string
	blocks  map[string][]byte
	sent    map[string][]byte
	errResp string
}

func newMockTx() *mockTx {
	return &mockTx{
		replies: map[string]string{},
		blocks:  map[string][]byte{},
		sent:    map[string][]byte{},
		errResp: `+0,"No error"`,
	}
}

func (m *mockTx) Write(cmds ...string) error {
	m.writes = append(m.writes, strings.Join(cmds, " "))
	return nil
}

func (m *mockTx) Query(cmd string) (string, error) {
	m.queries = append(m.queries, cmd)
	if strings.HasPrefix(cmd, "SYSTem:ERRor?") {
		return m.errResp, nil
	}
	if resp, ok := m.replies[cmd]; ok {
		return resp, nil
	}
	return "", fmt.Errorf("mock has no reply for %q", cmd)
}

func (m *mockTx) QueryBlock(cmd string) ([]byte, error) {
	m.queries = append(m.queries, cmd)
	if b, ok := m.blocks[cmd]; ok {
		return b, nil
	}
	return nil, fmt.Errorf("mock has no block for %q", cmd)
}

func (m *mockTx) WriteBlock(cmd string, data []byte) error {
	m.sent[cmd] = data
	return nil
}

func (m *mockTx) Raw(cmd string) (string, error) {
	if strings.Contains(cmd, "?") {
		return m.Query(cmd)
	}
	return "", m.Write(cmd)
}

func (m *mockTx) Close() error { return nil }

// errorQueries counts the error queue polls recorded so far
func (m *mockTx) errorQueries() int {
	n := 0
	for _, q := range m.queries {
		if strings.HasPrefix(q, "SYSTem:ERRor?") {
			n++
		}
	}
	return n
}

const (
	idnMXR8   = "KEYSIGHT TECHNOLOGIES,MXR058A,MY0000001,11.10"
	idnMSOX3k = "KEYSIGHT TECHNOLOGIES,MSO-X 3054A,MY0000002,07.50"
)

func connect(t *testing.T, idn string) (*Scope, *mockTx) {
	tx := newMockTx()
	tx.replies["*IDN?"] = idn
	s, err := Connect(tx)
	if err != nil {
		t.Fatal("could not connect:", err)
	}
	// forget the handshake traffic so tests assert only their own
	tx.writes = nil
	tx.queries = nil
	return s, tx
}

func TestConnectClearsStatus(t *testing.T) {
	tx := newMockTx()
	tx.replies["*IDN?"] = idnMXR8
	s, err := Connect(tx)
	if err != nil {
		t.Fatal(err)
	}
	if len(tx.writes) != 1 || tx.writes[0] != "*CLS" {
		t.Errorf("expected *CLS on connect, wrote %v", tx.writes)
	}
	if s.Profile.Analog != 8 {
		t.Errorf("MXR058A should have 8 analog channels, profile says %d", s.Profile.Analog)
	}
}

func TestSetChannelAcceptsAllAnalogChannels(t *testing.T) {
	s, tx := connect(t, idnMXR8)
	for i := 1; i <= 8; i++ {
		if err := s.SetChannel(fmt.Sprintf("CHAN%d", i)); err != nil {
			t.Errorf("CHAN%d should be valid on an 8 channel scope: %v", i, err)
		}
	}
	if err := s.SetChannel("CHAN9"); err == nil {
		t.Error("CHAN9 should be rejected on an 8 channel scope")
	}
	if len(tx.writes)+len(tx.queries) != 0 {
		t.Errorf("channel selection should not touch the wire, saw %v %v", tx.writes, tx.queries)
	}
}

func TestSetChannelRejectsBeyondModel(t *testing.T) {
	s, tx := connect(t, idnMSOX3k)
	if err := s.SetChannel("CHAN5"); err == nil {
		t.Error("CHAN5 should be rejected on a 4 channel scope")
	}
	if err := s.SetChannel("HIST"); err == nil {
		t.Error("HIST is not a source on InfiniiVision scopes")
	}
	if len(tx.writes)+len(tx.queries) != 0 {
		t.Errorf("rejected selection should not touch the wire, saw %v %v", tx.writes, tx.queries)
	}
}

func TestMeasureRequiresChannel(t *testing.T) {
	s, tx := connect(t, idnMSOX3k)
	_, err := s.MeasureFrequency(false)
	if err != ErrNoChannel {
		t.Errorf("expected ErrNoChannel, got %v", err)
	}
	if len(tx.writes)+len(tx.queries) != 0 {
		t.Errorf("measurement without a channel should not touch the wire, saw %v %v", tx.writes, tx.queries)
	}
}

func TestMeasureFrequency(t *testing.T) {
	s, tx := connect(t, idnMSOX3k)
	if err := s.SetChannel("1"); err != nil {
		t.Fatal(err)
	}
	tx.replies[":MEASure:FREQuency? CHAN1"] = "+1.00000E+06"
	f, err := s.MeasureFrequency(false)
	if err != nil {
		t.Fatal(err)
	}
	if f != 1e6 {
		t.Errorf("got %g, want 1e6", f)
	}
	if len(tx.writes) != 0 {
		t.Errorf("uninstalled measurement should be query-only, wrote %v", tx.writes)
	}
}

func TestMeasureInstallAddsToDisplay(t *testing.T) {
	s, tx := connect(t, idnMSOX3k)
	if err := s.SetChannel("CHAN2"); err != nil {
		t.Fatal(err)
	}
	tx.replies[":MEASure:VPP? CHAN2"] = "+2.5E+00"
	v, err := s.MeasureVPP(true)
	if err != nil {
		t.Fatal(err)
	}
	if v != 2.5 {
		t.Errorf("got %g, want 2.5", v)
	}
	if len(tx.writes) != 2 ||
		tx.writes[0] != ":MEASure:STATistics:DISPlay ON" ||
		tx.writes[1] != ":MEASure:VPP CHAN2" {
		t.Errorf("install should enable statistics then add the measurement, wrote %v", tx.writes)
	}
	if tx.errorQueries() != 2 {
		t.Errorf("both install writes are state-changing and should each check errors, did %d times", tx.errorQueries())
	}

	modern, mtx := connect(t, idnMXR8)
	if err := modern.SetChannel("CHAN1"); err != nil {
		t.Fatal(err)
	}
	mtx.replies[":MEASure:VPP? CHAN1"] = "+2.5E+00"
	if _, err := modern.MeasureVPP(true); err != nil {
		t.Fatal(err)
	}
	if mtx.writes[0] != ":MEASure:STATistics ON" {
		t.Errorf("Infiniium enables statistics directly, wrote %v", mtx.writes)
	}
}

func TestMeasureInstallKeepsParameters(t *testing.T) {
	s, tx := connect(t, idnMSOX3k)
	if err := s.SetChannel("CHAN2"); err != nil {
		t.Fatal(err)
	}
	tx.replies[":MEASure:VRMS? DISPlay,DC,CHAN2"] = "1.0"
	if _, err := s.MeasureVoltRMS(true); err != nil {
		t.Fatal(err)
	}
	if tx.writes[1] != ":MEASure:VRMS DISPlay,DC,CHAN2" {
		t.Errorf("install form should carry the same parameters as the query, wrote %v", tx.writes)
	}
}

func TestMeasureUnavailable(t *testing.T) {
	s, tx := connect(t, idnMSOX3k)
	if err := s.SetChannel("CHAN1"); err != nil {
		t.Fatal(err)
	}
	tx.replies[":MEASure:FREQuency? CHAN1"] = "+9.9E+37"
	_, err := s.MeasureFrequency(false)
	if err != ErrUnavailable {
		t.Errorf("over-range reply should map to ErrUnavailable, got %v", err)
	}
}

func TestMeasureVoltParameters(t *testing.T) {
	s, tx := connect(t, idnMSOX3k)
	if err := s.SetChannel("CHAN1"); err != nil {
		t.Fatal(err)
	}
	tx.replies[":MEASure:VAVerage? DISPlay,CHAN1"] = "1.0"
	tx.replies[":MEASure:VRMS? DISPlay,DC,CHAN1"] = "2.0"
	if _, err := s.MeasureVoltAverage(false); err != nil {
		t.Error("average:", err)
	}
	if _, err := s.MeasureVoltRMS(false); err != nil {
		t.Error("rms:", err)
	}
}

func TestWriteChecksErrorQueueExactlyOnce(t *testing.T) {
	s, tx := connect(t, idnMSOX3k)
	if err := s.Run(); err != nil {
		t.Fatal(err)
	}
	if tx.errorQueries() != 1 {
		t.Errorf("expected exactly one error queue poll, got %d", tx.errorQueries())
	}
}

func TestInstrumentErrorCarriesCommand(t *testing.T) {
	s, tx := connect(t, idnMSOX3k)
	tx.errResp = `-113,"Undefined header"`
	err := s.Run()
	if err == nil {
		t.Fatal("firmware rejection should surface as an error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "-113") || !strings.Contains(msg, ":RUN") {
		t.Errorf("error should name the code and command, got %q", msg)
	}
}

func TestSetLabelTooLongNeverReachesWire(t *testing.T) {
	s, tx := connect(t, idnMSOX3k)
	if err := s.SetChannel("CHAN1"); err != nil {
		t.Fatal(err)
	}
	err := s.SetLabel("elevenchars") // 11 > the family's limit of 10
	if err == nil {
		t.Fatal("over-length label should be rejected")
	}
	if len(tx.writes)+len(tx.queries) != 0 {
		t.Errorf("rejected label should not touch the wire, saw %v %v", tx.writes, tx.queries)
	}
}

func TestSetLabelWithinLimit(t *testing.T) {
	s, tx := connect(t, idnMXR8)
	if err := s.SetChannel("CHAN1"); err != nil {
		t.Fatal(err)
	}
	// 11 characters is fine on Infiniium, which allows 16
	if err := s.SetLabel("elevenchars"); err != nil {
		t.Fatal(err)
	}
	if tx.writes[0] != `:CHAN1:LABel "elevenchars"` {
		t.Errorf("unexpected label command %q", tx.writes[0])
	}
	if tx.writes[1] != ":DISPlay:LABel ON" {
		t.Errorf("label display should be turned on, wrote %v", tx.writes)
	}
}

func TestSetLabelCountsCharacters(t *testing.T) {
	s, tx := connect(t, idnMSOX3k)
	if err := s.SetChannel("CHAN1"); err != nil {
		t.Fatal(err)
	}
	// ten characters, twenty bytes
	label := strings.Repeat("µ", 10)
	if err := s.SetLabel(label); err != nil {
		t.Fatal(err)
	}
	if tx.writes[0] != `:CHAN1:LABel "`+label+`"` {
		t.Errorf("wrote %q", tx.writes[0])
	}
}

func TestEnableOutputAllOrNothing(t *testing.T) {
	s, tx := connect(t, idnMSOX3k)
	err := s.EnableOutput("CHAN1", "CHAN2", "CHAN7")
	if err == nil {
		t.Fatal("CHAN7 is invalid on this model and should poison the whole call")
	}
	if len(tx.writes) != 0 {
		t.Errorf("no command should be sent when any channel is invalid, wrote %v", tx.writes)
	}
	if err := s.EnableOutput("CHAN1", "POD1"); err != nil {
		t.Fatal(err)
	}
	if len(tx.writes) != 2 || tx.writes[0] != ":VIEW CHAN1" || tx.writes[1] != ":VIEW POD1" {
		t.Errorf("wrote %v", tx.writes)
	}
}

func TestDisableAllOutputsDialect(t *testing.T) {
	legacy, ltx := connect(t, idnMSOX3k)
	if err := legacy.DisableAllOutputs(); err != nil {
		t.Fatal(err)
	}
	if ltx.writes[0] != ":BLANk" {
		t.Errorf("InfiniiVision blanks everything with a bare BLANk, wrote %q", ltx.writes[0])
	}
	modern, mtx := connect(t, idnMXR8)
	if err := modern.DisableAllOutputs(); err != nil {
		t.Fatal(err)
	}
	if mtx.writes[0] != ":BLANk ALL" {
		t.Errorf("Infiniium blanks everything with BLANk ALL, wrote %q", mtx.writes[0])
	}
}

func TestAnnotateDialect(t *testing.T) {
	legacy, ltx := connect(t, idnMSOX3k)
	if err := legacy.Annotate("DUT 7", ""); err != nil {
		t.Fatal(err)
	}
	if ltx.writes[0] != `:DISPlay:ANNotation:TEXT "DUT 7"` {
		t.Errorf("wrote %q", ltx.writes[0])
	}
	modern, mtx := connect(t, idnMXR8)
	if err := modern.Annotate("DUT 7", ""); err != nil {
		t.Fatal(err)
	}
	if mtx.writes[0] != `:DISPlay:BOOKmark1:SET NONE,"DUT 7"` {
		t.Errorf("wrote %q", mtx.writes[0])
	}
}

func TestAnnotateColor(t *testing.T) {
	legacy, ltx := connect(t, idnMSOX3k)
	if err := legacy.Annotate("vdd rail", "2"); err != nil {
		t.Fatal(err)
	}
	if ltx.writes[1] != ":DISPlay:ANNotation:COLor CHAN2" {
		t.Errorf("wrote %v", ltx.writes)
	}
	if err := legacy.Annotate("vdd rail", "CHAN9"); err == nil {
		t.Error("invalid color channel should be rejected")
	}
}

func TestHardcopyDialect(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G'}
	legacy, ltx := connect(t, idnMSOX3k)
	ltx.blocks[":DISPlay:DATA? PNG,COLor"] = png
	img, err := legacy.Hardcopy()
	if err != nil {
		t.Fatal(err)
	}
	if string(img) != string(png) {
		t.Error("image bytes mangled")
	}
	if ltx.writes[0] != ":HARDcopy:INKSaver OFF" {
		t.Errorf("ink saver should be defeated first, wrote %v", ltx.writes)
	}
	modern, mtx := connect(t, idnMXR8)
	mtx.blocks[":DISPlay:DATA? PNG,SCReen,ON,NORMal"] = png
	if _, err := modern.Hardcopy(); err != nil {
		t.Fatal(err)
	}
	if len(mtx.writes) != 0 {
		t.Errorf("Infiniium hardcopy is a pure query, wrote %v", mtx.writes)
	}
}

func TestSetupRoundTrip(t *testing.T) {
	s, tx := connect(t, idnMSOX3k)
	blob := []byte{1, 2, 3, 4, 5}
	tx.blocks[":SYSTem:SETup?"] = blob
	got, err := s.SaveSetup()
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(blob) {
		t.Error("setup blob mangled on save")
	}
	if err := s.LoadSetup(got); err != nil {
		t.Fatal(err)
	}
	if string(tx.sent[":SYSTem:SETup"]) != string(blob) {
		t.Error("setup blob mangled on load")
	}
	if tx.errorQueries() != 1 {
		t.Errorf("load is state-changing and should check errors once, did %d times", tx.errorQueries())
	}
}

func TestAutoscale(t *testing.T) {
	s, tx := connect(t, idnMSOX3k)
	if err := s.Autoscale("CHAN1", "CHAN9"); err == nil {
		t.Fatal("invalid channel should poison autoscale")
	}
	if len(tx.writes) != 0 {
		t.Errorf("nothing should be sent on invalid input, wrote %v", tx.writes)
	}
	if err := s.Autoscale("CHAN1", "CHAN2"); err != nil {
		t.Fatal(err)
	}
	if tx.writes[0] != ":AUToscale CHAN1,CHAN2" {
		t.Errorf("wrote %q", tx.writes[0])
	}
}

func TestAutoscalePlacement(t *testing.T) {
	s, tx := connect(t, idnMXR8)
	if err := s.Autoscale(); err != nil {
		t.Fatal(err)
	}
	if tx.writes[0] != ":AUToscale:PLACement SEParate" || tx.writes[1] != ":AUToscale" {
		t.Errorf("wrote %v", tx.writes)
	}
}

func TestStatistics(t *testing.T) {
	s, tx := connect(t, idnMSOX3k)
	tx.replies[":MEASure:RESults?"] = "Freq(1),1.0E+06,9.9E+05,1.1E+06,1.0E+06,5.0E+03,127," +
		"Pk-Pk(1),2.5,2.4,2.6,2.5,0.05,127"
	stats, err := s.Statistics()
	if err != nil {
		t.Fatal(err)
	}
	if len(stats) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(stats))
	}
	if stats[0].Label != "Freq(1)" || stats[0].Count != 127 {
		t.Errorf("first row parsed as %+v", stats[0])
	}
	if stats[1].Mean != 2.5 {
		t.Errorf("second row mean is %g", stats[1].Mean)
	}
}

func TestStatisticsMalformed(t *testing.T) {
	s, tx := connect(t, idnMSOX3k)
	tx.replies[":MEASure:RESults?"] = "Freq(1),1.0,2.0"
	if _, err := s.Statistics(); err == nil {
		t.Error("short row should be malformed")
	}
}
