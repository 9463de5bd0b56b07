package tpg

import (
	"bufio"
	"errors"
	"io"
	"math"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/alexkolodchuk/maxigauge/comm"
)

func TestParsePressureManualExample(t *testing.T) {
	// example response from the manual, p. 88
	pr, err := parsePressure(1, "0,+7.2198E-05")
	if err != nil {
		t.Fatal(err)
	}
	if pr.Channel != 1 {
		t.Errorf("expected channel 1, got %d", pr.Channel)
	}
	if pr.Status != StatusOK {
		t.Errorf("expected status okay, got %v", pr.Status)
	}
	if math.Abs(pr.Pressure-7.2198e-05) > 1e-12 {
		t.Errorf("expected pressure 7.2198E-05, got %g", pr.Pressure)
	}
}

func TestParsePressureSensorOff(t *testing.T) {
	pr, err := parsePressure(3, "4,+0.0000E+00")
	if err != nil {
		t.Fatal(err)
	}
	if pr.Status != StatusSensorOff {
		t.Errorf("expected status sensor off, got %v", pr.Status)
	}
	if pr.Status.Usable() {
		t.Error("sensor off must not be a usable measurement")
	}
}

func TestParsePressureRejectsBadStatus(t *testing.T) {
	_, err := parsePressure(1, "7,+1.0000E-06")
	if err == nil {
		t.Fatal("expected an error for status outside 0..6")
	}
}

func TestParsePressureRejectsGarbage(t *testing.T) {
	for _, line := range []string{"", "0", "zero,+1.0E-06", "0,fast"} {
		if _, err := parsePressure(1, line); err == nil {
			t.Errorf("expected an error interpreting %q", line)
		}
	}
}

func TestNAKErrorDecode(t *testing.T) {
	err := NAKError{System: 4096, Gauge: 2}
	msg := err.Error()
	if !strings.Contains(msg, "Syntax error") {
		t.Errorf("expected syntax error in %q", msg)
	}
	if !strings.Contains(msg, "Sensor 2: Measurement error") {
		t.Errorf("expected sensor 2 measurement error in %q", msg)
	}
}

func TestStatusStringsCoverManualTable(t *testing.T) {
	for s := StatusOK; s <= StatusIDError; s++ {
		if strings.Contains(s.String(), "Unknown") {
			t.Errorf("status %d has no message", int(s))
		}
	}
}

func TestChannelRangeCheckedBeforeIO(t *testing.T) {
	c := &Controller{} // no pool; a range error must not touch it
	for _, ch := range []int{0, 7, -1} {
		if _, err := c.Pressure(ch); err == nil {
			t.Errorf("expected an error for channel %d", ch)
		}
	}
}

func TestContrastRangeCheckedBeforeIO(t *testing.T) {
	c := &Controller{}
	for _, dc := range []int{-1, 21} {
		if err := c.SetDisplayContrast(dc); err == nil {
			t.Errorf("expected an error for contrast %d", dc)
		}
	}
}

// loopbackController services one side of a pipe with the report
// signal/enquiry protocol of the TPG 256A.  Mnemonics absent from responses
// are NAKed with a syntax error.
func loopbackController(conn net.Conn, responses map[string]string) {
	br := bufio.NewReader(conn)
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.TrimRight(line, "\r\n")
		data, ok := responses[cmd]
		if !ok {
			conn.Write([]byte{0x15, '\r', '\n'})
			b, err := br.ReadByte()
			if err != nil || b != 0x05 {
				return
			}
			conn.Write([]byte("4096,0\r\n"))
			continue
		}
		conn.Write([]byte{0x06, '\r', '\n'})
		b, err := br.ReadByte()
		if err != nil || b != 0x05 {
			return
		}
		conn.Write([]byte(data + "\r\n"))
	}
}

func loopbackTPG(t *testing.T, responses map[string]string) *Controller {
	maker := func() (io.ReadWriteCloser, error) {
		client, server := net.Pipe()
		go loopbackController(server, responses)
		t.Cleanup(func() { client.Close(); server.Close() })
		return client, nil
	}
	return &Controller{Pool: comm.NewPool(1, time.Minute, maker)}
}

func TestControllerPressureTransaction(t *testing.T) {
	c := loopbackTPG(t, map[string]string{"PR1": "0,+1.0000E-06"})
	pr, err := c.Pressure(1)
	if err != nil {
		t.Fatal(err)
	}
	if pr.Status != StatusOK || math.Abs(pr.Pressure-1e-6) > 1e-15 {
		t.Errorf("unexpected reading %+v", pr)
	}
}

func TestControllerPressuresReadsAllSix(t *testing.T) {
	c := loopbackTPG(t, map[string]string{
		"PR1": "0,+1.0000E-06",
		"PR2": "1,+1.0000E-11",
		"PR3": "2,+9.9999E+02",
		"PR4": "4,+0.0000E+00",
		"PR5": "5,+0.0000E+00",
		"PR6": "5,+0.0000E+00",
	})
	ps, err := c.Pressures()
	if err != nil {
		t.Fatal(err)
	}
	if len(ps) != NumChannels {
		t.Fatalf("expected %d readings, got %d", NumChannels, len(ps))
	}
	want := []Status{StatusOK, StatusUnderrange, StatusOverrange,
		StatusSensorOff, StatusNoSensor, StatusNoSensor}
	for i, pr := range ps {
		if pr.Channel != i+1 {
			t.Errorf("reading %d has channel %d", i, pr.Channel)
		}
		if pr.Status != want[i] {
			t.Errorf("channel %d: expected status %v, got %v", i+1, want[i], pr.Status)
		}
	}
}

func TestControllerNAKSurfacesErrorWords(t *testing.T) {
	c := loopbackTPG(t, map[string]string{})
	_, err := c.Pressure(1)
	if err == nil {
		t.Fatal("expected a NAK error")
	}
	ne, ok := err.(NAKError)
	if !ok {
		t.Fatalf("expected NAKError, got %T: %v", err, err)
	}
	if ne.System != 4096 {
		t.Errorf("expected syntax error word, got %d", ne.System)
	}
}

func TestControllerUnit(t *testing.T) {
	c := loopbackTPG(t, map[string]string{"UNI": "0"})
	unit, err := c.Unit()
	if err != nil {
		t.Fatal(err)
	}
	if unit != "mbar" {
		t.Errorf("expected mbar, got %s", unit)
	}
}

func TestControllerPressedKeys(t *testing.T) {
	c := loopbackTPG(t, map[string]string{"TKB": "5"})
	keys, err := c.PressedKeys()
	if err != nil {
		t.Fatal(err)
	}
	want := [5]bool{true, false, true, false, false}
	if keys != want {
		t.Errorf("expected keys %v, got %v", want, keys)
	}
}

func TestControllerErrorStatusHealthy(t *testing.T) {
	c := loopbackTPG(t, map[string]string{"ERR": "0,0"})
	msg, err := c.ErrorStatus()
	if err != nil {
		t.Fatal(err)
	}
	if msg != "No error" {
		t.Errorf("expected no error, got %q", msg)
	}
}

func TestControllerBareLineIsNoReportSignal(t *testing.T) {
	// some firmware answers DCC with a lone CRLF instead of a report signal
	maker := func() (io.ReadWriteCloser, error) {
		client, server := net.Pipe()
		go func() {
			br := bufio.NewReader(server)
			if _, err := br.ReadString('\n'); err != nil {
				return
			}
			server.Write([]byte("\r\n"))
		}()
		t.Cleanup(func() { client.Close(); server.Close() })
		return client, nil
	}
	c := &Controller{Pool: comm.NewPool(1, time.Minute, maker)}
	_, err := c.Pressure(1)
	if !errors.Is(err, ErrNoReportSignal) {
		t.Fatalf("expected ErrNoReportSignal, got %v", err)
	}
}

func TestControllerResetSendsETX(t *testing.T) {
	got := make(chan byte, 1)
	maker := func() (io.ReadWriteCloser, error) {
		client, server := net.Pipe()
		go func() {
			buf := make([]byte, 1)
			if _, err := server.Read(buf); err == nil {
				got <- buf[0]
			}
		}()
		t.Cleanup(func() { client.Close(); server.Close() })
		return client, nil
	}
	c := &Controller{Pool: comm.NewPool(1, time.Minute, maker)}
	if err := c.Reset(); err != nil {
		t.Fatal(err)
	}
	select {
	case b := <-got:
		if b != etx {
			t.Errorf("expected ETX, got %#x", b)
		}
	case <-time.After(time.Second):
		t.Fatal("controller never received the reset byte")
	}
}

func TestControllerRawPassesMnemonicThrough(t *testing.T) {
	c := loopbackTPG(t, map[string]string{"PNR": "010100"})
	resp, err := c.Raw("PNR")
	if err != nil {
		t.Fatal(err)
	}
	if resp != "010100" {
		t.Errorf("expected 010100, got %q", resp)
	}
}

func TestMockSatisfiesGaugeMonitor(t *testing.T) {
	var m GaugeMonitor = NewMockController("", false)
	ps, err := m.Pressures()
	if err != nil {
		t.Fatal(err)
	}
	if ps[0].Status != StatusOK || ps[0].Pressure <= 0 {
		t.Errorf("mock channel 1 should read okay, got %+v", ps[0])
	}
}
