/*Package tpg provides a driver for Pfeiffer Vacuum MaxiGauge TPG 256A
six channel vacuum gauge controllers.

The controller speaks a line-oriented ASCII protocol over RS232 (or a
terminal server).  Every command is answered with a report signal, ACK or
NAK, and data is only transmitted after the host sends an enquiry (ENQ).
Page numbers in comments refer to the Pfeiffer TPG 256A manual.
*/
package tpg

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/alexkolodchuk/maxigauge/comm"

	"github.com/tarm/serial"
	"golang.org/x/time/rate"
)

const (
	// NumChannels is the number of measurement channels on a TPG 256A
	NumChannels = 6

	timeout = 3 * time.Second
)

// control symbols, manual p. 81
const (
	etx byte = 0x03 // end of text, resets the interface
	cr  byte = 0x0D
	lf  byte = 0x0A
	enq byte = 0x05 // enquiry, request for data transmission
	ack byte = 0x06 // positive report signal
	nak byte = 0x15 // negative report signal
)

// mnemonics from the command set, manual p. 85
const (
	mnPressure        = "PR"  // status and pressure of channel x (1..6), p. 88
	mnIdentify        = "TID" // sensor identification, p. 101
	mnProgramNumber   = "PNR" // firmware program number, p. 98
	mnUnit            = "UNI" // pressure unit, p. 89
	mnDisplayContrast = "DCC" // display contrast, p. 90
	mnKeyboardTest    = "TKB" // keyboard test, p. 99
	mnErrorStatus     = "ERR" // error status, p. 97
)

var (
	// ErrNoReportSignal is generated when the controller answers a command
	// with a bare line termination instead of ACK or NAK.  Some firmware
	// revisions do this after a DCC command.
	ErrNoReportSignal = errors.New("tpg: only received a line termination, expected ACK or NAK")
)

// Status describes the quality of a pressure measurement, manual p. 88
type Status int

// pressure reading statuses
const (
	StatusOK Status = iota
	StatusUnderrange
	StatusOverrange
	StatusSensorError
	StatusSensorOff
	StatusNoSensor
	StatusIDError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "Measurement data okay"
	case StatusUnderrange:
		return "Underrange"
	case StatusOverrange:
		return "Overrange"
	case StatusSensorError:
		return "Sensor error"
	case StatusSensorOff:
		return "Sensor off"
	case StatusNoSensor:
		return "No sensor"
	case StatusIDError:
		return "Identification error"
	}
	return "Unknown status " + strconv.Itoa(int(s))
}

// Usable returns true if the measurement carries a usable value;
// under- and overrange readings saturate but are still meaningful.
func (s Status) Usable() bool {
	return s >= StatusOK && s <= StatusOverrange
}

// PressureReading is one measurement from one channel of the controller
type PressureReading struct {
	// Channel the reading was taken from, 1..6
	Channel int `json:"channel"`

	// Status of the measurement
	Status Status `json:"status"`

	// Pressure in the unit the controller is configured for, mbar by default
	Pressure float64 `json:"pressure"`
}

// system error codes, manual p. 97
var systemErrors = map[int]string{
	1:     "Watchdog has responded",
	2:     "Task fail error",
	4:     "IDCX idle error",
	8:     "Stack overflow error",
	16:    "EPROM error",
	32:    "RAM error",
	64:    "EEPROM error",
	128:   "Key error",
	4096:  "Syntax error",
	8192:  "Inadmissible parameter",
	16384: "No hardware",
	32768: "Fatal error",
}

// gauge error codes, manual p. 97
var gaugeErrors = map[int]string{
	1:     "Sensor 1: Measurement error",
	2:     "Sensor 2: Measurement error",
	4:     "Sensor 3: Measurement error",
	8:     "Sensor 4: Measurement error",
	16:    "Sensor 5: Measurement error",
	32:    "Sensor 6: Measurement error",
	512:   "Sensor 1: Identification error",
	1024:  "Sensor 2: Identification error",
	2048:  "Sensor 3: Identification error",
	4096:  "Sensor 4: Identification error",
	8192:  "Sensor 5: Identification error",
	16384: "Sensor 6: Identification error",
}

// NAKError is a negative report signal from the controller, carrying the
// system and gauge error words retrieved with ERR
type NAKError struct {
	// System is the system error word
	System int

	// Gauge is the gauge error word
	Gauge int
}

func (e NAKError) Error() string {
	msgs := decodeBits(e.System, systemErrors)
	msgs = append(msgs, decodeBits(e.Gauge, gaugeErrors)...)
	if len(msgs) == 0 {
		return "tpg: controller sent NAK with no error bits set"
	}
	return "tpg: " + strings.Join(msgs, "; ")
}

func decodeBits(word int, table map[int]string) []string {
	var out []string
	for bit := 1; bit <= word && bit > 0; bit <<= 1 {
		if word&bit != 0 {
			if msg, ok := table[bit]; ok {
				out = append(out, msg)
			} else {
				out = append(out, "unknown error bit "+strconv.Itoa(bit))
			}
		}
	}
	return out
}

func makeSerConf(addr string) *serial.Config {
	// factory defaults, manual p. 94: 9600 baud, 8 data bits, no parity
	return &serial.Config{
		Name:        addr,
		Baud:        9600,
		Size:        8,
		Parity:      serial.ParityNone,
		StopBits:    serial.Stop1,
		ReadTimeout: timeout}
}

// Controller talks to a TPG 256A MaxiGauge controller
type Controller struct {
	// Pool holds the connection to the controller.  Size one, the
	// controller can only hold one conversation at a time.
	Pool *comm.Pool

	limiter *rate.Limiter
}

// NewController creates a new Controller.  addr is a filesystem path to a
// serial device if connectSerial is true, otherwise a host:port for a
// terminal server.
func NewController(addr string, connectSerial bool) *Controller {
	var maker comm.CreationFunc
	if connectSerial {
		maker = comm.BackingOffSerialConnMaker(makeSerConf(addr))
	} else {
		maker = comm.BackingOffTCPConnMaker(addr, timeout)
	}
	p := comm.NewPool(1, 30*time.Second, maker)
	// the controller UART needs ~50ms of turnaround between commands
	return &Controller{Pool: p, limiter: rate.NewLimiter(rate.Limit(20), 1)}
}

func (c *Controller) pace() error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(context.Background())
}

func writeMnemonic(w io.Writer, mnemonic string) error {
	_, err := w.Write(append([]byte(mnemonic), cr, lf))
	return err
}

func readLine(br *bufio.Reader) ([]byte, error) {
	raw, err := br.ReadBytes(lf)
	if err != nil {
		return nil, err
	}
	return bytes.TrimRight(raw, "\r\n"), nil
}

func enquire(w io.Writer) error {
	_, err := w.Write([]byte{enq})
	return err
}

// command runs one transaction with the controller: send the mnemonic, check
// the report signal, then collect one line per enquiry.
func (c *Controller) command(mnemonic string, enquiries int) ([]string, error) {
	err := c.pace()
	if err != nil {
		return nil, err
	}
	conn, err := c.Pool.Get()
	if err != nil {
		return nil, err
	}
	defer func() { c.Pool.ReturnWithError(conn, err) }()
	wrap, err := comm.NewTimeout(conn, timeout)
	if err != nil {
		return nil, err
	}
	err = writeMnemonic(wrap, mnemonic)
	if err != nil {
		return nil, err
	}
	br := bufio.NewReader(wrap)
	report, err := readLine(br)
	if err != nil {
		return nil, err
	}
	if len(report) == 0 {
		err = ErrNoReportSignal
		return nil, err
	}
	switch report[len(report)-1] {
	case ack:
	case nak:
		err = fetchNAK(wrap, br)
		return nil, err
	default:
		err = fmt.Errorf("tpg: expected ACK or NAK from controller, got %q", report)
		return nil, err
	}
	resp := make([]string, enquiries)
	for i := 0; i < enquiries; i++ {
		err = enquire(wrap)
		if err != nil {
			return nil, err
		}
		var line []byte
		line, err = readLine(br)
		if err != nil {
			return nil, err
		}
		resp[i] = string(line)
	}
	return resp, nil
}

// fetchNAK retrieves the error words behind a negative report signal and
// wraps them in a NAKError
func fetchNAK(w io.Writer, br *bufio.Reader) error {
	if err := enquire(w); err != nil {
		return err
	}
	line, err := readLine(br)
	if err != nil {
		return err
	}
	return parseNAK(string(line))
}

func parseNAK(line string) error {
	pieces := strings.SplitN(line, ",", 2)
	if len(pieces) != 2 {
		return fmt.Errorf("tpg: malformed error status %q", line)
	}
	sys, err := strconv.Atoi(strings.TrimSpace(pieces[0]))
	if err != nil {
		return fmt.Errorf("tpg: malformed error status %q: %v", line, err)
	}
	gau, err := strconv.Atoi(strings.TrimSpace(pieces[1]))
	if err != nil {
		return fmt.Errorf("tpg: malformed error status %q: %v", line, err)
	}
	return NAKError{System: sys, Gauge: gau}
}

// parsePressure converts a response looking like "0,+7.2198E-05" into a
// PressureReading, manual p. 88
func parsePressure(channel int, line string) (PressureReading, error) {
	pieces := strings.SplitN(line, ",", 2)
	if len(pieces) != 2 {
		return PressureReading{}, fmt.Errorf("tpg: problem interpreting pressure response %q", line)
	}
	status, err := strconv.Atoi(strings.TrimSpace(pieces[0]))
	if err != nil {
		return PressureReading{}, fmt.Errorf("tpg: problem interpreting pressure response %q: %v", line, err)
	}
	if status < int(StatusOK) || status > int(StatusIDError) {
		return PressureReading{}, fmt.Errorf("tpg: pressure status %d outside 0..6", status)
	}
	p, err := strconv.ParseFloat(strings.TrimSpace(pieces[1]), 64)
	if err != nil {
		return PressureReading{}, fmt.Errorf("tpg: problem interpreting pressure response %q: %v", line, err)
	}
	return PressureReading{Channel: channel, Status: Status(status), Pressure: p}, nil
}

func errBadChannel(channel int) error {
	return fmt.Errorf("tpg: channel must be between 1 and %d, got %d", NumChannels, channel)
}

func errBadContrast(contrast int) error {
	return fmt.Errorf("tpg: display contrast must be between 0 and 20, got %d", contrast)
}

// Pressure reads the status and pressure of one channel, 1..6
func (c *Controller) Pressure(channel int) (PressureReading, error) {
	if channel < 1 || channel > NumChannels {
		return PressureReading{}, errBadChannel(channel)
	}
	resp, err := c.command(mnPressure+strconv.Itoa(channel), 1)
	if err != nil {
		return PressureReading{}, err
	}
	return parsePressure(channel, resp[0])
}

// Pressures reads all six channels of the controller
func (c *Controller) Pressures() ([]PressureReading, error) {
	out := make([]PressureReading, NumChannels)
	for i := 0; i < NumChannels; i++ {
		pr, err := c.Pressure(i + 1)
		if err != nil {
			return out, err
		}
		out[i] = pr
	}
	return out, nil
}

// Identification returns the sensor identification string from the
// controller, a comma separated list of gauge types
func (c *Controller) Identification() (string, error) {
	resp, err := c.command(mnIdentify, 1)
	if err != nil {
		return "", err
	}
	return resp[0], nil
}

// ProgramVersion returns the firmware program number of the controller
func (c *Controller) ProgramVersion() (string, error) {
	resp, err := c.command(mnProgramNumber, 1)
	if err != nil {
		return "", err
	}
	return resp[0], nil
}

// pressure units, manual p. 89
var units = map[int]string{
	0: "mbar",
	1: "Torr",
	2: "Pa",
}

// Unit returns the pressure unit the controller display and responses use
func (c *Controller) Unit() (string, error) {
	resp, err := c.command(mnUnit, 1)
	if err != nil {
		return "", err
	}
	idx, err := strconv.Atoi(strings.TrimSpace(resp[0]))
	if err != nil {
		return "", fmt.Errorf("tpg: problem interpreting unit response %q: %v", resp[0], err)
	}
	unit, ok := units[idx]
	if !ok {
		return "", fmt.Errorf("tpg: unknown unit code %d", idx)
	}
	return unit, nil
}

// DisplayContrast returns the current display contrast, 0..20
func (c *Controller) DisplayContrast() (int, error) {
	resp, err := c.command(mnDisplayContrast, 1)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(resp[0]))
}

// SetDisplayContrast changes the display contrast, 0..20
func (c *Controller) SetDisplayContrast(contrast int) error {
	if contrast < 0 || contrast > 20 {
		return errBadContrast(contrast)
	}
	_, err := c.command(mnDisplayContrast+","+strconv.Itoa(contrast), 1)
	return err
}

// PressedKeys reports which of the five front panel keys have been pressed
// since the controller was switched on
func (c *Controller) PressedKeys() ([5]bool, error) {
	var keys [5]bool
	resp, err := c.command(mnKeyboardTest, 1)
	if err != nil {
		return keys, err
	}
	word, err := strconv.Atoi(strings.TrimSpace(resp[0]))
	if err != nil {
		return keys, fmt.Errorf("tpg: problem interpreting keyboard response %q: %v", resp[0], err)
	}
	for i := 0; i < 5; i++ {
		keys[i] = word&(1<<uint(i)) != 0
	}
	return keys, nil
}

// ErrorStatus queries the error words of the controller and renders them as
// text.  A healthy controller returns "No error".
func (c *Controller) ErrorStatus() (string, error) {
	resp, err := c.command(mnErrorStatus, 1)
	if err != nil {
		return "", err
	}
	nakErr := parseNAK(resp[0])
	ne, ok := nakErr.(NAKError)
	if !ok {
		return "", nakErr
	}
	if ne.System == 0 && ne.Gauge == 0 {
		return "No error", nil
	}
	return ne.Error(), nil
}

// Reset sends ETX to the controller, resetting the interface and clearing
// any partially transmitted command
func (c *Controller) Reset() error {
	conn, err := c.Pool.Get()
	if err != nil {
		return err
	}
	defer func() { c.Pool.ReturnWithError(conn, err) }()
	_, err = conn.Write([]byte{etx})
	return err
}

// Raw sends an arbitrary mnemonic to the controller and returns the single
// data line it answers with
func (c *Controller) Raw(mnemonic string) (string, error) {
	resp, err := c.command(mnemonic, 1)
	if err != nil {
		return "", err
	}
	return resp[0], nil
}
