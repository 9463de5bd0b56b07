/*Package comm provides connection pooling and line-oriented IO for
communication with lab hardware.

Connections to an instrument are created by a CreationFunc and owned by a
Pool.  The pool hands out connections one at a time (or up to its size) and
closes them when they have not been used for a while, which plays nicely
with RS232 terminal servers that only allow a single client.

The Timeout wrapper decorates a connection with IO deadlines without the
consumer needing to know whether the transport is a serial port or a TCP
socket.
*/
package comm

import (
	"errors"
	"io"
	"net"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/tarm/serial"
)

var (
	// ErrNotConnected is generated when IO is attempted on a nil connection.
	ErrNotConnected = errors.New("comm: conn is nil, not connected to remote")

	// ErrTimeoutUnsupported is generated when a Timeout wrapper is requested
	// around a connection that has no deadline support.
	ErrTimeoutUnsupported = errors.New("comm: connection does not support deadlines")
)

// CreationFunc is a function which returns a new "connection" to something.
// A closure should be used to encapsulate the variables and functions needed.
type CreationFunc func() (io.ReadWriteCloser, error)

// BackingOffTCPConnMaker returns a CreationFunc which dials addr over TCP
// with an exponential backoff on connection refused, up to 3 seconds.
// Terminal servers drop connections that are thrashed, the backoff keeps
// reconnect storms polite.
func BackingOffTCPConnMaker(addr string, timeout time.Duration) CreationFunc {
	return func() (io.ReadWriteCloser, error) {
		var conn net.Conn
		op := func() error {
			var err error
			conn, err = net.DialTimeout("tcp", addr, timeout)
			return err
		}
		err := backoff.Retry(op, &backoff.ExponentialBackOff{
			InitialInterval:     25 * time.Millisecond,
			RandomizationFactor: 0.,
			Multiplier:          2.,
			MaxInterval:         1 * time.Second,
			MaxElapsedTime:      3 * time.Second,
			Clock:               backoff.SystemClock})
		return conn, err
	}
}

// BackingOffSerialConnMaker returns a CreationFunc which opens the serial
// port described by conf, retrying with an exponential backoff.  USB-RS232
// adapters are sometimes slow to enumerate after a replug.
func BackingOffSerialConnMaker(conf *serial.Config) CreationFunc {
	return func() (io.ReadWriteCloser, error) {
		var conn *serial.Port
		op := func() error {
			var err error
			conn, err = serial.OpenPort(conf)
			return err
		}
		err := backoff.Retry(op, &backoff.ExponentialBackOff{
			InitialInterval:     25 * time.Millisecond,
			RandomizationFactor: 0.,
			Multiplier:          2.,
			MaxInterval:         1 * time.Second,
			MaxElapsedTime:      3 * time.Second,
			Clock:               backoff.SystemClock})
		return conn, err
	}
}

type timeoutRW struct {
	conn    net.Conn
	timeout time.Duration
}

func (t timeoutRW) Read(b []byte) (int, error) {
	err := t.conn.SetReadDeadline(time.Now().Add(t.timeout))
	if err != nil {
		return 0, err
	}
	return t.conn.Read(b)
}

func (t timeoutRW) Write(b []byte) (int, error) {
	err := t.conn.SetWriteDeadline(time.Now().Add(t.timeout))
	if err != nil {
		return 0, err
	}
	return t.conn.Write(b)
}

// NewTimeout wraps a connection with read and write deadlines.  Serial ports
// pass through unchanged, they enforce their own ReadTimeout from the port
// configuration.  Anything else has no deadline mechanism and is rejected
// with ErrTimeoutUnsupported.
func NewTimeout(rw io.ReadWriter, timeout time.Duration) (io.ReadWriter, error) {
	if rw == nil {
		return nil, ErrNotConnected
	}
	switch c := rw.(type) {
	case net.Conn:
		return timeoutRW{conn: c, timeout: timeout}, nil
	case *serial.Port:
		return rw, nil
	default:
		return nil, ErrTimeoutUnsupported
	}
}
