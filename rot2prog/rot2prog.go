// Package rot2prog drives a SPID Elektronik rot2proG azimuth/elevation
// rotor controller over its binary serial protocol. The controller must be
// set to the SPID protocol in automated mode before it will accept
// commands.
//
// The line is half duplex: one command frame out, at most one response
// frame back. A Rotator serializes exchanges with a mutex, so its methods
// are safe for concurrent use.
package rot2prog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"time"

	"github.com/w1xm/rot2prog_interface/rotator"
)

const (
	DefaultReadTimeout = 2 * time.Second
	DefaultSettleDelay = 1 * time.Second
)

type Config struct {
	// ReadTimeout bounds how long an exchange waits for a response frame.
	// Zero means DefaultReadTimeout.
	ReadTimeout time.Duration
	// SettleDelay is how long SetPosition holds the line after writing its
	// frame, giving the controller time to latch the new target before the
	// next command. Zero means DefaultSettleDelay.
	SettleDelay time.Duration
	// StatusCallback, if non-nil, receives every position report decoded
	// from the controller. It runs with the session lock held and must not
	// call back into the Rotator.
	StatusCallback rotator.StatusCallback
}

func (c Config) withDefaults() Config {
	if c.ReadTimeout == 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.SettleDelay == 0 {
		c.SettleDelay = DefaultSettleDelay
	}
	return c
}

// Rotator is a session with a single controller.
type Rotator struct {
	readTimeout    time.Duration
	settleDelay    time.Duration
	statusCallback rotator.StatusCallback

	mu     sync.Mutex
	conn   io.ReadWriteCloser
	path   string
	pulse  int
	status rotator.Status
	closed bool
}

// Connect opens the serial device at path and queries the controller once
// so the session learns its pulse resolution.
func Connect(path string, config Config) (*Rotator, error) {
	config = config.withDefaults()
	conn, err := openSerial(path, config.ReadTimeout)
	if err != nil {
		return nil, &TransportError{Op: "open " + path, Err: err}
	}
	r := newRotator(conn, config)
	r.path = path
	if _, err := r.Status(); err != nil {
		conn.Close()
		return nil, err
	}
	return r, nil
}

// Open starts a session over an existing connection, such as a simulator
// pipe or a TCP serial bridge. If conn is a net.Conn the configured read
// deadline is applied to it. Like Connect, Open performs one status
// exchange before returning.
func Open(conn io.ReadWriteCloser, config Config) (*Rotator, error) {
	config = config.withDefaults()
	if nc, ok := conn.(net.Conn); ok {
		conn = &netConn{Conn: nc, readTimeout: config.ReadTimeout}
	}
	r := newRotator(conn, config)
	if _, err := r.Status(); err != nil {
		conn.Close()
		return nil, err
	}
	return r, nil
}

func newRotator(conn io.ReadWriteCloser, config Config) *Rotator {
	return &Rotator{
		conn:           conn,
		readTimeout:    config.ReadTimeout,
		settleDelay:    config.SettleDelay,
		statusCallback: config.StatusCallback,
	}
}

// Status queries the controller for its current position.
func (r *Rotator) Status() (rotator.Status, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.exchange("status", StatusCommand())
}

// Stop halts motion on both axes and returns the position the controller
// stopped at.
func (r *Rotator) Stop() (rotator.Status, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.exchange("stop", StopCommand())
}

// SetPosition drives the mount to the given azimuth and elevation. The
// controller sends nothing back; instead the session holds the line for
// the settle delay so the next command does not race the move latch.
func (r *Rotator) SetPosition(az, el float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	cmd, err := SetCommand(az, el, r.pulse)
	if err != nil {
		return err
	}
	if _, err := r.conn.Write(cmd[:]); err != nil {
		return &TransportError{Op: "set", Err: err}
	}
	time.Sleep(r.settleDelay)
	return nil
}

// exchange writes cmd and reads the 12-byte response. Callers hold r.mu.
func (r *Rotator) exchange(op string, cmd Command) (rotator.Status, error) {
	if r.closed {
		return rotator.Status{}, ErrClosed
	}
	if _, err := r.conn.Write(cmd[:]); err != nil {
		return rotator.Status{}, &TransportError{Op: op, Err: err}
	}
	buf := make([]byte, ResponseLen)
	n, err := io.ReadFull(r.conn, buf)
	if err != nil {
		if errors.Is(err, ErrTimeout) {
			return rotator.Status{}, fmt.Errorf("%s: %w after %d of %d bytes", op, ErrTimeout, n, ResponseLen)
		}
		return rotator.Status{}, &TransportError{Op: op, Err: err}
	}
	status, err := DecodeResponse(buf)
	if err != nil {
		return rotator.Status{}, fmt.Errorf("%s: %w", op, err)
	}
	r.pulse = status.Pulse
	r.status = status
	if r.statusCallback != nil {
		r.statusCallback(status)
	}
	return status, nil
}

// Watch polls the controller until ctx is canceled, delivering each report
// to the configured status callback. Decode errors and timeouts are logged
// and polling continues; a transport failure or a closed session ends the
// watch.
func (r *Rotator) Watch(ctx context.Context, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
		if _, err := r.Status(); err != nil {
			var terr *TransportError
			if errors.As(err, &terr) || errors.Is(err, ErrClosed) {
				return err
			}
			log.Printf("status poll: %v", err)
		}
	}
}

// SetDevicePath moves the session to the controller at path, closing the
// old transport. If the new device cannot be opened the session keeps the
// old one, so a typo does not kill a working connection.
func (r *Rotator) SetDevicePath(path string) error {
	conn, err := openSerial(path, r.readTimeout)
	if err != nil {
		return &TransportError{Op: "open " + path, Err: err}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		conn.Close()
		return ErrClosed
	}
	r.conn.Close()
	r.conn = conn
	r.path = path
	return nil
}

// DevicePath returns the serial path of the current transport, or "" for
// sessions opened over an existing connection.
func (r *Rotator) DevicePath() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.path
}

// Pulse returns the pulse resolution from the last successful exchange.
func (r *Rotator) Pulse() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pulse
}

// LastStatus returns the most recent position report without touching the
// line.
func (r *Rotator) LastStatus() rotator.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Close shuts the transport down. Later operations return ErrClosed.
func (r *Rotator) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.conn.Close()
}
