package rot2prog

import (
	"io"
	"net"
	"time"

	"github.com/tarm/serial"
)

// Baud is the fixed line rate of the rot2proG controller.
const Baud = 460800

// openSerial opens the controller's serial port with the protocol's fixed
// 8N1 framing. readTimeout bounds each Read.
func openSerial(path string, readTimeout time.Duration) (io.ReadWriteCloser, error) {
	port, err := serial.OpenPort(&serial.Config{
		Name:        path,
		Baud:        Baud,
		ReadTimeout: readTimeout,
		Size:        8,
		Parity:      serial.ParityNone,
		StopBits:    serial.Stop1,
	})
	if err != nil {
		return nil, err
	}
	return &serialConn{port}, nil
}

// serialConn maps the port's timeout behavior onto ErrTimeout. A serial
// line has no end of file, so zero bytes with io.EOF can only mean the
// deadline passed in silence.
type serialConn struct {
	*serial.Port
}

func (c *serialConn) Read(p []byte) (int, error) {
	n, err := c.Port.Read(p)
	if err == io.EOF {
		err = ErrTimeout
	}
	return n, err
}

// netConn applies a read deadline to a network transport (a simulator pipe
// or a TCP serial bridge) and maps its timeouts onto ErrTimeout.
type netConn struct {
	net.Conn
	readTimeout time.Duration
}

func (c *netConn) Read(p []byte) (int, error) {
	if c.readTimeout > 0 {
		if err := c.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
			return 0, err
		}
	}
	n, err := c.Conn.Read(p)
	if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
		err = ErrTimeout
	}
	return n, err
}
