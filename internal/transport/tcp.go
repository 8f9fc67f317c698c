package transport

import (
	"context"
	"net"
	"time"

	"github.com/pkg/errors"

	"midi-bridge/internal/bridge"
)

// TCP reads MIDI bytes from a socket, such as a simulator exposing its
// serial output on a port
type TCP struct {
	Addr        string
	ReadTimeout time.Duration
}

func (t *TCP) String() string {
	return "tcp://" + t.Addr
}

// Open dials the address
func (t *TCP) Open(ctx context.Context) (bridge.Source, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", t.Addr)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", t.Addr)
	}

	return &tcpSource{
		conn:    conn,
		timeout: t.ReadTimeout,
		buf:     make([]byte, readBufferSize),
	}, nil
}

type tcpSource struct {
	conn    net.Conn
	timeout time.Duration
	buf     []byte
}

// ReadAvailable blocks for at most the read timeout. A timeout is not an
// error, it just means nothing arrived.
func (s *tcpSource) ReadAvailable() ([]byte, error) {
	if s.timeout > 0 {
		if err := s.conn.SetReadDeadline(time.Now().Add(s.timeout)); err != nil {
			return nil, err
		}
	}

	n, err := s.conn.Read(s.buf)
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		err = nil
	}
	return s.buf[:n], err
}

func (s *tcpSource) Close() error {
	return s.conn.Close()
}
