package transport

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.bug.st/serial"

	"midi-bridge/internal/bridge"
)

// Serial reads MIDI bytes from a serial device
type Serial struct {
	Device      string
	BaudRate    int
	ReadTimeout time.Duration
}

func (s *Serial) String() string {
	return "serial://" + s.Device
}

// Open opens the device in 8N1 mode at the configured baud rate
func (s *Serial) Open(ctx context.Context) (bridge.Source, error) {
	port, err := serial.Open(s.Device, &serial.Mode{
		BaudRate: s.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", s.Device)
	}

	if err := port.SetReadTimeout(s.ReadTimeout); err != nil {
		port.Close()
		return nil, errors.Wrapf(err, "set read timeout on %s", s.Device)
	}

	return &serialSource{
		port: port,
		buf:  make([]byte, readBufferSize),
	}, nil
}

type serialSource struct {
	port serial.Port
	buf  []byte
}

// ReadAvailable returns no bytes when the read timeout expires
func (s *serialSource) ReadAvailable() ([]byte, error) {
	n, err := s.port.Read(s.buf)
	if n < 0 {
		n = 0
	}
	return s.buf[:n], err
}

func (s *serialSource) Close() error {
	return s.port.Close()
}
