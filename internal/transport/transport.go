// Package transport provides the byte streams a bridge reads MIDI from.
package transport

import (
	"strings"
	"time"

	"github.com/asaskevich/govalidator"
	"github.com/pkg/errors"

	"midi-bridge/internal/bridge"
)

const (
	// DefaultBaudRate matches the serial speed of the keyboard firmware
	DefaultBaudRate = 115200

	// DefaultReadTimeout bounds a blocking read so cancellation is noticed
	DefaultReadTimeout = 100 * time.Millisecond

	// DefaultTCPAddr is where the simulator serial bridge listens
	DefaultTCPAddr = "localhost:4000"

	readBufferSize = 1024
)

// Options apply to every candidate built by Parse
type Options struct {
	BaudRate    int
	ReadTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.BaudRate <= 0 {
		o.BaudRate = DefaultBaudRate
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = DefaultReadTimeout
	}
	return o
}

// IsSocket reports whether a candidate names a TCP socket rather than a
// serial device
func IsSocket(candidate string) bool {
	candidate = strings.TrimSpace(candidate)
	return strings.HasPrefix(candidate, "tcp://") || govalidator.IsDialString(candidate)
}

// Parse builds a transport from a candidate string. "tcp://host:port" and
// bare "host:port" are sockets, a bare "tcp://" means DefaultTCPAddr;
// "serial://path" and anything else is a serial device path.
func Parse(candidate string, opts Options) (bridge.Transport, error) {
	opts = opts.withDefaults()
	candidate = strings.TrimSpace(candidate)

	switch {
	case candidate == "":
		return nil, errors.New("empty transport")
	case strings.HasPrefix(candidate, "tcp://"):
		addr := strings.TrimPrefix(candidate, "tcp://")
		if addr == "" {
			addr = DefaultTCPAddr
		}
		if !govalidator.IsDialString(addr) {
			return nil, errors.Errorf("invalid tcp address %q", addr)
		}
		return &TCP{Addr: addr, ReadTimeout: opts.ReadTimeout}, nil
	case strings.HasPrefix(candidate, "serial://"):
		return &Serial{
			Device:      strings.TrimPrefix(candidate, "serial://"),
			BaudRate:    opts.BaudRate,
			ReadTimeout: opts.ReadTimeout,
		}, nil
	case govalidator.IsDialString(candidate):
		return &TCP{Addr: candidate, ReadTimeout: opts.ReadTimeout}, nil
	default:
		return &Serial{Device: candidate, BaudRate: opts.BaudRate, ReadTimeout: opts.ReadTimeout}, nil
	}
}

// ParseAll parses every candidate, keeping their order
func ParseAll(candidates []string, opts Options) ([]bridge.Transport, error) {
	transports := make([]bridge.Transport, 0, len(candidates))
	for _, c := range candidates {
		t, err := Parse(c, opts)
		if err != nil {
			return nil, err
		}
		transports = append(transports, t)
	}
	return transports, nil
}
