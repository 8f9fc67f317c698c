package bridge

import (
	"context"

	"github.com/pkg/errors"
	"gitlab.com/gomidi/midi/v2"
)

var (
	// ErrTransportUnavailable is returned when no transport candidate could
	// be opened.
	ErrTransportUnavailable = errors.New("no transport available")

	// ErrSinkUnavailable is returned when the MIDI sink could not be opened.
	ErrSinkUnavailable = errors.New("midi sink unavailable")

	// ErrDisconnected ends a session: the peer closed the stream or the
	// transport failed while reading.
	ErrDisconnected = errors.New("transport disconnected")
)

// Source is an open byte stream.
//
// ReadAvailable returns whatever bytes are ready, possibly none. io.EOF
// means the peer has gone away; any other error is a lost connection.
type Source interface {
	ReadAvailable() ([]byte, error)
	Close() error
}

// Transport is a candidate byte stream such as a serial device or a TCP
// endpoint.
type Transport interface {
	String() string
	Open(ctx context.Context) (Source, error)
}

// Sink receives complete MIDI messages.
type Sink interface {
	Send(msg midi.Message) error
	Close() error
}

// SinkOpener opens the sink called name, creating it as a virtual port when
// virtual is set.
type SinkOpener func(name string, virtual bool) (Sink, error)
