package bridge

import (
	"context"
	"io"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/oleiade/lane"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gitlab.com/gomidi/midi/v2"

	"midi-bridge/internal/decoder"
	"midi-bridge/internal/logger"
)

// DefaultPollInterval is the idle sleep between empty reads
const DefaultPollInterval = time.Millisecond

// DefaultBackoff is the wait before a reconnection attempt
const DefaultBackoff = time.Second

// DefaultSendAttempts is how many times a message is offered to the sink
// before it is dropped
const DefaultSendAttempts = 3

// State of a running bridge
type State string

// Bridge states
const (
	StateStarting     State = "starting"
	StateRunning      State = "running"
	StateReconnecting State = "reconnecting"
	StateStopped      State = "stopped"
	StateFailed       State = "failed"
)

// Config stores the settings of one bridge
type Config struct {
	Name         string
	Sink         string
	Virtual      bool
	PollInterval time.Duration
	Reconnect    bool
	Retries      int
	Backoff      time.Duration
	SendAttempts int
}

// pending is a decoded message waiting in the outbox
type pending struct {
	msg      midi.Message
	attempts int
}

// Bridge forwards MIDI messages decoded from a byte stream to a sink. It owns
// one session at a time; each session gets a fresh decoder. Decoded messages
// wait in an outbox until the sink accepts them, so a failing send holds back
// the messages behind it instead of reordering them.
type Bridge struct {
	config     Config
	transports []Transport
	openSink   SinkOpener

	outbox *lane.Queue
	clk    clock.Clock
	log    *logrus.Entry
	notify func(State)
}

// New creates a bridge that tries transports in order and forwards to the
// sink opened by openSink
func New(config Config, transports []Transport, openSink SinkOpener) *Bridge {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.Backoff <= 0 {
		config.Backoff = DefaultBackoff
	}
	if config.SendAttempts <= 0 {
		config.SendAttempts = DefaultSendAttempts
	}

	return &Bridge{
		config:     config,
		transports: transports,
		openSink:   openSink,
		outbox:     lane.NewQueue(),
		clk:        clock.New(),
		log:        logger.New("bridge").WithField("bridge", config.Name),
	}
}

// Name returns the configured bridge name
func (b *Bridge) Name() string {
	return b.config.Name
}

// Run acquires a transport and the sink, then forwards until the context is
// cancelled or the transport disconnects. It returns nil on cancellation, an
// error wrapping ErrDisconnected when the stream ended, and ErrTransportUnavailable
// or ErrSinkUnavailable when acquisition failed.
func (b *Bridge) Run(ctx context.Context) error {
	b.setState(StateStarting)

	src, err := b.acquire(ctx)
	if err != nil {
		if ctx.Err() != nil {
			b.setState(StateStopped)
			return nil
		}
		b.setState(StateFailed)
		return err
	}

	sink, err := b.openSink(b.config.Sink, b.config.Virtual)
	if err != nil {
		src.Close()
		b.setState(StateFailed)
		return errors.Wrapf(ErrSinkUnavailable, "%s: %v", b.config.Sink, err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			b.log.WithError(err).Warn("Closing sink")
		}
	}()

	b.log.WithFields(logrus.Fields{
		"sink":    b.config.Sink,
		"virtual": b.config.Virtual,
	}).Info("Bridge running")

	for {
		b.setState(StateRunning)
		err := b.forward(ctx, src, sink)
		if ctx.Err() != nil {
			b.log.Info("Stopping bridge")
			b.setState(StateStopped)
			return nil
		}

		b.log.WithError(err).Info("Disconnected")
		if !b.config.Reconnect {
			b.setState(StateStopped)
			return err
		}

		if src = b.reconnect(ctx); src == nil {
			b.setState(StateStopped)
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// reconnect waits for the backoff and reacquires a transport. It returns nil
// when retries are exhausted or the context is done.
func (b *Bridge) reconnect(ctx context.Context) Source {
	b.setState(StateReconnecting)
	for attempt := 1; b.config.Retries <= 0 || attempt <= b.config.Retries; attempt++ {
		b.log.WithFields(logrus.Fields{
			"attempt": attempt,
			"backoff": b.config.Backoff,
		}).Info("Reconnecting")

		select {
		case <-ctx.Done():
			return nil
		case <-b.clk.After(b.config.Backoff):
		}

		src, err := b.acquire(ctx)
		if err == nil {
			return src
		}
		if ctx.Err() != nil {
			return nil
		}
	}
	b.log.WithField("retries", b.config.Retries).Warn("Giving up reconnecting")
	return nil
}

// acquire opens the first transport candidate that works
func (b *Bridge) acquire(ctx context.Context) (Source, error) {
	for _, t := range b.transports {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		src, err := t.Open(ctx)
		if err != nil {
			b.log.WithError(err).WithField("transport", t.String()).Warn("Transport unavailable")
			continue
		}

		b.log.WithField("transport", t.String()).Info("Connected")
		return src, nil
	}

	return nil, errors.Wrapf(ErrTransportUnavailable, "%d candidates tried", len(b.transports))
}

// forward runs one session. Cancellation is only observed between reads, and
// the outbox is drained before forward returns.
func (b *Bridge) forward(ctx context.Context, src Source, sink Sink) error {
	defer func() {
		if err := src.Close(); err != nil {
			b.log.WithError(err).Debug("Closing transport")
		}
	}()
	defer b.drain(sink)

	dec := decoder.New()
	var stats decoder.Stats

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		chunk, err := src.ReadAvailable()
		for _, msg := range dec.Feed(chunk) {
			b.outbox.Enqueue(&pending{msg: msg})
		}
		b.flush(sink)

		if s := dec.Stats(); s != stats {
			b.log.WithFields(logrus.Fields{
				"orphans":   s.Orphans,
				"undefined": s.Undefined,
				"aborted":   s.Aborted,
			}).Debug("Dropped bytes")
			stats = s
		}

		switch {
		case errors.Is(err, io.EOF):
			return errors.Wrap(ErrDisconnected, "end of stream")
		case err != nil:
			return errors.Wrapf(ErrDisconnected, "read: %v", err)
		case len(chunk) == 0:
			b.clk.Sleep(b.config.PollInterval)
		}
	}
}

// flush sends queued messages in order. It stops at the first message the
// sink rejects, leaving it at the head of the outbox for the next flush, and
// reports whether the outbox was emptied.
func (b *Bridge) flush(sink Sink) bool {
	for !b.outbox.Empty() {
		p := b.outbox.Head().(*pending)
		if err := sink.Send(p.msg); err != nil {
			p.attempts++
			fields := logrus.Fields{"msg": p.msg.String(), "attempt": p.attempts}
			if p.attempts < b.config.SendAttempts {
				b.log.WithError(err).WithFields(fields).Warn("Error forwarding message, will retry")
				return false
			}
			b.log.WithError(err).WithFields(fields).Warn("Dropping message")
			b.outbox.Dequeue()
			continue
		}
		b.outbox.Dequeue()
		b.log.WithField("msg", p.msg.String()).Debug("Forwarded")
	}
	return true
}

// drain flushes until every queued message is sent or dropped
func (b *Bridge) drain(sink Sink) {
	for !b.flush(sink) {
	}
}

func (b *Bridge) setState(s State) {
	if b.notify != nil {
		b.notify(s)
	}
}
