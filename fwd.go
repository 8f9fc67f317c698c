package main

import (
	"context"
	"fmt"
	"time"

	"midi-bridge/internal/bridge"
	"midi-bridge/internal/config"
	"midi-bridge/internal/transport"
)

// newBridge wires a configured bridge to its transports and the MIDI driver
func newBridge(c config.Bridge) (*bridge.Bridge, error) {
	transports, err := transport.ParseAll(c.Transports, transport.Options{
		BaudRate:    c.BaudRate,
		ReadTimeout: c.ReadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("bridge %q: %w", c.Name, err)
	}

	return bridge.New(bridge.Config{
		Name:         c.Name,
		Sink:         c.Sink,
		Virtual:      c.IsVirtual(),
		PollInterval: c.PollInterval,
		Reconnect:    c.Reconnect,
		Retries:      c.Retries,
		Backoff:      c.Backoff,
		SendAttempts: c.SendAttempts,
	}, transports, openOutPort), nil
}

// runBridges forwards until every bridge has disconnected or ctx is cancelled
func runBridges(ctx context.Context, cfg config.Config) error {
	bridges := make([]*bridge.Bridge, 0, len(cfg.Bridges))
	for _, c := range cfg.Bridges {
		b, err := newBridge(c)
		if err != nil {
			return err
		}
		bridges = append(bridges, b)
	}

	log.Printf("Starting %d bridge(s)", len(bridges))
	log.Println("Press Ctrl+C to stop")

	s := bridge.NewSupervisor(bridges...)
	err := s.Run(ctx)
	if failed := s.Failed(); len(failed) > 0 {
		log.WithField("bridges", failed).Warn("Some bridges failed")
	}
	return err
}

// runPanic silences every channel of the panic sink
func runPanic(cfg config.Panic) error {
	sink, err := openOutPort(cfg.Sink, cfg.IsVirtual())
	if err != nil {
		return fmt.Errorf("%w: %s: %v", bridge.ErrSinkUnavailable, cfg.Sink, err)
	}
	defer sink.Close()

	log.Printf("Sending MIDI panic to '%s'", cfg.Sink)
	if err := bridge.Panic(sink); err != nil {
		return fmt.Errorf("failed to send panic: %w", err)
	}

	// give the receiver time to drain before the port goes away
	time.Sleep(cfg.Wait)
	return nil
}
