package main

import (
	"fmt"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"midi-bridge/internal/bridge"
)

// OutPort is a MIDI output port the bridge forwards to
type OutPort struct {
	name string
	out  drivers.Out
}

// openOutPort creates a virtual output port other applications can connect
// to, or opens an existing output port by name
func openOutPort(name string, virtual bool) (bridge.Sink, error) {
	if virtual {
		driver, ok := drivers.Get().(*rtmididrv.Driver)
		if !ok {
			return nil, fmt.Errorf("rtmididrv driver not available")
		}

		out, err := driver.OpenVirtualOut(name)
		if err != nil {
			return nil, fmt.Errorf("failed to create virtual MIDI output port '%s': %w", name, err)
		}
		return &OutPort{name: name, out: out}, nil
	}

	outs, err := drivers.Outs()
	if err != nil {
		return nil, fmt.Errorf("failed to get MIDI outputs: %w", err)
	}

	// Find output port
	var output drivers.Out
	for _, out := range outs {
		if out.String() == name {
			output = out
			break
		}
	}
	if output == nil {
		return nil, fmt.Errorf("output port '%s' not found", name)
	}

	if err := output.Open(); err != nil {
		return nil, fmt.Errorf("failed to open output port: %w", err)
	}
	return &OutPort{name: name, out: output}, nil
}

// Send writes one complete message to the port
func (p *OutPort) Send(msg midi.Message) error {
	return p.out.Send(msg)
}

// Close releases the port; a virtual port disappears
func (p *OutPort) Close() error {
	return p.out.Close()
}

func (p *OutPort) String() string {
	return p.name
}
