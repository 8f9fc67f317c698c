package main

import (
	"fmt"

	"gitlab.com/gomidi/midi/v2/drivers"
)

// listPorts prints the output ports a bridge can forward to when its sink is
// not virtual
func listPorts() error {
	outs, err := drivers.Outs()
	if err != nil {
		return fmt.Errorf("failed to get MIDI outputs: %w", err)
	}

	fmt.Println("Available MIDI Output Ports:")
	for i, out := range outs {
		fmt.Printf("  %d: %s\n", i, out.String())
	}
	return nil
}
