// Package decoder rebuilds complete MIDI messages from a raw MIDI 1.0 byte
// stream that may arrive in arbitrary chunks.
package decoder

import (
	"gitlab.com/gomidi/midi/v2"
)

const (
	sysExStart = 0xF0
	sysExEnd   = 0xF7
	tuneReq    = 0xF6
	realtime   = 0xF8
)

// Stats counts the bytes the decoder had to throw away.
type Stats struct {
	Orphans   uint64 // data bytes with no status to attach to
	Undefined uint64 // reserved status bytes (F4, F5, F9, FD) and stray F7
	Aborted   uint64 // sysex captures interrupted by another status byte
}

// Decoder is a byte-at-a-time MIDI stream state machine. Running status
// belongs to the Decoder, so it survives across Feed calls. A Decoder is not
// safe for concurrent use.
type Decoder struct {
	status byte // running status, 0 when none
	need   int
	data   [2]byte
	n      int

	inSysEx bool
	sysex   []byte

	stats Stats
}

// New returns a Decoder with no running status.
func New() *Decoder {
	return &Decoder{}
}

// Reset forgets running status and every partially received message.
func (d *Decoder) Reset() {
	d.status = 0
	d.need = 0
	d.n = 0
	d.inSysEx = false
	d.sysex = nil
}

// Stats returns the drop counters accumulated since New.
func (d *Decoder) Stats() Stats {
	return d.stats
}

// Feed consumes every byte of p and returns the messages completed by it,
// in stream order.
func (d *Decoder) Feed(p []byte) []midi.Message {
	var msgs []midi.Message
	for _, b := range p {
		if msg, ok := d.FeedByte(b); ok {
			msgs = append(msgs, msg)
		}
	}
	return msgs
}

// FeedByte consumes a single byte and reports the message it completes, if any.
func (d *Decoder) FeedByte(b byte) (midi.Message, bool) {
	switch {
	case b >= realtime:
		return d.realtime(b)
	case b&0x80 != 0:
		return d.statusByte(b)
	default:
		return d.dataByte(b)
	}
}

func (d *Decoder) realtime(b byte) (midi.Message, bool) {
	// 0xF9 and 0xFD are undefined
	if b == 0xF9 || b == 0xFD {
		d.stats.Undefined++
		return nil, false
	}
	return midi.Message{b}, true
}

func (d *Decoder) statusByte(b byte) (midi.Message, bool) {
	if b == 0xF4 || b == 0xF5 {
		d.stats.Undefined++
		return nil, false
	}

	if d.inSysEx {
		if b == sysExEnd {
			msg := append(d.sysex, sysExEnd)
			d.inSysEx = false
			d.sysex = nil
			return midi.Message(msg), true
		}
		d.stats.Aborted++
		d.inSysEx = false
		d.sysex = nil
	}

	d.n = 0
	switch b {
	case sysExStart:
		d.status = 0
		d.inSysEx = true
		d.sysex = []byte{sysExStart}
		return nil, false
	case sysExEnd:
		d.status = 0
		d.stats.Undefined++
		return nil, false
	case tuneReq:
		d.status = 0
		return midi.Message{b}, true
	}

	d.status = b
	d.need = dataLen(b)
	return nil, false
}

func (d *Decoder) dataByte(b byte) (midi.Message, bool) {
	if d.inSysEx {
		d.sysex = append(d.sysex, b)
		return nil, false
	}
	if d.status == 0 {
		d.stats.Orphans++
		return nil, false
	}

	d.data[d.n] = b
	d.n++
	if d.n < d.need {
		return nil, false
	}

	msg := make(midi.Message, 1+d.need)
	msg[0] = d.status
	copy(msg[1:], d.data[:d.need])
	d.n = 0

	// system common messages never run
	if d.status >= 0xF0 {
		d.status = 0
	}
	return msg, true
}

// dataLen is the number of data bytes mandated by a non-realtime status byte.
func dataLen(status byte) int {
	switch status & 0xF0 {
	case 0xC0, 0xD0: // Program Change, Channel Pressure
		return 1
	case 0xF0:
		switch status {
		case 0xF1, 0xF3: // MIDI Time Code, Song Select
			return 1
		case 0xF2: // Song Position Pointer
			return 2
		}
		return 0
	default: // Note Off, Note On, Poly Pressure, Control Change, Pitch Bend
		return 2
	}
}
