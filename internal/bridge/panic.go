package bridge

import (
	"github.com/pkg/errors"
	"gitlab.com/gomidi/midi/v2"
)

const (
	ccAllSoundOff = 120
	ccAllNotesOff = 123
)

// Panic silences every channel of sink: All Sound Off then All Notes Off,
// channel by channel from 0 to 15. The sink is left open.
func Panic(sink Sink) error {
	for ch := uint8(0); ch < 16; ch++ {
		for _, cc := range []uint8{ccAllSoundOff, ccAllNotesOff} {
			if err := sink.Send(midi.ControlChange(ch, cc, 0)); err != nil {
				return errors.Wrapf(err, "channel %d controller %d", ch, cc)
			}
		}
	}
	return nil
}
