// Package synth configures instrument channels on an output before playback.
package synth

import (
	"fmt"

	"github.com/JeanRibes/midi-player/ports"
	"gitlab.com/gomidi/midi/v2"
)

const (
	ctrlBankMSB = 0
	ctrlVolume  = 7
	ctrlBankLSB = 32
)

// Program selects the sound of a channel.
type Program struct {
	Bank   uint16 `yaml:"bank"`
	Preset uint8  `yaml:"preset"`
	Volume uint8  `yaml:"volume"`
}

var DefaultProgram = Program{Volume: 127}

type Instrument interface {
	SetupChannel(out ports.Out, channel uint8, p Program) error
}

// GM sets channels up with standard bank select, program change and volume
// messages, which FluidSynth and most General MIDI devices understand.
type GM struct{}

func (GM) SetupChannel(out ports.Out, channel uint8, p Program) error {
	if channel > 15 {
		return fmt.Errorf("channel %d out of range", channel)
	}
	for _, msg := range []midi.Message{
		midi.ControlChange(channel, ctrlBankMSB, uint8(p.Bank>>7)&0x7f),
		midi.ControlChange(channel, ctrlBankLSB, uint8(p.Bank)&0x7f),
		midi.ProgramChange(channel, p.Preset&0x7f),
		midi.ControlChange(channel, ctrlVolume, p.Volume&0x7f),
	} {
		if err := out.Send(msg); err != nil {
			return fmt.Errorf("setup channel %d on %s: %w", channel, out, err)
		}
	}
	return nil
}

// Setup configures channel on out. A nil instrument leaves the channel as is.
func Setup(inst Instrument, out ports.Out, channel uint8, p Program) error {
	if inst == nil {
		return nil
	}
	return inst.SetupChannel(out, channel, p)
}
