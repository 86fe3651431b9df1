package music

import (
	"fmt"

	"gitlab.com/gomidi/midi/v2"
)

type State int

const (
	Stopped State = iota
	Playing
	Pausing // waiting for held notes to end
	Paused
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Playing:
		return "playing"
	case Pausing:
		return "pausing"
	case Paused:
		return "paused"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// heldNotes is the set of (channel, key) currently sounding. Channels are the
// ones messages were dispatched with, i.e. output port indexes. Tracks folded
// onto the same port share an entry, as they share the synthesizer voice.
type heldNotes map[noteKey]struct{}

func (h heldNotes) has(ch, key uint8) bool {
	_, ok := h[noteKey{ch, key}]
	return ok
}

func (h heldNotes) press(ch, key uint8)   { h[noteKey{ch, key}] = struct{}{} }
func (h heldNotes) release(ch, key uint8) { delete(h, noteKey{ch, key}) }

// releaseAll empties the set and returns the note offs to send.
func (h heldNotes) releaseAll() []midi.Message {
	offs := make([]midi.Message, 0, len(h))
	for k := range h {
		offs = append(offs, midi.NoteOff(k.channel, k.key))
		delete(h, k)
	}
	return offs
}
