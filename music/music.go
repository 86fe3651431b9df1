package music

import (
	"bytes"
	"cmp"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"slices"
	"sort"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
	"gitlab.com/gomidi/quantizer/lib/quantizer"
)

// DefaultTempo applies until the first tempo change, in microseconds per beat (120 BPM).
const DefaultTempo = 500_000

var (
	ErrParse      = errors.New("cannot decode MIDI file")
	ErrTimeFormat = errors.New("unsupported MIDI time format")
)

// TimedEvent is an event of the merged list with its wall clock position.
type TimedEvent struct {
	Index   int
	Track   int
	Ticks   uint32 // since the previous merged event
	Message smf.Message

	Delta    time.Duration
	Absolute time.Duration
	Duration time.Duration // note-ons only, once the matching note end is known
}

// Mark is a position in the event list.
type Mark struct {
	Index int
	Time  time.Duration
}

// Tempo is one step of the tempo map: MicrosPerBeat holds from event Index on.
type Tempo struct {
	Index         int
	MicrosPerBeat uint32
}

// TimedFile is a MIDI file flattened into a single chronological list of
// events annotated with absolute time. It is read-only once built.
type TimedFile struct {
	format       uint16
	ticksPerBeat uint16
	tracks       []smf.Track
	events       []TimedEvent
	tempos       []Tempo
	length       time.Duration
}

func Load(path string) (*TimedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}

// LoadQuantized snaps the notes of the file to the grid before building the
// event list.
func LoadQuantized(path string) (*TimedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var bf bytes.Buffer
	if err := quantizer.Quantize(bytes.NewBuffer(data), &bf); err != nil {
		return nil, fmt.Errorf("%w: quantize: %w", ErrParse, err)
	}
	return Read(&bf)
}

func Read(r io.Reader) (*TimedFile, error) {
	s, err := smf.ReadFrom(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	ticks, ok := s.TimeFormat.(smf.MetricTicks)
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrTimeFormat, s.TimeFormat)
	}
	if ticks.Resolution() == 0 {
		return nil, fmt.Errorf("%w: zero ticks per beat", ErrParse)
	}
	tf := &TimedFile{
		format:       s.Format(),
		ticksPerBeat: ticks.Resolution(),
		tracks:       s.Tracks,
	}
	if tf.Merged() {
		tf.build(tf.merge())
	}
	return tf, nil
}

type tickEvent struct {
	tick  uint64
	track int
	msg   smf.Message
}

// merge flattens the tracks by absolute tick. Events at the same tick keep
// their track order. End of track markers are dropped.
func (tf *TimedFile) merge() []tickEvent {
	var all []tickEvent
	for i, tr := range tf.tracks {
		var tick uint64
		for _, ev := range tr {
			tick += uint64(ev.Delta)
			if isEndOfTrack(ev.Message) {
				continue
			}
			all = append(all, tickEvent{tick: tick, track: i, msg: ev.Message})
		}
	}
	slices.SortStableFunc(all, func(a, b tickEvent) int {
		return cmp.Compare(a.tick, b.tick)
	})
	return all
}

type noteKey struct {
	channel, key uint8
}

func (tf *TimedFile) build(all []tickEvent) {
	tempo := uint32(DefaultTempo)
	open := map[noteKey]int{}
	var (
		prev uint64
		abs  time.Duration
		bpm  float64
	)
	tf.events = make([]TimedEvent, 0, len(all))
	for i, te := range all {
		ticks := uint32(te.tick - prev)
		prev = te.tick
		// a tempo change already applies to its own delta
		if te.msg.GetMetaTempo(&bpm) && bpm > 0 {
			tempo = uint32(math.Round(60_000_000 / bpm))
			tf.tempos = append(tf.tempos, Tempo{Index: i, MicrosPerBeat: tempo})
		}
		delta := tf.duration(ticks, tempo)
		abs += delta
		tf.events = append(tf.events, TimedEvent{
			Index:    i,
			Track:    te.track,
			Ticks:    ticks,
			Message:  te.msg,
			Delta:    delta,
			Absolute: abs,
		})

		if te.msg.IsMeta() {
			continue
		}
		var ch, key, vel uint8
		msg := midi.Message(te.msg)
		switch {
		case msg.GetNoteStart(&ch, &key, &vel):
			open[noteKey{ch, key}] = i
		case msg.GetNoteEnd(&ch, &key):
			if on, ok := open[noteKey{ch, key}]; ok {
				tf.events[on].Duration = abs - tf.events[on].Absolute
				delete(open, noteKey{ch, key})
			}
		}
	}
	tf.length = abs
}

func (tf *TimedFile) duration(ticks, tempo uint32) time.Duration {
	micros := float64(ticks) * float64(tempo) / float64(tf.ticksPerBeat)
	return time.Duration(math.Round(micros * float64(time.Microsecond)))
}

func isEndOfTrack(msg smf.Message) bool {
	return len(msg) >= 2 && msg[0] == 0xFF && msg[1] == 0x2F
}

// Merged is false for format 2 files: their tracks are timed independently
// and can only be inspected one by one.
func (tf *TimedFile) Merged() bool {
	return tf.format != 2
}

func (tf *TimedFile) Format() uint16       { return tf.format }
func (tf *TimedFile) TicksPerBeat() uint16 { return tf.ticksPerBeat }
func (tf *TimedFile) Tracks() []smf.Track  { return tf.tracks }
func (tf *TimedFile) Len() int             { return len(tf.events) }
func (tf *TimedFile) Length() time.Duration {
	return tf.length
}

func (tf *TimedFile) Event(i int) TimedEvent {
	return tf.events[i]
}

func (tf *TimedFile) Events() []TimedEvent {
	return slices.Clone(tf.events)
}

func (tf *TimedFile) Tempos() []Tempo {
	return slices.Clone(tf.tempos)
}

// TrackName returns the sequence/track name meta event of track i, if any.
func (tf *TimedFile) TrackName(i int) string {
	var name string
	for _, ev := range tf.tracks[i] {
		if ev.Message.GetMetaTrackName(&name) {
			return name
		}
	}
	return ""
}

// MessageCount counts the events of the merged list, or of all tracks when
// merged is false (end of track markers included).
func (tf *TimedFile) MessageCount(includeMeta, merged bool) int {
	n := 0
	if merged {
		for _, ev := range tf.events {
			if includeMeta || !ev.Message.IsMeta() {
				n++
			}
		}
		return n
	}
	for _, tr := range tf.tracks {
		for _, ev := range tr {
			if includeMeta || !ev.Message.IsMeta() {
				n++
			}
		}
	}
	return n
}

// TrackCount counts the tracks holding at least one non-meta event, or every
// non-empty track when playableOnly is false.
func (tf *TimedFile) TrackCount(playableOnly bool) int {
	n := 0
	for _, tr := range tf.tracks {
		if slices.ContainsFunc(tr, func(ev smf.Event) bool {
			return !playableOnly || !ev.Message.IsMeta()
		}) {
			n++
		}
	}
	return n
}

// IndexAt returns the first index whose time is after t. Events at exactly t
// resolve to the index following them.
func (tf *TimedFile) IndexAt(t time.Duration) int {
	return sort.Search(len(tf.events), func(i int) bool {
		return tf.events[i].Absolute > t
	})
}

// firstAt returns the first index whose time is at or after t.
func (tf *TimedFile) firstAt(t time.Duration) int {
	return sort.Search(len(tf.events), func(i int) bool {
		return tf.events[i].Absolute >= t
	})
}

// TimeAt clamps index to the list; past the end it is the total length.
func (tf *TimedFile) TimeAt(index int) time.Duration {
	switch {
	case len(tf.events) == 0:
		return 0
	case index < 0:
		return tf.events[0].Absolute
	case index >= len(tf.events):
		return tf.length
	}
	return tf.events[index].Absolute
}

// NextTime returns the time of the first event strictly later than the one at
// index, or the total length. Before the first event it returns the time of
// the first event.
func (tf *TimedFile) NextTime(index int) time.Duration {
	if index < 0 {
		return tf.TimeAt(0)
	}
	next := tf.IndexAt(tf.TimeAt(index))
	if next >= len(tf.events) {
		return tf.length
	}
	return tf.events[next].Absolute
}

// MarkAt clamps index to [0, Len()].
func (tf *TimedFile) MarkAt(index int) Mark {
	index = min(max(index, 0), len(tf.events))
	return Mark{Index: index, Time: tf.TimeAt(index)}
}
