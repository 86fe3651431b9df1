package music

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

func TestScenarioTiming(t *testing.T) {
	tf := scenario(t, testResolution)

	if tf.Len() != 4 {
		t.Fatalf("Len() = %d, want 4", tf.Len())
	}
	want := []time.Duration{0, 500 * time.Millisecond, time.Second, 1500 * time.Millisecond}
	for i, w := range want {
		if got := tf.Event(i).Absolute; got != w {
			t.Errorf("event %d at %v, want %v", i, got, w)
		}
	}
	if tf.Length() != 1500*time.Millisecond {
		t.Errorf("Length() = %v", tf.Length())
	}
	if tf.Event(1).Track != 1 || tf.Event(2).Track != 0 {
		t.Errorf("events not interleaved by time: tracks %d %d", tf.Event(1).Track, tf.Event(2).Track)
	}
}

func TestMonotonicTime(t *testing.T) {
	tf := build(t,
		track(at{0, smf.MetaTempo(90)}, at{100, midi.NoteOn(0, 60, 1)}, at{400, smf.MetaTempo(200)}, at{900, midi.NoteOff(0, 60)}),
		track(at{50, midi.NoteOn(1, 50, 1)}, at{50, midi.ControlChange(1, 7, 100)}, at{1200, midi.NoteOff(1, 50)}),
		track(at{900, midi.NoteOn(2, 40, 1)}, at{901, midi.NoteOff(2, 40)}),
	)
	var prev time.Duration
	for i, ev := range tf.Events() {
		if ev.Index != i {
			t.Errorf("event %d has index %d", i, ev.Index)
		}
		if ev.Absolute < prev {
			t.Errorf("event %d at %v goes back before %v", i, ev.Absolute, prev)
		}
		prev = ev.Absolute
	}
}

func TestSameTickKeepsTrackOrder(t *testing.T) {
	tf := build(t,
		track(at{10, midi.NoteOn(0, 60, 1)}),
		track(at{10, midi.NoteOn(1, 61, 1)}),
	)
	for i, key := range []uint8{60, 61} {
		var ch, k, vel uint8
		if !midi.Message(tf.Event(i).Message).GetNoteOn(&ch, &k, &vel) || k != key {
			t.Errorf("event %d = %v, want key %d", i, tf.Event(i).Message, key)
		}
	}
}

func TestTempoScaling(t *testing.T) {
	file := func(bpm float64) *TimedFile {
		return build(t, track(
			at{0, midi.NoteOn(0, 60, 100)},
			at{480, smf.MetaTempo(bpm)},
			at{960, midi.NoteOff(0, 60)},
			at{1920, midi.NoteOn(0, 62, 100)},
		))
	}
	slow, fast := file(60), file(240)

	if slow.Len() != fast.Len() {
		t.Fatalf("lengths differ: %d and %d", slow.Len(), fast.Len())
	}
	for i := range slow.Len() {
		a, b := slow.Event(i).Message, fast.Event(i).Message
		if a.Type() != b.Type() {
			t.Errorf("event %d: %v and %v", i, a.Type(), b.Type())
		}
		if !a.IsMeta() && !bytes.Equal(a, b) {
			t.Errorf("event %d differs: %v and %v", i, a, b)
		}
	}
	// a tempo change already applies to its own delta
	if got := slow.Event(1).Absolute; got != 500*time.Millisecond {
		t.Errorf("tempo event at %v at 60 BPM, want 500ms", got)
	}
	if got := fast.Event(1).Absolute; got != 125*time.Millisecond {
		t.Errorf("tempo event at %v at 240 BPM, want 125ms", got)
	}
	if got := slow.Event(2).Delta; got != 500*time.Millisecond {
		t.Errorf("delta at 60 BPM = %v, want 500ms", got)
	}
	if got := fast.Event(2).Delta; got != 125*time.Millisecond {
		t.Errorf("delta at 240 BPM = %v, want 125ms", got)
	}
	if got := slow.Event(3).Delta; got != 4*fast.Event(3).Delta {
		t.Errorf("deltas not scaled: %v and %v", got, fast.Event(3).Delta)
	}
	if tempos := slow.Tempos(); len(tempos) != 1 || tempos[0].Index != 1 || tempos[0].MicrosPerBeat != 1_000_000 {
		t.Errorf("Tempos() = %v", tempos)
	}
}

func TestDurations(t *testing.T) {
	tf := build(t, track(
		at{0, midi.NoteOn(0, 60, 100)},
		at{0, midi.NoteOn(0, 64, 100)},
		at{960, midi.NoteOn(0, 60, 0)},
		at{1920, midi.NoteOff(0, 64)},
		at{1920, midi.NoteOn(1, 67, 100)},
	))
	want := []time.Duration{500 * time.Millisecond, time.Second, 0, 0, 0}
	for i, w := range want {
		if got := tf.Event(i).Duration; got != w {
			t.Errorf("event %d lasts %v, want %v", i, got, w)
		}
	}
}

func TestCounts(t *testing.T) {
	tf := build(t,
		track(at{0, smf.MetaTempo(120)}, at{0, smf.MetaTrackSequenceName("conductor")}),
		track(at{0, midi.NoteOn(0, 60, 100)}, at{10, midi.NoteOff(0, 60)}),
		track(at{0, midi.NoteOn(1, 60, 100)}, at{10, midi.NoteOff(1, 60)}),
	)
	tests := []struct {
		includeMeta, merged bool
		want                int
	}{
		{false, true, 4},
		{true, true, 6},
		{false, false, 4},
		{true, false, 9}, // end of track markers
	}
	for _, tt := range tests {
		if got := tf.MessageCount(tt.includeMeta, tt.merged); got != tt.want {
			t.Errorf("MessageCount(%t, %t) = %d, want %d", tt.includeMeta, tt.merged, got, tt.want)
		}
	}
	if got := tf.TrackCount(true); got != 2 {
		t.Errorf("TrackCount(true) = %d, want 2", got)
	}
	if got := tf.TrackCount(false); got != 3 {
		t.Errorf("TrackCount(false) = %d, want 3", got)
	}
	if got := tf.TrackName(0); got != "conductor" {
		t.Errorf("TrackName(0) = %q", got)
	}
}

func TestIndexAt(t *testing.T) {
	tf := scenario(t, testResolution)
	tests := []struct {
		t    time.Duration
		want int
	}{
		{-time.Second, 0},
		{0, 1},
		{250 * time.Millisecond, 1},
		{500 * time.Millisecond, 2},
		{1499 * time.Millisecond, 3},
		{1500 * time.Millisecond, 4},
		{time.Hour, 4},
	}
	for _, tt := range tests {
		if got := tf.IndexAt(tt.t); got != tt.want {
			t.Errorf("IndexAt(%v) = %d, want %d", tt.t, got, tt.want)
		}
	}
}

func TestMarkRoundTrips(t *testing.T) {
	tf := build(t,
		track(at{0, midi.NoteOn(0, 60, 1)}, at{0, midi.NoteOn(0, 62, 1)}, at{300, midi.NoteOff(0, 60)}, at{960, midi.NoteOff(0, 62)}),
		track(at{300, midi.NoteOn(1, 60, 1)}, at{1500, midi.NoteOff(1, 60)}),
	)
	for i := range tf.Len() + 1 {
		if got := tf.IndexAt(tf.TimeAt(i)); got < i {
			t.Errorf("IndexAt(TimeAt(%d)) = %d", i, got)
		}
	}
	for ms := 0; ms <= int(tf.Length()/time.Millisecond); ms += 7 {
		pos := time.Duration(ms) * time.Millisecond
		if got := tf.TimeAt(tf.IndexAt(pos)); got < pos {
			t.Errorf("TimeAt(IndexAt(%v)) = %v", pos, got)
		}
	}
}

func TestTimeAtClamps(t *testing.T) {
	tf := scenario(t, testResolution)
	if got := tf.TimeAt(-3); got != 0 {
		t.Errorf("TimeAt(-3) = %v", got)
	}
	if got := tf.TimeAt(99); got != tf.Length() {
		t.Errorf("TimeAt(99) = %v, want %v", got, tf.Length())
	}
	if m := tf.MarkAt(99); m.Index != 4 || m.Time != tf.Length() {
		t.Errorf("MarkAt(99) = %+v", m)
	}
	if m := tf.MarkAt(-1); m != (Mark{}) {
		t.Errorf("MarkAt(-1) = %+v", m)
	}
	if m := tf.MarkAt(2); m.Time != time.Second {
		t.Errorf("MarkAt(2) = %+v", m)
	}
}

func TestNextTime(t *testing.T) {
	tf := build(t, track(
		at{0, midi.NoteOn(0, 60, 1)},
		at{0, midi.NoteOn(0, 64, 1)},
		at{960, midi.NoteOff(0, 60)},
		at{960, midi.NoteOff(0, 64)},
	))
	tests := []struct {
		index int
		want  time.Duration
	}{
		{0, 500 * time.Millisecond},
		{1, 500 * time.Millisecond},
		{2, 500 * time.Millisecond},
		{3, 500 * time.Millisecond},
		{-1, 0},
		{-5, 0},
	}
	for _, tt := range tests {
		if got := tf.NextTime(tt.index); got != tt.want {
			t.Errorf("NextTime(%d) = %v, want %v", tt.index, got, tt.want)
		}
	}
}

func TestAsynchronousFileNotMerged(t *testing.T) {
	data := encode(t, smf.NewSMF2(),
		track(at{0, midi.NoteOn(0, 60, 1)}, at{10, midi.NoteOff(0, 60)}),
		track(at{0, midi.NoteOn(0, 62, 1)}, at{10, midi.NoteOff(0, 62)}),
	)
	tf, err := Read(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if tf.Merged() {
		t.Error("format 2 file merged")
	}
	if tf.Len() != 0 || tf.Length() != 0 {
		t.Errorf("Len() = %d, Length() = %v", tf.Len(), tf.Length())
	}
	if got := tf.MessageCount(false, false); got != 4 {
		t.Errorf("MessageCount(false, false) = %d, want 4", got)
	}
	if got := tf.TrackCount(true); got != 2 {
		t.Errorf("TrackCount(true) = %d, want 2", got)
	}
}

func TestReadErrors(t *testing.T) {
	if _, err := Read(strings.NewReader("not a midi file")); !errors.Is(err, ErrParse) {
		t.Errorf("Read(garbage) = %v, want ErrParse", err)
	}
	if _, err := Load("does/not/exist.mid"); err == nil {
		t.Error("Load(missing) succeeded")
	}
	if _, err := LoadQuantized("does/not/exist.mid"); err == nil {
		t.Error("LoadQuantized(missing) succeeded")
	}
}

func TestLoad(t *testing.T) {
	path := writeFile(t, encode(t, smf.NewSMF1(), track(at{0, midi.NoteOn(0, 60, 1)}, at{960, midi.NoteOff(0, 60)})))
	tf, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if tf.Len() != 2 || tf.TicksPerBeat() != testResolution || tf.Format() != 1 {
		t.Errorf("Len() = %d, TicksPerBeat() = %d, Format() = %d", tf.Len(), tf.TicksPerBeat(), tf.Format())
	}
}
