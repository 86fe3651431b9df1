package router

import (
	"errors"
	"testing"

	"github.com/JeanRibes/midi-player/ports"
	"github.com/JeanRibes/midi-player/ports/porttest"
	"gitlab.com/gomidi/midi/v2"
)

func newTestRouter(t *testing.T, opts ...Option) (*Router, *porttest.In, *porttest.Out) {
	t.Helper()
	drv := porttest.New([]string{"Midi Through", "FLUID Synth"}, []string{"Midi Through", "LPK25 keyboard"})
	r := New(drv, opts...)
	if err := r.OpenInput("LPK25"); err != nil {
		t.Fatal(err)
	}
	if err := r.OpenOutput("FLUID"); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(r.Stop)
	return r, drv.In("LPK25 keyboard"), drv.Out("FLUID Synth")
}

func TestRouterForwardsAndQueues(t *testing.T) {
	r, in, out := newTestRouter(t)
	in.Emit(midi.NoteOn(0, 60, 100))
	if len(out.Messages()) != 0 {
		t.Error("forwarded before Start")
	}
	if _, ok := r.Get(); ok {
		t.Error("queued before Start")
	}

	if !r.Start() || !r.Enabled() {
		t.Fatal("not started")
	}
	in.Emit(midi.NoteOn(0, 60, 100))
	in.Emit(midi.NoteOff(0, 60))

	if got := out.Messages(); len(got) != 2 {
		t.Errorf("forwarded %v", got)
	}
	for _, want := range []midi.Message{midi.NoteOn(0, 60, 100), midi.NoteOff(0, 60)} {
		msg, ok := r.Get()
		if !ok || string(msg) != string(want) {
			t.Errorf("Get() = %v, %t, want %v", msg, ok, want)
		}
	}
	if _, ok := r.Get(); ok {
		t.Error("queue not empty")
	}
}

func TestRouterFilter(t *testing.T) {
	r, in, out := newTestRouter(t, WithFilter(midi.AfterTouchMsg))
	r.Start()
	in.Emit(midi.AfterTouch(0, 50))
	in.Emit(midi.NoteOn(0, 60, 100))

	if got := out.Messages(); len(got) != 1 || !got[0].IsOneOf(midi.NoteOnMsg) {
		t.Errorf("forwarded %v", got)
	}
	if msg, ok := r.Get(); !ok || !msg.IsOneOf(midi.AfterTouchMsg) {
		t.Errorf("filtered message not queued: %v", msg)
	}
}

func TestRouterOverflow(t *testing.T) {
	r, in, out := newTestRouter(t, WithQueueSize(2))
	r.Start()
	for key := range uint8(4) {
		in.Emit(midi.NoteOn(0, key, 100))
	}
	if len(out.Messages()) != 4 {
		t.Errorf("overflow stopped forwarding: %v", out.Messages())
	}
	if r.Dropped() != 2 {
		t.Errorf("Dropped() = %d, want 2", r.Dropped())
	}
	var key, ch, vel uint8
	if msg, _ := r.Get(); !msg.GetNoteOn(&ch, &key, &vel) || key != 0 {
		t.Errorf("oldest message lost: %v", msg)
	}
}

func TestRouterDropOldest(t *testing.T) {
	r, in, _ := newTestRouter(t, WithQueueSize(2), WithDropOldest())
	r.Start()
	for key := range uint8(4) {
		in.Emit(midi.NoteOn(0, key, 100))
	}
	var key, ch, vel uint8
	if msg, _ := r.Get(); !msg.GetNoteOn(&ch, &key, &vel) || key != 2 {
		t.Errorf("Get() = %v, want the third note", msg)
	}
}

func TestRouterPut(t *testing.T) {
	r, _, out := newTestRouter(t)
	r.Put(midi.ProgramChange(0, 4))
	if len(out.Messages()) != 1 {
		t.Errorf("Put not forwarded: %v", out.Messages())
	}
	if _, ok := r.Get(); !ok {
		t.Error("Put not queued")
	}
	r.Put(midi.ProgramChange(0, 5))
	r.Clear()
	if _, ok := r.Get(); ok {
		t.Error("Clear left messages")
	}
}

func TestRouterStop(t *testing.T) {
	r, in, out := newTestRouter(t)
	r.Start()
	in.Emit(midi.NoteOn(0, 60, 100))
	r.Stop()

	if r.Enabled() || in.IsOpen() || out.IsOpen() {
		t.Error("endpoints left open")
	}
	if _, ok := r.Get(); ok {
		t.Error("queue not drained")
	}
	in.Emit(midi.NoteOn(0, 61, 100))
	if len(out.Messages()) != 1 {
		t.Errorf("forwarded after Stop: %v", out.Messages())
	}
}

func TestRouterOpenFailures(t *testing.T) {
	drv := porttest.New([]string{"FLUID Synth"}, []string{"LPK25"})
	drv.Break("LPK25")
	r := New(drv)
	if err := r.OpenInput("nanoKEY"); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("OpenInput(unknown) = %v", err)
	}
	if err := r.OpenInput("LPK"); err == nil {
		t.Error("OpenInput(broken) succeeded")
	}
	if err := r.OpenOutput("FLUID"); err != nil {
		t.Fatal(err)
	}
	if r.Start() {
		t.Error("started without an input")
	}
}

func TestRouterReopenDisables(t *testing.T) {
	r, _, _ := newTestRouter(t)
	r.Start()
	if err := r.OpenOutput("Through"); err != nil {
		t.Fatal(err)
	}
	if r.Enabled() {
		t.Error("still enabled after reopening an endpoint")
	}
	if !r.Start() {
		t.Error("could not restart")
	}
}

func TestParseTypes(t *testing.T) {
	types, err := ParseTypes([]string{"aftertouch", "poly_aftertouch", "Pitch-Bend", "sysex"})
	if err != nil {
		t.Fatal(err)
	}
	want := []midi.Type{midi.AfterTouchMsg, midi.PolyAfterTouchMsg, midi.PitchBendMsg, midi.SysExMsg}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("type %d = %v, want %v", i, types[i], want[i])
		}
	}
	if _, err := ParseTypes([]string{"clock"}); err == nil {
		t.Error("ParseTypes(clock) succeeded")
	}
}
