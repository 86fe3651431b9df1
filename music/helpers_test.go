package music

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

const testResolution = 960

// at is a track event placed at an absolute tick.
type at struct {
	tick uint32
	msg  []byte
}

func track(events ...at) smf.Track {
	var tr smf.Track
	var prev uint32
	for _, ev := range events {
		tr.Add(ev.tick-prev, ev.msg)
		prev = ev.tick
	}
	tr.Close(0)
	return tr
}

func encode(t *testing.T, s *smf.SMF, tracks ...smf.Track) []byte {
	t.Helper()
	s.TimeFormat = smf.MetricTicks(testResolution)
	for _, tr := range tracks {
		if err := s.Add(tr); err != nil {
			t.Fatalf("add track: %v", err)
		}
	}
	var buf bytes.Buffer
	if _, err := s.WriteTo(&buf); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func build(t *testing.T, tracks ...smf.Track) *TimedFile {
	t.Helper()
	tf, err := Read(bytes.NewReader(encode(t, smf.NewSMF1(), tracks...)))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return tf
}

func writeFile(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.mid")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// scenario is two tracks holding overlapping notes on channels 0 and 1, one
// event every unit ticks: on 60, on 64, off 60, off 64.
func scenario(t *testing.T, unit uint32) *TimedFile {
	t.Helper()
	return build(t,
		track(at{0, midi.NoteOn(0, 60, 100)}, at{2 * unit, midi.NoteOff(0, 60)}),
		track(at{unit, midi.NoteOn(1, 64, 100)}, at{3 * unit, midi.NoteOff(1, 64)}),
	)
}
