package ports_test

import (
	"errors"
	"slices"
	"testing"

	"github.com/JeanRibes/midi-player/ports"
	"github.com/JeanRibes/midi-player/ports/porttest"
)

func TestFind(t *testing.T) {
	names := []string{"Midi Through:0", "FLUID Synth (1234):0", "FLUID Synth (5678):0"}
	tests := []struct {
		mask string
		want []string
	}{
		{"FLUID", names[1:]},
		{"5678", names[2:]},
		{"", names},
		{"fluid", nil},
	}
	for _, tt := range tests {
		if got := ports.Find(names, tt.mask); !slices.Equal(got, tt.want) {
			t.Errorf("Find(%q) = %v, want %v", tt.mask, got, tt.want)
		}
	}
}

func TestFindInOut(t *testing.T) {
	drv := porttest.New([]string{"synth"}, []string{"keyboard"})
	if name, err := ports.FindIn(drv, "key"); err != nil || name != "keyboard" {
		t.Errorf("FindIn() = %q, %v", name, err)
	}
	if _, err := ports.FindOut(drv, "key"); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("FindOut() = %v", err)
	}
}

func TestOpenOuts(t *testing.T) {
	drv := porttest.New([]string{"synth 1", "synth 2", "synth 3", "piano"}, nil)

	outs, err := ports.OpenOuts(drv, "synth", 2)
	if err != nil || len(outs) != 2 {
		t.Fatalf("OpenOuts(2) = %v, %v", outs, err)
	}
	if outs[0].String() != "synth 1" || outs[1].String() != "synth 2" {
		t.Errorf("opened %v", outs)
	}
	if err := ports.CloseAll(outs); err != nil {
		t.Fatal(err)
	}
	if drv.Out("synth 1").IsOpen() {
		t.Error("CloseAll left a port open")
	}

	if outs, err := ports.OpenOuts(drv, "synth", 0); err != nil || len(outs) != 3 {
		t.Errorf("OpenOuts(0) = %v, %v", outs, err)
	}

	drv.Break("synth 2")
	outs, err = ports.OpenOuts(drv, "synth", 2)
	if err == nil || len(outs) != 2 || outs[1].String() != "synth 3" {
		t.Errorf("OpenOuts with a broken port = %v, %v", outs, err)
	}

	if _, err := ports.OpenOuts(drv, "organ", 1); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("OpenOuts(organ) = %v", err)
	}
}
