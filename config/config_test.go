package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	"gitlab.com/gomidi/midi/v2"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadMissingFile(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if c.MaxChannels != 1 || !c.StrictPorts || c.Router.QueueSize != 100 || c.Metronome.Tempo != 120 {
		t.Errorf("defaults = %+v", c)
	}
}

func TestLoad(t *testing.T) {
	c, err := Load(writeConfig(t, `
output: FLUID
max_channels: 4
log_level: debug
channels:
  - {bank: 0, preset: 1, volume: 100}
  - {bank: 128, preset: 56, volume: 90}
router:
  filter: [aftertouch, polyaftertouch]
  drop_oldest: true
metronome:
  tempo: 90
`))
	if err != nil {
		t.Fatal(err)
	}
	if c.Output != "FLUID" || c.MaxChannels != 4 || len(c.Channels) != 2 || c.Channels[1].Bank != 128 {
		t.Errorf("config = %+v", c)
	}
	if c.Metronome.Tempo != 90 || c.Metronome.Measure != 4 || !c.Router.DropOldest {
		t.Errorf("nested defaults lost: %+v", c)
	}
	if level, _ := c.Level(); level != log.DebugLevel {
		t.Errorf("Level() = %v", level)
	}
	filter, err := c.Filter()
	if err != nil || len(filter) != 2 || filter[0] != midi.AfterTouchMsg {
		t.Errorf("Filter() = %v, %v", filter, err)
	}
}

func TestLoadInvalid(t *testing.T) {
	for _, content := range []string{
		"max_channels: 0",
		"max_channels: 17",
		"log_level: loud",
		"router: {filter: [clock]}",
		"router: {queue_size: -1}",
		"metronome: {tempo: 0}",
		"output: [",
	} {
		if _, err := Load(writeConfig(t, content)); err == nil {
			t.Errorf("Load(%q) succeeded", content)
		}
	}
}
