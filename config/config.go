// Package config loads the player settings from a YAML file.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/JeanRibes/midi-player/router"
	"github.com/JeanRibes/midi-player/synth"
	"github.com/charmbracelet/log"
	"gitlab.com/gomidi/midi/v2"
	"gopkg.in/yaml.v3"
)

type Config struct {
	// Output and Input are port name substrings.
	Output      string          `yaml:"output"`
	Input       string          `yaml:"input"`
	MaxChannels int             `yaml:"max_channels"`
	StrictPorts bool            `yaml:"strict_ports"`
	LogLevel    string          `yaml:"log_level"`
	Channels    []synth.Program `yaml:"channels"`

	Router struct {
		Filter     []string `yaml:"filter"`
		QueueSize  int      `yaml:"queue_size"`
		DropOldest bool     `yaml:"drop_oldest"`
	} `yaml:"router"`

	Metronome struct {
		Output   string `yaml:"output"`
		Tempo    int    `yaml:"tempo"`
		Measure  int    `yaml:"measure"`
		Velocity uint8  `yaml:"velocity"`
		Bell     bool   `yaml:"bell"`
	} `yaml:"metronome"`

	Serial struct {
		Port   string `yaml:"port"`
		Baud   int    `yaml:"baud"`
		Keymap string `yaml:"keymap"`
	} `yaml:"serial"`
}

func Default() Config {
	var c Config
	c.MaxChannels = 1
	c.StrictPorts = true
	c.LogLevel = "info"
	c.Router.QueueSize = router.DefaultQueueSize
	c.Metronome.Tempo = 120
	c.Metronome.Measure = 4
	c.Metronome.Velocity = 90
	c.Metronome.Bell = true
	c.Serial.Baud = 115200
	return c
}

// Load reads filename over the defaults. A missing file yields the defaults.
func Load(filename string) (Config, error) {
	c := Default()
	data, err := os.ReadFile(filename)
	if errors.Is(err, os.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("%s: %w", filename, err)
	}
	if err := c.Validate(); err != nil {
		return c, fmt.Errorf("%s: %w", filename, err)
	}
	return c, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.MaxChannels < 1 || c.MaxChannels > 16 {
		errs = append(errs, fmt.Errorf("max_channels must be within 1..16, got %d", c.MaxChannels))
	}
	if c.Router.QueueSize < 1 {
		errs = append(errs, fmt.Errorf("router.queue_size must be positive, got %d", c.Router.QueueSize))
	}
	if c.Metronome.Tempo < 1 || c.Metronome.Measure < 1 {
		errs = append(errs, errors.New("metronome tempo and measure must be positive"))
	}
	if c.Metronome.Velocity > 127 {
		errs = append(errs, fmt.Errorf("metronome.velocity must be within 0..127, got %d", c.Metronome.Velocity))
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Filter(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c Config) Level() (log.Level, error) {
	return log.ParseLevel(c.LogLevel)
}

// Filter is the list of message types the router does not forward.
func (c Config) Filter() ([]midi.Type, error) {
	return router.ParseTypes(c.Router.Filter)
}
