package ports

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/albenik/go-serial/v2"
	"github.com/charmbracelet/log"
	"gitlab.com/gomidi/midi/v2"
)

const serialPrefix = "serial:"

// Keymap maps a keyboard scan code to a MIDI note. Negative values are
// controller numbers toggled between 64 and 0.
type Keymap map[int]int

// LoadKeymap reads one "code:note" pair per line.
func LoadKeymap(filename string) (Keymap, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ReadKeymap(file)
}

func ReadKeymap(r io.Reader) (Keymap, error) {
	keymap := Keymap{}
	scanner := bufio.NewScanner(r)
	for n := 1; scanner.Scan(); n++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		code, note, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("keymap line %d: missing ':'", n)
		}
		key, err := strconv.Atoi(strings.TrimSpace(code))
		if err != nil {
			return nil, fmt.Errorf("keymap line %d: %w", n, err)
		}
		val, err := strconv.Atoi(strings.TrimSpace(note))
		if err != nil {
			return nil, fmt.Errorf("keymap line %d: %w", n, err)
		}
		keymap[key] = val
	}
	return keymap, scanner.Err()
}

type SerialConfig struct {
	Baud   int
	Keymap Keymap
	Logger *log.Logger
}

// WithSerial exposes the serial devices of the machine as additional inputs,
// named "serial:<device>". Outputs are those of base.
func WithSerial(base Driver, cfg SerialConfig) Driver {
	if cfg.Baud == 0 {
		cfg.Baud = 115200
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard)
	}
	return &serialDriver{Driver: base, cfg: cfg}
}

type serialDriver struct {
	Driver
	cfg SerialConfig
}

func (d *serialDriver) Ins() []string {
	names := d.Driver.Ins()
	devices, err := serial.GetPortsList()
	if err != nil {
		d.cfg.Logger.Warn("listing serial ports", "err", err)
		return names
	}
	for _, dev := range devices {
		names = append(names, serialPrefix+dev)
	}
	return names
}

func (d *serialDriver) OpenIn(name string, handler func(midi.Message)) (In, error) {
	dev, ok := strings.CutPrefix(name, serialPrefix)
	if !ok {
		return d.Driver.OpenIn(name, handler)
	}
	port, err := serial.Open(dev, serial.WithBaudrate(d.cfg.Baud))
	if err != nil {
		return nil, fmt.Errorf("open serial %q: %w", dev, err)
	}
	if err := port.ResetInputBuffer(); err != nil {
		d.cfg.Logger.Warn("reset input buffer", "port", dev, "err", err)
	}
	in := &serialIn{
		name:   name,
		port:   port,
		kbd:    newKeyboard(d.cfg.Keymap),
		logger: d.cfg.Logger.WithPrefix("serial"),
	}
	in.open.Store(true)
	go in.read(handler)
	return in, nil
}

type serialIn struct {
	name   string
	port   *serial.Port
	kbd    *keyboard
	logger *log.Logger
	open   atomic.Bool
	once   sync.Once
}

func (s *serialIn) read(handler func(midi.Message)) {
	buf := make([]byte, 2)
	for {
		_, err := io.ReadFull(s.port, buf)
		if !s.open.Load() {
			return
		}
		if err != nil {
			s.logger.Error("read", "port", s.name, "err", err)
			s.open.Store(false)
			return
		}
		if msg, ok := s.kbd.decode(buf[0], buf[1]); ok {
			handler(msg)
		} else {
			s.logger.Debug("unassigned", "code", buf[1])
		}
	}
}

func (s *serialIn) Close() (err error) {
	s.once.Do(func() {
		s.open.Store(false)
		err = s.port.Close()
	})
	return err
}

func (s *serialIn) IsOpen() bool {
	return s.open.Load()
}

func (s *serialIn) String() string {
	return s.name
}

// keyboard turns the 2-byte frames of the serial piano (status, scan code)
// into MIDI messages. The high bit of status set means key release.
type keyboard struct {
	keymap  Keymap
	down    [256]bool
	toggled [256]bool
}

func newKeyboard(keymap Keymap) *keyboard {
	return &keyboard{keymap: keymap}
}

func (k *keyboard) decode(status, code byte) (midi.Message, bool) {
	pressed := status>>7 == 0
	if k.down[code] && pressed {
		return nil, false // auto-repeat
	}
	k.down[code] = pressed

	note, ok := k.keymap[int(code)]
	switch {
	case !ok:
		return nil, false
	case note < 0:
		if !pressed || -note > 127 {
			return nil, false
		}
		k.toggled[code] = !k.toggled[code]
		if k.toggled[code] {
			return midi.ControlChange(0, uint8(-note), 64), true
		}
		return midi.ControlChange(0, uint8(-note), 0), true
	case note <= 127:
		if pressed {
			return midi.NoteOn(0, uint8(note), 64), true
		}
		return midi.NoteOff(0, uint8(note)), true
	}
	return nil, false
}
