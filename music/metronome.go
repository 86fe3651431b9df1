package music

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/JeanRibes/midi-player/ports"
	"github.com/JeanRibes/midi-player/synth"
	"github.com/charmbracelet/log"
	"gitlab.com/gomidi/midi/v2"
)

const (
	MetronomeChannel  = 10
	MetronomeTempo    = 120
	MetronomeMeasure  = 4
	MetronomeVelocity = 90

	clickNote  = 45
	bellNote   = 46
	bellAccent = 20
	clickLen   = time.Millisecond
)

// MetronomeProgram is the percussion kit the clicks are played with.
var MetronomeProgram = synth.Program{Bank: 128, Preset: 56, Volume: 127}

type MetronomeOption func(*Metronome)

func WithMetronomeLogger(logger *log.Logger) MetronomeOption {
	return func(m *Metronome) {
		m.logger = logger.WithPrefix("metronome")
	}
}

func WithMetronomeProgram(p synth.Program) MetronomeOption {
	return func(m *Metronome) {
		m.program = p
	}
}

// Metronome clicks on an output port, accenting the first beat of every
// measure with a bell.
type Metronome struct {
	drv     ports.Driver
	inst    synth.Instrument
	mask    string
	logger  *log.Logger
	program synth.Program

	lifecycle sync.Mutex

	mu       sync.Mutex
	state    State
	tempo    int
	measure  int
	velocity uint8
	bell     bool
	changed  chan struct{}
	out      ports.Out
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewMetronome(drv ports.Driver, inst synth.Instrument, mask string, opts ...MetronomeOption) *Metronome {
	m := &Metronome{
		drv:      drv,
		inst:     inst,
		mask:     mask,
		logger:   log.New(io.Discard),
		program:  MetronomeProgram,
		tempo:    MetronomeTempo,
		measure:  MetronomeMeasure,
		velocity: MetronomeVelocity,
		bell:     true,
		changed:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Metronome) setState(s State) {
	if m.state == s {
		return
	}
	m.state = s
	close(m.changed)
	m.changed = make(chan struct{})
}

// Start opens the first output matching the mask and starts clicking. A zero
// tempo or measure keeps the current value.
func (m *Metronome) Start(tempo, measure int) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	if m.IsActive() {
		return ErrActive
	}
	if tempo < 0 || measure < 0 {
		return fmt.Errorf("invalid tempo %d or measure %d", tempo, measure)
	}

	outs, err := ports.OpenOuts(m.drv, m.mask, 1)
	if len(outs) == 0 {
		return errors.Join(fmt.Errorf("%w: no output for %q", ErrNoPorts, m.mask), err)
	}
	out := outs[0]
	if err := synth.Setup(m.inst, out, MetronomeChannel, m.program); err != nil {
		if cerr := out.Close(); cerr != nil {
			m.logger.Warn("closing port", "err", cerr)
		}
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	m.mu.Lock()
	if tempo > 0 {
		m.tempo = tempo
	}
	if measure > 0 {
		m.measure = measure
	}
	m.out = out
	m.cancel, m.done = cancel, done
	m.setState(Playing)
	m.logger.Info("start", "port", out.String(), "tempo", m.tempo, "measure", m.measure)
	m.mu.Unlock()

	go m.run(ctx, out, done)
	return nil
}

func (m *Metronome) run(ctx context.Context, out ports.Out, done chan struct{}) {
	defer close(done)
	beat := 0
	for {
		m.mu.Lock()
		state, wake := m.state, m.changed
		tempo, measure, velocity, bell := m.tempo, m.measure, m.velocity, m.bell
		m.mu.Unlock()

		if state == Paused {
			beat = 0
			select {
			case <-ctx.Done():
				return
			case <-wake:
			}
			continue
		}

		note, vel := uint8(clickNote), velocity
		if bell && beat == 0 {
			note, vel = bellNote, uint8(min(127, int(velocity)+bellAccent))
		}
		m.send(out, midi.NoteOn(MetronomeChannel, note, vel))
		ok := m.wait(ctx, clickLen)
		m.send(out, midi.NoteOff(MetronomeChannel, note))
		if !ok || !m.wait(ctx, time.Minute/time.Duration(tempo)-clickLen) {
			return
		}

		beat++
		if beat >= measure {
			beat = 0
		}
	}
}

// wait sleeps for d. It returns early when paused, and false once stopped.
func (m *Metronome) wait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	for {
		m.mu.Lock()
		paused, wake := m.state == Paused, m.changed
		m.mu.Unlock()
		if paused {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
			return true
		case <-wake:
		}
	}
}

func (m *Metronome) send(out ports.Out, msg midi.Message) {
	if err := out.Send(msg); err != nil {
		m.logger.Warn("click", "port", out.String(), "err", err)
	}
}

// Pause suspends the clicks. Once resumed, the metronome starts a new measure.
func (m *Metronome) Pause(pause bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case pause && m.state == Playing:
		m.setState(Paused)
	case !pause && m.state == Paused:
		m.setState(Playing)
	}
}

func (m *Metronome) Stop() {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.mu.Lock()
	if m.state == Stopped {
		m.mu.Unlock()
		return
	}
	cancel, done := m.cancel, m.done
	m.mu.Unlock()

	cancel()
	<-done

	m.mu.Lock()
	out := m.out
	m.out, m.cancel, m.done = nil, nil, nil
	m.setState(Stopped)
	m.mu.Unlock()

	if err := out.Close(); err != nil {
		m.logger.Warn("closing port", "err", err)
	}
	m.logger.Info("stop")
}

func (m *Metronome) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Metronome) IsActive() bool  { return m.State() != Stopped }
func (m *Metronome) IsPlaying() bool { return m.State() == Playing }

func (m *Metronome) Tempo() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tempo
}

// SetTempo takes effect from the next beat. Non-positive values are ignored.
func (m *Metronome) SetTempo(bpm int) {
	if bpm <= 0 {
		return
	}
	m.mu.Lock()
	m.tempo = bpm
	m.mu.Unlock()
}

func (m *Metronome) Measure() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.measure
}

func (m *Metronome) SetMeasure(beats int) {
	if beats <= 0 {
		return
	}
	m.mu.Lock()
	m.measure = beats
	m.mu.Unlock()
}

func (m *Metronome) Velocity() uint8 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.velocity
}

func (m *Metronome) SetVelocity(v uint8) {
	m.mu.Lock()
	m.velocity = min(v, 127)
	m.mu.Unlock()
}

// SetBell toggles the accent on the first beat of each measure.
func (m *Metronome) SetBell(on bool) {
	m.mu.Lock()
	m.bell = on
	m.mu.Unlock()
}
