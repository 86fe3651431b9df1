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

// maxChannels is the number of MIDI channels, hence of output ports a single
// playback can spread over.
const maxChannels = 16

var (
	ErrNoFile  = errors.New("no file opened")
	ErrEmpty   = errors.New("file has no events to play")
	ErrNoPorts = errors.New("not enough output ports")
	ErrActive  = errors.New("player already started")
	ErrStopped = errors.New("player is stopped")
)

type Option func(*Player)

func WithLogger(logger *log.Logger) Option {
	return func(p *Player) {
		p.logger = logger.WithPrefix("player")
	}
}

// WithPrograms sets the sound of each output channel, in port order. Ports
// beyond the list reuse the last program.
func WithPrograms(programs ...synth.Program) Option {
	return func(p *Player) {
		p.programs = programs
	}
}

// WithStrictPorts makes Start fail when fewer ports than required could be
// opened. When false the player falls back to the ports it got. Default true.
func WithStrictPorts(strict bool) Option {
	return func(p *Player) {
		p.strict = strict
	}
}

type StartOption func(*startConfig)

type startConfig struct {
	from, until         *int
	fromTime, untilTime *time.Duration
	channels            int
}

func FromIndex(index int) StartOption {
	return func(c *startConfig) { c.from = &index }
}

// FromTime starts with the first event at or after t.
func FromTime(t time.Duration) StartOption {
	return func(c *startConfig) { c.fromTime = &t }
}

// UntilIndex pauses playback before the event at index.
func UntilIndex(index int) StartOption {
	return func(c *startConfig) { c.until = &index }
}

// UntilTime pauses playback after the events at t.
func UntilTime(t time.Duration) StartOption {
	return func(c *startConfig) { c.untilTime = &t }
}

// WithMaxChannels spreads the tracks over up to n output ports. Default 1.
func WithMaxChannels(n int) StartOption {
	return func(c *startConfig) { c.channels = n }
}

type dispatch struct {
	out ports.Out
	msg midi.Message
}

// Player plays a TimedFile to one or more output ports from a background
// goroutine.
//
// The goroutine owns the cursor and the held notes while Playing or Pausing;
// control calls that move them first wait for the player to reach Paused, so
// playback never jumps while notes are sounding.
type Player struct {
	drv      ports.Driver
	inst     synth.Instrument
	mask     string
	logger   *log.Logger
	programs []synth.Program
	strict   bool

	lifecycle sync.Mutex // Open, Start, Stop
	control   sync.Mutex // one pause-mutate-resume at a time

	mu       sync.Mutex
	file     *TimedFile
	state    State
	cursor   Mark
	begin    Mark
	end      Mark
	held     heldNotes
	deferred int // first note-on held back while draining, -1 if none
	drained  map[int]struct{} // note-offs sent ahead of the deferred note-on
	changed  chan struct{}
	outs     []ports.Out
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewPlayer returns a stopped player sending to the outputs of drv whose name
// contains mask, configured through inst.
func NewPlayer(drv ports.Driver, inst synth.Instrument, mask string, opts ...Option) *Player {
	p := &Player{
		drv:      drv,
		inst:     inst,
		mask:     mask,
		logger:   log.New(io.Discard),
		strict:   true,
		held:     heldNotes{},
		deferred: -1,
		drained:  map[int]struct{}{},
		changed:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// setState must be called with mu held. Waiters on the previous changed
// channel are woken up.
func (p *Player) setState(s State) {
	if p.state == s {
		return
	}
	p.logger.Debug("state", "from", p.state, "to", s, "cursor", p.cursor.Index)
	p.state = s
	close(p.changed)
	p.changed = make(chan struct{})
}

// Open attaches tf, stopping any playback in progress.
func (p *Player) Open(tf *TimedFile) {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()
	p.stop()

	p.mu.Lock()
	p.file = tf
	p.cursor, p.begin, p.end = Mark{}, Mark{}, Mark{}
	p.mu.Unlock()
}

func (p *Player) Load(path string) error {
	tf, err := Load(path)
	if err != nil {
		return err
	}
	p.Open(tf)
	return nil
}

func (p *Player) program(port int) synth.Program {
	switch {
	case len(p.programs) == 0:
		return synth.DefaultProgram
	case port < len(p.programs):
		return p.programs[port]
	}
	return p.programs[len(p.programs)-1]
}

// Start opens the output ports and starts playing. It needs one port per
// playable track up to the WithMaxChannels limit.
func (p *Player) Start(opts ...StartOption) error {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()

	p.mu.Lock()
	tf, state := p.file, p.state
	p.mu.Unlock()
	switch {
	case state != Stopped:
		return ErrActive
	case tf == nil:
		return ErrNoFile
	case tf.Len() == 0:
		return ErrEmpty
	}

	cfg := startConfig{channels: 1}
	for _, opt := range opts {
		opt(&cfg)
	}
	count := max(min(tf.TrackCount(true), cfg.channels, maxChannels), 1)

	outs, err := ports.OpenOuts(p.drv, p.mask, count)
	if len(outs) == 0 || (p.strict && len(outs) < count) {
		if cerr := ports.CloseAll(outs); cerr != nil {
			p.logger.Warn("closing ports", "err", cerr)
		}
		return errors.Join(fmt.Errorf("%w: %d of %d opened for %q", ErrNoPorts, len(outs), count, p.mask), err)
	}
	if err != nil {
		p.logger.Warn("falling back to fewer ports", "want", count, "got", len(outs), "err", err)
	}
	for i, out := range outs {
		if err := synth.Setup(p.inst, out, uint8(i), p.program(i)); err != nil {
			if cerr := ports.CloseAll(outs); cerr != nil {
				p.logger.Warn("closing ports", "err", cerr)
			}
			return err
		}
	}

	begin, end := tf.MarkAt(0), tf.MarkAt(tf.Len())
	switch {
	case cfg.from != nil:
		begin = tf.MarkAt(*cfg.from)
	case cfg.fromTime != nil:
		begin = tf.MarkAt(tf.firstAt(*cfg.fromTime))
	}
	switch {
	case cfg.until != nil:
		end = tf.MarkAt(*cfg.until)
	case cfg.untilTime != nil:
		end = tf.MarkAt(tf.IndexAt(*cfg.untilTime))
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	p.mu.Lock()
	p.outs = outs
	p.held = heldNotes{}
	p.deferred = -1
	clear(p.drained)
	p.cursor, p.begin, p.end = begin, begin, end
	p.cancel, p.done = cancel, done
	p.setState(Playing)
	p.mu.Unlock()

	p.logger.Info("start", "ports", len(outs), "from", begin.Index, "until", end.Index, "length", tf.Length())
	go p.run(ctx, done)
	return nil
}

func (p *Player) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		p.mu.Lock()
		if p.state == Paused {
			wake := p.changed
			p.mu.Unlock()
			select {
			case <-ctx.Done():
				return
			case <-wake:
			}
			continue
		}

		n := p.file.Len()
		if p.state == Playing && (p.cursor.Index >= n || p.cursor.Index >= p.end.Index) {
			p.setState(Pausing)
		}
		if p.state == Pausing {
			if len(p.held) == 0 {
				p.settle()
				p.mu.Unlock()
				continue
			}
			if p.cursor.Index >= n {
				// nothing left to end the held notes
				offs := p.releaseAll()
				p.mu.Unlock()
				p.send(offs)
				continue
			}
		}

		ev := p.file.Event(p.cursor.Index)
		wait := ev.Absolute - p.cursor.Time
		wake := p.changed
		p.mu.Unlock()

		if wait > 0 {
			started := time.Now()
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-wake:
				timer.Stop()
				p.mu.Lock()
				if p.cursor.Index == ev.Index {
					p.cursor.Time = min(p.cursor.Time+time.Since(started), ev.Absolute)
				}
				p.mu.Unlock()
				continue
			case <-timer.C:
			}
		}
		if ctx.Err() != nil {
			return
		}

		p.mu.Lock()
		if p.cursor.Index != ev.Index {
			// rewound by a resume while we were waiting
			p.mu.Unlock()
			continue
		}
		d, ok := p.advance(ev)
		p.mu.Unlock()
		if ok {
			p.send([]dispatch{d})
		}
	}
}

// advance moves the cursor past ev and returns what to send for it, if
// anything. Must be called with mu held.
func (p *Player) advance(ev TimedEvent) (dispatch, bool) {
	p.cursor = Mark{Index: ev.Index + 1, Time: ev.Absolute}
	if ev.Message.IsMeta() {
		return dispatch{}, false
	}

	msg := midi.Message(ev.Message)
	var ch, key, vel uint8
	if !msg.GetChannel(&ch) {
		if p.state == Pausing && p.deferred >= 0 {
			return dispatch{}, false
		}
		return dispatch{out: p.outs[0], msg: msg}, true
	}
	port := min(int(ch), len(p.outs)-1)
	if port != int(ch) {
		msg = rechannel(msg, uint8(port))
	}

	start := msg.GetNoteStart(&ch, &key, &vel)
	end := !start && msg.GetNoteEnd(&ch, &key)

	if p.state == Pausing && (start || p.deferred >= 0) {
		// Past a held back note-on only the note-offs of sounding notes
		// go out; the rest is replayed in order from the deferred index.
		if p.deferred < 0 {
			p.deferred = ev.Index
		}
		if !end || !p.held.has(ch, key) {
			return dispatch{}, false
		}
		p.drained[ev.Index] = struct{}{}
	} else if end {
		if _, sent := p.drained[ev.Index]; sent {
			delete(p.drained, ev.Index)
			return dispatch{}, false
		}
	}

	switch {
	case start:
		p.held.press(ch, key)
	case end:
		p.held.release(ch, key)
	}
	return dispatch{out: p.outs[port], msg: msg}, true
}

// moveTo places the cursor at m, forgetting what the last drain sent ahead.
// Must be called with mu held.
func (p *Player) moveTo(m Mark) {
	p.cursor = m
	clear(p.drained)
}

// settle completes a pause. Playback will resume with the first note-on that
// was held back while draining. Must be called with mu held.
func (p *Player) settle() {
	p.rewind()
	p.setState(Paused)
}

func (p *Player) rewind() {
	if p.deferred >= 0 {
		p.cursor = p.file.MarkAt(p.deferred)
		p.deferred = -1
	}
}

// releaseAll must be called with mu held.
func (p *Player) releaseAll() []dispatch {
	var offs []dispatch
	for _, msg := range p.held.releaseAll() {
		var ch uint8
		msg.GetChannel(&ch)
		if int(ch) < len(p.outs) {
			offs = append(offs, dispatch{out: p.outs[ch], msg: msg})
		}
	}
	return offs
}

// send swallows errors: a port hiccup must not stop the playback.
func (p *Player) send(ds []dispatch) {
	for _, d := range ds {
		if err := d.out.Send(d.msg); err != nil {
			p.logger.Warn("dispatch", "port", d.out.String(), "msg", d.msg.String(), "err", err)
		}
	}
}

func rechannel(msg midi.Message, ch uint8) midi.Message {
	out := append(midi.Message(nil), msg...)
	out[0] = out[0]&0xF0 | ch&0x0F
	return out
}

// Pause requests a pause and returns without waiting for held notes to end.
// Pause(false) resumes a paused or pausing player.
func (p *Player) Pause(pause bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case pause && p.state == Playing:
		p.setState(Pausing)
	case !pause && (p.state == Paused || p.state == Pausing):
		p.rewind()
		p.setState(Playing)
	}
}

// Toggle pauses a playing player and resumes a paused one. It reports
// whether the player is now playing.
func (p *Player) Toggle() bool {
	p.mu.Lock()
	playing := p.state == Playing
	p.mu.Unlock()
	p.Pause(playing)
	return !playing
}

// whilePaused pauses the player, waits for held notes to end, runs mutate and
// restores the previous state.
func (p *Player) whilePaused(ctx context.Context, mutate func(tf *TimedFile)) error {
	p.control.Lock()
	defer p.control.Unlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	prev := p.state
	for p.state != Paused {
		switch p.state {
		case Stopped:
			return ErrStopped
		case Playing:
			p.setState(Pausing)
		}
		wake := p.changed
		p.mu.Unlock()
		select {
		case <-ctx.Done():
			p.mu.Lock()
			if prev == Playing && p.state != Stopped {
				p.rewind()
				p.setState(Playing)
			}
			return ctx.Err()
		case <-wake:
		}
		p.mu.Lock()
	}

	mutate(p.file)
	p.deferred = -1
	if prev == Playing {
		p.setState(Playing)
	}
	return nil
}

// SeekToIndex moves the cursor to the event at index, clamped to the file.
func (p *Player) SeekToIndex(ctx context.Context, index int) (m Mark, err error) {
	err = p.whilePaused(ctx, func(tf *TimedFile) {
		p.moveTo(tf.MarkAt(index))
		m = p.cursor
	})
	return m, err
}

// SeekToTime moves the cursor to the first event at or after t, clamped to
// the file.
func (p *Player) SeekToTime(ctx context.Context, t time.Duration) (m Mark, err error) {
	err = p.whilePaused(ctx, func(tf *TimedFile) {
		t = min(max(t, 0), tf.Length())
		p.moveTo(tf.MarkAt(tf.firstAt(t)))
		m = p.cursor
	})
	return m, err
}

// Rewind moves the cursor back to the beginning bound.
func (p *Player) Rewind(ctx context.Context) (m Mark, err error) {
	err = p.whilePaused(ctx, func(*TimedFile) {
		p.moveTo(p.begin)
		m = p.cursor
	})
	return m, err
}

func (p *Player) SetBeginning(ctx context.Context, index int) (m Mark, err error) {
	err = p.whilePaused(ctx, func(tf *TimedFile) {
		p.begin = tf.MarkAt(index)
		m = p.begin
	})
	return m, err
}

func (p *Player) SetEnd(ctx context.Context, index int) (m Mark, err error) {
	err = p.whilePaused(ctx, func(tf *TimedFile) {
		p.end = tf.MarkAt(index)
		m = p.end
	})
	return m, err
}

// SetEndTime places the end bound after the events at t.
func (p *Player) SetEndTime(ctx context.Context, t time.Duration) (m Mark, err error) {
	err = p.whilePaused(ctx, func(tf *TimedFile) {
		p.end = tf.MarkAt(tf.IndexAt(max(t, 0)))
		m = p.end
	})
	return m, err
}

// Wait blocks until the player is paused or stopped, e.g. at the end bound.
func (p *Player) Wait(ctx context.Context) error {
	p.mu.Lock()
	for p.state == Playing || p.state == Pausing {
		wake := p.changed
		p.mu.Unlock()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wake:
		}
		p.mu.Lock()
	}
	p.mu.Unlock()
	return nil
}

// Stop ends playback, silences held notes and closes the ports. The cursor
// and bounds are reset.
func (p *Player) Stop() {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()
	p.stop()
}

func (p *Player) stop() {
	p.mu.Lock()
	if p.state == Stopped {
		p.mu.Unlock()
		return
	}
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	cancel()
	<-done

	p.mu.Lock()
	offs := p.releaseAll()
	outs := p.outs
	p.outs = nil
	p.cursor, p.begin, p.end = Mark{}, Mark{}, Mark{}
	p.deferred = -1
	clear(p.drained)
	p.cancel, p.done = nil, nil
	p.setState(Stopped)
	p.mu.Unlock()

	p.send(offs)
	if err := ports.CloseAll(outs); err != nil {
		p.logger.Warn("closing ports", "err", err)
	}
	p.logger.Info("stop")
}

func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Player) IsActive() bool {
	return p.State() != Stopped
}

func (p *Player) IsPaused() bool {
	return p.State() == Paused
}

func (p *Player) File() *TimedFile {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.file
}

// Len is the number of events of the opened file.
func (p *Player) Len() int {
	if tf := p.File(); tf != nil {
		return tf.Len()
	}
	return 0
}

func (p *Player) Length() time.Duration {
	if tf := p.File(); tf != nil {
		return tf.Length()
	}
	return 0
}

func (p *Player) Cursor() Mark {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursor
}

func (p *Player) Beginning() Mark {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.begin
}

func (p *Player) End() Mark {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.end
}

// HeldNotes is the number of notes currently sounding.
func (p *Player) HeldNotes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.held)
}

// Channels is the number of open output ports.
func (p *Player) Channels() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.outs)
}
