// Package router bridges a live MIDI input to an output and buffers what it
// receives for a polling consumer.
package router

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/JeanRibes/midi-player/ports"
	"github.com/charmbracelet/log"
	"gitlab.com/gomidi/midi/v2"
)

type Option func(*Router)

// WithFilter keeps messages of the given types from being forwarded to the
// output. They are still queued.
func WithFilter(types ...midi.Type) Option {
	return func(r *Router) {
		r.filter = types
	}
}

func WithQueueSize(n int) Option {
	return func(r *Router) {
		r.queueSize = n
	}
}

// WithDropOldest makes a full queue evict its oldest message instead of
// rejecting the new one.
func WithDropOldest() Option {
	return func(r *Router) {
		r.dropOldest = true
	}
}

func WithLogger(logger *log.Logger) Option {
	return func(r *Router) {
		r.logger = logger.WithPrefix("router")
	}
}

type Router struct {
	drv        ports.Driver
	logger     *log.Logger
	filter     []midi.Type
	queueSize  int
	dropOldest bool
	queue      *Queue[midi.Message]
	enabled    atomic.Bool

	mu  sync.Mutex
	in  ports.In
	out ports.Out
}

func New(drv ports.Driver, opts ...Option) *Router {
	r := &Router{
		drv:       drv,
		logger:    log.New(io.Discard),
		queueSize: DefaultQueueSize,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.queue = NewQueue[midi.Message](r.queueSize, r.dropOldest)
	return r
}

// OpenInput opens the first input whose name contains mask, replacing the
// current one. The router must be started again afterwards. On failure the
// input is left closed.
func (r *Router) OpenInput(mask string) error {
	r.enabled.Store(false)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeIn()
	if mask == "" {
		return nil
	}
	name, err := ports.FindIn(r.drv, mask)
	if err != nil {
		return err
	}
	in, err := r.drv.OpenIn(name, r.receive)
	if err != nil {
		return fmt.Errorf("open input %q: %w", name, err)
	}
	r.in = in
	r.logger.Info("input", "port", name)
	return nil
}

// OpenOutput is OpenInput for the output side.
func (r *Router) OpenOutput(mask string) error {
	r.enabled.Store(false)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeOut()
	if mask == "" {
		return nil
	}
	name, err := ports.FindOut(r.drv, mask)
	if err != nil {
		return err
	}
	out, err := r.drv.OpenOut(name)
	if err != nil {
		return fmt.Errorf("open output %q: %w", name, err)
	}
	r.out = out
	r.logger.Info("output", "port", name)
	return nil
}

func (r *Router) closeIn() {
	if r.in == nil {
		return
	}
	if err := r.in.Close(); err != nil {
		r.logger.Warn("closing input", "port", r.in.String(), "err", err)
	}
	r.in = nil
}

func (r *Router) closeOut() {
	if r.out == nil {
		return
	}
	if err := r.out.Close(); err != nil {
		r.logger.Warn("closing output", "port", r.out.String(), "err", err)
	}
	r.out = nil
}

// Start enables routing if both endpoints are open and reports the result.
func (r *Router) Start() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	ok := r.in != nil && r.in.IsOpen() && r.out != nil && r.out.IsOpen()
	r.enabled.Store(ok)
	r.logger.Debug("start", "enabled", ok)
	return ok
}

// Stop disables routing, closes both endpoints and drops the queued messages.
func (r *Router) Stop() {
	r.enabled.Store(false)
	r.mu.Lock()
	r.closeIn()
	r.closeOut()
	r.mu.Unlock()
	r.queue.Clear()
	r.logger.Debug("stop", "dropped", r.queue.Dropped())
}

func (r *Router) Enabled() bool { return r.enabled.Load() }

func (r *Router) receive(msg midi.Message) {
	if !r.enabled.Load() {
		return
	}
	r.Put(msg)
}

// Put forwards msg to the output and queues it, as if it had been received.
func (r *Router) Put(msg midi.Message) {
	r.forward(msg)
	if !r.queue.Put(msg) {
		r.logger.Debug("queue full", "msg", msg.String())
	}
}

func (r *Router) forward(msg midi.Message) {
	if len(r.filter) > 0 && msg.IsOneOf(r.filter...) {
		return
	}
	r.mu.Lock()
	out := r.out
	r.mu.Unlock()
	if out == nil {
		return
	}
	if err := out.Send(msg); err != nil {
		r.logger.Warn("forward", "port", out.String(), "err", err)
	}
}

// Get returns the oldest queued message without blocking.
func (r *Router) Get() (midi.Message, bool) {
	return r.queue.Get()
}

func (r *Router) Clear() { r.queue.Clear() }

// Dropped counts the messages lost because the queue was full.
func (r *Router) Dropped() uint64 { return r.queue.Dropped() }

var typeNames = map[string]midi.Type{
	"noteon":         midi.NoteOnMsg,
	"noteoff":        midi.NoteOffMsg,
	"controlchange":  midi.ControlChangeMsg,
	"programchange":  midi.ProgramChangeMsg,
	"pitchbend":      midi.PitchBendMsg,
	"pitchwheel":     midi.PitchBendMsg,
	"aftertouch":     midi.AfterTouchMsg,
	"polyaftertouch": midi.PolyAfterTouchMsg,
	"polytouch":      midi.PolyAfterTouchMsg,
	"sysex":          midi.SysExMsg,
}

// ParseTypes maps message type names such as "aftertouch" or "note_on" to
// their MIDI type.
func ParseTypes(names []string) ([]midi.Type, error) {
	types := make([]midi.Type, 0, len(names))
	for _, name := range names {
		key := strings.ToLower(strings.NewReplacer("_", "", "-", "", " ", "").Replace(name))
		t, ok := typeNames[key]
		if !ok {
			return nil, fmt.Errorf("unknown message type %q", name)
		}
		types = append(types, t)
	}
	return types, nil
}
