// Package porttest provides an in-memory ports.Driver for tests.
package porttest

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/JeanRibes/midi-player/ports"
	"gitlab.com/gomidi/midi/v2"
)

var ErrSend = errors.New("porttest: send failure")

type Driver struct {
	mu      sync.Mutex
	outs    map[string]*Out
	ins     map[string]*In
	outList []string
	inList  []string
	broken  map[string]bool
}

// New creates a driver exposing the given endpoint names.
func New(outs, ins []string) *Driver {
	d := &Driver{
		outs:    map[string]*Out{},
		ins:     map[string]*In{},
		outList: outs,
		inList:  ins,
		broken:  map[string]bool{},
	}
	for _, name := range outs {
		d.outs[name] = &Out{name: name}
	}
	for _, name := range ins {
		d.ins[name] = &In{name: name}
	}
	return d
}

// Break makes opening the named endpoint fail.
func (d *Driver) Break(name string) {
	d.mu.Lock()
	d.broken[name] = true
	d.mu.Unlock()
}

func (d *Driver) Ins() []string  { return d.inList }
func (d *Driver) Outs() []string { return d.outList }

func (d *Driver) OpenOut(name string) (ports.Out, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out, ok := d.outs[name]
	if !ok || d.broken[name] {
		return nil, fmt.Errorf("%w: %s", ports.ErrNotFound, name)
	}
	out.mu.Lock()
	out.open = true
	out.opened++
	out.mu.Unlock()
	return out, nil
}

func (d *Driver) OpenIn(name string, handler func(midi.Message)) (ports.In, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	in, ok := d.ins[name]
	if !ok || d.broken[name] {
		return nil, fmt.Errorf("%w: %s", ports.ErrNotFound, name)
	}
	in.mu.Lock()
	in.open = true
	in.handler = handler
	in.mu.Unlock()
	return in, nil
}

// Out returns the named output, opened or not.
func (d *Driver) Out(name string) *Out {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.outs[name]
}

// In returns the named input, opened or not.
func (d *Driver) In(name string) *In {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ins[name]
}

// Out records every message sent to it.
type Out struct {
	mu       sync.Mutex
	name     string
	open     bool
	opened   int
	failing  bool
	received []midi.Message
}

func (o *Out) Send(msg midi.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.open {
		return fmt.Errorf("porttest: %s is closed", o.name)
	}
	if o.failing {
		return ErrSend
	}
	o.received = append(o.received, append(midi.Message(nil), msg...))
	return nil
}

func (o *Out) Close() error {
	o.mu.Lock()
	o.open = false
	o.mu.Unlock()
	return nil
}

func (o *Out) IsOpen() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.open
}

func (o *Out) String() string { return o.name }

// Fail makes every following Send return ErrSend.
func (o *Out) Fail(fail bool) {
	o.mu.Lock()
	o.failing = fail
	o.mu.Unlock()
}

// Opened reports how many times the port was opened.
func (o *Out) Opened() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opened
}

// Messages returns a copy of what has been sent so far.
func (o *Out) Messages() []midi.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]midi.Message(nil), o.received...)
}

func (o *Out) Reset() {
	o.mu.Lock()
	o.received = nil
	o.mu.Unlock()
}

// WaitFor polls until at least n messages arrived or the timeout expires.
func (o *Out) WaitFor(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if len(o.Messages()) >= n {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return len(o.Messages()) >= n
}

// In delivers messages pushed with Emit to the handler it was opened with.
type In struct {
	mu      sync.Mutex
	name    string
	open    bool
	handler func(midi.Message)
}

// Emit simulates a message arriving on the port. It is a no-op while closed.
func (i *In) Emit(msg midi.Message) {
	i.mu.Lock()
	open, handler := i.open, i.handler
	i.mu.Unlock()
	if open && handler != nil {
		handler(msg)
	}
}

func (i *In) Close() error {
	i.mu.Lock()
	i.open = false
	i.mu.Unlock()
	return nil
}

func (i *In) IsOpen() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.open
}

func (i *In) String() string { return i.name }
