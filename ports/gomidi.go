package ports

import (
	"fmt"
	"sync"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

type gomidiDriver struct{}

// GoMIDI returns a Driver backed by the registered gomidi driver. The binary
// has to import a driver package (rtmididrv) for ports to show up.
func GoMIDI() Driver {
	return gomidiDriver{}
}

func (gomidiDriver) Ins() []string {
	var names []string
	for _, in := range midi.GetInPorts() {
		names = append(names, in.String())
	}
	return names
}

func (gomidiDriver) Outs() []string {
	var names []string
	for _, out := range midi.GetOutPorts() {
		names = append(names, out.String())
	}
	return names
}

func (gomidiDriver) OpenOut(name string) (Out, error) {
	var port drivers.Out
	for _, out := range midi.GetOutPorts() {
		if out.String() == name {
			port = out
			break
		}
	}
	if port == nil {
		return nil, fmt.Errorf("%w: output %q", ErrNotFound, name)
	}
	return Sender(port)
}

// Sender wraps an already found gomidi output, such as a virtual port.
func Sender(port drivers.Out) (Out, error) {
	send, err := midi.SendTo(port)
	if err != nil {
		return nil, err
	}
	return &gomidiOut{port: port, send: send}, nil
}

func (gomidiDriver) OpenIn(name string, handler func(midi.Message)) (In, error) {
	var port drivers.In
	for _, in := range midi.GetInPorts() {
		if in.String() == name {
			port = in
			break
		}
	}
	if port == nil {
		return nil, fmt.Errorf("%w: input %q", ErrNotFound, name)
	}
	return Listen(port, handler)
}

// Listen starts delivering the messages of an already found gomidi input to
// handler, system exclusive messages included.
func Listen(port drivers.In, handler func(midi.Message)) (In, error) {
	stop, err := midi.ListenTo(port, func(msg midi.Message, _ int32) {
		handler(msg)
	}, midi.UseSysEx())
	if err != nil {
		return nil, err
	}
	return &gomidiIn{port: port, stop: stop}, nil
}

type gomidiOut struct {
	mu     sync.Mutex
	port   drivers.Out
	send   func(midi.Message) error
	closed bool
}

func (o *gomidiOut) Send(msg midi.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return fmt.Errorf("send to closed port %q", o.port.String())
	}
	return o.send(msg)
}

func (o *gomidiOut) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil
	}
	o.closed = true
	return o.port.Close()
}

func (o *gomidiOut) IsOpen() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return !o.closed && o.port.IsOpen()
}

func (o *gomidiOut) String() string {
	return o.port.String()
}

type gomidiIn struct {
	once sync.Once
	port drivers.In
	stop func()
}

func (i *gomidiIn) Close() (err error) {
	i.once.Do(func() {
		i.stop()
		err = i.port.Close()
	})
	return err
}

func (i *gomidiIn) IsOpen() bool {
	return i.port.IsOpen()
}

func (i *gomidiIn) String() string {
	return i.port.String()
}
