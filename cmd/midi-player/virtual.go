package main

import (
	"fmt"
	"strings"

	"github.com/JeanRibes/midi-player/ports"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

const virtualPrefix = "virtual:"

// virtualDriver offers one extra input and output, created on demand as
// virtual rtmidi ports other applications can connect to.
type virtualDriver struct {
	ports.Driver
	name string
}

func withVirtual(base ports.Driver, name string) ports.Driver {
	return &virtualDriver{Driver: base, name: name}
}

func (d *virtualDriver) Ins() []string {
	return append(d.Driver.Ins(), virtualPrefix+d.name)
}

func (d *virtualDriver) Outs() []string {
	return append(d.Driver.Outs(), virtualPrefix+d.name)
}

func (d *virtualDriver) rtmidi() (*rtmididrv.Driver, error) {
	drv, ok := drivers.Get().(*rtmididrv.Driver)
	if !ok {
		return nil, fmt.Errorf("virtual ports need the rtmidi driver")
	}
	return drv, nil
}

func (d *virtualDriver) OpenIn(name string, handler func(midi.Message)) (ports.In, error) {
	if !strings.HasPrefix(name, virtualPrefix) {
		return d.Driver.OpenIn(name, handler)
	}
	drv, err := d.rtmidi()
	if err != nil {
		return nil, err
	}
	in, err := drv.OpenVirtualIn(strings.TrimPrefix(name, virtualPrefix))
	if err != nil {
		return nil, err
	}
	return ports.Listen(in, handler)
}

func (d *virtualDriver) OpenOut(name string) (ports.Out, error) {
	if !strings.HasPrefix(name, virtualPrefix) {
		return d.Driver.OpenOut(name)
	}
	drv, err := d.rtmidi()
	if err != nil {
		return nil, err
	}
	out, err := drv.OpenVirtualOut(strings.TrimPrefix(name, virtualPrefix))
	if err != nil {
		return nil, err
	}
	return ports.Sender(out)
}
