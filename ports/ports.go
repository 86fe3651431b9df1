// Package ports abstracts the named MIDI endpoints the player, metronome and
// router talk to.
package ports

import (
	"errors"
	"fmt"
	"strings"

	"gitlab.com/gomidi/midi/v2"
)

var ErrNotFound = errors.New("no matching port")

// Out is an opened endpoint messages can be sent to.
type Out interface {
	Send(msg midi.Message) error
	Close() error
	IsOpen() bool
	String() string
}

// In is an opened endpoint delivering received messages to the handler it was
// opened with.
type In interface {
	Close() error
	IsOpen() bool
	String() string
}

// Driver enumerates and opens endpoints.
type Driver interface {
	Ins() []string
	Outs() []string
	OpenIn(name string, handler func(midi.Message)) (In, error)
	OpenOut(name string) (Out, error)
}

// Find returns every name containing mask, in enumeration order.
func Find(names []string, mask string) []string {
	var found []string
	for _, name := range names {
		if strings.Contains(name, mask) {
			found = append(found, name)
		}
	}
	return found
}

// FindIn resolves mask to the first matching input name.
func FindIn(drv Driver, mask string) (string, error) {
	if found := Find(drv.Ins(), mask); len(found) > 0 {
		return found[0], nil
	}
	return "", fmt.Errorf("%w: input %q", ErrNotFound, mask)
}

// FindOut resolves mask to the first matching output name.
func FindOut(drv Driver, mask string) (string, error) {
	if found := Find(drv.Outs(), mask); len(found) > 0 {
		return found[0], nil
	}
	return "", fmt.Errorf("%w: output %q", ErrNotFound, mask)
}

// OpenOuts opens up to max outputs whose name contains mask. max <= 0 opens
// every match. Ports that fail to open are skipped; the returned error joins
// those failures and is nil when at least one port is open and none failed.
func OpenOuts(drv Driver, mask string, max int) ([]Out, error) {
	var (
		outs []Out
		errs error
	)
	for _, name := range Find(drv.Outs(), mask) {
		if max > 0 && len(outs) >= max {
			break
		}
		out, err := drv.OpenOut(name)
		if err != nil {
			errs = errors.Join(errs, fmt.Errorf("open %q: %w", name, err))
			continue
		}
		outs = append(outs, out)
	}
	if len(outs) == 0 && errs == nil {
		errs = fmt.Errorf("%w: output %q", ErrNotFound, mask)
	}
	return outs, errs
}

// CloseAll closes every port and joins the errors.
func CloseAll(outs []Out) (errs error) {
	for _, out := range outs {
		if err := out.Close(); err != nil {
			errs = errors.Join(errs, err)
		}
	}
	return errs
}
