package shared

import "fmt"

type Event int

const (
	Quit Event = iota
	PlayPause
	Seek
	SeekTime
	Rewind
	SetBeginning
	SetEnd
	Status
	Error
)

func (e Event) String() string {
	switch e {
	case Quit:
		return "quit"
	case PlayPause:
		return "play/pause"
	case Seek:
		return "seek"
	case SeekTime:
		return "seek-time"
	case Rewind:
		return "rewind"
	case SetBeginning:
		return "beginning"
	case SetEnd:
		return "end"
	case Status:
		return "status"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}

// Message travels on the control bus between a front end and the player loop.
// Number carries an event index, or milliseconds for SeekTime.
type Message struct {
	Type    Event
	Number  int
	Boolean bool
	String  string
	Number2 int
}
