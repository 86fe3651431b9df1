package music

import (
	"context"
	"time"

	. "github.com/JeanRibes/midi-player/shared"
)

// Control applies the requests read from sink to p until Quit is received,
// sink is closed or ctx is done. Results and failures are reported on notify,
// which may be nil. Control does not stop the player.
func Control(ctx context.Context, p *Player, sink <-chan Message, notify chan<- Message) {
	logger := p.logger.WithPrefix("control")
	logger.Debug("start")
	defer logger.Debug("stop")

	reply := func(msg Message) {
		if notify == nil {
			return
		}
		select {
		case notify <- msg:
		case <-ctx.Done():
		}
	}
	status := func() {
		cursor := p.Cursor()
		state := p.State()
		reply(Message{
			Type:    Status,
			Number:  cursor.Index,
			Number2: int(cursor.Time.Milliseconds()),
			Boolean: state == Playing,
			String:  state.String(),
		})
	}
	fail := func(msg Message, err error) {
		logger.Warn("request failed", "type", msg.Type, "err", err)
		reply(Message{Type: Error, String: msg.Type.String() + ": " + err.Error()})
	}
	mark := func(msg Message, m Mark, err error) {
		if err != nil {
			fail(msg, err)
			return
		}
		reply(Message{Type: msg.Type, Number: m.Index, Number2: int(m.Time.Milliseconds())})
	}

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sink:
			if !ok {
				return
			}
			switch msg.Type {
			case Quit:
				return
			case PlayPause:
				if !p.IsActive() {
					if err := p.Start(); err != nil {
						fail(msg, err)
						continue
					}
				} else {
					p.Toggle()
				}
				status()
			case Seek:
				m, err := p.SeekToIndex(ctx, msg.Number)
				mark(msg, m, err)
			case SeekTime:
				m, err := p.SeekToTime(ctx, time.Duration(msg.Number)*time.Millisecond)
				mark(msg, m, err)
			case Rewind:
				m, err := p.Rewind(ctx)
				mark(msg, m, err)
			case SetBeginning:
				m, err := p.SetBeginning(ctx, msg.Number)
				mark(msg, m, err)
			case SetEnd:
				m, err := p.SetEnd(ctx, msg.Number)
				mark(msg, m, err)
			case Status:
				status()
			default:
				logger.Warn("unknown message type", "type", msg.Type)
			}
		}
	}
}
