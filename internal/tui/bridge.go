package tui

import (
	"github.com/olympiad/exam-portal/internal/attempt"
)

const bridgeBuffer = 64

// Bridge carries session events from the timer goroutine into the UI loop.
// Sends never block, so a session outliving the UI cannot get stuck.
type Bridge struct {
	events chan attempt.Event
}

// NewBridge creates a Bridge.
func NewBridge() *Bridge {
	return &Bridge{events: make(chan attempt.Event, bridgeBuffer)}
}

// Listener is passed to attempt.Deps. Ticks are shed once the buffer is half
// full so that submission events always find room.
func (b *Bridge) Listener() attempt.Listener {
	return func(ev attempt.Event) {
		if ev.Kind == attempt.EventTick && len(b.events) >= bridgeBuffer/2 {
			return
		}
		select {
		case b.events <- ev:
		default:
		}
	}
}

// Events is the receive side consumed by the model.
func (b *Bridge) Events() <-chan attempt.Event {
	return b.events
}
