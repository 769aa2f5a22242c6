package workflow

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is returned for an event the current screen does not accept.
var ErrInvalidTransition = errors.New("workflow: invalid transition")

// Screen is a phase of a measurement session.
type Screen int

const (
	Start Screen = iota
	Inflate
	Deflate
	EmptyCuff
	Result
)

func (s Screen) String() string {
	switch s {
	case Start:
		return "start"
	case Inflate:
		return "inflate"
	case Deflate:
		return "deflate"
	case EmptyCuff:
		return "empty_cuff"
	case Result:
		return "result"
	}
	return fmt.Sprintf("screen(%d)", int(s))
}

// Event drives the workflow. Events come from the user (start, cancel) or
// from the measurement processor.
type Event int

const (
	EventStart     Event = iota // User requested a measurement
	EventInflated               // Cuff reached the pump-up pressure, deflation begins
	EventMeasured               // Enough oscillations were recorded
	EventCuffEmpty              // Cuff pressure dropped to the empty threshold
	EventCancel                 // User cancelled or reset
)

func (e Event) String() string {
	switch e {
	case EventStart:
		return "start"
	case EventInflated:
		return "inflated"
	case EventMeasured:
		return "measured"
	case EventCuffEmpty:
		return "cuff_empty"
	case EventCancel:
		return "cancel"
	}
	return fmt.Sprintf("event(%d)", int(e))
}

// Effects are the display directives of a screen.
type Effects struct {
	Page          int  // Index of the page shown for the screen
	CancelVisible bool // Cancel is offered while the cuff is under pressure
}

// EffectsFor returns the directives for s.
func EffectsFor(s Screen) Effects {
	return Effects{
		Page:          int(s),
		CancelVisible: s == Inflate || s == Deflate || s == EmptyCuff,
	}
}

var transitions = map[Screen]map[Event]Screen{
	Start:     {EventStart: Inflate},
	Inflate:   {EventInflated: Deflate},
	Deflate:   {EventMeasured: EmptyCuff},
	EmptyCuff: {EventCuffEmpty: Result},
}

// Transition returns the screen that follows s on e. Cancel returns to Start
// from any screen. An unexpected event leaves s unchanged and returns
// ErrInvalidTransition.
func Transition(s Screen, e Event) (Screen, Effects, error) {
	if e == EventCancel {
		return Start, EffectsFor(Start), nil
	}
	next, ok := transitions[s][e]
	if !ok {
		return s, EffectsFor(s), fmt.Errorf("%w: %s on %s", ErrInvalidTransition, e, s)
	}
	return next, EffectsFor(next), nil
}
