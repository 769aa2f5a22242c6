package workflow

import (
	"github.com/sirupsen/logrus"

	"github.com/itohio/gobpm/pkg/monitor"
)

// Machine holds the current screen on the display goroutine. It is not safe
// for concurrent use; producer events reach it through the bridge.
type Machine struct {
	current  Screen
	log      logrus.FieldLogger
	appliers []func(Screen, Effects)
}

// NewMachine creates a machine showing the Start screen.
func NewMachine(log logrus.FieldLogger) *Machine {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Machine{
		current: Start,
		log:     log.WithField("component", "workflow"),
	}
}

// OnChange registers fn to be called after every transition.
func (m *Machine) OnChange(fn func(Screen, Effects)) {
	m.appliers = append(m.appliers, fn)
}

// Current returns the current screen.
func (m *Machine) Current() Screen {
	return m.current
}

// Handle applies exactly one transition for e.
func (m *Machine) Handle(e Event) error {
	next, effects, err := Transition(m.current, e)
	if err != nil {
		m.log.WithError(err).Warn("Ignoring workflow event")
		return err
	}

	m.log.WithFields(logrus.Fields{
		"from":  m.current,
		"to":    next,
		"event": e,
	}).Debug("Screen transition")
	monitor.ScreenTransitions.WithLabelValues(m.current.String(), next.String()).Inc()

	m.current = next
	for _, fn := range m.appliers {
		fn(next, effects)
	}
	return nil
}

// Apply is a bridge handler: value must be an Event.
func (m *Machine) Apply(value any) {
	e, ok := value.(Event)
	if !ok {
		m.log.WithField("value", value).Error("Workflow update is not an event")
		return
	}
	m.Handle(e)
}
