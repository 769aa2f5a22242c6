package workflow

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/gobpm/pkg/monitor"
)

func newTestMachine() (*Machine, *[]Screen) {
	log, _ := test.NewNullLogger()
	m := NewMachine(log)
	var seen []Screen
	m.OnChange(func(s Screen, _ Effects) { seen = append(seen, s) })
	return m, &seen
}

func TestMachine_FullCycle(t *testing.T) {
	m, seen := newTestMachine()
	assert.Equal(t, Start, m.Current())

	before := testutil.ToFloat64(monitor.ScreenTransitions.WithLabelValues("start", "inflate"))

	for _, e := range []Event{EventStart, EventInflated, EventMeasured, EventCuffEmpty} {
		require.NoError(t, m.Handle(e))
	}
	assert.Equal(t, Result, m.Current())
	assert.Equal(t, []Screen{Inflate, Deflate, EmptyCuff, Result}, *seen)
	assert.Equal(t, before+1, testutil.ToFloat64(monitor.ScreenTransitions.WithLabelValues("start", "inflate")))
}

func TestMachine_CancelHidesCancel(t *testing.T) {
	log, _ := test.NewNullLogger()
	m := NewMachine(log)

	var last Effects
	m.OnChange(func(_ Screen, e Effects) { last = e })

	require.NoError(t, m.Handle(EventStart))
	assert.True(t, last.CancelVisible)

	require.NoError(t, m.Handle(EventCancel))
	assert.Equal(t, Start, m.Current())
	assert.False(t, last.CancelVisible)
}

func TestMachine_EveryEventIsOneTransition(t *testing.T) {
	m, seen := newTestMachine()

	// Revisiting screens is not coalesced.
	events := []Event{EventStart, EventCancel, EventStart, EventInflated, EventCancel, EventStart}
	for _, e := range events {
		require.NoError(t, m.Handle(e))
	}
	assert.Equal(t, []Screen{Inflate, Start, Inflate, Deflate, Start, Inflate}, *seen)
}

func TestMachine_InvalidEvent(t *testing.T) {
	m, seen := newTestMachine()

	err := m.Handle(EventCuffEmpty)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, Start, m.Current())
	assert.Empty(t, *seen)
}

func TestMachine_Apply(t *testing.T) {
	log, hook := test.NewNullLogger()
	m := NewMachine(log)

	m.Apply(EventStart)
	assert.Equal(t, Inflate, m.Current())

	m.Apply("not an event")
	assert.Equal(t, Inflate, m.Current())
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "Workflow update is not an event", hook.LastEntry().Message)
}
