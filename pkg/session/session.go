package session

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/itohio/gobpm/pkg/bridge"
	"github.com/itohio/gobpm/pkg/config"
	"github.com/itohio/gobpm/pkg/measurement"
	"github.com/itohio/gobpm/pkg/monitor"
	"github.com/itohio/gobpm/pkg/sample"
	"github.com/itohio/gobpm/pkg/workflow"
)

var _ measurement.Observer = (*Session)(nil)

// Source delivers calibrated cuff voltages. *acquisition.Driver implements it.
type Source interface {
	VoltageSample() (float64, error)
	BufferContents() (int, error)
	SamplingRate() float64
}

// Ready is posted to bridge.TargetReady once the processor has settled.
type Ready struct{}

// Session is the producer side of a running measurement. Run reads samples,
// feeds the processor and forwards its notifications to the sample buffer and
// the bridge. Everything except Processor().Start/Stop runs on the goroutine
// calling Run.
type Session struct {
	src       Source
	buffer    *sample.Buffer
	bridge    *bridge.Bridge
	processor *measurement.Oscillometric
	log       logrus.FieldLogger

	needleEvery    uint64
	backlogEvery   uint64
	backlogWarning int

	n       uint64
	postErr error
}

// New creates a session reading from src. Pressure and oscillation history
// goes into buffer, scalar updates into br.
func New(cfg *config.Config, src Source, buffer *sample.Buffer, br *bridge.Bridge, log logrus.FieldLogger) (*Session, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	rate := src.SamplingRate()

	s := &Session{
		src:            src,
		buffer:         buffer,
		bridge:         br,
		log:            log.WithField("component", "session"),
		needleEvery:    everyN(rate, cfg.Display.UpdateInterval),
		backlogEvery:   everyN(rate, backlogInterval),
		backlogWarning: cfg.Device.BacklogWarning,
	}

	sensor := sample.PressureSensor{Offset: cfg.Sensor.Offset, MMHgPerV: cfg.Sensor.MMHgPerV}
	p, err := measurement.NewOscillometric(cfg.Measurement, sensor, rate, s, log)
	if err != nil {
		return nil, err
	}
	s.processor = p
	return s, nil
}

// backlogInterval is how often the device backlog is checked.
const backlogInterval = 100 * time.Millisecond

// everyN converts an interval into a sample count at rate, at least 1.
func everyN(rate float64, interval time.Duration) uint64 {
	n := uint64(rate * interval.Seconds())
	if n < 1 {
		return 1
	}
	return n
}

// Processor returns the measurement processor. Its Start and Stop are safe
// to call from the display goroutine.
func (s *Session) Processor() measurement.Processor {
	return s.processor
}

// Configure hands new measurement settings to the processor. They apply from
// the next measurement on.
func (s *Session) Configure(cfg config.MeasurementConfig) {
	s.processor.Configure(cfg)
}

// Run processes samples until ctx is cancelled or an error occurs. A read
// failure after cancellation is a clean stop and returns nil. Any other read
// failure, and the first failed bridge post, is returned.
func (s *Session) Run(ctx context.Context) error {
	s.log.WithField("rate", s.src.SamplingRate()).Info("Acquisition started")

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		v, err := s.src.VoltageSample()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("session: read sample %d: %w", s.n, err)
		}
		monitor.SamplesRead.Inc()

		s.processor.Process(v)
		if s.postErr != nil {
			return s.postErr
		}

		s.n++
		if s.n%s.backlogEvery == 0 {
			s.checkBacklog()
		}
	}
}

// RunOrExit runs s and terminates the program through log.Fatal when Run
// fails.
func RunOrExit(ctx context.Context, s *Session, log logrus.FieldLogger) {
	if err := s.Run(ctx); err != nil {
		log.WithError(err).Fatal("Acquisition failed")
	}
}

func (s *Session) checkBacklog() {
	n, err := s.src.BufferContents()
	if err != nil {
		s.log.WithError(err).Debug("Backlog unavailable")
		return
	}
	monitor.BacklogBytes.Set(float64(n))
	if s.backlogWarning > 0 && n > s.backlogWarning {
		s.log.WithFields(logrus.Fields{
			"backlog": n,
			"limit":   s.backlogWarning,
		}).Warn("Acquisition falling behind")
	}
}

// post forwards one update and keeps the first failure for Run.
func (s *Session) post(target bridge.Target, value any) {
	if s.postErr != nil {
		return
	}
	if err := s.bridge.Post(target, value); err != nil {
		s.postErr = fmt.Errorf("session: %w", err)
	}
}

// NewData records the sample history and moves the needle at the display rate.
func (s *Session) NewData(pressure, oscillation float64) {
	s.buffer.Push(sample.SignalPressure, pressure)
	s.buffer.Push(sample.SignalOscillation, oscillation)
	if s.n%s.needleEvery == 0 {
		s.post(bridge.TargetNeedle, pressure)
	}
}

// HeartRate forwards the current heart rate.
func (s *Session) HeartRate(bpm float64) {
	s.post(bridge.TargetHeartRate, bpm)
}

// Results forwards the estimate and its averaged heart rate.
func (s *Session) Results(r measurement.Result) {
	s.post(bridge.TargetResult, r)
	s.post(bridge.TargetHeartRateAverage, r.HeartRate)
}

// SwitchScreen forwards a workflow event.
func (s *Session) SwitchScreen(e workflow.Event) {
	s.post(bridge.TargetScreen, e)
}

// Ready signals that a measurement may be started.
func (s *Session) Ready() {
	s.post(bridge.TargetReady, Ready{})
}
