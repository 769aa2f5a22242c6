package measurement

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/itohio/gobpm/pkg/config"
	"github.com/itohio/gobpm/pkg/monitor"
	"github.com/itohio/gobpm/pkg/sample"
	"github.com/itohio/gobpm/pkg/workflow"
)

// ErrInvalidRate is returned for a non-positive sampling rate.
var ErrInvalidRate = errors.New("measurement: sampling rate must be positive")

const (
	// deflationHysteresis is the drop below the highest cuff pressure, in
	// mmHg, that marks the start of deflation.
	deflationHysteresis = 3.0
	minHeartRate        = 30.0
	maxHeartRate        = 240.0
)

type phase int

const (
	phaseIdle phase = iota
	phaseInflating
	phaseDeflating
	phaseEmptying
)

const (
	cmdNone int32 = iota
	cmdStart
	cmdStop
)

// Oscillometric estimates blood pressure from the oscillations superimposed
// on a slowly deflating cuff.
type Oscillometric struct {
	cfg    config.MeasurementConfig
	sensor sample.PressureSensor
	rate   float64
	obs    Observer
	log    logrus.FieldLogger

	lowPass   *LowPass
	highPass  *HighPass
	detector  *peakDetector
	heartRate *sample.MovingAverage

	// Pending Start/Stop and settings, applied by the next Process call.
	command atomic.Int32
	pending atomic.Pointer[config.MeasurementConfig]

	// Owned by the goroutine calling Process.
	n           uint64
	ready       bool
	phase       phase
	deflating   bool
	maxPressure float64
	peaks       []Peak
	lastBeat    float64
	haveBeat    bool
}

// NewOscillometric creates a processor for samples taken at rate Hz.
func NewOscillometric(cfg config.MeasurementConfig, sensor sample.PressureSensor, rate float64, obs Observer, log logrus.FieldLogger) (*Oscillometric, error) {
	if rate <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRate, rate)
	}
	if obs == nil {
		return nil, errors.New("measurement: observer is required")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	return &Oscillometric{
		cfg:       cfg,
		sensor:    sensor,
		rate:      rate,
		obs:       obs,
		log:       log.WithField("component", "measurement"),
		lowPass:   NewLowPass(cfg.PressureCutoff, rate),
		highPass:  NewHighPass(cfg.OscillationCutoff, rate),
		detector:  newPeakDetector(cfg.PeakThreshold, cfg.RefractorySeconds),
		heartRate: sample.NewMovingAverage(cfg.HeartRateAverage),
	}, nil
}

// Start begins a measurement with the next sample, which also reports
// workflow.EventStart.
func (o *Oscillometric) Start() {
	o.command.Store(cmdStart)
}

// Stop abandons the current measurement with the next sample, which also
// reports workflow.EventCancel.
func (o *Oscillometric) Stop() {
	o.command.Store(cmdStop)
}

// Configure replaces the measurement settings from the next Start on.
func (o *Oscillometric) Configure(cfg config.MeasurementConfig) {
	o.pending.Store(&cfg)
}

// Process consumes one cuff sensor voltage.
func (o *Oscillometric) Process(volts float64) {
	o.applyCommand()

	t := float64(o.n) / o.rate
	o.n++

	pressure := o.lowPass.Filter(o.sensor.Pressure(volts))
	oscillation := o.highPass.Filter(pressure)
	o.obs.NewData(pressure, oscillation)

	if !o.ready && t >= o.cfg.SettleTime {
		o.ready = true
		o.log.WithField("t", t).Debug("Filters settled")
		o.obs.Ready()
	}

	switch o.phase {
	case phaseInflating:
		o.inflate(pressure)
	case phaseDeflating:
		o.deflate(pressure, oscillation, t)
	case phaseEmptying:
		if pressure <= o.cfg.EmptyCuff {
			o.phase = phaseIdle
			o.obs.SwitchScreen(workflow.EventCuffEmpty)
		}
	}
}

func (o *Oscillometric) applyCommand() {
	switch o.command.Swap(cmdNone) {
	case cmdStart:
		o.reconfigure()
		o.reset()
		o.phase = phaseInflating
		o.log.Info("Measurement started")
		o.obs.SwitchScreen(workflow.EventStart)
	case cmdStop:
		if o.phase != phaseIdle {
			o.log.WithField("peaks", len(o.peaks)).Info("Measurement stopped")
		}
		o.reset()
		o.obs.SwitchScreen(workflow.EventCancel)
	}
}

func (o *Oscillometric) reconfigure() {
	cfg := o.pending.Swap(nil)
	if cfg == nil {
		return
	}
	if cfg.PressureCutoff != o.cfg.PressureCutoff {
		o.lowPass = NewLowPass(cfg.PressureCutoff, o.rate)
	}
	if cfg.OscillationCutoff != o.cfg.OscillationCutoff {
		o.highPass = NewHighPass(cfg.OscillationCutoff, o.rate)
	}
	o.cfg = *cfg
	o.detector = newPeakDetector(cfg.PeakThreshold, cfg.RefractorySeconds)
	o.heartRate = sample.NewMovingAverage(cfg.HeartRateAverage)
	o.log.WithFields(logrus.Fields{
		"ratio_sbp": cfg.RatioSBP,
		"ratio_dbp": cfg.RatioDBP,
		"min_peaks": cfg.MinPeaks,
		"pump_up":   cfg.PumpUp,
	}).Info("Measurement settings applied")
}

func (o *Oscillometric) reset() {
	o.phase = phaseIdle
	o.deflating = false
	o.maxPressure = 0
	o.peaks = o.peaks[:0]
	o.haveBeat = false
	o.heartRate.Reset()
}

func (o *Oscillometric) inflate(pressure float64) {
	if pressure > o.maxPressure {
		o.maxPressure = pressure
	}
	if pressure >= o.cfg.PumpUp {
		o.phase = phaseDeflating
		o.log.WithField("pressure", pressure).Debug("Pump-up pressure reached")
		o.obs.SwitchScreen(workflow.EventInflated)
	}
}

func (o *Oscillometric) deflate(pressure, oscillation, t float64) {
	if !o.deflating {
		if pressure > o.maxPressure {
			o.maxPressure = pressure
		}
		if pressure < o.maxPressure-deflationHysteresis {
			o.deflating = true
			o.detector.reset(oscillation, t, pressure-oscillation)
		}
		return
	}

	if peak, ok := o.detector.add(oscillation, t, pressure-oscillation); ok {
		o.peaks = append(o.peaks, peak)
		o.beat(peak.Time)
	}

	if pressure < o.cfg.StopPressure {
		o.finish()
	}
}

// beat updates the heart rate from the interval to the previous peak.
func (o *Oscillometric) beat(t float64) {
	defer func() {
		o.lastBeat = t
		o.haveBeat = true
	}()
	if !o.haveBeat {
		return
	}
	interval := t - o.lastBeat
	if interval <= 0 {
		return
	}
	bpm := 60 / interval
	if bpm < minHeartRate || bpm > maxHeartRate {
		return
	}
	o.heartRate.Add(bpm)
	o.obs.HeartRate(bpm)
}

func (o *Oscillometric) finish() {
	result, err := Estimate(o.peaks, o.cfg.MinPeaks, o.cfg.RatioSBP, o.cfg.RatioDBP)
	if err != nil {
		o.log.WithError(err).Warn("Measurement failed")
		o.reset()
		o.obs.SwitchScreen(workflow.EventCancel)
		return
	}
	result.HeartRate = o.heartRate.Value()

	monitor.Measurements.Inc()
	o.log.WithFields(logrus.Fields{
		"map":   result.MAP,
		"sbp":   result.SBP,
		"dbp":   result.DBP,
		"hr":    result.HeartRate,
		"peaks": result.Peaks,
	}).Info("Measurement complete")

	o.phase = phaseEmptying
	o.obs.Results(result)
	o.obs.SwitchScreen(workflow.EventMeasured)
}
