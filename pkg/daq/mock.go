package daq

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/itohio/gobpm/pkg/config"
)

// mockClockNs is the resolution of the simulated pacer clock.
const mockClockNs = 1000

// Mock simulates a timed analog input subdevice with a blood-pressure cuff on
// channel 0. The cuff timeline is derived from the sample index, so the
// waveform is the same regardless of how fast the consumer reads.
type Mock struct {
	cfg    *config.MockConfig
	sensor *config.SensorConfig
	model  timingModel
	ranges []Range
	flags  uint32
	cuff   *cuffSimulator

	mu      sync.Mutex
	stream  *streamBuffer
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
	closed  bool
}

// NewMock creates a new simulated device instance.
func NewMock(cfg *config.MockConfig, sensor *config.SensorConfig) *Mock {
	def := config.Default()
	if cfg == nil {
		cfg = &def.Mock
	}
	if sensor == nil {
		sensor = &def.Sensor
	}

	flags := SDFReadable | SDFCmd | SDFGround | SDFCommon
	if cfg.LongSamples {
		flags |= SDFLSampl
	}

	minPeriod := uint32(cfg.MinPeriod.Nanoseconds())
	if minPeriod == 0 {
		minPeriod = mockClockNs
	}

	return &Mock{
		cfg:    cfg,
		sensor: sensor,
		model: timingModel{
			nChan:        uint32(cfg.Channels),
			nRanges:      2,
			lenChanlist:  uint32(cfg.Channels),
			startSrc:     TrigNow | TrigInt,
			scanBeginSrc: TrigFollow | TrigTimer,
			convertSrc:   TrigTimer,
			scanEndSrc:   TrigCount,
			stopSrc:      TrigCount | TrigNone,
			minConvertNs: minPeriod,
			minScanNs:    minPeriod,
			clockNs:      mockClockNs,
		},
		ranges: []Range{
			{Min: sensor.VMin, Max: sensor.VMax, Unit: UnitVolt},
			{Min: -sensor.VMax, Max: sensor.VMax, Unit: UnitVolt},
		},
		flags: flags,
		cuff:  newCuffSimulator(cfg),
	}
}

// Info returns the simulated board identity.
func (m *Mock) Info() BoardInfo {
	return BoardInfo{Driver: "mock", Board: "simulated cuff"}
}

func (m *Mock) checkSubdevice(subdev uint) error {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return ErrNotConnected
	}
	if subdev != 0 {
		return fmt.Errorf("%w: %d", ErrNoSubdevice, subdev)
	}
	return nil
}

// NumChannels returns the number of simulated input channels.
func (m *Mock) NumChannels(subdev uint) (int, error) {
	if err := m.checkSubdevice(subdev); err != nil {
		return 0, err
	}
	return m.cfg.Channels, nil
}

// MaxData returns the maximum raw code.
func (m *Mock) MaxData(subdev, channel uint) (uint32, error) {
	if err := m.checkSubdevice(subdev); err != nil {
		return 0, err
	}
	if !m.cfg.LongSamples && m.cfg.MaxData > 0xffff {
		return 0xffff, nil
	}
	return m.cfg.MaxData, nil
}

// Range returns the physical span of rangeID.
func (m *Mock) Range(subdev, channel, rangeID uint) (Range, error) {
	if err := m.checkSubdevice(subdev); err != nil {
		return Range{}, err
	}
	if rangeID >= uint(len(m.ranges)) {
		return Range{}, fmt.Errorf("%w: %d", ErrNoRange, rangeID)
	}
	return m.ranges[rangeID], nil
}

// SubdeviceFlags returns the simulated subdevice flags.
func (m *Mock) SubdeviceFlags(subdev uint) (uint32, error) {
	if err := m.checkSubdevice(subdev); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return m.flags | SDFBusy, nil
	}
	return m.flags, nil
}

// CommandTest validates cmd against the simulated pacer.
func (m *Mock) CommandTest(cmd *Command) (int, error) {
	if err := m.checkSubdevice(uint(cmd.Subdevice)); err != nil {
		return 0, err
	}
	return m.model.test(cmd)
}

// Command starts streaming scans for cmd.
func (m *Mock) Command(cmd *Command) error {
	if err := m.checkSubdevice(uint(cmd.Subdevice)); err != nil {
		return err
	}

	checked := *cmd
	checked.ChanList = append([]uint32(nil), cmd.ChanList...)
	ret, err := m.model.test(&checked)
	if err != nil {
		return err
	}
	if ret != 0 {
		*cmd = checked
		return fmt.Errorf("%w: %s", ErrInvalidCommand, StageName(ret))
	}
	if len(checked.ChanList) == 0 {
		return fmt.Errorf("%w: empty channel list", ErrInvalidCommand)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return ErrBusy
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.stream = newStreamBuffer(DefaultStreamLimit)
	m.cancel = cancel
	m.done = make(chan struct{})
	m.running = true

	go m.generateScans(ctx, &checked, m.stream, m.done)

	return nil
}

// Read reads bytes from the running acquisition.
func (m *Mock) Read(p []byte) (int, error) {
	m.mu.Lock()
	sb := m.stream
	m.mu.Unlock()

	if sb == nil {
		return 0, io.EOF
	}
	return sb.Read(p)
}

// BufferContents returns the number of bytes waiting to be read.
func (m *Mock) BufferContents(subdev uint) (int, error) {
	if err := m.checkSubdevice(subdev); err != nil {
		return 0, err
	}
	m.mu.Lock()
	sb := m.stream
	m.mu.Unlock()
	if sb == nil {
		return 0, nil
	}
	return sb.Len(), nil
}

// Cancel stops the running acquisition. Buffered scans stay readable, after
// which Read reports io.EOF.
func (m *Mock) Cancel(subdev uint) error {
	if subdev != 0 {
		return fmt.Errorf("%w: %d", ErrNoSubdevice, subdev)
	}

	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	cancel, done, sb := m.cancel, m.done, m.stream
	m.running = false
	m.mu.Unlock()

	cancel()
	<-done
	sb.Close()

	return nil
}

// Close stops the simulated device.
func (m *Mock) Close() error {
	if err := m.Cancel(0); err != nil {
		return err
	}
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// generateScans produces scans at the command's pace until cancelled or the
// stop count is reached.
func (m *Mock) generateScans(ctx context.Context, cmd *Command, sb *streamBuffer, done chan struct{}) {
	defer close(done)

	period := scanPeriodNs(cmd)
	if period == 0 {
		sb.CloseWithError(ErrInvalidCommand)
		return
	}

	width := 2
	if m.flags&SDFLSampl != 0 {
		width = 4
	}
	maxData, _ := m.MaxData(0, 0)

	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	start := time.Now()
	var produced uint64
	batch := make([]byte, 0, 4096)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			due := uint64(time.Since(start).Nanoseconds()) / period
			batch = batch[:0]
			for produced < due {
				t := float64(produced*period) / 1e9
				for _, cr := range cmd.ChanList {
					code := FromPhysical(m.channelVolts(CRChan(cr), t), m.ranges[CRRange(cr)], maxData)
					if width == 4 {
						batch = binary.NativeEndian.AppendUint32(batch, code)
					} else {
						batch = binary.NativeEndian.AppendUint16(batch, uint16(code))
					}
				}
				produced++
				if cmd.StopSrc == TrigCount && produced >= uint64(cmd.StopArg) {
					if len(batch) > 0 {
						sb.Write(batch)
					}
					sb.Close()
					return
				}
			}
			if len(batch) > 0 {
				if _, err := sb.Write(batch); err != nil {
					return
				}
			}
		}
	}
}

// channelVolts returns the simulated input voltage of channel at time t.
func (m *Mock) channelVolts(channel uint32, t float64) float64 {
	if channel == 0 {
		return m.sensor.Offset + m.cuff.pressure(t)/m.sensor.MMHgPerV
	}
	return m.sensor.Offset + m.cfg.NoiseLevel*m.cuff.noise()/m.sensor.MMHgPerV
}

// cuffSimulator models one measurement cycle per period: rest, inflate,
// linear deflation with oscillations, then a fast release.
type cuffSimulator struct {
	cfg *config.MockConfig

	mu  sync.Mutex
	rnd *rand.Rand
}

// deflateEnd is the pressure where the simulated user opens the valve fully.
const deflateEnd = 30.0

func newCuffSimulator(cfg *config.MockConfig) *cuffSimulator {
	return &cuffSimulator{
		cfg: cfg,
		rnd: rand.New(rand.NewPCG(0x6f73, 0x63)),
	}
}

func (c *cuffSimulator) noise() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rnd.NormFloat64()
}

func (c *cuffSimulator) phases() (rest, inflate, deflate, release float64) {
	rest = c.cfg.RestDuration.Seconds()
	inflate = c.cfg.InflateTime.Seconds()
	deflate = (c.cfg.PeakPressure - deflateEnd) / c.cfg.DeflateRate
	release = deflateEnd / c.cfg.EmptyCuffRate
	return
}

// pressure returns the cuff pressure in mmHg at time t seconds.
func (c *cuffSimulator) pressure(t float64) float64 {
	rest, inflate, deflate, release := c.phases()
	cycle := rest + inflate + deflate + release
	tc := math.Mod(t, cycle)

	var p float64
	switch {
	case tc < rest:
		p = 0
	case tc < rest+inflate:
		p = c.cfg.PeakPressure * (tc - rest) / inflate
	case tc < rest+inflate+deflate:
		p = c.cfg.PeakPressure - c.cfg.DeflateRate*(tc-rest-inflate)
		p += c.oscillation(p, t)
	default:
		p = deflateEnd - c.cfg.EmptyCuffRate*(tc-rest-inflate-deflate)
	}

	if c.cfg.NoiseLevel > 0 {
		p += c.cfg.NoiseLevel * c.noise()
	}
	return math.Max(p, 0)
}

// oscillation returns the arterial pulse superimposed on cuff pressure p.
// The envelope peaks at the configured MAP.
func (c *cuffSimulator) oscillation(p, t float64) float64 {
	envelope := c.cfg.Amplitude * math.Exp(-math.Pow((p-c.cfg.MAP)/25, 2))
	_, phase := math.Modf(t * c.cfg.HeartRate / 60)
	beat := math.Exp(-math.Pow((phase-0.15)/0.07, 2))
	return envelope * (beat - 0.124)
}
