package acquisition

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/itohio/gobpm/pkg/config"
	"github.com/itohio/gobpm/pkg/daq"
	"github.com/itohio/gobpm/pkg/monitor"
)

// Config is the acquisition contract fixed at driver construction.
type Config struct {
	Subdevice    uint
	RangeID      uint
	ARef         uint32
	Channels     int     // Channels sampled per scan
	ADChannel    int     // Channel returned by RawSample and VoltageSample
	SamplingRate float64 // Requested rate in Hz
}

// ConfigFrom converts the device section of the application configuration.
func ConfigFrom(dc *config.DeviceConfig) (Config, error) {
	aref, err := daq.ParseARef(dc.ARef)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return Config{
		Subdevice:    dc.Subdevice,
		RangeID:      dc.RangeID,
		ARef:         aref,
		Channels:     dc.Channels,
		ADChannel:    dc.ADChannel,
		SamplingRate: dc.SamplingRate,
	}, nil
}

func (c Config) validate() error {
	if c.Channels < 1 {
		return fmt.Errorf("%w: channels must be positive, got %d", ErrInvalidConfig, c.Channels)
	}
	if c.ADChannel < 0 || c.ADChannel >= c.Channels {
		return fmt.Errorf("%w: ad channel %d outside 0..%d", ErrInvalidConfig, c.ADChannel, c.Channels-1)
	}
	if !(c.SamplingRate > 0) || math.IsInf(c.SamplingRate, 0) {
		return fmt.Errorf("%w: sampling rate must be positive, got %v", ErrInvalidConfig, c.SamplingRate)
	}
	if c.SamplingRate > 1e9 {
		return fmt.Errorf("%w: sampling rate %v exceeds 1 GHz", ErrInvalidConfig, c.SamplingRate)
	}
	// Command timer arguments are 32-bit nanoseconds.
	if 1e9/c.SamplingRate > math.MaxUint32 {
		return fmt.Errorf("%w: sampling rate %v Hz gives a period above %d ns", ErrInvalidConfig, c.SamplingRate, uint32(math.MaxUint32))
	}
	return nil
}

// Driver streams scans from a timed analog input subdevice at a negotiated,
// fixed rate. It is not safe for concurrent reads; one producer owns it.
type Driver struct {
	dev       daq.Device
	log       logrus.FieldLogger
	subdev    uint
	adChannel int
	channels  int
	maxData   uint32
	rng       daq.Range
	oor       daq.OORBehavior
	rate      float64
	width     int
	cmd       daq.Command
	buf       []byte
}

// New negotiates a continuous timed command on dev and starts it.
// Every failure is fatal for the session and is returned wrapped in one of
// the package errors.
func New(dev daq.Device, cfg Config, log logrus.FieldLogger) (*Driver, error) {
	if dev == nil {
		return nil, fmt.Errorf("%w: no device", ErrDeviceUnavailable)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	d := &Driver{
		dev:       dev,
		log:       log.WithField("component", "acquisition"),
		subdev:    cfg.Subdevice,
		adChannel: cfg.ADChannel,
		// Conversions must stay numeric so downstream filters are deterministic.
		oor: daq.OORNumber,
	}

	var err error
	if d.maxData, err = dev.MaxData(cfg.Subdevice, 0); err != nil {
		return nil, fmt.Errorf("%w: max data: %v", ErrDeviceUnavailable, err)
	}
	if d.rng, err = dev.Range(cfg.Subdevice, 0, cfg.RangeID); err != nil {
		return nil, fmt.Errorf("%w: range %d: %v", ErrDeviceUnavailable, cfg.RangeID, err)
	}
	hwChannels, err := dev.NumChannels(cfg.Subdevice)
	if err != nil {
		return nil, fmt.Errorf("%w: channel count: %v", ErrDeviceUnavailable, err)
	}

	d.log.WithFields(logrus.Fields{
		"max_data":  d.maxData,
		"range_min": d.rng.Min,
		"range_max": d.rng.Max,
		"channels":  hwChannels,
	}).Debug("Device capabilities")

	if hwChannels < cfg.Channels {
		return nil, fmt.Errorf("%w: %d available, %d required", ErrInsufficientChannels, hwChannels, cfg.Channels)
	}
	d.channels = cfg.Channels

	chanList := make([]uint32, d.channels)
	for i := range chanList {
		chanList[i] = daq.CRPack(uint32(i), uint32(cfg.RangeID), cfg.ARef)
	}

	cmd, err := GenericTimedCommand(dev, cfg.Subdevice, uint32(d.channels), uint32(1e9/cfg.SamplingRate))
	if err != nil {
		return nil, err
	}

	cmd.ChanList = chanList
	cmd.StopSrc = daq.TrigNone
	cmd.StopArg = 0

	for _, pass := range []string{"first", "second"} {
		ret, err := dev.CommandTest(cmd)
		if err == nil && ret < 0 {
			err = fmt.Errorf("result %d", ret)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s test: %v", ErrCommandInvalid, pass, err)
		}
		entry := d.log.WithFields(logrus.Fields{"pass": pass, "result": ret})
		if ret > 0 {
			entry.WithField("stage", daq.StageName(ret)).Infof("Command adjusted: %s", cmd)
		} else {
			entry.Info("Command test passed")
		}
	}

	d.rate = effectiveRate(cmd, d.channels)
	if !(d.rate > 0) {
		return nil, fmt.Errorf("%w: no timer in validated command: %s", ErrCommandInvalid, cmd)
	}
	d.log.WithField("rate", d.rate).Info("Sampling rate negotiated")
	monitor.SamplingRate.Set(d.rate)

	if err := dev.Command(cmd); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStartRejected, err)
	}
	d.cmd = *cmd

	flags, err := dev.SubdeviceFlags(cfg.Subdevice)
	if err != nil {
		dev.Cancel(cfg.Subdevice)
		return nil, fmt.Errorf("%w: subdevice flags: %v", ErrDeviceUnavailable, err)
	}
	if flags&daq.SDFLSampl != 0 {
		d.width = 4
	} else {
		d.log.Warn("Device does not report 32-bit samples, ADC resolution might not be sufficient")
		d.width = 2
	}
	d.buf = make([]byte, d.width*d.channels)

	return d, nil
}

// effectiveRate derives the per-channel rate the hardware committed to.
// Per-scan timing is authoritative and overrides per-channel timing.
func effectiveRate(cmd *daq.Command, channels int) float64 {
	var rate float64
	if cmd.ConvertSrc == daq.TrigTimer && cmd.ConvertArg != 0 {
		rate = (1e9 / float64(cmd.ConvertArg)) / float64(channels)
	}
	if cmd.ScanBeginSrc == daq.TrigTimer && cmd.ScanBeginArg != 0 {
		rate = 1e9 / float64(cmd.ScanBeginArg)
	}
	return rate
}

// SamplingRate returns the negotiated rate in Hz. It never changes.
func (d *Driver) SamplingRate() float64 {
	return d.rate
}

// BufferContents returns the number of bytes queued by the device.
func (d *Driver) BufferContents() (int, error) {
	return d.dev.BufferContents(d.subdev)
}

// Command returns the running command.
func (d *Driver) Command() daq.Command {
	return d.cmd
}

// Range returns the calibration range used for conversions.
func (d *Driver) Range() daq.Range {
	return d.rng
}

// MaxData returns the maximum raw code.
func (d *Driver) MaxData() uint32 {
	return d.maxData
}

// Channels returns the number of channels per scan.
func (d *Driver) Channels() int {
	return d.channels
}

// SampleWidth returns the size of one raw word in bytes.
func (d *Driver) SampleWidth() int {
	return d.width
}

// ReadScan blocks until one full scan is available and appends its raw codes
// to dst.
func (d *Driver) ReadScan(dst []uint32) ([]uint32, error) {
	if err := d.read(); err != nil {
		return dst, err
	}
	for i := 0; i < d.channels; i++ {
		dst = append(dst, d.word(i))
	}
	return dst, nil
}

// RawSample blocks for one scan and returns the configured channel's code.
func (d *Driver) RawSample() (uint32, error) {
	if err := d.read(); err != nil {
		return 0, err
	}
	return d.word(d.adChannel), nil
}

// VoltageSample blocks for one scan and returns the configured channel in
// physical units.
func (d *Driver) VoltageSample() (float64, error) {
	raw, err := d.RawSample()
	if err != nil {
		return 0, err
	}
	return d.ToPhysical(raw), nil
}

// ToPhysical converts a raw code with the driver's calibration range.
func (d *Driver) ToPhysical(raw uint32) float64 {
	return daq.ToPhysical(raw, d.rng, d.maxData, d.oor)
}

func (d *Driver) read() error {
	_, err := io.ReadFull(d.dev, d.buf)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return fmt.Errorf("%w: %v", ErrEndOfAcquisition, err)
	default:
		return fmt.Errorf("read scan: %w", err)
	}
}

func (d *Driver) word(i int) uint32 {
	if d.width == 4 {
		return binary.NativeEndian.Uint32(d.buf[i*4:])
	}
	return uint32(binary.NativeEndian.Uint16(d.buf[i*2:]))
}

// Close stops the acquisition and releases the device.
func (d *Driver) Close() error {
	if err := d.dev.Cancel(d.subdev); err != nil {
		d.log.WithError(err).Warn("Failed to cancel acquisition")
	}
	return d.dev.Close()
}
